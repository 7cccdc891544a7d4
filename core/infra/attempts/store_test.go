package attempts

import (
	"context"
	"testing"
)

func TestMemoryStoreIncrClear(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	for want := 1; want <= 3; want++ {
		n, err := store.Incr(ctx, "k")
		if err != nil {
			t.Fatalf("incr: %v", err)
		}
		if n != want {
			t.Fatalf("expected count %d, got %d", want, n)
		}
	}

	if err := store.Clear(ctx, "k"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if n, _ := store.Incr(ctx, "k"); n != 1 {
		t.Fatalf("expected count reset after clear, got %d", n)
	}
}
