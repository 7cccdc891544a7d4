package publisher

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/geodatahub/geopublisher/core/infra/config"
)

type fakeCatalog struct {
	bundles []CatalogBundle
	err     error
}

func (c *fakeCatalog) PublishDataset(_ context.Context, bundle CatalogBundle) error {
	c.bundles = append(c.bundles, bundle)
	return c.err
}

func triggerBody() []byte {
	return []byte(`{"workspace":"geology","store_name":"fault_lines","data_path":"vector/faults/fault_lines.shp"}`)
}

func newTestOrchestrator(t *testing.T, store *fakeStore, server *fakeLayerServer, opts Options) (*Orchestrator, string) {
	t.Helper()
	root := t.TempDir()
	opts.Store = store
	opts.Parser = NewRequestParser(root)
	opts.Publisher = NewGeoPublisher(server, root, "/opt/geoserver_data")
	if opts.Interval == 0 {
		opts.Interval = time.Second
	}
	return NewOrchestrator(opts), root
}

func TestCyclePublishesAndMarksDone(t *testing.T) {
	store := newFakeStore()
	store.keys = []string{"roma/_publish.json"}
	store.objects["roma/_publish.json"] = triggerBody()
	server := newFakeLayerServer("geology")

	o, root := newTestOrchestrator(t, store, server, Options{})
	writeDataFile(t, root, "vector/faults/fault_lines.shp")

	o.RunCycle(context.Background())

	ops := server.ops()
	if len(ops) != 2 || ops[0] != "create_vector" || ops[1] != "publish_feature" {
		t.Fatalf("unexpected server calls %v", ops)
	}
	if len(store.renames) != 1 {
		t.Fatalf("expected exactly one rename, got %v", store.renames)
	}
	if store.renames[0] != [2]string{"roma/_publish.json", "roma/_published.json"} {
		t.Fatalf("unexpected rename %v", store.renames[0])
	}
}

func TestCycleIsIdempotentAcrossRuns(t *testing.T) {
	store := newFakeStore()
	store.keys = []string{"roma/_publish.json"}
	store.objects["roma/_publish.json"] = triggerBody()
	server := newFakeLayerServer("geology")

	o, root := newTestOrchestrator(t, store, server, Options{})
	writeDataFile(t, root, "vector/faults/fault_lines.shp")

	o.RunCycle(context.Background())
	o.RunCycle(context.Background())

	if got := len(server.calls); got != 2 {
		t.Fatalf("second cycle must find nothing pending, got %d server calls", got)
	}
	if len(store.renames) != 1 {
		t.Fatalf("expected a single rename, got %v", store.renames)
	}
}

func TestMissingDataFileLeavesTriggerPending(t *testing.T) {
	store := newFakeStore()
	store.keys = []string{"roma/_publish.json"}
	store.objects["roma/_publish.json"] = triggerBody()
	server := newFakeLayerServer("geology")

	o, _ := newTestOrchestrator(t, store, server, Options{})
	o.RunCycle(context.Background())

	if len(server.calls) != 0 {
		t.Fatalf("no server call expected, got %v", server.ops())
	}
	if len(store.renames) != 0 {
		t.Fatalf("trigger must stay pending, got renames %v", store.renames)
	}
}

func TestMissingWorkspaceLeavesTriggerPending(t *testing.T) {
	store := newFakeStore()
	store.keys = []string{"roma/_publish.json"}
	store.objects["roma/_publish.json"] = triggerBody()
	server := newFakeLayerServer() // workspace absent

	o, root := newTestOrchestrator(t, store, server, Options{})
	writeDataFile(t, root, "vector/faults/fault_lines.shp")

	o.RunCycle(context.Background())

	if len(server.calls) != 0 {
		t.Fatalf("no store creation expected, got %v", server.ops())
	}
	if len(store.renames) != 0 {
		t.Fatalf("trigger must stay pending, got renames %v", store.renames)
	}
}

func TestMalformedTriggerIsQuarantined(t *testing.T) {
	store := newFakeStore()
	store.keys = []string{"roma/_publish.json"}
	store.objects["roma/_publish.json"] = []byte(`{"workspace": "ge`)
	server := newFakeLayerServer("geology")

	o, _ := newTestOrchestrator(t, store, server, Options{})
	o.RunCycle(context.Background())

	if len(server.calls) != 0 {
		t.Fatalf("no server call expected for malformed trigger, got %v", server.ops())
	}
	if len(store.renames) != 1 || store.renames[0][1] != "roma/_corrupted.json" {
		t.Fatalf("expected quarantine rename, got %v", store.renames)
	}
}

func TestMalformedTriggerStaysWithQuarantineDisabled(t *testing.T) {
	store := newFakeStore()
	store.keys = []string{"roma/_publish.json"}
	store.objects["roma/_publish.json"] = []byte(`not json`)
	server := newFakeLayerServer("geology")

	o, _ := newTestOrchestrator(t, store, server, Options{
		Policy: &config.Policy{QuarantineMalformed: false},
	})
	o.RunCycle(context.Background())

	if len(store.renames) != 0 {
		t.Fatalf("expected no rename, got %v", store.renames)
	}
}

func TestUnsupportedTypeIsDeadLettered(t *testing.T) {
	store := newFakeStore()
	store.keys = []string{"roma/_publish.json"}
	store.objects["roma/_publish.json"] = []byte(`{"workspace":"w","store_name":"s","data_path":"doc/report.pdf"}`)
	server := newFakeLayerServer("w")

	o, _ := newTestOrchestrator(t, store, server, Options{})
	o.RunCycle(context.Background())

	if len(server.calls) != 0 {
		t.Fatalf("no server call expected, got %v", server.ops())
	}
	if _, ok := store.reports["roma/_failures.json"]; !ok {
		t.Fatalf("expected failure report, got %v", store.reports)
	}
	if len(store.renames) != 1 || store.renames[0][1] != "roma/_failed.json" {
		t.Fatalf("expected dead-letter rename, got %v", store.renames)
	}
}

func TestStoreConflictIsMarkedDone(t *testing.T) {
	store := newFakeStore()
	store.keys = []string{"roma/_publish.json"}
	store.objects["roma/_publish.json"] = triggerBody()
	server := newFakeLayerServer("geology")
	server.createErr = ErrStoreConflict

	o, root := newTestOrchestrator(t, store, server, Options{})
	writeDataFile(t, root, "vector/faults/fault_lines.shp")

	o.RunCycle(context.Background())

	if len(store.renames) != 1 || store.renames[0][1] != "roma/_published.json" {
		t.Fatalf("store conflict should still mark done, got %v", store.renames)
	}
}

func TestRetryBudgetDeadLetters(t *testing.T) {
	store := newFakeStore()
	store.keys = []string{"roma/_publish.json"}
	store.objects["roma/_publish.json"] = triggerBody()
	server := newFakeLayerServer() // workspace always missing

	o, root := newTestOrchestrator(t, store, server, Options{
		Policy: &config.Policy{MaxAttempts: 2, QuarantineMalformed: true},
	})
	writeDataFile(t, root, "vector/faults/fault_lines.shp")

	o.RunCycle(context.Background())
	if len(store.renames) != 0 {
		t.Fatalf("first failure must not dead-letter yet, got %v", store.renames)
	}

	o.RunCycle(context.Background())
	if len(store.renames) != 1 || store.renames[0][1] != "roma/_failed.json" {
		t.Fatalf("expected dead-letter after second failure, got %v", store.renames)
	}
	if _, ok := store.reports["roma/_failures.json"]; !ok {
		t.Fatalf("expected failure report, got %v", store.reports)
	}
}

func TestMarkingFailureLeavesTriggerPending(t *testing.T) {
	store := newFakeStore()
	store.keys = []string{"roma/_publish.json"}
	store.objects["roma/_publish.json"] = triggerBody()
	store.failOps["rename"] = errors.New("storage hiccup")
	server := newFakeLayerServer("geology")

	o, root := newTestOrchestrator(t, store, server, Options{})
	writeDataFile(t, root, "vector/faults/fault_lines.shp")

	o.RunCycle(context.Background())

	// Publish happened, rename did not; the next cycle retries and resolves
	// through the store-conflict path.
	if len(server.calls) != 2 {
		t.Fatalf("expected publish calls despite rename failure, got %v", server.ops())
	}
}

func TestCatalogRegistration(t *testing.T) {
	store := newFakeStore()
	key := "roma/2024-06-01/_publish.json"
	store.keys = []string{key}
	store.objects[key] = []byte(`{"workspace":"geology","store_name":"fault_lines","data_path":"vector/faults/fault_lines.shp","analysis":"seismic risk","write_on_catalogue":true}`)
	server := newFakeLayerServer("geology")
	cat := &fakeCatalog{}

	o, root := newTestOrchestrator(t, store, server, Options{Catalog: cat})
	writeDataFile(t, root, "vector/faults/fault_lines.shp")

	o.RunCycle(context.Background())

	if len(cat.bundles) != 1 {
		t.Fatalf("expected one catalog bundle, got %d", len(cat.bundles))
	}
	b := cat.bundles[0]
	if b.Topic != "seismic risk" || b.City != "roma" || b.Date != "2024-06-01" {
		t.Fatalf("unexpected bundle metadata %+v", b)
	}
	if len(b.Resources) != 1 || b.Resources[0].LayerName != "fault_lines" {
		t.Fatalf("unexpected bundle resources %+v", b.Resources)
	}
}

func TestCatalogFailureDoesNotBlockMarking(t *testing.T) {
	store := newFakeStore()
	store.keys = []string{"roma/_publish.json"}
	store.objects["roma/_publish.json"] = []byte(`{"workspace":"geology","store_name":"fault_lines","data_path":"vector/faults/fault_lines.shp","write_on_catalogue":true}`)
	server := newFakeLayerServer("geology")
	cat := &fakeCatalog{err: errors.New("catalog down")}

	o, root := newTestOrchestrator(t, store, server, Options{Catalog: cat})
	writeDataFile(t, root, "vector/faults/fault_lines.shp")

	o.RunCycle(context.Background())

	if len(store.renames) != 1 || store.renames[0][1] != "roma/_published.json" {
		t.Fatalf("catalog failure must not block marking, got %v", store.renames)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	store := newFakeStore()
	server := newFakeLayerServer()
	o, _ := newTestOrchestrator(t, store, server, Options{Interval: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		o.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not stop after cancellation")
	}
}

func TestCityAndDateFromKey(t *testing.T) {
	if got := cityFromKey("torino/2024/file_publish.json"); got != "torino" {
		t.Fatalf("unexpected city %s", got)
	}
	if got := cityFromKey("noslash"); got != "Unknown" {
		t.Fatalf("expected Unknown for flat key, got %s", got)
	}

	now := time.Date(2026, 8, 25, 0, 0, 0, 0, time.UTC)
	if got := dateFromKey("roma/2024-06-01/_publish.json", now); got != "2024-06-01" {
		t.Fatalf("iso date not extracted: %s", got)
	}
	if got := dateFromKey("roma/20240601/_publish.json", now); got != "2024-06-01" {
		t.Fatalf("compact date not extracted: %s", got)
	}
	if got := dateFromKey("roma/latest/_publish.json", now); got != "2026-08-25" {
		t.Fatalf("expected fallback to now, got %s", got)
	}
}
