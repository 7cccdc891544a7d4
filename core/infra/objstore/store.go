package objstore

import "context"

// Store provides the bucket operations the publish loop needs.
type Store interface {
	// List returns every object key in the bucket, walking prefixes recursively.
	List(ctx context.Context) ([]string, error)
	// Read returns the full body of an object.
	Read(ctx context.Context, key string) ([]byte, error)
	// Rename moves an object to a new key. The move is copy-then-delete;
	// the copy landing first is what makes the rename safe as a commit marker.
	Rename(ctx context.Context, from, to string) error
	// PutJSON writes a JSON document to the bucket.
	PutJSON(ctx context.Context, key string, v any) error
}
