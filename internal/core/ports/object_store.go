package ports

import (
	"context"
	"io"

	"go.trai.ch/dockyard/internal/core/domain"
)

// ObjectStore is a bucket and key addressed blob store.
//
// Every failure reaching or operating on the store matches domain.ErrRemoteStore.
// Get of a missing key additionally matches domain.ErrObjectNotFound.
//
//go:generate go run go.uber.org/mock/mockgen -source=object_store.go -destination=mocks/mock_object_store.go -package=mocks
type ObjectStore interface {
	// Exists reports whether an object is stored at bucket/key.
	Exists(ctx context.Context, bucket, key string) (bool, error)

	// Get opens the object stored at bucket/key. The caller closes the reader.
	Get(ctx context.Context, bucket, key string) (io.ReadCloser, error)

	// Put stores the content of r at bucket/key, replacing any existing object.
	// Readers never observe a partially written object.
	Put(ctx context.Context, bucket, key string, r io.Reader) error
}

// StoreOpener builds the ObjectStore selected by configuration.
type StoreOpener interface {
	Open(ctx context.Context, cfg domain.RemoteConfig) (ObjectStore, error)
}
