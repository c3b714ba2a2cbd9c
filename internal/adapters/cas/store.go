// Package cas implements a filesystem-backed object store.
//
// Objects live at <root>/<bucket>/<key>. Writes go through a temporary file
// that is atomically renamed into place, so readers see either the previous
// object or the complete new one.
package cas

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/renameio/v2"
	"go.trai.ch/dockyard/internal/core/domain"
	"go.trai.ch/zerr"
)

const (
	dirPerm  = 0o750
	filePerm = 0o644
)

// Store implements ports.ObjectStore on a local directory.
type Store struct {
	root string
}

// NewStore creates a Store rooted at root, creating the directory if needed.
func NewStore(root string) (*Store, error) {
	if strings.TrimSpace(root) == "" {
		return nil, zerr.Wrap(domain.ErrRemoteStore, "fs store root is empty")
	}
	root = filepath.Clean(root)
	if err := os.MkdirAll(root, dirPerm); err != nil {
		return nil, zerr.With(zerr.Wrap(errors.Join(domain.ErrRemoteStore, err), "failed to create store root"), "root", root)
	}
	return &Store{root: root}, nil
}

// Root returns the directory holding the buckets.
func (s *Store) Root() string {
	return s.root
}

// objectPath maps bucket/key onto the filesystem and rejects keys that would escape the bucket.
func (s *Store) objectPath(bucket, key string) (string, error) {
	if !validSegment(bucket) {
		return "", zerr.With(zerr.Wrap(domain.ErrUnsafePath, "invalid bucket name"), "bucket", bucket)
	}
	if key == "" || path.IsAbs(key) || strings.ContainsRune(key, '\\') {
		return "", zerr.With(zerr.Wrap(domain.ErrUnsafePath, "invalid object key"), "key", key)
	}
	for _, seg := range strings.Split(key, "/") {
		if !validSegment(seg) {
			return "", zerr.With(zerr.Wrap(domain.ErrUnsafePath, "invalid object key"), "key", key)
		}
	}
	return filepath.Join(s.root, bucket, filepath.FromSlash(key)), nil
}

func validSegment(seg string) bool {
	return seg != "" && seg != "." && seg != ".." && !strings.ContainsAny(seg, "/\\\x00")
}

// Exists reports whether bucket/key holds an object.
func (s *Store) Exists(ctx context.Context, bucket, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, domain.NewStoreError("exists", bucket, key, err)
	}
	p, err := s.objectPath(bucket, key)
	if err != nil {
		return false, domain.NewStoreError("exists", bucket, key, err)
	}

	info, err := os.Stat(p)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	case err != nil:
		return false, domain.NewStoreError("exists", bucket, key, err)
	}
	return info.Mode().IsRegular(), nil
}

// Get opens the object at bucket/key.
func (s *Store) Get(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.NewStoreError("get", bucket, key, err)
	}
	p, err := s.objectPath(bucket, key)
	if err != nil {
		return nil, domain.NewStoreError("get", bucket, key, err)
	}

	//nolint:gosec // path is validated against the store root
	f, err := os.Open(p)
	if errors.Is(err, fs.ErrNotExist) {
		err = zerr.With(zerr.Wrap(domain.ErrObjectNotFound, "no such object"), "path", p)
	}
	if err != nil {
		return nil, domain.NewStoreError("get", bucket, key, err)
	}
	return f, nil
}

// Put writes r to bucket/key atomically.
func (s *Store) Put(ctx context.Context, bucket, key string, r io.Reader) error {
	if err := ctx.Err(); err != nil {
		return domain.NewStoreError("put", bucket, key, err)
	}
	p, err := s.objectPath(bucket, key)
	if err != nil {
		return domain.NewStoreError("put", bucket, key, err)
	}
	if err := os.MkdirAll(filepath.Dir(p), dirPerm); err != nil {
		return domain.NewStoreError("put", bucket, key, err)
	}

	if err := writeAtomic(p, r); err != nil {
		return domain.NewStoreError("put", bucket, key, err)
	}
	return nil
}

func writeAtomic(p string, r io.Reader) (err error) {
	t, err := renameio.TempFile(filepath.Dir(p), p)
	if err != nil {
		return zerr.Wrap(err, "failed to create temporary object")
	}
	defer func() {
		if cerr := t.Cleanup(); cerr != nil && err == nil {
			err = zerr.Wrap(cerr, "failed to clean up temporary object")
		}
	}()

	if _, err := io.Copy(t, r); err != nil {
		return zerr.Wrap(err, "failed to write object")
	}
	if err := t.Chmod(filePerm); err != nil {
		return zerr.Wrap(err, "failed to set object permissions")
	}
	if err := t.CloseAtomicallyReplace(); err != nil {
		return zerr.Wrap(err, "failed to commit object")
	}
	return nil
}
