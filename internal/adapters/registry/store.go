// Package registry implements an object store on top of an OCI registry.
//
// Every object is an OCI 1.1 artifact: one layer holding the object bytes and
// a manifest annotated with the original key. The manifest is tagged last, so
// a tag that resolves always points at a complete object.
package registry

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"os"
	"strings"
	"time"

	"github.com/opencontainers/go-digest"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/zeebo/blake3"
	"go.trai.ch/dockyard/internal/core/domain"
	"go.trai.ch/zerr"
	"oras.land/oras-go/v2"
	"oras.land/oras-go/v2/content"
	"oras.land/oras-go/v2/errdef"
)

const (
	// ArtifactType is the artifact type of every manifest written by Store.
	ArtifactType = "application/vnd.dockyard.object.v1"
	// LayerMediaType is the media type of the object layer.
	LayerMediaType = "application/vnd.dockyard.object.layer.v1"
	// AnnotationKey holds the object key on the manifest.
	AnnotationKey = "dev.dockyard.object.key"

	maxReadableTag = 100
	tagHashLen     = 16
)

// TargetFunc returns the oras target holding the objects of bucket.
type TargetFunc func(ctx context.Context, bucket string) (oras.Target, error)

// Store implements ports.ObjectStore over oras targets.
type Store struct {
	targets  TargetFunc
	spoolDir string
	now      func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithSpoolDir sets the directory used to stage objects before upload.
func WithSpoolDir(dir string) Option {
	return func(s *Store) {
		s.spoolDir = dir
	}
}

// WithClock overrides the clock used for the manifest creation annotation.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// New creates a Store resolving buckets through targets.
func New(targets TargetFunc, opts ...Option) *Store {
	s := &Store{targets: targets, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Tag maps an object key to the tag it is stored under.
// The readable part is lossy; the hash suffix keeps distinct keys apart.
func Tag(key string) string {
	sum := blake3.Sum256([]byte(key))

	readable := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			return r
		default:
			return '_'
		}
	}, key)
	if len(readable) > maxReadableTag {
		readable = readable[:maxReadableTag]
	}
	if readable == "" || readable[0] == '.' || readable[0] == '-' {
		readable = "_" + readable
	}

	return readable + "-" + hex.EncodeToString(sum[:])[:tagHashLen]
}

// Exists reports whether the tag for key resolves.
func (s *Store) Exists(ctx context.Context, bucket, key string) (bool, error) {
	target, err := s.targets(ctx, bucket)
	if err != nil {
		return false, domain.NewStoreError("exists", bucket, key, err)
	}

	_, err = target.Resolve(ctx, Tag(key))
	switch {
	case errors.Is(err, errdef.ErrNotFound):
		return false, nil
	case err != nil:
		return false, domain.NewStoreError("exists", bucket, key, err)
	}
	return true, nil
}

// Get resolves the tag for key and opens the object layer.
func (s *Store) Get(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	rc, err := s.get(ctx, bucket, key)
	if err != nil {
		return nil, domain.NewStoreError("get", bucket, key, mapError(err))
	}
	return rc, nil
}

func (s *Store) get(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	target, err := s.targets(ctx, bucket)
	if err != nil {
		return nil, err
	}

	desc, err := target.Resolve(ctx, Tag(key))
	if err != nil {
		return nil, err
	}

	data, err := content.FetchAll(ctx, target, desc)
	if err != nil {
		return nil, zerr.Wrap(err, "failed to fetch manifest")
	}

	var manifest ocispec.Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, zerr.Wrap(err, "failed to decode manifest")
	}
	if got := manifest.Annotations[AnnotationKey]; got != key {
		return nil, zerr.With(zerr.Wrap(errdef.ErrNotFound, "tag belongs to another key"), "annotated_key", got)
	}
	if len(manifest.Layers) != 1 {
		return nil, zerr.With(zerr.New("unexpected manifest layout"), "layers", len(manifest.Layers))
	}

	return target.Fetch(ctx, manifest.Layers[0])
}

// Put uploads the content of r as the object at key.
func (s *Store) Put(ctx context.Context, bucket, key string, r io.Reader) error {
	if err := s.put(ctx, bucket, key, r); err != nil {
		return domain.NewStoreError("put", bucket, key, mapError(err))
	}
	return nil
}

func (s *Store) put(ctx context.Context, bucket, key string, r io.Reader) error {
	target, err := s.targets(ctx, bucket)
	if err != nil {
		return err
	}

	spool, desc, err := s.stage(r)
	if err != nil {
		return err
	}
	defer func() {
		_ = spool.Close()
		_ = os.Remove(spool.Name())
	}()

	if err := pushBlob(ctx, target, desc, spool); err != nil {
		return err
	}

	manifestDesc, err := oras.PackManifest(ctx, target, oras.PackManifestVersion1_1, ArtifactType, oras.PackManifestOptions{
		Layers: []ocispec.Descriptor{desc},
		ManifestAnnotations: map[string]string{
			AnnotationKey:             key,
			ocispec.AnnotationCreated: s.now().UTC().Format(time.RFC3339Nano),
		},
	})
	if err != nil {
		return zerr.Wrap(err, "failed to push manifest")
	}

	if err := target.Tag(ctx, manifestDesc, Tag(key)); err != nil {
		return zerr.Wrap(err, "failed to tag manifest")
	}
	return nil
}

// stage copies r to a temporary file so the layer digest and size are known before upload.
func (s *Store) stage(r io.Reader) (*os.File, ocispec.Descriptor, error) {
	f, err := os.CreateTemp(s.spoolDir, "dockyard-object-*")
	if err != nil {
		return nil, ocispec.Descriptor{}, zerr.Wrap(err, "failed to create spool file")
	}
	fail := func(err error, msg string) (*os.File, ocispec.Descriptor, error) {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return nil, ocispec.Descriptor{}, zerr.Wrap(err, msg)
	}

	digester := digest.Canonical.Digester()
	n, err := io.Copy(io.MultiWriter(f, digester.Hash()), r)
	if err != nil {
		return fail(err, "failed to stage object")
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return fail(err, "failed to rewind spool file")
	}

	return f, ocispec.Descriptor{
		MediaType: LayerMediaType,
		Digest:    digester.Digest(),
		Size:      n,
	}, nil
}

func pushBlob(ctx context.Context, target oras.Target, desc ocispec.Descriptor, r io.Reader) error {
	exists, err := target.Exists(ctx, desc)
	if err != nil {
		return zerr.Wrap(err, "failed to check layer")
	}
	if exists {
		return nil
	}
	if err := target.Push(ctx, desc, r); err != nil && !errors.Is(err, errdef.ErrAlreadyExists) {
		return zerr.Wrap(err, "failed to push layer")
	}
	return nil
}

func mapError(err error) error {
	if errors.Is(err, errdef.ErrNotFound) {
		return errors.Join(domain.ErrObjectNotFound, err)
	}
	return err
}
