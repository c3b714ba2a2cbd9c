package cas_test

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/dockyard/internal/adapters/cas"
	"go.trai.ch/dockyard/internal/core/domain"
	"go.trai.ch/dockyard/internal/core/ports"
)

func newStore(t *testing.T) *cas.Store {
	t.Helper()
	s, err := cas.NewStore(filepath.Join(t.TempDir(), "remote"))
	require.NoError(t, err)
	return s
}

func TestStore_RoundTrip(t *testing.T) {
	var _ ports.ObjectStore = (*cas.Store)(nil)

	ctx := context.Background()
	s := newStore(t)

	ok, err := s.Exists(ctx, "artifacts", "web/abc")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Put(ctx, "artifacts", "web/abc", strings.NewReader("payload")))

	ok, err = s.Exists(ctx, "artifacts", "web/abc")
	require.NoError(t, err)
	assert.True(t, ok)

	rc, err := s.Get(ctx, "artifacts", "web/abc")
	require.NoError(t, err)
	defer func() { _ = rc.Close() }()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))

	assert.FileExists(t, filepath.Join(s.Root(), "artifacts", "web", "abc"))
}

func TestStore_PutReplaces(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	require.NoError(t, s.Put(ctx, "b", "k", strings.NewReader("one")))
	require.NoError(t, s.Put(ctx, "b", "k", strings.NewReader("two")))

	data, err := os.ReadFile(filepath.Join(s.Root(), "b", "k"))
	require.NoError(t, err)
	assert.Equal(t, "two", string(data))
}

func TestStore_GetMissing(t *testing.T) {
	s := newStore(t)

	_, err := s.Get(context.Background(), "b", "missing")

	require.ErrorIs(t, err, domain.ErrObjectNotFound)
	require.ErrorIs(t, err, domain.ErrRemoteStore)
}

func TestStore_FailedPutLeavesPreviousObject(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	require.NoError(t, s.Put(ctx, "b", "k", strings.NewReader("old")))

	err := s.Put(ctx, "b", "k", iotest.ErrReader(errors.New("read failed")))
	require.ErrorIs(t, err, domain.ErrRemoteStore)

	data, err := os.ReadFile(filepath.Join(s.Root(), "b", "k"))
	require.NoError(t, err)
	assert.Equal(t, "old", string(data))

	entries, err := os.ReadDir(filepath.Join(s.Root(), "b"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files must be removed")
}

func TestStore_RejectsUnsafeKeys(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	for _, tc := range []struct{ bucket, key string }{
		{"b", "../escape"},
		{"b", "/abs"},
		{"b", "a/../../x"},
		{"b", ""},
		{"..", "k"},
		{"", "k"},
	} {
		err := s.Put(ctx, tc.bucket, tc.key, strings.NewReader("x"))
		require.ErrorIs(t, err, domain.ErrUnsafePath, "bucket=%q key=%q", tc.bucket, tc.key)
		require.ErrorIs(t, err, domain.ErrRemoteStore)
	}
}

func TestStore_CanceledContext(t *testing.T) {
	s := newStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Exists(ctx, "b", "k")
	require.ErrorIs(t, err, context.Canceled)
	require.ErrorIs(t, err, domain.ErrRemoteStore)
}

func TestNewStore_EmptyRoot(t *testing.T) {
	_, err := cas.NewStore(" ")
	require.ErrorIs(t, err, domain.ErrRemoteStore)
}
