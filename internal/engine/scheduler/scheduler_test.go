package scheduler_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/dockyard/internal/core/domain"
	"go.trai.ch/dockyard/internal/engine/scheduler"
)

type fakeExecutor struct {
	mu       sync.Mutex
	running  int
	peak     int
	failures map[string]error
	hits     map[string]bool
	delay    time.Duration
	calls    atomic.Int32
}

func (f *fakeExecutor) Execute(_ context.Context, spec domain.CacheSpec) (domain.CacheResult, error) {
	f.calls.Add(1)

	f.mu.Lock()
	f.running++
	if f.running > f.peak {
		f.peak = f.running
	}
	f.mu.Unlock()

	time.Sleep(f.delay)

	f.mu.Lock()
	f.running--
	f.mu.Unlock()

	if err := f.failures[spec.Name]; err != nil {
		return domain.CacheResult{}, err
	}
	return domain.CacheResult{Name: spec.Name, Key: "key-" + spec.Name, Hit: f.hits[spec.Name]}, nil
}

func specs(names ...string) []domain.CacheSpec {
	out := make([]domain.CacheSpec, len(names))
	for i, n := range names {
		out[i] = domain.CacheSpec{Name: n}
	}
	return out
}

func TestScheduler_RunInOrder(t *testing.T) {
	exec := &fakeExecutor{hits: map[string]bool{"b": true}, delay: 5 * time.Millisecond}
	s := scheduler.NewScheduler(exec)

	results, err := s.Run(context.Background(), specs("a", "b", "c", "d"), 2)
	require.NoError(t, err)

	require.Len(t, results, 4)
	for i, name := range []string{"a", "b", "c", "d"} {
		assert.Equal(t, name, results[i].Name)
		assert.Equal(t, "key-"+name, results[i].Key)
	}
	assert.True(t, results[1].Hit)
	assert.False(t, results[0].Hit)
}

func TestScheduler_ParallelismLimit(t *testing.T) {
	for _, limit := range []int{1, 3} {
		exec := &fakeExecutor{delay: 20 * time.Millisecond}
		s := scheduler.NewScheduler(exec)

		_, err := s.Run(context.Background(), specs("a", "b", "c", "d", "e", "f"), limit)
		require.NoError(t, err)

		assert.EqualValues(t, 6, exec.calls.Load())
		assert.LessOrEqual(t, exec.peak, limit, "limit %d exceeded", limit)
		assert.GreaterOrEqual(t, exec.peak, 1)
	}
}

func TestScheduler_NonPositiveParallelismRunsSequentially(t *testing.T) {
	exec := &fakeExecutor{delay: 5 * time.Millisecond}
	_, err := scheduler.NewScheduler(exec).Run(context.Background(), specs("a", "b", "c"), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, exec.peak)
}

func TestScheduler_FailuresAreJoined(t *testing.T) {
	buildErr := errors.New("make: *** [dist] Error 2")
	exec := &fakeExecutor{failures: map[string]error{
		"api": buildErr,
		"web": domain.ErrRemoteStore,
	}}
	s := scheduler.NewScheduler(exec)

	results, err := s.Run(context.Background(), specs("api", "docs", "web"), 4)

	require.ErrorIs(t, err, domain.ErrCacheExecutionFailed)
	require.ErrorIs(t, err, buildErr)
	require.ErrorIs(t, err, domain.ErrRemoteStore)
	assert.Contains(t, err.Error(), "cache api failed")
	assert.Contains(t, err.Error(), "cache web failed")
	assert.EqualValues(t, 3, exec.calls.Load(), "a failure must not stop other caches")

	assert.Equal(t, "docs", results[1].Name)
	assert.Equal(t, "key-docs", results[1].Key)
	assert.Equal(t, domain.CacheResult{Name: "api"}, results[0])
	assert.Equal(t, domain.CacheResult{Name: "web"}, results[2])
}

func TestScheduler_CanceledContext(t *testing.T) {
	exec := &fakeExecutor{}
	s := scheduler.NewScheduler(exec)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Run(ctx, specs("a"), 0)

	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, exec.calls.Load())
}

func TestScheduler_Empty(t *testing.T) {
	results, err := scheduler.NewScheduler(&fakeExecutor{}).Run(context.Background(), nil, 4)
	require.NoError(t, err)
	assert.Empty(t, results)
}
