// Package scheduler runs many cache specs concurrently.
package scheduler

import (
	"context"
	"errors"
	"fmt"

	"go.trai.ch/dockyard/internal/core/domain"
	"go.trai.ch/zerr"
	"golang.org/x/sync/errgroup"
)

// Executor executes a single cache spec.
type Executor interface {
	Execute(ctx context.Context, spec domain.CacheSpec) (domain.CacheResult, error)
}

// Scheduler executes cache specs with bounded parallelism.
type Scheduler struct {
	executor Executor
}

// NewScheduler creates a new Scheduler running specs through executor.
func NewScheduler(executor Executor) *Scheduler {
	return &Scheduler{executor: executor}
}

// Run executes specs with at most parallelism concurrent executions.
// A failing spec does not stop the others. Results are returned in input order;
// the result of a failed spec carries only its name. All failures are joined
// into one error matching domain.ErrCacheExecutionFailed.
func (s *Scheduler) Run(ctx context.Context, specs []domain.CacheSpec, parallelism int) ([]domain.CacheResult, error) {
	if parallelism <= 0 {
		parallelism = 1
	}

	results := make([]domain.CacheResult, len(specs))
	errs := make([]error, len(specs))

	var g errgroup.Group
	g.SetLimit(parallelism)

	for i, spec := range specs {
		g.Go(func() error {
			results[i], errs[i] = s.runOne(ctx, spec)
			return nil
		})
	}
	_ = g.Wait()

	var failed []error
	for _, err := range errs {
		if err != nil {
			failed = append(failed, err)
		}
	}
	if len(failed) == 0 {
		return results, nil
	}

	msg := fmt.Sprintf("%d of %d caches failed", len(failed), len(specs))
	return results, zerr.Wrap(errors.Join(domain.ErrCacheExecutionFailed, errors.Join(failed...)), msg)
}

func (s *Scheduler) runOne(ctx context.Context, spec domain.CacheSpec) (domain.CacheResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.CacheResult{Name: spec.Name}, zerr.With(zerr.Wrap(err, "cache "+spec.Name+" not started"), "cache", spec.Name)
	}

	res, err := s.executor.Execute(ctx, spec)
	if err != nil {
		return domain.CacheResult{Name: spec.Name}, zerr.With(zerr.Wrap(err, "cache "+spec.Name+" failed"), "cache", spec.Name)
	}
	return res, nil
}
