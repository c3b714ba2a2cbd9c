// Package buildcache implements the remote-backed build cache.
//
// A cache entry is addressed by the output of a hash command. Its marker object is the
// only proof of validity: the artifact is always uploaded first and the marker last, so a
// reader that sees a marker can rely on the artifact being complete.
package buildcache

import (
	"context"
	"time"

	"go.trai.ch/dockyard/internal/core/domain"
	"go.trai.ch/dockyard/internal/core/ports"
	"golang.org/x/sync/singleflight"
)

// Engine executes cache specs against one object store.
// It is safe for concurrent use.
type Engine struct {
	runner    ports.CommandRunner
	store     ports.ObjectStore
	archiver  ports.Archiver
	logger    ports.Logger
	telemetry ports.Telemetry

	flights singleflight.Group
	now     func() time.Time
	// spoolDir holds artifacts while they are hashed. Empty means os.TempDir.
	spoolDir string
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the time source used for marker timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithSpoolDir sets the directory used for temporary artifact files.
func WithSpoolDir(dir string) Option {
	return func(e *Engine) {
		e.spoolDir = dir
	}
}

// New creates a new Engine.
func New(
	runner ports.CommandRunner,
	store ports.ObjectStore,
	archiver ports.Archiver,
	logger ports.Logger,
	telemetry ports.Telemetry,
	opts ...Option,
) *Engine {
	e := &Engine{
		runner:    runner,
		store:     store,
		archiver:  archiver,
		logger:    logger,
		telemetry: telemetry,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Cache validates spec and returns a handle owning its parameter memo.
func (e *Engine) Cache(spec domain.CacheSpec) (*Cache, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	c := &Cache{
		engine: e,
		spec:   spec,
		memo:   make(map[string]string),
	}
	for _, cmd := range spec.ParameterCommands {
		c.ParameterCommand(cmd)
	}
	return c, nil
}

// Execute restores or builds the output of spec.
func (e *Engine) Execute(ctx context.Context, spec domain.CacheSpec) (domain.CacheResult, error) {
	c, err := e.Cache(spec)
	if err != nil {
		return domain.CacheResult{Name: spec.Name, OutputDir: spec.OutputDir}, err
	}
	return c.Execute(ctx)
}
