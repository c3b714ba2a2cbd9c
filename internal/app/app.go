// Package app implements the application layer for dockyard.
package app

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"go.trai.ch/dockyard/internal/core/domain"
	"go.trai.ch/dockyard/internal/core/ports"
	"go.trai.ch/dockyard/internal/engine/buildcache"
	"go.trai.ch/dockyard/internal/engine/scheduler"
	"go.trai.ch/dockyard/internal/engine/tardiff"
	"go.trai.ch/zerr"
)

// App represents the main application logic.
type App struct {
	configLoader ports.ConfigLoader
	opener       ports.StoreOpener
	runner       ports.CommandRunner
	archiver     ports.Archiver
	hasher       ports.Hasher
	differ       *tardiff.Engine
	logger       ports.Logger
	telemetry    ports.Telemetry
}

// New creates a new App instance.
func New(
	loader ports.ConfigLoader,
	opener ports.StoreOpener,
	runner ports.CommandRunner,
	archiver ports.Archiver,
	hasher ports.Hasher,
	differ *tardiff.Engine,
	logger ports.Logger,
	telemetry ports.Telemetry,
) *App {
	return &App{
		configLoader: loader,
		opener:       opener,
		runner:       runner,
		archiver:     archiver,
		hasher:       hasher,
		differ:       differ,
		logger:       logger,
		telemetry:    telemetry,
	}
}

// RunOptions configures cache execution.
type RunOptions struct {
	// ConfigPath is the workspace file; empty selects dockyard.yaml.
	ConfigPath string
	// Parallelism bounds concurrent cache executions; zero selects the CPU count.
	Parallelism int
}

// RunCaches restores or builds the named caches, or every cache when names is empty.
func (a *App) RunCaches(ctx context.Context, names []string, opts RunOptions) ([]domain.CacheResult, error) {
	ws, err := a.load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}

	specs, err := selectCaches(ws, names)
	if err != nil {
		return nil, err
	}

	engine, err := a.engine(ctx, ws)
	if err != nil {
		return nil, err
	}

	parallelism := opts.Parallelism
	if parallelism <= 0 {
		parallelism = runtime.NumCPU()
	}

	results, err := scheduler.NewScheduler(engine).Run(ctx, specs, parallelism)
	for _, res := range results {
		if res.Key == "" {
			continue
		}
		verb := "built and published"
		if res.Hit {
			verb = "restored"
		}
		a.logger.Info(fmt.Sprintf("%s %s (key %s, %s)", res.Name, verb, res.Key, res.Duration.Round(time.Millisecond)))
	}
	return results, err
}

// CacheStatus reports, for the named caches or all of them, whether an entry exists for
// the current key. Nothing is built or restored.
func (a *App) CacheStatus(ctx context.Context, configPath string, names []string) ([]domain.CacheStatus, error) {
	ws, err := a.load(configPath)
	if err != nil {
		return nil, err
	}

	specs, err := selectCaches(ws, names)
	if err != nil {
		return nil, err
	}

	engine, err := a.engine(ctx, ws)
	if err != nil {
		return nil, err
	}

	statuses := make([]domain.CacheStatus, 0, len(specs))
	for _, spec := range specs {
		c, err := engine.Cache(spec)
		if err != nil {
			return statuses, err
		}
		status, err := c.Status(ctx)
		if err != nil {
			return statuses, zerr.With(zerr.Wrap(err, "failed to check cache "+spec.Name), "cache", spec.Name)
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

// DiffOptions selects the archives to diff. Explicit paths override those of a named diff.
type DiffOptions struct {
	ConfigPath  string
	Name        string
	Base        string
	Target      string
	Output      string
	Compression string
}

// Diff writes the entries of the target archive that are new or changed relative to the base.
func (a *App) Diff(ctx context.Context, opts DiffOptions) (domain.DiffStats, error) {
	spec, err := a.diffSpec(opts)
	if err != nil {
		return domain.DiffStats{}, err
	}

	stats, err := a.differ.DiffFiles(ctx, spec.Base, spec.Target, spec.Output, spec.Compression)
	if err != nil {
		return stats, zerr.With(zerr.Wrap(err, "diff failed"), "output", spec.Output)
	}

	a.logger.Info(fmt.Sprintf("wrote %d of %d entries to %s (%d synthesized directories)",
		stats.Emitted, stats.TargetEntries, spec.Output, stats.Synthesized))
	return stats, nil
}

func (a *App) diffSpec(opts DiffOptions) (domain.DiffSpec, error) {
	var spec domain.DiffSpec
	if opts.Name != "" {
		ws, err := a.load(opts.ConfigPath)
		if err != nil {
			return spec, err
		}
		var ok bool
		if spec, ok = ws.Diff(opts.Name); !ok {
			return spec, zerr.With(zerr.Wrap(domain.ErrDiffNotFound, "unknown diff"), "diff", opts.Name)
		}
	}

	if opts.Base != "" {
		spec.Base = opts.Base
	}
	if opts.Target != "" {
		spec.Target = opts.Target
	}
	if opts.Output != "" {
		spec.Output = opts.Output
	}
	if opts.Compression != "" || spec.Compression == "" {
		codec, err := domain.ParseCompression(opts.Compression, domain.CompressionNone)
		if err != nil {
			return spec, err
		}
		spec.Compression = codec
	}

	if spec.Base == "" || spec.Target == "" || spec.Output == "" {
		return spec, zerr.Wrap(domain.ErrInvalidSpec, "diff needs a base, a target and an output")
	}
	return spec, nil
}

// Fingerprint hashes the files matched by paths under root.
func (a *App) Fingerprint(root string, paths []string) (string, error) {
	return a.hasher.Fingerprint(root, paths)
}

func (a *App) load(path string) (*domain.Workspace, error) {
	ws, err := a.configLoader.Load(path)
	if err != nil {
		return nil, zerr.Wrap(err, "failed to load configuration")
	}
	return ws, nil
}

func (a *App) engine(ctx context.Context, ws *domain.Workspace) (*buildcache.Engine, error) {
	store, err := a.opener.Open(ctx, ws.Remote)
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, "failed to open remote store"), "kind", ws.Remote.Kind)
	}
	return buildcache.New(a.runner, store, a.archiver, a.logger, a.telemetry), nil
}

func selectCaches(ws *domain.Workspace, names []string) ([]domain.CacheSpec, error) {
	if len(names) == 0 {
		return ws.Caches, nil
	}

	specs := make([]domain.CacheSpec, 0, len(names))
	for _, name := range names {
		spec, ok := ws.Cache(name)
		if !ok {
			return nil, zerr.With(zerr.Wrap(domain.ErrCacheNotFound, "unknown cache"), "cache", name)
		}
		specs = append(specs, spec)
	}
	return specs, nil
}
