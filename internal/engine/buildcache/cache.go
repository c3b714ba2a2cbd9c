package buildcache

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/zeebo/blake3"
	"go.trai.ch/dockyard/internal/core/domain"
	"go.trai.ch/dockyard/internal/core/ports"
	"go.trai.ch/zerr"
)

// digestAlgorithm prefixes artifact digests recorded in markers.
const digestAlgorithm = "blake3:"

// Cache is the handle of one CacheSpec.
// Parameter outputs are memoised per handle, never process-wide.
type Cache struct {
	engine *Engine
	spec   domain.CacheSpec

	mu     sync.Mutex
	params []string
	memo   map[string]string
}

// entry locates one cache entry in the store.
type entry struct {
	key         string
	markerKey   string
	artifactKey string
	params      map[string]string
}

// ParameterCommand registers command as queryable. Registering twice is a no-op.
func (c *Cache) ParameterCommand(command string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !slices.Contains(c.params, command) {
		c.params = append(c.params, command)
	}
}

// ParameterOutput returns the trimmed stdout of a registered parameter command.
// An unregistered command fails with domain.ErrUnregisteredCommand without being run.
func (c *Cache) ParameterOutput(ctx context.Context, command string) (string, error) {
	c.mu.Lock()
	registered := slices.Contains(c.params, command)
	out, memoised := c.memo[command]
	c.mu.Unlock()

	if !registered {
		return "", zerr.With(zerr.Wrap(domain.ErrUnregisteredCommand, "parameter output requested"), "command", command)
	}
	if memoised {
		return out, nil
	}

	res, err := c.run(ctx, command)
	if err != nil {
		return "", err
	}
	out = strings.TrimSpace(string(res.Stdout))

	c.mu.Lock()
	c.memo[command] = out
	c.mu.Unlock()
	return out, nil
}

// ComputeCacheKey runs the hash command and returns its trimmed stdout.
// The command runs on every call so the key reflects the current inputs.
func (c *Cache) ComputeCacheKey(ctx context.Context) (string, error) {
	res, err := c.run(ctx, c.spec.HashCommand)
	if err != nil {
		return "", err
	}
	key := strings.TrimSpace(string(res.Stdout))
	if key == "" {
		return "", zerr.With(zerr.Wrap(domain.ErrEmptyCacheKey, "no cache key"), "command", c.spec.HashCommand)
	}
	return key, nil
}

// IsUpToDate reports whether a marker exists for the current cache key.
// Store failures are returned, never reported as a miss.
func (c *Cache) IsUpToDate(ctx context.Context) (bool, error) {
	ent, err := c.resolve(ctx)
	if err != nil {
		return false, err
	}
	return c.exists(ctx, ent)
}

// Status reports the current key and whether its entry exists.
func (c *Cache) Status(ctx context.Context) (domain.CacheStatus, error) {
	status := domain.CacheStatus{Name: c.spec.Name}
	ent, err := c.resolve(ctx)
	if err != nil {
		return status, err
	}
	status.Key, status.MarkerKey = ent.key, ent.markerKey
	status.UpToDate, err = c.exists(ctx, ent)
	return status, err
}

// RunBuild runs the build command. A non-zero exit fails with a *domain.CommandError
// matching domain.ErrBuildFailed.
func (c *Cache) RunBuild(ctx context.Context) error {
	res, err := c.engine.runner.Run(ctx, c.spec.BuildCommand)
	if err != nil {
		res.ExitCode = -1
		return domain.NewBuildError(c.spec.BuildCommand, res, err)
	}
	if !res.Success() {
		return domain.NewBuildError(c.spec.BuildCommand, res, nil)
	}
	return nil
}

// Publish uploads the output directory under the current cache key, marker last.
func (c *Cache) Publish(ctx context.Context) error {
	ent, err := c.resolve(ctx)
	if err != nil {
		return err
	}
	return c.publish(ctx, ent)
}

// Pull restores the output directory from the entry of the current cache key.
func (c *Cache) Pull(ctx context.Context) error {
	ent, err := c.resolve(ctx)
	if err != nil {
		return err
	}
	return c.pull(ctx, ent)
}

// Execute restores the output from the store when an entry exists, otherwise builds and
// publishes it. A failed restore is returned as is and never triggers a rebuild.
//
// Concurrent calls for the same entry and output directory share one execution.
func (c *Cache) Execute(ctx context.Context) (domain.CacheResult, error) {
	start := time.Now()
	result := domain.CacheResult{Name: c.spec.Name, OutputDir: c.spec.OutputDir}

	ctx, vertex := c.engine.telemetry.Record(ctx, "cache "+c.spec.Name)

	ent, err := c.resolve(ctx)
	if err != nil {
		vertex.Complete(err)
		return result, err
	}
	result.Key, result.MarkerKey = ent.key, ent.markerKey

	flight := c.spec.Bucket + "\x00" + ent.markerKey + "\x00" + c.spec.OutputDir
	v, err, _ := c.engine.flights.Do(flight, func() (any, error) {
		return c.execute(ctx, ent, vertex)
	})
	if err == nil {
		result.Hit = v.(bool)
	}
	result.Duration = time.Since(start)

	if result.Hit {
		vertex.Cached()
	}
	vertex.Complete(err)
	return result, err
}

func (c *Cache) execute(ctx context.Context, ent entry, vertex ports.Vertex) (bool, error) {
	hit, err := c.exists(ctx, ent)
	if err != nil {
		return false, err
	}

	if hit {
		vertex.Log(slog.LevelInfo, "restoring "+ent.markerKey)
		if err := c.pull(ctx, ent); err != nil {
			return false, err
		}
		c.engine.logger.Info(fmt.Sprintf("%s: cache hit, restored %s", c.spec.Name, ent.markerKey))
		return true, nil
	}

	c.engine.logger.Info(fmt.Sprintf("%s: cache miss for %s, building", c.spec.Name, ent.markerKey))
	if err := c.RunBuild(ctx); err != nil {
		return false, err
	}
	if err := c.publish(ctx, ent); err != nil {
		return false, err
	}
	c.engine.logger.Info(fmt.Sprintf("%s: published %s", c.spec.Name, ent.markerKey))
	return false, nil
}

// resolve computes the cache key and the parameter outputs that scope the entry.
func (c *Cache) resolve(ctx context.Context) (entry, error) {
	key, err := c.ComputeCacheKey(ctx)
	if err != nil {
		return entry{}, err
	}

	c.mu.Lock()
	commands := slices.Clone(c.params)
	c.mu.Unlock()

	values := make([]string, 0, len(commands))
	params := make(map[string]string, len(commands))
	for _, cmd := range commands {
		out, err := c.ParameterOutput(ctx, cmd)
		if err != nil {
			return entry{}, err
		}
		values = append(values, out)
		params[cmd] = out
	}

	markerKey := c.spec.MarkerKey(key, values)
	return entry{
		key:         key,
		markerKey:   markerKey,
		artifactKey: c.spec.ArtifactKey(markerKey),
		params:      params,
	}, nil
}

func (c *Cache) exists(ctx context.Context, ent entry) (bool, error) {
	ok, err := c.engine.store.Exists(ctx, c.spec.Bucket, ent.markerKey)
	if err != nil {
		return false, domain.NewStoreError("exists", c.spec.Bucket, ent.markerKey, err)
	}
	return ok, nil
}

func (c *Cache) publish(ctx context.Context, ent entry) error {
	spool, err := os.CreateTemp(c.engine.spoolDir, "dockyard-artifact-*")
	if err != nil {
		return zerr.Wrap(err, "failed to create artifact spool")
	}
	defer os.Remove(spool.Name())
	defer spool.Close()

	hasher := blake3.New()
	counter := &countingWriter{}
	w := io.MultiWriter(spool, hasher, counter)
	if err := c.engine.archiver.Pack(ctx, c.spec.OutputDir, w, c.spec.Compression); err != nil {
		return zerr.With(zerr.Wrap(err, "failed to pack build output"), "cache", c.spec.Name)
	}
	if _, err := spool.Seek(0, io.SeekStart); err != nil {
		return zerr.Wrap(err, "failed to rewind artifact spool")
	}

	if err := c.engine.store.Put(ctx, c.spec.Bucket, ent.artifactKey, spool); err != nil {
		return domain.NewStoreError("put", c.spec.Bucket, ent.artifactKey, err)
	}

	marker := &domain.Marker{
		Version:     domain.MarkerVersion,
		CacheKey:    ent.key,
		ArtifactKey: ent.artifactKey,
		Compression: c.spec.Compression,
		Size:        counter.n,
		Digest:      digestAlgorithm + hex.EncodeToString(hasher.Sum(nil)),
		Parameters:  ent.params,
		CreatedAt:   c.engine.now().UTC(),
	}
	body, err := domain.EncodeMarker(marker)
	if err != nil {
		return err
	}
	if err := c.engine.store.Put(ctx, c.spec.Bucket, ent.markerKey, bytes.NewReader(body)); err != nil {
		return domain.NewStoreError("put", c.spec.Bucket, ent.markerKey, err)
	}
	return nil
}

func (c *Cache) pull(ctx context.Context, ent entry) error {
	marker, err := c.readMarker(ctx, ent)
	if err != nil {
		return err
	}

	artifactKey := ent.artifactKey
	if marker != nil && marker.ArtifactKey != "" {
		artifactKey = marker.ArtifactKey
	}

	rc, err := c.engine.store.Get(ctx, c.spec.Bucket, artifactKey)
	if err != nil {
		if errors.Is(err, domain.ErrObjectNotFound) {
			return c.artifactError(artifactKey, domain.ErrArtifactMissing, err)
		}
		return domain.NewStoreError("get", c.spec.Bucket, artifactKey, err)
	}
	defer rc.Close()

	spool, err := os.CreateTemp(c.engine.spoolDir, "dockyard-artifact-*")
	if err != nil {
		return zerr.Wrap(err, "failed to create artifact spool")
	}
	defer os.Remove(spool.Name())
	defer spool.Close()

	hasher := blake3.New()
	size, err := io.Copy(io.MultiWriter(spool, hasher), rc)
	if err != nil {
		return domain.NewStoreError("get", c.spec.Bucket, artifactKey, err)
	}

	// An empty marker body carries nothing to verify against.
	if marker != nil {
		digest := digestAlgorithm + hex.EncodeToString(hasher.Sum(nil))
		if size != marker.Size || digest != marker.Digest {
			mismatch := zerr.With(zerr.With(zerr.New("artifact mismatch"), "expected_digest", marker.Digest), "actual_digest", digest)
			return c.artifactError(artifactKey, domain.ErrArtifactCorrupt, mismatch)
		}
	}

	if _, err := spool.Seek(0, io.SeekStart); err != nil {
		return zerr.Wrap(err, "failed to rewind artifact spool")
	}
	if err := c.engine.archiver.Unpack(ctx, spool, c.spec.OutputDir); err != nil {
		return zerr.With(zerr.Wrap(err, "failed to restore cached output"), "output", c.spec.OutputDir)
	}
	return nil
}

// readMarker returns the decoded marker, or nil for an empty marker body.
func (c *Cache) readMarker(ctx context.Context, ent entry) (*domain.Marker, error) {
	rc, err := c.engine.store.Get(ctx, c.spec.Bucket, ent.markerKey)
	if err != nil {
		return nil, domain.NewStoreError("get", c.spec.Bucket, ent.markerKey, err)
	}
	defer rc.Close()

	body, err := io.ReadAll(rc)
	if err != nil {
		return nil, domain.NewStoreError("get", c.spec.Bucket, ent.markerKey, err)
	}
	if len(body) == 0 {
		return nil, nil
	}
	marker, err := domain.DecodeMarker(body)
	if err != nil {
		return nil, zerr.With(err, "marker", ent.markerKey)
	}
	return marker, nil
}

func (c *Cache) artifactError(key string, kind, cause error) error {
	return &domain.StoreError{Op: "get", Bucket: c.spec.Bucket, Key: key, Err: errors.Join(kind, cause)}
}

// run executes command and converts launch failures and non-zero exits to *domain.CommandError.
func (c *Cache) run(ctx context.Context, command string) (domain.CommandResult, error) {
	res, err := c.engine.runner.Run(ctx, command)
	if err != nil {
		res.ExitCode = -1
		return res, domain.NewCommandError(command, res, err)
	}
	if !res.Success() {
		return res, domain.NewCommandError(command, res, nil)
	}
	return res, nil
}

type countingWriter struct {
	n int64
}

func (w *countingWriter) Write(p []byte) (int, error) {
	w.n += int64(len(p))
	return len(p), nil
}
