// Package domain contains the core types of the build cache and the archive differ.
package domain

import (
	"fmt"
	"path"
	"slices"
	"strings"
	"time"

	"go.trai.ch/zerr"
)

// CacheSpec describes one cacheable build.
// It is built once from configuration and must not be mutated after it is handed to the engine.
type CacheSpec struct {
	// Name identifies the cache in configuration and logs.
	Name string
	// HashCommand prints a fingerprint of the build inputs on stdout.
	HashCommand string
	// BuildCommand produces the build output into OutputDir.
	BuildCommand string
	// OutputDir is the directory tree that gets cached.
	OutputDir string
	// Bucket and KeyPrefix locate the cache entries in the remote store.
	Bucket    string
	KeyPrefix string
	// ParameterCommands are the commands whose outputs may be queried and that scope the entry.
	ParameterCommands []string
	// Compression is the codec used for the uploaded artifact.
	Compression Compression
}

// Validate reports whether the spec has every field required for execution.
func (s *CacheSpec) Validate() error {
	missing := func(field string) error {
		err := zerr.Wrap(ErrInvalidSpec, "missing required field "+field)
		return zerr.With(err, "cache", s.Name)
	}
	switch {
	case strings.TrimSpace(s.HashCommand) == "":
		return missing("hash")
	case strings.TrimSpace(s.BuildCommand) == "":
		return missing("build")
	case strings.TrimSpace(s.OutputDir) == "":
		return missing("output")
	case strings.TrimSpace(s.Bucket) == "":
		return missing("bucket")
	}
	return nil
}

// AddParameterCommand registers command as a parameter command. Duplicates are ignored.
func (s *CacheSpec) AddParameterCommand(command string) {
	if slices.Contains(s.ParameterCommands, command) {
		return
	}
	s.ParameterCommands = append(s.ParameterCommands, command)
}

// MarkerKey returns the key of the cache marker for key under the given parameter values.
func (s *CacheSpec) MarkerKey(key string, params []string) string {
	parts := make([]string, 0, len(params)+2)
	if p := strings.Trim(s.KeyPrefix, "/"); p != "" {
		parts = append(parts, p)
	}
	for _, v := range params {
		parts = append(parts, EscapeKeySegment(v))
	}
	parts = append(parts, EscapeKeySegment(key))
	return path.Join(parts...)
}

// ArtifactKey returns the key the artifact for markerKey is uploaded under.
func (s *CacheSpec) ArtifactKey(markerKey string) string {
	return markerKey + s.Compression.Extension()
}

// EscapeKeySegment turns arbitrary command output into a single key segment.
// Surrounding whitespace is trimmed. The escaping is injective: '%', path separators,
// whitespace and control bytes are percent-encoded, so distinct values never share a
// segment and a value never adds path depth. The empty value maps to "%", and "." and
// ".." are encoded in full.
func EscapeKeySegment(v string) string {
	v = strings.TrimSpace(v)
	switch v {
	case "":
		return "%"
	case ".":
		return "%2E"
	case "..":
		return "%2E%2E"
	}

	var b strings.Builder
	b.Grow(len(v))
	for i := 0; i < len(v); i++ {
		c := v[i]
		switch {
		case c == '%' || c == '/' || c == '\\' || c <= 0x20 || c == 0x7f:
			fmt.Fprintf(&b, "%%%02X", c)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// CommandResult is the outcome of running a shell command.
// A command killed by a signal reports 128 plus the signal number, as shells do,
// and names the signal.
type CommandResult struct {
	ExitCode int
	Signal   string
	Stdout   []byte
	Stderr   []byte
}

// Success reports whether the command exited with status zero.
func (r CommandResult) Success() bool {
	return r.ExitCode == 0
}

// CacheResult summarises one Execute call.
type CacheResult struct {
	Name      string
	Key       string
	MarkerKey string
	// Hit is true when the output was restored from the remote store instead of built.
	Hit       bool
	OutputDir string
	Duration  time.Duration
}

// CacheStatus reports whether a cache entry exists without executing anything.
type CacheStatus struct {
	Name      string
	Key       string
	MarkerKey string
	UpToDate  bool
}
