// Package config provides the configuration loader for dockyard.
package config

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"go.trai.ch/dockyard/internal/core/domain"
	"go.trai.ch/dockyard/internal/core/ports"
	"go.trai.ch/zerr"
	"gopkg.in/yaml.v3"
)

// DefaultFilename is the configuration file looked up when no path is given.
const DefaultFilename = "dockyard.yaml"

const supportedVersion = "1"

// Loader implements ports.ConfigLoader using a YAML file.
type Loader struct {
	Logger ports.Logger
}

// NewLoader creates a new configuration loader.
func NewLoader(log ports.Logger) *Loader {
	return &Loader{Logger: log}
}

// Load reads and validates the configuration file at path.
func (l *Loader) Load(path string) (*domain.Workspace, error) {
	if path == "" {
		path = DefaultFilename
	}

	data, err := os.ReadFile(path) //nolint:gosec // path is provided by user
	if err != nil {
		return nil, zerr.With(zerr.Wrap(errors.Join(domain.ErrConfigReadFailed, err), "cannot read configuration"), "path", path)
	}

	var file Dockyardfile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, zerr.With(zerr.Wrap(errors.Join(domain.ErrConfigParseFailed, err), "cannot parse configuration"), "path", path)
	}

	if file.Version != "" && file.Version != supportedVersion && l.Logger != nil {
		l.Logger.Warn("unsupported configuration version " + file.Version + ", reading as version " + supportedVersion)
	}

	root, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, zerr.Wrap(err, "failed to resolve configuration directory")
	}

	return build(root, &file)
}

func build(root string, file *Dockyardfile) (*domain.Workspace, error) {
	ws := &domain.Workspace{
		Root: root,
		Remote: domain.RemoteConfig{
			Kind:      strings.TrimSpace(file.Remote.Kind),
			Root:      resolve(root, file.Remote.Root),
			Registry:  strings.TrimSpace(file.Remote.Registry),
			PlainHTTP: file.Remote.PlainHTTP,
		},
	}
	if ws.Remote.Kind == "" {
		ws.Remote.Kind = domain.RemoteFS
	}

	for _, name := range sortedKeys(file.Caches) {
		spec, err := buildCache(root, name, file.Caches[name])
		if err != nil {
			return nil, err
		}
		ws.Caches = append(ws.Caches, spec)
	}

	for _, name := range sortedKeys(file.Diffs) {
		spec, err := buildDiff(root, name, file.Diffs[name])
		if err != nil {
			return nil, err
		}
		ws.Diffs = append(ws.Diffs, spec)
	}

	return ws, nil
}

func buildCache(root, name string, dto CacheDTO) (domain.CacheSpec, error) {
	codec, err := domain.ParseCompression(dto.Compression, domain.CompressionGzip)
	if err != nil {
		return domain.CacheSpec{}, zerr.With(err, "cache", name)
	}

	spec := domain.CacheSpec{
		Name:         name,
		HashCommand:  dto.Hash,
		BuildCommand: dto.Build,
		OutputDir:    resolve(root, dto.Output),
		Bucket:       strings.TrimSpace(dto.Bucket),
		KeyPrefix:    strings.Trim(strings.TrimSpace(dto.Prefix), "/"),
		Compression:  codec,
	}
	for _, p := range dto.Parameters {
		spec.AddParameterCommand(p)
	}

	if err := spec.Validate(); err != nil {
		return domain.CacheSpec{}, err
	}
	return spec, nil
}

func buildDiff(root, name string, dto DiffDTO) (domain.DiffSpec, error) {
	codec, err := domain.ParseCompression(dto.Compression, domain.CompressionNone)
	if err != nil {
		return domain.DiffSpec{}, zerr.With(err, "diff", name)
	}

	spec := domain.DiffSpec{
		Name:        name,
		Base:        resolve(root, dto.Base),
		Target:      resolve(root, dto.Target),
		Output:      resolve(root, dto.Output),
		Compression: codec,
	}

	missing := func(field string) error {
		return zerr.With(zerr.Wrap(domain.ErrInvalidSpec, "missing required field "+field), "diff", name)
	}
	switch {
	case spec.Base == "":
		return domain.DiffSpec{}, missing("base")
	case spec.Target == "":
		return domain.DiffSpec{}, missing("target")
	case spec.Output == "":
		return domain.DiffSpec{}, missing("output")
	}
	return spec, nil
}

// resolve makes a configured path absolute relative to the configuration directory.
func resolve(root, p string) string {
	p = strings.TrimSpace(p)
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(root, p)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
