package fs

import (
	"path/filepath"
	"slices"

	"go.trai.ch/dockyard/internal/core/domain"
	"go.trai.ch/zerr"
)

// Resolver expands input patterns relative to a root directory.
type Resolver struct{}

// NewResolver creates a new Resolver.
func NewResolver() *Resolver {
	return &Resolver{}
}

// ResolveInputs expands each pattern under root and returns the sorted, deduplicated matches.
// A pattern matching nothing fails with domain.ErrInputNotFound.
func (r *Resolver) ResolveInputs(inputs []string, root string) ([]string, error) {
	var result []string

	for _, input := range inputs {
		path := input
		if !filepath.IsAbs(path) {
			path = filepath.Join(root, input)
		}

		matches, err := filepath.Glob(path)
		if err != nil {
			return nil, zerr.With(zerr.Wrap(err, "failed to glob path"), "path", path)
		}
		if len(matches) == 0 {
			return nil, zerr.With(zerr.Wrap(domain.ErrInputNotFound, "no files match"), "path", path)
		}

		result = append(result, matches...)
	}

	slices.Sort(result)
	return slices.Compact(result), nil
}
