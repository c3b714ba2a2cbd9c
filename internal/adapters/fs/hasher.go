package fs

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"

	"github.com/cespare/xxhash/v2"
	"go.trai.ch/dockyard/internal/core/ports"
	"go.trai.ch/zerr"
)

var _ ports.Hasher = (*Hasher)(nil)

// Hasher fingerprints file trees with xxhash.
type Hasher struct {
	walker   *Walker
	resolver *Resolver
}

// NewHasher creates a new Hasher.
func NewHasher(walker *Walker, resolver *Resolver) *Hasher {
	return &Hasher{walker: walker, resolver: resolver}
}

// ComputeFileHash computes the XXHash of a file's content.
func (h *Hasher) ComputeFileHash(path string) (uint64, error) {
	f, err := os.Open(path) //nolint:gosec // Path is controlled by caller
	if err != nil {
		return 0, zerr.With(zerr.Wrap(err, "failed to open file"), "path", path)
	}
	defer f.Close() //nolint:errcheck // Best effort close in defer

	hasher := xxhash.New()
	if _, err := io.Copy(hasher, f); err != nil {
		return 0, zerr.With(zerr.Wrap(err, "failed to hash file content"), "path", path)
	}

	return hasher.Sum64(), nil
}

// Fingerprint hashes the files matched by paths under root.
// The digest covers each file's path relative to root and its content, in sorted path order,
// so it is independent of where root lives and of the order paths are given in.
func (h *Hasher) Fingerprint(root string, paths []string) (string, error) {
	if len(paths) == 0 {
		paths = []string{"."}
	}

	matches, err := h.resolver.ResolveInputs(paths, root)
	if err != nil {
		return "", err
	}

	files, err := h.collectFiles(matches)
	if err != nil {
		return "", err
	}

	hasher := xxhash.New()
	for _, file := range files {
		if err := h.hashFile(root, file, hasher); err != nil {
			return "", err
		}
	}

	return fmt.Sprintf("%016x", hasher.Sum64()), nil
}

func (h *Hasher) collectFiles(matches []string) ([]string, error) {
	var files []string
	for _, match := range matches {
		info, err := os.Lstat(match)
		if err != nil {
			return nil, zerr.With(zerr.Wrap(err, "failed to stat path"), "path", match)
		}
		if !info.IsDir() {
			files = append(files, match)
			continue
		}
		for file, err := range h.walker.WalkFiles(match, nil) {
			if err != nil {
				return nil, zerr.With(zerr.Wrap(err, "failed to walk directory"), "path", match)
			}
			files = append(files, file)
		}
	}

	slices.Sort(files)
	return slices.Compact(files), nil
}

func (h *Hasher) hashFile(root, path string, mainHasher *xxhash.Digest) error {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		rel = path
	}
	_, _ = mainHasher.WriteString(filepath.ToSlash(rel))
	_, _ = mainHasher.Write([]byte{0})

	info, err := os.Lstat(path)
	if err != nil {
		return zerr.With(zerr.Wrap(err, "failed to stat file"), "path", path)
	}

	// Links contribute their target so dangling links still fingerprint.
	if info.Mode()&os.ModeSymlink != 0 {
		target, err := os.Readlink(path)
		if err != nil {
			return zerr.With(zerr.Wrap(err, "failed to read link"), "path", path)
		}
		_, _ = mainHasher.WriteString("->" + target)
		_, _ = mainHasher.Write([]byte{0})
		return nil
	}

	hash, err := h.ComputeFileHash(path)
	if err != nil {
		return err
	}
	if err := binary.Write(mainHasher, binary.LittleEndian, hash); err != nil {
		return zerr.Wrap(err, "failed to write hash to digest")
	}
	return nil
}
