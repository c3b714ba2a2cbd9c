// Package tardiff computes the additive difference between two tar snapshots of a filesystem.
package tardiff

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/renameio/v2"
	"go.trai.ch/dockyard/internal/archive"
	"go.trai.ch/dockyard/internal/core/domain"
	"go.trai.ch/zerr"
)

// syntheticDirMode is the mode of ancestor directories the target never declared.
const syntheticDirMode = 0o755

// Engine diffs archives. It holds no state between calls and is safe for concurrent use.
type Engine struct{}

// New creates a new Engine.
func New() *Engine {
	return &Engine{}
}

// Diff writes to out a plain tar stream holding every entry of target that is new or
// whose fingerprint differs from the same path in base, preceded by the ancestor
// directories needed to extract it. Headers and content are copied verbatim.
// A hard link that is written brings the entry it links to along, changed or not, so
// the result always extracts.
//
// Both inputs may be compressed. Entries removed in target are not represented.
// Change detection compares kind, size and modification time only.
//
// target is spooled to a temporary file because it is read twice. Both inputs are
// read in full before the first byte reaches out, so a malformed or truncated input
// leaves out untouched. Failures writing to out itself can still leave a partial
// stream; DiffFiles never publishes one.
func (e *Engine) Diff(ctx context.Context, base, target io.Reader, out io.Writer) (domain.DiffStats, error) {
	spool, err := os.CreateTemp("", "dockyard-diff-*")
	if err != nil {
		return domain.DiffStats{}, zerr.Wrap(err, "failed to create target spool")
	}
	defer func() {
		_ = spool.Close()
		_ = os.Remove(spool.Name())
	}()

	size, err := io.Copy(spool, target)
	if err != nil {
		return domain.DiffStats{}, zerr.Wrap(err, "failed to spool target archive")
	}
	open := func() (io.ReadCloser, error) {
		return io.NopCloser(io.NewSectionReader(spool, 0, size)), nil
	}
	return e.diff(ctx, source{base, "base"}, open, "target", out)
}

// source is an input archive and the name it is reported under in errors.
type source struct {
	r    io.Reader
	name string
}

// opener returns a fresh reader of an archive from its first byte.
type opener func() (io.ReadCloser, error)

func (e *Engine) diff(ctx context.Context, base source, openTarget opener, targetName string, out io.Writer) (domain.DiffStats, error) {
	var stats domain.DiffStats

	index, err := indexBase(ctx, base, &stats)
	if err != nil {
		return stats, err
	}

	linked, err := linkedEntries(ctx, index, openTarget, targetName)
	if err != nil {
		return stats, err
	}

	target, err := openTarget()
	if err != nil {
		return stats, zerr.With(zerr.Wrap(err, "failed to open target archive"), "path", targetName)
	}
	defer target.Close()

	tr, err := archive.NewReader(target, targetName)
	if err != nil {
		return stats, err
	}
	defer tr.Close()

	d := &differ{
		tw:      tar.NewWriter(out),
		stats:   &stats,
		emitted: make(map[string]bool),
		dirs:    make(map[string]*tar.Header),
	}

	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		entry, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return stats, err
		}
		stats.TargetEntries++

		if entry.Kind == domain.KindDirectory {
			d.dirs[entry.Path] = entry.Header
		}

		if !changed(index, entry.ArchiveEntry) && !linked[entry.Path] {
			continue
		}

		if err := d.emit(entry, tr); err != nil {
			return stats, err
		}
	}

	if err := d.tw.Close(); err != nil {
		return stats, zerr.Wrap(err, "failed to finish diff archive")
	}
	return stats, nil
}

func changed(index map[string]domain.Fingerprint, entry domain.ArchiveEntry) bool {
	fp, ok := index[entry.Path]
	return !ok || !fp.Equal(entry.Fingerprint())
}

// linkedEntries reads target once and returns the paths that hard links about to be
// emitted point at, following chains of links. A link whose target is not in the
// archive is a *domain.FormatError.
func linkedEntries(ctx context.Context, index map[string]domain.Fingerprint, openTarget opener, targetName string) (map[string]bool, error) {
	target, err := openTarget()
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, "failed to open target archive"), "path", targetName)
	}
	defer target.Close()

	tr, err := archive.NewReader(target, targetName)
	if err != nil {
		return nil, err
	}
	defer tr.Close()

	present := make(map[string]bool)
	links := make(map[string]string)
	var emittedLinks []string
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		entry, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		present[entry.Path] = true
		if entry.Kind != domain.KindHardlink {
			continue
		}
		links[entry.Path] = domain.NormalizeEntryPath(entry.LinkTarget)
		if changed(index, entry.ArchiveEntry) {
			emittedLinks = append(emittedLinks, entry.Path)
		}
	}

	linked := make(map[string]bool)
	for _, link := range emittedLinks {
		for p := links[link]; !linked[p]; p = links[p] {
			if !present[p] {
				return nil, &domain.FormatError{
					Path: targetName,
					Err:  fmt.Errorf("hard link %s points at %s, which is not in the archive", link, p),
				}
			}
			linked[p] = true
			if _, ok := links[p]; !ok {
				break
			}
		}
	}
	return linked, nil
}

func indexBase(ctx context.Context, base source, stats *domain.DiffStats) (map[string]domain.Fingerprint, error) {
	br, err := archive.NewReader(base.r, base.name)
	if err != nil {
		return nil, err
	}
	defer br.Close()

	index := make(map[string]domain.Fingerprint)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		entry, err := br.Next()
		if errors.Is(err, io.EOF) {
			return index, nil
		}
		if err != nil {
			return nil, err
		}
		stats.BaseEntries++
		// Later duplicates win, as they do on extraction.
		index[entry.Path] = entry.Fingerprint()
	}
}

type differ struct {
	tw      *tar.Writer
	stats   *domain.DiffStats
	emitted map[string]bool
	// dirs holds the directory headers of target seen so far, by normalised path.
	dirs map[string]*tar.Header
}

func (d *differ) emit(entry *archive.Entry, content io.Reader) error {
	for _, parent := range domain.ParentPaths(entry.Path) {
		if d.emitted[parent] {
			continue
		}
		hdr, ok := d.dirs[parent]
		if !ok {
			hdr = syntheticDir(parent)
			d.stats.Synthesized++
		}
		if err := d.writeHeader(parent, hdr); err != nil {
			return err
		}
	}

	if err := d.writeHeader(entry.Path, entry.Header); err != nil {
		return err
	}
	if entry.Header.Size == 0 {
		return nil
	}
	n, err := io.Copy(d.tw, content)
	d.stats.BytesCopied += n
	if err != nil {
		var formatErr *domain.FormatError
		if errors.As(err, &formatErr) {
			return err
		}
		return zerr.With(zerr.Wrap(err, "failed to copy entry content"), "entry", entry.Header.Name)
	}
	return nil
}

func (d *differ) writeHeader(p string, hdr *tar.Header) error {
	if err := d.tw.WriteHeader(hdr); err != nil {
		return zerr.With(zerr.Wrap(err, "failed to write diff entry"), "entry", hdr.Name)
	}
	d.emitted[p] = true
	d.stats.Emitted++
	return nil
}

func syntheticDir(p string) *tar.Header {
	return &tar.Header{
		Name:     p + "/",
		Typeflag: tar.TypeDir,
		Mode:     syntheticDirMode,
		ModTime:  time.Unix(0, 0),
	}
}

// DiffFiles diffs the archive files at basePath and targetPath into outPath, compressed
// with codec. The target file is read twice instead of being spooled.
// The output file only appears once the whole diff has been written.
func (e *Engine) DiffFiles(ctx context.Context, basePath, targetPath, outPath string, codec domain.Compression) (domain.DiffStats, error) {
	base, err := os.Open(basePath)
	if err != nil {
		return domain.DiffStats{}, zerr.With(zerr.Wrap(err, "failed to open base archive"), "path", basePath)
	}
	defer base.Close()

	if _, err := os.Stat(targetPath); err != nil {
		return domain.DiffStats{}, zerr.With(zerr.Wrap(err, "failed to open target archive"), "path", targetPath)
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return domain.DiffStats{}, zerr.With(zerr.Wrap(err, "failed to create output directory"), "path", outPath)
	}
	pending, err := renameio.TempFile("", outPath)
	if err != nil {
		return domain.DiffStats{}, zerr.With(zerr.Wrap(err, "failed to create output file"), "path", outPath)
	}
	defer func() { _ = pending.Cleanup() }()

	cw, err := archive.Compress(pending, codec)
	if err != nil {
		return domain.DiffStats{}, err
	}

	openTarget := func() (io.ReadCloser, error) {
		return os.Open(targetPath)
	}
	stats, err := e.diff(ctx, source{base, basePath}, openTarget, targetPath, cw)
	if err != nil {
		_ = cw.Close()
		return stats, err
	}
	if err := cw.Close(); err != nil {
		return stats, zerr.Wrap(err, "failed to flush diff output")
	}
	if err := pending.Chmod(0o644); err != nil {
		return stats, zerr.Wrap(err, "failed to set diff output mode")
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return stats, zerr.With(zerr.Wrap(err, "failed to publish diff output"), "path", outPath)
	}
	return stats, nil
}
