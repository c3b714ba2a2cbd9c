package archive

import (
	"archive/tar"
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/google/renameio/v2"
	"go.trai.ch/dockyard/internal/core/domain"
	"go.trai.ch/zerr"
)

// Archiver implements ports.Archiver for directory trees on the local filesystem.
type Archiver struct{}

// NewArchiver creates a new Archiver.
func NewArchiver() *Archiver {
	return &Archiver{}
}

// Pack writes dir to w as a tar stream compressed with codec.
// Files, directories and symlinks are archived; other file types are skipped.
func (a *Archiver) Pack(ctx context.Context, dir string, w io.Writer, codec domain.Compression) error {
	cw, err := Compress(w, codec)
	if err != nil {
		return err
	}
	tw := tar.NewWriter(cw)

	walkErr := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		return packEntry(tw, p, filepath.ToSlash(rel), d)
	})
	if walkErr != nil {
		_ = cw.Close()
		return zerr.With(zerr.Wrap(walkErr, "failed to pack directory"), "dir", dir)
	}

	if err := tw.Close(); err != nil {
		_ = cw.Close()
		return zerr.Wrap(err, "failed to finish tar stream")
	}
	if err := cw.Close(); err != nil {
		return zerr.Wrap(err, "failed to flush compressed stream")
	}
	return nil
}

func packEntry(tw *tar.Writer, p, name string, d fs.DirEntry) error {
	info, err := d.Info()
	if err != nil {
		return err
	}

	var link string
	switch {
	case info.Mode()&fs.ModeSymlink != 0:
		if link, err = os.Readlink(p); err != nil {
			return err
		}
	case info.IsDir(), info.Mode().IsRegular():
	default:
		return nil
	}

	hdr, err := tar.FileInfoHeader(info, link)
	if err != nil {
		return err
	}
	hdr.Name = name
	if info.IsDir() {
		hdr.Name += "/"
	}
	// Ownership is not portable between the machine that builds and the one that restores.
	hdr.Uid, hdr.Gid = 0, 0
	hdr.Uname, hdr.Gname = "", ""

	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return nil
	}

	f, err := os.Open(p)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(tw, f)
	return err
}

// Unpack extracts the tar stream r into dir, creating dir if needed.
// Entries that would land outside dir are rejected with domain.ErrUnsafePath.
// Regular files are replaced atomically; files already in dir but not in the archive are kept.
func (a *Archiver) Unpack(ctx context.Context, r io.Reader, dir string) error {
	ar, err := NewReader(r, dir)
	if err != nil {
		return err
	}
	defer ar.Close()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return zerr.With(zerr.Wrap(err, "failed to create output directory"), "dir", dir)
	}

	type dirTimes struct {
		path  string
		mtime time.Time
	}
	var dirs []dirTimes

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		entry, err := ar.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}

		target, err := safeTarget(dir, entry.Header.Name)
		if err != nil {
			return err
		}
		if target == "" {
			continue
		}

		if err := extractEntry(dir, target, entry, ar); err != nil {
			return zerr.With(zerr.Wrap(err, "failed to extract entry"), "entry", entry.Header.Name)
		}
		if entry.Kind == domain.KindDirectory {
			dirs = append(dirs, dirTimes{path: target, mtime: entry.ModTime})
		}
	}

	// Children were written after their directories, so directory mtimes are restored last.
	for _, d := range slices.Backward(dirs) {
		_ = os.Chtimes(d.path, d.mtime, d.mtime)
	}
	return nil
}

func extractEntry(root, target string, entry *Entry, content io.Reader) error {
	hdr := entry.Header
	mode := fs.FileMode(hdr.Mode).Perm()

	switch entry.Kind {
	case domain.KindDirectory:
		if err := os.MkdirAll(target, 0o755); err != nil {
			return err
		}
		return os.Chmod(target, mode|0o700)
	case domain.KindFile:
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		return writeFile(target, content, mode, hdr.ModTime)
	case domain.KindSymlink:
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		return renameio.Symlink(hdr.Linkname, target)
	case domain.KindHardlink:
		source, err := safeTarget(root, hdr.Linkname)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		_ = os.Remove(target)
		return os.Link(source, target)
	default:
		// Device nodes and FIFOs need privileges a build cache does not have.
		return nil
	}
}

func writeFile(target string, r io.Reader, mode fs.FileMode, mtime time.Time) error {
	t, err := renameio.TempFile("", target)
	if err != nil {
		return err
	}
	defer func() { _ = t.Cleanup() }()

	if _, err := io.Copy(t, r); err != nil {
		return err
	}
	if err := t.Chmod(mode); err != nil {
		return err
	}
	if err := t.CloseAtomicallyReplace(); err != nil {
		return err
	}
	return os.Chtimes(target, mtime, mtime)
}

// safeTarget maps an entry name to a path under root.
// It returns "" for the archive root itself.
func safeTarget(root, name string) (string, error) {
	clean := path.Clean(strings.ReplaceAll(name, "\\", "/"))
	clean = strings.TrimPrefix(clean, "/")
	if clean == "." || clean == "" {
		return "", nil
	}
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return "", zerr.With(zerr.Wrap(domain.ErrUnsafePath, "archive entry escapes output directory"), "entry", name)
	}

	// A symlink extracted earlier must not redirect later entries outside root.
	cur := root
	parts := strings.Split(clean, "/")
	for _, part := range parts[:len(parts)-1] {
		cur = filepath.Join(cur, part)
		fi, err := os.Lstat(cur)
		if errors.Is(err, fs.ErrNotExist) {
			break
		}
		if err != nil {
			return "", err
		}
		if fi.Mode()&fs.ModeSymlink != 0 {
			return "", zerr.With(zerr.Wrap(domain.ErrUnsafePath, "archive entry traverses a symlink"), "entry", name)
		}
	}
	return filepath.Join(root, filepath.FromSlash(clean)), nil
}
