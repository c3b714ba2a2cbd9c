package domain

import (
	"path"
	"strings"
	"time"
)

// EntryKind is the filesystem type of an archive entry.
type EntryKind uint8

const (
	// KindFile is a regular file.
	KindFile EntryKind = iota + 1
	// KindDirectory is a directory.
	KindDirectory
	// KindSymlink is a symbolic link.
	KindSymlink
	// KindHardlink is a hard link to another entry of the same archive.
	KindHardlink
	// KindOther covers devices, FIFOs and anything else a container export may carry.
	KindOther
)

func (k EntryKind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindDirectory:
		return "directory"
	case KindSymlink:
		return "symlink"
	case KindHardlink:
		return "hardlink"
	case KindOther:
		return "other"
	default:
		return "unknown"
	}
}

// ArchiveEntry is the metadata of one path in an archive.
// Content is not part of the entry; readers stream it separately.
type ArchiveEntry struct {
	// Path is the normalised identity of the entry (see NormalizeEntryPath).
	Path       string
	Kind       EntryKind
	Size       int64
	ModTime    time.Time
	LinkTarget string
}

// Fingerprint returns the tuple used to decide whether two same-path entries are equal.
func (e ArchiveEntry) Fingerprint() Fingerprint {
	return Fingerprint{Kind: e.Kind, Size: e.Size, ModTime: e.ModTime}
}

// Fingerprint is the metadata used for change detection: kind, size and modification time.
// Content is never compared, so a change that preserves size and mtime goes unnoticed.
type Fingerprint struct {
	Kind    EntryKind
	Size    int64
	ModTime time.Time
}

// Equal reports whether f and o describe the same entry.
func (f Fingerprint) Equal(o Fingerprint) bool {
	return f.Kind == o.Kind && f.Size == o.Size && f.ModTime.Equal(o.ModTime)
}

// NormalizeEntryPath maps the spellings a tar producer may use for one path
// ("./a/b", "/a/b", "a/b/", "a//b") to a single identity ("a/b").
// The archive root maps to ".".
func NormalizeEntryPath(name string) string {
	p := path.Clean("/" + strings.ReplaceAll(name, "\\", "/"))
	p = strings.TrimPrefix(p, "/")
	if p == "" {
		return "."
	}
	return p
}

// ParentPaths returns the normalised ancestors of p, outermost first, excluding the root.
func ParentPaths(p string) []string {
	var parents []string
	for dir := path.Dir(p); dir != "." && dir != "/"; dir = path.Dir(dir) {
		parents = append(parents, dir)
	}
	for i, j := 0, len(parents)-1; i < j; i, j = i+1, j-1 {
		parents[i], parents[j] = parents[j], parents[i]
	}
	return parents
}

// DiffStats summarises a diff run.
type DiffStats struct {
	BaseEntries   int
	TargetEntries int
	Emitted       int
	Synthesized   int
	BytesCopied   int64
}
