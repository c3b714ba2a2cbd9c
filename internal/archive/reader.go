package archive

import (
	"archive/tar"
	"errors"
	"io"

	"go.trai.ch/dockyard/internal/core/domain"
)

// Entry is one header of a tar stream with its normalised metadata.
type Entry struct {
	domain.ArchiveEntry
	// Header is the header as read, used verbatim when the entry is copied to another archive.
	Header *tar.Header
}

// Reader is a forward-only reader of archive entries.
// The content of the current entry is read through Read until the next call to Next.
type Reader struct {
	name string
	src  io.ReadCloser
	tr   *tar.Reader
	cur  string
}

// NewReader opens the (possibly compressed) tar stream r.
// name identifies the stream in errors.
func NewReader(r io.Reader, name string) (*Reader, error) {
	src, _, err := Decompress(r)
	if err != nil {
		return nil, &domain.FormatError{Path: name, Err: err}
	}
	return &Reader{
		name: name,
		src:  src,
		tr:   tar.NewReader(src),
	}, nil
}

// Next advances to the next entry. It returns io.EOF at the end of the archive.
// PAX global headers are consumed silently.
func (r *Reader) Next() (*Entry, error) {
	r.cur = ""
	for {
		hdr, err := r.tr.Next()
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		if err != nil {
			return nil, r.formatError(err)
		}
		if hdr.Typeflag == tar.TypeXGlobalHeader {
			continue
		}
		r.cur = hdr.Name
		return &Entry{ArchiveEntry: EntryFromHeader(hdr), Header: hdr}, nil
	}
}

// Read reads content of the current entry.
func (r *Reader) Read(p []byte) (int, error) {
	n, err := r.tr.Read(p)
	if err != nil && !errors.Is(err, io.EOF) {
		return n, r.formatError(err)
	}
	return n, err
}

// Close releases the decompressor.
func (r *Reader) Close() error {
	return r.src.Close()
}

func (r *Reader) formatError(err error) error {
	path := r.name
	if r.cur != "" {
		path = r.name + ":" + r.cur
	}
	return &domain.FormatError{Path: path, Err: err}
}

// EntryFromHeader extracts the diff-relevant metadata of hdr.
func EntryFromHeader(hdr *tar.Header) domain.ArchiveEntry {
	return domain.ArchiveEntry{
		Path:       domain.NormalizeEntryPath(hdr.Name),
		Kind:       kindOf(hdr.Typeflag),
		Size:       hdr.Size,
		ModTime:    hdr.ModTime,
		LinkTarget: hdr.Linkname,
	}
}

func kindOf(flag byte) domain.EntryKind {
	switch flag {
	case tar.TypeReg, tar.TypeGNUSparse:
		return domain.KindFile
	case tar.TypeDir:
		return domain.KindDirectory
	case tar.TypeSymlink:
		return domain.KindSymlink
	case tar.TypeLink:
		return domain.KindHardlink
	default:
		return domain.KindOther
	}
}
