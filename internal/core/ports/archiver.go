package ports

import (
	"context"
	"io"

	"go.trai.ch/dockyard/internal/core/domain"
)

// Archiver converts directory trees to and from tar streams.
//
//go:generate go run go.uber.org/mock/mockgen -source=archiver.go -destination=mocks/mock_archiver.go -package=mocks
type Archiver interface {
	// Pack writes the tree rooted at dir to w as a tar stream compressed with codec.
	// Entry names are relative to dir.
	Pack(ctx context.Context, dir string, w io.Writer, codec domain.Compression) error

	// Unpack extracts the (possibly compressed) tar stream r into dir.
	// Existing files not present in the archive are left in place.
	Unpack(ctx context.Context, r io.Reader, dir string) error
}
