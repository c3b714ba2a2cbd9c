package domain

import (
	"strings"

	"go.trai.ch/zerr"
)

// Compression identifies the codec wrapping a tar stream.
type Compression string

const (
	// CompressionNone is a plain tar stream.
	CompressionNone Compression = "none"
	// CompressionGzip wraps the tar stream in gzip.
	CompressionGzip Compression = "gzip"
	// CompressionZstd wraps the tar stream in zstd.
	CompressionZstd Compression = "zstd"
	// CompressionLZ4 wraps the tar stream in an LZ4 frame.
	CompressionLZ4 Compression = "lz4"
)

// ParseCompression converts a configuration value to a Compression.
// The empty string maps to def.
func ParseCompression(s string, def Compression) (Compression, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return def, nil
	case "none", "tar":
		return CompressionNone, nil
	case "gzip", "gz", "tgz":
		return CompressionGzip, nil
	case "zstd", "zst":
		return CompressionZstd, nil
	case "lz4":
		return CompressionLZ4, nil
	default:
		return "", zerr.With(zerr.Wrap(ErrUnknownCompression, "unsupported codec"), "compression", s)
	}
}

// Extension returns the file suffix used for an archive with this compression.
func (c Compression) Extension() string {
	switch c {
	case CompressionGzip, "":
		return ".tar.gz"
	case CompressionZstd:
		return ".tar.zst"
	case CompressionLZ4:
		return ".tar.lz4"
	default:
		return ".tar"
	}
}

func (c Compression) String() string {
	if c == "" {
		return string(CompressionGzip)
	}
	return string(c)
}
