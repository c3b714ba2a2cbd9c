// Package archive reads and writes tar streams, optionally wrapped in gzip, zstd or lz4.
package archive

import (
	"bufio"
	"bytes"
	"errors"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"go.trai.ch/dockyard/internal/core/domain"
	"go.trai.ch/zerr"
)

var (
	gzipMagic = []byte{0x1f, 0x8b}
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
	lz4Magic  = []byte{0x04, 0x22, 0x4d, 0x18}
)

// sniffSize covers the longest magic number.
const sniffSize = 4

// Detect reports the compression of the stream by its leading bytes.
func Detect(head []byte) domain.Compression {
	switch {
	case bytes.HasPrefix(head, gzipMagic):
		return domain.CompressionGzip
	case bytes.HasPrefix(head, zstdMagic):
		return domain.CompressionZstd
	case bytes.HasPrefix(head, lz4Magic):
		return domain.CompressionLZ4
	default:
		return domain.CompressionNone
	}
}

// Decompress sniffs the compression of r and returns a reader of the plain tar stream.
// Closing the returned reader releases the decoder but never closes r.
func Decompress(r io.Reader) (io.ReadCloser, domain.Compression, error) {
	br := bufio.NewReader(r)
	head, err := br.Peek(sniffSize)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, "", err
	}

	codec := Detect(head)
	switch codec {
	case domain.CompressionGzip:
		zr, err := gzip.NewReader(br)
		if err != nil {
			return nil, codec, err
		}
		return zr, codec, nil
	case domain.CompressionZstd:
		dec, err := zstd.NewReader(br, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, codec, err
		}
		return dec.IOReadCloser(), codec, nil
	case domain.CompressionLZ4:
		return io.NopCloser(lz4.NewReader(br)), codec, nil
	default:
		return io.NopCloser(br), codec, nil
	}
}

// Compress wraps w so that written bytes are encoded with codec.
// Close flushes the encoder but does not close w.
func Compress(w io.Writer, codec domain.Compression) (io.WriteCloser, error) {
	switch codec {
	case domain.CompressionGzip, "":
		return gzip.NewWriter(w), nil
	case domain.CompressionZstd:
		enc, err := zstd.NewWriter(w, zstd.WithEncoderConcurrency(1))
		if err != nil {
			return nil, zerr.Wrap(err, "failed to create zstd encoder")
		}
		return enc, nil
	case domain.CompressionLZ4:
		return lz4.NewWriter(w), nil
	case domain.CompressionNone:
		return nopWriteCloser{w}, nil
	default:
		return nil, zerr.With(zerr.Wrap(domain.ErrUnknownCompression, "unsupported codec"), "compression", string(codec))
	}
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }
