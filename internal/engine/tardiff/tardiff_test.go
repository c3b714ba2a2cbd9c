package tardiff_test

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/dockyard/internal/archive"
	"go.trai.ch/dockyard/internal/core/domain"
	"go.trai.ch/dockyard/internal/engine/tardiff"
)

var (
	t1 = time.Unix(1700000000, 0)
	t2 = time.Unix(1700000500, 0)
)

func dir(name string, mtime time.Time) *tar.Header {
	return &tar.Header{Name: name, Typeflag: tar.TypeDir, Mode: 0o755, ModTime: mtime}
}

func file(name string, size int64, mtime time.Time) *tar.Header {
	return &tar.Header{Name: name, Typeflag: tar.TypeReg, Mode: 0o644, Size: size, ModTime: mtime}
}

func symlink(name, target string, mtime time.Time) *tar.Header {
	return &tar.Header{Name: name, Typeflag: tar.TypeSymlink, Linkname: target, ModTime: mtime}
}

func hardlink(name, target string, mtime time.Time) *tar.Header {
	return &tar.Header{Name: name, Typeflag: tar.TypeLink, Linkname: target, Mode: 0o644, ModTime: mtime}
}

func buildTar(t *testing.T, headers ...*tar.Header) []byte {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for _, hdr := range headers {
		require.NoError(t, tw.WriteHeader(hdr))
		if hdr.Typeflag == tar.TypeReg && hdr.Size > 0 {
			_, err := tw.Write(bytes.Repeat([]byte{byte('a' + len(hdr.Name)%26)}, int(hdr.Size)))
			require.NoError(t, err)
		}
	}
	require.NoError(t, tw.Close())
	return buf.Bytes()
}

type emitted struct {
	name    string
	kind    domain.EntryKind
	size    int64
	mtime   time.Time
	content string
}

func runDiff(t *testing.T, base, target []byte) ([]emitted, domain.DiffStats) {
	t.Helper()
	var out bytes.Buffer
	stats, err := tardiff.New().Diff(context.Background(), bytes.NewReader(base), bytes.NewReader(target), &out)
	require.NoError(t, err)
	return readEntries(t, out.Bytes()), stats
}

func readEntries(t *testing.T, data []byte) []emitted {
	t.Helper()
	r, err := archive.NewReader(bytes.NewReader(data), "diff")
	require.NoError(t, err)
	defer r.Close()

	var entries []emitted
	for {
		e, err := r.Next()
		if errors.Is(err, io.EOF) {
			return entries
		}
		require.NoError(t, err)
		content, err := io.ReadAll(r)
		require.NoError(t, err)
		entries = append(entries, emitted{
			name:    e.Header.Name,
			kind:    e.Kind,
			size:    e.Size,
			mtime:   e.ModTime,
			content: string(content),
		})
	}
}

func names(entries []emitted) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.name)
	}
	return out
}

func TestDiff_ConcreteScenario(t *testing.T) {
	base := buildTar(t,
		dir("/a/", t1),
		file("/a/x.txt", 3, t1),
	)
	target := buildTar(t,
		dir("/a/", t1),
		file("/a/x.txt", 3, t1),
		file("/a/y.txt", 5, t2),
	)

	entries, stats := runDiff(t, base, target)

	require.Equal(t, []string{"/a/", "/a/y.txt"}, names(entries))
	assert.Equal(t, domain.KindDirectory, entries[0].kind)
	assert.Equal(t, int64(5), entries[1].size)
	assert.True(t, t2.Equal(entries[1].mtime))

	assert.Equal(t, 2, stats.BaseEntries)
	assert.Equal(t, 3, stats.TargetEntries)
	assert.Equal(t, 2, stats.Emitted)
	assert.Equal(t, 0, stats.Synthesized)
	assert.Equal(t, int64(5), stats.BytesCopied)
}

func TestDiff_Idempotence(t *testing.T) {
	archives := map[string][]byte{
		"empty": buildTar(t),
		"flat":  buildTar(t, file("a.txt", 1, t1), file("b.txt", 2, t2)),
		"nested": buildTar(t,
			dir("./usr/", t1),
			dir("./usr/bin/", t1),
			file("./usr/bin/tool", 10, t1),
			symlink("./usr/bin/alias", "tool", t1),
		),
		"implicit parents": buildTar(t, file("deep/er/file", 4, t2)),
	}

	for name, a := range archives {
		t.Run(name, func(t *testing.T) {
			entries, stats := runDiff(t, a, a)
			assert.Empty(t, entries)
			assert.Equal(t, 0, stats.Emitted)
		})
	}
}

func TestDiff_Additivity(t *testing.T) {
	base := buildTar(t,
		dir("etc/", t1),
		file("etc/hosts", 10, t1),
		dir("opt/", t1),
		dir("opt/app/", t1),
	)
	target := buildTar(t,
		dir("etc/", t1),
		file("etc/hosts", 10, t1),
		dir("opt/", t1),
		dir("opt/app/", t1),
		file("opt/app/new.bin", 7, t2),
	)

	entries, _ := runDiff(t, base, target)
	require.Equal(t, []string{"opt/", "opt/app/", "opt/app/new.bin"}, names(entries))
	assert.Len(t, entries[2].content, 7)
}

func TestDiff_ChangeDetection(t *testing.T) {
	tests := []struct {
		name   string
		target *tar.Header
		want   bool
	}{
		{"identical", file("f.txt", 3, t1), false},
		{"size changed", file("f.txt", 4, t1), true},
		{"mtime changed", file("f.txt", 3, t2), true},
		{"became directory", dir("f.txt/", t1), true},
		{"became symlink", symlink("f.txt", "elsewhere", t1), true},
		{"spelling differs", file("./f.txt", 3, t1), false},
	}

	base := buildTar(t, file("f.txt", 3, t1))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries, _ := runDiff(t, base, buildTar(t, tt.target))
			if tt.want {
				require.Len(t, entries, 1)
				assert.Equal(t, tt.target.Name, entries[0].name)
			} else {
				assert.Empty(t, entries)
			}
		})
	}
}

func TestDiff_SynthesizesMissingParents(t *testing.T) {
	target := buildTar(t,
		file("a/b/one.txt", 1, t2),
		file("a/b/two.txt", 2, t2),
		file("a/c/three.txt", 3, t2),
	)

	entries, stats := runDiff(t, buildTar(t), target)

	require.Equal(t, []string{"a/", "a/b/", "a/b/one.txt", "a/b/two.txt", "a/c/", "a/c/three.txt"}, names(entries))
	assert.Equal(t, 3, stats.Synthesized)
	assert.Equal(t, domain.KindDirectory, entries[0].kind)
	assert.True(t, time.Unix(0, 0).Equal(entries[0].mtime))
}

func TestDiff_UsesTargetDirectoryHeaders(t *testing.T) {
	base := buildTar(t, dir("data/", t1))
	target := buildTar(t,
		dir("data/", t1),
		&tar.Header{Name: "data/logs/", Typeflag: tar.TypeDir, Mode: 0o700, ModTime: t1},
		file("data/logs/today.log", 9, t2),
	)

	var out bytes.Buffer
	_, err := tardiff.New().Diff(context.Background(), bytes.NewReader(base), bytes.NewReader(target), &out)
	require.NoError(t, err)

	tr := tar.NewReader(&out)
	var headers []*tar.Header
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		headers = append(headers, hdr)
	}

	require.Len(t, headers, 3)
	assert.Equal(t, "data/", headers[0].Name)
	assert.True(t, t1.Equal(headers[0].ModTime))
	assert.Equal(t, "data/logs/", headers[1].Name)
	assert.Equal(t, int64(0o700), headers[1].Mode)
	assert.Equal(t, "data/logs/today.log", headers[2].Name)
}

func TestDiff_DeletionsNotRepresented(t *testing.T) {
	base := buildTar(t, file("gone.txt", 1, t1), file("kept.txt", 1, t1))
	target := buildTar(t, file("kept.txt", 1, t1))

	entries, _ := runDiff(t, base, target)
	assert.Empty(t, entries)
}

func TestDiff_EmptyTarget(t *testing.T) {
	base := buildTar(t, file("a", 1, t1))

	var out bytes.Buffer
	_, err := tardiff.New().Diff(context.Background(), bytes.NewReader(base), bytes.NewReader(nil), &out)
	require.NoError(t, err)
	assert.Empty(t, readEntries(t, out.Bytes()))
}

func TestDiff_CompressedInputs(t *testing.T) {
	compress := func(data []byte, codec domain.Compression) []byte {
		var buf bytes.Buffer
		w, err := archive.Compress(&buf, codec)
		require.NoError(t, err)
		_, err = w.Write(data)
		require.NoError(t, err)
		require.NoError(t, w.Close())
		return buf.Bytes()
	}

	base := buildTar(t, file("a", 1, t1))
	target := buildTar(t, file("a", 1, t1), file("b", 2, t2))

	entries, _ := runDiff(t, compress(base, domain.CompressionGzip), compress(target, domain.CompressionZstd))
	assert.Equal(t, []string{"b"}, names(entries))
}

func TestDiff_MalformedInput(t *testing.T) {
	valid := buildTar(t, file("a", 100, t1), file("b", 100, t1))
	tests := map[string]struct {
		base, target []byte
	}{
		"garbage base":     {[]byte("not a tar file"), valid},
		"garbage target":   {valid, bytes.Repeat([]byte{0xde, 0xad}, 600)},
		"truncated target": {buildTar(t), valid[:600]},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := tardiff.New().Diff(context.Background(), bytes.NewReader(tt.base), bytes.NewReader(tt.target), io.Discard)
			var formatErr *domain.FormatError
			require.ErrorAs(t, err, &formatErr)
			assert.ErrorIs(t, err, domain.ErrDiffFormat)
		})
	}
}

func TestDiffFiles(t *testing.T) {
	dirPath := t.TempDir()
	basePath := filepath.Join(dirPath, "base.tar")
	targetPath := filepath.Join(dirPath, "target.tar.gz")
	outPath := filepath.Join(dirPath, "out", "diff.tar.zst")

	require.NoError(t, os.WriteFile(basePath, buildTar(t, file("a", 1, t1)), 0o644))

	var gz bytes.Buffer
	w, err := archive.Compress(&gz, domain.CompressionGzip)
	require.NoError(t, err)
	_, err = w.Write(buildTar(t, file("a", 1, t1), file("b", 2, t2)))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, os.WriteFile(targetPath, gz.Bytes(), 0o644))

	stats, err := tardiff.New().DiffFiles(context.Background(), basePath, targetPath, outPath, domain.CompressionZstd)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Emitted)

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.Equal(t, domain.CompressionZstd, archive.Detect(data))
	assert.Equal(t, []string{"b"}, names(readEntries(t, data)))
}

func TestDiffFiles_NoPartialOutput(t *testing.T) {
	dirPath := t.TempDir()
	basePath := filepath.Join(dirPath, "base.tar")
	targetPath := filepath.Join(dirPath, "target.tar")
	outPath := filepath.Join(dirPath, "diff.tar")

	require.NoError(t, os.WriteFile(basePath, buildTar(t), 0o644))
	valid := buildTar(t, file("a", 2000, t1), file("b", 2000, t1))
	require.NoError(t, os.WriteFile(targetPath, valid[:2600], 0o644))

	_, err := tardiff.New().DiffFiles(context.Background(), basePath, targetPath, outPath, domain.CompressionNone)

	var formatErr *domain.FormatError
	require.ErrorAs(t, err, &formatErr)
	assert.Contains(t, formatErr.Path, targetPath)
	assert.NoFileExists(t, outPath)

	entries, err := os.ReadDir(dirPath)
	require.NoError(t, err)
	assert.Len(t, entries, 2, "no temporary files may be left behind")
}

func TestDiff_HardlinkBringsUnchangedTarget(t *testing.T) {
	base := buildTar(t, dir("a/", t1), file("a/f", 4, t1))
	target := buildTar(t, dir("a/", t1), file("a/f", 4, t1), hardlink("a/h", "a/f", t2))

	var out bytes.Buffer
	stats, err := tardiff.New().Diff(context.Background(), bytes.NewReader(base), bytes.NewReader(target), &out)
	require.NoError(t, err)

	entries := readEntries(t, out.Bytes())
	assert.Equal(t, []string{"a/", "a/f", "a/h"}, names(entries))
	assert.Equal(t, 3, stats.Emitted)

	dest := t.TempDir()
	require.NoError(t, archive.NewArchiver().Unpack(context.Background(), bytes.NewReader(out.Bytes()), dest))
	linked, err := os.ReadFile(filepath.Join(dest, "a", "h"))
	require.NoError(t, err)
	assert.Equal(t, "dddd", string(linked))
}

func TestDiff_HardlinkChain(t *testing.T) {
	base := buildTar(t, file("f", 2, t1), hardlink("g", "f", t1))
	target := buildTar(t, file("f", 2, t1), hardlink("g", "f", t1), hardlink("h", "./g", t2))

	entries, _ := runDiff(t, base, target)
	assert.Equal(t, []string{"f", "g", "h"}, names(entries))
}

func TestDiff_UnchangedHardlinkLeavesTargetOut(t *testing.T) {
	base := buildTar(t, file("f", 2, t1), hardlink("g", "f", t1))
	target := buildTar(t, file("f", 2, t1), hardlink("g", "f", t1), file("new", 1, t2))

	entries, _ := runDiff(t, base, target)
	assert.Equal(t, []string{"new"}, names(entries))
}

func TestDiff_HardlinkToMissingEntry(t *testing.T) {
	target := buildTar(t, hardlink("h", "gone", t2))

	var out bytes.Buffer
	_, err := tardiff.New().Diff(context.Background(), bytes.NewReader(buildTar(t)), bytes.NewReader(target), &out)

	var formatErr *domain.FormatError
	require.ErrorAs(t, err, &formatErr)
	assert.Contains(t, err.Error(), "gone")
	assert.Zero(t, out.Len())
}

func TestDiff_TruncatedTargetWritesNothing(t *testing.T) {
	valid := buildTar(t, file("a", 2000, t1), file("b", 2000, t1))

	var out bytes.Buffer
	_, err := tardiff.New().Diff(context.Background(), bytes.NewReader(buildTar(t)), bytes.NewReader(valid[:2600]), &out)

	require.ErrorIs(t, err, domain.ErrDiffFormat)
	assert.Zero(t, out.Len())
}

func TestDiffFiles_Hardlink(t *testing.T) {
	dirPath := t.TempDir()
	basePath := filepath.Join(dirPath, "base.tar")
	targetPath := filepath.Join(dirPath, "target.tar")
	outPath := filepath.Join(dirPath, "diff.tar")

	require.NoError(t, os.WriteFile(basePath, buildTar(t, file("f", 3, t1)), 0o644))
	require.NoError(t, os.WriteFile(targetPath, buildTar(t, file("f", 3, t1), hardlink("h", "f", t2)), 0o644))

	_, err := tardiff.New().DiffFiles(context.Background(), basePath, targetPath, outPath, domain.CompressionNone)
	require.NoError(t, err)

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.Equal(t, []string{"f", "h"}, names(readEntries(t, data)))
}
