package domain_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/dockyard/internal/core/domain"
)

func validSpec() domain.CacheSpec {
	return domain.CacheSpec{
		Name:         "app",
		HashCommand:  "echo abc123",
		BuildCommand: "make",
		OutputDir:    "out",
		Bucket:       "builds",
		KeyPrefix:    "prefix",
	}
}

func TestCacheSpec_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*domain.CacheSpec)
	}{
		{"missing hash", func(s *domain.CacheSpec) { s.HashCommand = "" }},
		{"blank build", func(s *domain.CacheSpec) { s.BuildCommand = "   " }},
		{"missing output", func(s *domain.CacheSpec) { s.OutputDir = "" }},
		{"missing bucket", func(s *domain.CacheSpec) { s.Bucket = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := validSpec()
			tt.mutate(&spec)
			err := spec.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrInvalidSpec)
		})
	}

	spec := validSpec()
	require.NoError(t, spec.Validate())
}

func TestCacheSpec_AddParameterCommand_Idempotent(t *testing.T) {
	spec := validSpec()
	spec.AddParameterCommand("uname -r")
	spec.AddParameterCommand("uname -m")
	spec.AddParameterCommand("uname -r")

	assert.Equal(t, []string{"uname -r", "uname -m"}, spec.ParameterCommands)
}

func TestCacheSpec_Keys(t *testing.T) {
	spec := validSpec()

	assert.Equal(t, "prefix/abc123", spec.MarkerKey("abc123", nil))
	assert.Equal(t, "prefix/6.1.0%20x86/abc123", spec.MarkerKey("abc123", []string{"6.1.0 x86"}))
	assert.Equal(t, "prefix/abc123.tar.gz", spec.ArtifactKey("prefix/abc123"))

	spec.KeyPrefix = "/nested/prefix/"
	spec.Compression = domain.CompressionZstd
	assert.Equal(t, "nested/prefix/abc123", spec.MarkerKey("abc123", nil))
	assert.Equal(t, "nested/prefix/abc123.tar.zst", spec.ArtifactKey("nested/prefix/abc123"))

	spec.KeyPrefix = ""
	assert.Equal(t, "abc123", spec.MarkerKey("abc123", nil))
}

func TestEscapeKeySegment(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"abc123", "abc123"},
		{"  abc123\n", "abc123"},
		{"a/b", "a%2Fb"},
		{`a\b`, "a%5Cb"},
		{"a b\tc", "a%20b%09c"},
		{"a_b", "a_b"},
		{"100%", "100%25"},
		{"", "%"},
		{"..", "%2E%2E"},
		{".", "%2E"},
		{"v1.2.3", "v1.2.3"},
		{"e3b0c442  -", "e3b0c442%20%20-"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, domain.EscapeKeySegment(tt.in))
		})
	}
}

func TestEscapeKeySegment_Distinct(t *testing.T) {
	values := []string{"v1/abc", "v1_abc", "v1 abc", "v1\\abc", "v1%2Fabc", "v1\tabc", "", ".", "..", "%", "%2E"}
	seen := make(map[string]string, len(values))
	for _, v := range values {
		got := domain.EscapeKeySegment(v)
		prev, dup := seen[got]
		assert.False(t, dup, "%q and %q both escape to %q", prev, v, got)
		seen[got] = v
		assert.NotContains(t, got, "/")
	}
}

func TestParseCompression(t *testing.T) {
	tests := []struct {
		in   string
		want domain.Compression
	}{
		{"", domain.CompressionGzip},
		{"gzip", domain.CompressionGzip},
		{"TGZ", domain.CompressionGzip},
		{"zst", domain.CompressionZstd},
		{"lz4", domain.CompressionLZ4},
		{"none", domain.CompressionNone},
		{"tar", domain.CompressionNone},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := domain.ParseCompression(tt.in, domain.CompressionGzip)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := domain.ParseCompression("bzip2", domain.CompressionGzip)
	require.ErrorIs(t, err, domain.ErrUnknownCompression)
}

func TestCompression_Extension(t *testing.T) {
	assert.Equal(t, ".tar.gz", domain.Compression("").Extension())
	assert.Equal(t, ".tar.gz", domain.CompressionGzip.Extension())
	assert.Equal(t, ".tar.zst", domain.CompressionZstd.Extension())
	assert.Equal(t, ".tar.lz4", domain.CompressionLZ4.Extension())
	assert.Equal(t, ".tar", domain.CompressionNone.Extension())
	assert.Equal(t, "gzip", domain.Compression("").String())
}

func TestMarker_Encoding(t *testing.T) {
	created := time.Date(2024, 5, 1, 12, 0, 0, 123, time.UTC)
	m := &domain.Marker{
		Version:     domain.MarkerVersion,
		CacheKey:    "abc123",
		ArtifactKey: "prefix/abc123.tar.gz",
		Compression: domain.CompressionGzip,
		Size:        42,
		Digest:      "blake3:00ff",
		Parameters:  map[string]string{"uname -r": "6.1.0"},
		CreatedAt:   created,
	}

	first, err := domain.EncodeMarker(m)
	require.NoError(t, err)
	second, err := domain.EncodeMarker(m)
	require.NoError(t, err)
	assert.Equal(t, first, second, "encoding must be deterministic")

	decoded, err := domain.DecodeMarker(first)
	require.NoError(t, err)
	assert.Equal(t, m.ArtifactKey, decoded.ArtifactKey)
	assert.Equal(t, m.Parameters, decoded.Parameters)
	assert.True(t, created.Equal(decoded.CreatedAt))

	_, err = domain.DecodeMarker([]byte("not cbor at all"))
	require.ErrorIs(t, err, domain.ErrMarkerDecode)
}

func TestCommandError(t *testing.T) {
	res := domain.CommandResult{ExitCode: 2, Stdout: []byte("out"), Stderr: []byte("boom\n")}

	err := error(domain.NewCommandError("false", res, nil))
	assert.ErrorIs(t, err, domain.ErrCommandFailed)
	assert.NotErrorIs(t, err, domain.ErrBuildFailed)
	assert.Contains(t, err.Error(), `"false" exited with status 2`)
	assert.Contains(t, err.Error(), "boom")

	buildErr := error(domain.NewBuildError("make", res, nil))
	assert.ErrorIs(t, buildErr, domain.ErrBuildFailed)
	assert.ErrorIs(t, buildErr, domain.ErrCommandFailed)

	var cmdErr *domain.CommandError
	require.ErrorAs(t, buildErr, &cmdErr)
	assert.Equal(t, 2, cmdErr.ExitCode)
	assert.Equal(t, "out", cmdErr.Stdout)

	cause := errors.New("exec: not found")
	launch := error(domain.NewCommandError("nope", domain.CommandResult{ExitCode: -1}, cause))
	assert.ErrorIs(t, launch, cause)
	assert.Contains(t, launch.Error(), "could not be started")

	killed := error(domain.NewBuildError("make", domain.CommandResult{ExitCode: 137, Signal: "killed"}, nil))
	assert.ErrorIs(t, killed, domain.ErrBuildFailed)
	assert.Contains(t, killed.Error(), `"make" killed by signal killed`)
	assert.NotContains(t, killed.Error(), "could not be started")
}

func TestStoreError(t *testing.T) {
	cause := errors.New("connection refused")
	err := domain.NewStoreError("put", "builds", "prefix/abc", cause)

	assert.ErrorIs(t, err, domain.ErrRemoteStore)
	assert.ErrorIs(t, err, cause)
	assert.Same(t, err, domain.NewStoreError("get", "other", "key", err))
	assert.NoError(t, domain.NewStoreError("put", "b", "k", nil))
}

func TestNormalizeEntryPath(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"a/b", "a/b"},
		{"./a/b", "a/b"},
		{"/a/b", "a/b"},
		{"a/b/", "a/b"},
		{"/a/", "a"},
		{"a//b", "a/b"},
		{"./", "."},
		{"", "."},
		{"../../etc/passwd", "etc/passwd"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, domain.NormalizeEntryPath(tt.in))
		})
	}
}

func TestParentPaths(t *testing.T) {
	assert.Equal(t, []string{"a", "a/b"}, domain.ParentPaths("a/b/c"))
	assert.Empty(t, domain.ParentPaths("a"))
}

func TestFingerprint_Equal(t *testing.T) {
	t1 := time.Unix(1000, 0)
	base := domain.Fingerprint{Kind: domain.KindFile, Size: 3, ModTime: t1}

	assert.True(t, base.Equal(domain.Fingerprint{Kind: domain.KindFile, Size: 3, ModTime: t1.In(time.FixedZone("x", 3600))}))
	assert.False(t, base.Equal(domain.Fingerprint{Kind: domain.KindFile, Size: 4, ModTime: t1}))
	assert.False(t, base.Equal(domain.Fingerprint{Kind: domain.KindDirectory, Size: 3, ModTime: t1}))
	assert.False(t, base.Equal(domain.Fingerprint{Kind: domain.KindFile, Size: 3, ModTime: t1.Add(time.Second)}))
}

func TestWorkspace_Lookup(t *testing.T) {
	ws := &domain.Workspace{
		Caches: []domain.CacheSpec{validSpec()},
		Diffs:  []domain.DiffSpec{{Name: "layer"}},
	}

	_, ok := ws.Cache("app")
	assert.True(t, ok)
	_, ok = ws.Cache("missing")
	assert.False(t, ok)
	_, ok = ws.Diff("layer")
	assert.True(t, ok)
}
