package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/dockyard/internal/adapters/config"
	"go.trai.ch/dockyard/internal/core/domain"
	"go.trai.ch/dockyard/internal/core/ports"
	"go.trai.ch/dockyard/internal/core/ports/mocks"
	"go.uber.org/mock/gomock"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), config.DefaultFilename)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	var _ ports.ConfigLoader = (*config.Loader)(nil)

	path := writeConfig(t, `
version: "1"
remote:
  kind: fs
  root: .dockyard/remote
caches:
  web:
    hash: git rev-parse HEAD:web
    build: make -C web dist
    output: web/dist
    bucket: artifacts
    prefix: /web/
    parameters: [uname -m, uname -m, "go env GOOS"]
  api:
    hash: sha256sum go.sum
    build: go build -o bin/api ./cmd/api
    output: bin
    bucket: artifacts
    compression: zstd
diffs:
  layer:
    base: images/base.tar
    target: images/app.tar.gz
    output: out/layer.tar
`)
	root := filepath.Dir(path)

	ws, err := config.NewLoader(nil).Load(path)
	require.NoError(t, err)

	assert.Equal(t, root, ws.Root)
	assert.Equal(t, domain.RemoteConfig{Kind: domain.RemoteFS, Root: filepath.Join(root, ".dockyard/remote")}, ws.Remote)

	require.Len(t, ws.Caches, 2)
	assert.Equal(t, "api", ws.Caches[0].Name)
	assert.Equal(t, domain.CompressionZstd, ws.Caches[0].Compression)

	web := ws.Caches[1]
	assert.Equal(t, "web", web.Name)
	assert.Equal(t, "git rev-parse HEAD:web", web.HashCommand)
	assert.Equal(t, filepath.Join(root, "web/dist"), web.OutputDir)
	assert.Equal(t, "web", web.KeyPrefix)
	assert.Equal(t, []string{"uname -m", "go env GOOS"}, web.ParameterCommands)
	assert.Equal(t, domain.CompressionGzip, web.Compression)

	require.Len(t, ws.Diffs, 1)
	assert.Equal(t, domain.DiffSpec{
		Name:        "layer",
		Base:        filepath.Join(root, "images/base.tar"),
		Target:      filepath.Join(root, "images/app.tar.gz"),
		Output:      filepath.Join(root, "out/layer.tar"),
		Compression: domain.CompressionNone,
	}, ws.Diffs[0])

	spec, ok := ws.Cache("web")
	require.True(t, ok)
	assert.Equal(t, web, spec)
	_, ok = ws.Diff("missing")
	assert.False(t, ok)
}

func TestLoad_DefaultRemote(t *testing.T) {
	path := writeConfig(t, "version: \"1\"\n")

	ws, err := config.NewLoader(nil).Load(path)
	require.NoError(t, err)

	assert.Equal(t, domain.RemoteFS, ws.Remote.Kind)
	assert.Empty(t, ws.Caches)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    error
	}{
		{
			name:    "invalid yaml",
			content: "caches: [",
			want:    domain.ErrConfigParseFailed,
		},
		{
			name:    "missing bucket",
			content: "caches:\n  web:\n    hash: h\n    build: b\n    output: o\n",
			want:    domain.ErrInvalidSpec,
		},
		{
			name:    "unknown compression",
			content: "caches:\n  web:\n    hash: h\n    build: b\n    output: o\n    bucket: x\n    compression: brotli\n",
			want:    domain.ErrUnknownCompression,
		},
		{
			name:    "diff without target",
			content: "diffs:\n  layer:\n    base: a.tar\n    output: out.tar\n",
			want:    domain.ErrInvalidSpec,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.NewLoader(nil).Load(writeConfig(t, tt.content))
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.NewLoader(nil).Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.ErrorIs(t, err, domain.ErrConfigReadFailed)
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoad_WarnsOnUnknownVersion(t *testing.T) {
	ctrl := gomock.NewController(t)
	log := mocks.NewMockLogger(ctrl)
	log.EXPECT().Warn(gomock.Any()).Times(1)

	_, err := config.NewLoader(log).Load(writeConfig(t, "version: \"2\"\n"))
	require.NoError(t, err)
}
