package logger_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"go.trai.ch/dockyard/internal/adapters/logger"
)

func TestPrettyHandler_Golden(t *testing.T) {
	t.Setenv("NO_COLOR", "1")

	var buf bytes.Buffer
	log := slog.New(logger.NewPrettyHandler(&buf, nil))

	log.Info("restored cache", "name", "web")
	log.With("bucket", "artifacts").WithGroup("marker").Warn("stale entry", "key", "abc")
	log.Error("upload failed", "attempt", 2, slog.Group("remote", "kind", "oci", "host", "localhost:5000"))
	log.Debug("hidden")

	g := goldie.New(t)
	g.Assert(t, "pretty_handler", buf.Bytes())
}

func TestPrettyHandler_Level(t *testing.T) {
	h := logger.NewPrettyHandler(nil, &slog.HandlerOptions{Level: slog.LevelWarn})

	assert.False(t, h.Enabled(context.Background(), slog.LevelInfo))
	assert.True(t, h.Enabled(context.Background(), slog.LevelError))
}
