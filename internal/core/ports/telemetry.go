package ports

import (
	"context"
	"io"
	"log/slog"
)

//go:generate go run go.uber.org/mock/mockgen -source=telemetry.go -destination=mocks/mock_telemetry.go -package=mocks

// Telemetry records units of work as vertices.
type Telemetry interface {
	// Record starts a vertex called name and returns a context carrying it.
	Record(ctx context.Context, name string, opts ...VertexOption) (context.Context, Vertex)
	// Close flushes the recording.
	Close() error
}

// Vertex is one recorded unit of work.
type Vertex interface {
	// Stdout returns a writer for the standard output stream of the work.
	Stdout() io.Writer
	// Stderr returns a writer for the error output stream of the work.
	Stderr() io.Writer
	// Log records a message associated with the vertex.
	Log(level slog.Level, msg string)
	// Cached marks the work as satisfied from cache.
	Cached()
	// Complete marks the work as finished. A nil err means success.
	Complete(err error)
}

// VertexConfig holds the settings of a vertex being recorded.
type VertexConfig struct {
	// Internal hides the vertex from summaries.
	Internal bool
}

// VertexOption configures a vertex.
type VertexOption func(*VertexConfig)

// WithInternal marks a vertex as internal bookkeeping.
func WithInternal() VertexOption {
	return func(c *VertexConfig) {
		c.Internal = true
	}
}

type vertexKey struct{}

// ContextWithVertex returns a copy of ctx carrying v.
func ContextWithVertex(ctx context.Context, v Vertex) context.Context {
	return context.WithValue(ctx, vertexKey{}, v)
}

// VertexFromContext returns the vertex carried by ctx, if any.
func VertexFromContext(ctx context.Context) (Vertex, bool) {
	v, ok := ctx.Value(vertexKey{}).(Vertex)
	return v, ok
}
