package progrock

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/vito/progrock"
)

// Vertex implements ports.Vertex on top of a progrock vertex recorder.
type Vertex struct {
	vertex *progrock.VertexRecorder
}

// Stdout returns the vertex output stream.
func (v *Vertex) Stdout() io.Writer {
	return v.vertex.Stdout()
}

// Stderr returns the vertex error stream.
func (v *Vertex) Stderr() io.Writer {
	return v.vertex.Stderr()
}

// Log writes msg to the vertex. Warnings and errors go to the error stream.
func (v *Vertex) Log(level slog.Level, msg string) {
	w := v.vertex.Stdout()
	if level >= slog.LevelWarn {
		w = v.vertex.Stderr()
	}
	_, _ = fmt.Fprintf(w, "[%s] %s\n", level, msg)
}

// Complete marks the vertex done. A non-nil err marks it failed.
func (v *Vertex) Complete(err error) {
	v.vertex.Done(err)
}

// Cached marks the vertex as restored from the remote store.
func (v *Vertex) Cached() {
	v.vertex.Cached()
}
