package progrock

import (
	"context"

	"github.com/grindlemire/graft"
	"github.com/vito/progrock"
	"go.trai.ch/dockyard/internal/core/ports"
)

// NodeID identifies the telemetry node that records cache runs as progrock vertices.
const NodeID graft.ID = "adapter.telemetry"

func init() {
	graft.Register(graft.Node[ports.Telemetry]{
		ID:        NodeID,
		Cacheable: true,
		Run: func(_ context.Context) (ports.Telemetry, error) {
			return NewRecorder(progrock.NewTape()), nil
		},
	})
}
