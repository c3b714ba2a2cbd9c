package tardiff

import (
	"context"

	"github.com/grindlemire/graft"
)

// NodeID is the unique identifier for the diff engine Graft node.
const NodeID graft.ID = "engine.tardiff"

func init() {
	graft.Register(graft.Node[*Engine]{
		ID:        NodeID,
		Cacheable: true,
		Run: func(_ context.Context) (*Engine, error) {
			return New(), nil
		},
	})
}
