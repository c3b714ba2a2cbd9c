package app

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/dockyard/internal/adapters/config"             //nolint:depguard // Wired in app layer
	"go.trai.ch/dockyard/internal/adapters/fs"                 //nolint:depguard // Wired in app layer
	"go.trai.ch/dockyard/internal/adapters/logger"             //nolint:depguard // Wired in app layer
	"go.trai.ch/dockyard/internal/adapters/remote"             //nolint:depguard // Wired in app layer
	"go.trai.ch/dockyard/internal/adapters/shell"              //nolint:depguard // Wired in app layer
	"go.trai.ch/dockyard/internal/adapters/telemetry/progrock" //nolint:depguard // Wired in app layer
	"go.trai.ch/dockyard/internal/archive"
	"go.trai.ch/dockyard/internal/core/ports"
	"go.trai.ch/dockyard/internal/engine/tardiff"
)

const (
	// AppNodeID is the unique identifier for the main App Graft node.
	AppNodeID graft.ID = "app.main"
	// ComponentsNodeID is the unique identifier for the App components Graft node.
	ComponentsNodeID graft.ID = "app.components"
)

func init() {
	graft.Register(graft.Node[*App]{
		ID:        AppNodeID,
		Cacheable: true,
		DependsOn: []graft.ID{
			config.NodeID,
			remote.NodeID,
			shell.NodeID,
			archive.NodeID,
			fs.HasherNodeID,
			tardiff.NodeID,
			logger.NodeID,
			progrock.NodeID,
		},
		Run: runAppNode,
	})

	graft.Register(graft.Node[*Components]{
		ID:        ComponentsNodeID,
		Cacheable: true,
		DependsOn: []graft.ID{
			AppNodeID,
			logger.NodeID,
			progrock.NodeID,
		},
		Run: runComponentsNode,
	})
}

func runAppNode(ctx context.Context) (*App, error) {
	loader, err := graft.Dep[ports.ConfigLoader](ctx)
	if err != nil {
		return nil, err
	}

	opener, err := graft.Dep[ports.StoreOpener](ctx)
	if err != nil {
		return nil, err
	}

	runner, err := graft.Dep[ports.CommandRunner](ctx)
	if err != nil {
		return nil, err
	}

	archiver, err := graft.Dep[ports.Archiver](ctx)
	if err != nil {
		return nil, err
	}

	hasher, err := graft.Dep[ports.Hasher](ctx)
	if err != nil {
		return nil, err
	}

	differ, err := graft.Dep[*tardiff.Engine](ctx)
	if err != nil {
		return nil, err
	}

	log, err := graft.Dep[ports.Logger](ctx)
	if err != nil {
		return nil, err
	}

	telemetry, err := graft.Dep[ports.Telemetry](ctx)
	if err != nil {
		return nil, err
	}

	return New(loader, opener, runner, archiver, hasher, differ, log, telemetry), nil
}

func runComponentsNode(ctx context.Context) (*Components, error) {
	app, err := graft.Dep[*App](ctx)
	if err != nil {
		return nil, err
	}

	log, err := graft.Dep[ports.Logger](ctx)
	if err != nil {
		return nil, err
	}

	telemetry, err := graft.Dep[ports.Telemetry](ctx)
	if err != nil {
		return nil, err
	}

	return &Components{
		App:       app,
		Logger:    log,
		Telemetry: telemetry,
	}, nil
}
