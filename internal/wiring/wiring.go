// Package wiring registers all Graft nodes for the application.
package wiring

import (
	// Register adapter nodes.
	_ "go.trai.ch/dockyard/internal/adapters/config"
	_ "go.trai.ch/dockyard/internal/adapters/fs"
	_ "go.trai.ch/dockyard/internal/adapters/logger"
	_ "go.trai.ch/dockyard/internal/adapters/remote"
	_ "go.trai.ch/dockyard/internal/adapters/shell"
	_ "go.trai.ch/dockyard/internal/adapters/telemetry/progrock"
	_ "go.trai.ch/dockyard/internal/archive"
	// Register app and engine nodes.
	_ "go.trai.ch/dockyard/internal/app"
	_ "go.trai.ch/dockyard/internal/engine/tardiff"
)
