package ports

import "go.trai.ch/dockyard/internal/core/domain"

// ConfigLoader loads the workspace configuration.
//
//go:generate go run go.uber.org/mock/mockgen -source=config_loader.go -destination=mocks/mock_config_loader.go -package=mocks
type ConfigLoader interface {
	// Load reads and validates the configuration file at path.
	Load(path string) (*domain.Workspace, error)
}
