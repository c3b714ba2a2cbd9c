// Package ports defines the core interfaces for the application.
package ports

import (
	"context"

	"go.trai.ch/dockyard/internal/core/domain"
)

// CommandRunner executes shell commands.
//
//go:generate go run go.uber.org/mock/mockgen -source=runner.go -destination=mocks/mock_runner.go -package=mocks
type CommandRunner interface {
	// Run executes command through the shell in the caller's working directory and environment.
	//
	// A command that runs and exits non-zero is not an error: the exit code is reported in
	// the result. The error is non-nil only when the process could not be launched.
	Run(ctx context.Context, command string) (domain.CommandResult, error)
}
