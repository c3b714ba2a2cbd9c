// Package main is the entry point for dockyard.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/grindlemire/graft"
	"go.trai.ch/dockyard/cmd/dockyard/commands"
	"go.trai.ch/dockyard/internal/app"
	_ "go.trai.ch/dockyard/internal/wiring"
)

// jsonSetter is implemented by loggers that can switch to JSON output.
type jsonSetter interface {
	SetJSON(enable bool)
}

func main() {
	os.Exit(run())
}

func run() int {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	components, _, err := graft.ExecuteFor[*app.Components](ctx)
	if err != nil {
		// Logger is not available yet if initialization failed
		_, _ = os.Stderr.WriteString("Error: " + err.Error() + "\n")
		return 1
	}
	defer func() { _ = components.Telemetry.Close() }()

	var opts []commands.Option
	if setter, ok := components.Logger.(jsonSetter); ok {
		opts = append(opts, commands.WithJSONHook(setter.SetJSON))
	}

	cli := commands.New(components.App, opts...)
	if err := cli.Execute(ctx); err != nil {
		components.Logger.Error(err)
		return 1
	}
	return 0
}
