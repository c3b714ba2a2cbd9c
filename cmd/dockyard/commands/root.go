// Package commands implements the CLI commands for dockyard.
package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.trai.ch/dockyard/internal/app"
	"go.trai.ch/dockyard/internal/build"
	"go.trai.ch/dockyard/internal/core/domain"
)

// Application represents the application logic interface.
type Application interface {
	RunCaches(ctx context.Context, names []string, opts app.RunOptions) ([]domain.CacheResult, error)
	CacheStatus(ctx context.Context, configPath string, names []string) ([]domain.CacheStatus, error)
	Diff(ctx context.Context, opts app.DiffOptions) (domain.DiffStats, error)
	Fingerprint(root string, paths []string) (string, error)
}

// CLI represents the command line interface for dockyard.
type CLI struct {
	app     Application
	rootCmd *cobra.Command
	onJSON  func(bool)

	configPath  string
	jsonOutput  bool
	parallelism int
}

// Option configures a CLI.
type Option func(*CLI)

// WithJSONHook registers fn to be called with the value of --json before any command runs.
func WithJSONHook(fn func(bool)) Option {
	return func(c *CLI) {
		c.onJSON = fn
	}
}

// New creates a new CLI instance with the given app.
func New(a Application, opts ...Option) *CLI {
	rootCmd := &cobra.Command{
		Use:           "dockyard",
		Short:         "Remote build cache and image layer differ",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       build.Version,
	}

	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"{{.Name}} version {{.Version}} (commit: %s, date: %s)\n",
		build.Commit,
		build.Date,
	))
	rootCmd.InitDefaultVersionFlag()
	rootCmd.Flags().Lookup("version").Usage = "Print the application version"

	rootCmd.InitDefaultHelpFlag()
	rootCmd.Flags().Lookup("help").Usage = "Show help for command"

	c := &CLI{
		app:     a,
		rootCmd: rootCmd,
	}
	for _, opt := range opts {
		opt(c)
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&c.configPath, "config", "c", "dockyard.yaml", "Path to the workspace configuration")
	flags.BoolVar(&c.jsonOutput, "json", false, "Write logs and results as JSON")
	flags.IntVarP(&c.parallelism, "parallel", "p", 0, "Maximum number of caches run concurrently (default: CPU count)")

	rootCmd.PersistentPreRun = func(_ *cobra.Command, _ []string) {
		if c.onJSON != nil {
			c.onJSON(c.jsonOutput)
		}
	}

	rootCmd.AddCommand(c.newCacheCmd())
	rootCmd.AddCommand(c.newDiffCmd())
	rootCmd.AddCommand(c.newFingerprintCmd())
	rootCmd.AddCommand(c.newVersionCmd())

	return c
}

// Execute runs the root command with the given context.
func (c *CLI) Execute(ctx context.Context) error {
	c.rootCmd.SetContext(ctx)
	return c.rootCmd.Execute()
}

// SetArgs sets the arguments for the root command. Used for testing.
func (c *CLI) SetArgs(args []string) {
	c.rootCmd.SetArgs(args)
}

// SetOutput sets the output and error streams for the root command. Used for testing.
func (c *CLI) SetOutput(out, err io.Writer) {
	c.rootCmd.SetOut(out)
	c.rootCmd.SetErr(err)
}
