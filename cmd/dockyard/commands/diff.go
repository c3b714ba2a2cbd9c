package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.trai.ch/dockyard/internal/app"
)

func (c *CLI) newDiffCmd() *cobra.Command {
	var opts app.DiffOptions

	cmd := &cobra.Command{
		Use:   "diff [name]",
		Short: "Write the entries of a target archive that are new or changed relative to a base",
		Long: "Write the entries of a target archive that are new or changed relative to a base.\n" +
			"Entries are compared by type, size and modification time. Deletions are not recorded.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				opts.Name = args[0]
			}
			if opts.Name == "" && opts.Base == "" && opts.Target == "" {
				return cmd.Help()
			}
			opts.ConfigPath = c.configPath

			stats, err := c.app.Diff(cmd.Context(), opts)
			if err != nil {
				return err
			}

			if c.jsonOutput {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(stats)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%d of %d entries changed (%d directories added)\n",
				stats.Emitted, stats.TargetEntries, stats.Synthesized)
			return err
		},
	}

	cmd.Flags().StringVar(&opts.Base, "base", "", "Base archive")
	cmd.Flags().StringVar(&opts.Target, "target", "", "Target archive")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "Output archive")
	cmd.Flags().StringVar(&opts.Compression, "compress", "", "Output compression: none, gzip, zstd or lz4")
	return cmd
}
