package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func (c *CLI) newFingerprintCmd() *cobra.Command {
	var root string

	cmd := &cobra.Command{
		Use:   "fingerprint [paths...]",
		Short: "Print a stable hash of the given files, for use as a cache hash command",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if root == "" {
				wd, err := os.Getwd()
				if err != nil {
					return err
				}
				root = wd
			}

			fp, err := c.app.Fingerprint(root, args)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), fp)
			return err
		},
	}

	cmd.Flags().StringVar(&root, "root", "", "Directory paths are relative to (default: current directory)")
	return cmd
}
