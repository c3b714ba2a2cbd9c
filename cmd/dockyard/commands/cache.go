package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.trai.ch/dockyard/internal/app"
	"go.trai.ch/dockyard/internal/core/domain"
	"go.trai.ch/dockyard/internal/ui/output"
	"go.trai.ch/dockyard/internal/ui/style"
)

func (c *CLI) newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Restore, build and inspect cached outputs",
	}
	cmd.AddCommand(c.newCacheRunCmd())
	cmd.AddCommand(c.newCacheStatusCmd())
	return cmd
}

func (c *CLI) newCacheRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run [caches...]",
		Short: "Restore each cache from the remote store, or build and publish it",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			results, err := c.app.RunCaches(cmd.Context(), args, app.RunOptions{
				ConfigPath:  c.configPath,
				Parallelism: c.parallelism,
			})
			if writeErr := c.writeResults(cmd.OutOrStdout(), results); writeErr != nil && err == nil {
				err = writeErr
			}
			return err
		},
	}
}

func (c *CLI) newCacheStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status [caches...]",
		Short: "Report whether an entry exists for the current key of each cache",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			statuses, err := c.app.CacheStatus(cmd.Context(), c.configPath, args)
			if err != nil {
				return err
			}
			return c.writeStatuses(cmd.OutOrStdout(), statuses)
		},
	}
}

type resultJSON struct {
	Name       string `json:"name"`
	Key        string `json:"key,omitempty"`
	Hit        bool   `json:"hit"`
	Failed     bool   `json:"failed,omitempty"`
	DurationMS int64  `json:"duration_ms"`
}

func (c *CLI) writeResults(w io.Writer, results []domain.CacheResult) error {
	if c.jsonOutput {
		out := make([]resultJSON, 0, len(results))
		for _, r := range results {
			out = append(out, resultJSON{
				Name:       r.Name,
				Key:        r.Key,
				Hit:        r.Hit,
				Failed:     r.Key == "",
				DurationMS: r.Duration.Milliseconds(),
			})
		}
		return json.NewEncoder(w).Encode(out)
	}

	st := style.New(output.Renderer(w))
	for _, r := range results {
		var line string
		switch {
		case r.Key == "":
			line = fmt.Sprintf("%s %s %s", st.Fail.Render(style.Cross), st.Name.Render(r.Name), st.Dim.Render("failed"))
		case r.Hit:
			line = fmt.Sprintf("%s %s %s %s", st.Hit.Render(style.Check), st.Name.Render(r.Name), "restored", st.Dim.Render(r.Key))
		default:
			line = fmt.Sprintf("%s %s %s %s %s", st.Miss.Render(style.Dot), st.Name.Render(r.Name), "built",
				st.Dim.Render(r.Key), st.Dim.Render(r.Duration.Round(time.Millisecond).String()))
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

type statusJSON struct {
	Name      string `json:"name"`
	Key       string `json:"key"`
	MarkerKey string `json:"marker_key"`
	UpToDate  bool   `json:"up_to_date"`
}

func (c *CLI) writeStatuses(w io.Writer, statuses []domain.CacheStatus) error {
	if c.jsonOutput {
		out := make([]statusJSON, 0, len(statuses))
		for _, s := range statuses {
			out = append(out, statusJSON(s))
		}
		return json.NewEncoder(w).Encode(out)
	}

	st := style.New(output.Renderer(w))
	for _, s := range statuses {
		icon, state := st.Miss.Render(style.Circle), "stale"
		if s.UpToDate {
			icon, state = st.Hit.Render(style.Check), "up to date"
		}
		if _, err := fmt.Fprintf(w, "%s %s %s %s\n", icon, st.Name.Render(s.Name), state, st.Dim.Render(s.MarkerKey)); err != nil {
			return err
		}
	}
	return nil
}
