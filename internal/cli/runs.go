package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/RevCBH/loadnode/internal/cli/tui"
	"github.com/RevCBH/loadnode/internal/client"
)

func (a *App) newClient() (*client.Client, error) {
	c, err := client.New(a.nodeAddr)
	if err != nil {
		return nil, fmt.Errorf("connect to node: %w", err)
	}
	return c, nil
}

// NewStatusCmd creates the status command
func NewStatusCmd(app *App) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status <run-id>",
		Short: "Show the containers of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := app.newClient()
			if err != nil {
				return err
			}
			defer c.Close()

			list, err := c.Status(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(list)
			}
			fmt.Fprint(cmd.OutOrStdout(), RenderStatus(args[0], list, displayFor(cmd.OutOrStdout())))
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON instead of a table")
	return cmd
}

// NewLogsCmd creates the logs command
func NewLogsCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "logs <run-id>",
		Short: "Print a snapshot of a running run's output",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := app.newClient()
			if err != nil {
				return err
			}
			defer c.Close()

			out, err := c.Logs(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), out)
			return nil
		},
	}
}

// NewStopCmd creates the stop command
func NewStopCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "stop <run-id>",
		Short: "Force-remove a run's running containers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := app.newClient()
			if err != nil {
				return err
			}
			defer c.Close()

			if err := c.Stop(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "stopped %s\n", args[0])
			return nil
		},
	}
}

// NewWatchCmd creates the watch command
func NewWatchCmd(app *App) *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "watch <run-id>",
		Short: "Follow a run's containers and output until it finishes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !term.IsTerminal(int(os.Stdout.Fd())) {
				return fmt.Errorf("watch needs a terminal; use status and logs instead")
			}
			c, err := app.newClient()
			if err != nil {
				return err
			}
			defer c.Close()

			runID := args[0]
			model := tui.NewModel(runID, interval, func(ctx context.Context) (tui.Snapshot, error) {
				list, err := c.Status(ctx, runID)
				if err != nil {
					return tui.Snapshot{}, err
				}
				logs, err := c.Logs(ctx, runID)
				if err != nil {
					return tui.Snapshot{}, err
				}
				return tui.Snapshot{Containers: list, Logs: logs}, nil
			})

			_, err = tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(cmd.Context())).Run()
			if err != nil {
				return fmt.Errorf("watch: %w", err)
			}
			if model.Done {
				fmt.Fprintf(cmd.OutOrStdout(), "%s finished\n", runID)
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", time.Second, "Refresh interval")
	return cmd
}
