package cli

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/RevCBH/loadnode/internal/events"
)

// NewEventsCmd creates the events command
func NewEventsCmd(app *App) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "events [run-id]",
		Short: "Follow run lifecycle events",
		Long:  "Stream start, exit and cleanup events from the node until interrupted.\nWith a run ID only that run's events are shown.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := app.newClient()
			if err != nil {
				return err
			}
			defer c.Close()

			var runID string
			if len(args) == 1 {
				runID = args[0]
			}

			out := cmd.OutOrStdout()
			display := displayFor(out)
			enc := json.NewEncoder(out)
			return c.Events(cmd.Context(), runID, func(e events.Event) {
				if asJSON {
					_ = enc.Encode(e)
					return
				}
				_, _ = out.Write([]byte(RenderEvent(e, display)))
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output one JSON object per event")
	return cmd
}
