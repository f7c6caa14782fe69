package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/RevCBH/loadnode/internal/artifact"
)

// NewJTLCmd creates the jtl command group
func NewJTLCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jtl",
		Short: "Download or delete result files",
	}
	cmd.AddCommand(newJTLGetCmd(app), newJTLRmCmd(app))
	return cmd
}

func newJTLGetCmd(app *App) *cobra.Command {
	var outDir string

	cmd := &cobra.Command{
		Use:   "get <report-id>",
		Short: "Download a result file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := app.newClient()
			if err != nil {
				return err
			}
			defer c.Close()

			data, err := c.FetchArtifact(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if len(data) == 0 {
				return fmt.Errorf("no result file for %s", args[0])
			}

			path := filepath.Join(outDir, artifact.FileName(args[0]))
			if err := os.WriteFile(path, data, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", path, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d bytes)\n", path, len(data))
			return nil
		},
	}

	cmd.Flags().StringVarP(&outDir, "output-dir", "o", ".", "Directory to write the file into")
	return cmd
}

func newJTLRmCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <report-id>",
		Short: "Delete a result file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := app.newClient()
			if err != nil {
				return err
			}
			defer c.Close()

			ok, err := c.DeleteArtifact(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("no result file deleted for %s", args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", artifact.FileName(args[0]))
			return nil
		},
	}
}
