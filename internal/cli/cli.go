// Package cli wires the loadnode command tree: the node server itself and
// the client commands that drive a running node.
package cli

import (
	"github.com/spf13/cobra"
)

// VersionInfo holds build metadata set via ldflags
type VersionInfo struct {
	Version string
	Commit  string
	Date    string
}

// App represents the CLI application with all wired dependencies
type App struct {
	// Root command
	rootCmd *cobra.Command

	// Global flags
	configPath string
	nodeAddr   string
	verbose    bool

	versionInfo VersionInfo
}

// New creates a new CLI application
func New() *App {
	app := &App{}
	app.setupRootCmd()
	return app
}

// Execute runs the CLI application
func (a *App) Execute() error {
	return a.rootCmd.Execute()
}

// SetVersion sets the version string for the version command
func (a *App) SetVersion(version, commit, date string) {
	a.versionInfo = VersionInfo{Version: version, Commit: commit, Date: date}
}

// setupRootCmd configures the root Cobra command
func (a *App) setupRootCmd() {
	a.rootCmd = &cobra.Command{
		Use:   "loadnode",
		Short: "Load test execution node",
		Long: `loadnode runs each load test in its own container with a per-run
workspace, relays its output, and serves result files once it finishes.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	a.rootCmd.PersistentFlags().StringVarP(&a.configPath, "config", "c", "",
		"Path to the node config file (YAML)")
	a.rootCmd.PersistentFlags().StringVar(&a.nodeAddr, "node", "127.0.0.1:8082",
		"Address of the node for client commands")
	a.rootCmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false,
		"Verbose output")

	a.rootCmd.AddCommand(
		NewServeCmd(a),
		NewVersionCmd(a),
		NewStatusCmd(a),
		NewLogsCmd(a),
		NewStopCmd(a),
		NewWatchCmd(a),
		NewEventsCmd(a),
		NewJTLCmd(a),
	)
}
