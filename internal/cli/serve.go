package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/RevCBH/loadnode/internal/config"
)

// ServeOptions holds flags for the serve command
type ServeOptions struct {
	ListenAddr string
	DataRoot   string
	Backend    string
}

// NewServeCmd creates the serve command
func NewServeCmd(app *App) *cobra.Command {
	opts := ServeOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the load node HTTP API",
		Long: `Start the node: load configuration, connect to the container runtime
and serve the run commands until SIGINT or SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.Serve(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.ListenAddr, "listen", "", "Listen address (overrides config)")
	cmd.Flags().StringVar(&opts.DataRoot, "data-root", "", "Workspace and result root (overrides config)")
	cmd.Flags().StringVar(&opts.Backend, "runtime", "", "Container backend: api, docker, podman or auto (overrides config)")

	return cmd
}

// Serve runs the node until a shutdown signal arrives.
func (a *App) Serve(ctx context.Context, opts ServeOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := config.LoadConfig(a.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if opts.ListenAddr != "" {
		cfg.ListenAddr = opts.ListenAddr
	}
	if opts.DataRoot != "" {
		root, err := filepath.Abs(opts.DataRoot)
		if err != nil {
			return fmt.Errorf("resolve data root: %w", err)
		}
		cfg.DataRoot = root
	}
	if opts.Backend != "" {
		cfg.Runtime.Backend = opts.Backend
	}

	logger := newLogger(os.Stderr, cfg.LogLevel, a.verbose)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	node, err := WireNode(ctx, cfg, logger, nil, a.versionInfo.withDefaults().Version)
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		_ = node.Close(context.Background())
		return fmt.Errorf("listen on %s: %w", cfg.ListenAddr, err)
	}

	signals := NewSignalHandler(cancel, logger)
	signals.OnShutdown("node", node.Close)
	signals.OnShutdown("http", node.Server.Shutdown)
	signals.Start()
	defer signals.Stop()

	logger.Info("load node listening",
		"addr", ln.Addr().String(),
		"data_root", cfg.DataRoot,
		"runtime", cfg.Runtime.Backend)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- node.Server.Serve(ln)
	}()

	select {
	case err := <-serveErr:
		signals.Shutdown()
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
	case <-ctx.Done():
		signals.Shutdown()
		if err := <-serveErr; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
	}
	logger.Info("load node stopped")
	return nil
}
