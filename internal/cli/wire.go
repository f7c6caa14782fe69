package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/RevCBH/loadnode/internal/api"
	"github.com/RevCBH/loadnode/internal/artifact"
	"github.com/RevCBH/loadnode/internal/config"
	"github.com/RevCBH/loadnode/internal/container"
	"github.com/RevCBH/loadnode/internal/events"
	"github.com/RevCBH/loadnode/internal/orchestrator"
	"github.com/RevCBH/loadnode/internal/precheck"
	"github.com/RevCBH/loadnode/internal/telemetry"
	"github.com/RevCBH/loadnode/internal/workspace"
)

// Node holds all wired components of a running load node
type Node struct {
	Config       *config.Config
	Logger       *slog.Logger
	Telemetry    *telemetry.Provider
	Runtime      container.Manager
	Events       *events.Hub
	Orchestrator *orchestrator.Orchestrator
	Server       *http.Server
}

// WireNode assembles a node from cfg. A nil runtime is opened from
// cfg.Runtime.
func WireNode(ctx context.Context, cfg *config.Config, logger *slog.Logger, runtime container.Manager, version string) (*Node, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	precheckTimeout, err := cfg.PrecheckTimeoutDuration()
	if err != nil {
		return nil, fmt.Errorf("invalid precheck timeout: %w", err)
	}
	snapshotWindow, err := cfg.SnapshotWindowDuration()
	if err != nil {
		return nil, fmt.Errorf("invalid snapshot window: %w", err)
	}

	tp, err := telemetry.Setup(ctx, telemetry.Config{
		ServiceName:   cfg.Telemetry.ServiceName,
		EnableMetrics: cfg.Telemetry.Metrics,
		EnableTraces:  cfg.Telemetry.Traces,
	})
	if err != nil {
		return nil, fmt.Errorf("setup telemetry: %w", err)
	}

	if runtime == nil {
		runtime, err = container.Open(ctx, cfg.Runtime.Backend, cfg.Runtime.DockerHost)
		if err != nil {
			_ = tp.Shutdown(ctx)
			return nil, fmt.Errorf("open container runtime: %w", err)
		}
	}

	hub := events.NewHub()
	go hub.Run()

	orch := orchestrator.New(orchestrator.Config{
		Heap:             cfg.Heap,
		MountPath:        cfg.Runtime.MountPath,
		DependencyEnvKey: cfg.Precheck.EnvKey,
		SnapshotWindow:   snapshotWindow,
	}, orchestrator.Deps{
		Runtime:    runtime,
		Precheck:   precheck.New(precheckTimeout),
		Workspaces: workspace.NewManager(cfg.DataRoot),
		Artifacts:  artifact.NewStore(cfg.DataRoot, logger),
		Logger:     logger,
		Telemetry:  tp.Instruments(),
		Events:     hub,
	})

	opts := api.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		Events:         hub,
		Version:        version,
		Logger:         logger,
	}
	if cfg.Telemetry.Metrics {
		opts.Metrics = func(ctx context.Context) map[string]float64 {
			snap, err := tp.Snapshot(ctx)
			if err != nil {
				logger.Warn("failed to collect metrics", "error", err)
				return map[string]float64{}
			}
			return snap
		}
	}

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.NewRouter(orch, opts),
		ReadHeaderTimeout: 10 * time.Second,
	}
	// Event streams never go idle on their own.
	server.RegisterOnShutdown(hub.Stop)

	return &Node{
		Config:       cfg,
		Logger:       logger,
		Telemetry:    tp,
		Runtime:      runtime,
		Events:       hub,
		Orchestrator: orch,
		Server:       server,
	}, nil
}

// Close detaches from runs and releases the runtime client and telemetry.
// Running containers are left running.
func (n *Node) Close(ctx context.Context) error {
	n.Orchestrator.Close()
	n.Events.Stop()

	var errs []error
	if c, ok := n.Runtime.(io.Closer); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close runtime: %w", err))
		}
	}
	if err := n.Telemetry.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("shutdown telemetry: %w", err))
	}
	return errors.Join(errs...)
}
