// Package orchestrator runs load tests in dedicated containers: it checks
// preconditions, prepares each run's workspace, launches the container and
// reclaims the workspace and container once the run exits.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/RevCBH/loadnode/internal/container"
	"github.com/RevCBH/loadnode/internal/events"
	"github.com/RevCBH/loadnode/internal/telemetry"
)

// HeapEnv is the variable carrying the configured JVM heap into every run.
const HeapEnv = "HEAP"

// Defaults applied by New for zero Config fields.
const (
	DefaultDependencyEnvKey = "BOOTSTRAP_SERVERS"
	DefaultSnapshotWindow   = 100 * time.Millisecond
	DefaultCleanupTimeout   = 30 * time.Second
	DefaultWaitRetry        = 250 * time.Millisecond

	maxWaitRetry = 10 * time.Second
)

// Prechecker verifies that a comma-separated endpoint list is reachable.
type Prechecker interface {
	Check(ctx context.Context, endpoints string) error
}

// Workspaces prepares and destroys per-run directories.
type Workspaces interface {
	Path(runID string) string
	Prepare(runID, definition string, dataFiles map[string]string, binaryFiles map[string][]byte) (string, error)
	Destroy(path string) error
}

// Artifacts reads and deletes result files.
type Artifacts interface {
	Fetch(reportID string) []byte
	Delete(reportID string) bool
}

// Config holds the run settings resolved at startup.
type Config struct {
	// Heap is injected into every run as HEAP.
	Heap string

	// MountPath is where the workspace appears inside the container.
	MountPath string

	// DependencyEnvKey names the request env entry listing the endpoints
	// the precheck must reach.
	DependencyEnvKey string

	// SnapshotWindow bounds how long Logs collects output.
	SnapshotWindow time.Duration

	// CleanupTimeout bounds the runtime calls made by the completion reactor.
	CleanupTimeout time.Duration

	// WaitRetry is the first delay before re-waiting on a container whose
	// wait failed while it was still running. It doubles up to 10s.
	WaitRetry time.Duration
}

// Deps are the collaborators an Orchestrator drives.
type Deps struct {
	Runtime    container.Manager
	Precheck   Prechecker
	Workspaces Workspaces
	Artifacts  Artifacts
	Logger     *slog.Logger
	Telemetry  *telemetry.Instruments

	// Events receives run lifecycle events; nil drops them.
	Events events.Publisher
}

// Orchestrator implements the run commands. Runs share no state beyond the
// per-run-ID start lock and workspace lease.
type Orchestrator struct {
	cfg        Config
	runtime    container.Manager
	precheck   Prechecker
	workspaces Workspaces
	artifacts  Artifacts
	logger     *slog.Logger
	containers *slog.Logger
	telemetry  *telemetry.Instruments
	events     events.Publisher

	// ctx bounds the background observers; cancelled by Close.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	locks   keyedMutex
	mu      sync.Mutex
	leases  map[string]string // run ID -> launch ID owning the workspace
	handles map[string]*Handle
}

// New creates an Orchestrator.
func New(cfg Config, deps Deps) *Orchestrator {
	if cfg.MountPath == "" {
		cfg.MountPath = container.MountPath
	}
	if cfg.DependencyEnvKey == "" {
		cfg.DependencyEnvKey = DefaultDependencyEnvKey
	}
	if cfg.SnapshotWindow <= 0 {
		cfg.SnapshotWindow = DefaultSnapshotWindow
	}
	if cfg.CleanupTimeout <= 0 {
		cfg.CleanupTimeout = DefaultCleanupTimeout
	}
	if cfg.WaitRetry <= 0 {
		cfg.WaitRetry = DefaultWaitRetry
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		cfg:        cfg,
		runtime:    deps.Runtime,
		precheck:   deps.Precheck,
		workspaces: deps.Workspaces,
		artifacts:  deps.Artifacts,
		logger:     logger,
		containers: logger.With("source", "container"),
		telemetry:  deps.Telemetry,
		events:     deps.Events,
		ctx:        ctx,
		cancel:     cancel,
		leases:     make(map[string]string),
		handles:    make(map[string]*Handle),
	}
}

// Close detaches from running containers and waits for the observers to
// return. Containers keep running; their workspaces are left in place.
func (o *Orchestrator) Close() {
	o.cancel()
	o.wg.Wait()
}

// Start validates the request, checks that the dependency is reachable and
// the image present, evicts any container already using the run ID, writes
// a fresh workspace and launches the run. It returns once the container has
// started; the run continues in the background.
func (o *Orchestrator) Start(ctx context.Context, req RunRequest) error {
	ctx, end := o.telemetry.StartSpan(ctx, "loadnode.start", req.RunID)
	err := o.start(ctx, req)
	end(err)
	return err
}

func (o *Orchestrator) start(ctx context.Context, req RunRequest) error {
	if err := req.Validate(); err != nil {
		o.failed(ctx, req.RunID, "validate", err)
		return err
	}

	o.logger.Info("received start request", "run_id", req.RunID, "image", req.Image)

	began := time.Now()
	err := o.precheck.Check(ctx, req.Env[o.cfg.DependencyEnvKey])
	o.telemetry.PrecheckDone(ctx, time.Since(began), err)
	if err != nil {
		o.logger.Error("dependency precheck failed", "run_id", req.RunID, "error", err)
		o.failed(ctx, req.RunID, "precheck", err)
		return fmt.Errorf("precheck %s: %w", o.cfg.DependencyEnvKey, err)
	}

	if err := o.EnsureImageAvailable(ctx, req.Image); err != nil {
		o.logger.Error("image unavailable", "run_id", req.RunID, "image", req.Image, "error", err)
		o.failed(ctx, req.RunID, "image", err)
		return err
	}

	unlock := o.locks.Lock(req.RunID)
	defer unlock()

	// Take the workspace lease before evicting, so the evicted run's
	// reactor leaves the directory to this launch.
	launchID := newLaunchID()
	prev, hadPrev := o.swapLease(req.RunID, launchID)

	if err := o.EvictStale(ctx, req.RunID); err != nil {
		o.restoreLease(req.RunID, launchID, prev, hadPrev)
		o.failed(ctx, req.RunID, "evict", err)
		return err
	}

	dir := o.workspaces.Path(req.RunID)
	if err := o.workspaces.Destroy(dir); err != nil {
		o.logger.Warn("failed to reset workspace", "run_id", req.RunID, "path", dir, "error", err)
	}

	dir, err = o.workspaces.Prepare(req.RunID, req.TestDefinition, req.DataFiles, req.BinaryFiles)
	if err != nil {
		o.rollback(req.RunID, launchID, o.workspaces.Path(req.RunID))
		o.failed(ctx, req.RunID, "workspace", err)
		return fmt.Errorf("prepare workspace: %w", err)
	}

	h, err := o.launch(ctx, req, dir, launchID)
	if err != nil {
		o.logger.Error("launch failed", "run_id", req.RunID, "error", err)
		o.rollback(req.RunID, launchID, dir)
		o.failed(ctx, req.RunID, "launch", err)
		return err
	}

	o.telemetry.RunStarted(ctx, req.Image)
	o.publish(events.Event{Type: events.RunStarted, RunID: h.RunID, ContainerID: string(h.ContainerID)})
	o.logger.Info("run started", "run_id", h.RunID, "launch_id", h.LaunchID, "container_id", h.ContainerID)
	return nil
}

// Stop force-removes every running container named runID. It does not wait
// for a graceful shutdown; the run's reactor still observes the exit and
// reclaims the workspace.
func (o *Orchestrator) Stop(ctx context.Context, runID string) error {
	if err := validateRunID(runID); err != nil {
		return err
	}
	o.logger.Info("received stop request", "run_id", runID)

	list, err := o.runtime.List(ctx, container.ListFilter{
		Name:   runID,
		States: []container.State{container.StateRunning},
	})
	if err != nil {
		return fmt.Errorf("list running containers named %s: %w", runID, err)
	}

	var errs []error
	for _, c := range list {
		if err := o.runtime.Remove(ctx, c.ID); err != nil {
			errs = append(errs, err)
			continue
		}
		o.publish(events.Event{Type: events.RunStopped, RunID: runID, ContainerID: string(c.ID)})
	}
	if len(errs) > 0 {
		return fmt.Errorf("stop %s: %w", runID, errors.Join(errs...))
	}
	return nil
}

// Status lists the containers named runID in any lifecycle state.
func (o *Orchestrator) Status(ctx context.Context, runID string) ([]container.Summary, error) {
	if err := validateRunID(runID); err != nil {
		return nil, err
	}
	list, err := o.runtime.List(ctx, container.ListFilter{Name: runID, States: container.LiveStates})
	if err != nil {
		return nil, fmt.Errorf("list containers named %s: %w", runID, err)
	}
	return list, nil
}

// FetchArtifact returns the report's result file, or an empty slice.
func (o *Orchestrator) FetchArtifact(reportID string) []byte {
	return o.artifacts.Fetch(reportID)
}

// DeleteArtifact removes the report's result file and reports success.
func (o *Orchestrator) DeleteArtifact(reportID string) bool {
	return o.artifacts.Delete(reportID)
}

// rollback undoes a start that failed after the lease was taken.
func (o *Orchestrator) rollback(runID, launchID, dir string) {
	if o.releaseLease(runID, launchID) {
		if err := o.workspaces.Destroy(dir); err != nil {
			o.logger.Error("failed to roll back workspace", "run_id", runID, "path", dir, "error", err)
			o.cleanupFailed(o.ctx, runID, "rollback", err)
		}
	}
}

func (o *Orchestrator) swapLease(runID, launchID string) (string, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	prev, ok := o.leases[runID]
	o.leases[runID] = launchID
	return prev, ok
}

func (o *Orchestrator) restoreLease(runID, launchID, prev string, hadPrev bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.leases[runID] != launchID {
		return
	}
	if hadPrev {
		o.leases[runID] = prev
	} else {
		delete(o.leases, runID)
	}
}

// releaseLease drops the lease if launchID still holds it and reports
// whether it did.
func (o *Orchestrator) releaseLease(runID, launchID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.leases[runID] != launchID {
		return false
	}
	delete(o.leases, runID)
	return true
}

func (o *Orchestrator) publish(e events.Event) {
	if o.events != nil {
		o.events.Publish(e)
	}
}

func (o *Orchestrator) failed(ctx context.Context, runID, stage string, err error) {
	o.telemetry.RunFailed(ctx, stage)
	o.publish(events.Event{Type: events.RunFailed, RunID: runID, Stage: stage, Error: err.Error()})
}

func (o *Orchestrator) cleanupFailed(ctx context.Context, runID, stage string, err error) {
	o.telemetry.CleanupFailed(ctx, stage)
	o.publish(events.Event{Type: events.CleanupFail, RunID: runID, Stage: stage, Error: err.Error()})
}
