package orchestrator

import (
	"context"
	"crypto/rand"
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/RevCBH/loadnode/internal/container"
)

// ReactorState tracks a run's completion reactor.
type ReactorState int32

const (
	ReactorRunning ReactorState = iota
	ReactorCleanup
	ReactorDone
)

func (s ReactorState) String() string {
	switch s {
	case ReactorRunning:
		return "running"
	case ReactorCleanup:
		return "cleanup"
	case ReactorDone:
		return "done"
	default:
		return "unknown"
	}
}

// Handle describes a launched run.
type Handle struct {
	RunID       string
	LaunchID    string
	ContainerID container.ContainerID
	Workspace   string
	StartedAt   time.Time

	state    atomic.Int32
	exitCode atomic.Int64
	once     sync.Once
	done     chan struct{}
}

// Done is closed once the reactor has finished cleaning up after the run,
// or when the orchestrator is closed first. In the latter case State stays
// ReactorRunning and nothing was cleaned up.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// ExitCode is the container's exit code, or -1 while running or when the
// exit could not be observed.
func (h *Handle) ExitCode() int {
	return int(h.exitCode.Load())
}

// State reports the reactor's progress.
func (h *Handle) State() ReactorState {
	return ReactorState(h.state.Load())
}

func newLaunchID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()
}

// launch creates and starts the run's container with the workspace mounted,
// then registers the completion reactor and the live log relay.
func (o *Orchestrator) launch(ctx context.Context, req RunRequest, dir, launchID string) (*Handle, error) {
	env := maps.Clone(req.Env)
	if env == nil {
		env = make(map[string]string, 1)
	}
	env[HeapEnv] = o.cfg.Heap

	cfg := container.ContainerConfig{
		Image: req.Image,
		Name:  req.RunID,
		Env:   env,
		Binds: []container.Bind{{Source: dir, Target: o.cfg.MountPath}},
	}

	id, err := o.runtime.Create(ctx, cfg)
	if err != nil {
		return nil, &LaunchError{Op: "create", RunID: req.RunID, Err: err}
	}

	if err := o.runtime.Start(ctx, id); err != nil {
		if rmErr := o.runtime.Remove(context.WithoutCancel(ctx), id); rmErr != nil {
			o.logger.Warn("failed to remove container after start error", "run_id", req.RunID, "container_id", id, "error", rmErr)
		}
		return nil, &LaunchError{Op: "start", RunID: req.RunID, Err: err}
	}

	h := &Handle{
		RunID:       req.RunID,
		LaunchID:    launchID,
		ContainerID: id,
		Workspace:   dir,
		StartedAt:   time.Now(),
		done:        make(chan struct{}),
	}
	h.exitCode.Store(-1)

	o.mu.Lock()
	o.handles[req.RunID] = h
	o.mu.Unlock()

	o.wg.Add(2)
	go func() {
		defer o.wg.Done()
		o.react(h)
	}()
	go func() {
		defer o.wg.Done()
		o.relay(h)
	}()
	return h, nil
}

// Run returns the latest launch for runID that has not yet been cleaned up.
func (o *Orchestrator) Run(runID string) (*Handle, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	h, ok := o.handles[runID]
	return h, ok
}
