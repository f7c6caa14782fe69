package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/RevCBH/loadnode/internal/container"
	"github.com/RevCBH/loadnode/internal/events"
)

// react waits for the run's container to exit, then reclaims the workspace
// and the container. It runs at most once per handle. Cleanup errors are
// logged and counted, never returned.
func (o *Orchestrator) react(h *Handle) {
	h.once.Do(func() {
		defer close(h.done)

		code, ok := o.awaitExit(h)
		if !ok {
			// Shutting down; the container outlives this process.
			return
		}
		h.exitCode.Store(int64(code))

		h.state.Store(int32(ReactorCleanup))
		o.logger.Info("run exited", "run_id", h.RunID, "container_id", h.ContainerID, "exit_code", code)
		o.telemetry.RunCompleted(o.ctx, code)
		o.publish(events.Event{Type: events.RunExited, RunID: h.RunID, ContainerID: string(h.ContainerID), ExitCode: &code})

		o.cleanup(h)
		h.state.Store(int32(ReactorDone))
		o.publish(events.Event{Type: events.RunCleaned, RunID: h.RunID, ContainerID: string(h.ContainerID)})
	})
}

// awaitExit blocks until the container has stopped and returns its exit
// code, or -1 when the code could not be observed. A failed Wait only
// counts as an exit once the container is gone or terminal; otherwise Wait
// is retried with backoff. It reports false when the orchestrator closes
// first.
func (o *Orchestrator) awaitExit(h *Handle) (int, bool) {
	delay := o.cfg.WaitRetry
	for {
		code, err := o.runtime.Wait(o.ctx, h.ContainerID)
		if o.ctx.Err() != nil {
			return -1, false
		}
		if err == nil {
			return code, true
		}

		stopped, lerr := o.stopped(h)
		if lerr == nil && stopped {
			o.logger.Warn("wait for container failed, container already stopped", "run_id", h.RunID, "container_id", h.ContainerID, "error", err)
			return -1, true
		}
		if lerr != nil {
			err = errors.Join(err, lerr)
		}
		o.logger.Warn("wait for container failed, retrying", "run_id", h.RunID, "container_id", h.ContainerID, "retry_in", delay, "error", err)

		t := time.NewTimer(delay)
		select {
		case <-o.ctx.Done():
			t.Stop()
			return -1, false
		case <-t.C:
		}
		delay = min(delay*2, maxWaitRetry)
	}
}

// stopped reports whether the handle's container is absent or terminal.
func (o *Orchestrator) stopped(h *Handle) (bool, error) {
	ctx, cancel := context.WithTimeout(o.ctx, o.cfg.CleanupTimeout)
	defer cancel()

	list, err := o.runtime.List(ctx, container.ListFilter{Name: h.RunID})
	if err != nil {
		return false, err
	}
	for _, c := range list {
		if c.ID != h.ContainerID {
			continue
		}
		switch c.State {
		case container.StateExited, container.StateDead, container.StateRemoving:
			return true, nil
		default:
			return false, nil
		}
	}
	return true, nil
}

func (o *Orchestrator) cleanup(h *Handle) {
	ctx, cancel := context.WithTimeout(context.Background(), o.cfg.CleanupTimeout)
	defer cancel()

	o.mu.Lock()
	if o.handles[h.RunID] == h {
		delete(o.handles, h.RunID)
	}
	o.mu.Unlock()

	// A newer launch under the same run ID owns the directory now.
	unlock := o.locks.Lock(h.RunID)
	if o.releaseLease(h.RunID, h.LaunchID) {
		if err := o.workspaces.Destroy(h.Workspace); err != nil {
			o.logger.Error("failed to remove workspace", "run_id", h.RunID, "path", h.Workspace, "error", err)
			o.cleanupFailed(ctx, h.RunID, "workspace", err)
		}
	}
	unlock()

	list, err := o.runtime.List(ctx, container.ListFilter{Name: h.RunID})
	if err != nil {
		o.logger.Error("failed to list containers for cleanup", "run_id", h.RunID, "error", err)
		o.cleanupFailed(ctx, h.RunID, "list", err)
		return
	}
	for _, c := range list {
		if c.ID != h.ContainerID {
			continue
		}
		if err := o.runtime.Remove(ctx, c.ID); err != nil {
			o.logger.Error("failed to remove container", "run_id", h.RunID, "container_id", c.ID, "error", err)
			o.cleanupFailed(ctx, h.RunID, "container", err)
		}
	}
}
