package orchestrator

import (
	"bufio"
	"context"
	"io"
	"strings"

	"github.com/RevCBH/loadnode/internal/container"
)

const maxLogLine = 1 << 20

// relay forwards the container's output to the container logger, one
// record per line, until the stream closes.
func (o *Orchestrator) relay(h *Handle) {
	rc, err := o.runtime.Logs(o.ctx, h.ContainerID)
	if err != nil {
		if o.ctx.Err() == nil {
			o.logger.Warn("failed to attach log relay", "run_id", h.RunID, "container_id", h.ContainerID, "error", err)
		}
		return
	}
	defer rc.Close()

	err = forEachLine(rc, func(line string) {
		o.containers.Info(line, "run_id", h.RunID, "container_id", h.ContainerID)
	})
	if err != nil && o.ctx.Err() == nil {
		o.logger.Warn("log relay stopped", "run_id", h.RunID, "container_id", h.ContainerID, "error", err)
	}
}

// Logs returns whatever output of the running container named runID arrives
// within the snapshot window, one trimmed line per row. It is empty when no
// such container is running or the stream cannot be opened.
func (o *Orchestrator) Logs(ctx context.Context, runID string) string {
	if validateRunID(runID) != nil {
		return ""
	}
	list, err := o.runtime.List(ctx, container.ListFilter{
		Name:   runID,
		States: []container.State{container.StateRunning},
	})
	if err != nil {
		o.logger.Warn("failed to list containers for logs", "run_id", runID, "error", err)
		return ""
	}
	if len(list) == 0 {
		return ""
	}

	ctx, cancel := context.WithTimeout(ctx, o.cfg.SnapshotWindow)
	defer cancel()

	rc, err := o.runtime.Logs(ctx, list[0].ID)
	if err != nil {
		o.logger.Warn("failed to open log stream", "run_id", runID, "container_id", list[0].ID, "error", err)
		return ""
	}

	var sb strings.Builder
	done := make(chan struct{})
	go func() {
		defer close(done)
		// The stream is cut when the window closes; that error is expected.
		_ = forEachLine(rc, func(line string) {
			sb.WriteString(line)
			sb.WriteByte('\n')
		})
	}()

	select {
	case <-done:
	case <-ctx.Done():
	}
	_ = rc.Close()
	<-done
	return sb.String()
}

// forEachLine calls fn with every non-blank line of r, trimmed, and returns
// the error that ended the stream, if any.
func forEachLine(r io.Reader, fn func(string)) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLogLine)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			fn(line)
		}
	}
	return sc.Err()
}
