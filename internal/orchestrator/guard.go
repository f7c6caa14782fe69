package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/RevCBH/loadnode/internal/container"
	"github.com/RevCBH/loadnode/internal/events"
)

// EvictStale force-removes every container named name, whatever its state,
// so the name is free for a new launch. Every match is attempted; removal
// errors are joined and returned afterwards.
func (o *Orchestrator) EvictStale(ctx context.Context, name string) error {
	list, err := o.runtime.List(ctx, container.ListFilter{Name: name})
	if err != nil {
		return fmt.Errorf("list containers named %s: %w", name, err)
	}

	var errs []error
	for _, c := range list {
		o.logger.Info("evicting stale container", "run_id", name, "container_id", c.ID, "state", c.State)
		if err := o.runtime.Remove(ctx, c.ID); err != nil {
			o.logger.Error("failed to evict stale container", "run_id", name, "container_id", c.ID, "error", err)
			errs = append(errs, err)
			continue
		}
		o.publish(events.Event{Type: events.RunEvicted, RunID: name, ContainerID: string(c.ID)})
	}
	if len(errs) > 0 {
		return fmt.Errorf("evict stale containers named %s: %w", name, errors.Join(errs...))
	}
	return nil
}
