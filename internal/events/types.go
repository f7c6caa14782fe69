// Package events fans run lifecycle events out to streaming subscribers.
package events

import "time"

// Event represents a single occurrence in a run's lifecycle
type Event struct {
	// Time is when the event occurred (set by the hub on publish)
	Time time.Time `json:"time"`

	// Type identifies what happened
	Type EventType `json:"type"`

	// RunID is the run this event relates to
	RunID string `json:"run_id"`

	// ContainerID is set once a container exists
	ContainerID string `json:"container_id,omitempty"`

	// ExitCode is set on run.exited
	ExitCode *int `json:"exit_code,omitempty"`

	// Stage names the failed start step or cleanup step
	Stage string `json:"stage,omitempty"`

	// Error contains the error message for failure events
	Error string `json:"error,omitempty"`
}

// EventType is a string constant identifying the event category
type EventType string

// Run lifecycle events
const (
	RunStarted  EventType = "run.started"
	RunFailed   EventType = "run.failed" // Start rejected; Stage says where
	RunEvicted  EventType = "run.evicted"
	RunExited   EventType = "run.exited"
	RunCleaned  EventType = "run.cleaned"
	RunStopped  EventType = "run.stopped"
	CleanupFail EventType = "cleanup.failed" // Residue left behind; Stage says which step
)

// Publisher accepts events. A nil *Hub is a valid Publisher that drops
// everything.
type Publisher interface {
	Publish(e Event)
}
