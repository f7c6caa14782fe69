// Package tui renders a live view of one run: its containers and the tail
// of its output, refreshed on a fixed interval.
package tui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/RevCBH/loadnode/internal/container"
)

// Snapshot is one poll of a run.
type Snapshot struct {
	Containers []container.Summary
	Logs       string
}

// FetchFunc polls the node for a run.
type FetchFunc func(ctx context.Context) (Snapshot, error)

// Model is the bubbletea model for the watch view
type Model struct {
	// Configuration
	RunID    string
	Interval time.Duration
	Styles   Styles
	fetch    FetchFunc

	// State
	Containers []container.Summary
	LogLines   []string
	LogLimit   int
	LastErr    error
	StartTime  time.Time
	seenLive   bool
	Width      int
	Height     int

	// Control
	Quitting bool
	Done     bool
}

// NewModel creates a watch model for runID.
func NewModel(runID string, interval time.Duration, fetch FetchFunc) *Model {
	if interval <= 0 {
		interval = time.Second
	}
	return &Model{
		RunID:     runID,
		Interval:  interval,
		Styles:    DefaultStyles(),
		fetch:     fetch,
		LogLimit:  200,
		StartTime: time.Now(),
	}
}

// Init implements tea.Model
func (m *Model) Init() tea.Cmd {
	return m.pollCmd()
}

// TickMsg triggers the next poll
type TickMsg time.Time

// SnapshotMsg carries a poll result
type SnapshotMsg struct {
	Snapshot Snapshot
	Err      error
}

func (m *Model) tickCmd() tea.Cmd {
	return tea.Tick(m.Interval, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

func (m *Model) pollCmd() tea.Cmd {
	fetch := m.fetch
	timeout := m.Interval
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout+5*time.Second)
		defer cancel()
		snap, err := fetch(ctx)
		return SnapshotMsg{Snapshot: snap, Err: err}
	}
}

// Finished reports whether a run that was seen live no longer has a
// running container.
func (m *Model) Finished() bool {
	if !m.seenLive {
		return false
	}
	for _, c := range m.Containers {
		if c.State == container.StateRunning || c.State == container.StateCreated {
			return false
		}
	}
	return true
}
