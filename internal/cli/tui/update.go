package tui

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/RevCBH/loadnode/internal/container"
)

// Update implements tea.Model
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.Quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height

	case TickMsg:
		return m, m.pollCmd()

	case SnapshotMsg:
		m.LastErr = msg.Err
		if msg.Err == nil {
			m.apply(msg.Snapshot)
		}
		if m.Finished() {
			m.Done = true
			return m, tea.Quit
		}
		return m, m.tickCmd()
	}

	return m, nil
}

func (m *Model) apply(s Snapshot) {
	m.Containers = s.Containers
	for _, c := range s.Containers {
		if c.State == container.StateRunning {
			m.seenLive = true
		}
	}
	if s.Logs == "" {
		return
	}
	// Each snapshot replays output from the start; keep only the tail.
	lines := strings.Split(strings.TrimRight(s.Logs, "\n"), "\n")
	if len(lines) > m.LogLimit {
		lines = lines[len(lines)-m.LogLimit:]
	}
	m.LogLines = lines
}
