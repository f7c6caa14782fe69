package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/RevCBH/loadnode/internal/container"
)

// View implements tea.Model
func (m *Model) View() string {
	if m.Quitting {
		return ""
	}

	var b strings.Builder

	b.WriteString(m.renderHeader())
	b.WriteString("\n\n")
	b.WriteString(m.renderContainers())
	b.WriteString("\n")
	b.WriteString(m.renderLogs())
	b.WriteString(m.renderFooter())

	return b.String()
}

func (m *Model) renderHeader() string {
	elapsed := time.Since(m.StartTime).Round(time.Second)
	return fmt.Sprintf("%s  %s  %s",
		m.Styles.Title.Render("loadnode"),
		m.Styles.RunID.Render(m.RunID),
		m.Styles.Timer.Render(fmt.Sprintf("[%s]", formatDuration(elapsed))),
	)
}

func (m *Model) renderContainers() string {
	if len(m.Containers) == 0 {
		return m.Styles.Dim.Render("  no containers") + "\n"
	}
	var b strings.Builder
	for _, c := range m.Containers {
		fmt.Fprintf(&b, "  %s %s  %s  %s\n",
			m.stateIcon(c.State),
			m.Styles.ContainerID.Render(shortID(string(c.ID))),
			m.Styles.StateStyle(c.State).Render(string(c.State)),
			m.Styles.Dim.Render(c.Status),
		)
	}
	return b.String()
}

func (m *Model) renderLogs() string {
	var b strings.Builder
	b.WriteString(m.Styles.LogTitle.Render("Output"))
	b.WriteString("\n")

	lines := m.LogLines
	if limit := m.visibleLogLines(); limit > 0 && len(lines) > limit {
		lines = lines[len(lines)-limit:]
	}
	for _, line := range lines {
		b.WriteString(m.Styles.LogLine.Render(line))
		b.WriteString("\n")
	}
	return b.String()
}

func (m *Model) renderFooter() string {
	var status string
	switch {
	case m.LastErr != nil:
		status = m.Styles.Error.Render("poll failed: " + m.LastErr.Error())
	case m.Done:
		status = m.Styles.Complete.Render("run finished")
	default:
		status = m.Styles.Dim.Render(fmt.Sprintf("refreshing every %s", m.Interval))
	}
	return m.Styles.Footer.Render(fmt.Sprintf("%s  %s quit", status, m.Styles.FooterKey.Render("q")))
}

// visibleLogLines leaves room for the header, the container list and the
// footer.
func (m *Model) visibleLogLines() int {
	if m.Height == 0 {
		return 0
	}
	n := m.Height - len(m.Containers) - 7
	if n < 3 {
		n = 3
	}
	return n
}

func (m *Model) stateIcon(s container.State) string {
	switch s {
	case container.StateRunning:
		return m.Styles.Active.Render(IconActive)
	case container.StateExited, container.StateDead:
		return m.Styles.Complete.Render(IconExited)
	default:
		return m.Styles.Dim.Render(IconWaiting)
	}
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

// formatDuration formats a duration as MM:SS or HH:MM:SS
func formatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}
