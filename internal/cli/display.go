package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/RevCBH/loadnode/internal/container"
	"github.com/RevCBH/loadnode/internal/events"
)

// DisplayConfig controls status output formatting
type DisplayConfig struct {
	UseColor bool      // Enable ANSI color codes
	Now      time.Time // Reference time for ages; zero means time.Now
}

var (
	headerStyle  = lipgloss.NewStyle().Bold(true)
	runningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	exitedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	deadStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

// displayFor enables color only when w is a terminal.
func displayFor(w io.Writer) DisplayConfig {
	f, ok := w.(*os.File)
	return DisplayConfig{UseColor: ok && term.IsTerminal(int(f.Fd()))}
}

// RenderStatus formats the containers of one run as an aligned table.
func RenderStatus(runID string, list []container.Summary, cfg DisplayConfig) string {
	if len(list) == 0 {
		return fmt.Sprintf("no containers named %s\n", runID)
	}
	now := cfg.Now
	if now.IsZero() {
		now = time.Now()
	}

	rows := [][]string{{"CONTAINER", "STATE", "STATUS", "AGE"}}
	for _, c := range list {
		age := "-"
		if !c.Created.IsZero() {
			age = now.Sub(c.Created).Round(time.Second).String()
		}
		rows = append(rows, []string{shortID(string(c.ID)), string(c.State), c.Status, age})
	}

	widths := make([]int, len(rows[0]))
	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], len(cell))
		}
	}

	var b strings.Builder
	for r, row := range rows {
		for i, cell := range row {
			padded := cell + strings.Repeat(" ", widths[i]-len(cell))
			if i == len(row)-1 {
				padded = cell
			}
			if cfg.UseColor {
				padded = cellStyle(r, i, list).Render(padded)
			}
			b.WriteString(padded)
			if i < len(row)-1 {
				b.WriteString("  ")
			}
		}
		b.WriteString("\n")
	}
	return b.String()
}

func cellStyle(row, col int, list []container.Summary) lipgloss.Style {
	if row == 0 {
		return headerStyle
	}
	if col != 1 {
		return dimStyle
	}
	switch list[row-1].State {
	case container.StateRunning:
		return runningStyle
	case container.StateExited:
		return exitedStyle
	case container.StateDead:
		return deadStyle
	default:
		return lipgloss.NewStyle()
	}
}

// RenderEvent formats one lifecycle event as a single line.
func RenderEvent(e events.Event, cfg DisplayConfig) string {
	kind := string(e.Type)
	if cfg.UseColor {
		kind = eventStyle(e).Render(kind)
	}

	parts := []string{e.Time.Local().Format("15:04:05"), kind, e.RunID}
	if e.ContainerID != "" {
		parts = append(parts, "container="+shortID(e.ContainerID))
	}
	if e.ExitCode != nil {
		parts = append(parts, fmt.Sprintf("exit=%d", *e.ExitCode))
	}
	if e.Stage != "" {
		parts = append(parts, "stage="+e.Stage)
	}
	if e.Error != "" {
		parts = append(parts, fmt.Sprintf("error=%q", e.Error))
	}
	return strings.Join(parts, " ") + "\n"
}

func eventStyle(e events.Event) lipgloss.Style {
	switch e.Type {
	case events.RunStarted:
		return runningStyle
	case events.RunExited:
		if e.ExitCode != nil && *e.ExitCode != 0 {
			return deadStyle
		}
		return exitedStyle
	case events.RunFailed, events.CleanupFail:
		return deadStyle
	default:
		return dimStyle
	}
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
