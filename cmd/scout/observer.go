package main

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"

	"github.com/c360studio/scout/research"
)

var (
	stageStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#4D96FF"))
	pendingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	runningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFD93D"))
	doneStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#6BCB77"))
	failedStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF6B6B"))
	detailStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
)

// progressPrinter renders progress events as one styled line each. It is
// only ever called from the emitter's drain goroutine, so it needs no
// locking.
type progressPrinter struct {
	out io.Writer
}

func newProgressPrinter(out io.Writer) *progressPrinter {
	return &progressPrinter{out: out}
}

// OnProgress implements research.Observer.
func (p *progressPrinter) OnProgress(e research.Event) {
	line := fmt.Sprintf("%s %-12s %s",
		statusMarker(e.Status),
		stageStyle.Render(e.Stage),
		string(e.Status))

	if e.Detail != "" {
		line += "  " + detailStyle.Render(e.Detail)
	}

	fmt.Fprintln(p.out, line)
}

// statusMarker picks the glyph for a status.
func statusMarker(status research.Status) string {
	switch status {
	case research.StatusPending:
		return pendingStyle.Render("·")
	case research.StatusRunning:
		return runningStyle.Render("▸")
	case research.StatusDone:
		return doneStyle.Render("✓")
	case research.StatusFailed:
		return failedStyle.Render("✗")
	default:
		return " "
	}
}
