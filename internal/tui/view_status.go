package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/rsm23/netflix-home-auto-confirm/internal/intake"
	"github.com/rsm23/netflix-home-auto-confirm/internal/watch"
)

const (
	headerLines = 7
	footerLines = 3
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39")).
			PaddingBottom(1)

	accentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Width(12)

	formLabelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Width(18)

	footerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			PaddingTop(1)
)

func (m *AppModel) statusHeader() string {
	st := m.snapshot
	state := warnStyle.Render(st.State.String())
	if st.State == watch.StateRunning {
		state = m.spin.View() + " " + okStyle.Render("running")
	}

	last := "-"
	if st.LastLink != "" {
		last = st.LastLink
	}
	lines := []string{
		headerStyle.Render("Netflix household confirmation watcher"),
		row("state", state),
		row("interval", st.Interval.String()),
		row("anchor", anchorText(st)),
		row("last link", last),
		row("cycles", fmt.Sprintf("%d", st.Cycles)),
	}
	return strings.Join(lines, "\n")
}

func row(label, value string) string {
	return labelStyle.Render(label) + value
}

func anchorText(st watch.Status) string {
	if !st.Anchor.Set {
		return "unset"
	}
	return fmt.Sprintf("%d (%s)", st.Anchor.Millis, time.UnixMilli(st.Anchor.Millis).Format("2006-01-02 15:04:05"))
}

// formatEvent renders one log line for a finished cycle.
func formatEvent(ev watch.Event) string {
	ts := ev.At.Format("15:04:05")
	switch {
	case ev.AuthError:
		return fmt.Sprintf("%s  %s %v (run login)", ts, errStyle.Render("auth"), ev.Err)
	case ev.Err != nil:
		return fmt.Sprintf("%s  %s %v", ts, errStyle.Render("failed"), ev.Err)
	case ev.Result.Actioned:
		line := fmt.Sprintf("%s  %s %s", ts, okStyle.Render("actioned"), ev.Result.Link)
		if ev.Result.RecordPath != "" {
			line += "  -> " + ev.Result.RecordPath
		}
		return line
	case ev.Result.Code == intake.CodeNoLink:
		return fmt.Sprintf("%s  %s", ts, warnStyle.Render("no actionable link"))
	default:
		return fmt.Sprintf("%s  %s", ts, ev.Result.Code.String())
	}
}

func dashboardFooter() string {
	return footerStyle.Render("s: start/stop  r: run now  c: configure  q: quit")
}
