package settings

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"alertd/internal/control"
	"alertd/internal/feed"
	"alertd/internal/notifier"
)

var (
	colorGreen = lipgloss.AdaptiveColor{Dark: "#6BCB77", Light: "#2F855A"}
	colorRed   = lipgloss.AdaptiveColor{Dark: "#FF6B6B", Light: "#C53030"}
	colorGray  = lipgloss.AdaptiveColor{Dark: "#868E96", Light: "#718096"}
	colorBlue  = lipgloss.AdaptiveColor{Dark: "#5B9BD5", Light: "#2B6CB0"}

	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(colorBlue)
	keyStyle    = lipgloss.NewStyle().Foreground(colorGray).Width(14)
	okStyle     = lipgloss.NewStyle().Foreground(colorGreen)
	errStyle    = lipgloss.NewStyle().Foreground(colorRed)
	panelStyle  = lipgloss.NewStyle().
			Padding(0, 1).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorGray)
)

func row(k, v string) string {
	return lipgloss.JoinHorizontal(lipgloss.Top, keyStyle.Render(k), v)
}

func when(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

// RenderStatus formats the daemon status panel.
func RenderStatus(st control.Status) string {
	sched := st.Scheduler
	state := errStyle.Render("stopped")
	if sched.Running {
		state = okStyle.Render("running")
	}
	last := sched.LastOutcome
	if last == "" {
		last = "-"
	} else if sched.LastError != "" {
		last = errStyle.Render(last) + " " + sched.LastError
	}
	wm := st.Watermark
	if wm == "" {
		wm = "-"
	}

	lines := []string{
		headerStyle.Render("alertd"),
		row("platform", st.Platform),
		row("port", st.Port),
		row("sink", st.Sink),
		row("polling", state),
		row("interval", sched.Interval.String()),
		row("runs", strconv.FormatUint(sched.Runs, 10)),
		row("last run", when(sched.LastRun)),
		row("last result", last),
		row("next run", when(sched.NextRun)),
		row("pending", strconv.Itoa(sched.Pending)),
		row("seen", strconv.Itoa(st.SeenCount)),
		row("watermark", wm),
	}
	return panelStyle.Render(strings.Join(lines, "\n"))
}

// RenderProbe formats a connectivity probe result.
func RenderProbe(pr feed.ProbeResult) string {
	var b strings.Builder
	if pr.Success {
		b.WriteString(okStyle.Render("✓ " + pr.Message))
	} else {
		b.WriteString(errStyle.Render("✗ " + pr.Message))
	}
	for _, r := range pr.Notifications {
		fmt.Fprintf(&b, "\n  [%s] %s", r.Type, r.Title)
	}
	return b.String()
}

// RenderHistory formats recent deliveries, newest first.
func RenderHistory(items []notifier.HistoryItem) string {
	if len(items) == 0 {
		return keyStyle.UnsetWidth().Render("no notifications delivered yet")
	}
	lines := make([]string, 0, len(items))
	for _, it := range items {
		mark := okStyle.Render("✓")
		if it.Error != "" {
			mark = errStyle.Render("✗")
		}
		line := fmt.Sprintf("%s %s  %-8s %s", mark, it.At.Local().Format("01-02 15:04:05"), it.Source, it.Title)
		if it.Error != "" {
			line += "  " + errStyle.Render(it.Error)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}
