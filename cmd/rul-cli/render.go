package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/nwcai/pm-rul/internal/policy"
	"github.com/nwcai/pm-rul/internal/projector"
	"github.com/nwcai/pm-rul/internal/rul"
)

var (
	colorRed    = lipgloss.Color("#FF5555")
	colorYellow = lipgloss.Color("#F1FA8C")
	colorGreen  = lipgloss.Color("#50FA7B")
	colorCyan   = lipgloss.Color("#8BE9FD")
	colorGray   = lipgloss.Color("#6272A4")

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorGray).
			Padding(0, 1)

	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)
	labelStyle = lipgloss.NewStyle().Foreground(colorGray).Width(18)
	warnStyle  = lipgloss.NewStyle().Foreground(colorYellow).Bold(true)
	critStyle  = lipgloss.NewStyle().Foreground(colorRed).Bold(true)
	okStyle    = lipgloss.NewStyle().Foreground(colorGreen)
	dimStyle   = lipgloss.NewStyle().Foreground(colorGray)
)

const sparkWidth = 48

var sparkRunes = []rune("▁▂▃▄▅▆▇█")

func statusStyle(s policy.Status) lipgloss.Style {
	switch s {
	case policy.StatusCritical, policy.StatusExpired:
		return critStyle
	case policy.StatusWarning:
		return warnStyle
	default:
		return okStyle
	}
}

// renderReport draws a single machine's summary panel
func renderReport(r *projector.Report) string {
	var b strings.Builder

	title := r.Machine.ID
	if r.Machine.Name != "" {
		title += " · " + r.Machine.Name
	}
	b.WriteString(titleStyle.Render(title) + "\n\n")

	row := func(label, value string) {
		b.WriteString(labelStyle.Render(label) + value + "\n")
	}

	row("Status", statusStyle(r.Status()).Render(string(r.Status())))
	if r.Current != nil {
		row("Health", fmt.Sprintf("%.1f%% at %.1fh", r.Current.Health, r.Current.Time))
	}
	row("Lifetime", fmt.Sprintf("%.1fh (elapsed %.1fh)", r.Projection.Lifetime, r.ElapsedHours))
	row("Events", fmt.Sprintf("%d", r.EventCount))
	if a := r.Assessment; a != nil {
		row("Warning", crossing(r.TimeToWarning, a.HoursToWarning))
		row("Critical", crossing(r.TimeToCritical, a.HoursToCritical))
	}
	row("Curve", sparkline(r.Projection.Series, sparkWidth))

	for _, issue := range r.Issues {
		b.WriteString(warnStyle.Render("! ") + dimStyle.Render(issue.String()) + "\n")
	}

	return panelStyle.Render(strings.TrimRight(b.String(), "\n"))
}

// renderFleet draws one line per machine
func renderFleet(reports []*projector.Report) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("%d machine(s)", len(reports))) + "\n\n")

	for _, r := range reports {
		health := "-"
		if r.Current != nil {
			health = fmt.Sprintf("%5.1f%%", r.Current.Health)
		}
		status := statusStyle(r.Status()).Width(10).Render(string(r.Status()))
		b.WriteString(fmt.Sprintf("%-20s %s %7s  %s\n",
			r.Machine.ID, status, health, sparkline(r.Projection.Series, sparkWidth/2)))
	}

	return panelStyle.Render(strings.TrimRight(b.String(), "\n"))
}

func crossing(at, remaining *float64) string {
	switch {
	case at == nil:
		return dimStyle.Render("not reached within lifetime")
	case remaining == nil:
		return fmt.Sprintf("reached at %.1fh", *at)
	default:
		return fmt.Sprintf("at %.1fh (in %.1fh)", *at, *remaining)
	}
}

// sparkline buckets the series into width columns, each showing the
// bucket's minimum health
func sparkline(series []rul.HealthSample, width int) string {
	if len(series) == 0 || width <= 0 {
		return ""
	}
	if width > len(series) {
		width = len(series)
	}

	out := make([]rune, width)
	for i := range width {
		lo := i * len(series) / width
		hi := (i + 1) * len(series) / width
		lowest := rul.MaxHealth
		for _, s := range series[lo:hi] {
			lowest = min(lowest, s.Health)
		}
		idx := int(lowest / rul.MaxHealth * float64(len(sparkRunes)-1))
		out[i] = sparkRunes[max(0, min(idx, len(sparkRunes)-1))]
	}
	return string(out)
}
