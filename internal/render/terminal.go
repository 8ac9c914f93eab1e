package render

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"uptimestrip/internal/models"
)

const barGlyph = "▆"

var (
	colorRed    = lipgloss.Color("#FF5555")
	colorYellow = lipgloss.Color("#F1FA8C")
	colorGreen  = lipgloss.Color("#50FA7B")
	colorCyan   = lipgloss.Color("#8BE9FD")
	colorOrange = lipgloss.Color("#FFB86C")
	colorGray   = lipgloss.Color("#6272A4")

	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)
	nameStyle   = lipgloss.NewStyle().Bold(true)
	dimStyle    = lipgloss.NewStyle().Foreground(colorGray)
	errorStyle  = lipgloss.NewStyle().Foreground(colorRed).Bold(true)
	panelStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(colorGray).Padding(0, 1)
	statusStyle = map[string]lipgloss.Style{
		"up":       lipgloss.NewStyle().Foreground(colorGreen),
		"degraded": lipgloss.NewStyle().Foreground(colorOrange),
		"down":     lipgloss.NewStyle().Foreground(colorRed),
	}
)

func severityStyle(sev models.Severity) lipgloss.Style {
	switch sev {
	case models.SeverityMajor:
		return lipgloss.NewStyle().Foreground(colorRed)
	case models.SeverityPartial:
		return lipgloss.NewStyle().Foreground(colorOrange)
	case models.SeverityMinor:
		return lipgloss.NewStyle().Foreground(colorYellow)
	default:
		return lipgloss.NewStyle().Foreground(colorGreen)
	}
}

// Strip renders the bars of one service on a single line.
func Strip(days []models.DayBucket) string {
	var b strings.Builder
	for _, day := range days {
		b.WriteString(severityStyle(day.Severity).Render(barGlyph))
	}
	return b.String()
}

// Service renders a service block: name, status, bars and edge labels.
func Service(svc models.ServiceHistory) string {
	header := nameStyle.Render(svc.Name)
	if svc.StatusText != "" {
		style, ok := statusStyle[strings.ToLower(svc.Status)]
		if !ok {
			style = dimStyle
		}
		header += "  " + style.Render(svc.StatusText)
	}
	strip := Strip(svc.Days)
	width := len(svc.Days)
	gap := width - lipgloss.Width(svc.Labels.Left) - lipgloss.Width(svc.Labels.Right)
	if gap < 1 {
		gap = 1
	}
	labels := dimStyle.Render(svc.Labels.Left + strings.Repeat(" ", gap) + svc.Labels.Right)
	return lipgloss.JoinVertical(lipgloss.Left, header, strip, labels)
}

// Legend explains the colours of the strip.
func Legend() string {
	items := []struct {
		sev   models.Severity
		label string
	}{
		{models.SeverityUp, "no downtime"},
		{models.SeverityMinor, "< 30 min"},
		{models.SeverityPartial, "< 60 min"},
		{models.SeverityMajor, ">= 60 min"},
	}
	parts := make([]string, 0, len(items))
	for _, it := range items {
		parts = append(parts, severityStyle(it.sev).Render(barGlyph)+" "+dimStyle.Render(it.label))
	}
	return strings.Join(parts, "   ")
}

// Snapshot renders every service of a snapshot inside a bordered panel.
func Snapshot(snap models.Snapshot, now time.Time) string {
	blocks := []string{titleStyle.Render(snap.SourceName)}
	if snap.Error != "" {
		blocks = append(blocks, errorStyle.Render("refresh failed: "+snap.Error))
	}
	for _, svc := range snap.Services {
		blocks = append(blocks, "", Service(svc))
	}
	mode := "daily summary"
	if snap.UsedIssues {
		mode = "incidents"
	}
	blocks = append(blocks, "", dimStyle.Render(fmt.Sprintf("updated %s · %s · from %s",
		humanize.RelTime(snap.GeneratedAt, now, "ago", "from now"), snap.Timezone, mode)))
	return panelStyle.Render(lipgloss.JoinVertical(lipgloss.Left, blocks...))
}

// Write renders all snapshots followed by the legend.
func Write(w io.Writer, snaps []models.Snapshot, now time.Time) error {
	for _, snap := range snaps {
		if _, err := fmt.Fprintln(w, Snapshot(snap, now)); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w, Legend())
	return err
}
