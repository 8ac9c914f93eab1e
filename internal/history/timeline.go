package history

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"uptimestrip/internal/models"
)

// DefaultDays controls how many bars are generated per service.
const DefaultDays = 30

// Options drives BuildServiceHistories.
type Options struct {
	Location *time.Location
	// Zone is the name shown in tooltips; defaults to Location.String().
	Zone        string
	Now         time.Time
	Days        int
	StatusLabel string
	// UseIncidents selects incident-based bucketing over the UTC daily map.
	UseIncidents bool
}

// Classify maps a day's downtime to its severity.
func Classify(minutes int) models.Severity {
	switch {
	case minutes <= 0:
		return models.SeverityUp
	case minutes < 30:
		return models.SeverityMinor
	case minutes < 60:
		return models.SeverityPartial
	default:
		return models.SeverityMajor
	}
}

// UptimePercent converts daily downtime into an availability percentage.
func UptimePercent(minutes int) float64 {
	minutes = capDay(minutes)
	v := float64(MinutesPerDay-minutes) / MinutesPerDay * 100
	return math.Round(v*100) / 100
}

// WindowUptime returns the availability over every day of buckets.
func WindowUptime(buckets []models.DayBucket) float64 {
	if len(buckets) == 0 {
		return 100
	}
	down := 0
	for _, b := range buckets {
		down += capDay(b.DownMinutes)
	}
	total := float64(len(buckets) * MinutesPerDay)
	v := (total - float64(down)) / total * 100
	return math.Round(v*100) / 100
}

// FormatDuration renders minutes as "2 hours 5 minutes", "1 hour" or "7 minutes".
func FormatDuration(minutes int) string {
	hours := minutes / 60
	rest := minutes % 60
	switch {
	case hours > 0 && rest > 0:
		return plural(hours, "hour") + " " + plural(rest, "minute")
	case hours > 0:
		return plural(hours, "hour")
	default:
		return plural(rest, "minute")
	}
}

func plural(n int, unit string) string {
	if n > 1 {
		return fmt.Sprintf("%d %ss", n, unit)
	}
	return fmt.Sprintf("%d %s", n, unit)
}

// Tooltip builds the hover text of a single bar.
func Tooltip(date, zone string, minutes int) string {
	label := date
	if day, err := time.Parse(dateLayout, date); err == nil {
		label = day.Format("Jan 2, 2006")
	}
	if zone != "" {
		label += " (" + zone + ")"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Date: %s\nUptime: %.2f%%\n", label, UptimePercent(minutes))
	if minutes > 0 {
		b.WriteString("Incident Duration: ")
		b.WriteString(FormatDuration(minutes))
	}
	return b.String()
}

// BuildServiceHistories turns summaries and incidents into per-service strips.
func BuildServiceHistories(summaries []models.ServiceSummary, incidents []models.Incident, opts Options) []models.ServiceHistory {
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	days := opts.Days
	if days <= 0 {
		days = DefaultDays
	}
	zone := opts.Zone
	if zone == "" {
		zone = loc.String()
	}

	var index IncidentIndex
	if opts.UseIncidents {
		index = GroupIncidentsByLocalDate(incidents, loc, now, opts.StatusLabel)
	}
	dates := LastNDays(now, loc, days)
	labels := models.StripLabels{
		Left:  fmt.Sprintf("%d days ago", days),
		Right: "Today",
	}

	result := make([]models.ServiceHistory, 0, len(summaries))
	for _, summary := range summaries {
		if summary.Name == "" {
			continue
		}
		buckets := make([]models.DayBucket, 0, len(dates))
		for _, date := range dates {
			var minutes int
			if opts.UseIncidents {
				minutes = IncidentDowntime(index, summary.Slug, date, loc, now)
			} else {
				minutes = FallbackDowntime(summary.DailyMinutesDown, date, loc)
			}
			buckets = append(buckets, models.DayBucket{
				Date:          date,
				DownMinutes:   minutes,
				Severity:      Classify(minutes),
				UptimePercent: UptimePercent(minutes),
				Tooltip:       Tooltip(date, zone, minutes),
			})
		}
		result = append(result, models.ServiceHistory{
			Name:          summary.Name,
			Slug:          summary.Slug,
			Status:        summary.Status,
			StatusText:    summary.StatusText(),
			Days:          buckets,
			Labels:        labels,
			UptimePercent: WindowUptime(buckets),
		})
	}

	sort.SliceStable(result, func(i, j int) bool {
		return strings.ToLower(result[i].Name) < strings.ToLower(result[j].Name)
	})
	return result
}
