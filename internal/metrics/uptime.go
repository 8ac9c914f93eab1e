package metrics

import (
	"uptimestrip/internal/history"
	"uptimestrip/internal/models"
)

var severityRank = map[models.Severity]int{
	models.SeverityUp:      0,
	models.SeverityMinor:   1,
	models.SeverityPartial: 2,
	models.SeverityMajor:   3,
}

// ServiceUptime summarises health of a service over the rendered window.
type ServiceUptime struct {
	Source        string          `json:"source"`
	Name          string          `json:"name"`
	Slug          string          `json:"slug"`
	UptimePercent float64         `json:"uptime_percent"`
	DownMinutes   int             `json:"down_minutes"`
	Days          int             `json:"days"`
	DaysUp        int             `json:"days_up"`
	DaysMinor     int             `json:"days_minor"`
	DaysPartial   int             `json:"days_partial"`
	DaysMajor     int             `json:"days_major"`
	Worst         models.Severity `json:"worst"`
	LastIncident  string          `json:"last_incident,omitempty"`
}

// ComputeServiceUptime aggregates window uptime per service of every snapshot.
func ComputeServiceUptime(snapshots []models.Snapshot) []ServiceUptime {
	var results []ServiceUptime
	for _, snap := range snapshots {
		for _, svc := range snap.Services {
			results = append(results, summarise(snap.SourceID, svc))
		}
	}
	return results
}

func summarise(source string, svc models.ServiceHistory) ServiceUptime {
	result := ServiceUptime{
		Source: source,
		Name:   svc.Name,
		Slug:   svc.Slug,
		Days:   len(svc.Days),
		Worst:  models.SeverityUp,
	}
	for _, day := range svc.Days {
		result.DownMinutes += day.DownMinutes
		switch day.Severity {
		case models.SeverityMinor:
			result.DaysMinor++
		case models.SeverityPartial:
			result.DaysPartial++
		case models.SeverityMajor:
			result.DaysMajor++
		default:
			result.DaysUp++
		}
		if severityRank[day.Severity] > severityRank[result.Worst] {
			result.Worst = day.Severity
		}
		if day.DownMinutes > 0 {
			result.LastIncident = day.Date
		}
	}

	result.UptimePercent = history.WindowUptime(svc.Days)
	return result
}
