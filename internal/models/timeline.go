package models

import "time"

// Severity classifies a single day of a service's history.
type Severity string

const (
	SeverityUp      Severity = "up"
	SeverityMinor   Severity = "minor"
	SeverityPartial Severity = "partial"
	SeverityMajor   Severity = "major"
)

// DayBucket is one bar of the uptime strip.
type DayBucket struct {
	Date          string   `json:"date"`
	DownMinutes   int      `json:"down_minutes"`
	Severity      Severity `json:"severity"`
	UptimePercent float64  `json:"uptime_percent"`
	Tooltip       string   `json:"tooltip"`
}

// StripLabels are the captions under both ends of the strip.
type StripLabels struct {
	Left  string `json:"left"`
	Right string `json:"right"`
}

// ServiceHistory aggregates the day buckets of a single service.
type ServiceHistory struct {
	Name       string      `json:"name"`
	Slug       string      `json:"slug"`
	Status     string      `json:"status,omitempty"`
	StatusText string      `json:"status_text,omitempty"`
	Days       []DayBucket `json:"days"`
	Labels     StripLabels `json:"labels"`

	// UptimePercent covers the whole rendered window.
	UptimePercent float64 `json:"uptime_percent"`
}

// Snapshot is the derived state of one status source at a point in time.
type Snapshot struct {
	SourceID    string           `json:"source_id"`
	SourceName  string           `json:"source_name"`
	GeneratedAt time.Time        `json:"generated_at"`
	Timezone    string           `json:"timezone"`
	UsedIssues  bool             `json:"used_issues"`
	Services    []ServiceHistory `json:"services"`
	Error       string           `json:"error,omitempty"`
}
