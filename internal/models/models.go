package models

import (
	"strings"
	"time"
)

// ServiceSummary is one entry of the status repository's summary document.
type ServiceSummary struct {
	Name             string         `json:"name"`
	URL              string         `json:"url,omitempty"`
	Slug             string         `json:"slug"`
	Status           string         `json:"status,omitempty"`
	Uptime           string         `json:"uptime,omitempty"`
	Time             int            `json:"time,omitempty"`
	DailyMinutesDown map[string]int `json:"dailyMinutesDown"`
}

// StatusText maps the summary status to the label shown next to a service.
func (s ServiceSummary) StatusText() string {
	switch strings.ToLower(s.Status) {
	case "up":
		return "Operational"
	case "degraded":
		return "Degraded"
	case "down":
		return "Down"
	default:
		return ""
	}
}

// Label is an issue label as returned by the issue search API.
type Label struct {
	Name string `json:"name"`
}

// Incident is an issue describing an outage of a single service.
type Incident struct {
	Title     string     `json:"title"`
	State     string     `json:"state"`
	CreatedAt time.Time  `json:"created_at"`
	ClosedAt  *time.Time `json:"closed_at,omitempty"`
	Labels    []Label    `json:"labels,omitempty"`
}

// End returns the closing time, or now for incidents still open.
func (i Incident) End(now time.Time) time.Time {
	if i.ClosedAt == nil || i.ClosedAt.IsZero() {
		return now
	}
	return *i.ClosedAt
}
