package history

import (
	"sort"
	"time"

	"uptimestrip/internal/models"
)

// maxSpanDays bounds how many local dates a single incident may cover.
const maxSpanDays = 365

// IncidentIndex groups incidents by service slug and local date.
type IncidentIndex map[string]map[string][]models.Incident

// IncidentSlug returns the first label that is not the status label.
func IncidentSlug(incident models.Incident, statusLabel string) string {
	for _, label := range incident.Labels {
		if label.Name != "" && label.Name != statusLabel {
			return label.Name
		}
	}
	return ""
}

// GroupIncidentsByLocalDate files every incident under each local date it
// spans, from its creation date to its closing date (or now) inclusive.
func GroupIncidentsByLocalDate(incidents []models.Incident, loc *time.Location, now time.Time, statusLabel string) IncidentIndex {
	index := make(IncidentIndex)
	for _, incident := range incidents {
		if incident.CreatedAt.IsZero() || len(incident.Labels) == 0 {
			continue
		}
		slug := IncidentSlug(incident, statusLabel)
		if slug == "" {
			continue
		}

		first := LocalDate(incident.CreatedAt, loc)
		last := LocalDate(incident.End(now), loc)
		current := first
		for i := 0; current <= last && i < maxSpanDays; i++ {
			index.add(slug, current, incident)
			next, err := NextDate(current, loc)
			if err != nil {
				break
			}
			current = next
		}
	}
	return index
}

func (idx IncidentIndex) add(slug, date string, incident models.Incident) {
	byDate := idx[slug]
	if byDate == nil {
		byDate = make(map[string][]models.Incident)
		idx[slug] = byDate
	}
	for _, existing := range byDate[date] {
		if existing.CreatedAt.Equal(incident.CreatedAt) {
			return
		}
	}
	byDate[date] = append(byDate[date], incident)
}

// Incidents returns the incidents filed for slug on date, oldest first.
func (idx IncidentIndex) Incidents(slug, date string) []models.Incident {
	list := idx[slug][date]
	if len(list) == 0 {
		return nil
	}
	out := make([]models.Incident, len(list))
	copy(out, list)
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// IncidentDowntime sums the portion of each incident falling inside the
// local date, rounding every incident up to whole minutes.
func IncidentDowntime(idx IncidentIndex, slug, date string, loc *time.Location, now time.Time) int {
	list := idx[slug][date]
	if len(list) == 0 {
		return 0
	}
	dayStart, dayEnd, err := DayBounds(date, loc)
	if err != nil {
		return 0
	}
	total := 0
	for _, incident := range list {
		total += OverlapMinutes(incident.CreatedAt, incident.End(now), dayStart, dayEnd)
	}
	return capDay(total)
}

// FallbackDowntime maps per-UTC-day downtime onto a local date. Each UTC
// day is attributed whole to the local date containing its UTC noon.
func FallbackDowntime(dailyMinutesDown map[string]int, date string, loc *time.Location) int {
	total := 0
	for utcDate, minutes := range dailyMinutesDown {
		if minutes <= 0 {
			continue
		}
		day, err := time.ParseInLocation(dateLayout, utcDate, time.UTC)
		if err != nil {
			continue
		}
		noon := day.Add(12 * time.Hour)
		if LocalDate(noon, loc) == date {
			total += minutes
		}
	}
	return capDay(total)
}
