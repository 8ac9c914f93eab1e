package history

import (
	"math"
	"time"
)

const (
	dateLayout = "2006-01-02"

	// MinutesPerDay caps the downtime attributed to a single day.
	MinutesPerDay = 24 * 60
)

// LocalDate formats t as a calendar date in loc.
func LocalDate(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(dateLayout)
}

// UTCDate formats t as a calendar date in UTC.
func UTCDate(t time.Time) string {
	return t.UTC().Format(dateLayout)
}

// LastNDays returns the n calendar dates ending today in loc, oldest first.
func LastNDays(now time.Time, loc *time.Location, n int) []string {
	if n <= 0 {
		return nil
	}
	local := now.In(loc)
	y, m, d := local.Date()
	days := make([]string, 0, n)
	for i := n - 1; i >= 0; i-- {
		// noon avoids landing on a skipped hour during DST transitions
		day := time.Date(y, m, d-i, 12, 0, 0, 0, loc)
		days = append(days, day.Format(dateLayout))
	}
	return days
}

// DayBounds returns the half-open interval [midnight, next midnight) of date in loc.
func DayBounds(date string, loc *time.Location) (time.Time, time.Time, error) {
	day, err := time.ParseInLocation(dateLayout, date, loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	y, m, d := day.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, loc)
	end := time.Date(y, m, d+1, 0, 0, 0, 0, loc)
	return start, end, nil
}

// NextDate returns the calendar date following date in loc.
func NextDate(date string, loc *time.Location) (string, error) {
	day, err := time.ParseInLocation(dateLayout, date, loc)
	if err != nil {
		return "", err
	}
	y, m, d := day.Date()
	return time.Date(y, m, d+1, 12, 0, 0, 0, loc).Format(dateLayout), nil
}

// OverlapMinutes returns the whole minutes of [start, end) that fall inside
// [dayStart, dayEnd), rounded up.
func OverlapMinutes(start, end, dayStart, dayEnd time.Time) int {
	if start.Before(dayStart) {
		start = dayStart
	}
	if end.After(dayEnd) {
		end = dayEnd
	}
	if !end.After(start) {
		return 0
	}
	return int(math.Ceil(end.Sub(start).Minutes()))
}

func capDay(minutes int) int {
	if minutes > MinutesPerDay {
		return MinutesPerDay
	}
	if minutes < 0 {
		return 0
	}
	return minutes
}
