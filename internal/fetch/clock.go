package fetch

import (
	"context"
	"log"
	"strings"
	"time"

	"uptimestrip/internal/storage"
)

type clockEntry struct {
	Zone string `json:"tz"`
	// Offset is the reference time minus the local system time.
	Offset time.Duration `json:"offset"`
}

type timeAPIResponse struct {
	Datetime string `json:"datetime"`
}

// Clock supplies "now", optionally corrected by a remote time API so that a
// skewed system clock does not shift the rendered days.
type Clock struct {
	client *Client
	cache  *storage.Cache
	apiURL string
	zone   string
	ttl    time.Duration
	system func() time.Time
}

// NewClock creates a clock. An empty apiURL disables the remote lookup.
func NewClock(client *Client, cache *storage.Cache, apiURL, zone string, ttl time.Duration) *Clock {
	// the offset is zone independent, any valid zone name will do
	if zone == "" || strings.EqualFold(zone, "local") {
		zone = "Etc/UTC"
	}
	return &Clock{
		client: client,
		cache:  cache,
		apiURL: strings.TrimSuffix(apiURL, "/"),
		zone:   zone,
		ttl:    ttl,
		system: time.Now,
	}
}

// Now returns the corrected current time. Failures fall back to the system clock.
func (c *Clock) Now(ctx context.Context) time.Time {
	sys := c.system()
	if c.apiURL == "" || c.client == nil || c.cache == nil {
		return sys
	}

	key := "clock:" + c.zone
	var cached clockEntry
	meta, hit := c.cache.Get(key, &cached)
	if hit && cached.Zone == c.zone && meta.Fresh(sys) {
		return sys.Add(cached.Offset)
	}

	var resp timeAPIResponse
	err := c.client.GetJSON(ctx, c.apiURL+"/"+c.zone, &resp)
	var ref time.Time
	if err == nil {
		ref, err = time.Parse(time.RFC3339Nano, resp.Datetime)
	}
	if err != nil {
		log.Printf("time api unavailable, using system clock: %v", err)
		if !hit {
			_ = c.cache.SetAt(key, clockEntry{Zone: c.zone}, sys, c.ttl, nil)
		}
		return sys
	}

	entry := clockEntry{Zone: c.zone, Offset: ref.Sub(sys)}
	if err := c.cache.SetAt(key, entry, sys, c.ttl, nil); err != nil {
		log.Printf("cache clock offset: %v", err)
	}
	return sys.Add(entry.Offset)
}
