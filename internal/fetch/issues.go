package fetch

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"uptimestrip/internal/config"
	"uptimestrip/internal/history"
	"uptimestrip/internal/models"
	"uptimestrip/internal/storage"
)

// historicalWindowDays is how far back the historical query reaches, in UTC days.
const historicalWindowDays = 30

type searchResponse struct {
	TotalCount int               `json:"total_count"`
	Items      []models.Incident `json:"items"`
}

// IssueResult holds incidents gathered from the today and historical queries.
type IssueResult struct {
	Today      []models.Incident
	Historical []models.Incident
}

// All returns both query results concatenated.
func (r IssueResult) All() []models.Incident {
	out := make([]models.Incident, 0, len(r.Today)+len(r.Historical))
	out = append(out, r.Today...)
	return append(out, r.Historical...)
}

// HasData reports whether any incident was returned.
func (r IssueResult) HasData() bool {
	return len(r.Today) > 0 || len(r.Historical) > 0
}

// IssueSearcher fetches incident issues for a source, caching responses.
type IssueSearcher struct {
	client *Client
	cache  *storage.Cache
	source config.Source
	ttl    config.Cache
	loc    *time.Location
}

// NewIssueSearcher creates a searcher for a single source.
func NewIssueSearcher(client *Client, cache *storage.Cache, source config.Source, ttl config.Cache, loc *time.Location) *IssueSearcher {
	if loc == nil {
		loc = time.Local
	}
	return &IssueSearcher{
		client: client,
		cache:  cache,
		source: source,
		ttl:    ttl,
		loc:    loc,
	}
}

// Fetch runs the today and historical queries concurrently. It never fails:
// a failed query falls back to its cached result or an empty list, and the
// other query still completes.
func (s *IssueSearcher) Fetch(ctx context.Context, now time.Time) IssueResult {
	var result IssueResult
	if !s.source.Issues.Configured() {
		return result
	}

	// no shared context: one query failing must not cancel the other
	var g errgroup.Group
	g.Go(func() error {
		var err error
		result.Today, err = s.fetchToday(ctx, now)
		return err
	})
	g.Go(func() error {
		var err error
		result.Historical, err = s.fetchHistorical(ctx, now)
		return err
	})
	if err := g.Wait(); err != nil {
		if errors.Is(err, ErrRateLimited) {
			log.Printf("source %s: issue search rate limited, using cached issues", s.source.ID)
		} else {
			log.Printf("source %s: %v", s.source.ID, err)
		}
	}
	return result
}

// Query builds the search expression for a created-date filter.
func (s *IssueSearcher) Query(created string) string {
	parts := []string{"repo:" + s.source.Issues.Repo}
	if s.source.Issues.Author != "" {
		parts = append(parts, "author:"+s.source.Issues.Author)
	}
	if s.source.Issues.Label != "" {
		parts = append(parts, "label:"+s.source.Issues.Label)
	}
	parts = append(parts, "created:"+created)
	return strings.Join(parts, " ")
}

// SearchURL returns the issue search endpoint for a created-date filter.
func (s *IssueSearcher) SearchURL(created string) string {
	base := strings.TrimSuffix(s.source.Issues.APIBase, "/")
	return fmt.Sprintf("%s/search/issues?q=%s&per_page=%d", base, url.QueryEscape(s.Query(created)), s.source.Issues.PerPage)
}

func (s *IssueSearcher) todayKey() string {
	return "issues:today:" + s.source.ID
}

func (s *IssueSearcher) historicalKey() string {
	return "issues:historical:" + s.source.ID
}

func (s *IssueSearcher) fetchToday(ctx context.Context, now time.Time) ([]models.Incident, error) {
	key := s.todayKey()
	todayUTC := history.UTCDate(now)
	todayLocal := history.LocalDate(now, s.loc)

	var cached []models.Incident
	meta, hit := s.cache.Get(key, &cached)
	if hit && meta.Fresh(now) && meta.Tag("local_date") == todayLocal {
		return cached, nil
	}

	items, err := s.search(ctx, todayUTC)
	if err != nil {
		return fallback(cached, hit), fmt.Errorf("fetch today issues: %w", err)
	}
	if err := s.cache.SetAt(key, items, now, s.ttl.TodayTTL, map[string]string{"local_date": todayLocal}); err != nil {
		log.Printf("source %s: cache today issues: %v", s.source.ID, err)
	}
	return items, nil
}

func (s *IssueSearcher) fetchHistorical(ctx context.Context, now time.Time) ([]models.Incident, error) {
	key := s.historicalKey()
	end := history.UTCDate(now)
	start := history.UTCDate(now.UTC().AddDate(0, 0, -historicalWindowDays))
	todayLocal := history.LocalDate(now, s.loc)

	var cached []models.Incident
	meta, hit := s.cache.Get(key, &cached)
	if hit && meta.Fresh(now) && meta.Tag("end") == end && meta.Tag("local_date") == todayLocal {
		return cached, nil
	}

	items, err := s.search(ctx, start+".."+end)
	if err != nil {
		return fallback(cached, hit), fmt.Errorf("fetch historical issues: %w", err)
	}
	tags := map[string]string{
		"start":      start,
		"end":        end,
		"local_date": todayLocal,
	}
	if err := s.cache.SetAt(key, items, now, s.ttl.HistoricalTTL, tags); err != nil {
		log.Printf("source %s: cache historical issues: %v", s.source.ID, err)
	}
	return items, nil
}

func (s *IssueSearcher) search(ctx context.Context, created string) ([]models.Incident, error) {
	var resp searchResponse
	if err := s.client.GetJSON(ctx, s.SearchURL(created), &resp); err != nil {
		return nil, err
	}
	if resp.Items == nil {
		return []models.Incident{}, nil
	}
	return resp.Items, nil
}

// fallback returns the stale cached incidents, if any.
func fallback(cached []models.Incident, hit bool) []models.Incident {
	if hit {
		return cached
	}
	return nil
}
