package aggregate

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"uptimestrip/internal/config"
	"uptimestrip/internal/fetch"
	"uptimestrip/internal/history"
	"uptimestrip/internal/models"
	"uptimestrip/internal/storage"
)

const (
	refreshTimeout = 2 * time.Minute
	summaryTTL     = 24 * time.Hour
	purgeGrace     = 7 * 24 * time.Hour
)

// Clock supplies the reference time for a refresh.
type Clock interface {
	Now(ctx context.Context) time.Time
}

type sourceState struct {
	source   config.Source
	searcher *fetch.IssueSearcher
}

// Service refreshes every configured source and keeps the latest snapshots.
type Service struct {
	client  *fetch.Client
	cache   *storage.Cache
	clock   Clock
	loc     *time.Location
	zone    string
	days    int
	refresh time.Duration
	sources []sourceState

	mu        sync.RWMutex
	snapshots map[string]models.Snapshot
	subs      map[chan struct{}]struct{}

	started atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewService wires the sources of cfg to a shared client, cache and clock.
func NewService(cfg config.Config, client *fetch.Client, cache *storage.Cache, clock Clock) (*Service, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	zone := cfg.ZoneName()

	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		client:    client,
		cache:     cache,
		clock:     clock,
		loc:       loc,
		zone:      zone,
		days:      cfg.Days,
		refresh:   cfg.RefreshInterval(),
		snapshots: make(map[string]models.Snapshot),
		subs:      make(map[chan struct{}]struct{}),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	for _, src := range cfg.EnabledSources() {
		s.sources = append(s.sources, sourceState{
			source:   src,
			searcher: fetch.NewIssueSearcher(client, cache, src, cfg.Cache, loc),
		})
	}
	return s, nil
}

// Start launches the background refresh loop.
func (s *Service) Start() {
	if s.started.CompareAndSwap(false, true) {
		go s.run()
	}
}

// Stop terminates the refresh loop and waits for it to exit.
func (s *Service) Stop() {
	s.cancel()
	if s.started.Load() {
		<-s.done
	}
}

func (s *Service) run() {
	defer close(s.done)

	ticker := time.NewTicker(s.refresh)
	defer ticker.Stop()

	s.Refresh(s.ctx)

	for {
		select {
		case <-ticker.C:
			s.Refresh(s.ctx)
		case <-s.ctx.Done():
			return
		}
	}
}

// Refresh rebuilds the snapshot of every source and notifies subscribers.
func (s *Service) Refresh(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, refreshTimeout)
	defer cancel()

	now := s.clock.Now(ctx)
	for _, state := range s.sources {
		snap := s.refreshSource(ctx, state, now)
		s.mu.Lock()
		s.snapshots[state.source.ID] = snap
		s.mu.Unlock()
	}
	if removed, err := s.cache.Purge(purgeGrace); err != nil {
		log.Printf("purge cache: %v", err)
	} else if removed > 0 {
		log.Printf("purged %d expired cache entries", removed)
	}
	s.notify()
}

func (s *Service) refreshSource(ctx context.Context, state sourceState, now time.Time) models.Snapshot {
	src := state.source
	snap := models.Snapshot{
		SourceID:    src.ID,
		SourceName:  src.Name,
		GeneratedAt: now.UTC(),
		Timezone:    s.zone,
	}

	summaries, err := s.loadSummary(ctx, src)
	if err != nil {
		log.Printf("source %s: %v", src.ID, err)
		s.mu.RLock()
		prev, ok := s.snapshots[src.ID]
		s.mu.RUnlock()
		if ok {
			snap.Services = prev.Services
			snap.UsedIssues = prev.UsedIssues
		}
		snap.Error = err.Error()
		return snap
	}

	issues := state.searcher.Fetch(ctx, now)
	snap.UsedIssues = issues.HasData()
	snap.Services = history.BuildServiceHistories(summaries, issues.All(), history.Options{
		Location:     s.loc,
		Zone:         s.zone,
		Now:          now,
		Days:         s.days,
		StatusLabel:  src.Issues.Label,
		UseIncidents: snap.UsedIssues,
	})
	return snap
}

func (s *Service) loadSummary(ctx context.Context, src config.Source) ([]models.ServiceSummary, error) {
	key := "summary:" + src.ID
	summaries, err := s.client.FetchSummary(ctx, src.SummaryURL)
	if err == nil {
		if cerr := s.cache.Set(key, summaries, summaryTTL, nil); cerr != nil {
			log.Printf("source %s: cache summary: %v", src.ID, cerr)
		}
		return summaries, nil
	}

	var cached []models.ServiceSummary
	if meta, ok := s.cache.Get(key, &cached); ok {
		log.Printf("source %s: summary unavailable (%v), using copy from %s", src.ID, err, meta.StoredAt.Format(time.RFC3339))
		return cached, nil
	}
	return nil, fmt.Errorf("load summary: %w", err)
}

// Snapshot returns the latest snapshot of every source in configuration order.
func (s *Service) Snapshot() []models.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Snapshot, 0, len(s.sources))
	for _, state := range s.sources {
		if snap, ok := s.snapshots[state.source.ID]; ok {
			out = append(out, snap)
		}
	}
	return out
}

// SourceSnapshot returns the latest snapshot of a single source.
func (s *Service) SourceSnapshot(id string) (models.Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.snapshots[id]
	return snap, ok
}

// Subscribe returns a channel signalled after every refresh and a function
// releasing it.
func (s *Service) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	s.mu.Lock()
	s.subs[ch] = struct{}{}
	s.mu.Unlock()
	return ch, func() {
		s.mu.Lock()
		delete(s.subs, ch)
		s.mu.Unlock()
	}
}

func (s *Service) notify() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
