package aggregate

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"uptimestrip/internal/config"
	"uptimestrip/internal/fetch"
	"uptimestrip/internal/models"
	"uptimestrip/internal/storage"
)

type fixedClock time.Time

func (c fixedClock) Now(context.Context) time.Time { return time.Time(c) }

const summaryBody = `[
  {"name":"Website","slug":"website","status":"up","dailyMinutesDown":{"2026-10-18":45}},
  {"name":"API","slug":"api","status":"degraded","dailyMinutesDown":{}}
]`

func newUpstream(t *testing.T, summaryFails, withIssues *atomic.Bool) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/summary.json", func(w http.ResponseWriter, r *http.Request) {
		if summaryFails.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, summaryBody)
	})
	mux.HandleFunc("/search/issues", func(w http.ResponseWriter, r *http.Request) {
		if !withIssues.Load() {
			fmt.Fprint(w, `{"total_count":0,"items":[]}`)
			return
		}
		fmt.Fprint(w, `{"total_count":1,"items":[{"title":"API slow","state":"closed","created_at":"2026-10-19T06:00:00Z","closed_at":"2026-10-19T06:20:00Z","labels":[{"name":"status"},{"name":"api"}]}]}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestService(t *testing.T, srv *httptest.Server) *Service {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Timezone = "UTC"
	cfg.Retry = config.Retry{MaxAttempts: 1}
	cfg.Sources = []config.Source{{
		ID:         "main",
		Name:       "Main",
		SummaryURL: srv.URL + "/summary.json",
		Issues: config.Issues{
			APIBase: srv.URL,
			Repo:    "acme/status",
			Label:   "status",
			PerPage: 100,
		},
		Enabled: true,
	}}
	cache, err := storage.NewCache("")
	if err != nil {
		t.Fatal(err)
	}
	client := fetch.NewClientWithHTTP(srv.Client(), cfg.Retry, config.RateLimit{})
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	cache.SetClock(func() time.Time { return now })
	svc, err := NewService(cfg, client, cache, fixedClock(now))
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	return svc
}

func findService(t *testing.T, snap models.Snapshot, name string) models.ServiceHistory {
	t.Helper()
	for _, svc := range snap.Services {
		if svc.Name == name {
			return svc
		}
	}
	t.Fatalf("service %q not in snapshot", name)
	return models.ServiceHistory{}
}

func TestRefreshUsesIncidentsWhenAvailable(t *testing.T) {
	var fails, issues atomic.Bool
	issues.Store(true)
	svc := newTestService(t, newUpstream(t, &fails, &issues))

	updates, release := svc.Subscribe()
	defer release()

	svc.Refresh(context.Background())

	select {
	case <-updates:
	default:
		t.Fatal("expected refresh notification")
	}

	snap, ok := svc.SourceSnapshot("main")
	if !ok || snap.Error != "" {
		t.Fatalf("snapshot = %+v", snap)
	}
	if !snap.UsedIssues || snap.Timezone != "UTC" {
		t.Fatalf("used issues = %v tz = %q", snap.UsedIssues, snap.Timezone)
	}
	api := findService(t, snap, "API")
	today := api.Days[len(api.Days)-1]
	if today.DownMinutes != 20 || today.Severity != models.SeverityMinor {
		t.Fatalf("api today = %+v", today)
	}
	if api.StatusText != "Degraded" {
		t.Fatalf("status text = %q", api.StatusText)
	}
	site := findService(t, snap, "Website")
	if site.Days[len(site.Days)-2].DownMinutes != 0 {
		t.Fatal("incident mode must not read the daily map")
	}
}

func TestRefreshFallsBackToDailyMap(t *testing.T) {
	var fails, issues atomic.Bool
	svc := newTestService(t, newUpstream(t, &fails, &issues))
	svc.Refresh(context.Background())

	snaps := svc.Snapshot()
	if len(snaps) != 1 || snaps[0].UsedIssues {
		t.Fatalf("snapshots = %+v", snaps)
	}
	site := findService(t, snaps[0], "Website")
	yesterday := site.Days[len(site.Days)-2]
	if yesterday.Date != "2026-10-18" || yesterday.DownMinutes != 45 || yesterday.Severity != models.SeverityPartial {
		t.Fatalf("yesterday = %+v", yesterday)
	}
}

func TestRefreshKeepsCachedSummaryOnFailure(t *testing.T) {
	var fails, issues atomic.Bool
	svc := newTestService(t, newUpstream(t, &fails, &issues))
	svc.Refresh(context.Background())

	fails.Store(true)
	svc.Refresh(context.Background())

	snap, _ := svc.SourceSnapshot("main")
	if snap.Error != "" || len(snap.Services) != 2 {
		t.Fatalf("snapshot = %+v", snap)
	}
}

func TestRefreshReportsErrorWithoutCache(t *testing.T) {
	var fails, issues atomic.Bool
	fails.Store(true)
	svc := newTestService(t, newUpstream(t, &fails, &issues))
	svc.Refresh(context.Background())

	snap, ok := svc.SourceSnapshot("main")
	if !ok || snap.Error == "" || len(snap.Services) != 0 {
		t.Fatalf("snapshot = %+v", snap)
	}
}

func TestStartStop(t *testing.T) {
	var fails, issues atomic.Bool
	svc := newTestService(t, newUpstream(t, &fails, &issues))
	updates, release := svc.Subscribe()
	defer release()

	svc.Start()
	select {
	case <-updates:
	case <-time.After(5 * time.Second):
		t.Fatal("no refresh after start")
	}
	svc.Stop()
	if len(svc.Snapshot()) != 1 {
		t.Fatal("expected snapshot after initial refresh")
	}
}
