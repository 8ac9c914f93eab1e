package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadMissingReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Days != 30 || cfg.Retry.MaxAttempts != 3 || cfg.Cache.TodayTTL != 2*time.Minute {
		t.Fatalf("defaults = %+v", cfg)
	}
	if len(cfg.EnabledSources()) != 1 {
		t.Fatalf("sources = %+v", cfg.Sources)
	}
}

func TestLoadAppliesDefaultsAndDurations(t *testing.T) {
	path := writeConfig(t, `
timezone: Asia/Bangkok
cache:
  today_ttl: 5m
  clock_ttl: 12h
sources:
  - id: main
    summary_url: https://example.com/summary.json
    enabled: true
    issues:
      repo: acme/status
  - id: off
    enabled: false
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Cache.TodayTTL != 5*time.Minute || cfg.Cache.ClockTTL != 12*time.Hour {
		t.Fatalf("cache = %+v", cfg.Cache)
	}
	if cfg.Cache.HistoricalTTL != 2*time.Minute {
		t.Fatalf("historical ttl = %v, want default", cfg.Cache.HistoricalTTL)
	}
	src := cfg.EnabledSources()
	if len(src) != 1 || src[0].Name != "main" {
		t.Fatalf("enabled = %+v", src)
	}
	issues := src[0].Issues
	if issues.APIBase != "https://api.github.com" || issues.Label != "status" || issues.PerPage != 100 {
		t.Fatalf("issues = %+v", issues)
	}
	loc, err := cfg.Location()
	if err != nil || loc.String() != "Asia/Bangkok" {
		t.Fatalf("location = %v, err = %v", loc, err)
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"no sources", "sources: []\n", "at least one enabled source"},
		{"missing id", "sources:\n  - summary_url: x\n    enabled: true\n", "missing id"},
		{"missing url", "sources:\n  - id: a\n    enabled: true\n", "summary_url is required"},
		{"duplicate", "sources:\n  - {id: a, summary_url: x, enabled: true}\n  - {id: a, summary_url: y, enabled: true}\n", "defined twice"},
		{"bad timezone", "timezone: Mars/Olympus\nsources:\n  - {id: a, summary_url: x, enabled: true}\n", "load timezone"},
		{"bad yaml", "sources: [\n", "parse config"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.body))
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("err = %v, want %q", err, tc.want)
			}
		})
	}
}

func TestZoneNameResolvesLocal(t *testing.T) {
	if got := (Config{Timezone: "Asia/Bangkok"}).ZoneName(); got != "Asia/Bangkok" {
		t.Fatalf("explicit zone = %q", got)
	}

	tests := []struct {
		name string
		tz   string
		want string
	}{
		{"iana name", "Europe/Paris", "Europe/Paris"},
		{"zoneinfo path", ":/usr/share/zoneinfo/America/New_York", "America/New_York"},
		{"empty means utc", "", "UTC"},
		{"unknown", "Mars/Olympus", "Local"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("TZ", tc.tz)
			if got := (Config{Timezone: "Local"}).ZoneName(); got != tc.want {
				t.Fatalf("ZoneName() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestZoneNameFromLocaltimeLink(t *testing.T) {
	dir := t.TempDir()
	zoneFile := filepath.Join(dir, "zoneinfo", "Asia", "Tokyo")
	if err := os.MkdirAll(filepath.Dir(zoneFile), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(zoneFile, []byte("TZif"), 0o644); err != nil {
		t.Fatal(err)
	}
	link := filepath.Join(dir, "localtime")
	if err := os.Symlink(zoneFile, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	prev := localtimePath
	localtimePath = link
	t.Cleanup(func() { localtimePath = prev })
	t.Setenv("TZ", "")
	os.Unsetenv("TZ")

	if got := (Config{}).ZoneName(); got != "Asia/Tokyo" {
		t.Fatalf("ZoneName() = %q, want Asia/Tokyo", got)
	}
}
