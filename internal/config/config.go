package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"
)

// Config represents configuration data for the uptime strip service.
type Config struct {
	RefreshSeconds int       `yaml:"refresh_seconds"`
	DataDirectory  string    `yaml:"data_directory"`
	Timezone       string    `yaml:"timezone"`
	Days           int       `yaml:"days"`
	TimeAPIURL     string    `yaml:"time_api_url"`
	Retry          Retry     `yaml:"retry"`
	RateLimit      RateLimit `yaml:"rate_limit"`
	Cache          Cache     `yaml:"cache"`
	Sources        []Source  `yaml:"sources"`
}

// Retry controls how failed requests are repeated.
type Retry struct {
	MaxAttempts int `yaml:"max_attempts"`
	DelayMS     int `yaml:"delay_ms"`
}

// Delay returns the base backoff between attempts.
func (r Retry) Delay() time.Duration {
	return time.Duration(r.DelayMS) * time.Millisecond
}

// RateLimit bounds the outgoing request rate shared by all sources.
type RateLimit struct {
	RequestsPerMinute int `yaml:"requests_per_minute"`
	Burst             int `yaml:"burst"`
}

// Cache holds the lifetimes of cached upstream responses.
type Cache struct {
	TodayTTL      time.Duration `yaml:"today_ttl"`
	HistoricalTTL time.Duration `yaml:"historical_ttl"`
	ClockTTL      time.Duration `yaml:"clock_ttl"`
}

// Source is a status repository publishing a summary document and incident issues.
type Source struct {
	ID         string `yaml:"id"`
	Name       string `yaml:"name"`
	SummaryURL string `yaml:"summary_url"`
	Issues     Issues `yaml:"issues"`
	Enabled    bool   `yaml:"enabled"`
}

// Issues describes the issue search feeding incident records.
type Issues struct {
	APIBase string `yaml:"api_base"`
	Repo    string `yaml:"repo"`
	Author  string `yaml:"author"`
	Label   string `yaml:"label"`
	PerPage int    `yaml:"per_page"`
}

// Configured reports whether an issue search can be built for the source.
func (i Issues) Configured() bool {
	return strings.TrimSpace(i.Repo) != ""
}

// DefaultConfig returns sensible defaults in case no configuration file is provided.
func DefaultConfig() Config {
	return Config{
		RefreshSeconds: 120,
		DataDirectory:  filepath.Join(".dist", "data"),
		Timezone:       "Local",
		Days:           30,
		Retry: Retry{
			MaxAttempts: 3,
			DelayMS:     2000,
		},
		RateLimit: RateLimit{
			RequestsPerMinute: 30,
			Burst:             5,
		},
		Cache: Cache{
			TodayTTL:      2 * time.Minute,
			HistoricalTTL: 2 * time.Minute,
			ClockTTL:      24 * time.Hour,
		},
		Sources: []Source{
			{
				ID:         "azael-status",
				Name:       "Azael Status",
				SummaryURL: "https://raw.githubusercontent.com/Azael-Dev/azael-status/master/history/summary.json",
				Issues: Issues{
					APIBase: "https://api.github.com",
					Repo:    "Azael-Dev/azael-status",
					Author:  "Azael-Dev",
					Label:   "status",
					PerPage: 100,
				},
				Enabled: true,
			},
		},
	}
}

// Load reads configuration from yaml file. Missing files fall back to defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}

	content, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	cfg := DefaultConfig()
	cfg.Sources = nil
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.normalise(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) normalise() error {
	defaults := DefaultConfig()
	if c.RefreshSeconds <= 0 {
		c.RefreshSeconds = defaults.RefreshSeconds
	}
	if c.DataDirectory == "" {
		c.DataDirectory = defaults.DataDirectory
	}
	if strings.TrimSpace(c.Timezone) == "" {
		c.Timezone = defaults.Timezone
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.Days <= 0 {
		c.Days = defaults.Days
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = defaults.Retry.MaxAttempts
	}
	if c.Retry.DelayMS < 0 {
		c.Retry.DelayMS = defaults.Retry.DelayMS
	}
	if c.RateLimit.RequestsPerMinute <= 0 {
		c.RateLimit.RequestsPerMinute = defaults.RateLimit.RequestsPerMinute
	}
	if c.RateLimit.Burst <= 0 {
		c.RateLimit.Burst = defaults.RateLimit.Burst
	}
	if c.Cache.TodayTTL <= 0 {
		c.Cache.TodayTTL = defaults.Cache.TodayTTL
	}
	if c.Cache.HistoricalTTL <= 0 {
		c.Cache.HistoricalTTL = defaults.Cache.HistoricalTTL
	}
	if c.Cache.ClockTTL <= 0 {
		c.Cache.ClockTTL = defaults.Cache.ClockTTL
	}

	enabled := 0
	seen := make(map[string]struct{}, len(c.Sources))
	for i := range c.Sources {
		src := &c.Sources[i]
		if !src.Enabled {
			continue
		}
		if src.ID == "" {
			return fmt.Errorf("source %d is missing id", i)
		}
		if _, dup := seen[src.ID]; dup {
			return fmt.Errorf("source %s is defined twice", src.ID)
		}
		seen[src.ID] = struct{}{}
		if src.SummaryURL == "" {
			return fmt.Errorf("source %s summary_url is required", src.ID)
		}
		if src.Name == "" {
			src.Name = src.ID
		}
		if src.Issues.Configured() {
			if src.Issues.APIBase == "" {
				src.Issues.APIBase = "https://api.github.com"
			}
			if src.Issues.Label == "" {
				src.Issues.Label = "status"
			}
			if src.Issues.PerPage <= 0 || src.Issues.PerPage > 100 {
				src.Issues.PerPage = 100
			}
		}
		enabled++
	}
	if enabled == 0 {
		return errors.New("configuration must define at least one enabled source")
	}
	return nil
}

// Location resolves the configured timezone.
func (c Config) Location() (*time.Location, error) {
	if c.Timezone == "" || strings.EqualFold(c.Timezone, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// localtimePath is where the system timezone is linked from.
var localtimePath = "/etc/localtime"

// ZoneName returns the name of the configured timezone. "Local" resolves to
// the IANA name from $TZ or /etc/localtime when one can be found.
func (c Config) ZoneName() string {
	if c.Timezone != "" && !strings.EqualFold(c.Timezone, "local") {
		if loc, err := c.Location(); err == nil {
			return loc.String()
		}
		return c.Timezone
	}
	return localZoneName()
}

func localZoneName() string {
	if tz, ok := os.LookupEnv("TZ"); ok {
		tz = strings.TrimPrefix(tz, ":")
		if tz == "" {
			return "UTC"
		}
		if name := zoneFromPath(tz); name != "" {
			return name
		}
		if _, err := time.LoadLocation(tz); err == nil {
			return tz
		}
		return "Local"
	}
	if target, err := filepath.EvalSymlinks(localtimePath); err == nil {
		if name := zoneFromPath(target); name != "" {
			return name
		}
	}
	return "Local"
}

func zoneFromPath(path string) string {
	const marker = "zoneinfo/"
	path = filepath.ToSlash(path)
	i := strings.LastIndex(path, marker)
	if i < 0 {
		return ""
	}
	return path[i+len(marker):]
}

// RefreshInterval returns the delay between two refreshes.
func (c Config) RefreshInterval() time.Duration {
	return time.Duration(c.RefreshSeconds) * time.Second
}

// EnabledSources lists the sources that should be refreshed.
func (c Config) EnabledSources() []Source {
	out := make([]Source, 0, len(c.Sources))
	for _, src := range c.Sources {
		if src.Enabled {
			out = append(out, src)
		}
	}
	return out
}
