package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (f *fakeClock) Now() time.Time { return f.t }

func TestCacheExpiryKeepsStaleValue(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)}
	c, err := NewCache("")
	if err != nil {
		t.Fatalf("NewCache() error = %v", err)
	}
	c.SetClock(clock.Now)

	if err := c.Set("today", []string{"a", "b"}, 2*time.Minute, map[string]string{"date": "2026-10-19"}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	var got []string
	meta, ok := c.Get("today", &got)
	if !ok || !meta.Fresh(clock.Now()) {
		t.Fatalf("expected fresh hit, ok=%v meta=%+v", ok, meta)
	}
	if len(got) != 2 || meta.Tag("date") != "2026-10-19" {
		t.Fatalf("got %v tags %v", got, meta.Tags)
	}

	clock.t = clock.t.Add(3 * time.Minute)
	meta, ok = c.Get("today", &got)
	if !ok {
		t.Fatal("expected stale entry to remain readable")
	}
	if meta.Fresh(clock.Now()) {
		t.Fatal("entry should be stale after ttl")
	}
	if age := meta.Age(clock.Now()); age != 3*time.Minute {
		t.Fatalf("age = %v, want 3m", age)
	}
}

func TestCacheCorruptEntryIsDropped(t *testing.T) {
	c, err := NewCache("")
	if err != nil {
		t.Fatalf("NewCache() error = %v", err)
	}
	if err := c.Set("k", "text", time.Minute, nil); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	var n int
	if _, ok := c.Get("k", &n); ok {
		t.Fatal("expected decode mismatch to be reported as a miss")
	}
	if c.Len() != 0 {
		t.Fatalf("len = %d, want 0", c.Len())
	}
}

func TestCachePersistsAcrossReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "cache.json")
	c, err := NewCache(path)
	if err != nil {
		t.Fatalf("NewCache() error = %v", err)
	}
	if err := c.Set("clock", map[string]string{"tz": "UTC"}, time.Hour, nil); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	reloaded, err := NewCache(path)
	if err != nil {
		t.Fatalf("reload error = %v", err)
	}
	var got map[string]string
	if _, ok := reloaded.Get("clock", &got); !ok || got["tz"] != "UTC" {
		t.Fatalf("reloaded value = %v, ok=%v", got, ok)
	}

	matches, _ := filepath.Glob(path + ".*.tmp")
	if len(matches) != 0 {
		t.Fatalf("temp files left behind: %v", matches)
	}
}

func TestCacheRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewCache(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestCachePurge(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)}
	c, _ := NewCache("")
	c.SetClock(clock.Now)
	_ = c.Set("old", 1, time.Minute, nil)
	clock.t = clock.t.Add(10 * 24 * time.Hour)
	_ = c.Set("new", 2, time.Minute, nil)

	removed, err := c.Purge(7 * 24 * time.Hour)
	if err != nil {
		t.Fatalf("Purge() error = %v", err)
	}
	if removed != 1 || c.Len() != 1 {
		t.Fatalf("removed = %d len = %d", removed, c.Len())
	}
}

func TestCacheSetAtUsesCallerClock(t *testing.T) {
	sys := time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)
	c, _ := NewCache("")
	c.SetClock(func() time.Time { return sys })

	ref := sys.Add(5 * time.Minute)
	if err := c.SetAt("today", 1, ref, 2*time.Minute, nil); err != nil {
		t.Fatalf("SetAt() error = %v", err)
	}
	var v int
	meta, ok := c.Get("today", &v)
	if !ok || !meta.StoredAt.Equal(ref) || !meta.ExpiresAt.Equal(ref.Add(2*time.Minute)) {
		t.Fatalf("meta = %+v, want stamped at %v", meta, ref)
	}
	if !meta.Fresh(ref.Add(time.Minute)) || meta.Fresh(ref.Add(3*time.Minute)) {
		t.Fatalf("freshness must follow the caller clock, meta = %+v", meta)
	}
}
