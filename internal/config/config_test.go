package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Parallel()
	m := NewManager(filepath.Join(t.TempDir(), "agencyops.yaml"))
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Scheduler.TaskTimeout != "5m" || cfg.Paths.Clients != "clients" || cfg.Storage.Driver != "file" {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
	if m.Get() != cfg {
		t.Fatal("Load should commit the config")
	}
}

func TestLoadYAML(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "agencyops.yaml")
	writeFile(t, path, `
logging:
  level: debug
  console: true
scheduler:
  timezone: UTC
  task_timeout: 90s
  table:
    hourly:
      - name: Sync orders
        script: scripts/sync-orders.cjs
storage:
  driver: sqlite
dashboard:
  rate_limit:
    enabled: true
`)
	cfg, err := NewManager(path).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Logging.Level != "debug" || cfg.Scheduler.Timezone != "UTC" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if got := cfg.Scheduler.Table["hourly"]; len(got) != 1 || got[0].Script != "scripts/sync-orders.cjs" {
		t.Fatalf("unexpected table: %+v", cfg.Scheduler.Table)
	}
	if cfg.Storage.Path != "data/state/runs.db" {
		t.Fatalf("sqlite default path = %q", cfg.Storage.Path)
	}
	if cfg.Location().String() != "UTC" {
		t.Fatalf("Location = %s", cfg.Location())
	}
}

func TestParseRejectsUnknownAndInvalid(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	tests := []struct {
		name string
		body string
	}{
		{name: "unknown field", body: `{"telegram": {}}`},
		{name: "bad duration", body: `{"scheduler": {"task_timeout": "soon"}}`},
		{name: "bad timezone", body: `{"scheduler": {"timezone": "Mars/Olympus"}}`},
		{name: "bad driver", body: `{"storage": {"driver": "postgres"}}`},
		{name: "trailing data", body: `{} {}`},
		{name: "task without script", body: `{"scheduler": {"table": {"daily": [{"name": "x"}]}}}`},
	}
	for i, tt := range tests {
		path := filepath.Join(dir, tt.name+".json")
		writeFile(t, path, tt.body)
		if _, err := NewManager(path).Parse(); err == nil {
			t.Fatalf("case %d (%s): expected error", i, tt.name)
		}
	}
}

func TestSummarizeConfigChangeHidesSecret(t *testing.T) {
	t.Parallel()
	a := Default()
	b := Default()
	b.Dashboard.SessionSecret = "s3cret"
	b.Logging.Level = "debug"
	sections, _ := SummarizeConfigChange(a, b)
	if len(sections) != 2 || sections[0] != "dashboard" || sections[1] != "logging" {
		t.Fatalf("sections = %v", sections)
	}
	if s, _ := SummarizeConfigChange(a, Default()); len(s) != 0 {
		t.Fatalf("expected no changes, got %v", s)
	}
}

func TestWatchPublishesChanges(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agencyops.json")
	writeFile(t, path, `{"logging": {"level": "info"}}`)
	m := NewManager(path)
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	sub := m.Subscribe(1)
	defer m.Unsubscribe(sub)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	go func() { _ = m.Watch(ctx) }()

	// Give the watcher a moment to register before writing.
	time.Sleep(200 * time.Millisecond)
	writeFile(t, path, `{"logging": {"level": "debug"}}`)

	select {
	case cfg := <-sub:
		if cfg.Logging.Level != "debug" {
			t.Fatalf("published level = %q", cfg.Logging.Level)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for config publish")
	}
}
