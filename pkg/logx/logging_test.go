package logx

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestResolvePathDateToken(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC)
	got := ResolvePath(" logs/scheduler-{date}.log ", now)
	if got != "logs/scheduler-2026-03-09.log" {
		t.Fatalf("ResolvePath = %q", got)
	}
	if ResolvePath("", now) != "" {
		t.Fatal("expected empty path to stay empty")
	}
}

func TestServiceFileSinkWritesJSON(t *testing.T) {
	dir := t.TempDir()
	svc, log := New(Config{
		Level: "debug",
		File:  FileConfig{Enabled: true, Path: filepath.Join(dir, "run-{date}.log")},
	})
	t.Cleanup(func() { _ = svc.Close() })

	log.With(String("comp", "test")).Info("task finished", Int("exit_code", 0))

	path := svc.FilePath()
	if !strings.HasSuffix(path, time.Now().Format("2006-01-02")+".log") {
		t.Fatalf("unexpected file path %q", path)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(b), &m); err != nil {
		t.Fatalf("log line is not JSON: %v (%s)", err, b)
	}
	if m["message"] != "task finished" || m["comp"] != "test" {
		t.Fatalf("unexpected log record: %v", m)
	}
}

func TestLevelFiltering(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := NewWriter(&buf, "warn")
	log.Info("hidden")
	log.Warn("shown")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Fatalf("unexpected output: %s", buf.String())
	}
	if Nop().Enabled(LevelError) {
		t.Fatal("nop logger should not be enabled")
	}
}

func TestZeroLoggerIsSafe(t *testing.T) {
	t.Parallel()
	var l Logger
	if !l.IsZero() {
		t.Fatal("zero logger should report IsZero")
	}
	l.Info("no panic")
}

func TestApplySwapsSinksForExistingLoggers(t *testing.T) {
	dir := t.TempDir()
	first, second := filepath.Join(dir, "a.log"), filepath.Join(dir, "b.log")
	svc, log := New(Config{Level: "info", File: FileConfig{Enabled: true, Path: first}})
	t.Cleanup(func() { _ = svc.Close() })
	child := log.With(String("comp", "daemon"))

	child.Info("before")
	svc.Apply(Config{Level: "info", File: FileConfig{Enabled: true, Path: second}})
	child.Info("after")
	svc.SetLevel("error")
	child.Warn("suppressed")

	if svc.FilePath() != second {
		t.Fatalf("FilePath = %q, want %q", svc.FilePath(), second)
	}
	a, _ := os.ReadFile(first)
	b, _ := os.ReadFile(second)
	if !strings.Contains(string(a), "before") || strings.Contains(string(a), "after") {
		t.Fatalf("first sink: %s", a)
	}
	if !strings.Contains(string(b), "after") || strings.Contains(string(b), "suppressed") {
		t.Fatalf("second sink: %s", b)
	}
}

func TestApplyKeepsPreviousFileForInFlightEvents(t *testing.T) {
	dir := t.TempDir()
	first, second := filepath.Join(dir, "a.log"), filepath.Join(dir, "b.log")
	svc, _ := New(Config{Level: "info", File: FileConfig{Enabled: true, Path: first}})
	t.Cleanup(func() { _ = svc.Close() })

	// An event that loaded the old logger right before the swap.
	old := svc.current()
	svc.Apply(Config{Level: "info", File: FileConfig{Enabled: true, Path: second}})
	old.Info().Msg("in-flight")

	a, _ := os.ReadFile(first)
	if !strings.Contains(string(a), "in-flight") {
		t.Fatalf("event written during rotation was lost: %q", a)
	}
}

func TestTextFileSinkWritesPlainLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scheduler.log")
	svc, log := New(Config{Level: "info", File: FileConfig{Enabled: true, Path: path, Text: true}})
	t.Cleanup(func() { _ = svc.Close() })

	log.Info("task failed", String("task", "sync-flows"), Int("exit_code", 3))

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	line := string(b)
	if json.Valid(bytes.TrimSpace(b)) {
		t.Fatalf("text sink wrote JSON: %s", line)
	}
	if !strings.Contains(line, "task failed") || !strings.Contains(line, "task=sync-flows") || strings.Contains(line, "\x1b[") {
		t.Fatalf("unexpected text line: %q", line)
	}
}
