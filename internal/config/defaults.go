package config

import (
	"fmt"
	"strings"
	"time"
)

// Default returns a config with every default filled in.
func Default() *Config {
	c := &Config{}
	c.Logging.Console = true
	c.Normalize()
	return c
}

// Normalize fills zero values with defaults. It never overrides explicit values.
func (c *Config) Normalize() {
	if strings.TrimSpace(c.Logging.Level) == "" {
		c.Logging.Level = "info"
	}
	if c.Paths.Clients == "" {
		c.Paths.Clients = "clients"
	}
	if c.Paths.Data == "" {
		c.Paths.Data = "data"
	}
	if c.Paths.Scripts == "" {
		c.Paths.Scripts = "scripts"
	}
	if c.Paths.EnvFile == "" {
		c.Paths.EnvFile = ".env"
	}
	if c.Scheduler.TaskTimeout == "" {
		c.Scheduler.TaskTimeout = "5m"
	}
	if c.Scheduler.LogDir == "" {
		c.Scheduler.LogDir = "logs"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "file"
	}
	if c.Storage.Path == "" {
		switch strings.ToLower(c.Storage.Driver) {
		case "sqlite", "sqlite3":
			c.Storage.Path = "data/state/runs.db"
		default:
			c.Storage.Path = "data/state/runs"
		}
	}
	if c.Dashboard.Addr == "" {
		c.Dashboard.Addr = "127.0.0.1:8787"
	}
	if c.Dashboard.SessionTTL == "" {
		c.Dashboard.SessionTTL = "12h"
	}
	if c.Dashboard.MaxBodyBytes <= 0 {
		c.Dashboard.MaxBodyBytes = 1 << 20
	}
	if c.Dashboard.RateLimit.Requests <= 0 {
		c.Dashboard.RateLimit.Requests = 120
	}
	if c.Dashboard.RateLimit.Window == "" {
		c.Dashboard.RateLimit.Window = "1m"
	}
	if c.Probe.Timeout == "" {
		c.Probe.Timeout = "10s"
	}
	if c.Probe.Concurrency <= 0 {
		c.Probe.Concurrency = 4
	}
	if c.Probe.RatePerSec <= 0 {
		c.Probe.RatePerSec = 5
	}
}

// Validate rejects configs that would fail later at runtime.
func (c *Config) Validate() error {
	durations := []struct{ path, raw string }{
		{"scheduler.task_timeout", c.Scheduler.TaskTimeout},
		{"storage.busy_timeout", c.Storage.BusyTimeout},
		{"dashboard.session_ttl", c.Dashboard.SessionTTL},
		{"dashboard.read_timeout", c.Dashboard.ReadTimeout},
		{"dashboard.write_timeout", c.Dashboard.WriteTimeout},
		{"dashboard.rate_limit.window", c.Dashboard.RateLimit.Window},
		{"probe.timeout", c.Probe.Timeout},
	}
	for _, d := range durations {
		if _, err := ParseDurationField(d.path, d.raw); err != nil {
			return err
		}
	}
	if tz := strings.TrimSpace(c.Scheduler.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("scheduler.timezone: invalid %q: %w", tz, err)
		}
	}
	switch strings.ToLower(strings.TrimSpace(c.Storage.Driver)) {
	case "", "none", "file", "sqlite", "sqlite3":
	default:
		return fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver)
	}
	for bucket, tasks := range c.Scheduler.Table {
		for i, t := range tasks {
			if strings.TrimSpace(t.Name) == "" || strings.TrimSpace(t.Script) == "" {
				return fmt.Errorf("scheduler.table.%s[%d]: name and script are required", bucket, i)
			}
		}
	}
	// Window specs are parsed by the scheduler; only shape is checked here.
	for bucket, spec := range c.Scheduler.Windows {
		if strings.TrimSpace(spec) == "" {
			return fmt.Errorf("scheduler.windows.%s: empty cron spec", bucket)
		}
	}
	return nil
}

// Location returns the scheduler timezone (time.Local when unset).
func (c *Config) Location() *time.Location {
	if tz := strings.TrimSpace(c.Scheduler.Timezone); tz != "" {
		if loc, err := time.LoadLocation(tz); err == nil {
			return loc
		}
	}
	return time.Local
}
