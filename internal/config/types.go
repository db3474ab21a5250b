package config

// Config is the agencyops application config (agencyops.yaml / agencyops.json).
//
// All durations are Go duration strings (e.g. "500ms", "10s", "5m").
// Relative paths are resolved against the repository root (--root).
type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Paths     PathsConfig     `json:"paths"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Storage   StorageConfig   `json:"storage"`
	Dashboard DashboardConfig `json:"dashboard"`
	Probe     ProbeConfig     `json:"probe"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// PathsConfig locates the file trees the tools operate on.
//
// Defaults:
//   - clients:  "clients"
//   - data:     "data"
//   - scripts:  "scripts"
//   - env_file: ".env"
type PathsConfig struct {
	Clients string `json:"clients,omitempty"`
	Data    string `json:"data,omitempty"`
	Scripts string `json:"scripts,omitempty"`
	EnvFile string `json:"env_file,omitempty"`
}

// SchedulerConfig controls the master scheduler.
//
// Table overrides the built-in task table per bucket when a bucket key is
// present (an empty list disables the bucket).
type SchedulerConfig struct {
	// Timezone is an IANA TZ used for the bucket predicates. Default: local.
	Timezone string `json:"timezone,omitempty"`
	// TaskTimeout bounds every subprocess. Default: "5m".
	TaskTimeout string `json:"task_timeout,omitempty"`
	// LogDir receives scheduler-YYYY-MM-DD.log. Default: "logs".
	LogDir string `json:"log_dir,omitempty"`
	// Windows overrides the cron spec of a bucket window (every-5-min excluded).
	Windows map[string]string       `json:"windows,omitempty"`
	Table   map[string][]TaskConfig `json:"table,omitempty"`
}

type TaskConfig struct {
	Name   string `json:"name"`
	Script string `json:"script"`
	Type   string `json:"type,omitempty"`
}

// StorageConfig controls run history and window claim persistence.
//
// Example:
//
//	storage: { driver: "sqlite", path: "data/state/runs.db" }
type StorageConfig struct {
	Driver      string `json:"driver,omitempty"` // "file" (default) | "sqlite" | "none"
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

// DashboardConfig controls the dashboard HTTP server.
//
// Security note: SessionSecret signs session cookies. When empty the
// AGENCYOPS_SESSION_SECRET environment variable is used; serve refuses to
// start without one.
type DashboardConfig struct {
	Addr          string          `json:"addr,omitempty"` // default: "127.0.0.1:8787"
	SessionSecret string          `json:"session_secret,omitempty"`
	SessionTTL    string          `json:"session_ttl,omitempty"` // default: "12h"
	CookieSecure  bool            `json:"cookie_secure,omitempty"`
	MaxBodyBytes  int64           `json:"max_body_bytes,omitempty"` // default: 1 MiB
	ReadTimeout   string          `json:"read_timeout,omitempty"`
	WriteTimeout  string          `json:"write_timeout,omitempty"`
	RateLimit     RateLimitConfig `json:"rate_limit"`
	// Pprof mounts net/http/pprof under /debug/pprof/ for admin sessions.
	Pprof bool `json:"pprof,omitempty"`
}

type RateLimitConfig struct {
	Enabled  bool   `json:"enabled"`
	Requests int    `json:"requests,omitempty"` // default: 120
	Window   string `json:"window,omitempty"`   // default: "1m"
}

// ProbeConfig controls the provider health probes.
type ProbeConfig struct {
	Timeout     string            `json:"timeout,omitempty"`      // default: "10s"
	Concurrency int               `json:"concurrency,omitempty"`  // default: 4
	RatePerSec  int               `json:"rate_per_sec,omitempty"` // default: 5
	BaseURLs    map[string]string `json:"base_urls,omitempty"`
}
