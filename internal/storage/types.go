package storage

import (
	"errors"
	"time"
)

// ErrClosed is returned by writes after Close.
var ErrClosed = errors.New("storage: closed")

// Config selects a backend. Driver is "file" (JSON Lines), "sqlite", or
// "none"/empty to disable persistence.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only
}

// RunRecord is one task execution. The dashboard reads these back, so field
// names are part of its API.
type RunRecord struct {
	At       time.Time `json:"at"`
	Bucket   string    `json:"bucket"`
	Task     string    `json:"task"`
	Script   string    `json:"script"`
	OK       bool      `json:"ok"`
	ExitCode int       `json:"exit_code"`
	Error    string    `json:"error,omitempty"`
	TookMS   int64     `json:"took_ms"`
	Forced   bool      `json:"forced,omitempty"`
}
