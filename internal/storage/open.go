package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"agencyops/pkg/logx"
)

// Store persists scheduler run history and per-bucket window claims.
type Store interface {
	AppendRun(ctx context.Context, r RunRecord) error
	// RecentRuns returns up to limit records, newest first. limit <= 0 means all.
	RecentRuns(ctx context.Context, limit int) ([]RunRecord, error)
	// ClaimWindow records that bucket ran in a window ending at until.
	ClaimWindow(ctx context.Context, bucket string, until time.Time) error
	// WindowClaim returns the end of the last window claimed for bucket.
	WindowClaim(ctx context.Context, bucket string) (until time.Time, ok bool, err error)
	Close() error
}

// Open returns the store selected by cfg.Driver, or nil when storage is off.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	switch driver := strings.ToLower(strings.TrimSpace(cfg.Driver)); driver {
	case "", "none":
		return nil, nil
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, fmt.Errorf("storage: unknown driver %q", driver)
	}
}
