package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"agencyops/pkg/logx"
)

//go:embed migrations.sql
var schema string

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	p := strings.TrimSpace(cfg.Path)
	if p == "" {
		return nil, errors.New("storage: sqlite driver needs a path")
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", p)
	if err != nil {
		return nil, err
	}
	// One connection serializes writers; the scheduler and dashboard share it.
	db.SetMaxOpenConns(1)

	pragmas := []string{"PRAGMA journal_mode = WAL", "PRAGMA synchronous = NORMAL"}
	if cfg.BusyTimeout > 0 {
		pragmas = append(pragmas, fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	for _, q := range pragmas {
		if _, err := db.Exec(q); err != nil {
			log.Debug("sqlite pragma ignored", logx.String("pragma", q), logx.Err(err))
		}
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}
	return &sqliteStore{db: db, log: log}, nil
}

func (s *sqliteStore) Close() error { return s.db.Close() }

func (s *sqliteStore) AppendRun(ctx context.Context, r RunRecord) error {
	if r.At.IsZero() {
		r.At = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs(at, bucket, task, script, ok, exit_code, err, took_ms, forced)
		 VALUES(?,?,?,?,?,?,?,?,?)`,
		r.At.UTC().Format(time.RFC3339Nano), r.Bucket, r.Task, r.Script,
		r.OK, r.ExitCode, r.Error, r.TookMS, r.Forced,
	)
	return err
}

func (s *sqliteStore) RecentRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = -1 // sqlite: no limit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT at, bucket, task, script, ok, exit_code, err, took_ms, forced
		 FROM runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var (
			r  RunRecord
			at string
		)
		if err := rows.Scan(&at, &r.Bucket, &r.Task, &r.Script, &r.OK, &r.ExitCode, &r.Error, &r.TookMS, &r.Forced); err != nil {
			return nil, err
		}
		if r.At, err = time.Parse(time.RFC3339Nano, at); err != nil {
			s.log.Debug("run with bad timestamp", logx.String("at", at))
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *sqliteStore) ClaimWindow(ctx context.Context, bucket string, until time.Time) error {
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM window_claims WHERE until_ms <= ?`, time.Now().UnixMilli()); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO window_claims(bucket, until_ms) VALUES(?, ?)
		 ON CONFLICT(bucket) DO UPDATE SET until_ms = excluded.until_ms`,
		bucket, until.UnixMilli()); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *sqliteStore) WindowClaim(ctx context.Context, bucket string) (time.Time, bool, error) {
	var ms int64
	err := s.db.QueryRowContext(ctx,
		`SELECT until_ms FROM window_claims WHERE bucket = ?`, strings.TrimSpace(bucket)).Scan(&ms)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return time.Time{}, false, nil
	case err != nil:
		return time.Time{}, false, err
	}
	return time.UnixMilli(ms), true, nil
}
