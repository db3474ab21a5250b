package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"agencyops/pkg/fsutil"
	"agencyops/pkg/logx"
)

// fileStore writes two files next to cfg.Path:
//
//	<name>.runs.jsonl     one RunRecord per line, append only
//	<name>.windows.json   bucket -> claim end, rewritten atomically
//
// Claims are read from disk on every call and written under a lock file, so
// a cron-invoked schedule and a long-running daemon see each other's claims.
type fileStore struct {
	log logx.Logger

	mu          sync.Mutex
	runsPath    string
	runs        *os.File
	windowsPath string
}

// claimLockWait bounds how long ClaimWindow waits for another process.
const claimLockWait = 5 * time.Second

func openFile(cfg Config, log logx.Logger) (Store, error) {
	p := strings.TrimSpace(cfg.Path)
	if p == "" {
		return nil, errors.New("storage: file driver needs a path")
	}
	stem := strings.TrimSuffix(p, filepath.Ext(p))
	if err := os.MkdirAll(filepath.Dir(stem), 0o755); err != nil {
		return nil, err
	}

	s := &fileStore{
		log:         log,
		runsPath:    stem + ".runs.jsonl",
		windowsPath: stem + ".windows.json",
	}

	f, err := os.OpenFile(s.runsPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	s.runs = f
	return s, nil
}

// readWindows returns the unexpired claims on disk. A corrupt file is
// logged and treated as empty; it only costs one possible re-run.
func (s *fileStore) readWindows(now time.Time) map[string]time.Time {
	var m map[string]time.Time
	if err := fsutil.ReadJSON(s.windowsPath, &m); err != nil {
		if !fsutil.IsNotExist(err) {
			s.log.Warn("window claims unreadable; treating as empty", logx.String("path", s.windowsPath), logx.Err(err))
		}
		return map[string]time.Time{}
	}
	for k, v := range m {
		if !v.After(now) {
			delete(m, k)
		}
	}
	return m
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runs == nil {
		return nil
	}
	err := s.runs.Close()
	s.runs = nil
	return err
}

func (s *fileStore) AppendRun(_ context.Context, r RunRecord) error {
	if r.At.IsZero() {
		r.At = time.Now()
	}
	line, err := json.Marshal(r)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runs == nil {
		return ErrClosed
	}
	_, err = s.runs.Write(append(line, '\n'))
	return err
}

// RecentRuns scans the whole journal keeping a sliding tail. Lines that do
// not decode are skipped.
func (s *fileStore) RecentRuns(_ context.Context, limit int) ([]RunRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.runsPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var tail []RunRecord
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64<<10), 1<<20)
	for sc.Scan() {
		var r RunRecord
		if json.Unmarshal(sc.Bytes(), &r) != nil {
			continue
		}
		tail = append(tail, r)
		if limit > 0 && len(tail) >= 2*limit {
			tail = slices.Delete(tail, 0, len(tail)-limit)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", s.runsPath, err)
	}
	if limit > 0 && len(tail) > limit {
		tail = tail[len(tail)-limit:]
	}
	slices.Reverse(tail)
	return tail, nil
}

func (s *fileStore) ClaimWindow(ctx context.Context, bucket string, until time.Time) error {
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	unlock, err := fsutil.Lock(ctx, s.windowsPath+".lock", claimLockWait)
	if err != nil {
		return fmt.Errorf("claim %s: %w", bucket, err)
	}
	defer unlock()

	windows := s.readWindows(time.Now())
	windows[bucket] = until.Truncate(time.Millisecond)
	return fsutil.WriteJSON(s.windowsPath, windows, 0o600)
}

func (s *fileStore) WindowClaim(_ context.Context, bucket string) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	until, ok := s.readWindows(time.Now())[strings.TrimSpace(bucket)]
	return until, ok, nil
}
