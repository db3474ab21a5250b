package logx

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

type Config struct {
	Level   string
	Console bool
	File    FileConfig
}

// FileConfig enables the file sink. A "{date}" token in Path is replaced
// with the local date when the file is opened. The sink writes JSON unless
// Text is set, which writes plain uncolored console lines.
type FileConfig struct {
	Enabled bool
	Path    string
	Text    bool
}

// Service owns the active sinks. Apply rebuilds them in place so loggers
// already handed out pick up the change.
//
// A replaced file stays open until the following Apply or Close: an event
// that picked up the previous logger just before the swap still lands in it.
type Service struct {
	active atomic.Pointer[zerolog.Logger]

	mu       sync.Mutex
	file     *os.File
	filePath string
	retired  *os.File
	now      func() time.Time
}

// New applies cfg and returns the service with a logger bound to it.
func New(cfg Config) (*Service, Logger) {
	s := &Service{now: time.Now}
	s.Apply(cfg)
	return s, s.Logger()
}

func (s *Service) Logger() Logger { return Logger{svc: s} }

func (s *Service) current() *zerolog.Logger { return s.active.Load() }

// Apply replaces level and sinks. With no usable sink the console is used.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		sinks    []io.Writer
		file     *os.File
		filePath string
	)
	if cfg.Console {
		sinks = append(sinks, consoleWriter(os.Stderr))
	}
	if cfg.File.Enabled {
		if f, path, err := openSink(ResolvePath(cfg.File.Path, s.now())); err != nil {
			fmt.Fprintf(os.Stderr, "logx: %v\n", err)
		} else {
			file, filePath = f, path
			var w io.Writer = zerolog.SyncWriter(f)
			if cfg.File.Text {
				w = plainWriter(w)
			}
			sinks = append(sinks, w)
		}
	}
	if len(sinks) == 0 {
		sinks = []io.Writer{consoleWriter(os.Stderr)}
	}
	zl := build(cfg.Level, zerolog.MultiLevelWriter(sinks...))
	s.active.Store(&zl)

	// Only now retire the old file; the one retired before it is done.
	if s.retired != nil {
		_ = s.retired.Close()
	}
	s.retired = s.file
	s.file, s.filePath = file, filePath
}

func openSink(path string) (*os.File, string, error) {
	if path == "" {
		path = "agencyops.log"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, "", fmt.Errorf("log dir for %s: %w", path, err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, "", fmt.Errorf("open log file: %w", err)
	}
	return f, path, nil
}

// SetLevel keeps the sinks and changes only the level.
func (s *Service) SetLevel(level string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	zl := s.current().Level(parseLevel(level))
	s.active.Store(&zl)
}

// FilePath is the open file sink's path, or "" without one.
func (s *Service) FilePath() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filePath
}

func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeFileLocked()
}

func (s *Service) closeFileLocked() error {
	var err error
	if s.retired != nil {
		err = s.retired.Close()
		s.retired = nil
	}
	if s.file != nil {
		if cerr := s.file.Close(); err == nil {
			err = cerr
		}
		s.file, s.filePath = nil, ""
	}
	return err
}

// ResolvePath trims path and expands "{date}" to YYYY-MM-DD of now.
func ResolvePath(path string, now time.Time) string {
	return strings.ReplaceAll(strings.TrimSpace(path), "{date}", now.Format(time.DateOnly))
}
