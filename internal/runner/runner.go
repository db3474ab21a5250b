// Package runner executes operational scripts as blocking subprocesses.
package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// DefaultTimeout bounds every script run when Config.Timeout is zero.
const DefaultTimeout = 5 * time.Minute

// outputTail is how much of stdout/stderr a Result keeps.
const outputTail = 4 << 10

// interpreters maps script extensions to the program that runs them.
var interpreters = map[string][]string{
	".cjs": {"node"},
	".js":  {"node"},
	".mjs": {"node"},
	".sh":  {"bash"},
	".py":  {"python3"},
}

type Config struct {
	// Root is the working directory; relative script paths resolve against it.
	Root    string
	Timeout time.Duration
	// Env, when set, is called before every run; its entries are appended
	// to the inherited environment.
	Env func() []string
}

// Result describes one finished script run.
type Result struct {
	Script   string
	ExitCode int
	TimedOut bool
	Took     time.Duration
	Stdout   string
	Stderr   string
	Err      error
}

// OK reports whether the script exited zero.
func (r Result) OK() bool { return r.Err == nil && r.ExitCode == 0 }

// Runner runs one script at a time; it holds no state between runs.
type Runner struct {
	cfg Config
}

func New(cfg Config) *Runner {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Root != "" {
		if abs, err := filepath.Abs(cfg.Root); err == nil {
			cfg.Root = abs
		}
	}
	return &Runner{cfg: cfg}
}

// Timeout returns the per-script timeout.
func (r *Runner) Timeout() time.Duration { return r.cfg.Timeout }

// Command returns the program and arguments used to run script.
func Command(script string) (string, []string) {
	ext := strings.ToLower(filepath.Ext(script))
	if interp, ok := interpreters[ext]; ok {
		args := append(append([]string(nil), interp[1:]...), script)
		return interp[0], args
	}
	return script, nil
}

// Run executes script and waits for it, bounded by the configured timeout.
// A non-zero exit is reported through Result, never as a panic or early return.
func (r *Runner) Run(ctx context.Context, script string) Result {
	start := time.Now()
	res := Result{Script: script, ExitCode: -1}

	path := script
	if !filepath.IsAbs(path) && r.cfg.Root != "" {
		path = filepath.Join(r.cfg.Root, path)
	}
	if _, err := os.Stat(path); err != nil {
		res.Err = fmt.Errorf("script not found: %s", script)
		res.Took = time.Since(start)
		return res
	}

	runCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	name, args := Command(path)
	cmd := exec.CommandContext(runCtx, name, args...)
	if r.cfg.Root != "" {
		cmd.Dir = r.cfg.Root
	}
	cmd.Env = os.Environ()
	if r.cfg.Env != nil {
		cmd.Env = append(cmd.Env, r.cfg.Env()...)
	}
	// Children that keep the pipes open must not hold Wait forever.
	cmd.WaitDelay = 2 * time.Second

	stdout := &tailBuffer{max: outputTail}
	stderr := &tailBuffer{max: outputTail}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	err := cmd.Run()
	res.Took = time.Since(start)
	res.Stdout = stdout.String()
	res.Stderr = stderr.String()

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		res.TimedOut = true
		res.Err = fmt.Errorf("timed out after %s", r.cfg.Timeout)
		return res
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			res.Err = fmt.Errorf("exit status %d", res.ExitCode)
			return res
		}
		res.Err = fmt.Errorf("exec error: %w", err)
		return res
	}
	res.ExitCode = 0
	return res
}

// tailBuffer keeps only the last max bytes written to it.
type tailBuffer struct {
	max int
	buf []byte
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.buf = append(b.buf, p...)
	if over := len(b.buf) - b.max; over > 0 {
		b.buf = append(b.buf[:0], b.buf[over:]...)
	}
	return len(p), nil
}

func (b *tailBuffer) String() string { return string(b.buf) }
