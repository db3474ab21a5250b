package schedule

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"agencyops/internal/eventbus"
	"agencyops/internal/runner"
	"agencyops/internal/storage"
	"agencyops/pkg/logx"
)

var ErrUnknownBucket = errors.New("unknown schedule")

// Runner executes one script. *runner.Runner implements it.
type Runner interface {
	Run(ctx context.Context, script string) runner.Result
}

// Dispatcher runs the tasks of eligible buckets sequentially.
type Dispatcher struct {
	table   Table
	windows *Windows
	run     Runner
	store   storage.Store // optional
	bus     eventbus.Bus  // optional
	log     logx.Logger
}

func NewDispatcher(table Table, windows *Windows, run Runner, store storage.Store, bus eventbus.Bus, log logx.Logger) *Dispatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	if windows == nil {
		windows = MustWindows(time.Local)
	}
	return &Dispatcher{table: table, windows: windows, run: run, store: store, bus: bus, log: log}
}

// TaskResult is the outcome of one task.
type TaskResult struct {
	Bucket   string        `json:"bucket"`
	Name     string        `json:"name"`
	Script   string        `json:"script"`
	OK       bool          `json:"ok"`
	ExitCode int           `json:"exit_code"`
	TimedOut bool          `json:"timed_out,omitempty"`
	Error    string        `json:"error,omitempty"`
	Took     time.Duration `json:"took"`
}

// BucketReport is the outcome of one bucket.
type BucketReport struct {
	Name    string       `json:"name"`
	Skipped string       `json:"skipped,omitempty"` // reason when the bucket did not run
	Results []TaskResult `json:"results"`
}

// Report is the outcome of one dispatch.
type Report struct {
	At      time.Time      `json:"at"`
	Forced  string         `json:"forced,omitempty"`
	Buckets []BucketReport `json:"buckets"`
	Total   int            `json:"total"`
	Failed  int            `json:"failed"`
}

// ExitCode is 1 when any task failed.
func (r *Report) ExitCode() int {
	if r.Failed > 0 {
		return 1
	}
	return 0
}

// Options tunes one dispatch.
type Options struct {
	// Now is the evaluation time; zero means time.Now().
	Now time.Time
	// Force runs exactly this bucket regardless of the time predicates.
	Force string
}

// Dispatch evaluates the windows at opt.Now and runs every task of each
// eligible bucket. A failing task never stops the remaining ones.
func (d *Dispatcher) Dispatch(ctx context.Context, opt Options) (*Report, error) {
	now := opt.Now
	if now.IsZero() {
		now = time.Now()
	}
	now = now.In(d.windows.Location())

	var buckets []string
	force := strings.TrimSpace(opt.Force)
	if force != "" {
		if !IsBucket(force) {
			return nil, fmt.Errorf("%w %q (known: %s)", ErrUnknownBucket, force, strings.Join(Buckets, ", "))
		}
		buckets = []string{force}
	} else {
		buckets = d.windows.Eligible(now)
	}

	rep := &Report{At: now, Forced: force}
	d.log.Info("scheduler run", logx.String("at", now.Format(time.RFC3339)), logx.Strs("buckets", buckets), logx.String("force", force))

	for _, b := range buckets {
		if ctx.Err() != nil {
			break
		}
		br := BucketReport{Name: b}
		if force == "" {
			if reason := d.alreadyRan(ctx, b, now); reason != "" {
				br.Skipped = reason
				rep.Buckets = append(rep.Buckets, br)
				d.log.Info("bucket skipped", logx.String("bucket", b), logx.String("reason", reason))
				d.publish(eventbus.TypeBucketSkipped, br)
				continue
			}
		}

		for _, task := range d.table[b] {
			res := d.runTask(ctx, b, task, force != "")
			br.Results = append(br.Results, res)
			rep.Total++
			if !res.OK {
				rep.Failed++
			}
		}
		rep.Buckets = append(rep.Buckets, br)

		if force == "" {
			d.markRan(ctx, b, now)
		}
	}

	d.log.Info("scheduler run finished", logx.Int("total", rep.Total), logx.Int("failed", rep.Failed))
	return rep, nil
}

func (d *Dispatcher) runTask(ctx context.Context, bucket string, task Task, forced bool) TaskResult {
	log := d.log.With(logx.String("bucket", bucket), logx.String("task", task.Name))
	log.Info("task started", logx.String("script", task.Script))
	d.publish(eventbus.TypeTaskStarted, TaskResult{Bucket: bucket, Name: task.Name, Script: task.Script})

	var res runner.Result
	if d.run == nil {
		res = runner.Result{Script: task.Script, ExitCode: -1, Err: errors.New("no runner configured")}
	} else {
		res = d.run.Run(ctx, task.Script)
	}

	tr := TaskResult{
		Bucket:   bucket,
		Name:     task.Name,
		Script:   task.Script,
		OK:       res.OK(),
		ExitCode: res.ExitCode,
		TimedOut: res.TimedOut,
		Took:     res.Took,
	}
	if res.Err != nil {
		tr.Error = res.Err.Error()
	}

	if tr.OK {
		log.Info("task succeeded", logx.Duration("took", res.Took))
	} else {
		log.Error("task failed",
			logx.String("err", tr.Error),
			logx.Int("exit_code", res.ExitCode),
			logx.Bool("timed_out", res.TimedOut),
			logx.String("stderr", lastLines(res.Stderr, 5)),
			logx.Duration("took", res.Took),
		)
	}

	if d.store != nil {
		err := d.store.AppendRun(ctx, storage.RunRecord{
			At:       time.Now(),
			Bucket:   bucket,
			Task:     task.Name,
			Script:   task.Script,
			OK:       tr.OK,
			ExitCode: tr.ExitCode,
			Error:    tr.Error,
			TookMS:   res.Took.Milliseconds(),
			Forced:   forced,
		})
		if err != nil {
			log.Warn("run record not stored", logx.Err(err))
		}
	}
	d.publish(eventbus.TypeTaskFinished, tr)
	return tr
}

// alreadyRan returns a skip reason when bucket already ran in the window containing now.
func (d *Dispatcher) alreadyRan(ctx context.Context, bucket string, now time.Time) string {
	if d.store == nil || bucket == Every5Min {
		return ""
	}
	until, ok, err := d.store.WindowClaim(ctx, bucket)
	if err != nil {
		d.log.Warn("window claim lookup failed", logx.String("bucket", bucket), logx.Err(err))
		return ""
	}
	if ok && until.After(now) {
		return "already ran in this window"
	}
	return ""
}

func (d *Dispatcher) markRan(ctx context.Context, bucket string, now time.Time) {
	if d.store == nil || bucket == Every5Min {
		return
	}
	until := WindowEnd(now)
	if err := d.store.ClaimWindow(ctx, bucket, until); err != nil {
		d.log.Warn("window claim failed", logx.String("bucket", bucket), logx.Err(err))
		return
	}
	d.log.Debug("window claimed", logx.String("bucket", bucket), logx.Time("until", until))
}

func (d *Dispatcher) publish(typ string, data any) {
	if d.bus == nil {
		return
	}
	d.bus.Publish(eventbus.Event{Type: typ, Data: data})
}

func lastLines(s string, n int) string {
	s = strings.TrimRight(s, "\n")
	if s == "" {
		return ""
	}
	lines := strings.Split(s, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
