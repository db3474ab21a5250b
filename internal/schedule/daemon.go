package schedule

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"agencyops/pkg/logx"
	"agencyops/pkg/systemd"
)

// DaemonSpec is the cadence the daemon fires dispatches at.
const DaemonSpec = "*/5 * * * *"

// RunDaemon fires Dispatch every five minutes until ctx is done.
// A dispatch still running when the next tick fires causes that tick to be skipped.
func RunDaemon(ctx context.Context, d *Dispatcher, log logx.Logger) error {
	if log.IsZero() {
		log = logx.Nop()
	}
	loc := d.windows.Location()
	clog := cronLogger{log: log.With(logx.String("comp", "cron"))}
	c := cron.New(
		cron.WithParser(specParser),
		cron.WithLocation(loc),
		cron.WithLogger(clog),
		cron.WithChain(cron.Recover(clog), cron.SkipIfStillRunning(clog)),
	)
	_, err := c.AddFunc(DaemonSpec, func() {
		rep, err := d.Dispatch(ctx, Options{})
		if err != nil {
			log.Error("dispatch failed", logx.Err(err))
			return
		}
		if rep.Failed > 0 {
			log.Warn("dispatch finished with failures", logx.Int("failed", rep.Failed), logx.Int("total", rep.Total))
		}
		systemd.Status(log, "last dispatch %s: %d task(s), %d failed", rep.At.Format("15:04"), rep.Total, rep.Failed)
	})
	if err != nil {
		return err
	}

	c.Start()
	log.Info("daemon started", logx.String("tz", loc.String()), logx.String("spec", DaemonSpec))
	systemd.Ready(log)

	<-ctx.Done()
	systemd.Stopping(log)

	stopCtx := c.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(30 * time.Second):
		log.Warn("daemon stop timed out waiting for running dispatch")
	}
	log.Info("daemon stopped")
	return nil
}

// cronLogger adapts logx to cron.Logger.
type cronLogger struct {
	log logx.Logger
}

func (l cronLogger) Info(msg string, kv ...any) {
	l.log.Debug(msg, kvFields(kv)...)
}

func (l cronLogger) Error(err error, msg string, kv ...any) {
	l.log.Error(msg, append(kvFields(kv), logx.Err(err))...)
}

func kvFields(kv []any) []logx.Field {
	out := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		k, ok := kv[i].(string)
		if !ok {
			continue
		}
		out = append(out, logx.Any(k, kv[i+1]))
	}
	return out
}
