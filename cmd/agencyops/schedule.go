package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"agencyops/internal/eventbus"
	"agencyops/internal/schedule"
	"agencyops/pkg/logx"
)

type scheduleFlags struct {
	force  string
	daemon bool
	list   bool
}

func newScheduleCmd(g *globalFlags) *cobra.Command {
	f := &scheduleFlags{}
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run the tasks of every bucket eligible now",
		Long: `Evaluates the bucket windows at the current time and runs every task of the
eligible buckets sequentially. Meant to be invoked every five minutes by
cron or a systemd timer, or kept running with --daemon.

Exit status is 1 when any task failed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSchedule(cmd, g, f)
		},
	}
	cmd.Flags().StringVar(&f.force, "force", "", "run exactly this bucket regardless of the time ("+strings.Join(schedule.Buckets, ", ")+")")
	cmd.Flags().BoolVar(&f.daemon, "daemon", false, "stay running and dispatch every five minutes")
	cmd.Flags().BoolVar(&f.list, "list", false, "print the task table and the next window of each bucket")
	cmd.MarkFlagsMutuallyExclusive("force", "daemon", "list")
	return cmd
}

func runSchedule(cmd *cobra.Command, g *globalFlags, f *scheduleFlags) error {
	e, err := g.load(loadOptions{schedulerLog: !f.list})
	if err != nil {
		return err
	}
	defer e.Close()

	if f.list {
		table, err := schedule.TableFromConfig(e.cfg.Scheduler)
		if err != nil {
			return err
		}
		win, err := e.windows()
		if err != nil {
			return err
		}
		var missing []string
		for _, script := range table.Scripts() {
			if _, err := os.Stat(e.abs(script)); err != nil {
				missing = append(missing, script)
			}
		}
		return printTable(cmd.OutOrStdout(), table, win, time.Now(), missing)
	}

	st, err := e.openStore()
	if err != nil {
		return err
	}
	if st != nil {
		defer func() { _ = st.Close() }()
	}

	d, err := e.dispatcher(st, eventbus.New())
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if f.daemon {
		go rotateLogFile(ctx, e)
		return schedule.RunDaemon(ctx, d, e.log.With(logx.String("comp", "daemon")))
	}

	rep, err := d.Dispatch(ctx, schedule.Options{Force: f.force})
	if err != nil {
		return err
	}
	if code := rep.ExitCode(); code != 0 {
		return &exitError{code: code}
	}
	return nil
}

// rotateLogFile reopens the dated scheduler log when the day changes.
func rotateLogFile(ctx context.Context, e *env) {
	lc := e.schedulerLogConfig()
	t := time.NewTicker(time.Minute)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if want := logx.ResolvePath(lc.File.Path, now); want != e.logs.FilePath() {
				e.logs.Apply(lc)
				e.log.Info("scheduler log rotated", logx.String("path", e.logs.FilePath()))
			}
		}
	}
}

func printTable(w io.Writer, table schedule.Table, win *schedule.Windows, now time.Time, missing []string) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "BUCKET\tWINDOW\tNEXT\tTASKS\n")
	for _, b := range schedule.Buckets {
		spec := win.Spec(b)
		if spec == "" {
			spec = "always"
		}
		next := "-"
		if t := win.Next(b, now); !t.IsZero() {
			next = t.Format("2006-01-02 15:04 MST")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", b, spec, next, len(table[b]))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(w)
	tw = tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "BUCKET\tTASK\tTYPE\tSCRIPT\n")
	for _, entry := range table.Entries() {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", entry.Bucket, entry.Name, entry.Type, entry.Script)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if len(missing) > 0 {
		fmt.Fprintf(w, "\n%d script(s) not found under the root:\n", len(missing))
		for _, m := range missing {
			fmt.Fprintf(w, "  %s\n", m)
		}
	}
	return nil
}
