package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"agencyops/internal/config"
	"agencyops/internal/dashboard"
	"agencyops/internal/eventbus"
	"agencyops/internal/metrics"
	"agencyops/internal/probe"
	"agencyops/internal/schedule"
	"agencyops/pkg/logx"
	"agencyops/pkg/systemd"
)

// SessionSecretEnv is read when dashboard.session_secret is empty.
const SessionSecretEnv = "AGENCYOPS_SESSION_SECRET"

type serveFlags struct {
	scheduler bool
}

func newServeCmd(g *globalFlags) *cobra.Command {
	f := &serveFlags{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the dashboard APIs",
		Long: `Serves the dashboard JSON APIs, /healthz and /metrics. The config file is
watched: log level and rate limit changes apply without a restart.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), g, f)
		},
	}
	cmd.Flags().BoolVar(&f.scheduler, "scheduler", false, "also run the scheduler daemon in this process")
	return cmd
}

func rateLimitFrom(c config.RateLimitConfig) (dashboard.RateLimit, error) {
	window, err := config.ParseDurationOrDefault("dashboard.rate_limit.window", c.Window, time.Minute)
	if err != nil {
		return dashboard.RateLimit{}, err
	}
	return dashboard.RateLimit{Enabled: c.Enabled, Requests: c.Requests, Window: window}, nil
}

func (e *env) sessions() (*dashboard.Sessions, error) {
	secret := strings.TrimSpace(e.cfg.Dashboard.SessionSecret)
	if secret == "" {
		res, err := e.resolver()
		if err != nil {
			return nil, fmt.Errorf("load credentials: %w", err)
		}
		secret, _, _ = res.LookupEnv(SessionSecretEnv)
	}
	if secret == "" {
		return nil, fmt.Errorf("no session secret: set dashboard.session_secret or %s", SessionSecretEnv)
	}
	ttl, err := config.ParseDurationOrDefault("dashboard.session_ttl", e.cfg.Dashboard.SessionTTL, 12*time.Hour)
	if err != nil {
		return nil, err
	}
	return dashboard.NewSessions(secret, ttl)
}

func (e *env) prober(m *metrics.Metrics) (*probe.Prober, error) {
	pc, err := probe.ConfigFrom(e.cfg.Probe)
	if err != nil {
		return nil, err
	}
	p := probe.New(pc, &http.Client{}, e.log.With(logx.String("comp", "probe")))
	if m != nil {
		p.OnResult(func(r probe.Result) { m.ObserveProbe(r.Integration, r.Status) })
	}
	return p, nil
}

func runServe(ctx context.Context, g *globalFlags, f *serveFlags) error {
	e, err := g.load(loadOptions{})
	if err != nil {
		return err
	}
	defer e.Close()
	cfg := e.cfg

	sessions, err := e.sessions()
	if err != nil {
		return err
	}
	st, err := e.openStore()
	if err != nil {
		return err
	}
	if st != nil {
		defer func() { _ = st.Close() }()
	}
	table, err := schedule.TableFromConfig(cfg.Scheduler)
	if err != nil {
		return err
	}
	rl, err := rateLimitFrom(cfg.Dashboard.RateLimit)
	if err != nil {
		return err
	}
	readTimeout, err := config.ParseDurationOrDefault("dashboard.read_timeout", cfg.Dashboard.ReadTimeout, 15*time.Second)
	if err != nil {
		return err
	}
	writeTimeout, err := config.ParseDurationOrDefault("dashboard.write_timeout", cfg.Dashboard.WriteTimeout, 60*time.Second)
	if err != nil {
		return err
	}

	bus := eventbus.New()
	m := metrics.New()
	prober, err := e.prober(m)
	if err != nil {
		return err
	}

	api := dashboard.NewAPI(dashboard.Deps{
		Paths:        e.paths(),
		Tenants:      e.tenants(),
		Credentials:  e.credentialStore(),
		Runs:         st,
		Table:        table,
		Prober:       prober,
		Metrics:      m,
		Sessions:     sessions,
		RateLimit:    rl,
		MaxBodyBytes: cfg.Dashboard.MaxBodyBytes,
		Pprof:        cfg.Dashboard.Pprof,
		Log:          e.log.With(logx.String("comp", "dashboard")),
	})
	srv := dashboard.NewServer(dashboard.ServerConfig{
		Addr:         cfg.Dashboard.Addr,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  2 * time.Minute,
		CookieSecure: cfg.Dashboard.CookieSecure,
	}, api.Handler(), e.log.With(logx.String("comp", "http")))

	e.mgr.SetValidator(func(_ context.Context, next *config.Config) error {
		if _, err := rateLimitFrom(next.Dashboard.RateLimit); err != nil {
			return err
		}
		_, err := schedule.NewWindows(next.Location(), next.Scheduler.Windows)
		return err
	})
	var d *schedule.Dispatcher
	if f.scheduler {
		if d, err = e.dispatcher(st, bus); err != nil {
			return err
		}
	}

	updates := e.mgr.Subscribe(4)
	defer e.mgr.Unsubscribe(updates)

	grp, gctx := errgroup.WithContext(ctx)
	grp.Go(func() error {
		m.Consume(gctx, bus)
		return nil
	})
	grp.Go(func() error { return e.mgr.Watch(gctx) })
	grp.Go(func() error {
		applyConfigUpdates(gctx, e, api, updates)
		return nil
	})
	if d != nil {
		grp.Go(func() error {
			return schedule.RunDaemon(gctx, d, e.log.With(logx.String("comp", "daemon")))
		})
	}
	grp.Go(func() error {
		err := srv.Run(gctx, func(addr string) {
			systemd.Ready(e.log)
			systemd.Status(e.log, "serving on %s", addr)
		})
		systemd.Stopping(e.log)
		return err
	})

	err = grp.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// applyConfigUpdates hot-applies the settings that do not need a restart.
func applyConfigUpdates(ctx context.Context, e *env, api *dashboard.API, updates <-chan *config.Config) {
	prev := e.cfg
	for {
		select {
		case <-ctx.Done():
			return
		case next, ok := <-updates:
			if !ok {
				return
			}
			changed, attrs := config.SummarizeConfigChange(prev, next)
			if len(changed) == 0 {
				continue
			}
			e.log.Info("config reloaded", append([]logx.Field{logx.Strs("changed", changed)}, attrs...)...)

			if slices.Contains(changed, "logging") {
				e.logs.Apply(e.logConfig(next))
			}
			if rl, err := rateLimitFrom(next.Dashboard.RateLimit); err == nil {
				api.ApplyRateLimit(rl)
			}

			pd, nd := prev.Dashboard, next.Dashboard
			if pd.Addr != nd.Addr || pd.SessionSecret != nd.SessionSecret || pd.Pprof != nd.Pprof ||
				prev.Paths != next.Paths || prev.Storage != next.Storage {
				e.log.Warn("some changes take effect after a restart",
					logx.Strs("changed", changed))
			}
			prev = next
		}
	}
}
