package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"agencyops/internal/config"
	"agencyops/internal/credentials"
	"agencyops/internal/dashboard"
	"agencyops/internal/eventbus"
	"agencyops/internal/runner"
	"agencyops/internal/schedule"
	"agencyops/internal/storage"
	"agencyops/internal/tenant"
	"agencyops/pkg/logx"
)

type globalFlags struct {
	config string
	root   string
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	cmd := &cobra.Command{
		Use:   "agencyops",
		Short: "Operations toolkit for the agency: scheduler, tenant validator and dashboard APIs",
		// main prints errors itself.
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.PersistentFlags().StringVar(&g.config, "config", "agencyops.yaml", "config file (YAML or JSON, optional); relative paths resolve against --root")
	cmd.PersistentFlags().StringVar(&g.root, "root", ".", "repository root that clients/, data/, scripts/ and logs/ live under")

	cmd.AddCommand(
		newScheduleCmd(g),
		newValidateCmd(g),
		newServeCmd(g),
		newSessionCmd(g),
		newProbeCmd(g),
		newAuditCmd(g),
		newVersionCmd(),
	)
	return cmd
}

// env is the loaded config plus the logging service every command shares.
type env struct {
	root string
	mgr  *config.Manager
	cfg  *config.Config
	logs *logx.Service
	log  logx.Logger
}

type loadOptions struct {
	// schedulerLog adds the dated scheduler file sink.
	schedulerLog bool
}

func (g *globalFlags) load(opt loadOptions) (*env, error) {
	root, err := filepath.Abs(g.root)
	if err != nil {
		return nil, fmt.Errorf("resolve --root: %w", err)
	}
	path := g.config
	if !filepath.IsAbs(path) {
		path = filepath.Join(root, path)
	}

	mgr := config.NewManager(path)
	cfg, err := mgr.Load()
	if err != nil {
		return nil, err
	}

	e := &env{root: root, mgr: mgr, cfg: cfg}
	lc := e.logConfig(cfg)
	if opt.schedulerLog {
		lc = e.schedulerLogConfig()
	}
	e.logs, e.log = logx.New(lc)
	mgr.SetLogger(e.log.With(logx.String("comp", "config")))
	e.log.Debug("config loaded", logx.String("path", path), logx.String("root", root))
	return e, nil
}

func (e *env) Close() {
	_ = e.logs.Close()
}

// abs resolves p against the repository root.
func (e *env) abs(p string) string {
	p = strings.TrimSpace(p)
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(e.root, p)
}

func (e *env) logConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    e.abs(cfg.Logging.File.Path),
		},
	}
}

// schedulerLogConfig adds the dated logs/scheduler-YYYY-MM-DD.log sink, in
// plain text lines for operators reading it with tail or grep.
func (e *env) schedulerLogConfig() logx.Config {
	lc := e.logConfig(e.cfg)
	lc.File = logx.FileConfig{
		Enabled: true,
		Path:    filepath.Join(e.abs(e.cfg.Scheduler.LogDir), "scheduler-{date}.log"),
		Text:    true,
	}
	return lc
}

func (e *env) clientsDir() string { return e.abs(e.cfg.Paths.Clients) }

func (e *env) tenants() *tenant.Store {
	return tenant.NewStore(e.clientsDir(), e.log.With(logx.String("comp", "tenant")))
}

func (e *env) paths() dashboard.Paths {
	return dashboard.Paths{
		Root:    e.root,
		Data:    e.abs(e.cfg.Paths.Data),
		Scripts: e.abs(e.cfg.Paths.Scripts),
		EnvFile: e.abs(e.cfg.Paths.EnvFile),
	}
}

func (e *env) credentialStore() *credentials.Store {
	return credentials.NewStore(dashboard.CredentialsFile(e.abs(e.cfg.Paths.Data)))
}

func (e *env) resolver() (*credentials.Resolver, error) {
	return credentials.NewResolver(e.credentialStore(), e.abs(e.cfg.Paths.EnvFile))
}

// openStore opens run history; it returns a nil Store when storage is disabled.
func (e *env) openStore() (storage.Store, error) {
	busy, err := config.ParseDurationField("storage.busy_timeout", e.cfg.Storage.BusyTimeout)
	if err != nil {
		return nil, err
	}
	st, err := storage.Open(storage.Config{
		Driver:      e.cfg.Storage.Driver,
		Path:        e.abs(e.cfg.Storage.Path),
		BusyTimeout: busy,
	}, e.log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	return st, nil
}

func (e *env) windows() (*schedule.Windows, error) {
	return schedule.NewWindows(e.cfg.Location(), e.cfg.Scheduler.Windows)
}

// dispatcher wires the scheduler. Scripts receive stored credentials through
// their environment; the process environment is never modified.
func (e *env) dispatcher(st storage.Store, bus eventbus.Bus) (*schedule.Dispatcher, error) {
	table, err := schedule.TableFromConfig(e.cfg.Scheduler)
	if err != nil {
		return nil, err
	}
	win, err := e.windows()
	if err != nil {
		return nil, err
	}
	timeout, err := config.ParseDurationOrDefault("scheduler.task_timeout", e.cfg.Scheduler.TaskTimeout, runner.DefaultTimeout)
	if err != nil {
		return nil, err
	}
	if _, err := e.resolver(); err != nil {
		return nil, fmt.Errorf("load credentials: %w", err)
	}
	log := e.log.With(logx.String("comp", "scheduler"))
	run := runner.New(runner.Config{Root: e.root, Timeout: timeout, Env: e.scriptEnv(log)})
	return schedule.NewDispatcher(table, win, run, st, bus, log), nil
}

// scriptEnv re-reads the credential store and .env before each script, so
// credentials saved while a daemon runs reach the next task.
func (e *env) scriptEnv(log logx.Logger) func() []string {
	return func() []string {
		res, err := e.resolver()
		if err != nil {
			log.Warn("credentials unreadable; script runs without them", logx.Err(err))
			return nil
		}
		return res.Environ()
	}
}
