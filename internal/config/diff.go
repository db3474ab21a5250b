package config

import (
	"reflect"
	"sort"
	"strings"

	"agencyops/pkg/logx"
)

// SummarizeConfigChange returns a compact list of changed sections and safe
// structured attrs for logging (never includes secrets like the session secret).
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 16)

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if oldCfg.Paths != newCfg.Paths {
		changed = append(changed, "paths")
		attrs = append(attrs,
			logx.String("paths.clients", newCfg.Paths.Clients),
			logx.String("paths.data", newCfg.Paths.Data),
		)
	}

	if !reflect.DeepEqual(oldCfg.Scheduler, newCfg.Scheduler) {
		changed = append(changed, "scheduler")
		attrs = append(attrs,
			logx.String("scheduler.timezone", strings.TrimSpace(newCfg.Scheduler.Timezone)),
			logx.String("scheduler.task_timeout", newCfg.Scheduler.TaskTimeout),
			logx.Int("scheduler.table_buckets", len(newCfg.Scheduler.Table)),
		)
	}

	if oldCfg.Storage != newCfg.Storage {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", newCfg.Storage.Driver),
			logx.Bool("storage.path_set", strings.TrimSpace(newCfg.Storage.Path) != ""),
		)
	}

	// Dashboard (never log the session secret)
	od, nd := oldCfg.Dashboard, newCfg.Dashboard
	secretChanged := od.SessionSecret != nd.SessionSecret
	od.SessionSecret, nd.SessionSecret = "", ""
	if secretChanged || od != nd {
		changed = append(changed, "dashboard")
		attrs = append(attrs,
			logx.String("dashboard.addr", nd.Addr),
			logx.Bool("dashboard.secret_changed", secretChanged),
			logx.Bool("dashboard.rate_limit", nd.RateLimit.Enabled),
		)
	}

	if !reflect.DeepEqual(oldCfg.Probe, newCfg.Probe) {
		changed = append(changed, "probe")
		attrs = append(attrs,
			logx.String("probe.timeout", newCfg.Probe.Timeout),
			logx.Int("probe.concurrency", newCfg.Probe.Concurrency),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}
