package schedule

import (
	"fmt"
	"sort"
	"strings"

	"agencyops/internal/config"
)

// Bucket names.
const (
	Every5Min   = "every-5-min"
	Hourly      = "hourly"
	Every6Hours = "every-6-hours"
	Daily       = "daily"
	Weekly      = "weekly"
	Batch       = "batch"
	Monthly     = "monthly"
)

// Buckets lists every bucket in dispatch order.
var Buckets = []string{Every5Min, Monthly, Weekly, Daily, Batch, Every6Hours, Hourly}

// Task is one registered script.
type Task struct {
	Name   string `json:"name"`
	Script string `json:"script"`
	Type   string `json:"type,omitempty"`
}

// Table maps bucket name to its tasks, in execution order.
type Table map[string][]Task

// DefaultTable is the built-in task table.
func DefaultTable() Table {
	return Table{
		Every5Min: {
			{Name: "Voice widget heartbeat", Script: "scripts/monitoring/voice-heartbeat.cjs", Type: "monitor"},
		},
		Hourly: {
			{Name: "Automation health check", Script: "scripts/monitoring/check-automation-health.cjs", Type: "monitor"},
			{Name: "Klaviyo flow sync", Script: "scripts/klaviyo/sync-flows.cjs", Type: "sync"},
		},
		Every6Hours: {
			{Name: "Lead scrape", Script: "scripts/leads/apify-scrape.cjs", Type: "scrape"},
			{Name: "n8n workflow audit", Script: "scripts/n8n/audit-workflows.cjs", Type: "audit"},
		},
		Daily: {
			{Name: "SEO metadata fix", Script: "scripts/seo/fix-meta.cjs", Type: "fix"},
			{Name: "Daily automation report", Script: "scripts/reports/daily-report.cjs", Type: "report"},
		},
		Weekly: {
			{Name: "HTML validation", Script: "scripts/seo/validate-html.cjs", Type: "audit"},
			{Name: "Weekly client digest", Script: "scripts/reports/weekly-digest.cjs", Type: "report"},
		},
		Batch: {
			{Name: "Product image generation", Script: "scripts/media/generate-product-images.cjs", Type: "generate"},
		},
		Monthly: {
			{Name: "Monthly billing export", Script: "scripts/reports/monthly-billing.cjs", Type: "report"},
		},
	}
}

// TableFromConfig overlays configured buckets on the default table.
// A configured bucket replaces the default list entirely.
func TableFromConfig(cfg config.SchedulerConfig) (Table, error) {
	t := DefaultTable()
	for bucket, tasks := range cfg.Table {
		if !IsBucket(bucket) {
			return nil, fmt.Errorf("scheduler.table: unknown bucket %q (known: %s)", bucket, strings.Join(Buckets, ", "))
		}
		out := make([]Task, 0, len(tasks))
		for _, tc := range tasks {
			out = append(out, Task{Name: tc.Name, Script: tc.Script, Type: tc.Type})
		}
		t[bucket] = out
	}
	return t, nil
}

// IsBucket reports whether name is a known bucket.
func IsBucket(name string) bool {
	for _, b := range Buckets {
		if b == name {
			return true
		}
	}
	return false
}

// Entry is a flattened (bucket, task) pair.
type Entry struct {
	Bucket string
	Task
}

// Entries flattens the table in dispatch order.
func (t Table) Entries() []Entry {
	var out []Entry
	for _, b := range Buckets {
		for _, task := range t[b] {
			out = append(out, Entry{Bucket: b, Task: task})
		}
	}
	return out
}

// Scripts returns the distinct script paths in the table, sorted.
func (t Table) Scripts() []string {
	seen := map[string]struct{}{}
	for _, tasks := range t {
		for _, task := range tasks {
			seen[task.Script] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
