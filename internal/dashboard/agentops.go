package dashboard

import (
	"bufio"
	"bytes"
	"encoding/json"
	"net/http"
	"os"
	"sort"
	"strconv"
	"time"

	"agencyops/internal/storage"
	"agencyops/pkg/fsutil"
	"agencyops/pkg/logx"
)

const (
	defaultTelemetryLimit = 100
	maxTelemetryLimit     = 1000
	runSummaryWindow      = 1000
)

// defaultAgentHealth is served when health.json does not exist yet.
func defaultAgentHealth() map[string]any {
	return map[string]any{
		"agents_total":    0,
		"agents_healthy":  0,
		"agents_degraded": 0,
		"tasks_completed": 0,
		"tasks_failed":    0,
		"source":          "default",
	}
}

type runSummary struct {
	Runs      int        `json:"runs"`
	Failed    int        `json:"failed"`
	LastRunAt *time.Time `json:"last_run_at,omitempty"`
}

func (a *API) agentOpsHealth(w http.ResponseWriter, r *http.Request) {
	body := defaultAgentHealth()
	var fromFile map[string]any
	switch err := fsutil.ReadJSON(a.Paths.agentOps("health.json"), &fromFile); {
	case err == nil:
		body = fromFile
		if body == nil {
			body = defaultAgentHealth()
		}
	case fsutil.IsNotExist(err):
	default:
		a.Log.Error("agent health unreadable", logx.Err(err))
		writeError(w, http.StatusInternalServerError, "health.json is malformed")
		return
	}

	if a.Runs != nil {
		runs, err := a.Runs.RecentRuns(r.Context(), runSummaryWindow)
		if err != nil {
			a.Log.Warn("run history unavailable", logx.Err(err))
		} else {
			body["scheduler"] = summarizeRuns(runs)
		}
	}
	writeJSON(w, http.StatusOK, body)
}

func summarizeRuns(runs []storage.RunRecord) runSummary {
	s := runSummary{Runs: len(runs)}
	for _, rr := range runs {
		if !rr.OK {
			s.Failed++
		}
	}
	if len(runs) > 0 {
		at := runs[0].At
		s.LastRunAt = &at
	}
	return s
}

// telemetryEvent is one line of telemetry.jsonl or one run record.
type telemetryEvent map[string]any

func (e telemetryEvent) at() time.Time {
	for _, k := range []string{"timestamp", "ts", "at", "time"} {
		if s, ok := e[k].(string); ok {
			if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
				return t
			}
		}
	}
	return time.Time{}
}

// sampleTelemetry is shown until the first real events exist.
func sampleTelemetry(now time.Time) []telemetryEvent {
	return []telemetryEvent{
		{"timestamp": now.Add(-2 * time.Minute).Format(time.RFC3339), "type": "task_run", "agent": "scheduler", "task": "Voice widget heartbeat", "ok": true, "took_ms": 420},
		{"timestamp": now.Add(-7 * time.Minute).Format(time.RFC3339), "type": "task_run", "agent": "scheduler", "task": "Automation health check", "ok": true, "took_ms": 1830},
		{"timestamp": now.Add(-65 * time.Minute).Format(time.RFC3339), "type": "task_run", "agent": "scheduler", "task": "Klaviyo flow sync", "ok": false, "error": "exit status 1", "took_ms": 5120},
	}
}

func (a *API) agentOpsTelemetry(w http.ResponseWriter, r *http.Request) {
	limit := defaultTelemetryLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxTelemetryLimit)
	}

	events, skipped, err := readTelemetry(a.Paths.agentOps("telemetry.jsonl"))
	if err != nil && !fsutil.IsNotExist(err) {
		a.Log.Warn("telemetry unreadable", logx.Err(err))
	}
	if skipped > 0 {
		a.Log.Debug("telemetry lines skipped", logx.Int("skipped", skipped))
	}

	if a.Runs != nil {
		runs, err := a.Runs.RecentRuns(r.Context(), limit)
		if err != nil {
			a.Log.Warn("run history unavailable", logx.Err(err))
		}
		for _, rr := range runs {
			events = append(events, runEvent(rr))
		}
	}

	if len(events) == 0 {
		sample := sampleTelemetry(time.Now().UTC())
		writeJSON(w, http.StatusOK, map[string]any{"events": sample, "count": len(sample), "sample": true})
		return
	}

	sort.SliceStable(events, func(i, j int) bool { return events[i].at().After(events[j].at()) })
	if len(events) > limit {
		events = events[:limit]
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events, "count": len(events), "sample": false, "skipped": skipped})
}

func runEvent(rr storage.RunRecord) telemetryEvent {
	e := telemetryEvent{
		"timestamp": rr.At.UTC().Format(time.RFC3339Nano),
		"type":      "task_run",
		"agent":     "scheduler",
		"bucket":    rr.Bucket,
		"task":      rr.Task,
		"script":    rr.Script,
		"ok":        rr.OK,
		"exit_code": rr.ExitCode,
		"took_ms":   rr.TookMS,
	}
	if rr.Error != "" {
		e["error"] = rr.Error
	}
	if rr.Forced {
		e["forced"] = true
	}
	return e
}

// readTelemetry parses a JSON Lines file; malformed or non-object lines are
// counted and skipped.
func readTelemetry(path string) ([]telemetryEvent, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	var (
		out     []telemetryEvent
		skipped int
	)
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1<<20)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var e telemetryEvent
		if err := json.Unmarshal(line, &e); err != nil || e == nil {
			skipped++
			continue
		}
		out = append(out, e)
	}
	return out, skipped, sc.Err()
}

func (a *API) agentOpsContext(w http.ResponseWriter, r *http.Request) {
	raw, err := os.ReadFile(a.Paths.agentOps("context.json"))
	if err != nil {
		if os.IsNotExist(err) {
			writeError(w, http.StatusNotFound, "context.json not found")
			return
		}
		a.Log.Error("agent context unreadable", logx.Err(err))
		writeError(w, http.StatusInternalServerError, "context unavailable")
		return
	}
	if !json.Valid(raw) {
		writeError(w, http.StatusInternalServerError, "context.json is malformed")
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(raw)
}
