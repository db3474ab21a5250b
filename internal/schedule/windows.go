package schedule

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// WindowLength is the span of every bucket window, matching the 5-minute
// invocation cadence.
const WindowLength = 5 * time.Minute

// DefaultWindows holds the cron spec of each bucket window.
// Every5Min has no spec: it is always eligible.
var DefaultWindows = map[string]string{
	Monthly:     "0-4 8 1 * *",
	Weekly:      "0-4 7 * * 1",
	Daily:       "0-4 6 * * *",
	Batch:       "0-4 2 * * *",
	Every6Hours: "0-4 3,9,15,21 * * *",
	Hourly:      "0-4 * * * *",
}

// precedence is the order in which windows claim a minute. Hourly comes last
// and only applies when nothing more specific matched.
var precedence = []string{Monthly, Weekly, Daily, Batch, Every6Hours, Hourly}

var specParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Windows evaluates bucket predicates.
type Windows struct {
	loc   *time.Location
	specs map[string]string
	sched map[string]cron.Schedule
}

// NewWindows parses the default specs, overridden by overrides (bucket -> spec).
func NewWindows(loc *time.Location, overrides map[string]string) (*Windows, error) {
	if loc == nil {
		loc = time.Local
	}
	w := &Windows{loc: loc, specs: map[string]string{}, sched: map[string]cron.Schedule{}}
	for b, spec := range DefaultWindows {
		w.specs[b] = spec
	}
	for b, spec := range overrides {
		if b == Every5Min || !IsBucket(b) {
			return nil, fmt.Errorf("window override for %q not allowed", b)
		}
		w.specs[b] = spec
	}
	for b, spec := range w.specs {
		s, err := specParser.Parse(spec)
		if err != nil {
			return nil, fmt.Errorf("bucket %s: invalid window %q: %w", b, spec, err)
		}
		w.sched[b] = s
	}
	return w, nil
}

// MustWindows is NewWindows with the defaults; it panics on error.
func MustWindows(loc *time.Location) *Windows {
	w, err := NewWindows(loc, nil)
	if err != nil {
		panic(err)
	}
	return w
}

// Location returns the timezone predicates are evaluated in.
func (w *Windows) Location() *time.Location { return w.loc }

// Spec returns the window spec of bucket ("" for every-5-min).
func (w *Windows) Spec(bucket string) string { return w.specs[bucket] }

// matches reports whether the minute containing t fires spec.
func (w *Windows) matches(bucket string, t time.Time) bool {
	s, ok := w.sched[bucket]
	if !ok {
		return false
	}
	t = t.In(w.loc)
	minute := time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), 0, 0, w.loc)
	return s.Next(minute.Add(-time.Second)).Equal(minute)
}

// Eligible returns the buckets eligible at t, in dispatch order.
// Every5Min is always first; at most one other bucket follows.
func (w *Windows) Eligible(t time.Time) []string {
	out := []string{Every5Min}
	for _, b := range precedence {
		if w.matches(b, t) {
			return append(out, b)
		}
	}
	return out
}

// IsEligible reports whether bucket is eligible at t.
func (w *Windows) IsEligible(bucket string, t time.Time) bool {
	for _, b := range w.Eligible(t) {
		if b == bucket {
			return true
		}
	}
	return false
}

// Next returns the start of the next window of bucket strictly after t.
// It returns the zero time when no window is found within a year.
func (w *Windows) Next(bucket string, t time.Time) time.Time {
	t = t.In(w.loc)
	if bucket == Every5Min {
		return WindowEnd(t)
	}
	s, ok := w.sched[bucket]
	if !ok {
		return time.Time{}
	}
	limit := t.AddDate(1, 0, 0)
	for cand := s.Next(t); !cand.IsZero() && cand.Before(limit); cand = s.Next(cand) {
		if w.IsEligible(bucket, cand) && !w.IsEligible(bucket, cand.Add(-time.Minute)) {
			return cand
		}
	}
	return time.Time{}
}

// WindowEnd returns the end of the 5-minute window containing t.
func WindowEnd(t time.Time) time.Time {
	floor := time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute()-t.Minute()%5, 0, 0, t.Location())
	return floor.Add(WindowLength)
}
