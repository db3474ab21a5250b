// Package schedule is the master scheduler: a static table of scripts grouped
// into buckets, wall-clock window predicates per bucket, and a sequential
// dispatcher that runs every task of each eligible bucket.
//
// The scheduler is meant to be invoked every 5 minutes (external cron or the
// built-in daemon loop). Bucket windows are the first five minutes of the
// matching hour, expressed as robfig/cron specs, so an invocation anywhere in
// the window selects the bucket and a persisted window claim keeps a second
// invocation in the same window from running it again.
package schedule
