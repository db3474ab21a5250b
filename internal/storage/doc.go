// Package storage keeps the scheduler's run history and window claims.
//
// A window claim marks that a bucket already ran in the current cron window,
// so an overlapping cron tick or a restarted daemon does not run it twice.
package storage
