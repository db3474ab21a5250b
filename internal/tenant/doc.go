// Package tenant owns the per-client configuration documents stored under
// clients/<tenant_id>/config.json: the directory store used by the dashboard
// and the validator used by the CLI.
//
// Documents are handled as generic JSON objects so opaque sections
// (voice_config, billing, ...) survive a read-modify-write untouched.
package tenant
