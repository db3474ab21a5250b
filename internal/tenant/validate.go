package tenant

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Result is the outcome of validating one tenant.
type Result struct {
	TenantID string   `json:"tenant_id"`
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

func newResult(id string) Result {
	return Result{TenantID: id, Errors: []string{}, Warnings: []string{}}
}

func (r *Result) errorf(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

func (r *Result) warnf(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

func (r *Result) finish() Result {
	r.Valid = len(r.Errors) == 0
	return *r
}

// Validate runs every check against clients/<id>.
func Validate(clientsDir, id string) Result {
	r := newResult(id)

	dir, ok := tenantDir(clientsDir, id)
	if !ok {
		r.errorf("tenant directory not found: %s", filepath.Join(clientsDir, id))
		return r.finish()
	}
	if fi, err := os.Stat(dir); err != nil || !fi.IsDir() {
		r.errorf("tenant directory not found: %s", dir)
		return r.finish()
	}

	raw, err := os.ReadFile(filepath.Join(dir, ConfigFile))
	if err != nil {
		if os.IsNotExist(err) {
			r.errorf("%s not found", ConfigFile)
		} else {
			r.errorf("read %s: %v", ConfigFile, err)
		}
		return r.finish()
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		r.errorf("%s: invalid JSON: %v", ConfigFile, err)
		return r.finish()
	}
	obj, ok := v.(map[string]any)
	if !ok {
		r.errorf("%s: must be a JSON object", ConfigFile)
		return r.finish()
	}

	checkDocument(&r, id, Document(obj))

	if fi, err := os.Stat(filepath.Join(dir, LogsDir)); err != nil || !fi.IsDir() {
		r.warnf("%s/ directory missing", LogsDir)
	}
	if _, err := os.Stat(filepath.Join(dir, StatusFile)); err != nil {
		r.warnf("%s missing", StatusFile)
	}
	return r.finish()
}

// ValidateDocument runs the content checks (required keys through feature
// flags) on an in-memory document that would live in directory id.
func ValidateDocument(id string, doc Document) Result {
	r := newResult(id)
	checkDocument(&r, id, doc)
	return r.finish()
}

// ValidateAll validates every tenant directory under clientsDir, skipping
// names that start with "_" or ".".
func ValidateAll(clientsDir string) ([]Result, error) {
	ids, err := listIDs(clientsDir)
	if err != nil {
		return nil, err
	}
	out := make([]Result, 0, len(ids))
	for _, id := range ids {
		out = append(out, Validate(clientsDir, id))
	}
	return out, nil
}

func checkDocument(r *Result, id string, doc Document) {
	for _, k := range RequiredFields {
		if _, ok := doc[k]; !ok {
			r.errorf("missing required field: %s", k)
		}
	}

	if v, ok := doc["tenant_id"]; ok {
		if s, _ := v.(string); s != id {
			r.errorf("tenant_id %q does not match directory name %q", fmt.Sprint(v), id)
		}
	}

	enums := []struct {
		field   string
		allowed []string
	}{
		{"vertical", Verticals},
		{"plan", Plans},
		{"status", Statuses},
	}
	for _, e := range enums {
		v, ok := doc[e.field]
		if !ok {
			continue
		}
		s, isStr := v.(string)
		if !isStr || !contains(e.allowed, s) {
			r.Errors = append(r.Errors, enumError(e.field, fmt.Sprint(v), e.allowed))
		}
	}

	if v, ok := doc["created_at"]; ok {
		s, _ := v.(string)
		if _, err := ParseTimestamp(s); err != nil {
			r.errorf("invalid created_at %q: not an ISO-8601 timestamp", fmt.Sprint(v))
		}
	}

	if v, ok := doc[contactsKey]; ok {
		contacts, isObj := v.(map[string]any)
		switch {
		case !isObj:
			r.errorf("contacts must be an object")
		case contacts[primaryContactKey] == nil:
			r.warnf("no primary contact")
		default:
			p := doc.PrimaryContact()
			if p == nil {
				r.errorf("contacts.primary must be an object")
				break
			}
			email, _ := p["email"].(string)
			if !emailPattern.MatchString(email) {
				r.errorf("invalid contacts.primary.email %q", fmt.Sprint(p["email"]))
			}
		}
	}

	if v, ok := doc["features"]; ok {
		features, isObj := v.(map[string]any)
		if !isObj {
			r.errorf("features must be an object")
		} else {
			keys := make([]string, 0, len(features))
			for k := range features {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				if _, isBool := features[k].(bool); !isBool {
					r.errorf("feature %q must be a boolean", k)
				}
			}
		}
	}

	if v, ok := doc["integrations"]; ok {
		if _, isObj := v.(map[string]any); !isObj {
			r.errorf("integrations must be an object")
		}
	}
}

func enumError(field, value string, allowed []string) string {
	return fmt.Sprintf("invalid %s %q: must be one of %s", field, value, strings.Join(allowed, ", "))
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02",
}

// ParseTimestamp parses the ISO-8601 forms found in tenant configs.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	var err error
	for _, layout := range timestampLayouts {
		var t time.Time
		if t, err = time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, err
}

// tenantDir joins id under clientsDir, refusing ids that would escape it.
func tenantDir(clientsDir, id string) (string, bool) {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) {
		return "", false
	}
	return filepath.Join(clientsDir, id), true
}

func listIDs(clientsDir string) ([]string, error) {
	entries, err := os.ReadDir(clientsDir)
	if err != nil {
		return nil, fmt.Errorf("read clients dir: %w", err)
	}
	var ids []string
	for _, e := range entries {
		name := e.Name()
		if !e.IsDir() || strings.HasPrefix(name, "_") || strings.HasPrefix(name, ".") {
			continue
		}
		ids = append(ids, name)
	}
	return ids, nil
}
