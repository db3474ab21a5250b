package tenant

import (
	"errors"
	"regexp"
)

var (
	ErrNotFound = errors.New("tenant not found")
	ErrExists   = errors.New("tenant already exists")
	ErrInvalid  = errors.New("invalid tenant")
)

const (
	ConfigFile        = "config.json"
	StatusFile        = "automation-status.json"
	LogsDir           = "logs"
	ArchiveDir        = "_archived"
	contactsKey       = "contacts"
	primaryContactKey = "primary"
)

// RequiredFields are the top-level keys every config must carry.
var RequiredFields = []string{
	"tenant_id", "name", "vertical", "plan", "status",
	"created_at", "features", "integrations", "contacts",
}

var (
	Verticals = []string{"shopify", "b2b", "agency"}
	Plans     = []string{"quickwin", "essentials", "growth", "complete"}
	Statuses  = []string{"onboarding", "active", "suspended", "churned"}
)

var (
	idPattern    = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*$`)
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
)

// ValidID reports whether id is a usable tenant slug.
func ValidID(id string) bool { return idPattern.MatchString(id) }

// Document is a tenant config as a generic JSON object.
type Document map[string]any

func (d Document) str(key string) string {
	s, _ := d[key].(string)
	return s
}

func (d Document) TenantID() string { return d.str("tenant_id") }
func (d Document) Name() string     { return d.str("name") }
func (d Document) Vertical() string { return d.str("vertical") }
func (d Document) Plan() string     { return d.str("plan") }
func (d Document) Status() string   { return d.str("status") }

// Integrations returns the integrations section, or nil.
func (d Document) Integrations() map[string]any {
	m, _ := d["integrations"].(map[string]any)
	return m
}

// PrimaryContact returns contacts.primary, or nil when absent or not an object.
func (d Document) PrimaryContact() map[string]any {
	c, _ := d[contactsKey].(map[string]any)
	if c == nil {
		return nil
	}
	p, _ := c[primaryContactKey].(map[string]any)
	return p
}

// Summary is the list view of a tenant.
type Summary struct {
	TenantID string `json:"tenant_id"`
	Name     string `json:"name"`
	Vertical string `json:"vertical"`
	Plan     string `json:"plan"`
	Status   string `json:"status"`
	Valid    bool   `json:"valid"`
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
