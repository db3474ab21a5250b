package tenant

import (
	"fmt"
	"strings"
	"time"
)

// CreateRequest is the input of a new tenant.
type CreateRequest struct {
	TenantID     string `json:"tenant_id"`
	Name         string `json:"name"`
	Vertical     string `json:"vertical"`
	Plan         string `json:"plan"`
	ContactName  string `json:"contact_name"`
	ContactEmail string `json:"contact_email"`
	ContactPhone string `json:"contact_phone"`
}

// defaultFeatures is the feature set every new tenant starts from, by plan.
var defaultFeatures = map[string]map[string]bool{
	"quickwin":   {"seo_audit": true, "email_flows": false, "voice_widget": false, "lead_scraping": false, "reporting": true},
	"essentials": {"seo_audit": true, "email_flows": true, "voice_widget": false, "lead_scraping": false, "reporting": true},
	"growth":     {"seo_audit": true, "email_flows": true, "voice_widget": true, "lead_scraping": true, "reporting": true},
	"complete":   {"seo_audit": true, "email_flows": true, "voice_widget": true, "lead_scraping": true, "reporting": true},
}

// templateIntegrations are the providers a new tenant lists, all disabled.
var templateIntegrations = []string{"shopify", "klaviyo", "apify", "openai"}

// NewDocument builds a config from the template. The result validates with
// zero errors whenever req passes Check.
func NewDocument(req CreateRequest, now time.Time) Document {
	features := map[string]any{}
	for k, v := range defaultFeatures[req.Plan] {
		features[k] = v
	}
	integrations := map[string]any{}
	for _, p := range templateIntegrations {
		integrations[p] = map[string]any{"enabled": false}
	}
	return Document{
		"tenant_id":    req.TenantID,
		"name":         req.Name,
		"vertical":     req.Vertical,
		"plan":         req.Plan,
		"status":       "onboarding",
		"created_at":   now.UTC().Format(time.RFC3339),
		"features":     features,
		"integrations": integrations,
		"contacts": map[string]any{
			primaryContactKey: map[string]any{
				"name":  req.ContactName,
				"email": req.ContactEmail,
				"phone": req.ContactPhone,
			},
		},
		"voice_config": map[string]any{"enabled": false},
		"billing":      map[string]any{"plan": req.Plan},
	}
}

// Check validates a create request before anything touches disk.
func (r *CreateRequest) Check() error {
	r.TenantID = strings.TrimSpace(r.TenantID)
	r.Name = strings.TrimSpace(r.Name)
	r.ContactEmail = strings.TrimSpace(r.ContactEmail)
	if r.Plan == "" {
		r.Plan = "quickwin"
	}
	switch {
	case !ValidID(r.TenantID):
		return fmt.Errorf("%w: tenant_id %q must match %s", ErrInvalid, r.TenantID, idPattern.String())
	case r.Name == "":
		return fmt.Errorf("%w: name is required", ErrInvalid)
	case !contains(Verticals, r.Vertical):
		return fmt.Errorf("%w: %s", ErrInvalid, enumError("vertical", r.Vertical, Verticals))
	case !contains(Plans, r.Plan):
		return fmt.Errorf("%w: %s", ErrInvalid, enumError("plan", r.Plan, Plans))
	case !emailPattern.MatchString(r.ContactEmail):
		return fmt.Errorf("%w: invalid contact email %q", ErrInvalid, r.ContactEmail)
	}
	return nil
}
