// Package credentials stores integration credentials for the dashboard and
// resolves them per request without touching the process environment.
package credentials

import "errors"

var ErrUnknownIntegration = errors.New("unknown integration")

// Key is one credential field of an integration.
type Key struct {
	Name string `json:"name"` // key inside the credential store
	Env  string `json:"env"`  // environment variable fallback
}

// Integration describes a third-party provider the agency connects to.
type Integration struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category"`
	Keys     []Key  `json:"keys"`
}

var catalog = []Integration{
	{ID: "shopify", Name: "Shopify", Category: "commerce", Keys: []Key{
		{Name: "store", Env: "SHOPIFY_STORE"},
		{Name: "access_token", Env: "SHOPIFY_ACCESS_TOKEN"},
	}},
	{ID: "klaviyo", Name: "Klaviyo", Category: "email", Keys: []Key{
		{Name: "api_key", Env: "KLAVIYO_API_KEY"},
	}},
	{ID: "openai", Name: "OpenAI", Category: "ai", Keys: []Key{
		{Name: "api_key", Env: "OPENAI_API_KEY"},
	}},
	{ID: "apify", Name: "Apify", Category: "scraping", Keys: []Key{
		{Name: "token", Env: "APIFY_TOKEN"},
	}},
	{ID: "n8n", Name: "n8n", Category: "automation", Keys: []Key{
		{Name: "base_url", Env: "N8N_BASE_URL"},
		{Name: "api_key", Env: "N8N_API_KEY"},
	}},
	{ID: "google", Name: "Google Services", Category: "analytics", Keys: []Key{
		{Name: "service_account_json", Env: "GOOGLE_APPLICATION_CREDENTIALS"},
	}},
}

// Catalog returns the known integrations.
func Catalog() []Integration {
	out := make([]Integration, len(catalog))
	copy(out, catalog)
	return out
}

// Lookup finds an integration by id.
func Lookup(id string) (Integration, bool) {
	for _, in := range catalog {
		if in.ID == id {
			return in, true
		}
	}
	return Integration{}, false
}

// keyForEnv maps an environment variable name back to its store location.
func keyForEnv(env string) (integration, key string, ok bool) {
	for _, in := range catalog {
		for _, k := range in.Keys {
			if k.Env == env {
				return in.ID, k.Name, true
			}
		}
	}
	return "", "", false
}
