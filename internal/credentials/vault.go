package credentials

import (
	"fmt"
	"sort"

	"agencyops/pkg/fsutil"
)

// DefaultProjects lists the secrets each project needs when no
// projects file is present.
var DefaultProjects = map[string][]string{
	"dashboard": {"AGENCYOPS_SESSION_SECRET"},
	"scheduler": {"SHOPIFY_STORE", "SHOPIFY_ACCESS_TOKEN", "KLAVIYO_API_KEY", "APIFY_TOKEN", "OPENAI_API_KEY"},
	"seo":       {"GOOGLE_APPLICATION_CREDENTIALS", "OPENAI_API_KEY"},
	"n8n":       {"N8N_BASE_URL", "N8N_API_KEY"},
}

// LoadProjects reads project -> secret names from path, falling back to
// DefaultProjects when the file does not exist.
func LoadProjects(path string) (map[string][]string, error) {
	var m map[string][]string
	if err := fsutil.ReadJSON(path, &m); err != nil {
		if fsutil.IsNotExist(err) {
			return DefaultProjects, nil
		}
		return nil, err
	}
	return m, nil
}

// SecretStatus reports whether a required secret resolves. Values are never returned.
type SecretStatus struct {
	Name    string `json:"name"`
	Present bool   `json:"present"`
	Source  string `json:"source,omitempty"`
}

// ProjectSecrets resolves the secrets required by project.
func ProjectSecrets(projects map[string][]string, project string, r *Resolver) ([]SecretStatus, error) {
	names, ok := projects[project]
	if !ok {
		return nil, fmt.Errorf("unknown project %q", project)
	}
	names = append([]string(nil), names...)
	sort.Strings(names)
	out := make([]SecretStatus, 0, len(names))
	for _, n := range names {
		_, src, found := r.LookupEnv(n)
		out = append(out, SecretStatus{Name: n, Present: found, Source: src})
	}
	return out, nil
}
