package dashboard

import (
	"errors"
	"net/http"
	"strings"

	"agencyops/internal/credentials"
	"agencyops/pkg/logx"
)

type keyStatus struct {
	Name    string `json:"name"`
	Env     string `json:"env"`
	Present bool   `json:"present"`
	Source  string `json:"source,omitempty"`
}

type integrationView struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	Category   string      `json:"category"`
	Configured bool        `json:"configured"`
	Keys       []keyStatus `json:"keys"`
}

func (a *API) listIntegrations(w http.ResponseWriter, r *http.Request) {
	res, err := a.resolver()
	if err != nil {
		a.Log.Error("credential resolver failed", logx.Err(err))
		writeError(w, http.StatusInternalServerError, "credentials unavailable")
		return
	}
	var out []integrationView
	for _, in := range credentials.Catalog() {
		v := integrationView{ID: in.ID, Name: in.Name, Category: in.Category, Configured: res.Configured(in.ID)}
		for _, k := range in.Keys {
			_, src, ok := res.Get(in.ID, k.Name)
			v.Keys = append(v.Keys, keyStatus{Name: k.Name, Env: k.Env, Present: ok, Source: src})
		}
		out = append(out, v)
	}
	writeJSON(w, http.StatusOK, map[string]any{"integrations": out})
}

type toggleRequest struct {
	TenantID    string `json:"tenant_id"`
	Integration string `json:"integration"`
	Enabled     *bool  `json:"enabled"`
}

func (a *API) toggleIntegration(w http.ResponseWriter, r *http.Request) {
	var req toggleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.TenantID == "" || req.Integration == "" || req.Enabled == nil {
		writeError(w, http.StatusBadRequest, "tenant_id, integration and enabled are required")
		return
	}
	if _, ok := credentials.Lookup(req.Integration); !ok {
		writeError(w, http.StatusBadRequest, "unknown integration: "+req.Integration)
		return
	}
	doc, err := a.Tenants.SetIntegration(req.TenantID, req.Integration, *req.Enabled)
	if err != nil {
		a.tenantError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"tenant_id":   req.TenantID,
		"integration": req.Integration,
		"state":       doc.Integrations()[req.Integration],
	})
}

func (a *API) getCredentials(w http.ResponseWriter, r *http.Request) {
	rec, err := a.Credentials.Masked()
	if err != nil {
		a.Log.Error("credential store unreadable", logx.Err(err))
		writeError(w, http.StatusInternalServerError, "credentials unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"credentials": rec})
}

type credentialsRequest struct {
	Integration string            `json:"integration"`
	Values      map[string]string `json:"values"`
}

func (a *API) postCredentials(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Integration = strings.TrimSpace(req.Integration)
	if req.Integration == "" || len(req.Values) == 0 {
		writeError(w, http.StatusBadRequest, "integration and values are required")
		return
	}
	user := "unknown"
	if c, ok := SessionClaims(r.Context()); ok {
		user = c.Subject
	}
	if err := a.Credentials.Merge(req.Integration, req.Values, user); err != nil {
		if errors.Is(err, credentials.ErrUnknownIntegration) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		a.Log.Error("credential store write failed", logx.Err(err))
		writeError(w, http.StatusInternalServerError, "credentials not saved")
		return
	}
	a.Log.Info("credentials updated", logx.String("integration", req.Integration), logx.String("user", user), logx.Int("keys", len(req.Values)))

	rec, err := a.Credentials.Masked()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "credentials unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"integration": req.Integration, "credentials": rec[req.Integration]})
}

func (a *API) vaultSecrets(w http.ResponseWriter, r *http.Request) {
	project := strings.TrimSpace(r.URL.Query().Get("project"))
	if project == "" {
		writeError(w, http.StatusBadRequest, "project is required")
		return
	}
	projects, err := credentials.LoadProjects(a.Paths.vaultProjects())
	if err != nil {
		a.Log.Error("vault projects unreadable", logx.Err(err))
		writeError(w, http.StatusInternalServerError, "projects.json is malformed")
		return
	}
	if _, ok := projects[project]; !ok {
		writeError(w, http.StatusNotFound, "unknown project: "+project)
		return
	}
	res, err := a.resolver()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "credentials unavailable")
		return
	}
	secrets, err := credentials.ProjectSecrets(projects, project, res)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	missing := 0
	for _, s := range secrets {
		if !s.Present {
			missing++
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"project": project, "secrets": secrets, "missing": missing})
}
