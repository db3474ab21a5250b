package dashboard

import (
	"errors"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"agencyops/internal/probe"
	"agencyops/internal/tenant"
	"agencyops/pkg/logx"
)

// tenantError maps store errors to HTTP responses.
func (a *API) tenantError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, tenant.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, tenant.ErrExists):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, tenant.ErrInvalid):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		a.Log.Error("tenant store failed", logx.String("request_id", RequestID(r.Context())), logx.Err(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (a *API) listClients(w http.ResponseWriter, r *http.Request) {
	list, err := a.Tenants.List()
	if err != nil {
		a.tenantError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"clients": list, "count": len(list)})
}

func (a *API) createClient(w http.ResponseWriter, r *http.Request) {
	var req tenant.CreateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	doc, err := a.Tenants.Create(req)
	if err != nil {
		a.tenantError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, doc)
}

// authorizeTenant allows admins and CLIENT sessions bound to id.
func authorizeTenant(w http.ResponseWriter, r *http.Request, id string) bool {
	c, ok := SessionClaims(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing session")
		return false
	}
	if !c.CanAccessTenant(id) {
		writeError(w, http.StatusForbidden, "no access to this tenant")
		return false
	}
	return true
}

func (a *API) getClient(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !authorizeTenant(w, r, id) {
		return
	}
	doc, err := a.Tenants.Get(id)
	if err != nil {
		a.tenantError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (a *API) patchClient(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var patch map[string]any
	if !decodeJSON(w, r, &patch) {
		return
	}
	if len(patch) == 0 {
		writeError(w, http.StatusBadRequest, "empty patch")
		return
	}
	doc, err := a.Tenants.Patch(id, patch)
	if err != nil {
		a.tenantError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (a *API) deleteClient(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	dest, err := a.Tenants.Archive(id)
	if err != nil {
		a.tenantError(w, r, err)
		return
	}
	if rel, err := filepath.Rel(a.Tenants.Dir(), dest); err == nil {
		dest = filepath.ToSlash(rel)
	}
	writeJSON(w, http.StatusOK, map[string]any{"tenant_id": id, "archived": true, "path": dest})
}

type integrationHealth struct {
	Enabled     bool   `json:"enabled"`
	ConnectedAt string `json:"connected_at,omitempty"`
	Configured  bool   `json:"configured"`
}

func (a *API) tenantHealth(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "tenantId")
	if !authorizeTenant(w, r, id) {
		return
	}
	doc, err := a.Tenants.Get(id)
	if err != nil {
		a.tenantError(w, r, err)
		return
	}

	validation := tenant.Validate(a.Tenants.Dir(), id)
	status, err := a.Tenants.AutomationStatus(id)
	if err != nil {
		a.Log.Warn("automation status unreadable", logx.String("tenant", id), logx.Err(err))
	}
	logs, err := a.Tenants.Logs(id)
	if err != nil {
		a.Log.Warn("tenant logs unreadable", logx.String("tenant", id), logx.Err(err))
	}

	res, err := a.resolver()
	if err != nil {
		a.Log.Error("credential resolver failed", logx.Err(err))
		writeError(w, http.StatusInternalServerError, "credentials unavailable")
		return
	}
	integrations := map[string]integrationHealth{}
	var enabled []string
	for name, raw := range doc.Integrations() {
		m, _ := raw.(map[string]any)
		h := integrationHealth{Configured: res.Configured(name)}
		h.Enabled, _ = m["enabled"].(bool)
		h.ConnectedAt, _ = m["connected_at"].(string)
		integrations[name] = h
		if h.Enabled {
			enabled = append(enabled, name)
		}
	}

	body := map[string]any{
		"tenant_id":         id,
		"name":              doc.Name(),
		"status":            doc.Status(),
		"validation":        validation,
		"automation_status": status,
		"logs":              logs,
		"integrations":      integrations,
		"checked_at":        time.Now().UTC().Format(time.RFC3339),
	}

	if wantsProbe(r) && a.Prober != nil {
		var ids []string
		for _, p := range probe.Providers() {
			for _, e := range enabled {
				if e == p {
					ids = append(ids, p)
				}
			}
		}
		probes := []probe.Result{}
		if len(ids) > 0 {
			probes = a.Prober.Run(r.Context(), res, ids...)
		}
		body["probes"] = probes
	}
	writeJSON(w, http.StatusOK, body)
}

func wantsProbe(r *http.Request) bool {
	switch strings.ToLower(r.URL.Query().Get("probe")) {
	case "1", "true", "yes":
		return true
	}
	return false
}
