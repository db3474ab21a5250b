// Package dashboard serves the JSON APIs behind the agency dashboard: tenant
// management, agent-ops snapshots, integration credentials, the script
// catalog and report exports.
package dashboard

import (
	"net/http"
	"path/filepath"

	"github.com/go-chi/chi/v5"

	"agencyops/internal/credentials"
	"agencyops/internal/metrics"
	"agencyops/internal/probe"
	"agencyops/internal/schedule"
	"agencyops/internal/storage"
	"agencyops/internal/tenant"
	"agencyops/pkg/logx"
)

// Paths locates the trees the handlers read. All paths are absolute.
type Paths struct {
	Root    string
	Data    string
	Scripts string
	EnvFile string
}

func (p Paths) agentOps(name string) string { return filepath.Join(p.Data, "agent-ops", name) }
func (p Paths) reports() string             { return filepath.Join(p.Data, "reports") }
func (p Paths) vaultProjects() string       { return filepath.Join(p.Data, "vault", "projects.json") }

// CredentialsFile is the credential store location under the data dir.
func CredentialsFile(data string) string {
	return filepath.Join(data, "credentials", "client-credentials.json")
}

// Deps are the collaborators of the API.
type Deps struct {
	Paths        Paths
	Tenants      *tenant.Store
	Credentials  *credentials.Store
	Runs         storage.Store // optional
	Table        schedule.Table
	Prober       *probe.Prober // optional; ?probe=1 is ignored without it
	Metrics      *metrics.Metrics
	Sessions     *Sessions
	RateLimit    RateLimit
	MaxBodyBytes int64
	// Pprof mounts the runtime profiles under /debug/pprof/ for admins.
	Pprof bool
	Log   logx.Logger
}

// API is the dashboard HTTP handler set.
type API struct {
	Deps
	limiter *rateLimiter
}

func NewAPI(d Deps) *API {
	if d.Log.IsZero() {
		d.Log = logx.Nop()
	}
	if d.Table == nil {
		d.Table = schedule.DefaultTable()
	}
	return &API{Deps: d, limiter: newRateLimiter(d.RateLimit, d.Log)}
}

// ApplyRateLimit swaps the rate limit settings of a running API.
func (a *API) ApplyRateLimit(cfg RateLimit) {
	a.limiter.apply(cfg)
	a.Log.Info("rate limit applied", logx.Bool("enabled", cfg.Enabled), logx.Int("requests", cfg.Requests), logx.Duration("window", cfg.Window))
}

// resolver snapshots credentials for one request.
func (a *API) resolver() (*credentials.Resolver, error) {
	return credentials.NewResolver(a.Credentials, a.Paths.EnvFile)
}

// Handler builds the router.
func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(recoverer(a.Log))
	r.Use(accessLog(a.Log, a.Metrics))
	r.Use(a.limiter.handler)
	r.Use(bodyLimit(a.MaxBodyBytes))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if a.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", a.Metrics.Handler())
	}
	if a.Pprof {
		a.mountPprof(r)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(authenticate(a.Sessions))

		r.Get("/clients/{id}", a.getClient)
		r.Get("/health/{tenantId}", a.tenantHealth)

		r.Get("/agent-ops/health", a.agentOpsHealth)
		r.Get("/agent-ops/telemetry", a.agentOpsTelemetry)
		r.Get("/agent-ops/context", a.agentOpsContext)

		r.Get("/integrations", a.listIntegrations)
		r.Get("/scripts", a.listScripts)

		r.Group(func(r chi.Router) {
			r.Use(requireAdmin)

			r.Get("/clients", a.listClients)
			r.Post("/clients", a.createClient)
			r.Patch("/clients/{id}", a.patchClient)
			r.Delete("/clients/{id}", a.deleteClient)

			r.Post("/integrations", a.toggleIntegration)
			r.Get("/integrations/credentials", a.getCredentials)
			r.Post("/integrations/credentials", a.postCredentials)
			r.Get("/vault/secrets", a.vaultSecrets)

			r.Get("/reports", a.listReports)
			r.Get("/reports/export", a.exportReport)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	return r
}
