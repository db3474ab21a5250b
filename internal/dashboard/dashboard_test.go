package dashboard

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"agencyops/internal/credentials"
	"agencyops/internal/metrics"
	"agencyops/internal/probe"
	"agencyops/internal/schedule"
	"agencyops/internal/storage"
	"agencyops/internal/tenant"
	"agencyops/pkg/logx"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type fixture struct {
	t        *testing.T
	root     string
	paths    Paths
	api      *API
	handler  http.Handler
	sessions *Sessions
	runs     storage.Store
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

const testCorpConfig = `{
  "tenant_id": "test-corp",
  "name": "Test Corp",
  "vertical": "shopify",
  "plan": "quickwin",
  "status": "onboarding",
  "created_at": "2026-01-15T10:00:00Z",
  "features": {"seo_audit": true},
  "integrations": {"shopify": {"enabled": true}, "klaviyo": {"enabled": false}},
  "contacts": {"primary": {"name": "Ada", "email": "ada@test-corp.com", "phone": ""}}
}`

func newFixture(t *testing.T, mutate func(*Deps)) *fixture {
	t.Helper()
	root := t.TempDir()
	paths := Paths{
		Root:    root,
		Data:    filepath.Join(root, "data"),
		Scripts: filepath.Join(root, "scripts"),
		EnvFile: filepath.Join(root, ".env"),
	}
	writeFile(t, filepath.Join(root, "clients", "test-corp", "config.json"), testCorpConfig)

	runs, err := storage.Open(storage.Config{Driver: "file", Path: filepath.Join(paths.Data, "state", "runs")}, logx.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = runs.Close() })

	sessions, err := NewSessions(testSecret, time.Hour)
	require.NoError(t, err)

	d := Deps{
		Paths:       paths,
		Tenants:     tenant.NewStore(filepath.Join(root, "clients"), logx.Nop()),
		Credentials: credentials.NewStore(CredentialsFile(paths.Data)),
		Runs:        runs,
		Table:       schedule.DefaultTable(),
		Metrics:     metrics.New(),
		Sessions:    sessions,
		Log:         logx.Nop(),
	}
	if mutate != nil {
		mutate(&d)
	}
	api := NewAPI(d)
	return &fixture{t: t, root: root, paths: paths, api: api, handler: api.Handler(), sessions: sessions, runs: runs}
}

func (f *fixture) token(role, tenantID string) string {
	tok, _, err := f.sessions.Issue("ops@agency", role, tenantID)
	require.NoError(f.t, err)
	return tok
}

func (f *fixture) do(method, target, token, body string) *httptest.ResponseRecorder {
	f.t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if token != "" {
		req.AddCookie(&http.Cookie{Name: CookieName, Value: token})
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m), rec.Body.String())
	return m
}

func TestHealthzAndRequestID(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(http.MethodGet, "/healthz", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, rec.Header().Get(RequestIDHeader))

	rec = f.do(http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "agencyops_http_requests_total")
}

func TestAuthRoles(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(http.MethodGet, "/api/clients", "", "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "missing session", decode(t, rec)["error"])

	rec = f.do(http.MethodGet, "/api/clients", "garbage", "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	client := f.token(RoleClient, "test-corp")
	rec = f.do(http.MethodGet, "/api/clients", client, "")
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(http.MethodGet, "/api/clients/test-corp", client, "")
	require.Equal(t, http.StatusOK, rec.Code)
	rec = f.do(http.MethodGet, "/api/clients/other", client, "")
	require.Equal(t, http.StatusForbidden, rec.Code)

	other, err := NewSessions("another-secret-of-32-bytes-long!", time.Hour)
	require.NoError(t, err)
	forged, _, err := other.Issue("mallory", RoleAdmin, "")
	require.NoError(t, err)
	rec = f.do(http.MethodGet, "/api/clients", forged, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestBearerHeaderAccepted(t *testing.T) {
	f := newFixture(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/clients", nil)
	req.Header.Set("Authorization", "Bearer "+f.token(RoleAdmin, ""))
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestClientLifecycle(t *testing.T) {
	f := newFixture(t, nil)
	admin := f.token(RoleAdmin, "")

	rec := f.do(http.MethodGet, "/api/clients", admin, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.EqualValues(t, 1, decode(t, rec)["count"])

	body := `{"tenant_id":"acme","name":"Acme","vertical":"b2b","plan":"growth","contact_email":"ops@acme.io"}`
	rec = f.do(http.MethodPost, "/api/clients", admin, body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Equal(t, "acme", decode(t, rec)["tenant_id"])

	rec = f.do(http.MethodPost, "/api/clients", admin, body)
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(http.MethodPost, "/api/clients", admin, `{"tenant_id":"bad","name":"Bad","vertical":"retail","contact_email":"a@b.co"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodPost, "/api/clients", admin, `{"tenant_id":`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodPatch, "/api/clients/acme", admin, `{"status":"active","features":{"voice_widget":false}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	doc := decode(t, rec)
	require.Equal(t, "active", doc["status"])
	require.Equal(t, true, doc["features"].(map[string]any)["seo_audit"])

	rec = f.do(http.MethodPatch, "/api/clients/acme", admin, `{"vertical":"invalid"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, decode(t, rec)["error"], `invalid vertical "invalid"`)

	rec = f.do(http.MethodPatch, "/api/clients/acme", f.token(RoleClient, "acme"), `{"status":"active"}`)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(http.MethodDelete, "/api/clients/acme", admin, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, strings.HasPrefix(decode(t, rec)["path"].(string), "_archived/acme-"))

	rec = f.do(http.MethodGet, "/api/clients/acme", admin, "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	rec = f.do(http.MethodDelete, "/api/clients/acme", admin, "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTenantHealthWithProbes(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Shopify-Access-Token") != "shpat_test" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"shop":{}}`))
	}))
	defer upstream.Close()

	f := newFixture(t, func(d *Deps) {
		d.Prober = probe.New(probe.Config{RatePerSec: 50, BaseURLs: map[string]string{"shopify": upstream.URL}}, upstream.Client(), logx.Nop())
	})
	writeFile(t, f.paths.EnvFile, "SHOPIFY_STORE=test-corp.myshopify.com\nSHOPIFY_ACCESS_TOKEN=shpat_test\n")
	writeFile(t, filepath.Join(f.root, "clients", "test-corp", "automation-status.json"), `{"flows":3}`)
	writeFile(t, filepath.Join(f.root, "clients", "test-corp", "logs", "a.log"), "x")

	rec := f.do(http.MethodGet, "/api/health/test-corp?probe=1", f.token(RoleClient, "test-corp"), "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)

	validation := body["validation"].(map[string]any)
	require.Equal(t, true, validation["valid"])
	require.Empty(t, validation["warnings"])
	require.EqualValues(t, 3, body["automation_status"].(map[string]any)["flows"])
	require.EqualValues(t, 1, body["logs"].(map[string]any)["files"])

	integrations := body["integrations"].(map[string]any)
	require.Equal(t, true, integrations["shopify"].(map[string]any)["configured"])
	require.Equal(t, false, integrations["klaviyo"].(map[string]any)["enabled"])

	probes := body["probes"].([]any)
	require.Len(t, probes, 1)
	require.Equal(t, "ok", probes[0].(map[string]any)["status"])

	rec = f.do(http.MethodGet, "/api/health/ghost", f.token(RoleAdmin, ""), "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAgentOpsHealth(t *testing.T) {
	f := newFixture(t, nil)
	tok := f.token(RoleClient, "test-corp")

	rec := f.do(http.MethodGet, "/api/agent-ops/health", tok, "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	require.Equal(t, "default", body["source"])
	require.EqualValues(t, 0, body["scheduler"].(map[string]any)["runs"])

	ctx := context.Background()
	require.NoError(t, f.runs.AppendRun(ctx, storage.RunRecord{At: time.Now(), Bucket: "hourly", Task: "a", Script: "scripts/a.sh", OK: true}))
	require.NoError(t, f.runs.AppendRun(ctx, storage.RunRecord{At: time.Now(), Bucket: "hourly", Task: "b", Script: "scripts/b.sh", OK: false}))
	writeFile(t, filepath.Join(f.paths.Data, "agent-ops", "health.json"), `{"agents_total": 4, "agents_healthy": 3}`)

	body = decode(t, f.do(http.MethodGet, "/api/agent-ops/health", tok, ""))
	require.EqualValues(t, 4, body["agents_total"])
	sched := body["scheduler"].(map[string]any)
	require.EqualValues(t, 2, sched["runs"])
	require.EqualValues(t, 1, sched["failed"])

	writeFile(t, filepath.Join(f.paths.Data, "agent-ops", "health.json"), `{`)
	rec = f.do(http.MethodGet, "/api/agent-ops/health", tok, "")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestAgentOpsTelemetry(t *testing.T) {
	f := newFixture(t, nil)
	tok := f.token(RoleAdmin, "")

	body := decode(t, f.do(http.MethodGet, "/api/agent-ops/telemetry", tok, ""))
	require.Equal(t, true, body["sample"])

	writeFile(t, filepath.Join(f.paths.Data, "agent-ops", "telemetry.jsonl"), strings.Join([]string{
		`{"timestamp":"2026-06-01T10:00:00Z","type":"agent_call","agent":"seo"}`,
		`not json`,
		`[1,2]`,
		``,
		`{"timestamp":"2026-06-01T12:00:00Z","type":"agent_call","agent":"leads"}`,
	}, "\n"))
	require.NoError(t, f.runs.AppendRun(context.Background(), storage.RunRecord{
		At: time.Date(2026, 6, 1, 11, 0, 0, 0, time.UTC), Bucket: "hourly", Task: "sync", Script: "scripts/klaviyo/sync-flows.cjs", OK: true,
	}))

	body = decode(t, f.do(http.MethodGet, "/api/agent-ops/telemetry", tok, ""))
	require.Equal(t, false, body["sample"])
	require.EqualValues(t, 2, body["skipped"])
	events := body["events"].([]any)
	require.Len(t, events, 3)
	require.Equal(t, "leads", events[0].(map[string]any)["agent"])
	require.Equal(t, "task_run", events[1].(map[string]any)["type"])

	body = decode(t, f.do(http.MethodGet, "/api/agent-ops/telemetry?limit=1", tok, ""))
	require.Len(t, body["events"].([]any), 1)

	rec := f.do(http.MethodGet, "/api/agent-ops/telemetry?limit=zero", tok, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAgentOpsContext(t *testing.T) {
	f := newFixture(t, nil)
	tok := f.token(RoleAdmin, "")

	require.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/api/agent-ops/context", tok, "").Code)

	path := filepath.Join(f.paths.Data, "agent-ops", "context.json")
	writeFile(t, path, `{"focus":"q3 launches"}`)
	rec := f.do(http.MethodGet, "/api/agent-ops/context", tok, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"focus":"q3 launches"}`, rec.Body.String())

	writeFile(t, path, `{"focus":`)
	require.Equal(t, http.StatusInternalServerError, f.do(http.MethodGet, "/api/agent-ops/context", tok, "").Code)
}

func TestIntegrationsAndCredentials(t *testing.T) {
	t.Setenv("KLAVIYO_API_KEY", "")
	f := newFixture(t, nil)
	admin := f.token(RoleAdmin, "")
	writeFile(t, f.paths.EnvFile, "OPENAI_API_KEY=sk-from-env-file\n")

	body := decode(t, f.do(http.MethodGet, "/api/integrations", f.token(RoleClient, "test-corp"), ""))
	configured := map[string]bool{}
	for _, it := range body["integrations"].([]any) {
		m := it.(map[string]any)
		configured[m["id"].(string)] = m["configured"].(bool)
	}
	require.True(t, configured["openai"])
	require.False(t, configured["klaviyo"])

	rec := f.do(http.MethodPost, "/api/integrations/credentials", admin, `{"integration":"klaviyo","values":{"api_key":"pk_live_1234567890"}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	cred := decode(t, rec)["credentials"].(map[string]any)
	require.Equal(t, "pk_l••••7890", cred["api_key"])
	require.Equal(t, "ops@agency", cred["_updatedBy"])
	_, set := os.LookupEnv("KLAVIYO_API_KEY")
	require.False(t, set)

	body = decode(t, f.do(http.MethodGet, "/api/integrations/credentials", admin, ""))
	require.NotContains(t, f.do(http.MethodGet, "/api/integrations/credentials", admin, "").Body.String(), "pk_live_1234567890")
	require.Contains(t, body["credentials"], "klaviyo")

	rec = f.do(http.MethodPost, "/api/integrations/credentials", admin, `{"integration":"myspace","values":{"k":"v"}}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	rec = f.do(http.MethodGet, "/api/integrations/credentials", f.token(RoleClient, "test-corp"), "")
	require.Equal(t, http.StatusForbidden, rec.Code)

	body = decode(t, f.do(http.MethodGet, "/api/integrations", admin, ""))
	for _, it := range body["integrations"].([]any) {
		m := it.(map[string]any)
		if m["id"] == "klaviyo" {
			require.Equal(t, true, m["configured"])
		}
	}

	rec = f.do(http.MethodPost, "/api/integrations", admin, `{"tenant_id":"test-corp","integration":"klaviyo","enabled":true}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	state := decode(t, rec)["state"].(map[string]any)
	require.Equal(t, true, state["enabled"])
	require.NotEmpty(t, state["connected_at"])

	rec = f.do(http.MethodPost, "/api/integrations", admin, `{"tenant_id":"test-corp","integration":"klaviyo"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	rec = f.do(http.MethodPost, "/api/integrations", admin, `{"tenant_id":"ghost","integration":"klaviyo","enabled":false}`)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestVaultSecrets(t *testing.T) {
	t.Setenv("N8N_BASE_URL", "")
	f := newFixture(t, nil)
	admin := f.token(RoleAdmin, "")
	writeFile(t, f.paths.EnvFile, "N8N_API_KEY=abc\n")

	require.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/api/vault/secrets", admin, "").Code)
	require.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/api/vault/secrets?project=nope", admin, "").Code)

	rec := f.do(http.MethodGet, "/api/vault/secrets?project=n8n", admin, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotContains(t, rec.Body.String(), "abc\"")
	body := decode(t, rec)
	require.EqualValues(t, 1, body["missing"])

	writeFile(t, filepath.Join(f.paths.Data, "vault", "projects.json"), `{"landing":["N8N_API_KEY"]}`)
	body = decode(t, f.do(http.MethodGet, "/api/vault/secrets?project=landing", admin, ""))
	require.EqualValues(t, 0, body["missing"])
	require.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/api/vault/secrets?project=n8n", admin, "").Code)
}

func TestScriptsCatalog(t *testing.T) {
	f := newFixture(t, nil)
	tok := f.token(RoleClient, "test-corp")
	writeFile(t, filepath.Join(f.paths.Scripts, "seo", "audit-images.cjs"), "")
	writeFile(t, filepath.Join(f.paths.Scripts, "tools", "cleanup.py"), "")
	writeFile(t, filepath.Join(f.paths.Scripts, "README.md"), "")

	ctx := context.Background()
	require.NoError(t, f.runs.AppendRun(ctx, storage.RunRecord{At: time.Now().Add(-time.Hour), Script: "scripts/klaviyo/sync-flows.cjs", OK: true}))
	require.NoError(t, f.runs.AppendRun(ctx, storage.RunRecord{At: time.Now(), Script: "scripts/klaviyo/sync-flows.cjs", OK: false, Error: "exit status 1"}))
	require.NoError(t, f.runs.AppendRun(ctx, storage.RunRecord{At: time.Now(), Script: "scripts/seo/fix-meta.cjs", OK: true}))

	body := decode(t, f.do(http.MethodGet, "/api/scripts", tok, ""))
	total := int(body["count"].(float64))
	require.Equal(t, len(schedule.DefaultTable().Scripts())+2, total)

	body = decode(t, f.do(http.MethodGet, "/api/scripts?health=failing", tok, ""))
	scripts := body["scripts"].([]any)
	require.Len(t, scripts, 1)
	s := scripts[0].(map[string]any)
	require.Equal(t, "scripts/klaviyo/sync-flows.cjs", s["path"])
	require.Equal(t, "exit status 1", s["last_error"])

	body = decode(t, f.do(http.MethodGet, "/api/scripts?category=seo", tok, ""))
	require.EqualValues(t, 3, body["count"])

	body = decode(t, f.do(http.MethodGet, "/api/scripts?name=CLEANUP", tok, ""))
	scripts = body["scripts"].([]any)
	require.Len(t, scripts, 1)
	require.Equal(t, "tools", scripts[0].(map[string]any)["category"])
	require.Equal(t, "unknown", scripts[0].(map[string]any)["health"])
	require.Equal(t, false, scripts[0].(map[string]any)["scheduled"])

	require.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/api/scripts?health=green", tok, "").Code)
}

func TestReports(t *testing.T) {
	f := newFixture(t, nil)
	admin := f.token(RoleAdmin, "")

	body := decode(t, f.do(http.MethodGet, "/api/reports", admin, ""))
	require.EqualValues(t, 0, body["count"])

	writeFile(t, filepath.Join(f.paths.Data, "reports", "leads.json"), `[{"name":"Ada","score":12.5},{"email":"b@x.io","name":"Bob, Jr."},"junk"]`)
	writeFile(t, filepath.Join(f.paths.Data, "reports", "billing.json"), `{"rows":[{"client":"acme","total":100}]}`)

	body = decode(t, f.do(http.MethodGet, "/api/reports", admin, ""))
	require.EqualValues(t, 2, body["count"])
	require.Equal(t, "billing", body["reports"].([]any)[0].(map[string]any)["type"])

	rec := f.do(http.MethodGet, "/api/reports/export?type=leads&format=csv", admin, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Header().Get("Content-Type"), "text/csv")
	records, err := csv.NewReader(strings.NewReader(rec.Body.String())).ReadAll()
	require.NoError(t, err)
	require.Equal(t, [][]string{
		{"email", "name", "score"},
		{"", "Ada", "12.5"},
		{"b@x.io", "Bob, Jr.", ""},
	}, records)

	body = decode(t, f.do(http.MethodGet, "/api/reports/export?type=billing", admin, ""))
	require.EqualValues(t, 1, body["count"])

	require.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/api/reports/export?type=leads&format=xml", admin, "").Code)
	require.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/api/reports/export", admin, "").Code)
	require.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/api/reports/export?type=missing", admin, "").Code)
	require.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/api/reports/export?type=..%2Fsecrets", admin, "").Code)
}

func TestRateLimitAndHotApply(t *testing.T) {
	f := newFixture(t, func(d *Deps) {
		d.RateLimit = RateLimit{Enabled: true, Requests: 2, Window: time.Minute}
	})
	require.Equal(t, http.StatusOK, f.do(http.MethodGet, "/healthz", "", "").Code)
	require.Equal(t, http.StatusOK, f.do(http.MethodGet, "/healthz", "", "").Code)
	require.Equal(t, http.StatusTooManyRequests, f.do(http.MethodGet, "/healthz", "", "").Code)

	f.api.ApplyRateLimit(RateLimit{Enabled: false})
	require.Equal(t, http.StatusOK, f.do(http.MethodGet, "/healthz", "", "").Code)
}

func TestBodyLimit(t *testing.T) {
	f := newFixture(t, func(d *Deps) { d.MaxBodyBytes = 32 })
	big := `{"tenant_id":"acme","name":"` + strings.Repeat("x", 100) + `"}`
	rec := f.do(http.MethodPost, "/api/clients", f.token(RoleAdmin, ""), big)
	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestSessions(t *testing.T) {
	_, err := NewSessions("short", time.Hour)
	require.Error(t, err)

	s, err := NewSessions(testSecret, time.Minute)
	require.NoError(t, err)

	_, _, err = s.Issue("u", RoleClient, "")
	require.Error(t, err)
	_, _, err = s.Issue("u", "ROOT", "")
	require.Error(t, err)

	tok, exp, err := s.Issue("u", "admin", "ignored")
	require.NoError(t, err)
	require.WithinDuration(t, time.Now().Add(time.Minute), exp, 5*time.Second)
	c, err := s.Parse(tok)
	require.NoError(t, err)
	require.True(t, c.IsAdmin())
	require.Empty(t, c.TenantID)

	s.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	_, err = s.Parse(tok)
	require.ErrorIs(t, err, ErrInvalidSession)

	cookie := s.Cookie(tok, true)
	require.Equal(t, CookieName, cookie.Name)
	require.True(t, cookie.HttpOnly)
}

func TestPprofRequiresAdmin(t *testing.T) {
	f := newFixture(t, func(d *Deps) { d.Pprof = true })
	require.Equal(t, http.StatusUnauthorized, f.do(http.MethodGet, "/debug/pprof/", "", "").Code)
	require.Equal(t, http.StatusForbidden, f.do(http.MethodGet, "/debug/pprof/", f.token(RoleClient, "test-corp"), "").Code)
	require.Equal(t, http.StatusOK, f.do(http.MethodGet, "/debug/pprof/", f.token(RoleAdmin, ""), "").Code)
}

func TestServerRunShutsDown(t *testing.T) {
	f := newFixture(t, nil)
	srv := NewServer(ServerConfig{Addr: "127.0.0.1:0"}, f.handler, logx.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	addrCh := make(chan string, 1)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Run(ctx, func(addr string) { addrCh <- addr }) }()

	addr := <-addrCh
	resp, err := http.Get("http://" + addr + "/healthz")
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
