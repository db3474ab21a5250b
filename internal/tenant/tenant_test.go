package tenant

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"agencyops/pkg/fsutil"
	"agencyops/pkg/logx"
)

func writeConfig(t *testing.T, clients, id string, doc map[string]any) {
	t.Helper()
	dir := filepath.Join(clients, id)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	b, err := json.Marshal(doc)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFile), b, 0o644))
}

func testCorp() map[string]any {
	return map[string]any{
		"tenant_id":    "test-corp",
		"name":         "Test Corp",
		"vertical":     "shopify",
		"plan":         "quickwin",
		"status":       "onboarding",
		"created_at":   "2026-01-15T10:00:00Z",
		"features":     map[string]any{"seo_audit": true, "voice_widget": false},
		"integrations": map[string]any{"shopify": map[string]any{"enabled": true}},
		"contacts": map[string]any{
			"primary": map[string]any{"name": "Ada", "email": "ada@test-corp.com", "phone": "+1 555 0100"},
		},
	}
}

func TestTestCorpIsValidWithWarnings(t *testing.T) {
	t.Parallel()
	clients := t.TempDir()
	writeConfig(t, clients, "test-corp", testCorp())

	res := Validate(clients, "test-corp")
	require.True(t, res.Valid)
	require.Empty(t, res.Errors)
	require.Len(t, res.Warnings, 2)

	require.NoError(t, os.Mkdir(filepath.Join(clients, "test-corp", LogsDir), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(clients, "test-corp", StatusFile), []byte(`{}`), 0o644))
	res = Validate(clients, "test-corp")
	require.True(t, res.Valid)
	require.Empty(t, res.Warnings)
}

func TestValidateRejects(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name   string
		mutate func(map[string]any)
		want   string
	}{
		{"missing tenant_id", func(d map[string]any) { delete(d, "tenant_id") }, "missing required field: tenant_id"},
		{"invalid vertical", func(d map[string]any) { d["vertical"] = "invalid" }, `invalid vertical "invalid": must be one of shopify, b2b, agency`},
		{"invalid plan", func(d map[string]any) { d["plan"] = "gold" }, `invalid plan "gold"`},
		{"invalid status", func(d map[string]any) { d["status"] = 3 }, `invalid status "3"`},
		{"id mismatch", func(d map[string]any) { d["tenant_id"] = "other" }, "does not match directory name"},
		{"bad date", func(d map[string]any) { d["created_at"] = "yesterday" }, "invalid created_at"},
		{"bad email", func(d map[string]any) {
			d["contacts"] = map[string]any{"primary": map[string]any{"email": "not-an-email"}}
		}, "invalid contacts.primary.email"},
		{"contacts not an object", func(d map[string]any) { d["contacts"] = "ops@x.com" }, "contacts must be an object"},
		{"primary not an object", func(d map[string]any) {
			d["contacts"] = map[string]any{"primary": "ops@x.com"}
		}, "contacts.primary must be an object"},
		{"non-bool feature", func(d map[string]any) { d["features"] = map[string]any{"seo_audit": "yes"} }, `feature "seo_audit" must be a boolean`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			clients := t.TempDir()
			doc := testCorp()
			tc.mutate(doc)
			writeConfig(t, clients, "test-corp", doc)

			res := Validate(clients, "test-corp")
			require.False(t, res.Valid)
			require.Condition(t, func() bool {
				for _, e := range res.Errors {
					if strings.Contains(e, tc.want) {
						return true
					}
				}
				return false
			}, "errors %v do not mention %q", res.Errors, tc.want)
		})
	}
}

func TestValidateEarlyExits(t *testing.T) {
	t.Parallel()
	clients := t.TempDir()

	res := Validate(clients, "ghost")
	require.False(t, res.Valid)
	require.Contains(t, res.Errors[0], "tenant directory not found")

	require.NoError(t, os.Mkdir(filepath.Join(clients, "empty"), 0o755))
	res = Validate(clients, "empty")
	require.Equal(t, []string{"config.json not found"}, res.Errors)

	require.NoError(t, os.Mkdir(filepath.Join(clients, "broken"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(clients, "broken", ConfigFile), []byte(`[1,2]`), 0o644))
	res = Validate(clients, "broken")
	require.Len(t, res.Errors, 1)
	require.Contains(t, res.Errors[0], "JSON object")
}

func TestMissingPrimaryContactIsWarning(t *testing.T) {
	t.Parallel()
	doc := testCorp()
	doc["contacts"] = map[string]any{}
	res := ValidateDocument("test-corp", Document(doc))
	require.True(t, res.Valid)
	require.Contains(t, res.Warnings, "no primary contact")
}

func TestValidateAllSkipsArchivedAndHidden(t *testing.T) {
	t.Parallel()
	clients := t.TempDir()
	writeConfig(t, clients, "test-corp", testCorp())
	writeConfig(t, clients, "_archived", testCorp())
	writeConfig(t, clients, ".cache", testCorp())

	results, err := ValidateAll(clients)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "test-corp", results[0].TenantID)
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := NewStore(t.TempDir(), logx.Nop())
	s.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return s
}

func TestTemplateRoundTrip(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	for _, plan := range Plans {
		id := "acme-" + plan
		_, err := s.Create(CreateRequest{TenantID: id, Name: "Acme", Vertical: "b2b", Plan: plan, ContactEmail: "ops@acme.io"})
		require.NoError(t, err)

		res := Validate(s.Dir(), id)
		require.Empty(t, res.Errors, "plan %s", plan)
		require.True(t, res.Valid)
	}
}

func TestCreateErrors(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	req := CreateRequest{TenantID: "acme", Name: "Acme", Vertical: "agency", ContactEmail: "a@acme.io"}
	_, err := s.Create(req)
	require.NoError(t, err)

	_, err = s.Create(req)
	require.ErrorIs(t, err, ErrExists)

	bad := req
	bad.TenantID = "Bad Id"
	_, err = s.Create(bad)
	require.ErrorIs(t, err, ErrInvalid)

	bad = req
	bad.TenantID = "other"
	bad.Vertical = "retail"
	_, err = s.Create(bad)
	require.ErrorIs(t, err, ErrInvalid)
}

func TestCreateRemovesDirWhenConfigWriteFails(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	req := CreateRequest{TenantID: "acme", Name: "Acme", Vertical: "agency", ContactEmail: "a@acme.io"}

	s.writeJSON = func(string, any, fs.FileMode) error { return errors.New("disk full") }
	_, err := s.Create(req)
	require.ErrorContains(t, err, "disk full")
	require.NoDirExists(t, filepath.Join(s.Dir(), "acme"))

	s.writeJSON = fsutil.WriteJSON
	doc, err := s.Create(req)
	require.NoError(t, err)
	require.Equal(t, "acme", doc["tenant_id"])
	require.FileExists(t, filepath.Join(s.Dir(), "acme", ConfigFile))
}

func TestPatchMergesNestedObjects(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	writeConfig(t, s.Dir(), "test-corp", testCorp())

	doc, err := s.Patch("test-corp", map[string]any{
		"status":   "active",
		"features": map[string]any{"voice_widget": true},
		"billing":  map[string]any{"currency": "EUR"},
	})
	require.NoError(t, err)
	require.Equal(t, "active", doc.Status())
	features := doc["features"].(map[string]any)
	require.Equal(t, true, features["seo_audit"])
	require.Equal(t, true, features["voice_widget"])

	stored, err := s.Get("test-corp")
	require.NoError(t, err)
	require.Equal(t, "EUR", stored["billing"].(map[string]any)["currency"])

	_, err = s.Patch("test-corp", map[string]any{"tenant_id": "renamed"})
	require.ErrorIs(t, err, ErrInvalid)

	_, err = s.Patch("test-corp", map[string]any{"plan": "platinum"})
	require.ErrorIs(t, err, ErrInvalid)

	_, err = s.Patch("nobody", map[string]any{"status": "active"})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSetIntegrationStampsConnectedAt(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	writeConfig(t, s.Dir(), "test-corp", testCorp())

	doc, err := s.SetIntegration("test-corp", "klaviyo", true)
	require.NoError(t, err)
	k := doc.Integrations()["klaviyo"].(map[string]any)
	require.Equal(t, true, k["enabled"])
	require.Equal(t, "2026-03-01T12:00:00Z", k["connected_at"])
}

func TestArchiveRenamesDirectory(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	writeConfig(t, s.Dir(), "test-corp", testCorp())

	dest, err := s.Archive("test-corp")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(s.Dir(), ArchiveDir, "test-corp-1772366400"), dest)
	require.FileExists(t, filepath.Join(dest, ConfigFile))

	_, err = s.Get("test-corp")
	require.True(t, errors.Is(err, ErrNotFound))
	_, err = s.Archive("test-corp")
	require.ErrorIs(t, err, ErrNotFound)

	list, err := s.List()
	require.NoError(t, err)
	require.Empty(t, list)
}

func TestListAndLogs(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	writeConfig(t, s.Dir(), "test-corp", testCorp())
	bad := testCorp()
	bad["tenant_id"] = "zeta"
	bad["plan"] = "nope"
	writeConfig(t, s.Dir(), "zeta", bad)
	require.NoError(t, os.MkdirAll(filepath.Join(s.Dir(), "test-corp", LogsDir), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(s.Dir(), "test-corp", LogsDir, "run.log"), []byte("x"), 0o644))

	list, err := s.List()
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.True(t, list[0].Valid)
	require.False(t, list[1].Valid)

	st, err := s.Logs("test-corp")
	require.NoError(t, err)
	require.Equal(t, 1, st.Files)
	require.NotNil(t, st.LastModified)

	status, err := s.AutomationStatus("test-corp")
	require.NoError(t, err)
	require.Nil(t, status)
}

func TestMergePatchNullRemoves(t *testing.T) {
	t.Parallel()
	in := map[string]any{"a": 1, "b": map[string]any{"c": 2, "d": 3}}
	out := MergePatch(in, map[string]any{"a": nil, "b": map[string]any{"d": nil, "e": 4}})
	require.Equal(t, map[string]any{"b": map[string]any{"c": 2, "e": 4}}, out)
	require.Equal(t, 1, in["a"])
}
