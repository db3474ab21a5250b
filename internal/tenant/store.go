package tenant

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"agencyops/pkg/fsutil"
	"agencyops/pkg/logx"
)

// Store reads and writes tenant directories under a clients root.
// Writes are atomic; concurrent writers are last-write-wins.
type Store struct {
	dir string
	log logx.Logger
	now func() time.Time
	// writeJSON persists config.json; swapped in tests.
	writeJSON func(path string, v any, perm fs.FileMode) error

	mu sync.Mutex
}

func NewStore(dir string, log logx.Logger) *Store {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Store{dir: dir, log: log, now: time.Now, writeJSON: fsutil.WriteJSON}
}

// Dir returns the clients root.
func (s *Store) Dir() string { return s.dir }

func (s *Store) path(id string) (string, error) {
	if !ValidID(id) {
		return "", fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	dir, _ := tenantDir(s.dir, id)
	return dir, nil
}

// List summarizes every active tenant. Unreadable configs are listed as invalid.
func (s *Store) List() ([]Summary, error) {
	ids, err := listIDs(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []Summary{}, nil
		}
		return nil, err
	}
	out := make([]Summary, 0, len(ids))
	for _, id := range ids {
		doc, err := s.Get(id)
		if err != nil {
			s.log.Warn("tenant config unreadable", logx.String("tenant", id), logx.Err(err))
			out = append(out, Summary{TenantID: id})
			continue
		}
		out = append(out, Summary{
			TenantID: id,
			Name:     doc.Name(),
			Vertical: doc.Vertical(),
			Plan:     doc.Plan(),
			Status:   doc.Status(),
			Valid:    ValidateDocument(id, doc).Valid,
		})
	}
	return out, nil
}

// Get loads clients/<id>/config.json.
func (s *Store) Get(id string) (Document, error) {
	dir, err := s.path(id)
	if err != nil {
		return nil, err
	}
	var doc Document
	if err := fsutil.ReadJSON(filepath.Join(dir, ConfigFile), &doc); err != nil {
		if fsutil.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, err
	}
	if doc == nil {
		return nil, fmt.Errorf("%s: config is not a JSON object", id)
	}
	return doc, nil
}

// Create writes a new tenant from the template along with its logs directory.
func (s *Store) Create(req CreateRequest) (Document, error) {
	if err := req.Check(); err != nil {
		return nil, err
	}
	dir, err := s.path(req.TenantID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(dir); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrExists, req.TenantID)
	}
	doc := NewDocument(req, s.now())
	if res := ValidateDocument(req.TenantID, doc); !res.Valid {
		return nil, fmt.Errorf("%w: %s", ErrInvalid, strings.Join(res.Errors, "; "))
	}
	if err := os.MkdirAll(filepath.Join(dir, LogsDir), 0o755); err != nil {
		return nil, fmt.Errorf("create tenant dir: %w", err)
	}
	if err := s.writeJSON(filepath.Join(dir, ConfigFile), doc, 0o644); err != nil {
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			s.log.Warn("tenant dir cleanup failed", logx.String("tenant", req.TenantID), logx.Err(rmErr))
		}
		return nil, fmt.Errorf("write tenant config: %w", err)
	}
	s.log.Info("tenant created", logx.String("tenant", req.TenantID), logx.String("plan", req.Plan))
	return doc, nil
}

// Patch merges patch into the stored config. tenant_id is immutable and
// the merged document must validate.
func (s *Store) Patch(id string, patch map[string]any) (Document, error) {
	if v, ok := patch["tenant_id"]; ok {
		if sv, _ := v.(string); sv != id {
			return nil, fmt.Errorf("%w: tenant_id is immutable", ErrInvalid)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	merged := Document(MergePatch(doc, patch))
	if res := ValidateDocument(id, merged); !res.Valid {
		return nil, fmt.Errorf("%w: %s", ErrInvalid, strings.Join(res.Errors, "; "))
	}
	dir, _ := s.path(id)
	if err := s.writeJSON(filepath.Join(dir, ConfigFile), merged, 0o644); err != nil {
		return nil, err
	}
	s.log.Info("tenant updated", logx.String("tenant", id))
	return merged, nil
}

// SetIntegration toggles integrations.<name>.enabled. Enabling stamps connected_at.
func (s *Store) SetIntegration(id, name string, enabled bool) (Document, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: integration is required", ErrInvalid)
	}
	entry := map[string]any{"enabled": enabled}
	if enabled {
		entry["connected_at"] = s.now().UTC().Format(time.RFC3339)
	}
	return s.Patch(id, map[string]any{"integrations": map[string]any{name: entry}})
}

// Archive soft-deletes a tenant by moving it to clients/_archived/<id>-<unix>.
func (s *Store) Archive(id string) (string, error) {
	dir, err := s.path(id)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if fi, err := os.Stat(dir); err != nil || !fi.IsDir() {
		return "", fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	archive := filepath.Join(s.dir, ArchiveDir)
	if err := os.MkdirAll(archive, 0o755); err != nil {
		return "", err
	}
	dest := filepath.Join(archive, fmt.Sprintf("%s-%d", id, s.now().Unix()))
	if err := os.Rename(dir, dest); err != nil {
		return "", fmt.Errorf("archive %s: %w", id, err)
	}
	s.log.Info("tenant archived", logx.String("tenant", id), logx.String("dest", dest))
	return dest, nil
}

// AutomationStatus returns automation-status.json, or (nil, nil) when absent.
func (s *Store) AutomationStatus(id string) (map[string]any, error) {
	dir, err := s.path(id)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := fsutil.ReadJSON(filepath.Join(dir, StatusFile), &out); err != nil {
		if fsutil.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return out, nil
}

// LogStats describes clients/<id>/logs.
type LogStats struct {
	Files        int        `json:"files"`
	LastModified *time.Time `json:"last_modified,omitempty"`
}

// Logs counts regular files under the tenant logs directory.
func (s *Store) Logs(id string) (LogStats, error) {
	dir, err := s.path(id)
	if err != nil {
		return LogStats{}, err
	}
	var st LogStats
	entries, err := os.ReadDir(filepath.Join(dir, LogsDir))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return st, nil
		}
		return st, err
	}
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			continue
		}
		st.Files++
		if mt := fi.ModTime(); st.LastModified == nil || mt.After(*st.LastModified) {
			st.LastModified = &mt
		}
	}
	return st, nil
}

// MergePatch applies patch to doc following JSON merge patch rules: nested
// objects merge recursively, null removes a key, anything else replaces.
// doc is not modified.
func MergePatch(doc, patch map[string]any) map[string]any {
	out := make(map[string]any, len(doc)+len(patch))
	for k, v := range doc {
		out[k] = v
	}
	for k, pv := range patch {
		if pv == nil {
			delete(out, k)
			continue
		}
		pm, pIsObj := pv.(map[string]any)
		dm, dIsObj := out[k].(map[string]any)
		switch {
		case pIsObj && dIsObj:
			out[k] = MergePatch(dm, pm)
		case pIsObj:
			out[k] = MergePatch(map[string]any{}, pm)
		default:
			out[k] = pv
		}
	}
	return out
}
