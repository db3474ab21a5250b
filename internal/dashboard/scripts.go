package dashboard

import (
	"errors"
	"io/fs"
	"net/http"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"agencyops/internal/storage"
	"agencyops/pkg/logx"
)

// Script health values.
const (
	HealthHealthy = "healthy"
	HealthFailing = "failing"
	HealthUnknown = "unknown"
)

var scriptExts = map[string]bool{".cjs": true, ".js": true, ".mjs": true, ".sh": true, ".py": true}

const scriptHistoryWindow = 2000

type scriptView struct {
	Name      string     `json:"name"`
	Path      string     `json:"path"`
	Category  string     `json:"category"`
	Bucket    string     `json:"bucket,omitempty"`
	Type      string     `json:"type,omitempty"`
	Scheduled bool       `json:"scheduled"`
	Health    string     `json:"health"`
	LastRunAt *time.Time `json:"last_run_at,omitempty"`
	LastError string     `json:"last_error,omitempty"`
}

func (a *API) listScripts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	category := strings.TrimSpace(q.Get("category"))
	health := strings.TrimSpace(q.Get("health"))
	name := strings.ToLower(strings.TrimSpace(q.Get("name")))
	switch health {
	case "", HealthHealthy, HealthFailing, HealthUnknown:
	default:
		writeError(w, http.StatusBadRequest, "health must be one of healthy, failing, unknown")
		return
	}

	all := a.scriptCatalog(r)
	out := make([]scriptView, 0, len(all))
	for _, s := range all {
		if category != "" && s.Category != category {
			continue
		}
		if health != "" && s.Health != health {
			continue
		}
		if name != "" && !strings.Contains(strings.ToLower(s.Name), name) && !strings.Contains(strings.ToLower(s.Path), name) {
			continue
		}
		out = append(out, s)
	}
	writeJSON(w, http.StatusOK, map[string]any{"scripts": out, "count": len(out)})
}

// scriptCatalog merges the scheduled tasks with the files under the scripts dir.
func (a *API) scriptCatalog(r *http.Request) []scriptView {
	byPath := map[string]*scriptView{}

	for _, e := range a.Table.Entries() {
		p := filepath.ToSlash(filepath.Clean(e.Script))
		if _, dup := byPath[p]; dup {
			continue
		}
		byPath[p] = &scriptView{
			Name:      e.Name,
			Path:      p,
			Category:  a.category(p, e.Bucket),
			Bucket:    e.Bucket,
			Type:      e.Type,
			Scheduled: true,
		}
	}

	if a.Paths.Scripts != "" {
		err := filepath.WalkDir(a.Paths.Scripts, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if p != a.Paths.Scripts && (strings.HasPrefix(d.Name(), ".") || d.Name() == "node_modules") {
					return filepath.SkipDir
				}
				return nil
			}
			if !scriptExts[strings.ToLower(filepath.Ext(p))] {
				return nil
			}
			rel, err := filepath.Rel(a.Paths.Root, p)
			if err != nil {
				return nil
			}
			rel = filepath.ToSlash(rel)
			if _, ok := byPath[rel]; ok {
				return nil
			}
			base := path.Base(rel)
			byPath[rel] = &scriptView{
				Name:     strings.TrimSuffix(base, path.Ext(base)),
				Path:     rel,
				Category: a.category(rel, ""),
			}
			return nil
		})
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			a.Log.Warn("scripts dir walk failed", logx.Err(err))
		}
	}

	a.applyHealth(r, byPath)

	out := make([]scriptView, 0, len(byPath))
	for _, s := range byPath {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// category is the first directory below the scripts root, or the bucket
// for scripts that sit directly in it.
func (a *API) category(rel, bucket string) string {
	scriptsRel := "scripts"
	if a.Paths.Scripts != "" && a.Paths.Root != "" {
		if sr, err := filepath.Rel(a.Paths.Root, a.Paths.Scripts); err == nil {
			scriptsRel = filepath.ToSlash(sr)
		}
	}
	rest := strings.TrimPrefix(rel, scriptsRel+"/")
	if i := strings.IndexByte(rest, '/'); i > 0 {
		return rest[:i]
	}
	if bucket != "" {
		return bucket
	}
	return "misc"
}

// applyHealth sets health from the latest run of each script.
func (a *API) applyHealth(r *http.Request, byPath map[string]*scriptView) {
	for _, s := range byPath {
		s.Health = HealthUnknown
	}
	if a.Runs == nil {
		return
	}
	runs, err := a.Runs.RecentRuns(r.Context(), scriptHistoryWindow)
	if err != nil {
		a.Log.Warn("run history unavailable", logx.Err(err))
		return
	}
	latest := map[string]storage.RunRecord{}
	for _, rr := range runs { // newest first
		p := filepath.ToSlash(filepath.Clean(rr.Script))
		if _, seen := latest[p]; !seen {
			latest[p] = rr
		}
	}
	for p, s := range byPath {
		rr, ok := latest[p]
		if !ok {
			continue
		}
		at := rr.At
		s.LastRunAt = &at
		if rr.OK {
			s.Health = HealthHealthy
		} else {
			s.Health = HealthFailing
			s.LastError = rr.Error
		}
	}
}
