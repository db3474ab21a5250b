package dashboard

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"agencyops/pkg/logx"
)

var reportTypePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]*$`)

type reportInfo struct {
	Type     string    `json:"type"`
	File     string    `json:"file"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
}

func (a *API) listReports(w http.ResponseWriter, r *http.Request) {
	entries, err := os.ReadDir(a.Paths.reports())
	if err != nil && !os.IsNotExist(err) {
		a.Log.Error("reports dir unreadable", logx.Err(err))
		writeError(w, http.StatusInternalServerError, "reports unavailable")
		return
	}
	out := []reportInfo{}
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".json") {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, reportInfo{
			Type:     strings.TrimSuffix(e.Name(), filepath.Ext(e.Name())),
			File:     e.Name(),
			Size:     fi.Size(),
			Modified: fi.ModTime().UTC(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	writeJSON(w, http.StatusOK, map[string]any{"reports": out, "count": len(out)})
}

func (a *API) exportReport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	typ := strings.TrimSpace(q.Get("type"))
	format := strings.ToLower(strings.TrimSpace(q.Get("format")))
	if typ == "" {
		writeError(w, http.StatusBadRequest, "type is required")
		return
	}
	if format != "" && format != "json" && format != "csv" {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unsupported format %q (want csv or json)", format))
		return
	}
	if !reportTypePattern.MatchString(typ) {
		writeError(w, http.StatusNotFound, "unknown report type: "+typ)
		return
	}

	raw, err := os.ReadFile(filepath.Join(a.Paths.reports(), typ+".json"))
	if err != nil {
		if os.IsNotExist(err) {
			writeError(w, http.StatusNotFound, "unknown report type: "+typ)
			return
		}
		a.Log.Error("report unreadable", logx.String("type", typ), logx.Err(err))
		writeError(w, http.StatusInternalServerError, "report unavailable")
		return
	}
	rows, skipped, err := reportRows(raw)
	if err != nil {
		a.Log.Error("report malformed", logx.String("type", typ), logx.Err(err))
		writeError(w, http.StatusInternalServerError, "report is malformed")
		return
	}
	if skipped > 0 {
		a.Log.Warn("report rows skipped", logx.String("type", typ), logx.Int("skipped", skipped))
	}

	if format != "csv" {
		writeJSON(w, http.StatusOK, map[string]any{"type": typ, "rows": rows, "count": len(rows)})
		return
	}

	body, err := rowsCSV(rows)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "csv encoding failed")
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", typ+".csv"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// reportRows extracts the row objects of a report: a top-level array, or
// the "rows"/"data" array of an object, or the object itself. Non-object
// array elements are skipped and counted.
func reportRows(raw []byte) ([]map[string]any, int, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, 0, err
	}

	var items []any
	switch t := v.(type) {
	case []any:
		items = t
	case map[string]any:
		if arr, ok := t["rows"].([]any); ok {
			items = arr
		} else if arr, ok := t["data"].([]any); ok {
			items = arr
		} else {
			return []map[string]any{t}, 0, nil
		}
	default:
		return nil, 0, fmt.Errorf("report must be a JSON array or object")
	}

	rows := make([]map[string]any, 0, len(items))
	skipped := 0
	for _, it := range items {
		m, ok := it.(map[string]any)
		if !ok {
			skipped++
			continue
		}
		rows = append(rows, m)
	}
	return rows, skipped, nil
}

// rowsCSV renders rows with the sorted union of their keys as header.
func rowsCSV(rows []map[string]any) ([]byte, error) {
	keySet := map[string]struct{}{}
	for _, row := range rows {
		for k := range row {
			keySet[k] = struct{}{}
		}
	}
	header := make([]string, 0, len(keySet))
	for k := range keySet {
		header = append(header, k)
	}
	sort.Strings(header)

	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)
	if err := cw.Write(header); err != nil {
		return nil, err
	}
	record := make([]string, len(header))
	for _, row := range rows {
		for i, k := range header {
			record[i] = csvCell(row[k])
		}
		if err := cw.Write(record); err != nil {
			return nil, err
		}
	}
	cw.Flush()
	return buf.Bytes(), cw.Error()
}

func csvCell(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		if t {
			return "true"
		}
		return "false"
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}
