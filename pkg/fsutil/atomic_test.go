package fsutil

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWriteAndReadJSON(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "nested", "doc.json")
	if err := WriteJSON(path, map[string]any{"a": 1}, 0o600); err != nil {
		t.Fatal(err)
	}
	var got map[string]any
	if err := ReadJSON(path, &got); err != nil {
		t.Fatal(err)
	}
	if got["a"] != float64(1) {
		t.Fatalf("got %v", got)
	}
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("temp files left behind: %d entries", len(entries))
	}
}

func TestReadJSONErrors(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	var v any
	if err := ReadJSON(filepath.Join(dir, "missing.json"), &v); !IsNotExist(err) {
		t.Fatalf("expected not-exist, got %v", err)
	}
	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte("{"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := ReadJSON(bad, &v); err == nil || IsNotExist(err) {
		t.Fatalf("expected parse error, got %v", err)
	}
}
