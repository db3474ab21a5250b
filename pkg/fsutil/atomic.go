// Package fsutil has small file helpers shared by the stores.
package fsutil

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// WriteJSON writes v as indented JSON to filename through a temp file and a
// rename, so readers never observe a partial document.
func WriteJSON(filename string, v any, perm fs.FileMode) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(filename), err)
	}
	b = append(b, '\n')
	return WriteFile(filename, b, perm)
}

// WriteFile replaces filename atomically with data.
func WriteFile(filename string, data []byte, perm fs.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return err
	}
	out, err := os.CreateTemp(filepath.Dir(filename), "."+filepath.Base(filename)+".*.tmp")
	if err != nil {
		return fmt.Errorf("open temp file: %w", err)
	}
	tmp := out.Name()
	bw := bufio.NewWriter(out)
	_, werr := bw.Write(data)
	if werr == nil {
		werr = bw.Flush()
	}
	_ = out.Sync()
	cerr := out.Close()
	if werr == nil {
		werr = cerr
	}
	if werr == nil {
		werr = os.Chmod(tmp, perm)
	}
	if werr != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("write temp file: %w", werr)
	}
	if err := os.Rename(tmp, filename); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace %s: %w", filepath.Base(filename), err)
	}
	return nil
}

// ReadJSON decodes filename into v. A missing file returns an error
// matching fs.ErrNotExist.
func ReadJSON(filename string, v any) error {
	b, err := os.ReadFile(filename)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("parse %s: %w", filepath.Base(filename), err)
	}
	return nil
}

// IsNotExist reports whether err means the file is missing.
func IsNotExist(err error) bool { return errors.Is(err, fs.ErrNotExist) }
