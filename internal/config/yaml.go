package config

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	yaml "go.yaml.in/yaml/v3"
)

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// toJSON returns config bytes as JSON. YAML documents are re-encoded so a
// single strict decoder handles both formats; anything else passes through.
func toJSON(path string, raw []byte) ([]byte, error) {
	if !isYAML(path) {
		return raw, nil
	}
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	out, err := json.Marshal(stringKeys(doc))
	if err != nil {
		return nil, fmt.Errorf("re-encode yaml: %w", err)
	}
	return out, nil
}

// stringKeys rewrites map[any]any nodes, which encoding/json refuses.
func stringKeys(node any) any {
	switch n := node.(type) {
	case []any:
		for i, v := range n {
			n[i] = stringKeys(v)
		}
		return n
	case map[string]any:
		for k, v := range n {
			n[k] = stringKeys(v)
		}
		return n
	case map[any]any:
		out := make(map[string]any, len(n))
		for k, v := range n {
			out[fmt.Sprint(k)] = stringKeys(v)
		}
		return out
	}
	return node
}
