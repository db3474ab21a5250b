package credentials

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Sources a resolved value can come from.
const (
	SourceStore   = "store"
	SourceEnvFile = "env_file"
	SourceEnv     = "env"
)

// Resolver answers credential lookups for one request or command. It reads
// the credential store, then a snapshot of the .env file, then the process
// environment, and never writes to any of them.
type Resolver struct {
	store   Record
	envFile map[string]string
	getenv  func(string) string
}

// NewResolver snapshots store (may be nil) and envFile (may be missing).
func NewResolver(store *Store, envFile string) (*Resolver, error) {
	r := &Resolver{store: Record{}, envFile: map[string]string{}, getenv: os.Getenv}
	if store != nil {
		rec, err := store.Snapshot()
		if err != nil {
			return nil, err
		}
		r.store = rec
	}
	if envFile != "" {
		m, err := godotenv.Read(envFile)
		if err != nil && !os.IsNotExist(err) {
			return nil, err
		}
		if m != nil {
			r.envFile = m
		}
	}
	return r, nil
}

// NewStaticResolver builds a resolver over in-memory sources.
func NewStaticResolver(store Record, envFile map[string]string, getenv func(string) string) *Resolver {
	if store == nil {
		store = Record{}
	}
	if envFile == nil {
		envFile = map[string]string{}
	}
	if getenv == nil {
		getenv = func(string) string { return "" }
	}
	return &Resolver{store: store, envFile: envFile, getenv: getenv}
}

// Get resolves integration.key. ok is false when no source has a value.
func (r *Resolver) Get(integration, key string) (value, source string, ok bool) {
	if v := strings.TrimSpace(r.store[integration][key]); v != "" {
		return v, SourceStore, true
	}
	in, found := Lookup(integration)
	if !found {
		return "", "", false
	}
	for _, k := range in.Keys {
		if k.Name == key {
			return r.env(k.Env)
		}
	}
	return "", "", false
}

// Value is Get without the source.
func (r *Resolver) Value(integration, key string) string {
	v, _, _ := r.Get(integration, key)
	return v
}

// LookupEnv resolves a variable by its environment name, checking the store
// first when the name belongs to a known integration.
func (r *Resolver) LookupEnv(name string) (value, source string, ok bool) {
	if id, key, known := keyForEnv(name); known {
		if v := strings.TrimSpace(r.store[id][key]); v != "" {
			return v, SourceStore, true
		}
	}
	return r.env(name)
}

func (r *Resolver) env(name string) (string, string, bool) {
	if v := strings.TrimSpace(r.envFile[name]); v != "" {
		return v, SourceEnvFile, true
	}
	if v := strings.TrimSpace(r.getenv(name)); v != "" {
		return v, SourceEnv, true
	}
	return "", "", false
}

// Configured reports whether every key of integration resolves.
func (r *Resolver) Configured(integration string) bool {
	in, ok := Lookup(integration)
	if !ok {
		return false
	}
	for _, k := range in.Keys {
		if _, _, found := r.Get(integration, k.Name); !found {
			return false
		}
	}
	return true
}

// Environ returns NAME=value pairs for every catalog key resolved from the
// store or the .env snapshot, for use as a subprocess environment overlay.
// Values coming from the process environment are inherited and not repeated.
func (r *Resolver) Environ() []string {
	var out []string
	for _, in := range catalog {
		for _, k := range in.Keys {
			v, src, ok := r.Get(in.ID, k.Name)
			if !ok || src == SourceEnv {
				continue
			}
			out = append(out, k.Env+"="+v)
		}
	}
	return out
}
