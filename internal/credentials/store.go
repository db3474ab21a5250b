package credentials

import (
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"agencyops/pkg/fsutil"
)

// Metadata keys stamped on every integration entry.
const (
	UpdatedAtKey = "_updatedAt"
	UpdatedByKey = "_updatedBy"
)

// Record is the on-disk credential file: integration -> key -> value.
type Record map[string]map[string]string

// Store is the JSON credential file. Reads are masked; writes merge.
type Store struct {
	path string
	now  func() time.Time

	mu sync.Mutex
}

func NewStore(path string) *Store {
	return &Store{path: path, now: time.Now}
}

func (s *Store) Path() string { return s.path }

// load reads the file; a missing file is an empty record.
func (s *Store) load() (Record, error) {
	rec := Record{}
	if err := fsutil.ReadJSON(s.path, &rec); err != nil {
		if fsutil.IsNotExist(err) {
			return Record{}, nil
		}
		return nil, err
	}
	return rec, nil
}

// Snapshot returns the unmasked record for server-side resolution.
func (s *Store) Snapshot() (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// Masked returns the record with every secret value masked.
func (s *Store) Masked() (Record, error) {
	rec, err := s.Snapshot()
	if err != nil {
		return nil, err
	}
	out := make(Record, len(rec))
	for id, kv := range rec {
		m := make(map[string]string, len(kv))
		for k, v := range kv {
			if isMeta(k) {
				m[k] = v
				continue
			}
			m[k] = Mask(v)
		}
		out[id] = m
	}
	return out, nil
}

// Merge writes values into integration, keeping keys not named in values.
// An empty value removes the key.
func (s *Store) Merge(integration string, values map[string]string, user string) error {
	if _, ok := Lookup(integration); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownIntegration, integration)
	}
	if len(values) == 0 {
		return fmt.Errorf("no values for %s", integration)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.load()
	if err != nil {
		return err
	}
	entry := rec[integration]
	if entry == nil {
		entry = map[string]string{}
	}
	for k, v := range values {
		k = strings.TrimSpace(k)
		if k == "" || isMeta(k) {
			continue
		}
		if v == "" {
			delete(entry, k)
			continue
		}
		entry[k] = v
	}
	entry[UpdatedAtKey] = s.now().UTC().Format(time.RFC3339)
	entry[UpdatedByKey] = user
	rec[integration] = entry
	return fsutil.WriteJSON(s.path, rec, 0o600)
}

func isMeta(k string) bool { return strings.HasPrefix(k, "_") }

// maskRevealMin is the shortest value that shows its ends; eight revealed
// runes then leave at least half of it hidden.
const maskRevealMin = 16

// Mask hides a secret. Values of maskRevealMin runes or more keep their
// first and last four characters; shorter ones are hidden entirely.
func Mask(v string) string {
	const dots = "••••"
	if utf8.RuneCountInString(v) < maskRevealMin {
		return dots + dots
	}
	r := []rune(v)
	return string(r[:4]) + dots + string(r[len(r)-4:])
}
