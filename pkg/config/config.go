// Package config is the user configuration store: values keyed by group and
// name, persisted as one JSON file per group under a user-owned directory.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"sync"

	"github.com/ormasoftchile/kombi/pkg/jsonvalue"
)

// DirEnv overrides the store directory of Default.
const DirEnv = "KOMBI_CONFIG_DIR"

// DefaultGroup is used when a group name is empty.
const DefaultGroup = "general"

// ErrNotFound is returned for missing config entries.
var ErrNotFound = errors.New("config entry not found")

var groupRe = regexp.MustCompile(`^[\w.-]+$`)

// Store reads and writes config groups under a directory.
type Store struct {
	dir string
	mu  sync.Mutex
}

// NewStore returns a store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

var (
	defaultOnce  sync.Once
	defaultStore *Store
)

// Default returns the process-wide store: $KOMBI_CONFIG_DIR, or
// ~/.kombi/config.
func Default() *Store {
	defaultOnce.Do(func() {
		dir := os.Getenv(DirEnv)
		if dir == "" {
			if home, err := os.UserHomeDir(); err == nil {
				dir = filepath.Join(home, ".kombi", "config")
			} else {
				dir = filepath.Join(os.TempDir(), "kombi-config")
			}
		}
		defaultStore = NewStore(dir)
	})
	return defaultStore
}

// Dir returns the store directory.
func (s *Store) Dir() string { return s.dir }

func (s *Store) path(group string) (string, error) {
	if group == "" {
		group = DefaultGroup
	}
	if !groupRe.MatchString(group) {
		return "", fmt.Errorf("invalid config group %q", group)
	}
	return filepath.Join(s.dir, group+".json"), nil
}

func (s *Store) load(group string) (map[string]any, error) {
	p, err := s.path(group)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]any{}, nil
	}
	if err != nil {
		return nil, err
	}
	values, err := jsonvalue.DecodeMap(data)
	if err != nil {
		return nil, fmt.Errorf("config group %s: %w", group, err)
	}
	return values, nil
}

func (s *Store) save(group string, values map[string]any) error {
	p, err := s.path(group)
	if err != nil {
		return err
	}
	if len(values) == 0 {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		return nil
	}
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return err
	}
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, p)
}

// Get returns the value of name in group.
func (s *Store) Get(group, name string) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	values, err := s.load(group)
	if err != nil {
		return nil, err
	}
	v, ok := values[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, group, name)
	}
	return v, nil
}

// GetOr returns the value of name in group, or def when absent or
// unreadable.
func (s *Store) GetOr(group, name string, def any) any {
	v, err := s.Get(group, name)
	if err != nil {
		return def
	}
	return v
}

// Set stores value under name in group. The value must be JSON
// serializable.
func (s *Store) Set(group, name string, value any) error {
	copied, err := jsonvalue.Copy(value)
	if err != nil {
		return fmt.Errorf("config %s/%s: %w", group, name, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	values, err := s.load(group)
	if err != nil {
		return err
	}
	values[name] = copied
	return s.save(group, values)
}

// Remove deletes name from group. Removing a missing entry is an error.
func (s *Store) Remove(group, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	values, err := s.load(group)
	if err != nil {
		return err
	}
	if _, ok := values[name]; !ok {
		return fmt.Errorf("%w: %s/%s", ErrNotFound, group, name)
	}
	delete(values, name)
	return s.save(group, values)
}

// Has reports whether name is set in group.
func (s *Store) Has(group, name string) bool {
	_, err := s.Get(group, name)
	return err == nil
}

// Names returns the sorted entry names of group.
func (s *Store) Names(group string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	values, err := s.load(group)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Groups returns the sorted group names present in the store.
func (s *Store) Groups() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var groups []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		groups = append(groups, e.Name()[:len(e.Name())-len(".json")])
	}
	sort.Strings(groups)
	return groups, nil
}
