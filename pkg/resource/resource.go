// Package resource loads named bundles of registrations (element types,
// task types, procedures) on demand.
//
// A serialized task lists the resources that were loaded when it was
// written, so the process restoring it can require the same bundles first.
package resource

import (
	"fmt"
	"sort"
	"sync"
)

// Loader performs the registrations of a resource.
type Loader func() error

var (
	mu      sync.Mutex
	loaders = map[string]Loader{}
	loaded  []string
)

// Register makes a resource available under name. Registering a name twice
// replaces the loader if it has not run yet.
func Register(name string, loader Loader) {
	mu.Lock()
	defer mu.Unlock()
	loaders[name] = loader
}

// Require loads each named resource that has not been loaded yet, in order.
func Require(names ...string) error {
	mu.Lock()
	defer mu.Unlock()
	for _, name := range names {
		if isLoaded(name) {
			continue
		}
		loader, ok := loaders[name]
		if !ok {
			return fmt.Errorf("resource %q is not registered", name)
		}
		if loader != nil {
			if err := loader(); err != nil {
				return fmt.Errorf("loading resource %q: %w", name, err)
			}
		}
		loaded = append(loaded, name)
	}
	return nil
}

// Loaded returns the loaded resource names in load order.
func Loaded() []string {
	mu.Lock()
	defer mu.Unlock()
	return append([]string(nil), loaded...)
}

// IsLoaded reports whether name has been loaded.
func IsLoaded(name string) bool {
	mu.Lock()
	defer mu.Unlock()
	return isLoaded(name)
}

// Names returns every registered resource name, sorted.
func Names() []string {
	mu.Lock()
	defer mu.Unlock()
	names := make([]string, 0, len(loaders))
	for name := range loaders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func isLoaded(name string) bool {
	for _, n := range loaded {
		if n == name {
			return true
		}
	}
	return false
}
