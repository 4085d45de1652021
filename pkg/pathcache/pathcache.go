// Package pathcache memoizes filesystem metadata queries keyed by path.
//
// Entries expire after a configurable TTL. The lifespan index is kept in
// insertion order, so a sweep stops at the first entry that is still fresh.
// A TTL of zero bypasses the cache and queries the filesystem every time.
package pathcache

import (
	"fmt"
	"hash/fnv"
	"os"
	"strconv"
	"sync"
	"time"
)

// DefaultTTL is used when KOMBI_PATH_CACHE_TTL is unset or invalid.
const DefaultTTL = 60 * time.Second

// TTLEnv names the environment variable holding the TTL in seconds.
const TTLEnv = "KOMBI_PATH_CACHE_TTL"

// Accessor computes an attribute of a path.
type Accessor func(path string) (any, error)

var (
	accessorsMu sync.RWMutex
	accessors   = map[string]Accessor{
		"exists": func(path string) (any, error) {
			_, err := os.Stat(path)
			return err == nil, nil
		},
		"isFile": func(path string) (any, error) {
			info, err := os.Stat(path)
			return err == nil && info.Mode().IsRegular(), nil
		},
		"isDir": func(path string) (any, error) {
			info, err := os.Stat(path)
			return err == nil && info.IsDir(), nil
		},
		"size": func(path string) (any, error) {
			info, err := os.Stat(path)
			if err != nil {
				return nil, err
			}
			return info.Size(), nil
		},
		"mtime": func(path string) (any, error) {
			info, err := os.Stat(path)
			if err != nil {
				return nil, err
			}
			return info.ModTime().Unix(), nil
		},
	}
)

// RegisterAttribute adds (or replaces) a named path attribute accessor.
func RegisterAttribute(name string, fn Accessor) {
	accessorsMu.Lock()
	defer accessorsMu.Unlock()
	accessors[name] = fn
}

func accessor(name string) (Accessor, bool) {
	accessorsMu.RLock()
	defer accessorsMu.RUnlock()
	fn, ok := accessors[name]
	return fn, ok
}

type lifespan struct {
	key     uint64
	stamped time.Time
}

// Cache is a TTL-bounded attribute cache keyed by hash(path).
type Cache struct {
	ttl time.Duration
	now func() time.Time

	mu        sync.Mutex
	attrs     map[uint64]map[string]any
	lifespans []lifespan
}

// New creates a cache with the given TTL. A zero TTL disables caching.
func New(ttl time.Duration) *Cache {
	return &Cache{
		ttl:   ttl,
		now:   time.Now,
		attrs: make(map[uint64]map[string]any),
	}
}

// Default is the process-wide cache, configured from KOMBI_PATH_CACHE_TTL.
var Default = New(ttlFromEnv())

func ttlFromEnv() time.Duration {
	raw := os.Getenv(TTLEnv)
	if raw == "" {
		return DefaultTTL
	}
	seconds, err := strconv.ParseFloat(raw, 64)
	if err != nil || seconds < 0 {
		return DefaultTTL
	}
	return time.Duration(seconds * float64(time.Second))
}

// TTL returns the configured time-to-live.
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

// SetClock replaces the time source. Used by tests.
func (c *Cache) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

func hashPath(path string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(path))
	return h.Sum64()
}

// sweep drops expired entries, oldest first. Caller holds c.mu.
func (c *Cache) sweep(now time.Time) {
	n := 0
	for _, l := range c.lifespans {
		if now.Sub(l.stamped) <= c.ttl {
			break
		}
		delete(c.attrs, l.key)
		n++
	}
	if n > 0 {
		c.lifespans = c.lifespans[n:]
	}
}

// record returns the attribute record of key, creating it when absent.
// Caller holds c.mu.
func (c *Cache) record(key uint64, now time.Time) map[string]any {
	rec, ok := c.attrs[key]
	if !ok {
		rec = make(map[string]any)
		c.attrs[key] = rec
		c.lifespans = append(c.lifespans, lifespan{key: key, stamped: now})
	}
	return rec
}

// Query returns the attribute attr of path, consulting the filesystem only
// on a cache miss.
func (c *Cache) Query(path, attr string) (any, error) {
	fn, ok := accessor(attr)
	if !ok {
		return nil, fmt.Errorf("unknown path attribute %q", attr)
	}
	if c.ttl <= 0 {
		return fn(path)
	}

	key := hashPath(path)
	c.mu.Lock()
	now := c.now()
	c.sweep(now)
	rec := c.record(key, now)
	if v, ok := rec[attr]; ok {
		c.mu.Unlock()
		return v, nil
	}
	c.mu.Unlock()

	// The accessor runs unlocked; a concurrent writer may store the same value.
	v, err := fn(path)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	if rec, ok := c.attrs[key]; ok {
		rec[attr] = v
	}
	c.mu.Unlock()
	return v, nil
}

// Set primes the cache with a known attribute value, e.g. from a directory
// listing that already carries file type information.
func (c *Cache) Set(path, attr string, value any) {
	if c.ttl <= 0 {
		return
	}
	key := hashPath(path)
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	c.sweep(now)
	c.record(key, now)[attr] = value
}

// Clear drops every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attrs = make(map[uint64]map[string]any)
	c.lifespans = nil
}

// Len returns the number of cached paths.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.attrs)
}

func (c *Cache) boolQuery(path, attr string) bool {
	v, err := c.Query(path, attr)
	if err != nil {
		return false
	}
	b, _ := v.(bool)
	return b
}

// Exists reports whether path exists.
func (c *Cache) Exists(path string) bool { return c.boolQuery(path, "exists") }

// IsDir reports whether path is a directory.
func (c *Cache) IsDir(path string) bool { return c.boolQuery(path, "isDir") }

// IsFile reports whether path is a regular file.
func (c *Cache) IsFile(path string) bool { return c.boolQuery(path, "isFile") }

// Query runs Default.Query.
func Query(path, attr string) (any, error) { return Default.Query(path, attr) }

// Set runs Default.Set.
func Set(path, attr string, value any) { Default.Set(path, attr, value) }

// Exists runs Default.Exists.
func Exists(path string) bool { return Default.Exists(path) }

// IsDir runs Default.IsDir.
func IsDir(path string) bool { return Default.IsDir(path) }

// IsFile runs Default.IsFile.
func IsFile(path string) bool { return Default.IsFile(path) }
