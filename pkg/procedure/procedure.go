// Package procedure holds the process-wide registry of named operations that
// templates can call, e.g. "(upper {name})".
//
// Arguments always arrive as strings and the result is coerced to a string by
// the template engine. Procedures register themselves at init time; the
// registry is read-only while runs are in flight.
package procedure

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Func is a procedure body.
type Func func(args ...string) (any, error)

var (
	mu       sync.RWMutex
	registry = map[string]Func{}

	clockMu sync.RWMutex
	clock   = time.Now
)

// Register adds a procedure under name. Registering an existing name replaces
// the previous procedure.
func Register(name string, fn Func) {
	mu.Lock()
	defer mu.Unlock()
	registry[name] = fn
}

// Lookup returns the procedure registered under name.
func Lookup(name string) (Func, bool) {
	mu.RLock()
	defer mu.RUnlock()
	fn, ok := registry[name]
	return fn, ok
}

// Names returns the registered procedure names sorted alphabetically.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run invokes name with args and returns the stringified result.
func Run(name string, args ...string) (string, error) {
	fn, ok := Lookup(name)
	if !ok {
		return "", fmt.Errorf("procedure %q is not registered", name)
	}
	v, err := fn(args...)
	if err != nil {
		return "", fmt.Errorf("procedure %q: %w", name, err)
	}
	return ToString(v), nil
}

// SetClock replaces the wall clock used by the date procedures and returns a
// function restoring the previous one.
func SetClock(now func() time.Time) (restore func()) {
	clockMu.Lock()
	prev := clock
	clock = now
	clockMu.Unlock()
	return func() {
		clockMu.Lock()
		clock = prev
		clockMu.Unlock()
	}
}

// Now returns the current time of the procedure clock.
func Now() time.Time {
	clockMu.RLock()
	defer clockMu.RUnlock()
	return clock()
}

// ToBool interprets an option or metadata flag. Strings follow
// strconv.ParseBool; numbers are true when non-zero.
func ToBool(v any) bool {
	switch val := v.(type) {
	case bool:
		return val
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(val))
		return err == nil && b
	case int:
		return val != 0
	case int64:
		return val != 0
	case float64:
		return val != 0
	default:
		return false
	}
}

// ToString renders a procedure result or variable value for interpolation.
func ToString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case fmt.Stringer:
		return val.String()
	case []any, map[string]any, []string:
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(data)
	default:
		return fmt.Sprint(val)
	}
}

func requireArgs(name string, args []string, min int) error {
	if len(args) < min {
		return fmt.Errorf("%s expects at least %d argument(s), got %d", name, min, len(args))
	}
	return nil
}
