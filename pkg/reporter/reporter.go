// Package reporter renders the output elements of a task once it finishes.
//
// A task names its reporter through the "output.reporter" metadata. The
// reporter receives every output element with the producing task's name and
// is asked to Display once the task completes.
package reporter

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"

	"github.com/ormasoftchile/kombi/pkg/element"
)

// Reporter collects output elements and renders them.
type Reporter interface {
	Add(taskName string, e *element.Element)
	Display() error
}

// Factory builds a reporter writing to w.
type Factory func(w io.Writer) Reporter

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register adds a reporter under name.
func Register(name string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	factories[name] = f
}

// Create builds the reporter registered under name.
func Create(name string, w io.Writer) (Reporter, error) {
	mu.RLock()
	f, ok := factories[name]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("reporter %q is not registered", name)
	}
	return f(w), nil
}

// Names returns the registered reporter names, sorted.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type writerKey struct{}

// WithWriter returns a context whose reporters write to w.
func WithWriter(ctx context.Context, w io.Writer) context.Context {
	return context.WithValue(ctx, writerKey{}, w)
}

// Writer returns the reporter destination carried by ctx, or os.Stdout.
func Writer(ctx context.Context) io.Writer {
	if w, ok := ctx.Value(writerKey{}).(io.Writer); ok && w != nil {
		return w
	}
	return os.Stdout
}

type entry struct {
	task string
	e    *element.Element
}
