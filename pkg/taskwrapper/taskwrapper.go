// Package taskwrapper decides how a rule's task is executed: in the current
// process or in a child kombi process.
package taskwrapper

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/ormasoftchile/kombi/pkg/element"
	"github.com/ormasoftchile/kombi/pkg/task"
)

// DefaultName is the wrapper used when a task names none.
const DefaultName = "default"

// MetadataName is the task metadata scope naming the wrapper.
const MetadataName = "wrapper.name"

// Wrapper runs a task and returns its outputs.
type Wrapper interface {
	Run(ctx context.Context, t *task.Task) ([]*element.Element, error)
}

// Func adapts a function to Wrapper.
type Func func(ctx context.Context, t *task.Task) ([]*element.Element, error)

// Run implements Wrapper.
func (f Func) Run(ctx context.Context, t *task.Task) ([]*element.Element, error) {
	return f(ctx, t)
}

var (
	mu       sync.RWMutex
	wrappers = map[string]Wrapper{}
)

func init() {
	Register(DefaultName, Func(func(ctx context.Context, t *task.Task) ([]*element.Element, error) {
		return t.Output(ctx)
	}))
	Register("subprocess", &Subprocess{})
}

// Register adds a wrapper under name.
func Register(name string, w Wrapper) {
	mu.Lock()
	defer mu.Unlock()
	wrappers[name] = w
}

// Create returns the wrapper registered under name.
func Create(name string) (Wrapper, error) {
	if name == "" {
		name = DefaultName
	}
	mu.RLock()
	defer mu.RUnlock()
	w, ok := wrappers[name]
	if !ok {
		return nil, fmt.Errorf("task wrapper %q is not registered", name)
	}
	return w, nil
}

// Names returns the registered wrapper names, sorted.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(wrappers))
	for name := range wrappers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ExecuteTaskFile restores the task serialized at inputPath, runs it in this
// process and writes its outputs to outputPath as a JSON array of
// element-JSON strings.
func ExecuteTaskFile(ctx context.Context, inputPath, outputPath string) error {
	data, err := os.ReadFile(inputPath)
	if err != nil {
		return fmt.Errorf("reading task: %w", err)
	}
	t, err := task.CreateFromJSON(string(data))
	if err != nil {
		return err
	}
	outputs, err := t.Output(ctx)
	if err != nil {
		return err
	}
	result, err := element.MarshalElements(outputs)
	if err != nil {
		return err
	}
	return os.WriteFile(outputPath, result, 0o644)
}
