// Package dispatcher executes TaskHolder trees: in the current process
// (runtime), in a child kombi process (local), or as dependent jobs on a
// render farm (renderFarm).
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/ormasoftchile/kombi/pkg/element"
	"github.com/ormasoftchile/kombi/pkg/jsonvalue"
	"github.com/ormasoftchile/kombi/pkg/procedure"
	"github.com/ormasoftchile/kombi/pkg/task"
	"github.com/ormasoftchile/kombi/pkg/taskholder"
)

var (
	// ErrNotFound is returned for unregistered dispatchers and backends.
	ErrNotFound = errors.New("dispatcher not registered")
	// ErrInvalidOption is returned for unknown dispatcher options.
	ErrInvalidOption = errors.New("invalid dispatcher option")
	// ErrLocalExecution is matched by *LocalExecutionError.
	ErrLocalExecution = errors.New("local execution failed")
	// ErrJobIDMissing is returned when a farm backend accepts a job without
	// issuing an ID.
	ErrJobIDMissing = errors.New("farm backend returned no job id")
)

// Options shared by every dispatcher.
const (
	OptionEnv               = "env"
	OptionLabel             = "label"
	OptionDispatchedMessage = "dispatchedMessage"
)

// Result is what a dispatch produced. Synchronous dispatchers fill
// Elements, farm dispatchers fill JobIDs.
type Result struct {
	Elements []*element.Element
	JobIDs   []string
}

// Dispatcher executes a TaskHolder over a set of elements.
type Dispatcher interface {
	Type() string
	Option(name string) (any, bool)
	SetOption(name string, value any) error
	OptionNames() []string
	Dispatch(ctx context.Context, holder *taskholder.TaskHolder, elements []*element.Element) (*Result, error)
}

// Factory creates a dispatcher with default options.
type Factory func() Dispatcher

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

func init() {
	Register("runtime", func() Dispatcher { return NewRuntime() })
	Register("local", func() Dispatcher { return NewLocal() })
	Register("renderFarm", func() Dispatcher { return NewRenderFarm() })
}

// Register adds a dispatcher factory under name.
func Register(name string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	factories[name] = f
}

// Create returns a new dispatcher of the given type.
func Create(name string) (Dispatcher, error) {
	mu.RLock()
	f, ok := factories[name]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return f(), nil
}

// RegisteredNames returns the registered dispatcher types, sorted.
func RegisteredNames() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// base holds the option table shared by the builtin dispatchers.
type base struct {
	typ     string
	options map[string]any
}

func newBase(typ string, extra map[string]any) base {
	b := base{typ: typ, options: map[string]any{
		OptionEnv:               map[string]any{},
		OptionLabel:             "",
		OptionDispatchedMessage: "",
	}}
	for k, v := range extra {
		b.options[k] = v
	}
	return b
}

func (b *base) Type() string { return b.typ }

func (b *base) Option(name string) (any, bool) {
	v, ok := b.options[name]
	return v, ok
}

func (b *base) SetOption(name string, value any) error {
	if _, ok := b.options[name]; !ok {
		return fmt.Errorf("%w: %q on %s", ErrInvalidOption, name, b.typ)
	}
	if env, ok := value.(map[string]string); ok {
		converted := make(map[string]any, len(env))
		for k, v := range env {
			converted[k] = v
		}
		value = converted
	}
	copied, err := jsonvalue.Copy(value)
	if err != nil {
		return fmt.Errorf("%w: %q on %s: %v", ErrInvalidOption, name, b.typ, err)
	}
	b.options[name] = copied
	return nil
}

func (b *base) OptionNames() []string {
	names := make([]string, 0, len(b.options))
	for name := range b.options {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (b *base) env() map[string]string {
	out := map[string]string{}
	if raw, ok := b.options[OptionEnv].(map[string]any); ok {
		for k, v := range raw {
			out[k] = procedure.ToString(v)
		}
	}
	return out
}

func (b *base) stringOption(name string) string {
	return procedure.ToString(b.options[name])
}

func (b *base) boolOption(name string) bool {
	return procedure.ToBool(b.options[name])
}

func (b *base) label(holder *taskholder.TaskHolder) string {
	if l := b.stringOption(OptionLabel); l != "" {
		return l
	}
	return holder.Task().Type()
}

// announce prints the dispatched message, if any.
func (b *base) announce(w io.Writer) {
	if msg := b.stringOption(OptionDispatchedMessage); msg != "" {
		fmt.Fprintln(w, msg)
	}
}

// applyEnv merges env into the wrapper environment of every task of the
// subtree. Subprocess wrappers and the processes tasks spawn inherit it.
func applyEnv(holder *taskholder.TaskHolder, env map[string]string) error {
	if len(env) == 0 {
		return nil
	}
	t := holder.Task()
	merged := map[string]any{}
	if current, ok := t.MetadataOr(task.MetadataWrapperEnv, nil).(map[string]any); ok {
		for k, v := range current {
			merged[k] = v
		}
	}
	for k, v := range env {
		merged[k] = v
	}
	if err := t.SetMetadata(task.MetadataWrapperEnv, merged); err != nil {
		return err
	}
	for _, child := range holder.Children() {
		if err := applyEnv(child, env); err != nil {
			return err
		}
	}
	return nil
}
