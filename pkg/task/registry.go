package task

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ormasoftchile/kombi/pkg/element"
)

var (
	// ErrTypeNotFound is returned for unregistered task types.
	ErrTypeNotFound = errors.New("task type not registered")
	// ErrInvalidOption is returned for unknown or malformed options.
	ErrInvalidOption = errors.New("invalid task option")
	// ErrInvalidMetadata is returned for unknown or malformed metadata scopes.
	ErrInvalidMetadata = errors.New("invalid task metadata")
	// ErrInvalidElement is returned when an element is not part of the task.
	ErrInvalidElement = errors.New("invalid task element")
	// ErrValidation wraps failures reported by a task validator.
	ErrValidation = errors.New("task validation failed")
)

// PerformFunc runs a task over its elements and returns the outputs.
type PerformFunc func(ctx context.Context, t *Task) ([]*element.Element, error)

// ProcessElementFunc produces the outputs of one input element.
type ProcessElementFunc func(ctx context.Context, t *Task, e *element.Element) ([]*element.Element, error)

// ValidateFunc checks a task before it runs.
type ValidateFunc func(t *Task) error

// Option is a named default option value.
type Option struct {
	Name  string
	Value any
}

// Definition describes a task type. Perform defaults to calling
// ProcessElement for every element; ProcessElement defaults to creating a
// filesystem element from the element's target.
type Definition struct {
	Name           string
	Options        []Option
	Metadata       map[string]any
	Perform        PerformFunc
	ProcessElement ProcessElementFunc
	Validate       ValidateFunc
}

var (
	mu          sync.RWMutex
	definitions = map[string]*Definition{}
)

// Register adds a task type. Registering a name again replaces it.
func Register(def *Definition) error {
	if def == nil || def.Name == "" {
		return fmt.Errorf("%w: definition has no name", ErrTypeNotFound)
	}
	mu.Lock()
	defer mu.Unlock()
	definitions[def.Name] = def
	return nil
}

// MustRegister is Register for init functions.
func MustRegister(def *Definition) {
	if err := Register(def); err != nil {
		panic(err)
	}
}

// RegisteredNames returns the registered task types, sorted.
func RegisteredNames() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(definitions))
	for name := range definitions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsRegistered reports whether name is a registered task type.
func IsRegistered(name string) bool {
	mu.RLock()
	defer mu.RUnlock()
	_, ok := definitions[name]
	return ok
}

// Create instantiates a task of the registered type name with its default
// options and metadata.
func Create(name string) (*Task, error) {
	mu.RLock()
	def, ok := definitions[name]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrTypeNotFound, name)
	}
	t := newTask(def)
	for _, opt := range def.Options {
		if err := t.SetOption(opt.Name, opt.Value); err != nil {
			return nil, err
		}
	}
	keys := make([]string, 0, len(def.Metadata))
	for key := range def.Metadata {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if err := t.SetMetadata(key, def.Metadata[key]); err != nil {
			return nil, err
		}
	}
	return t, nil
}
