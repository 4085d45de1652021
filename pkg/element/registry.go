package element

import (
	"fmt"
	"slices"
	"sync"
)

// Type is the function table of an element kind. Hooks left nil are
// inherited from the Base type chain.
type Type struct {
	// Name is the registered type name, stamped on elements as the "type" var.
	Name string
	// Base names the registered supertype, empty for roots.
	Base string
	// Leaf types never have children.
	Leaf bool

	// Test reports whether the type accepts data under parent.
	Test func(data any, parent *Element) (bool, error)
	// Init populates a freshly allocated element from data.
	Init func(e *Element, data any) error
	// Children computes the children of a non-leaf element.
	Children func(e *Element) ([]*Element, error)
	// InitData returns the value serialized as initialization data.
	InitData func(e *Element) any
	// ParseInitData turns serialized initialization data back into the
	// value handed to Init.
	ParseInitData func(raw any) (any, error)
}

var (
	registryMu sync.RWMutex
	registry   []*Type
)

// Register adds t to the type registry. When a type with the same name is
// already registered, overrideAsLatest replaces it and moves it to the end
// of the factory order; otherwise the first registration is kept.
func Register(t *Type, overrideAsLatest bool) error {
	if t == nil || t.Name == "" {
		return fmt.Errorf("%w: type has no name", ErrTypeNotFound)
	}
	registryMu.Lock()
	defer registryMu.Unlock()

	if t.Base != "" && indexOf(t.Base) < 0 {
		return fmt.Errorf("%w: base %q of %q", ErrTypeNotFound, t.Base, t.Name)
	}
	if i := indexOf(t.Name); i >= 0 {
		if !overrideAsLatest {
			return nil
		}
		registry = slices.Delete(registry, i, i+1)
	}
	registry = append(registry, t)
	return nil
}

// MustRegister is Register for init functions.
func MustRegister(t *Type, overrideAsLatest bool) {
	if err := Register(t, overrideAsLatest); err != nil {
		panic(err)
	}
}

// caller holds registryMu.
func indexOf(name string) int {
	for i, t := range registry {
		if t.Name == name {
			return i
		}
	}
	return -1
}

// RegisteredType returns the type registered under name.
func RegisteredType(name string) (*Type, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	if i := indexOf(name); i >= 0 {
		return registry[i], true
	}
	return nil, false
}

// RegisteredNames returns type names in registration order.
func RegisteredNames() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, len(registry))
	for i, t := range registry {
		names[i] = t.Name
	}
	return names
}

// IsSubType reports whether name is base or inherits from it.
func IsSubType(name, base string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	for seen := 0; name != "" && seen <= len(registry); seen++ {
		if name == base {
			return true
		}
		i := indexOf(name)
		if i < 0 {
			return false
		}
		name = registry[i].Base
	}
	return false
}

// RegisteredSubTypes returns base and every registered type inheriting from
// it, in registration order.
func RegisteredSubTypes(base string) []string {
	var out []string
	for _, name := range RegisteredNames() {
		if IsSubType(name, base) {
			out = append(out, name)
		}
	}
	return out
}

// candidates returns the registered types in factory order.
func candidates() []*Type {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]*Type, len(registry))
	for i, t := range registry {
		out[len(registry)-1-i] = t
	}
	return out
}

// hook walks the base chain of t and returns the first non-nil value chosen
// by get.
func hook[F any](t *Type, get func(*Type) F, isSet func(F) bool) (F, bool) {
	for depth := 0; t != nil && depth < 64; depth++ {
		if f := get(t); isSet(f) {
			return f, true
		}
		if t.Base == "" {
			break
		}
		t, _ = RegisteredType(t.Base)
	}
	var zero F
	return zero, false
}

func (t *Type) initHook() func(*Element, any) error {
	f, _ := hook(t, func(t *Type) func(*Element, any) error { return t.Init },
		func(f func(*Element, any) error) bool { return f != nil })
	return f
}

func (t *Type) childrenHook() func(*Element) ([]*Element, error) {
	f, _ := hook(t, func(t *Type) func(*Element) ([]*Element, error) { return t.Children },
		func(f func(*Element) ([]*Element, error)) bool { return f != nil })
	return f
}

func (t *Type) initDataHook() func(*Element) any {
	f, _ := hook(t, func(t *Type) func(*Element) any { return t.InitData },
		func(f func(*Element) any) bool { return f != nil })
	return f
}

func (t *Type) parseInitDataHook() func(any) (any, error) {
	f, _ := hook(t, func(t *Type) func(any) (any, error) { return t.ParseInitData },
		func(f func(any) (any, error)) bool { return f != nil })
	return f
}
