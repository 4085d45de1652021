// Package element implements the typed, hierarchical data items rules
// operate on.
//
// Every element carries a variables map (some flagged as context variables,
// which propagate to outputs), a tags map and, for non-leaf kinds, children
// computed on demand. Element kinds are registered Types; the factory picks
// the most recently registered type whose Test accepts the data.
package element

import (
	"encoding/json"
	"fmt"
	"path"
	"reflect"
	"sort"

	"github.com/ormasoftchile/kombi/pkg/procedure"
)

// Reserved variable and tag names.
const (
	VarType     = "type"
	VarName     = "name"
	VarFullPath = "fullPath"
	TagLabel    = "label"
	TagIcon     = "icon"
)

// Element is a typed data item.
type Element struct {
	typ  *Type
	data any

	vars        map[string]any
	contextVars map[string]bool
	tags        map[string]any

	children    []*Element
	childrenGen uint64
}

// New constructs an element of the registered type typeName without running
// its Test.
func New(typeName string, data any, parent *Element) (*Element, error) {
	t, ok := RegisteredType(typeName)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrTypeNotFound, typeName)
	}
	return construct(t, data, parent)
}

func construct(t *Type, data any, parent *Element) (*Element, error) {
	e := &Element{
		typ:         t,
		data:        data,
		vars:        make(map[string]any),
		contextVars: make(map[string]bool),
		tags:        make(map[string]any),
	}
	if parent != nil {
		for _, name := range parent.ContextVarNames() {
			e.vars[name] = parent.vars[name]
			e.contextVars[name] = true
		}
	}

	if init := t.initHook(); init != nil {
		if err := init(e, data); err != nil {
			return nil, fmt.Errorf("%w: type %q on %v: %w", ErrTypeConstruction, t.Name, data, err)
		}
	}

	if e.Name() == "" {
		e.vars[VarName] = path.Base(procedure.ToString(data))
	}
	if e.Name() == "" || e.Name() == "." {
		return nil, fmt.Errorf("%w: type %q on %v: empty name", ErrTypeConstruction, t.Name, data)
	}
	if e.FullPath() == "" {
		full := e.Name()
		if parent != nil {
			full = path.Join(parent.FullPath(), full)
		}
		e.vars[VarFullPath] = full
	}
	e.vars[VarType] = t.Name

	if _, ok := e.tags[TagLabel]; !ok {
		e.tags[TagLabel] = e.Name()
	}
	if _, ok := e.tags[TagIcon]; !ok {
		e.tags[TagIcon] = t.Name
	}
	return e, nil
}

// Create runs the factory: registered types are tested from the most
// recently registered to the earliest and the first accepting type builds
// the element.
func Create(data any, parent *Element) (*Element, error) {
	for _, t := range candidates() {
		if t.Test == nil {
			continue
		}
		ok, err := t.Test(data, parent)
		if err != nil {
			return nil, fmt.Errorf("%w: type %q on %v: %w", ErrTypeTest, t.Name, data, err)
		}
		if ok {
			return construct(t, data, parent)
		}
	}
	return nil, fmt.Errorf("%w: %v", ErrWrongType, data)
}

// CreateFromPath runs the factory on a filesystem path.
func CreateFromPath(p string) (*Element, error) {
	return Create(p, nil)
}

// TypeDef returns the element's type table.
func (e *Element) TypeDef() *Type { return e.typ }

// Type returns the registered type name.
func (e *Element) Type() string { return e.stringVar(VarType) }

// Name returns the element name.
func (e *Element) Name() string { return e.stringVar(VarName) }

// FullPath returns the element identity.
func (e *Element) FullPath() string { return e.stringVar(VarFullPath) }

// Data returns the value the element was initialized from.
func (e *Element) Data() any { return e.data }

// IsLeaf reports whether the element kind has no children.
func (e *Element) IsLeaf() bool { return e.typ.Leaf }

func (e *Element) String() string {
	return e.Type() + ":" + e.FullPath()
}

func (e *Element) stringVar(name string) string {
	s, _ := e.vars[name].(string)
	return s
}

// SetVar assigns a variable. Values must be JSON-compatible scalars, lists
// or maps.
func (e *Element) SetVar(name string, value any, isContext bool) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidVar)
	}
	if !serializable(value) {
		return fmt.Errorf("%w: %q on %s holds non-serializable %T", ErrInvalidVar, name, e.FullPath(), value)
	}
	e.vars[name] = value
	if isContext {
		e.contextVars[name] = true
	} else {
		delete(e.contextVars, name)
	}
	return nil
}

// Var returns the value of name or ErrInvalidVar when it is not set.
func (e *Element) Var(name string) (any, error) {
	v, ok := e.vars[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q not set on %s", ErrInvalidVar, name, e.FullPath())
	}
	return v, nil
}

// LookupVar returns the value of name and whether it is set.
func (e *Element) LookupVar(name string) (any, bool) {
	v, ok := e.vars[name]
	return v, ok
}

// VarOr returns the value of name or def when it is not set.
func (e *Element) VarOr(name string, def any) any {
	if v, ok := e.vars[name]; ok {
		return v
	}
	return def
}

// HasVar reports whether name is set.
func (e *Element) HasVar(name string) bool {
	_, ok := e.vars[name]
	return ok
}

// VarNames returns the sorted variable names.
func (e *Element) VarNames() []string { return sortedKeys(e.vars) }

// ContextVarNames returns the sorted context variable names.
func (e *Element) ContextVarNames() []string {
	names := make([]string, 0, len(e.contextVars))
	for name := range e.contextVars {
		if _, ok := e.vars[name]; ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// IsContextVar reports whether name is a context variable.
func (e *Element) IsContextVar(name string) bool { return e.contextVars[name] }

// SetTag assigns a tag.
func (e *Element) SetTag(name string, value any) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidTag)
	}
	if !serializable(value) {
		return fmt.Errorf("%w: %q on %s holds non-serializable %T", ErrInvalidTag, name, e.FullPath(), value)
	}
	e.tags[name] = value
	return nil
}

// Tag returns the tag name or ErrInvalidTag when it is not set.
func (e *Element) Tag(name string) (any, error) {
	v, ok := e.tags[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q not set on %s", ErrInvalidTag, name, e.FullPath())
	}
	return v, nil
}

// LookupTag returns the tag name and whether it is set.
func (e *Element) LookupTag(name string) (any, bool) {
	v, ok := e.tags[name]
	return v, ok
}

// TagOr returns the tag name or def when it is not set.
func (e *Element) TagOr(name string, def any) any {
	if v, ok := e.tags[name]; ok {
		return v
	}
	return def
}

// HasTag reports whether name is set.
func (e *Element) HasTag(name string) bool {
	_, ok := e.tags[name]
	return ok
}

// TagNames returns the sorted tag names.
func (e *Element) TagNames() []string { return sortedKeys(e.tags) }

// Children returns the children of a non-leaf element. Inside a caching
// scope the result is computed once per scope.
func (e *Element) Children() ([]*Element, error) {
	if e.IsLeaf() {
		return nil, fmt.Errorf("%w: %s", ErrLeafChildren, e)
	}
	if cached, ok := e.cachedChildren(); ok {
		return cached, nil
	}
	compute := e.typ.childrenHook()
	if compute == nil {
		return nil, nil
	}
	children, err := compute(e)
	if err != nil {
		return nil, fmt.Errorf("children of %s: %w", e, err)
	}
	e.storeChildren(children)
	return children, nil
}

// Clone returns a deep copy made through a JSON round trip.
func (e *Element) Clone() (*Element, error) {
	data, err := e.ToJSON()
	if err != nil {
		return nil, err
	}
	return CreateFromJSON(data)
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func serializable(v any) bool {
	switch val := v.(type) {
	case nil, string, bool, json.Number,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return true
	case *Element, Element:
		return false
	case []any:
		for _, item := range val {
			if !serializable(item) {
				return false
			}
		}
		return true
	case map[string]any:
		for _, item := range val {
			if !serializable(item) {
				return false
			}
		}
		return true
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			if !serializable(rv.Index(i).Interface()) {
				return false
			}
		}
		return true
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return false
		}
		iter := rv.MapRange()
		for iter.Next() {
			if !serializable(iter.Value().Interface()) {
				return false
			}
		}
		return true
	case reflect.String, reflect.Bool, reflect.Int, reflect.Int64, reflect.Float64:
		return true
	default:
		return false
	}
}
