// Package task implements the unit of work a rule runs: a registered type,
// ordered options, a dotted metadata tree and an ordered mapping from input
// elements to target paths.
package task

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/ormasoftchile/kombi/pkg/element"
	"github.com/ormasoftchile/kombi/pkg/jsonvalue"
	"github.com/ormasoftchile/kombi/pkg/procedure"
	"github.com/ormasoftchile/kombi/pkg/template"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// TemplatePrefix marks a string option as a template.
const TemplatePrefix = "template:"

// maxOptionDepth bounds the nesting of option values.
const maxOptionDepth = 32

// Task is an instance of a registered task type.
type Task struct {
	def      *Definition
	options  *orderedmap.OrderedMap[string, any]
	metadata map[string]any
	targets  *orderedmap.OrderedMap[*element.Element, string]
}

func newTask(def *Definition) *Task {
	return &Task{
		def:      def,
		options:  orderedmap.New[string, any](),
		metadata: map[string]any{},
		targets:  orderedmap.New[*element.Element, string](),
	}
}

// Type returns the registered type name.
func (t *Task) Type() string { return t.def.Name }

// SetOption assigns an option. Values may be JSON-compatible data or
// elements, including elements nested in lists and maps.
func (t *Task) SetOption(name string, value any) error {
	if name == "" {
		return fmt.Errorf("%w: empty name on %s", ErrInvalidOption, t.Type())
	}
	if err := checkOption(value, 0); err != nil {
		return fmt.Errorf("%w: %q on %s: %v", ErrInvalidOption, name, t.Type(), err)
	}
	t.options.Set(name, value)
	return nil
}

// SetOptions assigns several options in name order.
func (t *Task) SetOptions(options map[string]any) error {
	names := make([]string, 0, len(options))
	for name := range options {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := t.SetOption(name, options[name]); err != nil {
			return err
		}
	}
	return nil
}

// OptionNames returns option names in insertion order.
func (t *Task) OptionNames() []string {
	names := make([]string, 0, t.options.Len())
	for p := t.options.Oldest(); p != nil; p = p.Next() {
		names = append(names, p.Key)
	}
	return names
}

// HasOption reports whether name is set.
func (t *Task) HasOption(name string) bool {
	_, ok := t.options.Get(name)
	return ok
}

// RawOption returns the stored value of name without template resolution.
func (t *Task) RawOption(name string) (any, bool) {
	return t.options.Get(name)
}

// Option returns the value of name, resolving templated strings against the
// first element of the task.
func (t *Task) Option(name string) (any, error) {
	return t.OptionFor(name, nil, nil)
}

// OptionFor returns the value of name. Templated strings resolve against e
// (or the first task element when e is nil) with extra layered on top.
func (t *Task) OptionFor(name string, e *element.Element, extra template.Vars) (any, error) {
	value, ok := t.options.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q is not set on %s", ErrInvalidOption, name, t.Type())
	}
	s, isString := value.(string)
	if !isString {
		return value, nil
	}
	flagged := procedure.ToBool(t.MetadataOr("task.options."+name+".template", false))
	if !flagged && !strings.HasPrefix(s, TemplatePrefix) {
		return value, nil
	}
	s = strings.TrimPrefix(s, TemplatePrefix)

	if e == nil {
		if elements := t.Elements(); len(elements) > 0 {
			e = elements[0]
		}
	}
	var r template.Resolver = extra
	if e != nil {
		r = template.Chain(extra, e)
	}
	out, err := template.New(s).Value(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %q on %s: %w", ErrInvalidOption, name, t.Type(), err)
	}
	return out, nil
}

// StringOption returns OptionFor rendered as a string, or def when the
// option is not set.
func (t *Task) StringOption(name string, e *element.Element, def string) (string, error) {
	if !t.HasOption(name) {
		return def, nil
	}
	v, err := t.OptionFor(name, e, nil)
	if err != nil {
		return "", err
	}
	return template.String(v), nil
}

// SetMetadata assigns value at the dotted scope, creating intermediate
// levels. The value is deep-copied.
func (t *Task) SetMetadata(scope string, value any) error {
	if scope == "" {
		return fmt.Errorf("%w: empty scope on %s", ErrInvalidMetadata, t.Type())
	}
	copied, err := jsonvalue.Copy(value)
	if err != nil {
		return fmt.Errorf("%w: %q on %s: %v", ErrInvalidMetadata, scope, t.Type(), err)
	}
	levels := strings.Split(scope, ".")
	node := t.metadata
	for _, level := range levels[:len(levels)-1] {
		next, ok := node[level]
		if !ok {
			child := map[string]any{}
			node[level] = child
			node = child
			continue
		}
		child, ok := next.(map[string]any)
		if !ok {
			return fmt.Errorf("%w: %q on %s: %q is not a scope", ErrInvalidMetadata, scope, t.Type(), level)
		}
		node = child
	}
	node[levels[len(levels)-1]] = copied
	return nil
}

// Metadata returns the value at the dotted scope. An empty scope returns the
// whole tree.
func (t *Task) Metadata(scope string) (any, error) {
	if scope == "" {
		return t.metadata, nil
	}
	var node any = t.metadata
	for _, level := range strings.Split(scope, ".") {
		m, ok := node.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: %q not set on %s", ErrInvalidMetadata, scope, t.Type())
		}
		if node, ok = m[level]; !ok {
			return nil, fmt.Errorf("%w: %q not set on %s", ErrInvalidMetadata, scope, t.Type())
		}
	}
	return node, nil
}

// MetadataOr returns the value at scope or def.
func (t *Task) MetadataOr(scope string, def any) any {
	v, err := t.Metadata(scope)
	if err != nil {
		return def
	}
	return v
}

// HasMetadata reports whether every level of scope exists.
func (t *Task) HasMetadata(scope string) bool {
	_, err := t.Metadata(scope)
	return err == nil
}

// MetadataWrapperEnv holds the environment dispatchers add to every process a
// task spawns.
const MetadataWrapperEnv = "wrapper.options.env"

// WrapperEnv returns the dispatcher environment of the task.
func (t *Task) WrapperEnv() map[string]string {
	out := map[string]string{}
	if raw, ok := t.MetadataOr(MetadataWrapperEnv, nil).(map[string]any); ok {
		for k, v := range raw {
			out[k] = procedure.ToString(v)
		}
	}
	return out
}

// MetadataNames returns the top-level metadata keys, sorted.
func (t *Task) MetadataNames() []string {
	names := make([]string, 0, len(t.metadata))
	for k := range t.metadata {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Add maps e to target. Adding an element again updates its target in place.
func (t *Task) Add(e *element.Element, target string) {
	t.targets.Set(e, target)
}

// Target returns the target path of e.
func (t *Task) Target(e *element.Element) (string, error) {
	target, ok := t.targets.Get(e)
	if !ok {
		return "", fmt.Errorf("%w: %s is not part of %s", ErrInvalidElement, e, t.Type())
	}
	return target, nil
}

// Elements returns the input elements in insertion order.
func (t *Task) Elements() []*element.Element {
	out := make([]*element.Element, 0, t.targets.Len())
	for p := t.targets.Oldest(); p != nil; p = p.Next() {
		out = append(out, p.Key)
	}
	return out
}

// ClearElements drops every input element.
func (t *Task) ClearElements() {
	t.targets = orderedmap.New[*element.Element, string]()
}

// Clone deep-copies options, metadata and the element to target mapping,
// elements included. An element whose initialization data cannot be
// serialized is shared.
func (t *Task) Clone() *Task {
	c := newTask(t.def)
	for p := t.options.Oldest(); p != nil; p = p.Next() {
		c.options.Set(p.Key, copyOption(p.Value))
	}
	c.metadata, _ = copyOption(t.metadata).(map[string]any)
	for p := t.targets.Oldest(); p != nil; p = p.Next() {
		c.targets.Set(cloneElement(p.Key), p.Value)
	}
	return c
}

func cloneElement(e *element.Element) *element.Element {
	if c, err := e.Clone(); err == nil {
		return c
	}
	return e
}

func copyOption(v any) any {
	switch val := v.(type) {
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = copyOption(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = copyOption(item)
		}
		return out
	case *element.Element:
		return cloneElement(val)
	case []*element.Element:
		out := make([]*element.Element, len(val))
		for i, e := range val {
			out[i] = cloneElement(e)
		}
		return out
	default:
		return v
	}
}

func checkOption(v any, depth int) error {
	if depth > maxOptionDepth {
		return fmt.Errorf("nested deeper than %d levels", maxOptionDepth)
	}
	switch val := v.(type) {
	case nil, string, bool, int, int64, float64, *element.Element, []*element.Element, []string:
		return nil
	case []any:
		for _, item := range val {
			if err := checkOption(item, depth+1); err != nil {
				return err
			}
		}
		return nil
	case map[string]any:
		for _, item := range val {
			if err := checkOption(item, depth+1); err != nil {
				return err
			}
		}
		return nil
	}
	switch reflect.ValueOf(v).Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64, reflect.String, reflect.Bool:
		return nil
	case reflect.Slice, reflect.Map:
		if _, err := jsonvalue.Copy(v); err != nil {
			return err
		}
		return nil
	default:
		return fmt.Errorf("unsupported value %T", v)
	}
}
