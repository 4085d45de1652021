// Package taskholder implements the rule node of a processing tree: a task,
// a matcher, target/filter/export/profile/import templates, a status, an
// optional regroup tag, variables and tags inherited by matched elements,
// and ordered child rules.
package taskholder

import (
	"errors"
	"fmt"
	"sort"

	"github.com/ormasoftchile/kombi/pkg/element"
	"github.com/ormasoftchile/kombi/pkg/jsonvalue"
	"github.com/ormasoftchile/kombi/pkg/matcher"
	"github.com/ormasoftchile/kombi/pkg/procedure"
	"github.com/ormasoftchile/kombi/pkg/task"
	"github.com/ormasoftchile/kombi/pkg/taskwrapper"
	"github.com/ormasoftchile/kombi/pkg/template"
)

var (
	// ErrInvalidVar is returned for missing or malformed holder variables.
	ErrInvalidVar = errors.New("invalid task holder variable")
	// ErrInvalidTag is returned for missing or malformed holder tags.
	ErrInvalidTag = errors.New("invalid task holder tag")
	// ErrInvalidStatus is returned for unknown statuses.
	ErrInvalidStatus = errors.New("invalid task holder status")
)

// Status gates the execution of a rule.
type Status string

const (
	// StatusExecute runs the task.
	StatusExecute Status = "execute"
	// StatusBypass skips the task and hands its inputs to the children.
	StatusBypass Status = "bypass"
	// StatusIgnore skips the task and the children.
	StatusIgnore Status = "ignore"
)

// ParseStatus validates s. The empty string means StatusExecute.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case "", StatusExecute:
		return StatusExecute, nil
	case StatusBypass, StatusIgnore:
		return Status(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
	}
}

// Metadata scopes of the held task read by the holder.
const (
	MetadataMatchTypes = "match.types"
	MetadataMatchVars  = "match.vars"
)

// TaskHolder is a rule node.
type TaskHolder struct {
	task *task.Task

	target  *template.Template
	filter  *template.Template
	export  *template.Template
	profile *template.Template
	imports []*template.Template

	status     Status
	regroupTag string

	vars        map[string]any
	contextVars map[string]bool
	tags        map[string]any

	children []*TaskHolder
}

// New creates a holder for t with the given target, filter and export
// template sources.
func New(t *task.Task, target, filter, export string) *TaskHolder {
	return &TaskHolder{
		task:        t,
		target:      template.New(target),
		filter:      template.New(filter),
		export:      template.New(export),
		profile:     template.New(""),
		status:      StatusExecute,
		vars:        map[string]any{},
		contextVars: map[string]bool{},
		tags:        map[string]any{},
	}
}

// Task returns the held task.
func (h *TaskHolder) Task() *task.Task { return h.task }

// TargetTemplate returns the target template.
func (h *TaskHolder) TargetTemplate() *template.Template { return h.target }

// FilterTemplate returns the filter template.
func (h *TaskHolder) FilterTemplate() *template.Template { return h.filter }

// ExportTemplate returns the export template.
func (h *TaskHolder) ExportTemplate() *template.Template { return h.export }

// ProfileTemplate returns the profile template.
func (h *TaskHolder) ProfileTemplate() *template.Template { return h.profile }

// SetProfileTemplate replaces the profile template source.
func (h *TaskHolder) SetProfileTemplate(s string) { h.profile = template.New(s) }

// ImportTemplates returns the import templates.
func (h *TaskHolder) ImportTemplates() []*template.Template {
	return append([]*template.Template(nil), h.imports...)
}

// AddImportTemplate appends an import template source.
func (h *TaskHolder) AddImportTemplate(s string) {
	h.imports = append(h.imports, template.New(s))
}

// SetImportTemplates replaces every import template.
func (h *TaskHolder) SetImportTemplates(sources []string) {
	h.imports = nil
	for _, s := range sources {
		h.AddImportTemplate(s)
	}
}

// Status returns the execution status.
func (h *TaskHolder) Status() Status { return h.status }

// SetStatus changes the execution status.
func (h *TaskHolder) SetStatus(s Status) error {
	parsed, err := ParseStatus(string(s))
	if err != nil {
		return err
	}
	h.status = parsed
	return nil
}

// RegroupTag returns the tag inputs are partitioned by, or "".
func (h *TaskHolder) RegroupTag() string { return h.regroupTag }

// SetRegroupTag sets the tag inputs are partitioned by.
func (h *TaskHolder) SetRegroupTag(tag string) { h.regroupTag = tag }

// SetVar assigns a holder variable inherited by matched elements.
func (h *TaskHolder) SetVar(name string, value any, isContext bool) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidVar)
	}
	copied, err := jsonvalue.Copy(value)
	if err != nil {
		return fmt.Errorf("%w: %q: %v", ErrInvalidVar, name, err)
	}
	h.vars[name] = copied
	if isContext {
		h.contextVars[name] = true
	} else {
		delete(h.contextVars, name)
	}
	return nil
}

// Var returns the holder variable name.
func (h *TaskHolder) Var(name string) (any, error) {
	v, ok := h.vars[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q not set on %s", ErrInvalidVar, name, h.task.Type())
	}
	return v, nil
}

// LookupVar implements template.Resolver.
func (h *TaskHolder) LookupVar(name string) (any, bool) {
	v, ok := h.vars[name]
	return v, ok
}

// VarNames returns the sorted holder variable names.
func (h *TaskHolder) VarNames() []string { return sortedKeys(h.vars) }

// ContextVarNames returns the sorted holder context variable names.
func (h *TaskHolder) ContextVarNames() []string {
	var names []string
	for name := range h.contextVars {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsContextVar reports whether name is a context variable.
func (h *TaskHolder) IsContextVar(name string) bool { return h.contextVars[name] }

// SetTag assigns a holder tag inherited by matched elements.
func (h *TaskHolder) SetTag(name string, value any) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidTag)
	}
	copied, err := jsonvalue.Copy(value)
	if err != nil {
		return fmt.Errorf("%w: %q: %v", ErrInvalidTag, name, err)
	}
	h.tags[name] = copied
	return nil
}

// Tag returns the holder tag name.
func (h *TaskHolder) Tag(name string) (any, error) {
	v, ok := h.tags[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q not set on %s", ErrInvalidTag, name, h.task.Type())
	}
	return v, nil
}

// TagNames returns the sorted holder tag names.
func (h *TaskHolder) TagNames() []string { return sortedKeys(h.tags) }

// AddChild appends a child rule.
func (h *TaskHolder) AddChild(child *TaskHolder) { h.children = append(h.children, child) }

// Children returns the child rules in order.
func (h *TaskHolder) Children() []*TaskHolder {
	return append([]*TaskHolder(nil), h.children...)
}

// ClearChildren detaches every child rule.
func (h *TaskHolder) ClearChildren() { h.children = nil }

// Matcher builds the matcher described by the task's match.types and
// match.vars metadata.
func (h *TaskHolder) Matcher() *matcher.Matcher {
	var types []string
	switch v := h.task.MetadataOr(MetadataMatchTypes, nil).(type) {
	case string:
		if v != "" {
			types = []string{v}
		}
	case []any:
		for _, item := range v {
			types = append(types, procedure.ToString(item))
		}
	}
	vars, _ := h.task.MetadataOr(MetadataMatchVars, nil).(map[string]any)
	return matcher.New(types, vars)
}

// WrapperName returns the task wrapper selected by wrapper.name metadata.
func (h *TaskHolder) WrapperName() string {
	if name, ok := h.task.MetadataOr(taskwrapper.MetadataName, "").(string); ok && name != "" {
		return name
	}
	return taskwrapper.DefaultName
}

// Pair is an element matched by a holder and its resolved target.
type Pair struct {
	Element *element.Element
	Target  string
}

func (h *TaskHolder) resolver(e *element.Element) template.Resolver {
	if e == nil {
		return template.Vars(h.vars)
	}
	return template.Chain(e, template.Vars(h.vars))
}

// Query returns the elements accepted by the matcher and not rejected by the
// filter, paired with their target, sorted by target then full path.
func (h *TaskHolder) Query(elements []*element.Element) ([]Pair, error) {
	m := h.Matcher()
	var pairs []Pair
	for _, e := range elements {
		if !m.Match(e) {
			continue
		}
		r := h.resolver(e)
		if !h.filter.IsEmpty() {
			v, err := h.filter.Value(r)
			if err != nil {
				return nil, fmt.Errorf("rule %s: filter of %s: %w", h.task.Type(), e.FullPath(), err)
			}
			if v == "0" || v == "false" {
				continue
			}
		}
		target, err := h.target.Value(r)
		if err != nil {
			return nil, fmt.Errorf("rule %s: target of %s: %w", h.task.Type(), e.FullPath(), err)
		}
		pairs = append(pairs, Pair{Element: e, Target: target})
	}
	sort.SliceStable(pairs, func(i, j int) bool {
		if pairs[i].Target != pairs[j].Target {
			return pairs[i].Target < pairs[j].Target
		}
		return pairs[i].Element.FullPath() < pairs[j].Element.FullPath()
	})
	return pairs, nil
}

// AddElements queries elements and adds a clone of every match to the held
// task. Holder variables and tags fill in whatever the clone lacks.
func (h *TaskHolder) AddElements(elements []*element.Element) error {
	return h.addElementsTo(h.task, elements)
}

func (h *TaskHolder) addElementsTo(t *task.Task, elements []*element.Element) error {
	pairs, err := h.Query(elements)
	if err != nil {
		return err
	}
	for _, p := range pairs {
		c, err := p.Element.Clone()
		if err != nil {
			return fmt.Errorf("rule %s: %w", h.task.Type(), err)
		}
		for name, value := range h.vars {
			if c.HasVar(name) {
				continue
			}
			if err := c.SetVar(name, value, h.contextVars[name]); err != nil {
				return fmt.Errorf("rule %s: %w", h.task.Type(), err)
			}
		}
		for name, value := range h.tags {
			if c.HasTag(name) {
				continue
			}
			if err := c.SetTag(name, value); err != nil {
				return fmt.Errorf("rule %s: %w", h.task.Type(), err)
			}
		}
		t.Add(c, p.Target)
	}
	return nil
}

// Clone deep-copies the holder subtree. Templates are recreated, so the
// clone starts with empty procedure caches.
func (h *TaskHolder) Clone() *TaskHolder {
	c := New(h.task.Clone(), h.target.Input(), h.filter.Input(), h.export.Input())
	c.SetProfileTemplate(h.profile.Input())
	for _, imp := range h.imports {
		c.AddImportTemplate(imp.Input())
	}
	c.status = h.status
	c.regroupTag = h.regroupTag
	for name, value := range h.vars {
		c.vars[name], _ = jsonvalue.Copy(value)
	}
	for name := range h.contextVars {
		c.contextVars[name] = true
	}
	for name, value := range h.tags {
		c.tags[name], _ = jsonvalue.Copy(value)
	}
	for _, child := range h.children {
		c.children = append(c.children, child.Clone())
	}
	return c
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
