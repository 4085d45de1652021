package taskholder

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ormasoftchile/kombi/pkg/ctxlog"
	"github.com/ormasoftchile/kombi/pkg/element"
	"github.com/ormasoftchile/kombi/pkg/pathcache"
	"github.com/ormasoftchile/kombi/pkg/task"
	"github.com/ormasoftchile/kombi/pkg/taskwrapper"
	"github.com/ormasoftchile/kombi/pkg/template"
)

// RunOptions tune a single Run call.
type RunOptions struct {
	// IgnoreImports skips the import templates of the node being run.
	IgnoreImports bool
}

// Run evaluates the rule subtree over elements. The result holds this
// node's outputs followed by the results of every child in order.
//
// The holder itself is left untouched: matched elements go to a copy of the
// held task.
func (h *TaskHolder) Run(ctx context.Context, elements []*element.Element, opts RunOptions) ([]*element.Element, error) {
	log := ctxlog.FromContext(ctx).With("node", h.task.Type())

	working := append([]*element.Element(nil), elements...)
	if !opts.IgnoreImports && len(h.imports) > 0 {
		imported, err := h.importElements()
		if err != nil {
			return nil, err
		}
		log.Debug("imported elements", "count", len(imported))
		working = append(working, imported...)
	}

	if h.regroupTag != "" {
		var results []*element.Element
		for _, group := range element.Group(working, h.regroupTag) {
			partition := h.Clone()
			partition.regroupTag = ""
			out, err := partition.Run(ctx, group, RunOptions{IgnoreImports: true})
			if err != nil {
				return nil, err
			}
			results = append(results, out...)
		}
		return results, nil
	}

	t := h.task.Clone()
	t.ClearElements()
	if err := h.addElementsTo(t, working); err != nil {
		return nil, err
	}
	inputs := t.Elements()

	var vars template.Resolver = template.Vars(h.vars)
	if len(inputs) > 0 {
		vars = template.Chain(vars, inputs[0])
	}

	var outputs []*element.Element
	switch h.status {
	case StatusIgnore:
		log.Debug("ignored")
		return nil, nil
	case StatusBypass:
		log.Debug("bypassed", "inputs", len(inputs))
		outputs = inputs
	default:
		if err := h.stampProfile(t, vars); err != nil {
			return nil, err
		}
		w, err := taskwrapper.Create(h.WrapperName())
		if err != nil {
			return nil, fmt.Errorf("rule %s: %w", h.task.Type(), err)
		}
		log.Debug("running task", "inputs", len(inputs), "wrapper", h.WrapperName())
		if outputs, err = w.Run(ctx, t); err != nil {
			return nil, fmt.Errorf("rule %s: %w", h.task.Type(), err)
		}
	}

	if err := h.exportElements(ctx, outputs, vars); err != nil {
		return nil, err
	}
	if len(inputs) == 0 {
		return outputs, nil
	}

	results := append([]*element.Element(nil), outputs...)
	for _, child := range h.children {
		out, err := child.Run(ctx, outputs, RunOptions{})
		if err != nil {
			return nil, err
		}
		results = append(results, out...)
	}
	return results, nil
}

func (h *TaskHolder) stampProfile(t *task.Task, vars template.Resolver) error {
	if h.profile.IsEmpty() {
		return nil
	}
	p, err := h.profile.Value(vars)
	if err != nil {
		return fmt.Errorf("rule %s: profile: %w", h.task.Type(), err)
	}
	if p == "" {
		return nil
	}
	if pathcache.IsDir(p) {
		p = filepath.Join(p, "profile")
	}
	if filepath.Ext(p) != ".png" {
		p += ".png"
	}
	return t.SetMetadata(task.MetadataProfile, p)
}

func (h *TaskHolder) exportElements(ctx context.Context, outputs []*element.Element, vars template.Resolver) error {
	if h.export.IsEmpty() {
		return nil
	}
	p, err := h.export.Value(vars)
	if err != nil {
		return fmt.Errorf("rule %s: export: %w", h.task.Type(), err)
	}
	if p == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("rule %s: export: %w", h.task.Type(), err)
	}
	data, err := element.MarshalElements(outputs)
	if err != nil {
		return fmt.Errorf("rule %s: export: %w", h.task.Type(), err)
	}
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return fmt.Errorf("rule %s: export: %w", h.task.Type(), err)
	}
	ctxlog.FromContext(ctx).Debug("exported elements", "node", h.task.Type(), "path", p, "count", len(outputs))
	return nil
}

func (h *TaskHolder) importElements() ([]*element.Element, error) {
	m := h.Matcher()
	var out []*element.Element
	for _, imp := range h.imports {
		p, err := imp.Value(template.Vars(h.vars))
		if err != nil {
			return nil, fmt.Errorf("rule %s: import: %w", h.task.Type(), err)
		}
		if p == "" {
			continue
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("rule %s: import: %w", h.task.Type(), err)
		}
		elems, err := element.UnmarshalElements(data)
		if err != nil {
			return nil, fmt.Errorf("rule %s: import %s: %w", h.task.Type(), p, err)
		}
		for _, e := range elems {
			if m.Match(e) {
				out = append(out, e)
			}
		}
	}
	return out, nil
}
