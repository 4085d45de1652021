package tasks

import (
	"context"
	"sort"

	"github.com/ormasoftchile/kombi/pkg/element"
	"github.com/ormasoftchile/kombi/pkg/task"
	"github.com/ormasoftchile/kombi/pkg/template"
)

type modifyOptions struct {
	Vars        map[string]any `mapstructure:"vars"`
	ContextVars map[string]any `mapstructure:"contextVars"`
	Tags        map[string]any `mapstructure:"tags"`
}

// modifyOutput passes each element through with extra vars, context vars
// and tags. String values are templates resolved against the element.
func modifyOutputDefinition() *task.Definition {
	return &task.Definition{
		Name: "modifyOutput",
		Options: []task.Option{
			{Name: "vars", Value: map[string]any{}},
			{Name: "contextVars", Value: map[string]any{}},
			{Name: "tags", Value: map[string]any{}},
		},
		ProcessElement: func(_ context.Context, t *task.Task, e *element.Element) ([]*element.Element, error) {
			var opts modifyOptions
			if err := decodeOptions(t, &opts); err != nil {
				return nil, err
			}
			out, err := e.Clone()
			if err != nil {
				return nil, err
			}
			target, err := t.Target(e)
			if err != nil {
				return nil, err
			}
			r := template.Chain(template.Vars{"target": target}, e)

			if err := modify(opts.Vars, r, func(name string, v any) error { return out.SetVar(name, v, false) }); err != nil {
				return nil, err
			}
			if err := modify(opts.ContextVars, r, func(name string, v any) error { return out.SetVar(name, v, true) }); err != nil {
				return nil, err
			}
			if err := modify(opts.Tags, r, out.SetTag); err != nil {
				return nil, err
			}
			return []*element.Element{out}, nil
		},
	}
}

func modify(values map[string]any, r template.Resolver, set func(string, any) error) error {
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		v := values[name]
		if s, ok := v.(string); ok {
			resolved, err := template.New(s).Value(r)
			if err != nil {
				return err
			}
			v = resolved
		}
		if err := set(name, v); err != nil {
			return err
		}
	}
	return nil
}

// passthrough outputs its inputs unchanged. Useful as a grouping rule whose
// children do the work.
func passthroughDefinition() *task.Definition {
	return &task.Definition{
		Name: "passthrough",
		Perform: func(_ context.Context, t *task.Task) ([]*element.Element, error) {
			return t.Elements(), nil
		},
	}
}
