package schema

import (
	"fmt"
	"sort"

	"github.com/ormasoftchile/kombi/pkg/resource"
	"github.com/ormasoftchile/kombi/pkg/task"
	"github.com/ormasoftchile/kombi/pkg/taskholder"
	"github.com/ormasoftchile/kombi/pkg/taskwrapper"
)

// Build requires the configuration resources and turns its rule tree into
// task holders. Root vars are inherited by every holder and overridden by
// the vars of a holder or its ancestors.
func Build(cfg *Config) ([]*taskholder.TaskHolder, error) {
	if err := resource.Require(cfg.Resources...); err != nil {
		return nil, err
	}
	inherited := scope{vars: map[string]any{}, context: map[string]bool{}}
	inherited = inherited.with(cfg.Vars, cfg.ContextVars)

	var holders []*taskholder.TaskHolder
	for i := range cfg.TaskHolders {
		h, err := buildHolder(&cfg.TaskHolders[i], inherited, fmt.Sprintf("taskHolders[%d]", i))
		if err != nil {
			return nil, err
		}
		holders = append(holders, h)
	}
	return holders, nil
}

type scope struct {
	vars    map[string]any
	context map[string]bool
}

func (s scope) with(vars map[string]any, contextVars []string) scope {
	out := scope{vars: map[string]any{}, context: map[string]bool{}}
	for k, v := range s.vars {
		out.vars[k] = v
		out.context[k] = s.context[k]
	}
	for k, v := range vars {
		out.vars[k] = v
		out.context[k] = false
	}
	for _, name := range contextVars {
		out.context[name] = true
	}
	return out
}

func buildHolder(def *TaskHolder, parent scope, path string) (*taskholder.TaskHolder, error) {
	t, err := task.Create(def.Task)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	for _, name := range sortedNames(def.Options) {
		if err := t.SetOption(name, def.Options[name]); err != nil {
			return nil, fmt.Errorf("%s.options: %w", path, err)
		}
	}
	for _, name := range sortedNames(def.Metadata) {
		if err := t.SetMetadata(name, def.Metadata[name]); err != nil {
			return nil, fmt.Errorf("%s.metadata: %w", path, err)
		}
	}
	if def.Match != nil {
		if len(def.Match.Types) > 0 {
			if err := t.SetMetadata(taskholder.MetadataMatchTypes, def.Match.Types); err != nil {
				return nil, fmt.Errorf("%s.match: %w", path, err)
			}
		}
		if len(def.Match.Vars) > 0 {
			if err := t.SetMetadata(taskholder.MetadataMatchVars, def.Match.Vars); err != nil {
				return nil, fmt.Errorf("%s.match: %w", path, err)
			}
		}
	}
	if def.Wrapper != "" {
		if err := t.SetMetadata(taskwrapper.MetadataName, def.Wrapper); err != nil {
			return nil, fmt.Errorf("%s.wrapper: %w", path, err)
		}
	}

	h := taskholder.New(t, def.Target, def.Filter, def.Export)
	h.SetProfileTemplate(def.Profile)
	h.SetImportTemplates(def.Import)
	status, err := taskholder.ParseStatus(def.Status)
	if err != nil {
		return nil, fmt.Errorf("%s.status: %w", path, err)
	}
	if err := h.SetStatus(status); err != nil {
		return nil, fmt.Errorf("%s.status: %w", path, err)
	}
	h.SetRegroupTag(def.RegroupTag)

	local := parent.with(def.Vars, def.ContextVars)
	for _, name := range sortedNames(local.vars) {
		if err := h.SetVar(name, local.vars[name], local.context[name]); err != nil {
			return nil, fmt.Errorf("%s.vars: %w", path, err)
		}
	}
	for _, name := range sortedNames(def.Tags) {
		if err := h.SetTag(name, def.Tags[name]); err != nil {
			return nil, fmt.Errorf("%s.tags: %w", path, err)
		}
	}

	for i := range def.TaskHolders {
		child, err := buildHolder(&def.TaskHolders[i], local, fmt.Sprintf("%s.taskHolders[%d]", path, i))
		if err != nil {
			return nil, err
		}
		h.AddChild(child)
	}
	return h, nil
}

func sortedNames(m map[string]any) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
