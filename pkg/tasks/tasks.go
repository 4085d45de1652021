// Package tasks provides the builtin task types. They are registered by the
// "tasks" resource so serialized tasks can require them by name.
package tasks

import (
	"fmt"

	"github.com/mitchellh/mapstructure"

	"github.com/ormasoftchile/kombi/pkg/element"
	"github.com/ormasoftchile/kombi/pkg/resource"
	"github.com/ormasoftchile/kombi/pkg/task"
)

// Resource is the resource name registering the builtin tasks.
const Resource = "tasks"

func init() {
	resource.Register(Resource, Load)
}

// Load registers every builtin task type.
func Load() error {
	for _, def := range []*task.Definition{
		copyDefinition(),
		removeDefinition(),
		createDirectoryDefinition(),
		commandDefinition(),
		modifyOutputDefinition(),
		passthroughDefinition(),
	} {
		if err := task.Register(def); err != nil {
			return err
		}
	}
	return nil
}

// decodeOptions decodes the raw option values of t into out.
func decodeOptions(t *task.Task, out any) error {
	raw := map[string]any{}
	for _, name := range t.OptionNames() {
		raw[name], _ = t.RawOption(name)
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(raw); err != nil {
		return fmt.Errorf("%w: %s: %v", task.ErrInvalidOption, t.Type(), err)
	}
	return nil
}

// targetPath returns the target of e, failing when the rule resolved none.
func targetPath(t *task.Task, e *element.Element) (string, error) {
	target, err := t.Target(e)
	if err != nil {
		return "", err
	}
	if target == "" {
		return "", fmt.Errorf("%s: no target for %s", t.Type(), e.FullPath())
	}
	return target, nil
}
