package tasks

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ormasoftchile/kombi/pkg/ctxlog"
	"github.com/ormasoftchile/kombi/pkg/element"
	"github.com/ormasoftchile/kombi/pkg/process"
	"github.com/ormasoftchile/kombi/pkg/task"
	"github.com/ormasoftchile/kombi/pkg/template"
)

type commandOptions struct {
	Command string         `mapstructure:"command"`
	Dir     string         `mapstructure:"dir"`
	Env     map[string]any `mapstructure:"env"`
}

// command runs a shell command line per element. The command option is a
// template resolved against the element plus {target}. The output is the
// target element, or the input element when the rule has no target. The
// process environment is the dispatcher environment overlaid by the env option.
func commandDefinition() *task.Definition {
	return &task.Definition{
		Name: "command",
		Options: []task.Option{
			{Name: "command", Value: ""},
			{Name: "dir", Value: ""},
			{Name: "env", Value: map[string]any{}},
		},
		Metadata: map[string]any{"task.options.command.template": true},
		Validate: func(t *task.Task) error {
			var opts commandOptions
			if err := decodeOptions(t, &opts); err != nil {
				return err
			}
			if strings.TrimSpace(opts.Command) == "" {
				return errors.New("command option is empty")
			}
			return nil
		},
		ProcessElement: func(ctx context.Context, t *task.Task, e *element.Element) ([]*element.Element, error) {
			var opts commandOptions
			if err := decodeOptions(t, &opts); err != nil {
				return nil, err
			}
			target, err := t.Target(e)
			if err != nil {
				return nil, err
			}
			v, err := t.OptionFor("command", e, template.Vars{"target": target})
			if err != nil {
				return nil, err
			}
			line := template.String(v)
			env := t.WrapperEnv()
			for k, v := range opts.Env {
				env[k] = template.String(v)
			}

			log := ctxlog.FromContext(ctx).With("task", t.Type(), "element", e.FullPath())
			log.Debug("running command", "command", line)
			p := process.New([]string{line}, process.Options{
				Shell: true,
				Env:   process.EnvList(env),
				Dir:   opts.Dir,
			})
			if err := p.Execute(ctx); err != nil {
				return nil, err
			}
			if out := strings.TrimSpace(p.StdoutContent()); out != "" {
				log.Debug("command output", "stdout", out)
			}
			if !p.Success() {
				return nil, fmt.Errorf("command %q exited with status %d: %s", line, p.ExitStatus(), strings.TrimSpace(p.StderrContent()))
			}
			if target == "" {
				return []*element.Element{e}, nil
			}
			out, err := element.CreateFromPath(target)
			if err != nil {
				return nil, err
			}
			return []*element.Element{out}, nil
		},
	}
}
