package task

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime/pprof"
	"strings"

	"github.com/ormasoftchile/kombi/pkg/ctxlog"
	"github.com/ormasoftchile/kombi/pkg/element"
	"github.com/ormasoftchile/kombi/pkg/reporter"
)

// Metadata scopes read by Output.
const (
	MetadataProfile  = "output.profile"
	MetadataReporter = "output.reporter"
)

// Output runs the task: validation, the task body, context variable
// propagation and the optional profiler and reporter.
func (t *Task) Output(ctx context.Context) ([]*element.Element, error) {
	log := ctxlog.FromContext(ctx).With("task", t.Type())

	if t.def.Validate != nil {
		if err := t.def.Validate(t); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrValidation, t.Type(), err)
		}
	}

	type carried struct {
		name  string
		value any
	}
	var carry []carried
	seen := map[string]bool{}
	for _, e := range t.Elements() {
		for _, name := range e.ContextVarNames() {
			if seen[name] {
				continue
			}
			seen[name] = true
			v, _ := e.LookupVar(name)
			carry = append(carry, carried{name, v})
		}
	}

	if profile, _ := t.MetadataOr(MetadataProfile, "").(string); profile != "" {
		stop, err := startProfile(profile)
		if err != nil {
			log.Warn("profiler disabled", "path", profile, "error", err)
		} else {
			defer stop()
		}
	}

	log.Debug("performing", "elements", t.targets.Len())
	perform := t.def.Perform
	if perform == nil {
		perform = defaultPerform
	}
	outputs, err := perform(ctx, t)
	if err != nil {
		return nil, fmt.Errorf("task %s: %w", t.Type(), err)
	}

	for _, out := range outputs {
		for _, c := range carry {
			if out.HasVar(c.name) {
				continue
			}
			if err := out.SetVar(c.name, c.value, true); err != nil {
				return nil, err
			}
		}
	}

	if name, _ := t.MetadataOr(MetadataReporter, "").(string); name != "" {
		r, err := reporter.Create(name, reporter.Writer(ctx))
		if err != nil {
			log.Warn("reporter unavailable", "reporter", name, "error", err)
		} else {
			for _, out := range outputs {
				r.Add(t.Type(), out)
			}
			if err := r.Display(); err != nil {
				return nil, fmt.Errorf("task %s: reporter %s: %w", t.Type(), name, err)
			}
		}
	}
	return outputs, nil
}

func defaultPerform(ctx context.Context, t *Task) ([]*element.Element, error) {
	process := t.def.ProcessElement
	if process == nil {
		process = DefaultProcessElement
	}
	var outputs []*element.Element
	seen := map[string]bool{}
	for _, e := range t.Elements() {
		produced, err := process(ctx, t, e)
		if err != nil {
			return nil, fmt.Errorf("processing %s: %w", e.FullPath(), err)
		}
		for _, out := range produced {
			if out == nil || seen[out.FullPath()] {
				continue
			}
			seen[out.FullPath()] = true
			outputs = append(outputs, out)
		}
	}
	return outputs, nil
}

// DefaultProcessElement returns a filesystem element for the target of e,
// or nothing when the target is empty.
func DefaultProcessElement(_ context.Context, t *Task, e *element.Element) ([]*element.Element, error) {
	target, err := t.Target(e)
	if err != nil || target == "" {
		return nil, err
	}
	out, err := element.CreateFromPath(target)
	if err != nil {
		return nil, err
	}
	return []*element.Element{out}, nil
}

// startProfile writes a CPU profile next to path, with the .pprof extension.
func startProfile(path string) (stop func(), err error) {
	dest := strings.TrimSuffix(path, filepath.Ext(path)) + ".pprof"
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return nil, err
	}
	f, err := os.Create(dest)
	if err != nil {
		return nil, err
	}
	if err := pprof.StartCPUProfile(f); err != nil {
		f.Close()
		return nil, err
	}
	return func() {
		pprof.StopCPUProfile()
		f.Close()
	}, nil
}
