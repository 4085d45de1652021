package taskwrapper

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ormasoftchile/kombi/pkg/ctxlog"
	"github.com/ormasoftchile/kombi/pkg/element"
	"github.com/ormasoftchile/kombi/pkg/procedure"
	"github.com/ormasoftchile/kombi/pkg/process"
	"github.com/ormasoftchile/kombi/pkg/task"
)

// Subprocess runs the task through "kombi execute-task" in a child process.
// The environment of the child is extended with the "wrapper.options.env"
// metadata map.
type Subprocess struct{}

// Run implements Wrapper.
func (s *Subprocess) Run(ctx context.Context, t *task.Task) ([]*element.Element, error) {
	log := ctxlog.FromContext(ctx).With("task", t.Type(), "wrapper", "subprocess")

	data, err := t.ToJSON()
	if err != nil {
		return nil, err
	}
	dir, err := os.MkdirTemp(procedure.TempBase(), "kombi-task-")
	if err != nil {
		return nil, fmt.Errorf("subprocess wrapper: %w", err)
	}
	defer os.RemoveAll(dir)

	input := filepath.Join(dir, "task.json")
	output := filepath.Join(dir, "result.json")
	if err := os.WriteFile(input, []byte(data), 0o644); err != nil {
		return nil, fmt.Errorf("subprocess wrapper: %w", err)
	}

	exe, err := process.Executable()
	if err != nil {
		return nil, fmt.Errorf("subprocess wrapper: %w", err)
	}
	p := process.New([]string{exe, "execute-task", "--input", input, "--output", output}, process.Options{
		Env:    process.EnvList(t.WrapperEnv()),
		Stderr: os.Stderr,
	})
	log.Debug("spawning", "executable", exe)
	if err := p.Execute(ctx); err != nil {
		return nil, err
	}
	if !p.Success() {
		return nil, fmt.Errorf("task %s exited with status %d: %s", t.Type(), p.ExitStatus(), strings.TrimSpace(p.StderrContent()))
	}

	result, err := os.ReadFile(output)
	if err != nil {
		return nil, fmt.Errorf("task %s: reading result: %w", t.Type(), err)
	}
	return element.UnmarshalElements(result)
}
