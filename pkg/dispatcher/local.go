package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ormasoftchile/kombi/pkg/ctxlog"
	"github.com/ormasoftchile/kombi/pkg/element"
	"github.com/ormasoftchile/kombi/pkg/procedure"
	"github.com/ormasoftchile/kombi/pkg/process"
	"github.com/ormasoftchile/kombi/pkg/reporter"
	"github.com/ormasoftchile/kombi/pkg/taskholder"
)

// OptionAwaitExecution selects synchronous local dispatch.
const OptionAwaitExecution = "awaitExecution"

// LocalExecutionError reports a child kombi process that exited non-zero.
type LocalExecutionError struct {
	Label      string
	ExitStatus int
	Stdout     string
	Stderr     string
}

func (e *LocalExecutionError) Error() string {
	msg := fmt.Sprintf("local execution of %s exited with status %d", e.Label, e.ExitStatus)
	if out := strings.TrimSpace(e.Stdout); out != "" {
		msg += ": " + out
	}
	return msg
}

// Is makes errors.Is(err, ErrLocalExecution) true.
func (e *LocalExecutionError) Is(target error) bool { return target == ErrLocalExecution }

// Local runs the holder in a child "kombi execute" process.
type Local struct {
	base

	mu      sync.Mutex
	workers []*worker
	errs    []error
}

type worker struct {
	label string
	done  chan struct{}
	err   error
}

// NewLocal returns a local dispatcher with default options.
func NewLocal() *Local {
	return &Local{base: newBase("local", map[string]any{OptionAwaitExecution: true})}
}

// Dispatch implements Dispatcher. With awaitExecution the produced elements
// are returned; otherwise the process runs in the background and the result
// is empty.
func (d *Local) Dispatch(ctx context.Context, holder *taskholder.TaskHolder, elements []*element.Element) (*Result, error) {
	d.sweep()
	label := d.label(holder)
	log := ctxlog.FromContext(ctx).With("dispatcher", d.typ, "node", holder.Task().Type(), "label", label)

	dir, err := os.MkdirTemp(procedure.TempBase(), "kombi-dispatch-")
	if err != nil {
		return nil, fmt.Errorf("local dispatch: %w", err)
	}
	payload := &Payload{
		TaskHolder: holder,
		Elements:   elements,
		OutputPath: filepath.Join(dir, "result.json"),
	}
	payloadPath := filepath.Join(dir, "payload.json")
	if err := payload.Write(payloadPath); err != nil {
		os.RemoveAll(dir)
		return nil, err
	}
	exe, err := process.Executable()
	if err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("local dispatch: %w", err)
	}
	p := process.New([]string{exe, "execute", payloadPath}, process.Options{
		Env: process.EnvList(d.env()),
	})

	d.announce(reporter.Writer(ctx))
	if !d.boolOption(OptionAwaitExecution) {
		w := &worker{label: label, done: make(chan struct{})}
		d.mu.Lock()
		d.workers = append(d.workers, w)
		d.mu.Unlock()
		bg := context.WithoutCancel(ctx)
		go func() {
			defer close(w.done)
			defer os.RemoveAll(dir)
			w.err = run(bg, p, label)
			if w.err != nil {
				ctxlog.FromContext(bg).Error("background execution failed", "label", label, "error", w.err)
			}
		}()
		log.Debug("dispatched in background", "payload", payloadPath)
		return &Result{}, nil
	}

	defer os.RemoveAll(dir)
	log.Debug("executing", "payload", payloadPath)
	if err := run(ctx, p, label); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(payload.OutputPath)
	if err != nil {
		return nil, fmt.Errorf("local dispatch: reading result: %w", err)
	}
	out, err := element.UnmarshalElements(data)
	if err != nil {
		return nil, err
	}
	return &Result{Elements: out}, nil
}

func run(ctx context.Context, p *process.Process, label string) error {
	if err := p.Execute(ctx); err != nil {
		return fmt.Errorf("local dispatch of %s: %w", label, err)
	}
	if !p.Success() {
		return &LocalExecutionError{
			Label:      label,
			ExitStatus: p.ExitStatus(),
			Stdout:     p.StdoutContent(),
			Stderr:     p.StderrContent(),
		}
	}
	return nil
}

// sweep drops finished background workers, keeping their errors for Wait.
func (d *Local) sweep() {
	d.mu.Lock()
	defer d.mu.Unlock()
	running := d.workers[:0]
	for _, w := range d.workers {
		select {
		case <-w.done:
			if w.err != nil {
				d.errs = append(d.errs, w.err)
			}
		default:
			running = append(running, w)
		}
	}
	d.workers = running
}

// Running returns the number of background executions not yet finished.
func (d *Local) Running() int {
	d.sweep()
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.workers)
}

// Wait blocks until every background execution finished and returns their
// joined errors.
func (d *Local) Wait() error {
	d.mu.Lock()
	workers := append([]*worker(nil), d.workers...)
	d.mu.Unlock()
	for _, w := range workers {
		<-w.done
	}
	d.sweep()
	d.mu.Lock()
	defer d.mu.Unlock()
	err := errors.Join(d.errs...)
	d.errs = nil
	return err
}
