package dispatcher

import (
	"context"

	"github.com/ormasoftchile/kombi/pkg/ctxlog"
	"github.com/ormasoftchile/kombi/pkg/element"
	"github.com/ormasoftchile/kombi/pkg/reporter"
	"github.com/ormasoftchile/kombi/pkg/taskholder"
)

// Runtime runs the holder on the calling goroutine.
type Runtime struct {
	base
}

// NewRuntime returns a runtime dispatcher with default options.
func NewRuntime() *Runtime {
	return &Runtime{base: newBase("runtime", nil)}
}

// Dispatch implements Dispatcher.
func (d *Runtime) Dispatch(ctx context.Context, holder *taskholder.TaskHolder, elements []*element.Element) (*Result, error) {
	log := ctxlog.FromContext(ctx).With("dispatcher", d.typ, "node", holder.Task().Type())

	h := holder.Clone()
	if err := applyEnv(h, d.env()); err != nil {
		return nil, err
	}
	d.announce(reporter.Writer(ctx))
	log.Debug("dispatching", "label", d.label(holder), "elements", len(elements))

	out, err := h.Run(ctx, elements, taskholder.RunOptions{})
	if err != nil {
		return nil, err
	}
	return &Result{Elements: out}, nil
}
