package dispatcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"

	"github.com/ormasoftchile/kombi/pkg/ctxlog"
	"github.com/ormasoftchile/kombi/pkg/element"
	"github.com/ormasoftchile/kombi/pkg/jsonvalue"
	"github.com/ormasoftchile/kombi/pkg/procedure"
	"github.com/ormasoftchile/kombi/pkg/process"
	"github.com/ormasoftchile/kombi/pkg/reporter"
	"github.com/ormasoftchile/kombi/pkg/taskholder"
)

// Render farm options.
const (
	OptionBackend = "backend"
	OptionWorkDir = "workDir"
)

// Task metadata scopes read by the render farm dispatcher.
const (
	MetadataSplit      = "dispatch.split"
	MetadataSplitSize  = "dispatch.splitSize"
	MetadataChunkify   = "dispatch.chunkify"
	MetadataRenderFarm = "dispatch.renderFarm"
)

// Job is a unit of work submitted to a farm backend.
type Job struct {
	Name         string            `yaml:"name"`
	Label        string            `yaml:"label"`
	Task         string            `yaml:"task"`
	Dir          string            `yaml:"dir"`
	Payload      string            `yaml:"payload"`
	Output       string            `yaml:"output"`
	Command      []string          `yaml:"command"`
	Env          map[string]string `yaml:"env,omitempty"`
	Dependencies []string          `yaml:"dependencies,omitempty"`
	Elements     int               `yaml:"elements"`
	Settings     map[string]any    `yaml:"settings,omitempty"`
}

// Backend submits jobs to a farm and returns their IDs.
type Backend interface {
	Submit(ctx context.Context, job *Job) (string, error)
}

// BackendFactory creates a backend from the dispatcher options.
type BackendFactory func(options map[string]any) (Backend, error)

var (
	backendsMu sync.RWMutex
	backends   = map[string]BackendFactory{}
)

func init() {
	RegisterBackend("manifest", func(options map[string]any) (Backend, error) {
		return NewManifestBackend(procedure.ToString(options[OptionFarmDir])), nil
	})
}

// RegisterBackend adds a farm backend under name.
func RegisterBackend(name string, f BackendFactory) {
	backendsMu.Lock()
	defer backendsMu.Unlock()
	backends[name] = f
}

// BackendNames returns the registered farm backends, sorted.
func BackendNames() []string {
	backendsMu.RLock()
	defer backendsMu.RUnlock()
	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RenderFarm decomposes a holder tree into dependent farm jobs.
type RenderFarm struct {
	base
}

// NewRenderFarm returns a render farm dispatcher with default options.
func NewRenderFarm() *RenderFarm {
	return &RenderFarm{base: newBase("renderFarm", map[string]any{
		OptionBackend: "manifest",
		OptionWorkDir: "",
		OptionFarmDir: "",
	})}
}

type submitted struct {
	id     string
	output string
}

type farmRun struct {
	d       *RenderFarm
	backend Backend
	workDir string
	exe     string
	env     map[string]string
	label   string
	seq     int
	ids     []string
}

// Dispatch implements Dispatcher. The result lists the submitted job IDs.
func (d *RenderFarm) Dispatch(ctx context.Context, holder *taskholder.TaskHolder, elements []*element.Element) (*Result, error) {
	name := d.stringOption(OptionBackend)
	backendsMu.RLock()
	factory, ok := backends[name]
	backendsMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: farm backend %q", ErrNotFound, name)
	}
	backend, err := factory(d.options)
	if err != nil {
		return nil, fmt.Errorf("farm backend %s: %w", name, err)
	}

	exe, err := process.Executable()
	if err != nil {
		return nil, fmt.Errorf("farm dispatch: %w", err)
	}
	workDir := d.stringOption(OptionWorkDir)
	created := false
	if workDir == "" {
		if workDir, err = os.MkdirTemp(procedure.TempBase(), "kombi-farm-"); err != nil {
			return nil, fmt.Errorf("farm dispatch: %w", err)
		}
		created = true
	}

	f := &farmRun{
		d:       d,
		backend: backend,
		workDir: workDir,
		exe:     exe,
		env:     d.env(),
		label:   d.label(holder),
	}
	if err := f.submitRoot(ctx, holder, elements); err != nil {
		if created && len(f.ids) == 0 {
			os.RemoveAll(workDir)
		}
		return nil, err
	}
	d.announce(reporter.Writer(ctx))
	return &Result{JobIDs: f.ids}, nil
}

func (f *farmRun) submitRoot(ctx context.Context, holder *taskholder.TaskHolder, elements []*element.Element) error {
	if holder.Status() == taskholder.StatusIgnore {
		return nil
	}
	pairs, err := holder.Query(elements)
	if err != nil {
		return err
	}
	if len(pairs) == 0 && len(holder.ImportTemplates()) == 0 {
		ctxlog.FromContext(ctx).Debug("no elements matched", "dispatcher", f.d.typ, "node", holder.Task().Type())
		return nil
	}
	matched := make([]*element.Element, 0, len(pairs))
	for _, p := range pairs {
		matched = append(matched, p.Element)
	}

	var jobs []submitted
	for i, part := range partition(holder, matched) {
		node := jobHolder(holder)
		if i > 0 {
			node.SetImportTemplates(nil)
		}
		job, err := f.submit(ctx, node, part, nil)
		if err != nil {
			return err
		}
		jobs = append(jobs, job)
	}
	for _, child := range holder.Children() {
		if err := f.submitChild(ctx, child, jobs); err != nil {
			return err
		}
	}
	return nil
}

// submitChild submits the jobs of a rule whose inputs are the outputs of
// the parent jobs. A splittable rule gets one job per parent job, otherwise
// one job imports every parent output.
func (f *farmRun) submitChild(ctx context.Context, holder *taskholder.TaskHolder, parents []submitted) error {
	if holder.Status() == taskholder.StatusIgnore || len(parents) == 0 {
		return nil
	}
	deps := make([]string, 0, len(parents))
	for _, p := range parents {
		deps = append(deps, p.id)
	}

	var groups [][]string
	if splittable(holder) {
		for _, p := range parents {
			groups = append(groups, []string{p.output})
		}
	} else {
		var outputs []string
		for _, p := range parents {
			outputs = append(outputs, p.output)
		}
		groups = [][]string{outputs}
	}

	var jobs []submitted
	for _, imports := range groups {
		node := jobHolder(holder)
		for _, imp := range imports {
			node.AddImportTemplate(imp)
		}
		job, err := f.submit(ctx, node, nil, deps)
		if err != nil {
			return err
		}
		jobs = append(jobs, job)
	}
	for _, child := range holder.Children() {
		if err := f.submitChild(ctx, child, jobs); err != nil {
			return err
		}
	}
	return nil
}

func (f *farmRun) submit(ctx context.Context, node *taskholder.TaskHolder, elements []*element.Element, deps []string) (submitted, error) {
	f.seq++
	t := node.Task()
	dir := filepath.Join(f.workDir, fmt.Sprintf("%03d_%s", f.seq, t.Type()))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return submitted{}, fmt.Errorf("farm dispatch: %w", err)
	}
	payload := &Payload{
		TaskHolder: node,
		Elements:   elements,
		OutputPath: filepath.Join(dir, "output.json"),
	}
	payloadPath := filepath.Join(dir, "payload.json")
	if err := payload.Write(payloadPath); err != nil {
		return submitted{}, err
	}

	settings := map[string]any{}
	if raw, ok := t.MetadataOr(MetadataRenderFarm, nil).(map[string]any); ok {
		for k, v := range raw {
			settings[k], _ = jsonvalue.Copy(v)
		}
	}
	job := &Job{
		Name:         fmt.Sprintf("%s %03d", f.label, f.seq),
		Label:        f.label,
		Task:         t.Type(),
		Dir:          dir,
		Payload:      payloadPath,
		Output:       payload.OutputPath,
		Command:      []string{f.exe, "execute", payloadPath},
		Env:          f.env,
		Dependencies: append([]string(nil), deps...),
		Elements:     len(elements),
		Settings:     settings,
	}
	id, err := f.backend.Submit(ctx, job)
	if err != nil {
		return submitted{}, fmt.Errorf("submitting %s: %w", job.Name, err)
	}
	if id == "" {
		return submitted{}, fmt.Errorf("%w: %s", ErrJobIDMissing, job.Name)
	}
	ctxlog.FromContext(ctx).Debug("submitted job", "dispatcher", f.d.typ, "job", id, "node", t.Type(), "dependencies", len(deps))
	f.ids = append(f.ids, id)
	return submitted{id: id, output: payload.OutputPath}, nil
}

// jobHolder returns a copy of holder with its children detached and regroup
// cleared: both are expressed as separate jobs.
func jobHolder(holder *taskholder.TaskHolder) *taskholder.TaskHolder {
	node := holder.Clone()
	node.ClearChildren()
	node.SetRegroupTag("")
	return node
}

func splittable(holder *taskholder.TaskHolder) bool {
	t := holder.Task()
	return holder.RegroupTag() != "" ||
		procedure.ToBool(t.MetadataOr(MetadataSplit, false)) ||
		toInt(t.MetadataOr(MetadataSplitSize, 0)) > 0 ||
		procedure.ToBool(t.MetadataOr(MetadataChunkify, false))
}

// partition splits the inputs of a rule into per-job chunks.
func partition(holder *taskholder.TaskHolder, elements []*element.Element) [][]*element.Element {
	t := holder.Task()
	switch {
	case holder.RegroupTag() != "":
		return element.Group(elements, holder.RegroupTag())
	case procedure.ToBool(t.MetadataOr(MetadataSplit, false)):
		out := make([][]*element.Element, 0, len(elements))
		for _, e := range elements {
			out = append(out, []*element.Element{e})
		}
		return out
	case toInt(t.MetadataOr(MetadataSplitSize, 0)) > 0:
		size := toInt(t.MetadataOr(MetadataSplitSize, 0))
		var out [][]*element.Element
		for start := 0; start < len(elements); start += size {
			end := min(start+size, len(elements))
			out = append(out, elements[start:end])
		}
		return out
	case procedure.ToBool(t.MetadataOr(MetadataChunkify, false)):
		return element.Group(elements, element.DefaultGroupTag)
	default:
		return [][]*element.Element{elements}
	}
}

func toInt(v any) int {
	switch val := v.(type) {
	case int:
		return val
	case float64:
		return int(val)
	case string:
		n, _ := strconv.Atoi(val)
		return n
	}
	return 0
}
