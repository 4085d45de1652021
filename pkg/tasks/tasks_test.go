package tasks

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/ormasoftchile/kombi/pkg/dispatcher"
	"github.com/ormasoftchile/kombi/pkg/element"
	"github.com/ormasoftchile/kombi/pkg/resource"
	"github.com/ormasoftchile/kombi/pkg/task"
	"github.com/ormasoftchile/kombi/pkg/taskholder"
)

func newTask(t *testing.T, name string) *task.Task {
	t.Helper()
	if err := resource.Require(Resource); err != nil {
		t.Fatal(err)
	}
	tk, err := task.Create(name)
	if err != nil {
		t.Fatal(err)
	}
	return tk
}

func fileElement(t *testing.T, path string) *element.Element {
	t.Helper()
	e, err := element.New(element.TypeFile, path, nil)
	if err != nil {
		t.Fatal(err)
	}
	return e
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func TestRegistered(t *testing.T) {
	newTask(t, "copy")
	for _, name := range []string{"copy", "remove", "createDirectory", "command", "modifyOutput", "passthrough"} {
		if !task.IsRegistered(name) {
			t.Errorf("%s not registered", name)
		}
	}
	if !resource.IsLoaded(Resource) {
		t.Error("tasks resource not marked loaded")
	}
}

func TestCopy(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "in", "a.exr")
	dst := filepath.Join(dir, "out", "nested", "a.exr")
	writeFile(t, src, "pixels")

	tk := newTask(t, "copy")
	tk.Add(fileElement(t, src), dst)
	outs, err := tk.Output(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(outs) != 1 || outs[0].FullPath() != dst {
		t.Fatalf("outputs = %v", outs)
	}
	if got := readFile(t, dst); got != "pixels" {
		t.Errorf("copied content = %q", got)
	}

	writeFile(t, src, "new pixels")
	if _, err := tk.Output(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := readFile(t, dst); got != "pixels" {
		t.Errorf("existing target overwritten: %q", got)
	}

	tk.SetOption("overwrite", "true")
	if _, err := tk.Output(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := readFile(t, dst); got != "new pixels" {
		t.Errorf("target not overwritten: %q", got)
	}
}

func TestCopyMissingSource(t *testing.T) {
	dir := t.TempDir()
	tk := newTask(t, "copy")
	tk.Add(fileElement(t, filepath.Join(dir, "missing.exr")), filepath.Join(dir, "out.exr"))
	if _, err := tk.Output(context.Background()); err == nil {
		t.Error("expected error for a missing source")
	}
}

func TestRemoveAndCreateDirectory(t *testing.T) {
	dir := t.TempDir()
	victim := filepath.Join(dir, "victim.tmp")
	writeFile(t, victim, "x")

	rm := newTask(t, "remove")
	rm.Add(fileElement(t, victim), "")
	if _, err := rm.Output(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(victim); !os.IsNotExist(err) {
		t.Errorf("file not removed: %v", err)
	}

	target := filepath.Join(dir, "renders", "v001")
	mk := newTask(t, "createDirectory")
	mk.Add(fileElement(t, filepath.Join(dir, "a.exr")), target)
	outs, err := mk.Output(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if info, err := os.Stat(target); err != nil || !info.IsDir() {
		t.Fatalf("directory not created: %v", err)
	}
	if len(outs) != 1 || outs[0].Type() != element.TypeDirectory {
		t.Errorf("outputs = %v", outs)
	}
}

func TestCommand(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses /bin/sh")
	}
	dir := t.TempDir()
	target := filepath.Join(dir, "listing.txt")

	tk := newTask(t, "command")
	tk.SetOption("command", "echo {baseName} $KOMBI_TEST_SUFFIX > {target}")
	tk.SetOption("env", map[string]any{"KOMBI_TEST_SUFFIX": "done"})
	tk.Add(fileElement(t, "/in/plate.exr"), target)

	outs, err := tk.Output(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(outs) != 1 || outs[0].FullPath() != target {
		t.Fatalf("outputs = %v", outs)
	}
	if got := strings.TrimSpace(readFile(t, target)); got != "plate done" {
		t.Errorf("command output = %q", got)
	}
}

func TestCommandDispatcherEnv(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses /bin/sh")
	}
	tk := newTask(t, "command")
	tk.SetOption("command", `test "$KOMBI_TEST_SHOW" = demo && test "$KOMBI_TEST_SHOT" = sh020`)
	tk.SetOption("env", map[string]any{"KOMBI_TEST_SHOT": "sh020"})
	h := taskholder.New(tk, "", "", "")

	d, err := dispatcher.Create("runtime")
	if err != nil {
		t.Fatal(err)
	}
	if err := d.SetOption(dispatcher.OptionEnv, map[string]any{"KOMBI_TEST_SHOW": "demo", "KOMBI_TEST_SHOT": "sh010"}); err != nil {
		t.Fatal(err)
	}
	res, err := d.Dispatch(context.Background(), h, []*element.Element{fileElement(t, "/in/plate.exr")})
	if err != nil {
		t.Fatalf("dispatcher env not visible to the command: %v", err)
	}
	if len(res.Elements) != 1 {
		t.Errorf("elements = %v", res.Elements)
	}
}

func TestCommandFailure(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses /bin/sh")
	}
	tk := newTask(t, "command")
	if _, err := tk.Output(context.Background()); !errors.Is(err, task.ErrValidation) {
		t.Errorf("expected ErrValidation for an empty command, got %v", err)
	}

	tk.SetOption("command", "echo broken >&2; exit 3")
	tk.Add(fileElement(t, "/in/plate.exr"), "")
	_, err := tk.Output(context.Background())
	if err == nil || !strings.Contains(err.Error(), "status 3") || !strings.Contains(err.Error(), "broken") {
		t.Errorf("error = %v", err)
	}
}

func TestModifyOutput(t *testing.T) {
	tk := newTask(t, "modifyOutput")
	tk.SetOption("vars", map[string]any{"shot": "{baseName}_v1", "frames": 24})
	tk.SetOption("contextVars", map[string]any{"job": "abc"})
	tk.SetOption("tags", map[string]any{"group": "{ext}"})
	in := fileElement(t, "/in/sh010.exr")
	tk.Add(in, "")

	outs, err := tk.Output(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(outs) != 1 {
		t.Fatalf("outputs = %v", outs)
	}
	out := outs[0]
	if v, _ := out.Var("shot"); v != "sh010_v1" {
		t.Errorf("shot = %v", v)
	}
	if v, _ := out.Var("frames"); v != 24 {
		t.Errorf("frames = %#v", v)
	}
	if v, _ := out.Var("job"); v != "abc" || !out.IsContextVar("job") {
		t.Errorf("job = %v, context %v", v, out.IsContextVar("job"))
	}
	if v, _ := out.Tag("group"); v != "exr" {
		t.Errorf("group tag = %v", v)
	}
	if in.HasVar("shot") {
		t.Error("input element mutated")
	}
}

func TestPassthrough(t *testing.T) {
	tk := newTask(t, "passthrough")
	tk.Add(fileElement(t, "/in/a.exr"), "")
	tk.Add(fileElement(t, "/in/b.exr"), "")
	outs, err := tk.Output(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(outs) != 2 || outs[0].Name() != "a.exr" || outs[1].Name() != "b.exr" {
		t.Errorf("outputs = %v", outs)
	}
}
