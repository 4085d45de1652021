package taskwrapper

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/ormasoftchile/kombi/pkg/element"
	"github.com/ormasoftchile/kombi/pkg/process"
	"github.com/ormasoftchile/kombi/pkg/task"
)

func init() {
	task.MustRegister(&task.Definition{Name: "testWrapped"})
}

func newTask(t *testing.T) *task.Task {
	t.Helper()
	tk, err := task.Create("testWrapped")
	if err != nil {
		t.Fatal(err)
	}
	e, err := element.New(element.TypeFile, "/in/a.exr", nil)
	if err != nil {
		t.Fatal(err)
	}
	tk.Add(e, "/out/a.exr")
	return tk
}

func TestDefaultWrapper(t *testing.T) {
	w, err := Create("")
	if err != nil {
		t.Fatal(err)
	}
	outs, err := w.Run(context.Background(), newTask(t))
	if err != nil {
		t.Fatal(err)
	}
	if len(outs) != 1 || outs[0].FullPath() != "/out/a.exr" {
		t.Errorf("outputs = %v", outs)
	}
	if _, err := Create("nosuch"); err == nil {
		t.Error("expected error for unknown wrapper")
	}
}

func TestExecuteTaskFile(t *testing.T) {
	dir := t.TempDir()
	data, err := newTask(t).ToJSON()
	if err != nil {
		t.Fatal(err)
	}
	in := filepath.Join(dir, "task.json")
	out := filepath.Join(dir, "result.json")
	os.WriteFile(in, []byte(data), 0o644)

	if err := ExecuteTaskFile(context.Background(), in, out); err != nil {
		t.Fatal(err)
	}
	result, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	elems, err := element.UnmarshalElements(result)
	if err != nil {
		t.Fatal(err)
	}
	if len(elems) != 1 || elems[0].FullPath() != "/out/a.exr" {
		t.Errorf("result = %v", elems)
	}
}

// fakeKombi writes a script standing in for "kombi execute-task": it copies
// $KOMBI_TEST_RESULT to the --output path, or fails when it is unset.
func fakeKombi(t *testing.T) string {
	t.Helper()
	script := filepath.Join(t.TempDir(), "kombi")
	body := `#!/bin/sh
out=""
while [ $# -gt 0 ]; do
  case "$1" in
    --output) out="$2"; shift ;;
  esac
  shift
done
if [ -z "$KOMBI_TEST_RESULT" ]; then
  echo "no result configured" >&2
  exit 2
fi
cp "$KOMBI_TEST_RESULT" "$out"
`
	if err := os.WriteFile(script, []byte(body), 0o755); err != nil {
		t.Fatal(err)
	}
	return script
}

func TestSubprocessWrapper(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses a shell script")
	}
	t.Setenv(process.ExecutableEnv, fakeKombi(t))

	e, _ := element.New(element.TypeFile, "/farm/out.exr", nil)
	result, _ := element.MarshalElements([]*element.Element{e})
	resultPath := filepath.Join(t.TempDir(), "result.json")
	os.WriteFile(resultPath, result, 0o644)

	tk := newTask(t)
	tk.SetMetadata("wrapper.options.env", map[string]any{"KOMBI_TEST_RESULT": resultPath})

	w, _ := Create("subprocess")
	outs, err := w.Run(context.Background(), tk)
	if err != nil {
		t.Fatal(err)
	}
	if len(outs) != 1 || outs[0].FullPath() != "/farm/out.exr" {
		t.Errorf("outputs = %v", outs)
	}
}

func TestSubprocessWrapperFailure(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses a shell script")
	}
	t.Setenv(process.ExecutableEnv, fakeKombi(t))
	t.Setenv("KOMBI_TEST_RESULT", "")

	w, _ := Create("subprocess")
	_, err := w.Run(context.Background(), newTask(t))
	if err == nil || !strings.Contains(err.Error(), "no result configured") {
		t.Errorf("expected failure carrying stderr, got %v", err)
	}
}
