package process

import (
	"bytes"
	"context"
	"runtime"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestSanitizeArgs(t *testing.T) {
	got := SanitizeArgs([]string{"my cmd", "plain-arg_1", "", "with space", `say "hi"`, "a/b"})
	want := []string{"my cmd", "plain-arg_1", "", `"with space"`, `"say \"hi\""`, `"a/b"`}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("SanitizeArgs mismatch (-want +got):\n%s", diff)
	}
}

func TestExecuteCapturesOutput(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses /bin/sh")
	}
	var out, errOut bytes.Buffer
	p := New([]string{"/bin/sh", "-c", `printf 'one\ntwo\n'; printf oops >&2; exit 3`}, Options{
		Stdout: &out,
		Stderr: &errOut,
	})

	if p.ExitStatus() != -1 || p.Success() {
		t.Error("process reports a result before running")
	}
	if err := p.Execute(context.Background()); err != nil {
		t.Fatal(err)
	}
	if p.ExitStatus() != 3 || p.Success() {
		t.Errorf("exit status = %d", p.ExitStatus())
	}
	if p.StdoutContent() != "one\ntwo\n" || out.String() != "one\ntwo\n" {
		t.Errorf("stdout = %q / sink %q", p.StdoutContent(), out.String())
	}
	if p.StderrContent() != "oops" || errOut.String() != "oops" {
		t.Errorf("stderr = %q / sink %q", p.StderrContent(), errOut.String())
	}
}

func TestExecuteShellAndEnv(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses /bin/sh")
	}
	p := New([]string{"echo", "$KOMBI_PROCESS_TEST", "with space"}, Options{
		Shell: true,
		Env:   []string{"KOMBI_PROCESS_TEST=hello"},
	})
	if err := p.Execute(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !p.Success() {
		t.Fatalf("exit status %d: %s", p.ExitStatus(), p.StderrContent())
	}
	if got := strings.TrimSpace(p.StdoutContent()); got != "hello with space" {
		t.Errorf("stdout = %q", got)
	}
}

func TestExecuteMissingCommand(t *testing.T) {
	p := New([]string{"kombi-definitely-not-a-command"}, Options{})
	if err := p.Execute(context.Background()); err == nil {
		t.Error("expected spawn error")
	}
	if err := New(nil, Options{}).Execute(context.Background()); err == nil {
		t.Error("expected error for empty command")
	}
}
