// Package process runs subprocesses while streaming their output.
//
// Stdout and stderr are each read by a goroutine that forwards line-sized
// chunks over a channel. Execute drains both channels, writing every chunk to
// the configured sink and to an in-memory buffer, and waits for the process
// once both readers are done.
package process

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"regexp"
	"runtime"
	"sort"
	"strings"
	"time"
)

// Options configures a Process.
type Options struct {
	// Shell runs the sanitized command line through the platform shell.
	Shell bool
	// Env holds KEY=VALUE pairs added to the current environment.
	Env []string
	// Dir is the working directory.
	Dir string
	// Stdout and Stderr receive output as it is produced. Nil discards.
	Stdout io.Writer
	Stderr io.Writer
}

// Process is a single subprocess execution.
type Process struct {
	args []string
	opts Options

	exitStatus int
	stdout     strings.Builder
	stderr     strings.Builder
	duration   time.Duration
	executed   bool
}

// New returns a process for args. args[0] is the command.
func New(args []string, opts Options) *Process {
	return &Process{args: append([]string(nil), args...), opts: opts, exitStatus: -1}
}

var plainArgRe = regexp.MustCompile(`^[\w_-]*$`)

// SanitizeArgs quotes arguments for a shell command line. The command is
// passed verbatim, as is every argument made of word characters and dashes;
// anything else is double-quoted with inner quotes escaped.
func SanitizeArgs(args []string) []string {
	out := make([]string, len(args))
	for i, arg := range args {
		if i == 0 || plainArgRe.MatchString(arg) {
			out[i] = arg
			continue
		}
		out[i] = `"` + strings.ReplaceAll(arg, `"`, `\"`) + `"`
	}
	return out
}

func (p *Process) command(ctx context.Context) *exec.Cmd {
	var cmd *exec.Cmd
	switch {
	case p.opts.Shell && runtime.GOOS == "windows":
		cmd = exec.CommandContext(ctx, "cmd.exe", "/C", strings.Join(SanitizeArgs(p.args), " "))
	case p.opts.Shell:
		cmd = exec.CommandContext(ctx, "/bin/sh", "-c", strings.Join(SanitizeArgs(p.args), " "))
	default:
		cmd = exec.CommandContext(ctx, p.args[0], p.args[1:]...)
	}
	if len(p.opts.Env) > 0 {
		cmd.Env = append(os.Environ(), p.opts.Env...)
	}
	cmd.Dir = p.opts.Dir
	return cmd
}

// Execute runs the process to completion. A non-zero exit is not an error;
// inspect ExitStatus or Success. Errors are returned when the process cannot
// be started.
func (p *Process) Execute(ctx context.Context) error {
	if len(p.args) == 0 {
		return errors.New("execute: empty command")
	}
	start := time.Now()
	cmd := p.command(ctx)

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("execute command %q: %w", p.args[0], err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("execute command %q: %w", p.args[0], err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("execute command %q: %w", p.args[0], err)
	}

	outc := make(chan string, 64)
	errc := make(chan string, 64)
	go pump(stdoutPipe, outc)
	go pump(stderrPipe, errc)

	for outc != nil || errc != nil {
		select {
		case chunk, ok := <-outc:
			if !ok {
				outc = nil
				continue
			}
			p.stdout.WriteString(chunk)
			if p.opts.Stdout != nil {
				io.WriteString(p.opts.Stdout, chunk)
			}
		case chunk, ok := <-errc:
			if !ok {
				errc = nil
				continue
			}
			p.stderr.WriteString(chunk)
			if p.opts.Stderr != nil {
				io.WriteString(p.opts.Stderr, chunk)
			}
		}
	}

	err = cmd.Wait()
	p.duration = time.Since(start)
	p.executed = true
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			p.exitStatus = exitErr.ExitCode()
			return nil
		}
		return fmt.Errorf("execute command %q: %w", p.args[0], err)
	}
	p.exitStatus = 0
	return nil
}

// pump forwards r line by line to ch and closes ch at EOF.
func pump(r io.Reader, ch chan<- string) {
	defer close(ch)
	br := bufio.NewReader(r)
	for {
		line, err := br.ReadString('\n')
		if line != "" {
			ch <- line
		}
		if err != nil {
			return
		}
	}
}

// Args returns the command and arguments.
func (p *Process) Args() []string { return append([]string(nil), p.args...) }

// ExitStatus returns the exit code, or -1 before the process has run.
func (p *Process) ExitStatus() int { return p.exitStatus }

// Success reports whether the process ran and exited with status zero.
func (p *Process) Success() bool { return p.executed && p.exitStatus == 0 }

// StdoutContent returns everything the process wrote to stdout.
func (p *Process) StdoutContent() string { return p.stdout.String() }

// StderrContent returns everything the process wrote to stderr.
func (p *Process) StderrContent() string { return p.stderr.String() }

// Duration returns the wall time of the execution.
func (p *Process) Duration() time.Duration { return p.duration }

// ExecutableEnv overrides the kombi executable spawned for subprocess work.
const ExecutableEnv = "KOMBI_EXECUTABLE"

// Executable returns the kombi executable used to run dispatched work.
func Executable() (string, error) {
	if exe := os.Getenv(ExecutableEnv); exe != "" {
		return exe, nil
	}
	return os.Executable()
}

// EnvList converts a variable map into sorted KEY=VALUE pairs.
func EnvList(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}
