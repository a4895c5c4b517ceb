package venv

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
)

// Runner executes external programs. ExecRunner is the real implementation;
// tests substitute a scripted fake.
type Runner interface {
	// Output runs name in dir and returns its stdout. A failure is an
	// *EnvironmentError carrying stdout and stderr. An empty dir means the
	// current directory.
	Output(ctx context.Context, dir, name string, args ...string) ([]byte, error)

	// Stream runs name in dir with its output forwarded to the operator.
	Stream(ctx context.Context, dir, name string, args ...string) error
}

// EnvironmentError reports an external command that could not be started or
// exited nonzero.
type EnvironmentError struct {
	Command []string
	Output  string
	Err     error
}

func (e *EnvironmentError) Error() string {
	msg := fmt.Sprintf("command failed: %s: %v", strings.Join(e.Command, " "), e.Err)
	if out := strings.TrimSpace(e.Output); out != "" {
		msg += "\n" + out
	}
	return msg
}

func (e *EnvironmentError) Unwrap() error { return e.Err }

// ExecRunner runs commands with os/exec. Stream sends output to Stdout and
// Stderr, which default to the process's own.
type ExecRunner struct {
	Stdout io.Writer
	Stderr io.Writer
}

func (r *ExecRunner) Output(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return stdout.Bytes(), &EnvironmentError{
			Command: append([]string{name}, args...),
			Output:  stdout.String() + stderr.String(),
			Err:     err,
		}
	}
	return stdout.Bytes(), nil
}

func (r *ExecRunner) Stream(ctx context.Context, dir, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.Stdout = r.Stdout
	if cmd.Stdout == nil {
		cmd.Stdout = os.Stdout
	}
	cmd.Stderr = r.Stderr
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}
	if err := cmd.Run(); err != nil {
		return &EnvironmentError{Command: append([]string{name}, args...), Err: err}
	}
	return nil
}

var _ Runner = (*ExecRunner)(nil)

// HostPythonVersion returns "<major>.<minor>" of the interpreter python.
func HostPythonVersion(ctx context.Context, r Runner, python string) (string, error) {
	out, err := r.Output(ctx, "", python, "-c", "import sys; print('%d.%d' % sys.version_info[:2])")
	if err != nil {
		return "", fmt.Errorf("query python version: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}
