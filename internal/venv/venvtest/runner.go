// Package venvtest provides a scripted venv.Runner for tests that must not
// start real interpreters.
package venvtest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"launchpad/internal/venv"
)

// Call records one command.
type Call struct {
	Stream bool
	Dir    string
	Name   string
	Args   []string
}

func (c Call) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// IsVenvCreate reports whether c is "<python> -m venv ...".
func (c Call) IsVenvCreate() bool {
	return len(c.Args) >= 2 && c.Args[0] == "-m" && c.Args[1] == "venv"
}

// PipCommand returns the pip subcommand (install, download, freeze,
// inspect), or "" when c is not a pip call.
func (c Call) PipCommand() string {
	if len(c.Args) < 2 || c.Args[0] != "-m" || c.Args[1] != "pip" {
		return ""
	}
	for _, a := range c.Args[2:] {
		if !strings.HasPrefix(a, "-") {
			return a
		}
	}
	return ""
}

// Module returns the module run with "-m", e.g. "pip" or "safety".
func (c Call) Module() string {
	if len(c.Args) >= 2 && c.Args[0] == "-m" {
		return c.Args[1]
	}
	return ""
}

// Flag returns the value following flag, or "".
func (c Call) Flag(flag string) string {
	for i := 0; i+1 < len(c.Args); i++ {
		if c.Args[i] == flag {
			return c.Args[i+1]
		}
	}
	return ""
}

// Has reports whether arg appears in c.Args.
func (c Call) Has(arg string) bool {
	for _, a := range c.Args {
		if a == arg {
			return true
		}
	}
	return false
}

// Last returns the final argument.
func (c Call) Last() string {
	if len(c.Args) == 0 {
		return ""
	}
	return c.Args[len(c.Args)-1]
}

// Runner answers every command through Handle. Environment creation
// ("-m venv <dir>") also creates <dir>/bin so teardown has something to
// remove. A nil Handle succeeds with no output.
type Runner struct {
	Handle func(c Call) (string, error)

	mu    sync.Mutex
	calls []Call
}

func (r *Runner) Output(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	out, err := r.do(ctx, Call{Dir: dir, Name: name, Args: append([]string(nil), args...)})
	return []byte(out), err
}

func (r *Runner) Stream(ctx context.Context, dir, name string, args ...string) error {
	_, err := r.do(ctx, Call{Stream: true, Dir: dir, Name: name, Args: append([]string(nil), args...)})
	return err
}

func (r *Runner) do(ctx context.Context, c Call) (string, error) {
	r.mu.Lock()
	r.calls = append(r.calls, c)
	r.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if c.IsVenvCreate() {
		if err := os.MkdirAll(filepath.Join(c.Last(), "bin"), 0o755); err != nil {
			return "", err
		}
	}
	if r.Handle == nil {
		return "", nil
	}
	return r.Handle(c)
}

// Calls returns a copy of the recorded calls.
func (r *Runner) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

// Fail builds the error a failed command produces.
func Fail(c Call, output string) error {
	return &venv.EnvironmentError{
		Command: append([]string{c.Name}, c.Args...),
		Output:  output,
		Err:     errors.New("exit status 1"),
	}
}

var _ venv.Runner = (*Runner)(nil)
