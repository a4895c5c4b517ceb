// Package venv manages the throwaway Python environment used for installs,
// training, freezing and vulnerability scanning.
//
// An environment lives in a single directory that is created fresh for each
// logical operation and removed afterwards, whatever the outcome:
//
//	<config-dir>/.venv_temp_deploy/
//	    bin/python        # Scripts\python.exe on Windows
package venv

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"launchpad/internal/logging"
)

// DirName is the environment directory created next to the config file.
const DirName = ".venv_temp_deploy"

// removeAttempts bounds how often teardown retries a directory that
// reappears or cannot be removed yet.
const removeAttempts = 5

// Network holds the package index options passed to every pip call that
// talks to an index.
type Network struct {
	IndexURL     string
	TrustedHosts []string
}

func (n Network) args() []string {
	var args []string
	if n.IndexURL != "" {
		args = append(args, "--index-url", n.IndexURL)
	}
	for _, h := range n.TrustedHosts {
		args = append(args, "--trusted-host", h)
	}
	return args
}

// Manager creates environments at Dir using the host interpreter. Every
// command run for an environment starts in WorkDir.
type Manager struct {
	Dir        string
	WorkDir    string
	HostPython string
	Runner     Runner
	Log        *slog.Logger
}

// At returns a copy of m whose environment lives in DirName under base and
// whose commands run in base.
func (m Manager) At(base string) *Manager {
	m.Dir = filepath.Join(base, DirName)
	m.WorkDir = base
	return &m
}

// Acquire creates a fresh environment, passes it to fn and removes the
// directory afterwards. Teardown runs when fn fails, panics or the context
// is cancelled; a teardown failure is reported only if fn succeeded.
func (m *Manager) Acquire(ctx context.Context, net Network, fn func(*Env) error) (err error) {
	log := logging.OrDiscard(m.Log)
	if err := removeDir(m.Dir); err != nil {
		return fmt.Errorf("clear stale environment: %w", err)
	}
	log.Info("creating temporary environment", "dir", m.Dir)
	defer func() {
		log.Info("removing temporary environment", "dir", m.Dir)
		if rerr := removeDir(m.Dir); rerr != nil && err == nil {
			err = fmt.Errorf("remove environment: %w", rerr)
		}
	}()
	if _, err := m.Runner.Output(ctx, m.WorkDir, m.HostPython, "-m", "venv", "--clear", m.Dir); err != nil {
		return fmt.Errorf("create environment: %w", err)
	}
	return fn(&Env{dir: m.Dir, workDir: m.WorkDir, net: net, runner: m.Runner, log: log})
}

// Env is a live environment handle. It is only valid inside Acquire.
type Env struct {
	dir     string
	workDir string
	net     Network
	runner  Runner
	log     *slog.Logger
}

// Python is the environment's interpreter.
func (e *Env) Python() string {
	return InterpreterPath(e.dir)
}

// Pip runs "python -m pip <args>" with the index options appended and
// returns pip's stdout.
func (e *Env) Pip(ctx context.Context, args ...string) (string, error) {
	full := append(append([]string{}, args...), e.net.args()...)
	return e.pip(ctx, full)
}

// PipLocal runs pip without index options, for subcommands such as freeze
// that reject them.
func (e *Env) PipLocal(ctx context.Context, args ...string) (string, error) {
	return e.pip(ctx, args)
}

func (e *Env) pip(ctx context.Context, args []string) (string, error) {
	full := append([]string{"-m", "pip", "--disable-pip-version-check"}, args...)
	e.log.Info("running pip", "cmd", e.Python()+" "+strings.Join(full, " "))
	out, err := e.runner.Output(ctx, e.workDir, e.Python(), full...)
	text := string(out)
	e.log.Debug("pip output", "output", text)
	return text, err
}

// InstallRequirements installs (or upgrades to) everything the manifest at
// path lists.
func (e *Env) InstallRequirements(ctx context.Context, path string) error {
	e.log.Info("installing requirements", "file", path)
	if _, err := e.Pip(ctx, "install", "--upgrade", "-r", path); err != nil {
		return fmt.Errorf("install requirements from %s: %w", path, err)
	}
	return nil
}

// Run executes the environment interpreter with args in the working
// directory, forwarding output.
func (e *Env) Run(ctx context.Context, args ...string) error {
	e.log.Info("running", "cmd", e.Python()+" "+strings.Join(args, " "))
	return e.runner.Stream(ctx, e.workDir, e.Python(), args...)
}

// InterpreterPath returns the python executable inside environment dir.
func InterpreterPath(dir string) string {
	if runtime.GOOS == "windows" {
		return filepath.Join(dir, "Scripts", "python.exe")
	}
	return filepath.Join(dir, "bin", "python")
}

// removeDir deletes path and everything below it. A directory that is
// already gone is not an error.
func removeDir(path string) error {
	var lastErr error
	for attempt := 0; attempt < removeAttempts; attempt++ {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return nil
		}
		if err := os.RemoveAll(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			lastErr = err
		}
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return nil
		}
		time.Sleep(time.Duration(attempt+1) * 50 * time.Millisecond)
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("%s still exists", path)
	}
	return lastErr
}
