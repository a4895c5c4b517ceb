// Package pipeline runs the packaging stages in order:
//
//	config -> python check -> requirements (-> freeze -> reload) ->
//	training -> vulnerability scan -> platform downloads -> zip
//
// Every stage blocks until its external command exits. Any error stops the
// run; confirm.ErrDeclined means the operator stopped it.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"launchpad/internal/config"
	"launchpad/internal/confirm"
	"launchpad/internal/fetch"
	"launchpad/internal/freeze"
	"launchpad/internal/logging"
	"launchpad/internal/packager"
	"launchpad/internal/requirements"
	"launchpad/internal/security"
	"launchpad/internal/training"
	"launchpad/internal/venv"
)

// DefaultHostPython is the interpreter used to create environments.
const DefaultHostPython = "python3"

// PythonMismatchError means the host interpreter is not the version the
// deployment targets. Models trained or frozen under it may not load on the
// target.
type PythonMismatchError struct {
	Host   string
	Target string
}

func (e *PythonMismatchError) Error() string {
	return fmt.Sprintf("your Python version %s does not match the target Python version %s", e.Host, e.Target)
}

// Options configures New.
type Options struct {
	// HostPython defaults to DefaultHostPython.
	HostPython string
	// Runner defaults to a venv.ExecRunner writing to Out.
	Runner  venv.Runner
	Confirm confirm.Confirmer
	// Out receives operator guidance. Defaults to os.Stdout.
	Out io.Writer
	// Strict fails on requirements without a wheel instead of asking.
	Strict bool
	// Plain disables styled warnings.
	Plain bool
	Log   *slog.Logger
}

// Pipeline holds the stages of one configuration.
type Pipeline struct {
	opts      Options
	log       *slog.Logger
	inspector *requirements.Inspector
	freezer   *freeze.Freezer
	trigger   *training.Trigger
	checker   *security.Checker
	fetcher   *fetch.Fetcher
	packager  *packager.Packager
}

// New wires the stages.
func New(opts Options) *Pipeline {
	if opts.HostPython == "" {
		opts.HostPython = DefaultHostPython
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.Runner == nil {
		opts.Runner = &venv.ExecRunner{Stdout: opts.Out}
	}
	if opts.Confirm == nil {
		opts.Confirm = confirm.New(confirm.Interactive, os.Stdin, opts.Out)
	}
	log := logging.OrDiscard(opts.Log)
	envs := venv.Manager{HostPython: opts.HostPython, Runner: opts.Runner, Log: log}
	return &Pipeline{
		opts: opts,
		log:  log,
		inspector: &requirements.Inspector{
			Confirm: opts.Confirm, Out: opts.Out, Plain: opts.Plain, Log: log,
		},
		freezer: &freeze.Freezer{
			Envs: envs, Runner: opts.Runner, HostPython: opts.HostPython,
			Confirm: opts.Confirm, Out: opts.Out, Log: log,
		},
		trigger:  &training.Trigger{Envs: envs, Confirm: opts.Confirm, Out: opts.Out, Log: log},
		checker:  &security.Checker{Envs: envs, Out: opts.Out, Log: log},
		fetcher:  &fetch.Fetcher{Envs: envs, Confirm: opts.Confirm, Out: opts.Out, Strict: opts.Strict, Plain: opts.Plain, Log: log},
		packager: &packager.Packager{Out: opts.Out, Log: log},
	}
}

// Run builds the artifact for the config at cfgPath and returns its path.
func (p *Pipeline) Run(ctx context.Context, cfgPath string) (string, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return "", err
	}
	p.log.Info("loaded config", "path", cfg.Path, "api", cfg.API.Name, "version", cfg.API.Version)

	if err := p.checkPython(ctx, cfg); err != nil {
		return "", err
	}

	cfg, reqText, err := p.inspect(ctx, cfg)
	if err != nil {
		return "", err
	}
	if err := p.trigger.MaybeTrain(ctx, cfg); err != nil {
		return "", err
	}
	if err := p.checker.Check(ctx, cfg); err != nil {
		return "", err
	}
	if _, err := p.fetcher.Fetch(ctx, cfg); err != nil {
		return "", err
	}

	spec, err := packager.SpecFor(cfg, reqText)
	if err != nil {
		return "", err
	}
	path, err := p.packager.Package(cfg.Dir(), spec)
	if err != nil {
		return "", err
	}
	fmt.Fprintf(p.opts.Out, "\nDone. Build artifacts can be found in the '%s' subdirectory.\n", packager.BuildDir)
	return path, nil
}

// Freeze only freezes the manifest of the config at cfgPath.
func (p *Pipeline) Freeze(ctx context.Context, cfgPath string) error {
	ok, err := p.freezer.Freeze(ctx, cfgPath)
	if err != nil {
		return err
	}
	if !ok {
		p.updateConfigGuidance()
	}
	return nil
}

func (p *Pipeline) checkPython(ctx context.Context, cfg *config.File) error {
	host, err := venv.HostPythonVersion(ctx, p.opts.Runner, p.opts.HostPython)
	if err != nil {
		return err
	}
	target := cfg.Deploy.Requirements.Python
	if host != target {
		return &PythonMismatchError{Host: host, Target: target}
	}
	return nil
}

// inspect checks the manifest, freezing it and reloading the config
// when the operator asks for that.
func (p *Pipeline) inspect(ctx context.Context, cfg *config.File) (*config.File, string, error) {
	text, err := p.inspector.Inspect(ctx, cfg.Resolve(cfg.Deploy.Requirements.File))
	if !errors.Is(err, requirements.ErrNeedsFreeze) {
		return cfg, text, err
	}

	ok, err := p.freezer.Freeze(ctx, cfg.Path)
	if err != nil {
		return nil, "", err
	}
	if !ok {
		p.updateConfigGuidance()
		return nil, "", confirm.ErrDeclined
	}
	if cfg, err = config.Load(cfg.Path); err != nil {
		return nil, "", err
	}
	text, err = p.inspector.Inspect(ctx, cfg.Resolve(cfg.Deploy.Requirements.File))
	if errors.Is(err, requirements.ErrNeedsFreeze) {
		return nil, "", fmt.Errorf("%s still has unpinned requirements after freezing", cfg.Deploy.Requirements.File)
	}
	return cfg, text, err
}

func (p *Pipeline) updateConfigGuidance() {
	fmt.Fprintln(p.opts.Out, "\nPlease update your config file's deploy:requirements:file to point")
	fmt.Fprintln(p.opts.Out, "to the frozen requirements and run 'launchpad build <config>' again.")
}
