// Package freeze pins a manifest to the exact versions a clean install
// resolves to.
package freeze

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"launchpad/internal/config"
	"launchpad/internal/confirm"
	"launchpad/internal/logging"
	"launchpad/internal/requirements"
	"launchpad/internal/venv"
)

// Freezer installs the configured manifest into a fresh environment and
// writes "pip freeze --all" of that environment next to it, annotated with
// which installed package pulled in each line.
type Freezer struct {
	// Envs is the template for the temporary environment; its Dir is
	// replaced by one next to the config file.
	Envs venv.Manager
	// Runner and HostPython are used to read the host interpreter's
	// installed packages for the provenance comments.
	Runner     venv.Runner
	HostPython string
	Confirm    confirm.Confirmer
	Out        io.Writer
	Log        *slog.Logger
}

// Freeze freezes the manifest named by the config at cfgPath. It reports
// whether the config now refers to the frozen manifest, either because it
// already did or because the operator let Freeze rewrite it. A false result
// with a nil error means the operator chose to update the config by hand.
func (f *Freezer) Freeze(ctx context.Context, cfgPath string) (bool, error) {
	log := logging.OrDiscard(f.Log)
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return false, err
	}
	req := cfg.Deploy.Requirements
	oldRel := req.File
	newRel := requirements.FrozenPath(oldRel)
	manifest := cfg.Resolve(oldRel)
	frozen := cfg.Resolve(newRel)
	net := venv.Network{IndexURL: req.IndexURL, TrustedHosts: req.TrustedHosts}

	var pinned string
	err = f.Envs.At(cfg.Dir()).Acquire(ctx, net, func(env *venv.Env) error {
		if err := env.InstallRequirements(ctx, manifest); err != nil {
			return err
		}
		out, err := env.PipLocal(ctx, "freeze", "--all")
		if err != nil {
			return fmt.Errorf("freeze requirements: %w", err)
		}
		pinned = out
		return nil
	})
	if err != nil {
		return false, err
	}

	graph, err := requirements.LoadInverseGraph(ctx, f.Runner, f.HostPython)
	if err != nil {
		log.Warn("writing frozen requirements without provenance comments", "err", err)
		graph = requirements.InverseGraph{}
	}
	if err := writeFrozen(frozen, pinned, graph); err != nil {
		return false, err
	}
	log.Info("froze requirements", "from", manifest, "to", frozen)
	fmt.Fprintf(f.Out, "Froze the requirements %s into %s\n", oldRel, newRel)

	if newRel == oldRel {
		return true, nil
	}

	fmt.Fprintf(f.Out, "\nI can modify the config %s for you to include %s instead of %s\n", cfg.Path, newRel, oldRel)
	ok, err := f.Confirm.Confirm(ctx, "(Type 'y' to update the config file now, press Enter to handle this manually later) ")
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	backup, err := config.RewriteRequirementsFile(cfg.Path, cfg.Text, oldRel, newRel)
	if err != nil {
		return false, err
	}
	fmt.Fprintf(f.Out, "\nFroze the requirements %s into %s\n", oldRel, newRel)
	fmt.Fprintf(f.Out, "and modified the config file %s to include them.\n", cfg.Path)
	fmt.Fprintf(f.Out, "The previous config file has been backed up to %s\n", backup)
	return true, nil
}

// writeFrozen writes one annotated line per line of pip freeze output.
func writeFrozen(path, freezeOutput string, graph requirements.InverseGraph) error {
	var b strings.Builder
	for _, line := range strings.Split(strings.ReplaceAll(freezeOutput, "\r\n", "\n"), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		b.WriteString(graph.Annotate(line))
		b.WriteByte('\n')
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write frozen requirements: %w", err)
	}
	return nil
}
