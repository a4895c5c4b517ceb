// Package fetch downloads the dependencies of a deployment for its target
// platform.
//
// Each requirement is tried against the configured platform tags in order.
// The first tag that yields a wheel wins and any source distributions
// fetched for earlier tags are deleted. A requirement for which no tag
// yields a wheel keeps its source distributions and is reported as degraded:
// the target has to build it from source.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"sort"
	"strings"

	"launchpad/internal/config"
	"launchpad/internal/confirm"
	"launchpad/internal/logging"
	"launchpad/internal/requirements"
	"launchpad/internal/ux"
	"launchpad/internal/venv"
)

// DegradedError is returned in strict mode when some requirements are only
// available as source distributions.
type DegradedError struct {
	Requirements []string
}

func (e *DegradedError) Error() string {
	return fmt.Sprintf("no wheel for the target platforms: %s", strings.Join(e.Requirements, ", "))
}

// Download is the outcome for one requirement.
type Download struct {
	Requirement string
	// Tried lists the platform tags attempted, in order.
	Tried []string
	// Wheel is the binary that was kept, empty when degraded.
	Wheel string
	// Sources are the source distributions kept for a degraded
	// requirement.
	Sources []string
}

// Degraded reports whether no tag produced a wheel.
func (d Download) Degraded() bool {
	return d.Wheel == ""
}

// Result collects the downloads of one run.
type Result struct {
	Dir       string
	Downloads []Download
}

// Degraded returns the sorted, unique requirements without a wheel.
func (r *Result) Degraded() []string {
	seen := make(map[string]bool)
	var out []string
	for _, d := range r.Downloads {
		if d.Degraded() && !seen[d.Requirement] {
			seen[d.Requirement] = true
			out = append(out, d.Requirement)
		}
	}
	sort.Strings(out)
	return out
}

// Fetcher downloads into deploy.requirements.save_to.
type Fetcher struct {
	Envs    venv.Manager
	Confirm confirm.Confirmer
	Out     io.Writer
	// Strict turns degraded requirements into a *DegradedError instead of a
	// confirmation prompt. deploy.requirements.strict_binaries has the same
	// effect.
	Strict bool
	Plain  bool
	Log    *slog.Logger
}

// Fetch empties the save_to directory and downloads every requirement of
// the manifest named by cfg, without dependencies.
func (f *Fetcher) Fetch(ctx context.Context, cfg *config.File) (*Result, error) {
	log := logging.OrDiscard(f.Log)
	req := cfg.Deploy.Requirements
	m, _, err := requirements.ReadManifest(cfg.Resolve(req.File))
	if err != nil {
		return nil, err
	}
	res := &Result{Dir: cfg.Resolve(req.SaveTo)}
	net := venv.Network{IndexURL: req.IndexURL, TrustedHosts: req.TrustedHosts}

	fmt.Fprintf(f.Out, "Downloading requirements from %s for platform tags %s...\n", req.File, strings.Join(req.Platforms, ", "))
	err = f.Envs.At(cfg.Dir()).Acquire(ctx, net, func(env *venv.Env) error {
		if err := os.RemoveAll(res.Dir); err != nil {
			return fmt.Errorf("clear %s: %w", res.Dir, err)
		}
		if err := os.MkdirAll(res.Dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", res.Dir, err)
		}
		for _, line := range m.Requirements() {
			d, err := f.fetchOne(ctx, env, req, res.Dir, line.Spec())
			if err != nil {
				return err
			}
			log.Info("requirement downloaded", "requirement", d.Requirement, "wheel", d.Wheel, "sources", d.Sources)
			res.Downloads = append(res.Downloads, d)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	degraded := res.Degraded()
	if len(degraded) == 0 {
		return res, nil
	}
	if f.Strict || req.StrictBinaries {
		return nil, &DegradedError{Requirements: degraded}
	}
	ux.WarningBox(f.Out, f.Plain, "No matching wheels for the target platforms", ux.Bullets(degraded)+"\n\n"+degradedAdvice)
	if err := confirm.OrDecline(ctx, f.Confirm, "\nType 'y' to continue anyway (usually worth a try), Enter to abort. "); err != nil {
		return nil, err
	}
	return res, nil
}

const degradedAdvice = `Source packages (tar.gz/zip) were downloaded instead of wheels. Pure
Python packages install fine from source, but C-backed packages will be
compiled on the target, which usually lacks the build dependencies.
Check the package index for an earlier version that ships a wheel for
your target platform and pin that version instead.`

// fetchOne tries each platform tag for spec until one yields a wheel.
func (f *Fetcher) fetchOne(ctx context.Context, env *venv.Env, req config.Requirements, dir, spec string) (Download, error) {
	d := Download{Requirement: spec}
	for _, tag := range req.Platforms {
		d.Tried = append(d.Tried, tag)
		out, err := env.Pip(ctx, downloadArgs(req, tag, dir, spec)...)
		if err != nil {
			return d, fmt.Errorf("download %s for platform %s: %w", spec, tag, err)
		}
		file, err := ParseSavedFile(out)
		if err != nil {
			var amb *AmbiguousOutputError
			if errors.As(err, &amb) {
				amb.Requirement, amb.Platform = spec, tag
			}
			return d, err
		}
		if IsSourceDist(file) {
			fmt.Fprintf(f.Out, "Platform %s yielded source file %s\n", tag, file)
			if !slices.Contains(d.Sources, file) {
				d.Sources = append(d.Sources, file)
			}
			continue
		}
		fmt.Fprintf(f.Out, "Found a wheel for %s using platform tag %s\n", spec, tag)
		for _, src := range d.Sources {
			if err := os.Remove(src); err != nil && !errors.Is(err, os.ErrNotExist) {
				return d, fmt.Errorf("remove source distribution: %w", err)
			}
		}
		d.Sources = nil
		d.Wheel = file
		return d, nil
	}
	return d, nil
}

func downloadArgs(req config.Requirements, tag, dir, spec string) []string {
	args := []string{"download"}
	if req.ConstrainDownload {
		args = append(args, "--python-version", req.Python)
		if req.Implementation != "" {
			args = append(args, "--implementation", req.Implementation)
		}
	}
	return append(args, "--platform", tag, "--no-deps", "-d", dir, spec)
}
