// Package security scans a requirements manifest for known vulnerabilities
// with the "safety" tool.
package security

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"launchpad/internal/config"
	"launchpad/internal/logging"
	"launchpad/internal/venv"
)

// ScannerPackage is installed into the temporary environment to run the
// scan.
const ScannerPackage = "safety"

// SecurityCheckFailed means the scan could not vouch for the manifest:
// either vulnerabilities were found or the scanner could not run.
type SecurityCheckFailed struct {
	Manifest string
	Err      error
}

func (e *SecurityCheckFailed) Error() string {
	return fmt.Sprintf("vulnerability check of %s failed (vulnerabilities found or the scanner could not run, see output above): %v", e.Manifest, e.Err)
}

func (e *SecurityCheckFailed) Unwrap() error { return e.Err }

// Checker runs the scan in a temporary environment next to the config.
type Checker struct {
	Envs venv.Manager
	Out  io.Writer
	Log  *slog.Logger
}

// Check scans the manifest named by cfg. Any nonzero exit, including
// failing to install the scanner, is a *SecurityCheckFailed.
func (c *Checker) Check(ctx context.Context, cfg *config.File) error {
	log := logging.OrDiscard(c.Log)
	req := cfg.Deploy.Requirements
	manifest := cfg.Resolve(req.File)
	net := venv.Network{IndexURL: req.IndexURL, TrustedHosts: req.TrustedHosts}

	fmt.Fprintf(c.Out, "Checking dependencies file %s for vulnerabilities...\n", req.File)
	return c.Envs.At(cfg.Dir()).Acquire(ctx, net, func(env *venv.Env) error {
		if _, err := env.Pip(ctx, "install", "--upgrade", ScannerPackage); err != nil {
			return &SecurityCheckFailed{Manifest: req.File, Err: fmt.Errorf("install %s: %w", ScannerPackage, err)}
		}
		args := []string{"-m", ScannerPackage, "check", "-r", manifest, "--full-report"}
		if req.VulnerabilityDB != "" {
			args = append(args, "--db", database(cfg, req.VulnerabilityDB))
		}
		if err := env.Run(ctx, args...); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return &SecurityCheckFailed{Manifest: req.File, Err: err}
		}
		log.Info("no vulnerabilities found", "file", manifest)
		fmt.Fprintln(c.Out, "No vulnerabilities found.")
		return nil
	})
}

// database returns the --db value: mirror URLs unchanged, local paths
// resolved against the config directory.
func database(cfg *config.File, db string) string {
	if strings.Contains(db, "://") {
		return db
	}
	return cfg.Resolve(db)
}
