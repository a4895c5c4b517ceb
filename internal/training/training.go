// Package training retrains the model before packaging when the model store
// is part of the artifact.
package training

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"launchpad/internal/config"
	"launchpad/internal/confirm"
	"launchpad/internal/logging"
	"launchpad/internal/venv"
)

// StoreIncluded reports whether the model store directory is the directory
// part of one of the include patterns, i.e. whether packaging ships it.
func StoreIncluded(store string, include []string) bool {
	want := cleanRel(store)
	for _, p := range include {
		dir := path.Dir(filepath.ToSlash(p))
		if dir == "." || dir == "" {
			continue
		}
		if cleanRel(dir) == want {
			return true
		}
	}
	return false
}

func cleanRel(p string) string {
	return path.Clean(filepath.ToSlash(p))
}

// ModelExists reports whether storeDir holds a serialized model named
// "<id>.<ext>".
func ModelExists(storeDir, id string) (bool, error) {
	entries, err := os.ReadDir(storeDir)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read model store: %w", err)
	}
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), id+".") {
			return true, nil
		}
	}
	return false, nil
}

// Trigger offers to train the model in a temporary environment.
type Trigger struct {
	Envs    venv.Manager
	Confirm confirm.Confirmer
	Out     io.Writer
	Log     *slog.Logger
}

// MaybeTrain does nothing unless the model store is included in the
// artifact. Otherwise it tells the operator whether an existing model would
// be shipped and asks whether to (re)train now. Training installs the
// manifest and runs "python -m <train_module> -c <config> -t"; a nonzero
// exit is returned as an error. Declining is not an error.
func (t *Trigger) MaybeTrain(ctx context.Context, cfg *config.File) error {
	log := logging.OrDiscard(t.Log)
	if !StoreIncluded(cfg.ModelStore.Location, cfg.Deploy.Include) {
		log.Debug("model store not included, skipping training", "store", cfg.ModelStore.Location)
		return nil
	}
	id := cfg.ModelID()
	fmt.Fprintln(t.Out, "\nYour configuration's deploy:include setting specifies to deploy the model store.")
	exists, err := ModelExists(cfg.Resolve(cfg.ModelStore.Location), id)
	if err != nil {
		return err
	}
	if exists {
		fmt.Fprintf(t.Out, "If you don't re-train now, the existing model %s will be deployed.\n", id)
	} else {
		fmt.Fprintln(t.Out, "There is no trained model to deploy, so you either have to train the model now,")
		fmt.Fprintln(t.Out, "or model(s) will have to be trained in the target environment.")
	}
	ok, err := t.Confirm.Confirm(ctx, fmt.Sprintf("Type 'y' to (re)train model %s now, Enter to continue without training: ", id))
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	req := cfg.Deploy.Requirements
	net := venv.Network{IndexURL: req.IndexURL, TrustedHosts: req.TrustedHosts}
	return t.Envs.At(cfg.Dir()).Acquire(ctx, net, func(env *venv.Env) error {
		if err := env.InstallRequirements(ctx, cfg.Resolve(req.File)); err != nil {
			return err
		}
		log.Info("training model", "model", id, "module", cfg.TrainModule())
		if err := env.Run(ctx, "-m", cfg.TrainModule(), "-c", cfg.Path, "-t"); err != nil {
			return fmt.Errorf("train model %s: %w", id, err)
		}
		return nil
	})
}
