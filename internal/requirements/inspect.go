package requirements

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"launchpad/internal/confirm"
	"launchpad/internal/logging"
	"launchpad/internal/ux"
)

// ErrNeedsFreeze is returned by Inspect when the manifest has unpinned
// requirements and the operator asked to freeze it.
var ErrNeedsFreeze = errors.New("requirements need freezing")

const unpinnedAdvice = `It is highly recommended to deploy only version-specific (pinned)
requirements so that a deployment stays reproducible as packages on the
index change. Manage your dependency versions explicitly, or freeze them
in a clean environment with "launchpad freeze <config>".`

// Inspector checks a manifest before anything is installed from it.
type Inspector struct {
	Confirm  confirm.Confirmer
	Out      io.Writer
	Implicit ImplicitDeps
	// Plain disables styled output.
	Plain bool
	Log   *slog.Logger
}

// Inspect returns the manifest text at path after two checks:
//
//   - implicit dependencies missing from the manifest are appended after
//     confirmation (ErrDeclined otherwise);
//   - unpinned requirements lead to ErrNeedsFreeze when the operator wants
//     them frozen, ErrDeclined when not.
func (in *Inspector) Inspect(ctx context.Context, path string) (string, error) {
	log := logging.OrDiscard(in.Log)
	implicit := in.Implicit
	if implicit == nil {
		implicit = DefaultImplicitDeps
	}

	m, text, err := ReadManifest(path)
	if err != nil {
		return "", err
	}

	if missing := implicit.Missing(m); len(missing) > 0 {
		log.Info("implicit dependencies missing", "file", path, "packages", missing)
		fmt.Fprintf(in.Out, "\nYou need to add the packages %s to the requirements file.\n", strings.Join(missing, ", "))
		fmt.Fprintln(in.Out, "After adding them, the requirements will have to be re-frozen.")
		fmt.Fprintln(in.Out, "Add them to requirements now?")
		if err := confirm.OrDecline(ctx, in.Confirm, "(Type 'y' to add, Enter to abort and do this yourself) "); err != nil {
			return "", err
		}
		if text, err = appendImplicit(path, text, missing); err != nil {
			return "", err
		}
		m = ParseManifest(text)
	}

	if unpinned := m.Unpinned(); len(unpinned) > 0 {
		log.Warn("unpinned requirements", "file", path, "count", len(unpinned))
		ux.WarningBox(in.Out, in.Plain, "Not all requirements specify versions",
			ux.Bullets(unpinned)+"\n\n"+unpinnedAdvice)
		fmt.Fprintln(in.Out, "I can freeze the requirements for you now. Do you want me to do that?")
		if err := confirm.OrDecline(ctx, in.Confirm, "(Type 'y' to freeze, Enter to abort and solve the problem yourself) "); err != nil {
			return "", err
		}
		return "", ErrNeedsFreeze
	}
	return text, nil
}

// appendImplicit adds the missing packages at the end of the manifest under
// a marker comment and returns the new text.
func appendImplicit(path, text string, missing []string) (string, error) {
	added := "\n# Added by build script:\n" + strings.Join(missing, "\n")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	if _, err := f.WriteString(added); err != nil {
		f.Close()
		return "", fmt.Errorf("append to %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", path, err)
	}
	return text + added, nil
}
