// Package packager writes the deployment artifact: a zip holding the
// project files matched by deploy.include plus the generated LAUNCHPAD_*
// entries the target needs to install and route the API.
//
// The archive is deterministic. Project files are stored in sorted order
// and every entry carries the same modification time, so two runs over the
// same inputs produce identical bytes.
package packager

import (
	"archive/zip"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"launchpad/internal/config"
	"launchpad/internal/logging"
)

// BuildDir holds the artifact. It is deleted and recreated on every run.
const BuildDir = "build"

// Generated entry names.
const (
	ConfigEntry        = "LAUNCHPAD_CFG.yml"
	RequirementsEntry  = "LAUNCHPAD_REQ.txt"
	PythonEntry        = "LAUNCHPAD_REQ_PYTHON.txt"
	RequiredFilesEntry = "LAUNCHPAD_REQ_FILES.txt"
	BaseURLEntry       = "LAUNCHPAD_BASE_URL.txt"
)

// entryTime is the modification time of every entry (the zip epoch).
var entryTime = time.Date(1980, time.January, 1, 0, 0, 0, 0, time.UTC)

// Spec is everything that goes into one artifact.
type Spec struct {
	// Name is the zip file name inside BuildDir.
	Name string
	// Files are slash-separated paths relative to the base directory.
	Files []string
	// Config and Requirements are stored verbatim.
	Config       string
	Requirements string
	// Python is the target version without the dot, e.g. "311".
	Python        string
	RequiredFiles []string
	BaseURL       string
}

// SpecFor collects the project files for cfg and fills in the generated
// entries. requirements is the manifest text that was inspected.
func SpecFor(cfg *config.File, requirements string) (*Spec, error) {
	files, err := Collect(cfg.Dir(), cfg.Deploy.Include, cfg.Deploy.Exclude)
	if err != nil {
		return nil, err
	}
	major, minor := cfg.PythonMajorMinor()
	return &Spec{
		Name:          cfg.ArtifactName(),
		Files:         files,
		Config:        cfg.Text,
		Requirements:  requirements,
		Python:        major + minor,
		RequiredFiles: cfg.Deploy.DeploymentRequires,
		BaseURL:       cfg.BaseURL(),
	}, nil
}

// generated returns the LAUNCHPAD_* entries in archive order.
func (s *Spec) generated() [][2]string {
	return [][2]string{
		{ConfigEntry, s.Config},
		{RequirementsEntry, s.Requirements},
		{PythonEntry, s.Python},
		{RequiredFilesEntry, strings.ReplaceAll(strings.Join(s.RequiredFiles, "\n"), `\`, "/")},
		{BaseURLEntry, s.BaseURL},
	}
}

// Packager writes artifacts below a base directory.
type Packager struct {
	Out io.Writer
	Log *slog.Logger
}

// Package recreates <base>/build and writes the artifact described by s
// into it, returning the zip path. A failed write leaves no zip behind.
func (p *Packager) Package(base string, s *Spec) (path string, err error) {
	log := logging.OrDiscard(p.Log)
	dir := filepath.Join(base, BuildDir)
	if err := os.RemoveAll(dir); err != nil {
		return "", fmt.Errorf("clear %s: %w", dir, err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", dir, err)
	}
	path = filepath.Join(dir, s.Name)
	fmt.Fprintf(p.Out, "Packaging zip file %s...\n", filepath.Join(BuildDir, s.Name))

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create artifact: %w", err)
	}
	defer func() {
		if err != nil {
			f.Close()
			os.Remove(path)
			path = ""
		}
	}()

	zw := zip.NewWriter(f)
	for _, rel := range s.Files {
		log.Debug("adding file", "file", rel)
		fmt.Fprintf(p.Out, "Adding file %s\n", rel)
		if err := addFile(zw, base, rel); err != nil {
			return "", err
		}
	}
	for _, e := range s.generated() {
		fmt.Fprintf(p.Out, "Adding file %s\n", e[0])
		if err := addEntry(zw, e[0], 0o644, strings.NewReader(e[1])); err != nil {
			return "", err
		}
	}
	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("finish artifact: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close artifact: %w", err)
	}
	log.Info("artifact written", "path", path, "files", len(s.Files))
	return path, nil
}

func addFile(zw *zip.Writer, base, rel string) error {
	src, err := os.Open(filepath.Join(base, filepath.FromSlash(rel)))
	if err != nil {
		return fmt.Errorf("add %s: %w", rel, err)
	}
	defer src.Close()
	info, err := src.Stat()
	if err != nil {
		return fmt.Errorf("add %s: %w", rel, err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("add %s: not a regular file", rel)
	}
	return addEntry(zw, rel, info.Mode().Perm(), src)
}

func addEntry(zw *zip.Writer, name string, mode os.FileMode, r io.Reader) error {
	h := &zip.FileHeader{Name: name, Method: zip.Deflate, Modified: entryTime}
	h.SetMode(mode)
	w, err := zw.CreateHeader(h)
	if err != nil {
		return fmt.Errorf("add %s: %w", name, err)
	}
	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("add %s: %w", name, err)
	}
	return nil
}
