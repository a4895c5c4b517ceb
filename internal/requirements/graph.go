package requirements

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"launchpad/internal/venv"
)

// annotationColumn is where provenance comments start when the requirement
// is short enough.
const annotationColumn = 30

// Requirer is one package that depends on another.
type Requirer struct {
	Name    string
	Version string
	// Specifier is the constraint it places on the dependency, e.g.
	// ">=1.17.3". Empty when unconstrained.
	Specifier string
}

// InverseGraph maps a canonical package name to the installed packages that
// require it, ordered by requirer name.
type InverseGraph map[string][]Requirer

// InstalledPackage is the subset of a "pip inspect" entry the graph needs.
type InstalledPackage struct {
	Metadata struct {
		Name         string   `json:"name"`
		Version      string   `json:"version"`
		RequiresDist []string `json:"requires_dist"`
	} `json:"metadata"`
}

type inspectReport struct {
	Version   string             `json:"version"`
	Installed []InstalledPackage `json:"installed"`
}

// ParseInspectReport decodes the JSON report of "pip inspect".
func ParseInspectReport(data []byte) ([]InstalledPackage, error) {
	var r inspectReport
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parse pip inspect report: %w", err)
	}
	return r.Installed, nil
}

// BuildInverseGraph inverts the requires_dist metadata of pkgs.
// Requirements that only apply to an extra are skipped.
func BuildInverseGraph(pkgs []InstalledPackage) InverseGraph {
	sorted := append([]InstalledPackage(nil), pkgs...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return Canonicalize(sorted[i].Metadata.Name) < Canonicalize(sorted[j].Metadata.Name)
	})
	g := make(InverseGraph)
	for _, p := range sorted {
		from := Requirer{Name: Canonicalize(p.Metadata.Name), Version: p.Metadata.Version}
		for _, rd := range p.Metadata.RequiresDist {
			name, spec, ok := parseRequiresDist(rd)
			if !ok {
				continue
			}
			r := from
			r.Specifier = spec
			g[name] = append(g[name], r)
		}
	}
	return g
}

// LoadInverseGraph builds the graph of the packages installed for python.
func LoadInverseGraph(ctx context.Context, r venv.Runner, python string) (InverseGraph, error) {
	out, err := r.Output(ctx, "", python, "-m", "pip", "--disable-pip-version-check", "inspect", "--local")
	if err != nil {
		return nil, fmt.Errorf("inspect installed packages: %w", err)
	}
	pkgs, err := ParseInspectReport(out)
	if err != nil {
		return nil, err
	}
	return BuildInverseGraph(pkgs), nil
}

var (
	requiresDistName = regexp.MustCompile(`^\s*([A-Za-z0-9][A-Za-z0-9._-]*)\s*(\[[^\]]*\])?\s*(.*)$`)
	extraMarker      = regexp.MustCompile(`\bextra\s*==`)
)

// parseRequiresDist splits a PEP 508 string such as
// `numpy (>=1.17.3) ; python_version < "3.10"` into the canonical name and a
// normalized specifier (">=1.17.3").
func parseRequiresDist(s string) (name, spec string, ok bool) {
	req, marker, _ := strings.Cut(s, ";")
	if extraMarker.MatchString(marker) {
		return "", "", false
	}
	m := requiresDistName.FindStringSubmatch(req)
	if m == nil {
		return "", "", false
	}
	rest := strings.TrimSpace(m[3])
	if strings.HasPrefix(rest, "@") {
		return Canonicalize(m[1]), "", true
	}
	rest = strings.TrimSuffix(strings.TrimPrefix(rest, "("), ")")
	var parts []string
	for _, p := range strings.Split(rest, ",") {
		if p = strings.Join(strings.Fields(p), ""); p != "" {
			parts = append(parts, p)
		}
	}
	sort.Strings(parts)
	return Canonicalize(m[1]), strings.Join(parts, ","), true
}

// Annotate appends "# required by ..." to a frozen requirement line, naming
// every installed package that depends on it. Lines nobody requires are
// returned trimmed but otherwise unchanged.
func (g InverseGraph) Annotate(line string) string {
	line = strings.TrimSpace(line)
	name := Canonicalize(PackageName(line))
	var by []string
	for _, r := range g[name] {
		s := r.Name + " " + r.Version
		if r.Specifier != "" {
			s += " (" + name + r.Specifier + ")"
		}
		by = append(by, s)
	}
	if len(by) == 0 {
		return line
	}
	pad := max(annotationColumn-len(line), 2)
	return line + strings.Repeat(" ", pad) + "# required by " + strings.Join(by, " and by ")
}

// FrozenPath is where the frozen form of the manifest at path is written:
// path itself when it already contains "_frozen.", otherwise path with
// "_frozen" inserted before the extension.
func FrozenPath(path string) string {
	if strings.Contains(path, "_frozen.") {
		return path
	}
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + "_frozen" + ext
}
