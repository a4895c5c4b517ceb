// Package requirements reads and checks a pip requirements manifest.
//
// A manifest is line oriented. Blank lines, comments ("#...") and pip
// options ("-r other.txt", "--index-url ...") are carried along untouched;
// every other line declares one requirement. A requirement counts as pinned
// when its line contains "=" anywhere, which accepts "==", "~=", ">=" and
// "<=" alike.
package requirements

import (
	"fmt"
	"os"
	"regexp"
	"strings"
)

// Line is one line of a manifest.
type Line struct {
	// Raw is the line exactly as read, without the line terminator.
	Raw string
	// Name is the declared package name, empty for blank, comment and option
	// lines.
	Name string
	// Constraint is the version specifier following the name, if any.
	Constraint string
	// Comment is the trailing "# ..." text, if any.
	Comment string
}

// IsRequirement reports whether l declares a package.
func (l Line) IsRequirement() bool {
	return l.Name != ""
}

// Pinned reports whether the requirement carries a version constraint
// containing "=".
func (l Line) Pinned() bool {
	return strings.Contains(strings.TrimSpace(l.Raw), "=")
}

// Spec is the text pip receives for this requirement: the raw line up to
// the first whitespace.
func (l Line) Spec() string {
	fields := strings.Fields(l.Raw)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// Manifest is an ordered list of lines.
type Manifest struct {
	Lines []Line
}

// ParseManifest splits text into lines. Order is preserved.
func ParseManifest(text string) *Manifest {
	m := &Manifest{}
	if text == "" {
		return m
	}
	for _, raw := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		m.Lines = append(m.Lines, parseLine(raw))
	}
	return m
}

// ReadManifest loads the manifest at path.
func ReadManifest(path string) (*Manifest, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("read requirements %s: %w", path, err)
	}
	return ParseManifest(string(data)), string(data), nil
}

func parseLine(raw string) Line {
	l := Line{Raw: raw}
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || trimmed[0] == '#' || trimmed[0] == '-' {
		return l
	}
	body := trimmed
	if i := strings.Index(trimmed, "#"); i >= 0 {
		l.Comment = strings.TrimSpace(trimmed[i:])
		body = strings.TrimSpace(trimmed[:i])
	}
	l.Name = PackageName(body)
	l.Constraint = strings.TrimSpace(strings.TrimPrefix(body, l.Name))
	return l
}

// Requirements returns the requirement lines only.
func (m *Manifest) Requirements() []Line {
	var out []Line
	for _, l := range m.Lines {
		if l.IsRequirement() {
			out = append(out, l)
		}
	}
	return out
}

// Unpinned returns the trimmed text of every requirement that is not
// pinned.
func (m *Manifest) Unpinned() []string {
	var out []string
	for _, l := range m.Requirements() {
		if !l.Pinned() {
			out = append(out, strings.TrimSpace(l.Raw))
		}
	}
	return out
}

// Names returns the canonical names of all requirements.
func (m *Manifest) Names() map[string]bool {
	names := make(map[string]bool)
	for _, l := range m.Requirements() {
		names[Canonicalize(l.Name)] = true
	}
	return names
}

// String joins the raw lines back together.
func (m *Manifest) String() string {
	raw := make([]string, len(m.Lines))
	for i, l := range m.Lines {
		raw[i] = l.Raw
	}
	return strings.Join(raw, "\n")
}

// PackageName returns the name part of a requirement: everything before the
// first version operator, extras bracket, marker, URL marker, space or
// comment.
func PackageName(line string) string {
	line = strings.TrimSpace(line)
	if i := strings.IndexAny(line, "=<>!~;[@ #\t"); i >= 0 {
		return line[:i]
	}
	return line
}

var separatorRun = regexp.MustCompile(`[-_.]+`)

// Canonicalize normalizes a distribution name: lower case, with runs of
// "-", "_" and "." collapsed to "-".
func Canonicalize(name string) string {
	return strings.ToLower(separatorRun.ReplaceAllString(strings.TrimSpace(name), "-"))
}
