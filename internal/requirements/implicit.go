package requirements

import "sort"

// ImplicitDeps maps a package to packages it needs at install time without
// declaring them. The "" key applies to every manifest.
type ImplicitDeps map[string][]string

// DefaultImplicitDeps is what every deployment needs: setuptools to build
// source distributions and gunicorn to serve the API.
var DefaultImplicitDeps = ImplicitDeps{
	"": {"setuptools", "gunicorn"},
}

// Missing returns the sorted, unique implicit dependencies of m that m does
// not list itself.
func (d ImplicitDeps) Missing(m *Manifest) []string {
	present := m.Names()
	seen := make(map[string]bool)
	var missing []string
	for trigger, deps := range d {
		if trigger != "" && !present[Canonicalize(trigger)] {
			continue
		}
		for _, dep := range deps {
			c := Canonicalize(dep)
			if present[c] || seen[c] {
				continue
			}
			seen[c] = true
			missing = append(missing, dep)
		}
	}
	sort.Strings(missing)
	return missing
}
