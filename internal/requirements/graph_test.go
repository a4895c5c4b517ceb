package requirements

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/tools/txtar"

	"launchpad/internal/venv/venvtest"
)

func loadArchive(t *testing.T, name string) map[string]string {
	t.Helper()
	a, err := txtar.ParseFile("testdata/" + name)
	require.NoError(t, err)
	files := make(map[string]string, len(a.Files))
	for _, f := range a.Files {
		files[f.Name] = string(f.Data)
	}
	return files
}

func testGraph(t *testing.T) InverseGraph {
	t.Helper()
	pkgs, err := ParseInspectReport([]byte(loadArchive(t, "graph.txtar")["report.json"]))
	require.NoError(t, err)
	return BuildInverseGraph(pkgs)
}

func TestBuildInverseGraph(t *testing.T) {
	g := testGraph(t)

	assert.Equal(t, []Requirer{
		{Name: "pandas", Version: "2.0.3", Specifier: ">=1.20.3"},
		{Name: "scikit-learn", Version: "1.3.0", Specifier: ">=1.17.3"},
		{Name: "scipy", Version: "1.11.1", Specifier: "<1.28.0,>=1.21.6"},
	}, g["numpy"])
	assert.Equal(t, []Requirer{{Name: "python-dateutil", Version: "2.8.2", Specifier: ">=1.5"}}, g["six"])
	assert.Equal(t, []Requirer{{Name: "scikit-learn", Version: "1.3.0"}}, g["joblib"])
	assert.Equal(t, []Requirer{{Name: "flask", Version: "2.3.2", Specifier: ">=2.3.3"}}, g["werkzeug"])

	assert.NotContains(t, g, "pytest", "extra-only requirements are skipped")
	assert.NotContains(t, g, "asgiref")
}

func TestAnnotate(t *testing.T) {
	g := testGraph(t)
	freeze := strings.Split(strings.TrimSpace(loadArchive(t, "graph.txtar")["freeze.txt"]), "\n")

	var got []string
	for _, l := range freeze {
		got = append(got, g.Annotate(l))
	}
	want := []string{
		"Flask==2.3.2",
		"joblib==1.3.1" + strings.Repeat(" ", 17) + "# required by scikit-learn 1.3.0",
		"numpy==1.25.2" + strings.Repeat(" ", 17) + "# required by pandas 2.0.3 (numpy>=1.20.3)" +
			" and by scikit-learn 1.3.0 (numpy>=1.17.3)" +
			" and by scipy 1.11.1 (numpy<1.28.0,>=1.21.6)",
		"pandas==2.0.3",
		"python-dateutil==2.8.2" + strings.Repeat(" ", 8) + "# required by pandas 2.0.3 (python-dateutil>=2.8.2)",
		"setuptools==68.0.0",
		"six==1.16.0" + strings.Repeat(" ", 19) + "# required by python-dateutil 2.8.2 (six>=1.5)",
		"Werkzeug==2.3.6" + strings.Repeat(" ", 15) + "# required by flask 2.3.2 (werkzeug>=2.3.3)",
	}
	assert.Equal(t, want, got)
}

func TestAnnotateLongLineKeepsTwoSpaces(t *testing.T) {
	g := InverseGraph{"a-very-long-package-name": {{Name: "x", Version: "1"}}}
	line := "a_very_long_package_name==1.2.3.4"
	assert.Equal(t, line+"  # required by x 1", g.Annotate("  "+line+"\n"))
}

func TestParseRequiresDist(t *testing.T) {
	tests := []struct {
		in, name, spec string
		ok             bool
	}{
		{"numpy", "numpy", "", true},
		{"six (>=1.5)", "six", ">=1.5", true},
		{"Zope.Interface >= 5.0 , < 6", "zope-interface", "<6,>=5.0", true},
		{"requests[socks]>=2.0; python_version >= '3.7'", "requests", ">=2.0", true},
		{"pkg @ https://example.com/pkg.whl", "pkg", "", true},
		{"pytest ; extra == 'test'", "", "", false},
		{"", "", "", false},
	}
	for _, tc := range tests {
		name, spec, ok := parseRequiresDist(tc.in)
		assert.Equal(t, tc.ok, ok, tc.in)
		assert.Equal(t, tc.name, name, tc.in)
		assert.Equal(t, tc.spec, spec, tc.in)
	}
}

func TestLoadInverseGraph(t *testing.T) {
	report := loadArchive(t, "graph.txtar")["report.json"]
	r := &venvtest.Runner{Handle: func(c venvtest.Call) (string, error) {
		return report, nil
	}}
	g, err := LoadInverseGraph(context.Background(), r, "python3")
	require.NoError(t, err)
	assert.Len(t, g["numpy"], 3)

	calls := r.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "python3", calls[0].Name)
	assert.Equal(t, "inspect", calls[0].PipCommand())
}

func TestLoadInverseGraphBadReport(t *testing.T) {
	r := &venvtest.Runner{Handle: func(c venvtest.Call) (string, error) {
		return "ERROR: unknown command \"inspect\"", nil
	}}
	_, err := LoadInverseGraph(context.Background(), r, "python3")
	assert.ErrorContains(t, err, "parse pip inspect report")
}

func TestFrozenPath(t *testing.T) {
	tests := map[string]string{
		"requirements.txt":            "requirements_frozen.txt",
		"reqs/base.in":                "reqs/base_frozen.in",
		"requirements_frozen.txt":     "requirements_frozen.txt",
		"requirements_frozen.old.txt": "requirements_frozen.old.txt",
		"requirements":                "requirements_frozen",
		"v1.2/requirements":           "v1.2/requirements_frozen",
	}
	for in, want := range tests {
		assert.Equal(t, want, FrozenPath(in), in)
	}
}
