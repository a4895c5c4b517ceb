package requirements

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPackageName(t *testing.T) {
	tests := map[string]string{
		"numpy==1.25.2":           "numpy",
		"pandas>=2":               "pandas",
		"scipy<2":                 "scipy",
		"six":                     "six",
		"dill # serializer":       "dill",
		"requests[socks]==2.31.0": "requests",
		"flask~=2.3":              "flask",
		"tzdata!=2023.1":          "tzdata",
		"pkg@https://x/pkg.whl":   "pkg",
		"colorama; os_name=='nt'": "colorama",
		"  gunicorn==21.2.0  ":    "gunicorn",
		"torch\t==2.0":            "torch",
	}
	for in, want := range tests {
		assert.Equal(t, want, PackageName(in), in)
	}
}

func TestCanonicalize(t *testing.T) {
	assert.Equal(t, "python-dateutil", Canonicalize("python_dateutil"))
	assert.Equal(t, "zope-interface", Canonicalize("Zope.Interface"))
	assert.Equal(t, "a-b", Canonicalize("A-_.B"))
}

func TestParseManifest(t *testing.T) {
	text := "# top\n\n-r base.txt\nnumpy==1.25.2  # pinned\npandas\nscikit-learn>=1.3\n"
	m := ParseManifest(text)

	assert.Equal(t, text, m.String(), "raw lines round-trip")
	reqs := m.Requirements()
	assert.Len(t, reqs, 3)
	assert.Equal(t, Line{Raw: "numpy==1.25.2  # pinned", Name: "numpy", Constraint: "==1.25.2", Comment: "# pinned"}, reqs[0])
	assert.Equal(t, "numpy==1.25.2", reqs[0].Spec())
	assert.Equal(t, []string{"pandas"}, m.Unpinned())
	assert.Equal(t, map[string]bool{"numpy": true, "pandas": true, "scikit-learn": true}, m.Names())
}

func TestPinnedIsLiteralEquals(t *testing.T) {
	tests := map[string]bool{
		"numpy==1.0":      true,
		"numpy>=1.0":      true,
		"numpy~=1.0":      true,
		"numpy<2":         false,
		"numpy":           false,
		"numpy # x=1":     true,
		"numpy; os=='nt'": true,
	}
	for raw, want := range tests {
		assert.Equal(t, want, parseLine(raw).Pinned(), raw)
	}
}

func TestParseManifestEmpty(t *testing.T) {
	m := ParseManifest("")
	assert.Empty(t, m.Lines)
	assert.Empty(t, m.Unpinned())
}

func TestImplicitMissing(t *testing.T) {
	deps := ImplicitDeps{
		"":       {"setuptools", "gunicorn"},
		"pandas": {"Cython", "setuptools"},
		"torch":  {"typing-extensions"},
	}
	tests := []struct {
		name     string
		manifest string
		want     []string
	}{
		{"all missing", "numpy==1\n", []string{"gunicorn", "setuptools"}},
		{"triggered table", "pandas==2\n", []string{"Cython", "gunicorn", "setuptools"}},
		{"present by canonical name", "Setuptools==68\ngunicorn==21\n", nil},
		{"comment does not count", "# gunicorn\nsetuptools==1\n", []string{"gunicorn"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, deps.Missing(ParseManifest(tc.manifest)))
		})
	}
}

func TestSpecStopsAtWhitespace(t *testing.T) {
	tests := map[string]string{
		"six==1.16.0\t# note":       "six==1.16.0",
		"  numpy==1.25.2  # pinned": "numpy==1.25.2",
		"pandas":                    "pandas",
		"scipy>=1.0\n":              "scipy>=1.0",
	}
	for raw, want := range tests {
		assert.Equal(t, want, parseLine(raw).Spec(), "%q", raw)
	}
}
