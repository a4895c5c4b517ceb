package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"launchpad/internal/config"
	"launchpad/internal/config/configtest"
	"launchpad/internal/confirm"
	"launchpad/internal/venv"
	"launchpad/internal/venv/venvtest"
)

// index answers "pip download" with the file listed for the requested
// requirement and platform tag, creating it in the -d directory.
type index map[string]map[string]string

func (ix index) runner() *venvtest.Runner {
	return &venvtest.Runner{Handle: func(c venvtest.Call) (string, error) {
		if c.PipCommand() != "download" {
			return "", nil
		}
		spec, tag, dir := c.Last(), c.Flag("--platform"), c.Flag("-d")
		name, ok := ix[spec][tag]
		if !ok {
			return "", venvtest.Fail(c, "ERROR: No matching distribution found for "+spec)
		}
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return fmt.Sprintf("Collecting %s\n  File was already downloaded %s\n", spec, path), nil
		}
		if err := os.WriteFile(path, []byte(name), 0o644); err != nil {
			return "", err
		}
		return fmt.Sprintf("Collecting %s\n  Saved %s\nSuccessfully downloaded\n", spec, path), nil
	}}
}

type reply bool

func (r reply) Confirm(context.Context, string) (bool, error) { return bool(r), nil }

const twoTags = "    platforms:\n      - manylinux2014_x86_64\n      - any\n"

func load(t *testing.T, manifest string, pairs ...string) *config.File {
	t.Helper()
	text := configtest.Sample
	if len(pairs) > 0 {
		text = configtest.With(t, pairs...)
	}
	cfg, err := config.Load(configtest.Write(t, text, map[string]string{"requirements.txt": manifest}))
	require.NoError(t, err)
	return cfg
}

func newFetcher(r venv.Runner, c confirm.Confirmer, out *bytes.Buffer) *Fetcher {
	return &Fetcher{Envs: venv.Manager{HostPython: "python3", Runner: r}, Confirm: c, Out: out, Plain: true}
}

func TestFetchFallsBackToLaterTag(t *testing.T) {
	cfg := load(t, "dill==0.3.7\n")
	ix := index{"dill==0.3.7": {
		"manylinux2014_x86_64": "dill-0.3.7.tar.gz",
		"any":                  "dill-0.3.7-py3-none-any.whl",
	}}
	r := ix.runner()

	res, err := newFetcher(r, reply(false), &bytes.Buffer{}).Fetch(context.Background(), cfg)
	require.NoError(t, err)
	require.Len(t, res.Downloads, 1)
	d := res.Downloads[0]
	assert.False(t, d.Degraded())
	assert.Equal(t, filepath.Join(res.Dir, "dill-0.3.7-py3-none-any.whl"), d.Wheel)
	assert.Equal(t, []string{"manylinux2014_x86_64", "any"}, d.Tried)
	assert.Empty(t, d.Sources)
	assert.Empty(t, res.Degraded())

	assert.NoFileExists(t, filepath.Join(res.Dir, "dill-0.3.7.tar.gz"), "source from the earlier tag is removed")
	assert.FileExists(t, d.Wheel)
}

func TestFetchStopsAtFirstWheel(t *testing.T) {
	cfg := load(t, "numpy==1.25.2\n")
	ix := index{"numpy==1.25.2": {
		"manylinux2014_x86_64": "numpy-1.25.2-cp311-cp311-manylinux2014_x86_64.whl",
		"any":                  "numpy-1.25.2.tar.gz",
	}}
	r := ix.runner()
	_, err := newFetcher(r, reply(false), &bytes.Buffer{}).Fetch(context.Background(), cfg)
	require.NoError(t, err)

	var downloads int
	for _, c := range r.Calls() {
		if c.PipCommand() == "download" {
			downloads++
			assert.Equal(t, "manylinux2014_x86_64", c.Flag("--platform"))
		}
	}
	assert.Equal(t, 1, downloads)
}

func TestFetchDegradedKeepsSources(t *testing.T) {
	cfg := load(t, "dill==0.3.7\n",
		twoTags, "    platforms:\n      - manylinux2014_x86_64\n      - manylinux1_x86_64\n")
	ix := index{"dill==0.3.7": {
		"manylinux2014_x86_64": "dill-0.3.7.tar.gz",
		"manylinux1_x86_64":    "dill-0.3.7.zip",
	}}
	var out bytes.Buffer
	res, err := newFetcher(ix.runner(), reply(true), &out).Fetch(context.Background(), cfg)
	require.NoError(t, err)

	d := res.Downloads[0]
	assert.True(t, d.Degraded())
	assert.Equal(t, []string{
		filepath.Join(res.Dir, "dill-0.3.7.tar.gz"),
		filepath.Join(res.Dir, "dill-0.3.7.zip"),
	}, d.Sources)
	for _, s := range d.Sources {
		assert.FileExists(t, s)
	}
	assert.Equal(t, []string{"dill==0.3.7"}, res.Degraded())
	assert.Contains(t, out.String(), "WARNING: No matching wheels for the target platforms\n  - dill==0.3.7")
}

func TestFetchSameSourceForEveryTag(t *testing.T) {
	cfg := load(t, "dill==0.3.7\n")
	ix := index{"dill==0.3.7": {"manylinux2014_x86_64": "dill-0.3.7.tar.gz", "any": "dill-0.3.7.tar.gz"}}
	res, err := newFetcher(ix.runner(), reply(true), &bytes.Buffer{}).Fetch(context.Background(), cfg)
	require.NoError(t, err)
	assert.Len(t, res.Downloads[0].Sources, 1)
}

func TestFetchDegradedDeclined(t *testing.T) {
	cfg := load(t, "dill==0.3.7\n")
	ix := index{"dill==0.3.7": {"manylinux2014_x86_64": "dill-0.3.7.tar.gz", "any": "dill-0.3.7.tar.gz"}}
	_, err := newFetcher(ix.runner(), reply(false), &bytes.Buffer{}).Fetch(context.Background(), cfg)
	assert.ErrorIs(t, err, confirm.ErrDeclined)
}

func TestFetchStrict(t *testing.T) {
	ix := index{
		"dill==0.3.7":   {"manylinux2014_x86_64": "dill-0.3.7.tar.gz", "any": "dill-0.3.7.tar.gz"},
		"pyyaml==6.0.1": {"manylinux2014_x86_64": "PyYAML-6.0.1.tar.gz", "any": "PyYAML-6.0.1.tar.gz"},
	}
	manifest := "pyyaml==6.0.1\ndill==0.3.7\n"

	t.Run("flag", func(t *testing.T) {
		f := newFetcher(ix.runner(), reply(true), &bytes.Buffer{})
		f.Strict = true
		_, err := f.Fetch(context.Background(), load(t, manifest))
		var de *DegradedError
		require.ErrorAs(t, err, &de)
		assert.Equal(t, []string{"dill==0.3.7", "pyyaml==6.0.1"}, de.Requirements)
	})
	t.Run("config", func(t *testing.T) {
		cfg := load(t, manifest, "save_to: wheels", "save_to: wheels\n    strict_binaries: true")
		_, err := newFetcher(ix.runner(), reply(true), &bytes.Buffer{}).Fetch(context.Background(), cfg)
		var de *DegradedError
		assert.ErrorAs(t, err, &de)
	})
}

func TestFetchDownloadArguments(t *testing.T) {
	cfg := load(t, "# pinned\n\n-i https://ignored\nsix==1.16.0    # required by python-dateutil 2.8.2\n",
		"save_to: wheels", "save_to: wheels\n    constrain_download: true\n    implementation: cp\n    pip_index_url: https://pypi.corp/simple")
	ix := index{"six==1.16.0": {"manylinux2014_x86_64": "six-1.16.0-py2.py3-none-any.whl"}}
	r := ix.runner()
	_, err := newFetcher(r, reply(false), &bytes.Buffer{}).Fetch(context.Background(), cfg)
	require.NoError(t, err)

	var downloads []venvtest.Call
	for _, c := range r.Calls() {
		if c.PipCommand() == "download" {
			downloads = append(downloads, c)
		}
	}
	require.Len(t, downloads, 1)
	assert.Equal(t, []string{
		"-m", "pip", "--disable-pip-version-check", "download",
		"--python-version", "3.11", "--implementation", "cp",
		"--platform", "manylinux2014_x86_64", "--no-deps", "-d", cfg.Resolve("wheels"), "six==1.16.0",
		"--index-url", "https://pypi.corp/simple",
	}, downloads[0].Args)
}

func TestFetchRecreatesSaveDir(t *testing.T) {
	cfg := load(t, "six==1.16.0\n")
	stale := filepath.Join(cfg.Resolve("wheels"), "stale-0.1.tar.gz")
	require.NoError(t, os.MkdirAll(filepath.Dir(stale), 0o755))
	require.NoError(t, os.WriteFile(stale, nil, 0o644))

	ix := index{"six==1.16.0": {"manylinux2014_x86_64": "six-1.16.0-py2.py3-none-any.whl"}}
	_, err := newFetcher(ix.runner(), reply(false), &bytes.Buffer{}).Fetch(context.Background(), cfg)
	require.NoError(t, err)
	assert.NoFileExists(t, stale)
	assert.NoDirExists(t, filepath.Join(cfg.Dir(), venv.DirName))
}

func TestFetchAmbiguousOutput(t *testing.T) {
	cfg := load(t, "gunicorn==21.2.0\n")
	r := &venvtest.Runner{Handle: func(c venvtest.Call) (string, error) {
		if c.PipCommand() == "download" {
			return "  Saved ./a.whl\n  Saved ./b.whl\n", nil
		}
		return "", nil
	}}
	_, err := newFetcher(r, reply(true), &bytes.Buffer{}).Fetch(context.Background(), cfg)
	var amb *AmbiguousOutputError
	require.ErrorAs(t, err, &amb)
	assert.Equal(t, "gunicorn==21.2.0", amb.Requirement)
	assert.Equal(t, "manylinux2014_x86_64", amb.Platform)
	assert.Equal(t, 2, amb.Matches)
}

func TestFetchDownloadFailure(t *testing.T) {
	cfg := load(t, "nosuchpkg==1.0\n")
	_, err := newFetcher(index{}.runner(), reply(true), &bytes.Buffer{}).Fetch(context.Background(), cfg)
	var envErr *venv.EnvironmentError
	require.True(t, errors.As(err, &envErr))
	assert.Contains(t, err.Error(), "No matching distribution found for nosuchpkg==1.0")
	assert.NoDirExists(t, filepath.Join(cfg.Dir(), venv.DirName))
}
