// Package configtest writes deployment configs for tests.
package configtest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// Sample is a complete, valid deployment config for the "iris" API.
const Sample = `model_store:
  location: ./model_store
model:
  name: iris
  version: 0.0.2
deploy:
  include:
    - app/**/*.py
    - model_store/*
  exclude:
    - __pycache__
  deployment_requires:
    - app\data\lookup.csv
  requirements:
    file: requirements.txt
    python: 3.11
    platforms:
      - manylinux2014_x86_64
      - any
    save_to: wheels
    vulnerability_db:
api:
  name: iris
  version: 1.0
`

// Write stores text as deploy_cfg.yml in a new temporary project
// directory, together with the given files (relative path to content), and
// returns the config path.
func Write(t testing.TB, text string, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for rel, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	path := filepath.Join(dir, "deploy_cfg.yml")
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// With returns Sample with each old string replaced by the following new
// one. It fails the test when an old string is absent.
func With(t testing.TB, pairs ...string) string {
	t.Helper()
	text := Sample
	for i := 0; i+1 < len(pairs); i += 2 {
		if !strings.Contains(text, pairs[i]) {
			t.Fatalf("configtest: %q not in sample config", pairs[i])
		}
		text = strings.Replace(text, pairs[i], pairs[i+1], 1)
	}
	return text
}
