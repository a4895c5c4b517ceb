package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestBackupPath(t *testing.T) {
	tests := map[string]string{
		"deploy.yml":          "deploy_before_freeze.yml",
		"/tmp/x/iris_cfg.yml": "/tmp/x/iris_cfg_before_freeze.yml",
		"noext":               "noext_before_freeze",
	}
	for in, want := range tests {
		if got := BackupPath(in); got != want {
			t.Errorf("BackupPath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRewriteRequirementsFileExactlyOne(t *testing.T) {
	text := "deploy:\n  include:\n    - requirements.txt\n  requirements:\n    file: requirements.txt  # pinned later\n    python: 3.9\n"
	path := writeConfig(t, text)

	backup, err := RewriteRequirementsFile(path, text, "requirements.txt", "requirements_frozen.txt")
	if err != nil {
		t.Fatalf("RewriteRequirementsFile: %v", err)
	}
	if backup != BackupPath(path) {
		t.Errorf("backup = %s", backup)
	}
	old, err := os.ReadFile(backup)
	if err != nil {
		t.Fatalf("backup missing: %v", err)
	}
	if string(old) != text {
		t.Error("backup must hold the previous config verbatim")
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	want := "deploy:\n  include:\n    - requirements.txt\n  requirements:\n    file: requirements_frozen.txt  # pinned later\n    python: 3.9\n"
	if string(got) != want {
		t.Errorf("rewritten config:\n%s\nwant:\n%s", got, want)
	}
}

func TestRewriteRequirementsFileQuoted(t *testing.T) {
	text := "deploy:\n  requirements:\n    file: \"reqs/base.txt\"\n"
	path := writeConfig(t, text)
	if _, err := RewriteRequirementsFile(path, text, "reqs/base.txt", "reqs/base_frozen.txt"); err != nil {
		t.Fatal(err)
	}
	got, _ := os.ReadFile(path)
	if string(got) != "deploy:\n  requirements:\n    file: \"reqs/base_frozen.txt\"\n" {
		t.Errorf("got %q", got)
	}
}

func TestRewriteRequirementsFileAmbiguous(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		matches int
	}{
		{"zero", "deploy:\n  requirements:\n    file: other.txt\n", 0},
		{"two", "a:\n  file: requirements.txt\nb:\n  file: 'requirements.txt'\n", 2},
		{"unindented does not count", "file: requirements.txt\n", 0},
		{"regex characters are literal", "deploy:\n  file: requirementsXtxt\n", 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			path := writeConfig(t, tc.text)
			_, err := RewriteRequirementsFile(path, tc.text, "requirements.txt", "requirements_frozen.txt")
			var re *ConfigRewriteError
			if !errors.As(err, &re) {
				t.Fatalf("err = %v, want *ConfigRewriteError", err)
			}
			if re.Matches != tc.matches {
				t.Errorf("Matches = %d, want %d", re.Matches, tc.matches)
			}
			got, _ := os.ReadFile(path)
			if string(got) != tc.text {
				t.Error("config must be left untouched")
			}
			if _, err := os.Stat(BackupPath(path)); !os.IsNotExist(err) {
				t.Error("no backup may be created on failure")
			}
		})
	}
}

func TestRewriteKeepsPermissions(t *testing.T) {
	text := "x:\n  file: r.txt\n"
	path := filepath.Join(t.TempDir(), "c.yml")
	if err := os.WriteFile(path, []byte(text), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := RewriteRequirementsFile(path, text, "r.txt", "r_frozen.txt"); err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("mode = %v", info.Mode().Perm())
	}
}

func TestRewriteFailureKeepsConfig(t *testing.T) {
	text := "x:\n  file: r.txt\n"
	path := writeConfig(t, text)
	// A directory at the backup path makes the backup write fail.
	if err := os.Mkdir(BackupPath(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if _, err := RewriteRequirementsFile(path, text, "r.txt", "r_frozen.txt"); err == nil {
		t.Fatal("expected an error")
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("config missing after failed rewrite: %v", err)
	}
	if string(got) != text {
		t.Errorf("config = %q, want it unchanged", got)
	}
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Errorf("directory holds %d entries, want config and backup dir only", len(entries))
	}
}
