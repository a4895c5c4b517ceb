package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// ConfigRewriteError reports that the requirements file reference could not
// be located unambiguously. The config file is left untouched.
type ConfigRewriteError struct {
	Old     string
	New     string
	Matches int
}

func (e *ConfigRewriteError) Error() string {
	return fmt.Sprintf("could not update config file: expected exactly one location where to change %s to %s, but found %d",
		e.Old, e.New, e.Matches)
}

// BackupPath is cfgPath with "_before_freeze" inserted before the extension.
func BackupPath(cfgPath string) string {
	ext := filepath.Ext(cfgPath)
	return strings.TrimSuffix(cfgPath, ext) + "_before_freeze" + ext
}

// requirementsFileLine matches an indented "file: <name>" line, optionally
// quoted and followed by a comment. Group 1 is the file name.
func requirementsFileLine(name string) *regexp.Regexp {
	return regexp.MustCompile(`^\s+file:\s*["']?(` + regexp.QuoteMeta(name) + `)["']?\s*(#.*)?$`)
}

// RewriteRequirementsFile points the config at cfgPath (whose current content
// is text) to newFile instead of oldFile. Exactly one line must reference
// oldFile as a "file:" value; only that line changes. The previous config is
// copied to BackupPath(cfgPath), which is returned. The config is replaced
// by rename, so a failed write leaves it untouched.
func RewriteRequirementsFile(cfgPath, text, oldFile, newFile string) (string, error) {
	re := requirementsFileLine(oldFile)
	lines := strings.Split(text, "\n")
	target, matches := -1, 0
	for i, line := range lines {
		if re.MatchString(line) {
			target = i
			matches++
		}
	}
	if matches != 1 {
		return "", &ConfigRewriteError{Old: oldFile, New: newFile, Matches: matches}
	}
	loc := re.FindStringSubmatchIndex(lines[target])
	lines[target] = lines[target][:loc[2]] + newFile + lines[target][loc[3]:]

	info, err := os.Stat(cfgPath)
	if err != nil {
		return "", fmt.Errorf("stat config: %w", err)
	}
	tmp, err := writeTemp(cfgPath, strings.Join(lines, "\n"), info.Mode().Perm())
	if err != nil {
		return "", fmt.Errorf("write config: %w", err)
	}
	backup := BackupPath(cfgPath)
	if err := os.WriteFile(backup, []byte(text), info.Mode().Perm()); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("back up config: %w", err)
	}
	if err := os.Rename(tmp, cfgPath); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("replace config: %w", err)
	}
	return backup, nil
}

// writeTemp writes text to a new file next to path and returns its name.
func writeTemp(path, text string, perm os.FileMode) (string, error) {
	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return "", err
	}
	name := f.Name()
	if _, err := f.WriteString(text); err != nil {
		f.Close()
		os.Remove(name)
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(name)
		return "", err
	}
	if err := os.Chmod(name, perm); err != nil {
		os.Remove(name)
		return "", err
	}
	return name, nil
}
