package packager

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// Collect expands the include patterns against base and returns the
// matching files as sorted, unique, slash-separated paths relative to base.
// Paths containing any exclude substring are dropped, as is everything
// under the build directory.
//
// Patterns use path.Match syntax per segment; a "**" segment matches any
// number of directories, including none. Names starting with "." only match
// pattern segments that start with "." themselves.
func Collect(base string, include, exclude []string) ([]string, error) {
	var patterns [][]string
	for _, p := range include {
		segs, err := splitPattern(base, p)
		if err != nil {
			return nil, err
		}
		patterns = append(patterns, segs)
	}

	var files []string
	err := fs.WalkDir(os.DirFS(base), ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == "." {
			return nil
		}
		if d.IsDir() {
			if p == BuildDir {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || excluded(p, exclude) {
			return nil
		}
		segs := strings.Split(p, "/")
		for _, pat := range patterns {
			if matchSegments(pat, segs) {
				files = append(files, p)
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("collect files: %w", err)
	}
	sort.Strings(files)
	return files, nil
}

// splitPattern makes pattern relative to base and splits it into segments.
func splitPattern(base, pattern string) ([]string, error) {
	if filepath.IsAbs(pattern) {
		rel, err := filepath.Rel(base, pattern)
		if err != nil {
			return nil, fmt.Errorf("include pattern %s: %w", pattern, err)
		}
		pattern = rel
	}
	pattern = path.Clean(filepath.ToSlash(pattern))
	if pattern == ".." || strings.HasPrefix(pattern, "../") {
		return nil, fmt.Errorf("include pattern %s points outside %s", pattern, base)
	}
	segs := strings.Split(pattern, "/")
	for _, s := range segs {
		if _, err := path.Match(s, ""); err != nil {
			return nil, fmt.Errorf("include pattern %s: %w", pattern, err)
		}
	}
	return segs, nil
}

func matchSegments(pat, segs []string) bool {
	if len(pat) == 0 {
		return len(segs) == 0
	}
	if pat[0] == "**" {
		for i := 0; i <= len(segs); i++ {
			if matchSegments(pat[1:], segs[i:]) {
				return true
			}
			if i < len(segs) && hidden(segs[i]) {
				return false
			}
		}
		return false
	}
	if len(segs) == 0 {
		return false
	}
	if hidden(segs[0]) && !strings.HasPrefix(pat[0], ".") {
		return false
	}
	if ok, _ := path.Match(pat[0], segs[0]); !ok {
		return false
	}
	return matchSegments(pat[1:], segs[1:])
}

func hidden(name string) bool {
	return strings.HasPrefix(name, ".")
}

func excluded(p string, exclude []string) bool {
	for _, e := range exclude {
		if e != "" && strings.Contains(p, filepath.ToSlash(e)) {
			return true
		}
	}
	return false
}
