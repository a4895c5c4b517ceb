package fetch

import (
	"fmt"
	"regexp"
	"strings"
)

// savedFile matches the line pip prints for the file a download produced,
// whether it was fetched now or found in the target directory.
var savedFile = regexp.MustCompile(`(?m)(?:^|[ \t])(?:File was already downloaded|Saved) ([^\n\r]+)[\n\r]`)

// AmbiguousOutputError means the pip output did not name exactly one
// downloaded file, so the outcome of the download is unknown.
type AmbiguousOutputError struct {
	Requirement string
	Platform    string
	Matches     int
	Output      string
}

func (e *AmbiguousOutputError) Error() string {
	return fmt.Sprintf("unable to tell whether %s could be downloaded for platform %s: pip reported %d saved files, want exactly 1",
		e.Requirement, e.Platform, e.Matches)
}

// ParseSavedFile returns the single file pip reports as saved or already
// downloaded in output.
func ParseSavedFile(output string) (string, error) {
	m := savedFile.FindAllStringSubmatch(output, -1)
	if len(m) != 1 {
		return "", &AmbiguousOutputError{Matches: len(m), Output: output}
	}
	return strings.TrimSpace(m[0][1]), nil
}

var sourceDistSuffixes = []string{".tar.gz", ".tar.bz2", ".tgz", ".zip"}

// IsSourceDist reports whether path names a source distribution rather
// than a wheel.
func IsSourceDist(path string) bool {
	lower := strings.ToLower(path)
	for _, s := range sourceDistSuffixes {
		if strings.HasSuffix(lower, s) {
			return true
		}
	}
	return false
}
