package manifest

import (
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Matches reports whether a relative path passes the include/exclude filters.
// Excludes win over includes. An empty include list admits everything.
func Matches(path string, includes, excludes []string) (bool, error) {
	excluded, err := matchAny(path, excludes)
	if err != nil {
		return false, err
	}
	if excluded {
		return false, nil
	}

	if len(includes) == 0 {
		return true, nil
	}
	return matchAny(path, includes)
}

func matchAny(path string, patterns []string) (bool, error) {
	for _, pattern := range patterns {
		// A trailing slash means "everything under this directory".
		if strings.HasSuffix(pattern, "/") {
			pattern = strings.TrimSuffix(pattern, "/") + "/**"
		}
		matched, err := doublestar.Match(pattern, path)
		if err != nil {
			return false, err
		}
		if matched {
			return true, nil
		}
	}
	return false, nil
}
