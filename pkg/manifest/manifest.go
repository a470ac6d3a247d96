package manifest

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// Unit is one logical file to be synchronized. Immutable once built.
type Unit struct {
	Path      string // Relative path from the root, forward slashes
	LocalPath string // Absolute path on disk
	Size      int64
	ModTime   time.Time
}

// SkippedFile records a source file that became unreadable during the scan.
// The scan continues; skipped files surface in the final report.
type SkippedFile struct {
	Path string
	Err  error
}

// Options filters which files become units.
type Options struct {
	Includes []string
	Excludes []string
}

// Build walks the tree under root and returns one Unit per regular file,
// sorted by relative path. Zero-byte files are valid units.
func Build(root string, opts Options) ([]Unit, []SkippedFile, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, nil, fmt.Errorf("get absolute path: %w", err)
	}

	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, nil, fmt.Errorf("stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, nil, fmt.Errorf("root is not a directory: %s", absRoot)
	}

	var units []Unit
	var skipped []SkippedFile

	err = filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable entry mid-scan: record and continue.
			rel, relErr := filepath.Rel(absRoot, path)
			if relErr != nil {
				rel = path
			}
			skipped = append(skipped, SkippedFile{Path: filepath.ToSlash(rel), Err: err})
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		relPath, err := filepath.Rel(absRoot, path)
		if err != nil {
			return fmt.Errorf("get relative path: %w", err)
		}
		relPath = filepath.ToSlash(relPath)

		matched, err := Matches(relPath, opts.Includes, opts.Excludes)
		if err != nil {
			return err
		}
		if !matched {
			return nil
		}

		fi, err := d.Info()
		if err != nil {
			skipped = append(skipped, SkippedFile{Path: relPath, Err: err})
			return nil
		}

		units = append(units, Unit{
			Path:      relPath,
			LocalPath: path,
			Size:      fi.Size(),
			ModTime:   fi.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("walk directory: %w", err)
	}

	sort.Slice(units, func(i, j int) bool {
		return units[i].Path < units[j].Path
	})

	return units, skipped, nil
}
