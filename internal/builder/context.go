package builder

import (
	"archive/tar"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/moby/patternmatcher"
	"github.com/moby/patternmatcher/ignorefile"
)

var defaultExcludes = []string{".git", ".github", "node_modules", "vendor", ".env", ".easydeploy"}

// The daemon needs these even when .dockerignore matches them.
var alwaysIncluded = map[string]bool{"Dockerfile": true, ".dockerignore": true}

// createBuildContext tars sourcePath, skipping default excludes, log files
// and paths matched by .dockerignore.
func createBuildContext(sourcePath string) (io.ReadCloser, error) {
	excludes := make(map[string]bool)
	for _, e := range defaultExcludes {
		excludes[e] = true
	}
	ignore, err := readDockerignore(sourcePath)
	if err != nil {
		return nil, err
	}

	buf := new(bytes.Buffer)
	tw := tar.NewWriter(buf)

	err = filepath.Walk(sourcePath, func(file string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		relPath, err := filepath.Rel(sourcePath, file)
		if err != nil {
			return err
		}
		if relPath == "." {
			return nil
		}
		relPath = filepath.ToSlash(relPath)

		if excluded(relPath, excludes) {
			if fi.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if ignore != nil && !alwaysIncluded[relPath] {
			skip, err := ignore.MatchesOrParentMatches(relPath)
			if err != nil {
				return err
			}
			if skip {
				// A negated pattern may still re-include something below.
				if fi.IsDir() && !ignore.Exclusions() {
					return filepath.SkipDir
				}
				return nil
			}
		}
		if strings.HasSuffix(relPath, ".log") {
			return nil
		}

		header, err := tar.FileInfoHeader(fi, fi.Name())
		if err != nil {
			return err
		}
		header.Name = relPath

		if err := tw.WriteHeader(header); err != nil {
			return err
		}

		if fi.Mode().IsRegular() {
			data, err := os.Open(file)
			if err != nil {
				return err
			}
			defer data.Close()

			if _, err := io.Copy(tw, data); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := tw.Close(); err != nil {
		return nil, err
	}

	return io.NopCloser(bytes.NewReader(buf.Bytes())), nil
}

// excluded reports whether any path segment of relPath, or relPath itself,
// is excluded.
func excluded(relPath string, excludes map[string]bool) bool {
	if excludes[relPath] {
		return true
	}
	for _, part := range strings.Split(relPath, "/") {
		if excludes[part] {
			return true
		}
	}
	return false
}

// readDockerignore compiles the patterns in .dockerignore. A missing file
// yields a nil matcher.
func readDockerignore(dir string) (*patternmatcher.PatternMatcher, error) {
	f, err := os.Open(filepath.Join(dir, ".dockerignore"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	patterns, err := ignorefile.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read .dockerignore: %w", err)
	}
	if len(patterns) == 0 {
		return nil, nil
	}
	pm, err := patternmatcher.New(patterns)
	if err != nil {
		return nil, fmt.Errorf("parse .dockerignore: %w", err)
	}
	return pm, nil
}
