package config

import (
	"errors"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
)

// ResolveDesigns expands the Designs glob patterns, removes Exclude
// matches, and returns the sorted list of design documents
func (c *Config) ResolveDesigns(rootPath string) ([]string, error) {
	fileSet := make(map[string]bool)
	for _, pattern := range c.Designs {
		if !filepath.IsAbs(pattern) {
			pattern = filepath.Join(rootPath, pattern)
		}

		matches, err := expandGlob(pattern)
		if err != nil {
			// Silently skip invalid patterns
			continue
		}

		for _, match := range matches {
			if strings.ToLower(filepath.Ext(match)) != ".json" {
				continue
			}
			if isConfigFile(match) {
				continue
			}
			fileSet[match] = true
		}
	}

	for _, pattern := range c.Exclude {
		if !filepath.IsAbs(pattern) {
			pattern = filepath.Join(rootPath, pattern)
		}

		matches, err := expandGlob(pattern)
		if err != nil {
			continue
		}

		for _, match := range matches {
			delete(fileSet, match)
		}
	}

	var result []string
	for f := range fileSet {
		if c.ShouldIgnoreFile(f) {
			continue
		}
		result = append(result, f)
	}
	sort.Strings(result)
	return result, nil
}

func isConfigFile(path string) bool {
	base := filepath.Base(path)
	return base == FileName || base == "."+FileName
}

// expandGlob expands a glob pattern. A "**" segment matches any number of
// directories.
func expandGlob(pattern string) ([]string, error) {
	before, after, found := strings.Cut(pattern, "**")
	if !found {
		return filepath.Glob(pattern)
	}
	base := filepath.Clean(before)
	tail := strings.Trim(after, string(filepath.Separator))

	var matches []string
	err := filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
		switch {
		case err != nil:
			// unreadable entries are skipped, the walk goes on
			if d != nil && d.IsDir() && path != base {
				return fs.SkipDir
			}
			return nil
		case d.IsDir():
			return nil
		}
		rel, err := filepath.Rel(base, path)
		if err != nil {
			return nil
		}
		if tail == "" || matchTail(rel, tail) {
			matches = append(matches, path)
		}
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	return matches, err
}

// matchTail matches the part of a "**" pattern after the double star
// against the trailing path components of rel.
func matchTail(rel, tail string) bool {
	sep := string(filepath.Separator)
	want := strings.Count(tail, sep) + 1
	parts := strings.Split(rel, sep)
	if len(parts) < want {
		return false
	}
	ok, _ := filepath.Match(tail, strings.Join(parts[len(parts)-want:], sep))
	return ok
}
