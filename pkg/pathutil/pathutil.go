package pathutil

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/karrick/godirwalk"
)

// ExpandDirectory returns every regular file below dir in lexical walk order.
// Symlinks are followed only when they point at a regular file.
func ExpandDirectory(dir string) ([]string, error) {
	var files []string

	err := godirwalk.Walk(dir, &godirwalk.Options{
		Callback: func(path string, de *godirwalk.Dirent) error {
			if de.IsRegular() {
				files = append(files, path)
				return nil
			}

			if de.IsSymlink() {
				fi, err := os.Stat(path)
				if err == nil && fi.Mode().IsRegular() {
					files = append(files, path)
				}
			}

			return nil
		},
		Unsorted: false,
	})
	if err != nil {
		return nil, fmt.Errorf("error walking %s: %w", dir, err)
	}

	return files, nil
}

// ExpandPaths canonicalises each input and replaces directories with the files
// below them. Order of the inputs is kept.
func ExpandPaths(paths []string) ([]string, error) {
	var expanded []string

	for _, p := range paths {
		canonical, err := Canonicalize(p)
		if err != nil {
			return nil, err
		}

		fi, err := os.Stat(canonical)
		if err != nil {
			return nil, fmt.Errorf("path %s is invalid: %w", p, err)
		}

		if !fi.IsDir() {
			expanded = append(expanded, canonical)
			continue
		}

		files, err := ExpandDirectory(canonical)
		if err != nil {
			return nil, err
		}
		expanded = append(expanded, files...)
	}

	return expanded, nil
}

// Canonicalize returns the absolute, symlink free form of p.
func Canonicalize(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", fmt.Errorf("path %s is invalid: %w", p, err)
	}

	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", fmt.Errorf("path %s is invalid: %w", p, err)
	}

	return resolved, nil
}

// Relativize returns path relative to root using forward slashes. It fails when
// path is not below root.
func Relativize(root string, path string) (string, error) {
	absRoot, err := canonicalDir(root)
	if err != nil {
		return "", err
	}

	// The final element is left alone so a symlinked file keeps its own name.
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	parent, err := canonicalDir(filepath.Dir(absPath))
	if err != nil {
		return "", err
	}
	absPath = filepath.Join(parent, filepath.Base(absPath))

	rel, err := filepath.Rel(absRoot, absPath)
	if err != nil {
		return "", err
	}
	if rel == "." || !filepath.IsLocal(rel) {
		return "", fmt.Errorf("%s is outside %s", path, root)
	}

	return filepath.ToSlash(rel), nil
}

func canonicalDir(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}

	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved, nil
	}
	return abs, nil
}
