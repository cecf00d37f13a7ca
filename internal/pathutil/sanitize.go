// Package pathutil provides unix-style remote path helpers and root-confined
// path handling for providers that map remote paths onto a local tree.
package pathutil

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrPathEscapesRoot is returned when a path would resolve outside of its root.
var ErrPathEscapesRoot = errors.New("path escapes root")

// Clean normalizes a remote path and rejects traversal above the root.
// The result always starts with "/".
func Clean(p string) (string, error) {
	if p == "" {
		return Delimiter, nil
	}

	depth := 0
	for _, part := range strings.Split(p, Delimiter) {
		switch part {
		case "", ".":
			continue
		case "..":
			depth--
			if depth < 0 {
				return "", ErrPathEscapesRoot
			}
		default:
			depth++
		}
	}

	cleaned := filepath.ToSlash(filepath.Clean(Delimiter + strings.TrimPrefix(p, Delimiter)))
	if !strings.HasPrefix(cleaned, Delimiter) {
		return "", ErrPathEscapesRoot
	}
	return cleaned, nil
}

// SafeJoin joins a local root with a remote path and guarantees the result
// stays below root, following symlinks where they already exist.
func SafeJoin(root, rel string) (string, error) {
	cleanRoot := filepath.Clean(root)

	cleanRel, err := Clean(rel)
	if err != nil {
		return "", err
	}

	joined := filepath.Join(cleanRoot, filepath.FromSlash(strings.TrimPrefix(cleanRel, Delimiter)))

	realRoot := cleanRoot
	if r, err := filepath.EvalSymlinks(cleanRoot); err == nil {
		realRoot = r
	}

	resolved, err := filepath.EvalSymlinks(joined)
	if err != nil {
		// Target may not exist yet; confine its nearest existing parent instead.
		dir := filepath.Dir(joined)
		if dir != cleanRoot {
			if resolvedDir, dirErr := filepath.EvalSymlinks(dir); dirErr == nil {
				if !within(realRoot, resolvedDir) {
					return "", ErrPathEscapesRoot
				}
			}
		}
		if !within(cleanRoot, joined) {
			return "", ErrPathEscapesRoot
		}
		return joined, nil
	}

	if !within(realRoot, resolved) {
		return "", ErrPathEscapesRoot
	}
	return joined, nil
}

// ValidatePath rejects empty names and names carrying NUL or control bytes.
func ValidatePath(p string) error {
	if p == "" {
		return fmt.Errorf("path cannot be empty")
	}

	if strings.Contains(p, "\x00") {
		return ErrPathEscapesRoot
	}

	for _, char := range p {
		if char < 32 && char != '\t' {
			return fmt.Errorf("path contains control character %q", char)
		}
	}

	_, err := Clean(p)
	return err
}

func within(root, target string) bool {
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
