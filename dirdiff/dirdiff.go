// Package dirdiff compares a local directory with a remote folder by path.
//
// Both trees are walked into maps keyed by the "/"-separated path relative to
// their root. The sorted key sequences are then merge-joined, so the result
// is ordered by path. Entries are matched by path only: an Identical row says
// the path exists on both sides, not that the content is equal.
package dirdiff

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ebogdum/cloudbox/backends"
	"github.com/ebogdum/cloudbox/internal/pathutil"
	"github.com/ebogdum/cloudbox/metrics"
)

// Kind classifies a diff row
type Kind int

const (
	// Identical means the path exists locally and remotely
	Identical Kind = iota
	// MissingInRemoteFolder means the path exists only locally
	MissingInRemoteFolder
	// MissingInLocalFolder means the path exists only remotely
	MissingInLocalFolder
)

func (k Kind) String() string {
	switch k {
	case Identical:
		return "identical"
	case MissingInRemoteFolder:
		return "missing_in_remote"
	case MissingInLocalFolder:
		return "missing_in_local"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// LocalNode is a file or directory found below the local root
type LocalNode struct {
	// FullPath is the path on the local filesystem
	FullPath string
	Size     int64
	ModTime  time.Time
	IsDir    bool
}

// ResultItem is one row of a comparison. Local is nil for
// MissingInLocalFolder rows and Remote is nil for MissingInRemoteFolder rows.
type ResultItem struct {
	// Path is relative to both roots, "/"-separated, without a leading "/"
	Path   string
	Local  *LocalNode
	Remote backends.FileSystemEntry
	Kind   Kind
}

// Options tunes a comparison
type Options struct {
	// Recursive descends into subdirectories on both sides
	Recursive bool
	// IncludeDirectories emits rows for directories as well as files
	IncludeDirectories bool
}

// Compare diffs the files below localRoot with the files below remoteRoot.
func Compare(ctx context.Context, localRoot string, remoteRoot *backends.DirectoryEntry, recursive bool) ([]ResultItem, error) {
	return CompareWithOptions(ctx, localRoot, remoteRoot, Options{Recursive: recursive})
}

// CompareWithOptions is Compare with directory rows optionally included
func CompareWithOptions(ctx context.Context, localRoot string, remoteRoot *backends.DirectoryEntry, opts Options) ([]ResultItem, error) {
	if localRoot == "" || remoteRoot == nil {
		return nil, backends.NewError(backends.CodeInvalidParameters, "local root and remote root are required", nil)
	}

	local, err := localFileList(localRoot, opts)
	if err != nil {
		return nil, err
	}
	remote, err := remoteFileList(ctx, remoteRoot, opts)
	if err != nil {
		return nil, err
	}

	items := merge(local, remote)
	for _, item := range items {
		metrics.DiffItemsTotal.WithLabelValues(item.Kind.String()).Inc()
	}
	return items, nil
}

func merge(local map[string]*LocalNode, remote map[string]backends.FileSystemEntry) []ResultItem {
	localKeys := sortedKeys(local)
	remoteKeys := sortedKeys(remote)
	items := make([]ResultItem, 0, len(localKeys)+len(remoteKeys))

	i, j := 0, 0
	for i < len(localKeys) || j < len(remoteKeys) {
		switch {
		case j >= len(remoteKeys) || (i < len(localKeys) && localKeys[i] < remoteKeys[j]):
			items = append(items, ResultItem{Path: localKeys[i], Local: local[localKeys[i]], Kind: MissingInRemoteFolder})
			i++
		case i >= len(localKeys) || localKeys[i] > remoteKeys[j]:
			items = append(items, ResultItem{Path: remoteKeys[j], Remote: remote[remoteKeys[j]], Kind: MissingInLocalFolder})
			j++
		default:
			items = append(items, ResultItem{Path: localKeys[i], Local: local[localKeys[i]], Remote: remote[remoteKeys[j]], Kind: Identical})
			i++
			j++
		}
	}
	return items
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func localFileList(root string, opts Options) (map[string]*LocalNode, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, backends.NewError(backends.CodeFileNotFound, "local root not found: "+root, err)
	}
	if !info.IsDir() {
		return nil, backends.NewError(backends.CodeInvalidFileOrDirectoryName, root+" is not a directory", nil)
	}

	result := make(map[string]*LocalNode)
	stack := []string{root}
	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		entries, err := os.ReadDir(current)
		if err != nil {
			return nil, fmt.Errorf("failed to read local directory %s: %w", current, err)
		}

		for _, entry := range entries {
			full := filepath.Join(current, entry.Name())
			if entry.IsDir() {
				if !opts.Recursive {
					continue
				}
				stack = append(stack, full)
				if !opts.IncludeDirectories {
					continue
				}
			}

			fi, err := entry.Info()
			if err != nil {
				// Removed between listing and stat
				continue
			}
			rel, err := filepath.Rel(root, full)
			if err != nil {
				return nil, fmt.Errorf("failed to relativize %s: %w", full, err)
			}
			result[filepath.ToSlash(rel)] = &LocalNode{
				FullPath: full,
				Size:     fi.Size(),
				ModTime:  fi.ModTime(),
				IsDir:    entry.IsDir(),
			}
		}
	}
	return result, nil
}

func remoteFileList(ctx context.Context, root *backends.DirectoryEntry, opts Options) (map[string]backends.FileSystemEntry, error) {
	result := make(map[string]backends.FileSystemEntry)
	stack := []*backends.DirectoryEntry{root}
	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		children, err := current.Children(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list remote folder %s: %w", current.Path(), err)
		}

		for _, child := range children {
			if dir, ok := child.(*backends.DirectoryEntry); ok {
				if !opts.Recursive {
					continue
				}
				stack = append(stack, dir)
				if !opts.IncludeDirectories {
					continue
				}
			}
			result[relativeKey(root.Path(), child.Path())] = child
		}
	}
	return result, nil
}

// relativeKey strips the root folder from a remote path
func relativeKey(root, p string) string {
	if root != pathutil.Delimiter {
		p = strings.TrimPrefix(p, root)
	}
	return strings.TrimPrefix(p, pathutil.Delimiter)
}

// Summary counts the rows of a comparison per kind
type Summary struct {
	Identical       int
	MissingInRemote int
	MissingInLocal  int
}

// Summarize counts items per kind
func Summarize(items []ResultItem) Summary {
	var s Summary
	for _, item := range items {
		switch item.Kind {
		case Identical:
			s.Identical++
		case MissingInRemoteFolder:
			s.MissingInRemote++
		case MissingInLocalFolder:
			s.MissingInLocal++
		}
	}
	return s
}

// Total is the number of rows
func (s Summary) Total() int {
	return s.Identical + s.MissingInRemote + s.MissingInLocal
}

// InSync reports whether every path exists on both sides
func (s Summary) InSync() bool {
	return s.MissingInRemote == 0 && s.MissingInLocal == 0
}
