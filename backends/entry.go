package backends

import (
	"context"
	"time"

	"github.com/ebogdum/cloudbox/internal/pathutil"
)

// FileSystemEntry is a node of a provider's remote tree.
type FileSystemEntry interface {
	// Name is the last path segment; empty for the root.
	Name() string
	// Length is the size in bytes, or -1 when the provider does not know it.
	Length() int64
	Modified() time.Time
	// Path is the rooted remote path of the entry.
	Path() string
	// ParentPath is a lookup key for the parent, not a reference to it.
	// It is empty for the root.
	ParentPath() string
	IsDirectory() bool
}

// ChildLister enumerates the children of a directory on demand.
type ChildLister interface {
	ListChildren(ctx context.Context, dir *DirectoryEntry) ([]FileSystemEntry, error)
}

type entryInfo struct {
	path     string
	length   int64
	modified time.Time
}

func newEntryInfo(p string, length int64, modified time.Time) entryInfo {
	return entryInfo{
		path:     pathutil.Normalize(p),
		length:   length,
		modified: modified,
	}
}

func (e entryInfo) Name() string        { return pathutil.FileName(e.path) }
func (e entryInfo) Length() int64       { return e.length }
func (e entryInfo) Modified() time.Time { return e.modified }
func (e entryInfo) Path() string        { return e.path }

func (e entryInfo) ParentPath() string {
	if e.path == pathutil.Delimiter {
		return ""
	}
	return pathutil.ParentOrRoot(e.path)
}

// FileEntry is a file in the remote tree.
type FileEntry struct {
	entryInfo
}

// NewFileEntry creates a file entry for the given remote path.
func NewFileEntry(p string, length int64, modified time.Time) *FileEntry {
	return &FileEntry{entryInfo: newEntryInfo(p, length, modified)}
}

// IsDirectory always returns false for files
func (f *FileEntry) IsDirectory() bool { return false }

// DirectoryEntry is a folder in the remote tree. Its children are fetched
// from the provider on every call and never retained.
type DirectoryEntry struct {
	entryInfo
	lister ChildLister
}

// NewDirectoryEntry creates a directory entry whose children come from lister.
func NewDirectoryEntry(p string, modified time.Time, lister ChildLister) *DirectoryEntry {
	return &DirectoryEntry{
		entryInfo: newEntryInfo(p, 0, modified),
		lister:    lister,
	}
}

// IsDirectory always returns true for directories
func (d *DirectoryEntry) IsDirectory() bool { return true }

// IsRoot reports whether the directory is the provider root.
func (d *DirectoryEntry) IsRoot() bool { return d.path == pathutil.Delimiter }

// Children lists the directory content. Each call queries the provider again.
func (d *DirectoryEntry) Children(ctx context.Context) ([]FileSystemEntry, error) {
	if d.lister == nil {
		return nil, NewError(CodeProviderFailure, "directory entry is detached from its provider", nil)
	}
	return d.lister.ListChildren(ctx, d)
}

// Child looks up a direct child by name and fails with ErrFileNotFound when
// it does not exist.
func (d *DirectoryEntry) Child(ctx context.Context, name string) (FileSystemEntry, error) {
	children, err := d.Children(ctx)
	if err != nil {
		return nil, err
	}
	for _, child := range children {
		if child.Name() == name {
			return child, nil
		}
	}
	return nil, NewError(CodeFileNotFound, "no child named "+name+" in "+d.path, nil)
}

// ResolvePath turns a name relative to parent into a rooted remote path.
// Rooted names ignore parent; a nil parent means the root.
func ResolvePath(name string, parent *DirectoryEntry) string {
	if pathutil.IsRooted(name) || parent == nil {
		return pathutil.Normalize(name)
	}
	return pathutil.Normalize(pathutil.Combine(parent.Path(), name))
}
