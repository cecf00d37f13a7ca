package core

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/ebogdum/cloudbox/backends"
	"github.com/ebogdum/cloudbox/internal/pathutil"
)

// GetFolder resolves a rooted folder path such as /Public/Sub.
//
// A path that is not rooted fails with ErrInvalidFileOrDirectoryName; a
// missing object or a file fails with ErrFileNotFound. A closed facade
// returns nil.
func (s *CloudStorage) GetFolder(ctx context.Context, path string) (*backends.DirectoryEntry, error) {
	if !s.IsOpened() {
		return nil, nil
	}
	if !pathutil.IsRooted(path) {
		return nil, backends.NewError(backends.CodeInvalidFileOrDirectoryName, "folder path must be rooted: "+path, nil)
	}
	return s.GetFolderIn(ctx, path, nil)
}

// GetFolderIn resolves path relative to parent
func (s *CloudStorage) GetFolderIn(ctx context.Context, path string, parent *backends.DirectoryEntry) (*backends.DirectoryEntry, error) {
	if !s.IsOpened() {
		return nil, nil
	}

	var entry backends.FileSystemEntry
	var err error
	if backends.ResolvePath(path, parent) == pathutil.Delimiter {
		entry, err = s.GetRoot(ctx)
	} else {
		entry, err = s.GetFileSystemObject(ctx, path, parent)
	}
	if err != nil {
		if errors.Is(err, backends.ErrFileNotFound) {
			return nil, backends.NewError(backends.CodeFileNotFound, "folder not found: "+path, err)
		}
		return nil, err
	}

	dir, ok := entry.(*backends.DirectoryEntry)
	if !ok || dir == nil {
		return nil, backends.NewError(backends.CodeFileNotFound, "not a folder: "+path, nil)
	}
	return dir, nil
}

// FindFolder is GetFolderIn without the not-found failure: a missing folder
// yields nil, nil. Other errors are still returned.
func (s *CloudStorage) FindFolder(ctx context.Context, path string, parent *backends.DirectoryEntry) (*backends.DirectoryEntry, error) {
	dir, err := s.GetFolderIn(ctx, path, parent)
	if errors.Is(err, backends.ErrFileNotFound) {
		return nil, nil
	}
	return dir, err
}

// GetFile resolves path below start to a file. A folder fails with
// ErrInvalidFileOrDirectoryName.
func (s *CloudStorage) GetFile(ctx context.Context, path string, start *backends.DirectoryEntry) (*backends.FileEntry, error) {
	if !s.IsOpened() {
		return nil, nil
	}

	entry, err := s.GetFileSystemObject(ctx, path, start)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, backends.NewError(backends.CodeFileNotFound, "file not found: "+path, nil)
	}
	file, ok := entry.(*backends.FileEntry)
	if !ok {
		return nil, backends.NewError(backends.CodeInvalidFileOrDirectoryName, path+" is a folder", nil)
	}
	return file, nil
}

// CreateFolderPath creates every missing folder of a rooted path and returns
// the last one. Existing folders are reused, so repeated calls create
// nothing. A path that is not rooted returns nil.
func (s *CloudStorage) CreateFolderPath(ctx context.Context, path string) (*backends.DirectoryEntry, error) {
	if !s.IsOpened() || !pathutil.IsRooted(path) {
		return nil, nil
	}

	current, err := s.GetRoot(ctx)
	if err != nil {
		return nil, err
	}

	for _, el := range pathutil.PathElements(path) {
		next, err := s.FindFolder(ctx, el, current)
		if err != nil {
			return nil, err
		}

		if next == nil {
			next, err = s.CreateFolder(ctx, el, current)
			if err != nil {
				return nil, err
			}
			if next == nil {
				return nil, backends.NewError(backends.CodeCreateOperationFailed,
					"failed to create "+pathutil.Combine(current.Path(), el), nil)
			}
		}
		current = next
	}

	s.logger.Debug("Folder path ensured", zap.String("path", current.Path()))
	return current, nil
}

// splitPath returns the parent folder and leaf of path; a root-level path has
// the root as parent.
func splitPath(path string) (string, string) {
	dir := pathutil.DirectoryName(path)
	if dir == "" {
		dir = pathutil.Delimiter
	}
	return dir, pathutil.FileName(path)
}

// resolveEntry looks up the entry at path through its parent folder
func (s *CloudStorage) resolveEntry(ctx context.Context, path string) (backends.FileSystemEntry, error) {
	dir, leaf := splitPath(path)
	if leaf == "" {
		return nil, backends.NewError(backends.CodeInvalidParameters, "path names no entry: "+path, nil)
	}

	container, err := s.GetFolder(ctx, dir)
	if err != nil {
		return nil, err
	}
	entry, err := s.GetFileSystemObject(ctx, leaf, container)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, backends.NewError(backends.CodeFileNotFound, "entry not found: "+path, nil)
	}
	return entry, nil
}

// DeletePath deletes the file or folder at path
func (s *CloudStorage) DeletePath(ctx context.Context, path string) (bool, error) {
	if !s.IsOpened() {
		return false, nil
	}
	if path == "" {
		return false, backends.NewError(backends.CodeInvalidParameters, "path is required", nil)
	}

	entry, err := s.resolveEntry(ctx, path)
	if err != nil {
		return false, err
	}
	return s.DeleteFileSystemEntry(ctx, entry)
}

// MovePath moves the entry at path into the folder at newParentPath
func (s *CloudStorage) MovePath(ctx context.Context, path, newParentPath string) (bool, error) {
	if !s.IsOpened() {
		return false, nil
	}
	if path == "" || newParentPath == "" {
		return false, backends.NewError(backends.CodeInvalidParameters, "path and new parent path are required", nil)
	}

	entry, err := s.resolveEntry(ctx, path)
	if err != nil {
		return false, err
	}
	newParent, err := s.GetFolder(ctx, newParentPath)
	if err != nil {
		return false, err
	}
	return s.MoveFileSystemEntry(ctx, entry, newParent)
}

// CopyPath copies the entry at path into the folder at newParentPath
func (s *CloudStorage) CopyPath(ctx context.Context, path, newParentPath string) (bool, error) {
	if !s.IsOpened() {
		return false, nil
	}
	if path == "" || newParentPath == "" {
		return false, backends.NewError(backends.CodeInvalidParameters, "path and new parent path are required", nil)
	}

	entry, err := s.resolveEntry(ctx, path)
	if err != nil {
		return false, err
	}
	newParent, err := s.GetFolder(ctx, newParentPath)
	if err != nil {
		return false, err
	}
	return s.CopyFileSystemEntry(ctx, entry, newParent)
}

// RenamePath renames the entry at path to newName
func (s *CloudStorage) RenamePath(ctx context.Context, path, newName string) (bool, error) {
	if !s.IsOpened() {
		return false, nil
	}
	if path == "" || newName == "" {
		return false, backends.NewError(backends.CodeInvalidParameters, "path and new name are required", nil)
	}

	entry, err := s.resolveEntry(ctx, path)
	if err != nil {
		return false, err
	}
	return s.RenameFileSystemEntry(ctx, entry, newName)
}

// CreateFilePath creates an empty file at path. The parent folder must exist.
func (s *CloudStorage) CreateFilePath(ctx context.Context, path string) (*backends.FileEntry, error) {
	if !s.IsOpened() {
		return nil, nil
	}
	dir, leaf := splitPath(path)
	if leaf == "" {
		return nil, backends.NewError(backends.CodeInvalidParameters, "file path is required", nil)
	}

	container, err := s.GetFolder(ctx, dir)
	if err != nil {
		return nil, err
	}
	return s.CreateFile(ctx, container, leaf)
}
