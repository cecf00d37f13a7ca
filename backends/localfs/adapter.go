// Package localfs exposes a local directory tree as a storage provider.
package localfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/ebogdum/cloudbox/backends"
	clog "github.com/ebogdum/cloudbox/core/log"
	"github.com/ebogdum/cloudbox/internal/pathutil"
)

const (
	// Kind identifies localfs configurations
	Kind = "localfs"
	// TokenType identifies localfs root tokens
	TokenType = "localfs.RootToken"
)

// Configuration points a session at a local root directory.
type Configuration struct {
	RootPath   string `mapstructure:"root_path" validate:"required"`
	CreateRoot bool   `mapstructure:"create_root"`
}

// Kind implements backends.Configuration
func (c *Configuration) Kind() string { return Kind }

// TrustUnsecureSSLConnections implements backends.Configuration. Local
// sessions never use TLS.
func (c *Configuration) TrustUnsecureSSLConnections() bool { return false }

// Token binds a session to the absolute root it was opened on
type Token struct {
	RootPath string
}

// TokenType implements backends.AccessToken
func (t *Token) TokenType() string { return TokenType }

// Provider implements backends.Provider for the local filesystem
type Provider struct {
	rootPath string
	logger   *zap.Logger
}

// New creates an unopened localfs provider
func New(logger *zap.Logger) *Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{logger: logger}
}

// Open implements backends.Provider
func (p *Provider) Open(ctx context.Context, cfg backends.Configuration, token backends.AccessToken) (backends.AccessToken, error) {
	localCfg, ok := cfg.(*Configuration)
	if !ok || localCfg == nil || localCfg.RootPath == "" {
		return nil, backends.NewError(backends.CodeInvalidParameters, "localfs provider needs a root path", nil)
	}

	rootPath, err := filepath.Abs(os.ExpandEnv(localCfg.RootPath))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root path %s: %w", localCfg.RootPath, err)
	}

	if localCfg.CreateRoot {
		if err := os.MkdirAll(rootPath, 0755); err != nil {
			return nil, fmt.Errorf("failed to create root path %s: %w", rootPath, err)
		}
	}

	info, err := os.Stat(rootPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, backends.NewError(backends.CodeFileNotFound, "root path "+rootPath+" does not exist", err)
		}
		return nil, fmt.Errorf("root path %s is not accessible: %w", rootPath, err)
	}
	if !info.IsDir() {
		return nil, backends.NewError(backends.CodeInvalidFileOrDirectoryName, "root path "+rootPath+" is not a directory", nil)
	}

	if presented, ok := token.(*Token); ok && presented != nil && presented.RootPath != rootPath {
		return nil, backends.NewError(backends.CodeUnauthorizedAccess, "token was issued for another root", nil)
	}

	p.rootPath = rootPath
	p.logger.Debug("Local session opened", clog.Path("root", rootPath))

	return &Token{RootPath: rootPath}, nil
}

// Close implements backends.Provider
func (p *Provider) Close() error {
	p.rootPath = ""
	return nil
}

// GetRoot implements backends.Provider
func (p *Provider) GetRoot(ctx context.Context) (*backends.DirectoryEntry, error) {
	entry, err := p.stat(pathutil.Delimiter)
	if err != nil {
		return nil, err
	}
	return entry.(*backends.DirectoryEntry), nil
}

// GetFileSystemObject implements backends.Provider
func (p *Provider) GetFileSystemObject(ctx context.Context, name string, parent *backends.DirectoryEntry) (backends.FileSystemEntry, error) {
	return p.stat(backends.ResolvePath(name, parent))
}

// ListChildren implements backends.ChildLister
func (p *Provider) ListChildren(ctx context.Context, dir *backends.DirectoryEntry) ([]backends.FileSystemEntry, error) {
	if dir == nil {
		return nil, backends.NewError(backends.CodeInvalidParameters, "directory is required", nil)
	}
	fullPath, err := p.fullPath(dir.Path())
	if err != nil {
		return nil, err
	}

	dirEntries, err := os.ReadDir(fullPath)
	if err != nil {
		return nil, p.mapError("read directory", dir.Path(), err)
	}

	children := make([]backends.FileSystemEntry, 0, len(dirEntries))
	for _, de := range dirEntries {
		info, err := de.Info()
		if err != nil {
			// Entry vanished between ReadDir and Info
			continue
		}
		children = append(children, p.entryFor(pathutil.Combine(dir.Path(), de.Name()), info))
	}
	return children, nil
}

// CreateFolder implements backends.Provider
func (p *Provider) CreateFolder(ctx context.Context, name string, parent *backends.DirectoryEntry) (*backends.DirectoryEntry, error) {
	if name == "" {
		return nil, backends.NewError(backends.CodeInvalidParameters, "folder name is required", nil)
	}
	remote := backends.ResolvePath(name, parent)
	fullPath, err := p.fullPath(remote)
	if err != nil {
		return nil, err
	}

	if info, err := os.Stat(fullPath); err == nil {
		if !info.IsDir() {
			return nil, backends.NewError(backends.CodeInvalidFileOrDirectoryName, "path exists as file, not directory", nil)
		}
		return backends.NewDirectoryEntry(remote, info.ModTime(), p), nil
	}

	if err := os.Mkdir(fullPath, 0755); err != nil {
		return nil, p.mapError("create directory", remote, err)
	}

	entry, err := p.stat(remote)
	if err != nil {
		return nil, err
	}
	return entry.(*backends.DirectoryEntry), nil
}

// CreateFile implements backends.Provider
func (p *Provider) CreateFile(ctx context.Context, parent *backends.DirectoryEntry, name string) (*backends.FileEntry, error) {
	if parent == nil || name == "" {
		return nil, backends.NewError(backends.CodeInvalidParameters, "parent and name are required", nil)
	}
	remote := backends.ResolvePath(name, parent)
	fullPath, err := p.fullPath(remote)
	if err != nil {
		return nil, err
	}

	file, err := os.OpenFile(fullPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, p.mapError("create file", remote, err)
	}
	info, err := file.Stat()
	file.Close()
	if err != nil {
		return nil, p.mapError("stat file", remote, err)
	}

	return backends.NewFileEntry(remote, info.Size(), info.ModTime()), nil
}

// Delete removes a file or a directory tree
func (p *Provider) Delete(ctx context.Context, entry backends.FileSystemEntry) (bool, error) {
	if entry == nil || entry.Path() == pathutil.Delimiter {
		return false, backends.NewError(backends.CodeInvalidParameters, "cannot delete the root", nil)
	}
	fullPath, err := p.fullPath(entry.Path())
	if err != nil {
		return false, err
	}

	if _, err := os.Lstat(fullPath); err != nil {
		return false, p.mapError("delete", entry.Path(), err)
	}
	if err := os.RemoveAll(fullPath); err != nil {
		return false, p.mapError("delete", entry.Path(), err)
	}
	return true, nil
}

// Move implements backends.Provider
func (p *Provider) Move(ctx context.Context, entry backends.FileSystemEntry, newParent *backends.DirectoryEntry) (bool, error) {
	if entry == nil || newParent == nil {
		return false, backends.NewError(backends.CodeInvalidParameters, "entry and new parent are required", nil)
	}
	return p.rename(entry.Path(), pathutil.Combine(newParent.Path(), entry.Name()))
}

// Rename implements backends.Provider
func (p *Provider) Rename(ctx context.Context, entry backends.FileSystemEntry, newName string) (bool, error) {
	if entry == nil || newName == "" || strings.ContainsAny(newName, `/\`) {
		return false, backends.NewError(backends.CodeInvalidParameters, "entry and a plain new name are required", nil)
	}
	return p.rename(entry.Path(), pathutil.Combine(pathutil.ParentOrRoot(entry.Path()), newName))
}

func (p *Provider) rename(from, to string) (bool, error) {
	if from == pathutil.Delimiter || strings.HasPrefix(to, from+pathutil.Delimiter) {
		return false, backends.NewError(backends.CodeInvalidParameters, fmt.Sprintf("cannot move %s to %s", from, to), nil)
	}
	src, err := p.fullPath(from)
	if err != nil {
		return false, err
	}
	dst, err := p.fullPath(to)
	if err != nil {
		return false, err
	}

	if _, err := os.Lstat(dst); err == nil {
		return false, backends.NewError(backends.CodeInvalidFileOrDirectoryName, to+" already exists", nil)
	}
	if err := os.Rename(src, dst); err != nil {
		return false, p.mapError("move", from, err)
	}
	return true, nil
}

// Copy copies a file or a directory tree below newParent
func (p *Provider) Copy(ctx context.Context, entry backends.FileSystemEntry, newParent *backends.DirectoryEntry) (bool, error) {
	if entry == nil || newParent == nil {
		return false, backends.NewError(backends.CodeInvalidParameters, "entry and new parent are required", nil)
	}
	to := pathutil.Combine(newParent.Path(), entry.Name())
	if entry.Path() == pathutil.Delimiter || strings.HasPrefix(to, entry.Path()+pathutil.Delimiter) {
		return false, backends.NewError(backends.CodeInvalidParameters, "cannot copy a folder into itself", nil)
	}

	src, err := p.fullPath(entry.Path())
	if err != nil {
		return false, err
	}
	dst, err := p.fullPath(to)
	if err != nil {
		return false, err
	}
	if _, err := os.Lstat(dst); err == nil {
		return false, backends.NewError(backends.CodeInvalidFileOrDirectoryName, to+" already exists", nil)
	}

	err = filepath.WalkDir(src, func(current string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(src, current)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		info, err := d.Info()
		if err != nil {
			return err
		}
		if d.IsDir() {
			return os.MkdirAll(target, info.Mode().Perm()|0700)
		}
		if !info.Mode().IsRegular() {
			// Symlinks and devices are not copied
			return nil
		}
		return copyFile(current, target, info.Mode().Perm())
	})
	if err != nil {
		return false, p.mapError("copy", entry.Path(), err)
	}
	return true, nil
}

func copyFile(src, dst string, perm fs.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return fmt.Errorf("failed to write file content: %w", err)
	}
	return out.Close()
}

// GetFileSystemObjectURL returns a file:// URL for the object
func (p *Provider) GetFileSystemObjectURL(ctx context.Context, path string, parent *backends.DirectoryEntry) (*url.URL, error) {
	fullPath, err := p.fullPath(backends.ResolvePath(path, parent))
	if err != nil {
		return nil, err
	}
	return &url.URL{Scheme: "file", Path: filepath.ToSlash(fullPath)}, nil
}

// GetFileSystemObjectPath implements backends.Provider
func (p *Provider) GetFileSystemObjectPath(entry backends.FileSystemEntry) string {
	if entry == nil {
		return ""
	}
	return entry.Path()
}

// OpenRead implements backends.Provider
func (p *Provider) OpenRead(ctx context.Context, file *backends.FileEntry) (io.ReadCloser, error) {
	if file == nil {
		return nil, backends.NewError(backends.CodeInvalidParameters, "file is required", nil)
	}
	fullPath, err := p.fullPath(file.Path())
	if err != nil {
		return nil, err
	}

	f, err := os.Open(fullPath)
	if err != nil {
		return nil, p.mapError("open file", file.Path(), err)
	}
	return f, nil
}

// pendingFile stages writes in a temporary sibling and renames it over the
// target on Close.
type pendingFile struct {
	*os.File
	target string
	closed bool
}

func (f *pendingFile) Close() error {
	if f.closed {
		return nil
	}
	f.closed = true

	if err := f.File.Close(); err != nil {
		os.Remove(f.File.Name())
		return fmt.Errorf("failed to flush %s: %w", f.target, err)
	}
	if err := os.Rename(f.File.Name(), f.target); err != nil {
		os.Remove(f.File.Name())
		return fmt.Errorf("failed to commit %s: %w", f.target, err)
	}
	return nil
}

// OpenWrite implements backends.Provider
func (p *Provider) OpenWrite(ctx context.Context, file *backends.FileEntry) (io.WriteCloser, error) {
	if file == nil {
		return nil, backends.NewError(backends.CodeInvalidParameters, "file is required", nil)
	}
	fullPath, err := p.fullPath(file.Path())
	if err != nil {
		return nil, err
	}

	tmp, err := os.CreateTemp(filepath.Dir(fullPath), ".cloudbox-*")
	if err != nil {
		return nil, p.mapError("open file for write", file.Path(), err)
	}
	return &pendingFile{File: tmp, target: fullPath}, nil
}

// StoreToken implements backends.Provider
func (p *Provider) StoreToken(data map[string]string, token backends.AccessToken) error {
	t, ok := token.(*Token)
	if !ok || t == nil {
		return backends.NewError(backends.CodeInvalidParameters, fmt.Sprintf("localfs provider cannot store %T", token), nil)
	}
	data["RootPath"] = t.RootPath
	return nil
}

// LoadToken implements backends.Provider
func (p *Provider) LoadToken(data map[string]string) (backends.AccessToken, error) {
	root, ok := data["RootPath"]
	if !ok || root == "" {
		return nil, backends.NewError(backends.CodeUnexpectedPayloadShape, "localfs token carries no root path", nil)
	}
	return &Token{RootPath: root}, nil
}

func (p *Provider) fullPath(remote string) (string, error) {
	if p.rootPath == "" {
		return "", backends.NewError(backends.CodeOpenedConnectionNeeded, "localfs provider is not open", nil)
	}
	if err := pathutil.ValidatePath(remote); err != nil {
		return "", backends.NewError(backends.CodeInvalidFileOrDirectoryName, "invalid path "+remote, err)
	}
	fullPath, err := pathutil.SafeJoin(p.rootPath, remote)
	if err != nil {
		return "", p.mapError("resolve", remote, err)
	}
	return fullPath, nil
}

func (p *Provider) stat(remote string) (backends.FileSystemEntry, error) {
	fullPath, err := p.fullPath(remote)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(fullPath)
	if err != nil {
		return nil, p.mapError("stat", remote, err)
	}
	return p.entryFor(remote, info), nil
}

func (p *Provider) entryFor(remote string, info fs.FileInfo) backends.FileSystemEntry {
	if info.IsDir() {
		return backends.NewDirectoryEntry(remote, info.ModTime(), p)
	}
	return backends.NewFileEntry(remote, info.Size(), info.ModTime())
}

func (p *Provider) mapError(op, remote string, err error) error {
	switch {
	case errors.Is(err, pathutil.ErrPathEscapesRoot):
		p.logger.Warn("Path escapes provider root", clog.Path("path", remote))
		return backends.NewError(backends.CodeInvalidFileOrDirectoryName, remote+" escapes the root", err)
	case errors.Is(err, fs.ErrNotExist):
		return backends.NewError(backends.CodeFileNotFound, remote, err)
	default:
		return backends.NewError(backends.CodeProviderFailure, fmt.Sprintf("failed to %s %s", op, remote), err)
	}
}
