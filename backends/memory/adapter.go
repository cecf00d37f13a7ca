// Package memory implements an in-process storage provider. It backs dry
// runs and tests, and can simulate failures and record calls.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ebogdum/cloudbox/backends"
	"github.com/ebogdum/cloudbox/internal/pathutil"
)

const (
	// Kind identifies memory configurations
	Kind = "memory"
	// TokenType identifies memory session tokens
	TokenType = "memory.SessionToken"
)

// Configuration opens a session on a memory tree.
type Configuration struct {
	// Name shows up as the host of object URLs
	Name string `mapstructure:"name"`
	// Secret, when set, must be presented by the token passed to Open
	Secret string `mapstructure:"secret"`
	// Tree is the shared store; a nil Tree gives every session a fresh one
	Tree *Tree `mapstructure:"-"`
	// TrustUnsecure has no transport effect here and only mirrors the flag
	TrustUnsecure bool `mapstructure:"trust_unsecure_ssl"`
}

// Kind implements backends.Configuration
func (c *Configuration) Kind() string { return Kind }

// TrustUnsecureSSLConnections implements backends.Configuration
func (c *Configuration) TrustUnsecureSSLConnections() bool { return c.TrustUnsecure }

// Token is the credential of a memory session
type Token struct {
	Secret string
	Issued time.Time
}

// TokenType implements backends.AccessToken
func (t *Token) TokenType() string { return TokenType }

// Provider is the memory storage provider
type Provider struct {
	cfg    *Configuration
	tree   *Tree
	logger *zap.Logger

	// Error simulation
	OpenError         error
	CreateFolderError error
	NilCreateFolder   bool
	ReadError         error

	// Call tracking
	OpenCalls         int
	CloseCalls        int
	CreateFolderCalls int
	LookupCalls       int
}

// New creates an unopened memory provider
func New(logger *zap.Logger) *Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{logger: logger}
}

// Open implements backends.Provider
func (p *Provider) Open(ctx context.Context, cfg backends.Configuration, token backends.AccessToken) (backends.AccessToken, error) {
	p.OpenCalls++

	memCfg, ok := cfg.(*Configuration)
	if !ok || memCfg == nil {
		return nil, backends.NewError(backends.CodeInvalidParameters,
			fmt.Sprintf("memory provider cannot open %T", cfg), nil)
	}
	if p.OpenError != nil {
		return nil, p.OpenError
	}

	if memCfg.Secret != "" {
		presented, _ := token.(*Token)
		if presented == nil || presented.Secret != memCfg.Secret {
			return nil, backends.NewError(backends.CodeUnauthorizedAccess, "memory session secret rejected", nil)
		}
	}

	p.cfg = memCfg
	p.tree = memCfg.Tree
	if p.tree == nil {
		p.tree = NewTree()
	}

	p.logger.Debug("Memory session opened", zap.String("name", memCfg.Name))

	return &Token{Secret: memCfg.Secret, Issued: p.tree.now().UTC().Truncate(time.Second)}, nil
}

// Close implements backends.Provider
func (p *Provider) Close() error {
	p.CloseCalls++
	p.tree = nil
	return nil
}

// Tree returns the tree of the open session
func (p *Provider) Tree() *Tree {
	return p.tree
}

// GetRoot implements backends.Provider
func (p *Provider) GetRoot(ctx context.Context) (*backends.DirectoryEntry, error) {
	return p.lookupDir(pathutil.Delimiter)
}

// GetFileSystemObject implements backends.Provider
func (p *Provider) GetFileSystemObject(ctx context.Context, name string, parent *backends.DirectoryEntry) (backends.FileSystemEntry, error) {
	p.LookupCalls++
	if err := p.checkOpen(); err != nil {
		return nil, err
	}
	return p.lookup(backends.ResolvePath(name, parent))
}

// ListChildren implements backends.ChildLister
func (p *Provider) ListChildren(ctx context.Context, dir *backends.DirectoryEntry) ([]backends.FileSystemEntry, error) {
	if err := p.checkOpen(); err != nil {
		return nil, err
	}
	if dir == nil {
		return nil, backends.NewError(backends.CodeInvalidParameters, "directory is required", nil)
	}
	if _, err := p.lookupDir(dir.Path()); err != nil {
		return nil, err
	}

	var entries []backends.FileSystemEntry
	for _, child := range p.tree.children(dir.Path()) {
		entry, err := p.lookup(child)
		if err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// CreateFolder implements backends.Provider
func (p *Provider) CreateFolder(ctx context.Context, name string, parent *backends.DirectoryEntry) (*backends.DirectoryEntry, error) {
	p.CreateFolderCalls++
	if err := p.checkOpen(); err != nil {
		return nil, err
	}
	if p.CreateFolderError != nil {
		return nil, p.CreateFolderError
	}
	if p.NilCreateFolder {
		return nil, nil
	}

	target := backends.ResolvePath(name, parent)
	if _, err := p.lookupDir(pathutil.ParentOrRoot(target)); err != nil {
		return nil, err
	}

	p.tree.mu.Lock()
	existing, exists := p.tree.nodes[target]
	if exists && !existing.dir {
		p.tree.mu.Unlock()
		return nil, backends.NewError(backends.CodeInvalidFileOrDirectoryName, target+" is a file", nil)
	}
	if !exists {
		p.tree.nodes[target] = &node{dir: true, modified: p.tree.now()}
	}
	p.tree.mu.Unlock()

	return p.lookupDir(target)
}

// CreateFile implements backends.Provider
func (p *Provider) CreateFile(ctx context.Context, parent *backends.DirectoryEntry, name string) (*backends.FileEntry, error) {
	if err := p.checkOpen(); err != nil {
		return nil, err
	}
	if parent == nil || name == "" {
		return nil, backends.NewError(backends.CodeInvalidParameters, "parent and name are required", nil)
	}
	if _, err := p.lookupDir(parent.Path()); err != nil {
		return nil, err
	}

	target := backends.ResolvePath(name, parent)

	p.tree.mu.Lock()
	if existing, exists := p.tree.nodes[target]; exists && existing.dir {
		p.tree.mu.Unlock()
		return nil, backends.NewError(backends.CodeInvalidFileOrDirectoryName, target+" is a folder", nil)
	}
	p.tree.nodes[target] = &node{modified: p.tree.now()}
	p.tree.mu.Unlock()

	return backends.NewFileEntry(target, 0, p.tree.now()), nil
}

// Delete implements backends.Provider
func (p *Provider) Delete(ctx context.Context, entry backends.FileSystemEntry) (bool, error) {
	if err := p.checkOpen(); err != nil {
		return false, err
	}
	if entry == nil || entry.Path() == pathutil.Delimiter {
		return false, backends.NewError(backends.CodeInvalidParameters, "cannot delete the root", nil)
	}

	p.tree.mu.Lock()
	defer p.tree.mu.Unlock()

	if _, exists := p.tree.nodes[entry.Path()]; !exists {
		return false, backends.NewError(backends.CodeFileNotFound, entry.Path(), nil)
	}
	for _, victim := range p.tree.subtree(entry.Path()) {
		delete(p.tree.nodes, victim)
	}
	return true, nil
}

// Move implements backends.Provider
func (p *Provider) Move(ctx context.Context, entry backends.FileSystemEntry, newParent *backends.DirectoryEntry) (bool, error) {
	if entry == nil || newParent == nil {
		return false, backends.NewError(backends.CodeInvalidParameters, "entry and new parent are required", nil)
	}
	return p.relocate(entry.Path(), pathutil.Combine(newParent.Path(), entry.Name()), true)
}

// Copy implements backends.Provider
func (p *Provider) Copy(ctx context.Context, entry backends.FileSystemEntry, newParent *backends.DirectoryEntry) (bool, error) {
	if entry == nil || newParent == nil {
		return false, backends.NewError(backends.CodeInvalidParameters, "entry and new parent are required", nil)
	}
	return p.relocate(entry.Path(), pathutil.Combine(newParent.Path(), entry.Name()), false)
}

// Rename implements backends.Provider
func (p *Provider) Rename(ctx context.Context, entry backends.FileSystemEntry, newName string) (bool, error) {
	if entry == nil || newName == "" || strings.Contains(newName, pathutil.Delimiter) {
		return false, backends.NewError(backends.CodeInvalidParameters, "entry and a plain new name are required", nil)
	}
	return p.relocate(entry.Path(), pathutil.Combine(pathutil.ParentOrRoot(entry.Path()), newName), true)
}

func (p *Provider) relocate(from, to string, removeSource bool) (bool, error) {
	if err := p.checkOpen(); err != nil {
		return false, err
	}
	if from == pathutil.Delimiter || from == to || strings.HasPrefix(to, from+pathutil.Delimiter) {
		return false, backends.NewError(backends.CodeInvalidParameters,
			fmt.Sprintf("cannot relocate %s to %s", from, to), nil)
	}
	if _, err := p.lookupDir(pathutil.ParentOrRoot(to)); err != nil {
		return false, err
	}

	p.tree.mu.Lock()
	defer p.tree.mu.Unlock()

	if _, exists := p.tree.nodes[from]; !exists {
		return false, backends.NewError(backends.CodeFileNotFound, from, nil)
	}
	if _, exists := p.tree.nodes[to]; exists {
		return false, backends.NewError(backends.CodeInvalidFileOrDirectoryName, to+" already exists", nil)
	}

	for _, src := range p.tree.subtree(from) {
		n := p.tree.nodes[src]
		dst := to + strings.TrimPrefix(src, from)
		p.tree.nodes[dst] = &node{dir: n.dir, data: append([]byte(nil), n.data...), modified: p.tree.now()}
		if removeSource {
			delete(p.tree.nodes, src)
		}
	}
	return true, nil
}

// GetFileSystemObjectURL implements backends.Provider
func (p *Provider) GetFileSystemObjectURL(ctx context.Context, path string, parent *backends.DirectoryEntry) (*url.URL, error) {
	if err := p.checkOpen(); err != nil {
		return nil, err
	}
	return &url.URL{Scheme: "memory", Host: p.cfg.Name, Path: backends.ResolvePath(path, parent)}, nil
}

// GetFileSystemObjectPath implements backends.Provider
func (p *Provider) GetFileSystemObjectPath(entry backends.FileSystemEntry) string {
	if entry == nil {
		return ""
	}
	return entry.Path()
}

type contentReader struct {
	*bytes.Reader
}

func (contentReader) Close() error { return nil }

// OpenRead implements backends.Provider
func (p *Provider) OpenRead(ctx context.Context, file *backends.FileEntry) (io.ReadCloser, error) {
	if err := p.checkOpen(); err != nil {
		return nil, err
	}
	if p.ReadError != nil {
		return nil, p.ReadError
	}
	if file == nil {
		return nil, backends.NewError(backends.CodeInvalidParameters, "file is required", nil)
	}
	data, ok := p.tree.ReadFile(file.Path())
	if !ok {
		return nil, backends.NewError(backends.CodeFileNotFound, file.Path(), nil)
	}
	return contentReader{bytes.NewReader(data)}, nil
}

type contentWriter struct {
	tree   *Tree
	path   string
	buf    bytes.Buffer
	closed bool
}

func (w *contentWriter) Write(b []byte) (int, error) {
	if w.closed {
		return 0, fmt.Errorf("write to closed memory file %s", w.path)
	}
	return w.buf.Write(b)
}

func (w *contentWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	w.tree.mu.Lock()
	defer w.tree.mu.Unlock()
	w.tree.nodes[w.path] = &node{data: append([]byte(nil), w.buf.Bytes()...), modified: w.tree.now()}
	return nil
}

// OpenWrite implements backends.Provider
func (p *Provider) OpenWrite(ctx context.Context, file *backends.FileEntry) (io.WriteCloser, error) {
	if err := p.checkOpen(); err != nil {
		return nil, err
	}
	if file == nil {
		return nil, backends.NewError(backends.CodeInvalidParameters, "file is required", nil)
	}
	if _, err := p.lookupDir(pathutil.ParentOrRoot(file.Path())); err != nil {
		return nil, err
	}
	return &contentWriter{tree: p.tree, path: file.Path()}, nil
}

// StoreToken implements backends.Provider
func (p *Provider) StoreToken(data map[string]string, token backends.AccessToken) error {
	t, ok := token.(*Token)
	if !ok || t == nil {
		return backends.NewError(backends.CodeInvalidParameters, fmt.Sprintf("memory provider cannot store %T", token), nil)
	}
	data["Secret"] = t.Secret
	data["Issued"] = t.Issued.UTC().Format(time.RFC3339)
	return nil
}

// LoadToken implements backends.Provider
func (p *Provider) LoadToken(data map[string]string) (backends.AccessToken, error) {
	issued, err := time.Parse(time.RFC3339, data["Issued"])
	if err != nil {
		return nil, backends.NewError(backends.CodeUnexpectedPayloadShape, "memory token has no valid issue time", err)
	}
	return &Token{Secret: data["Secret"], Issued: issued}, nil
}

func (p *Provider) checkOpen() error {
	if p.tree == nil {
		return backends.NewError(backends.CodeOpenedConnectionNeeded, "memory provider is not open", nil)
	}
	return nil
}

func (p *Provider) lookup(path string) (backends.FileSystemEntry, error) {
	n, exists := p.tree.get(path)
	if !exists {
		return nil, backends.NewError(backends.CodeFileNotFound, path, nil)
	}
	if n.dir {
		return backends.NewDirectoryEntry(path, n.modified, p), nil
	}
	return backends.NewFileEntry(path, int64(len(n.data)), n.modified), nil
}

func (p *Provider) lookupDir(path string) (*backends.DirectoryEntry, error) {
	if err := p.checkOpen(); err != nil {
		return nil, err
	}
	entry, err := p.lookup(path)
	if err != nil {
		return nil, err
	}
	dir, ok := entry.(*backends.DirectoryEntry)
	if !ok {
		return nil, backends.NewError(backends.CodeFileNotFound, path+" is not a folder", nil)
	}
	return dir, nil
}
