package httpfs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ebogdum/cloudbox/backends"
	"github.com/ebogdum/cloudbox/internal/pathutil"
)

// FileInfo is one item of a directory listing
type FileInfo struct {
	Name  string `json:"name"`
	Path  string `json:"path"`
	Type  string `json:"type"`
	Size  int64  `json:"size"`
	MTime string `json:"mtime"`
}

// DirectoryListingResponse is the body of GET /v1/directories/{path}
type DirectoryListingResponse struct {
	Path  string     `json:"path"`
	Type  string     `json:"type"`
	Count int        `json:"count"`
	Items []FileInfo `json:"items"`
}

// OperationRequest is the body of POST /v1/ops/{operation}
type OperationRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Entry types carried by HeaderType and FileInfo.Type
const (
	TypeFile      = "file"
	TypeDirectory = "directory"
)

func parseMTime(value string) time.Time {
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}
	}
	return t
}

func (p *Provider) entryFor(remote, kind string, size int64, mtime time.Time) backends.FileSystemEntry {
	if kind == TypeDirectory {
		return backends.NewDirectoryEntry(remote, mtime, p)
	}
	return backends.NewFileEntry(remote, size, mtime)
}

func (p *Provider) head(ctx context.Context, remote string) (backends.FileSystemEntry, error) {
	resp, err := p.do(ctx, http.MethodHead, p.endpoint("files", remote), nil, nil)
	if err != nil {
		return nil, err
	}
	if !success(resp) {
		return nil, statusError(resp, remote)
	}
	resp.Body.Close()

	size := int64(-1)
	if raw := resp.Header.Get(HeaderSize); raw != "" {
		if parsed, err := strconv.ParseInt(raw, 10, 64); err == nil {
			size = parsed
		}
	}
	kind := resp.Header.Get(HeaderType)
	if kind == "" {
		kind = TypeFile
	}
	return p.entryFor(remote, kind, size, parseMTime(resp.Header.Get(HeaderMTime))), nil
}

// GetRoot implements backends.Provider
func (p *Provider) GetRoot(ctx context.Context) (*backends.DirectoryEntry, error) {
	entry, err := p.GetFileSystemObject(ctx, pathutil.Delimiter, nil)
	if err != nil {
		return nil, err
	}
	dir, ok := entry.(*backends.DirectoryEntry)
	if !ok {
		return nil, backends.NewError(backends.CodeProviderFailure, "remote root is not a directory", nil)
	}
	return dir, nil
}

// GetFileSystemObject implements backends.Provider
func (p *Provider) GetFileSystemObject(ctx context.Context, name string, parent *backends.DirectoryEntry) (backends.FileSystemEntry, error) {
	if err := p.checkOpen(); err != nil {
		return nil, err
	}
	remote := backends.ResolvePath(name, parent)
	if entry, ok := p.cache.Get(remote); ok {
		return entry, nil
	}

	entry, err := p.head(ctx, remote)
	if err != nil {
		return nil, err
	}
	p.cache.Set(entry)
	return entry, nil
}

// ListChildren implements backends.ChildLister
func (p *Provider) ListChildren(ctx context.Context, dir *backends.DirectoryEntry) ([]backends.FileSystemEntry, error) {
	if err := p.checkOpen(); err != nil {
		return nil, err
	}
	if dir == nil {
		return nil, backends.NewError(backends.CodeInvalidParameters, "directory is required", nil)
	}

	resp, err := p.do(ctx, http.MethodGet, p.endpoint("directories", dir.Path()), nil, nil)
	if err != nil {
		return nil, err
	}
	if !success(resp) {
		return nil, statusError(resp, dir.Path())
	}
	defer resp.Body.Close()

	var listing DirectoryListingResponse
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		return nil, backends.NewError(backends.CodeProviderFailure, "failed to decode listing of "+dir.Path(), err)
	}

	children := make([]backends.FileSystemEntry, 0, len(listing.Items))
	for _, item := range listing.Items {
		if item.Name == "" {
			continue
		}
		entry := p.entryFor(pathutil.Combine(dir.Path(), item.Name), item.Type, item.Size, parseMTime(item.MTime))
		p.cache.Set(entry)
		children = append(children, entry)
	}
	return children, nil
}

// CreateFolder posts to the folder path with a trailing slash
func (p *Provider) CreateFolder(ctx context.Context, name string, parent *backends.DirectoryEntry) (*backends.DirectoryEntry, error) {
	if err := p.checkOpen(); err != nil {
		return nil, err
	}
	if name == "" {
		return nil, backends.NewError(backends.CodeInvalidParameters, "folder name is required", nil)
	}
	remote := backends.ResolvePath(name, parent)

	u := p.endpoint("files", remote)
	u.Path += "/"
	resp, err := p.do(ctx, http.MethodPost, u, nil, nil)
	if err != nil {
		return nil, err
	}
	if !success(resp) {
		return nil, statusError(resp, remote)
	}
	resp.Body.Close()

	p.cache.Invalidate(remote)
	return backends.NewDirectoryEntry(remote, time.Now(), p), nil
}

// CreateFile writes an empty body to the file path
func (p *Provider) CreateFile(ctx context.Context, parent *backends.DirectoryEntry, name string) (*backends.FileEntry, error) {
	if err := p.checkOpen(); err != nil {
		return nil, err
	}
	if parent == nil || name == "" {
		return nil, backends.NewError(backends.CodeInvalidParameters, "parent and name are required", nil)
	}
	remote := backends.ResolvePath(name, parent)

	if err := p.put(ctx, remote, bytes.NewReader(nil)); err != nil {
		return nil, err
	}
	return backends.NewFileEntry(remote, 0, time.Now()), nil
}

// put writes body to remote; a body of unknown length is sent chunked
func (p *Provider) put(ctx context.Context, remote string, body io.Reader) error {
	header := http.Header{}
	header.Set("Content-Type", "application/octet-stream")

	resp, err := p.do(ctx, http.MethodPut, p.endpoint("files", remote), body, header)
	if err != nil {
		return err
	}
	defer p.cache.Invalidate(remote)
	if !success(resp) {
		return statusError(resp, remote)
	}
	resp.Body.Close()
	return nil
}

// Delete implements backends.Provider
func (p *Provider) Delete(ctx context.Context, entry backends.FileSystemEntry) (bool, error) {
	if err := p.checkOpen(); err != nil {
		return false, err
	}
	if entry == nil || entry.Path() == pathutil.Delimiter {
		return false, backends.NewError(backends.CodeInvalidParameters, "cannot delete the root", nil)
	}

	u := p.endpoint("files", entry.Path())
	if entry.IsDirectory() {
		u.RawQuery = url.Values{"recursive": []string{"true"}}.Encode()
	}
	resp, err := p.do(ctx, http.MethodDelete, u, nil, nil)
	if err != nil {
		return false, err
	}
	defer p.cache.Invalidate(entry.Path())
	if !success(resp) {
		return false, statusError(resp, entry.Path())
	}
	resp.Body.Close()
	return true, nil
}

// Move implements backends.Provider
func (p *Provider) Move(ctx context.Context, entry backends.FileSystemEntry, newParent *backends.DirectoryEntry) (bool, error) {
	if entry == nil || newParent == nil {
		return false, backends.NewError(backends.CodeInvalidParameters, "entry and new parent are required", nil)
	}
	return p.operation(ctx, "move", entry.Path(), pathutil.Combine(newParent.Path(), entry.Name()))
}

// Copy implements backends.Provider
func (p *Provider) Copy(ctx context.Context, entry backends.FileSystemEntry, newParent *backends.DirectoryEntry) (bool, error) {
	if entry == nil || newParent == nil {
		return false, backends.NewError(backends.CodeInvalidParameters, "entry and new parent are required", nil)
	}
	return p.operation(ctx, "copy", entry.Path(), pathutil.Combine(newParent.Path(), entry.Name()))
}

// Rename implements backends.Provider
func (p *Provider) Rename(ctx context.Context, entry backends.FileSystemEntry, newName string) (bool, error) {
	if entry == nil || newName == "" || strings.Contains(newName, pathutil.Delimiter) {
		return false, backends.NewError(backends.CodeInvalidParameters, "entry and a plain new name are required", nil)
	}
	return p.operation(ctx, "rename", entry.Path(), pathutil.Combine(pathutil.ParentOrRoot(entry.Path()), newName))
}

func (p *Provider) operation(ctx context.Context, op, from, to string) (bool, error) {
	if err := p.checkOpen(); err != nil {
		return false, err
	}

	body, err := json.Marshal(OperationRequest{From: from, To: to})
	if err != nil {
		return false, fmt.Errorf("failed to encode %s request: %w", op, err)
	}
	header := http.Header{}
	header.Set("Content-Type", "application/json")

	u := *p.base
	u.Path = strings.TrimRight(u.Path, "/") + "/v1/ops/" + op
	resp, err := p.do(ctx, http.MethodPost, &u, bytes.NewReader(body), header)
	if err != nil {
		return false, err
	}
	defer p.cache.Invalidate(from)
	defer p.cache.Invalidate(to)
	if !success(resp) {
		return false, statusError(resp, from)
	}
	resp.Body.Close()
	return true, nil
}

// GetFileSystemObjectURL returns the content URL of the object
func (p *Provider) GetFileSystemObjectURL(ctx context.Context, path string, parent *backends.DirectoryEntry) (*url.URL, error) {
	if err := p.checkOpen(); err != nil {
		return nil, err
	}
	return p.endpoint("files", backends.ResolvePath(path, parent)), nil
}

// GetFileSystemObjectPath implements backends.Provider
func (p *Provider) GetFileSystemObjectPath(entry backends.FileSystemEntry) string {
	if entry == nil {
		return ""
	}
	return entry.Path()
}

// bodyReader exposes the response length to the transfer engine
type bodyReader struct {
	io.ReadCloser
	size int64
}

func (r *bodyReader) Size() int64 { return r.size }

// OpenRead implements backends.Provider
func (p *Provider) OpenRead(ctx context.Context, file *backends.FileEntry) (io.ReadCloser, error) {
	if err := p.checkOpen(); err != nil {
		return nil, err
	}
	if file == nil {
		return nil, backends.NewError(backends.CodeInvalidParameters, "file is required", nil)
	}

	resp, err := p.do(ctx, http.MethodGet, p.endpoint("files", file.Path()), nil, nil)
	if err != nil {
		return nil, err
	}
	if !success(resp) {
		return nil, statusError(resp, file.Path())
	}
	if resp.ContentLength < 0 {
		return resp.Body, nil
	}
	return &bodyReader{ReadCloser: resp.Body, size: resp.ContentLength}, nil
}

// streamWriter feeds a PUT request body. Close waits for the response.
type streamWriter struct {
	pw     *io.PipeWriter
	done   chan error
	closed bool
}

func (w *streamWriter) Write(b []byte) (int, error) {
	return w.pw.Write(b)
}

func (w *streamWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	w.pw.Close()
	return <-w.done
}

// OpenWrite streams content with a chunked PUT
func (p *Provider) OpenWrite(ctx context.Context, file *backends.FileEntry) (io.WriteCloser, error) {
	if err := p.checkOpen(); err != nil {
		return nil, err
	}
	if file == nil {
		return nil, backends.NewError(backends.CodeInvalidParameters, "file is required", nil)
	}

	pr, pw := io.Pipe()
	w := &streamWriter{pw: pw, done: make(chan error, 1)}
	go func() {
		err := p.put(ctx, file.Path(), pr)
		pr.CloseWithError(err)
		w.done <- err
	}()
	return w, nil
}
