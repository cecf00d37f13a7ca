package httpfs

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ebogdum/cloudbox/backends"
	"github.com/ebogdum/cloudbox/internal/pathutil"
)

const testBearer = "let-me-in"

// fileServer is an in-memory REST filesystem speaking the httpfs protocol.
type fileServer struct {
	mu       sync.Mutex
	files    map[string][]byte
	dirs     map[string]bool
	requests int
}

func newFileServer(t *testing.T) (*fileServer, *httptest.Server) {
	t.Helper()
	fs := &fileServer{
		files: map[string][]byte{},
		dirs:  map[string]bool{"/": true},
	}

	r := chi.NewRouter()
	r.Use(fs.auth)
	r.Route("/v1", func(r chi.Router) {
		r.Route("/files", func(r chi.Router) {
			r.Head("/*", fs.head)
			r.Get("/*", fs.get)
			r.Post("/*", fs.mkdir)
			r.Put("/*", fs.put)
			r.Delete("/*", fs.delete)
		})
		r.Get("/directories/*", fs.list)
		r.Post("/ops/{op}", fs.op)
	})

	server := httptest.NewServer(r)
	t.Cleanup(server.Close)
	return fs, server
}

func (fs *fileServer) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fs.mu.Lock()
		fs.requests++
		fs.mu.Unlock()
		if r.Header.Get("Authorization") != "Bearer "+testBearer {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"error": "invalid token"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func remotePath(r *http.Request) string {
	return pathutil.Normalize(chi.URLParam(r, "*"))
}

func (fs *fileServer) head(w http.ResponseWriter, r *http.Request) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	p := remotePath(r)
	mtime := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC).Format(time.RFC3339)
	if fs.dirs[p] {
		w.Header().Set(HeaderType, TypeDirectory)
		w.Header().Set(HeaderSize, "0")
		w.Header().Set(HeaderMTime, mtime)
		return
	}
	data, ok := fs.files[p]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.Header().Set(HeaderType, TypeFile)
	w.Header().Set(HeaderSize, strconv.Itoa(len(data)))
	w.Header().Set(HeaderMTime, mtime)
}

func (fs *fileServer) get(w http.ResponseWriter, r *http.Request) {
	fs.mu.Lock()
	data, ok := fs.files[remotePath(r)]
	fs.mu.Unlock()
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Write(data)
}

func (fs *fileServer) mkdir(w http.ResponseWriter, r *http.Request) {
	if !strings.HasSuffix(r.URL.Path, "/") {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()
	p := remotePath(r)
	if _, isFile := fs.files[p]; isFile {
		w.WriteHeader(http.StatusConflict)
		return
	}
	if !fs.dirs[pathutil.ParentOrRoot(p)] {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	fs.dirs[p] = true
	w.WriteHeader(http.StatusCreated)
}

func (fs *fileServer) put(w http.ResponseWriter, r *http.Request) {
	data, _ := io.ReadAll(r.Body)
	fs.mu.Lock()
	defer fs.mu.Unlock()
	p := remotePath(r)
	if !fs.dirs[pathutil.ParentOrRoot(p)] {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	fs.files[p] = data
	w.WriteHeader(http.StatusCreated)
}

func (fs *fileServer) delete(w http.ResponseWriter, r *http.Request) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	p := remotePath(r)
	if _, ok := fs.files[p]; ok {
		delete(fs.files, p)
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if !fs.dirs[p] || r.URL.Query().Get("recursive") != "true" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	for f := range fs.files {
		if strings.HasPrefix(f, p+"/") {
			delete(fs.files, f)
		}
	}
	for d := range fs.dirs {
		if d == p || strings.HasPrefix(d, p+"/") {
			delete(fs.dirs, d)
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (fs *fileServer) list(w http.ResponseWriter, r *http.Request) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	p := remotePath(r)
	if !fs.dirs[p] {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	var items []FileInfo
	for d := range fs.dirs {
		if d != "/" && pathutil.ParentOrRoot(d) == p {
			items = append(items, FileInfo{Name: pathutil.FileName(d), Path: d, Type: TypeDirectory})
		}
	}
	for f, data := range fs.files {
		if pathutil.ParentOrRoot(f) == p {
			items = append(items, FileInfo{Name: pathutil.FileName(f), Path: f, Type: TypeFile, Size: int64(len(data))})
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Path < items[j].Path })

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(DirectoryListingResponse{Path: p, Type: TypeDirectory, Count: len(items), Items: items})
}

func (fs *fileServer) op(w http.ResponseWriter, r *http.Request) {
	var req OperationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()

	data, ok := fs.files[req.From]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	fs.files[req.To] = data
	if chi.URLParam(r, "op") != "copy" {
		delete(fs.files, req.From)
	}
	w.WriteHeader(http.StatusOK)
}

func openProvider(t *testing.T, baseURL string) *Provider {
	t.Helper()
	p := New(nil)
	if _, err := p.Open(context.Background(), &Configuration{BaseURL: baseURL}, &Token{Bearer: testBearer}); err != nil {
		t.Fatalf("open failed: %v", err)
	}
	t.Cleanup(func() { p.Close() })
	return p
}

func TestOpenMapsUnauthorized(t *testing.T) {
	_, server := newFileServer(t)

	_, err := New(nil).Open(context.Background(), &Configuration{BaseURL: server.URL}, &Token{Bearer: "wrong"})
	if !errors.Is(err, backends.ErrUnauthorizedAccess) {
		t.Fatalf("expected unauthorized access, got %v", err)
	}
}

func TestOpenValidatesConfiguration(t *testing.T) {
	tests := []struct {
		name string
		cfg  backends.Configuration
	}{
		{name: "nil configuration", cfg: nil},
		{name: "empty base url", cfg: &Configuration{}},
		{name: "relative base url", cfg: &Configuration{BaseURL: "files/v1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(nil).Open(context.Background(), tt.cfg, nil)
			if !errors.Is(err, backends.ErrInvalidParameters) {
				t.Errorf("expected invalid parameters, got %v", err)
			}
		})
	}
}

func TestSessionTransportIsPrivate(t *testing.T) {
	_, server := newFileServer(t)

	p := New(nil)
	cfg := &Configuration{BaseURL: server.URL, TrustUnsecure: true}
	if _, err := p.Open(context.Background(), cfg, &Token{Bearer: testBearer}); err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	if !backends.TrustsUnsecure(p.HTTPClient()) {
		t.Error("session should skip certificate validation")
	}
	if backends.TrustsUnsecure(&http.Client{Transport: http.DefaultTransport}) {
		t.Error("default transport must not be modified")
	}

	secure := openProvider(t, server.URL)
	if backends.TrustsUnsecure(secure.HTTPClient()) {
		t.Error("a second session inherited the unsecure setting")
	}
}

func TestFileRoundTrip(t *testing.T) {
	_, server := newFileServer(t)
	p := openProvider(t, server.URL)
	ctx := context.Background()

	docs, err := p.CreateFolder(ctx, "/docs", nil)
	if err != nil {
		t.Fatal(err)
	}
	file, err := p.CreateFile(ctx, docs, "hello.txt")
	if err != nil {
		t.Fatal(err)
	}

	w, err := p.OpenWrite(ctx, file)
	if err != nil {
		t.Fatal(err)
	}
	io.WriteString(w, "hello over http")
	if err := w.Close(); err != nil {
		t.Fatalf("commit failed: %v", err)
	}

	entry, err := p.GetFileSystemObject(ctx, "hello.txt", docs)
	if err != nil {
		t.Fatal(err)
	}
	if entry.Length() != int64(len("hello over http")) {
		t.Errorf("length = %d", entry.Length())
	}

	r, err := p.OpenRead(ctx, entry.(*backends.FileEntry))
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	data, _ := io.ReadAll(r)
	if string(data) != "hello over http" {
		t.Errorf("read %q", data)
	}
}

func TestListAndOperations(t *testing.T) {
	fs, server := newFileServer(t)
	fs.dirs["/a"] = true
	fs.dirs["/b"] = true
	fs.files["/a/one.txt"] = []byte("1")
	fs.files["/a/two.txt"] = []byte("22")

	p := openProvider(t, server.URL)
	ctx := context.Background()

	a, err := p.GetFileSystemObject(ctx, "/a", nil)
	if err != nil {
		t.Fatal(err)
	}
	children, err := a.(*backends.DirectoryEntry).Children(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(children) != 2 || children[1].Length() != 2 {
		t.Fatalf("unexpected children %v", children)
	}

	b, _ := p.GetFileSystemObject(ctx, "/b", nil)
	if ok, err := p.Copy(ctx, children[0], b.(*backends.DirectoryEntry)); !ok || err != nil {
		t.Fatalf("copy: %v %v", ok, err)
	}
	if ok, err := p.Rename(ctx, children[1], "deux.txt"); !ok || err != nil {
		t.Fatalf("rename: %v %v", ok, err)
	}
	if _, ok := fs.files["/b/one.txt"]; !ok {
		t.Error("copy did not reach the server")
	}
	if _, ok := fs.files["/a/deux.txt"]; !ok {
		t.Error("rename did not reach the server")
	}

	if ok, err := p.Delete(ctx, a); !ok || err != nil {
		t.Fatalf("delete: %v %v", ok, err)
	}
	if _, err := p.GetFileSystemObject(ctx, "/a", nil); !errors.Is(err, backends.ErrFileNotFound) {
		t.Errorf("expected not found after delete, got %v", err)
	}
}

func TestRateLimiterSpacesRequests(t *testing.T) {
	_, server := newFileServer(t)

	p := New(nil)
	cfg := &Configuration{BaseURL: server.URL, RequestsPerSecond: 20, Burst: 1}
	if _, err := p.Open(context.Background(), cfg, &Token{Bearer: testBearer}); err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	start := time.Now()
	for i := 0; i < 3; i++ {
		if _, err := p.head(context.Background(), "/"); err != nil {
			t.Fatal(err)
		}
	}
	// The open request took the single burst token; three more need ~150ms
	if elapsed := time.Since(start); elapsed < 100*time.Millisecond {
		t.Errorf("requests were not rate limited (took %v)", elapsed)
	}
}
