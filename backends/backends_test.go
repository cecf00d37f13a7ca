package backends

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"
)

type staticLister struct {
	calls    int
	children []FileSystemEntry
}

func (l *staticLister) ListChildren(ctx context.Context, dir *DirectoryEntry) ([]FileSystemEntry, error) {
	l.calls++
	return l.children, nil
}

func TestEntryAccessors(t *testing.T) {
	mtime := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		entry      FileSystemEntry
		wantName   string
		wantPath   string
		wantParent string
		wantDir    bool
	}{
		{
			name:       "nested file",
			entry:      NewFileEntry("/docs/a.txt", 12, mtime),
			wantName:   "a.txt",
			wantPath:   "/docs/a.txt",
			wantParent: "/docs",
		},
		{
			name:       "root level file",
			entry:      NewFileEntry("a.txt", 1, mtime),
			wantName:   "a.txt",
			wantPath:   "/a.txt",
			wantParent: "/",
		},
		{
			name:       "root directory",
			entry:      NewDirectoryEntry("/", mtime, nil),
			wantName:   "",
			wantPath:   "/",
			wantParent: "",
			wantDir:    true,
		},
		{
			name:       "directory with trailing slash",
			entry:      NewDirectoryEntry("/x/y/", mtime, nil),
			wantName:   "y",
			wantPath:   "/x/y",
			wantParent: "/x",
			wantDir:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.entry.Name(); got != tt.wantName {
				t.Errorf("Name() = %q, want %q", got, tt.wantName)
			}
			if got := tt.entry.Path(); got != tt.wantPath {
				t.Errorf("Path() = %q, want %q", got, tt.wantPath)
			}
			if got := tt.entry.ParentPath(); got != tt.wantParent {
				t.Errorf("ParentPath() = %q, want %q", got, tt.wantParent)
			}
			if got := tt.entry.IsDirectory(); got != tt.wantDir {
				t.Errorf("IsDirectory() = %v, want %v", got, tt.wantDir)
			}
			if !tt.entry.Modified().Equal(mtime) {
				t.Errorf("Modified() = %v, want %v", tt.entry.Modified(), mtime)
			}
		})
	}
}

func TestDirectoryChildrenAreFetchedOnDemand(t *testing.T) {
	lister := &staticLister{children: []FileSystemEntry{
		NewFileEntry("/d/one.txt", 1, time.Time{}),
		NewFileEntry("/d/two.txt", 2, time.Time{}),
	}}
	dir := NewDirectoryEntry("/d", time.Time{}, lister)
	ctx := context.Background()

	if _, err := dir.Children(ctx); err != nil {
		t.Fatalf("Children failed: %v", err)
	}
	if _, err := dir.Children(ctx); err != nil {
		t.Fatalf("Children failed: %v", err)
	}
	if lister.calls != 2 {
		t.Errorf("expected 2 provider calls, got %d", lister.calls)
	}

	child, err := dir.Child(ctx, "two.txt")
	if err != nil {
		t.Fatalf("Child failed: %v", err)
	}
	if child.Length() != 2 {
		t.Errorf("expected length 2, got %d", child.Length())
	}

	if _, err := dir.Child(ctx, "missing"); !errors.Is(err, ErrFileNotFound) {
		t.Errorf("expected ErrFileNotFound, got %v", err)
	}
}

func TestDetachedDirectoryFails(t *testing.T) {
	dir := NewDirectoryEntry("/d", time.Time{}, nil)
	if _, err := dir.Children(context.Background()); err == nil {
		t.Error("expected error for detached directory")
	}
}

func TestResolvePath(t *testing.T) {
	parent := NewDirectoryEntry("/a/b", time.Time{}, nil)

	tests := []struct {
		name   string
		input  string
		parent *DirectoryEntry
		want   string
	}{
		{name: "relative to parent", input: "c", parent: parent, want: "/a/b/c"},
		{name: "nested relative", input: "c/d.txt", parent: parent, want: "/a/b/c/d.txt"},
		{name: "rooted ignores parent", input: "/x", parent: parent, want: "/x"},
		{name: "nil parent is root", input: "x/y", parent: nil, want: "/x/y"},
		{name: "empty name is parent", input: "", parent: parent, want: "/a/b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ResolvePath(tt.input, tt.parent); got != tt.want {
				t.Errorf("ResolvePath(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestStorageErrorMatching(t *testing.T) {
	cause := fmt.Errorf("socket closed")
	err := fmt.Errorf("failed to list: %w", NewError(CodeFileNotFound, "lookup failed", cause))

	if !errors.Is(err, ErrFileNotFound) {
		t.Error("expected wrapped error to match ErrFileNotFound")
	}
	if errors.Is(err, ErrUnauthorizedAccess) {
		t.Error("did not expect match with ErrUnauthorizedAccess")
	}
	if !errors.Is(err, cause) {
		t.Error("expected cause to be reachable")
	}
	if CodeOf(err) != CodeFileNotFound {
		t.Errorf("CodeOf = %v, want %v", CodeOf(err), CodeFileNotFound)
	}
	if CodeOf(cause) != CodeProviderFailure {
		t.Errorf("CodeOf plain error = %v, want provider failure", CodeOf(cause))
	}
}

func TestWrapKeepsClassification(t *testing.T) {
	if Wrap(nil, "x") != nil {
		t.Error("Wrap(nil) should be nil")
	}

	classified := NewError(CodeUnauthorizedAccess, "", nil)
	if got := Wrap(classified, "open failed"); got != error(classified) {
		t.Errorf("expected classified error to pass through, got %v", got)
	}

	wrapped := Wrap(errors.New("boom"), "open failed")
	if !errors.Is(wrapped, ErrProviderFailure) {
		t.Errorf("expected provider failure, got %v", wrapped)
	}
	if wrapped.Error() != "open failed: boom" {
		t.Errorf("unexpected message %q", wrapped.Error())
	}
}

func TestNewHTTPClientIsolation(t *testing.T) {
	insecure := NewHTTPClient(true, time.Second)
	secure := NewHTTPClient(false, time.Second)

	if !TrustsUnsecure(insecure) {
		t.Error("expected insecure client to skip verification")
	}
	if TrustsUnsecure(secure) {
		t.Error("secure client must verify certificates")
	}
	if insecure.Transport == secure.Transport {
		t.Error("sessions must not share a transport")
	}

	def, ok := http.DefaultTransport.(*http.Transport)
	if ok && def.TLSClientConfig != nil && def.TLSClientConfig.InsecureSkipVerify {
		t.Error("default transport was modified")
	}

	transport := secure.Transport.(*http.Transport)
	if transport.MaxConnsPerHost != MaxConnectionsPerHost {
		t.Errorf("MaxConnsPerHost = %d, want %d", transport.MaxConnsPerHost, MaxConnectionsPerHost)
	}
	if ok && def.MaxConnsPerHost == MaxConnectionsPerHost {
		t.Error("connection limits leaked into the default transport")
	}

	for name, client := range map[string]*http.Client{"secure": secure, "insecure": insecure} {
		transport := client.Transport.(*http.Transport)
		if transport.DialContext == nil {
			t.Errorf("%s transport has no dialer timeouts", name)
		}
		if !transport.ForceAttemptHTTP2 {
			t.Errorf("%s transport does not attempt HTTP/2", name)
		}
		if transport.Proxy == nil {
			t.Errorf("%s transport ignores proxy settings", name)
		}
	}
}

func TestEntryCache(t *testing.T) {
	cache := NewEntryCache(time.Minute, 2)
	defer cache.Close()

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }

	a := NewFileEntry("/a/x.txt", 1, now)
	b := NewFileEntry("/a/y.txt", 1, now)
	c := NewFileEntry("/b.txt", 1, now)

	cache.Set(a)
	cache.Set(b)
	if got, ok := cache.Get("/a/x.txt"); !ok || got != a {
		t.Fatal("expected cached entry")
	}

	cache.Set(c)
	if cache.Len() != 2 {
		t.Errorf("expected eviction to keep size 2, got %d", cache.Len())
	}

	now = now.Add(2 * time.Minute)
	if _, ok := cache.Get("/b.txt"); ok {
		t.Error("expected expired entry to be hidden")
	}

	now = now.Add(-2 * time.Minute)
	cache.Set(a)
	cache.Invalidate("/a")
	if _, ok := cache.Get("/a/x.txt"); ok {
		t.Error("expected prefix invalidation to drop /a/x.txt")
	}
}
