package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ebogdum/cloudbox/backends"
	"github.com/ebogdum/cloudbox/backends/memory"
	"github.com/ebogdum/cloudbox/registry"
)

// openMemory opens a facade on a memory provider that the test can inspect
func openMemory(t *testing.T) (*CloudStorage, *memory.Provider, *memory.Tree) {
	t.Helper()

	provider := memory.New(nil)
	reg := registry.New()
	reg.Register(memory.Kind, func() (backends.Provider, error) { return provider, nil })

	tree := memory.NewTree()
	s := NewCloudStorage(reg, nil)
	if _, err := s.Open(context.Background(), &memory.Configuration{Name: "test", Tree: tree}, nil); err != nil {
		t.Fatalf("open: %v", err)
	}
	return s, provider, tree
}

func TestClosedPrimitivesAreFailSoft(t *testing.T) {
	ctx := context.Background()
	s := NewCloudStorage(nil, nil)
	dir := backends.NewDirectoryEntry("/a", timeZero, nil)
	file := backends.NewFileEntry("/a/b", 1, timeZero)

	if root, err := s.GetRoot(ctx); root != nil || err != nil {
		t.Errorf("GetRoot = %v, %v", root, err)
	}
	if entry, err := s.GetFileSystemObject(ctx, "/a", nil); entry != nil || err != nil {
		t.Errorf("GetFileSystemObject = %v, %v", entry, err)
	}
	if created, err := s.CreateFolder(ctx, "x", dir); created != nil || err != nil {
		t.Errorf("CreateFolder = %v, %v", created, err)
	}
	if created, err := s.CreateFile(ctx, dir, "x"); created != nil || err != nil {
		t.Errorf("CreateFile = %v, %v", created, err)
	}
	if ok, err := s.DeleteFileSystemEntry(ctx, file); ok || err != nil {
		t.Errorf("DeleteFileSystemEntry = %v, %v", ok, err)
	}
	if ok, err := s.MoveFileSystemEntry(ctx, file, dir); ok || err != nil {
		t.Errorf("MoveFileSystemEntry = %v, %v", ok, err)
	}
	if ok, err := s.CopyFileSystemEntry(ctx, file, dir); ok || err != nil {
		t.Errorf("CopyFileSystemEntry = %v, %v", ok, err)
	}
	if ok, err := s.RenameFileSystemEntry(ctx, file, "c"); ok || err != nil {
		t.Errorf("RenameFileSystemEntry = %v, %v", ok, err)
	}
	if u, err := s.GetFileSystemObjectURL(ctx, "/a", nil); u != nil || err != nil {
		t.Errorf("GetFileSystemObjectURL = %v, %v", u, err)
	}
	if p := s.GetFileSystemObjectPath(file); p != "" {
		t.Errorf("GetFileSystemObjectPath = %q", p)
	}
	if folder, err := s.GetFolder(ctx, "/a"); folder != nil || err != nil {
		t.Errorf("GetFolder = %v, %v", folder, err)
	}
	if folder, err := s.CreateFolderPath(ctx, "/x/y"); folder != nil || err != nil {
		t.Errorf("CreateFolderPath = %v, %v", folder, err)
	}
	if ok, err := s.DeletePath(ctx, "/a"); ok || err != nil {
		t.Errorf("DeletePath = %v, %v", ok, err)
	}
	if s.CurrentAccessToken() != nil || s.CurrentConfiguration() != nil {
		t.Error("closed facade exposes session state")
	}
}

func TestOpenWhileOpenIsRefused(t *testing.T) {
	s, provider, _ := openMemory(t)

	token, err := s.Open(context.Background(), &memory.Configuration{Name: "other"}, nil)
	if token != nil || err != nil {
		t.Errorf("second open = %v, %v", token, err)
	}
	if provider.OpenCalls != 1 {
		t.Errorf("provider opened %d times", provider.OpenCalls)
	}
	if cfg := s.CurrentConfiguration().(*memory.Configuration); cfg.Name != "test" {
		t.Errorf("session configuration replaced by %q", cfg.Name)
	}
}

func TestOpenErrors(t *testing.T) {
	tests := []struct {
		name    string
		cfg     backends.Configuration
		token   backends.AccessToken
		wantErr error
	}{
		{name: "nil configuration", cfg: nil, wantErr: backends.ErrInvalidParameters},
		{name: "unregistered kind", cfg: &unknownConfiguration{}, wantErr: backends.ErrNoProviderFound},
		{name: "rejected credentials", cfg: &memory.Configuration{Secret: "s3cret"}, token: &memory.Token{Secret: "wrong"}, wantErr: backends.ErrUnauthorizedAccess},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewCloudStorage(nil, nil)
			token, err := s.Open(context.Background(), tt.cfg, tt.token)
			if token != nil {
				t.Error("expected no token")
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
			if s.IsOpened() {
				t.Error("facade opened after a failure")
			}
		})
	}
}

func TestOpenReturnsToken(t *testing.T) {
	s := NewCloudStorage(nil, nil)
	token, err := s.Open(context.Background(), &memory.Configuration{Secret: "s3cret"}, &memory.Token{Secret: "s3cret"})
	if err != nil {
		t.Fatal(err)
	}
	if token == nil || token.TokenType() != memory.TokenType {
		t.Fatalf("token = %v", token)
	}
	if s.CurrentAccessToken() != token {
		t.Error("current token differs from the returned one")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	s, provider, _ := openMemory(t)
	ctx := context.Background()

	if err := s.Close(ctx); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(ctx); err != nil {
		t.Fatal(err)
	}
	if provider.CloseCalls != 1 {
		t.Errorf("provider closed %d times", provider.CloseCalls)
	}
	if s.IsOpened() {
		t.Error("facade still open")
	}
}

func TestClone(t *testing.T) {
	ctx := context.Background()
	tree := memory.NewTree()
	s := NewCloudStorage(nil, nil)
	if _, err := s.Open(ctx, &memory.Configuration{Name: "shared", Tree: tree}, nil); err != nil {
		t.Fatal(err)
	}

	clone, err := s.Clone(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !clone.IsOpened() {
		t.Fatal("clone of an open facade is closed")
	}
	if clone.Registry() != s.Registry() {
		t.Error("clone uses another registry")
	}

	if err := s.Close(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := clone.CreateFolderPath(ctx, "/from-clone"); err != nil {
		t.Fatalf("clone lost its session with the source: %v", err)
	}
	if !tree.Exists("/from-clone") {
		t.Error("clone does not share the tree")
	}

	closedClone, err := s.Clone(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if closedClone.IsOpened() {
		t.Error("clone of a closed facade is open")
	}
}

func TestPrimitivesRejectNilArguments(t *testing.T) {
	s, _, _ := openMemory(t)
	ctx := context.Background()

	if _, err := s.DeleteFileSystemEntry(ctx, nil); !errors.Is(err, backends.ErrInvalidParameters) {
		t.Errorf("delete: %v", err)
	}
	if _, err := s.MoveFileSystemEntry(ctx, nil, nil); !errors.Is(err, backends.ErrInvalidParameters) {
		t.Errorf("move: %v", err)
	}
	if _, err := s.CreateFile(ctx, nil, "a"); !errors.Is(err, backends.ErrInvalidParameters) {
		t.Errorf("create file: %v", err)
	}
	if _, err := s.CreateFolder(ctx, "", nil); !errors.Is(err, backends.ErrInvalidParameters) {
		t.Errorf("create folder: %v", err)
	}
}

var timeZero time.Time

type unknownConfiguration struct{}

func (unknownConfiguration) Kind() string                      { return "ftp" }
func (unknownConfiguration) TrustUnsecureSSLConnections() bool { return false }
