package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/ebogdum/cloudbox/config"
	"github.com/ebogdum/cloudbox/locks"
	"github.com/ebogdum/cloudbox/tokenstore"
)

func TestParseMetadata(t *testing.T) {
	tests := []struct {
		name    string
		pairs   []string
		want    map[string]string
		wantErr bool
	}{
		{name: "empty", pairs: nil, want: map[string]string{}},
		{name: "pairs", pairs: []string{"user=alice", "note=a=b"}, want: map[string]string{"user": "alice", "note": "a=b"}},
		{name: "empty value", pairs: []string{"k="}, want: map[string]string{"k": ""}},
		{name: "no separator", pairs: []string{"user"}, wantErr: true},
		{name: "no key", pairs: []string{"=x"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseMetadata(tt.pairs)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v", err)
			}
			if tt.wantErr {
				return
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("%s = %q, want %q", k, got[k], v)
				}
			}
		})
	}
}

func TestReportPathOp(t *testing.T) {
	boom := errors.New("boom")
	if err := reportPathOp(false, boom)("x"); !errors.Is(err, boom) {
		t.Errorf("expected boom, got %v", err)
	}
	if err := reportPathOp(false, nil)("x"); err == nil {
		t.Error("refused operation reported as success")
	}
	if err := reportPathOp(true, nil)("done %s", "x"); err != nil {
		t.Errorf("unexpected error %v", err)
	}
}

func TestOpenTokenStoreWithIdentity(t *testing.T) {
	dir := t.TempDir()
	cfg := config.TokenStoreConfig{
		Type:         "sqlite",
		SQLitePath:   filepath.Join(dir, "tokens.db"),
		IdentityFile: filepath.Join(dir, "identity.txt"),
	}

	store, err := openTokenStore(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	if _, ok := store.(*tokenstore.EncryptedStore); !ok {
		t.Errorf("store = %T, want encrypted", store)
	}
	if _, err := os.Stat(cfg.IdentityFile); err != nil {
		t.Errorf("identity file not created: %v", err)
	}

	ctx := context.Background()
	if err := store.Put(ctx, "a", "memory", []byte("{}")); err != nil {
		t.Fatal(err)
	}
	rec, err := store.Get(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}
	if string(rec.Payload) != "{}" {
		t.Errorf("payload = %q", rec.Payload)
	}
}

func TestOpenLockManagerLocal(t *testing.T) {
	m, err := openLockManager(config.LocksConfig{Type: "local"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := m.(*locks.LocalManager); !ok {
		t.Errorf("manager = %T", m)
	}
}
