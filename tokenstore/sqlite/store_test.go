package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/ebogdum/cloudbox/tokenstore"
)

func newStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "tokens.db"), nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestPutGet(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	if err := store.Put(ctx, "work", "httpfs", []byte(`{"Bearer":"a"}`)); err != nil {
		t.Fatal(err)
	}
	rec, err := store.Get(ctx, "work")
	if err != nil {
		t.Fatal(err)
	}
	if rec.Kind != "httpfs" || string(rec.Payload) != `{"Bearer":"a"}` {
		t.Errorf("record = %+v", rec)
	}
	created := rec.CreatedAt

	if err := store.Put(ctx, "work", "httpfs", []byte(`{"Bearer":"b"}`)); err != nil {
		t.Fatal(err)
	}
	rec, err = store.Get(ctx, "work")
	if err != nil {
		t.Fatal(err)
	}
	if string(rec.Payload) != `{"Bearer":"b"}` {
		t.Errorf("payload not replaced: %s", rec.Payload)
	}
	if !rec.CreatedAt.Equal(created) {
		t.Errorf("created_at changed from %v to %v", created, rec.CreatedAt)
	}
}

func TestListAndDelete(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	for _, name := range []string{"b", "a", "c"} {
		if err := store.Put(ctx, name, "memory", []byte("{}")); err != nil {
			t.Fatal(err)
		}
	}
	names, err := store.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(names, []string{"a", "b", "c"}) {
		t.Errorf("names = %v", names)
	}

	if err := store.Delete(ctx, "b"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Get(ctx, "b"); !errors.Is(err, tokenstore.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := store.Delete(ctx, "b"); !errors.Is(err, tokenstore.ErrNotFound) {
		t.Errorf("second delete: %v", err)
	}
}

func TestPutRejectsEmptyName(t *testing.T) {
	store := newStore(t)
	if err := store.Put(context.Background(), "", "memory", nil); !errors.Is(err, tokenstore.ErrInvalidName) {
		t.Errorf("expected ErrInvalidName, got %v", err)
	}
}

func TestEncryptedStore(t *testing.T) {
	identityPath := filepath.Join(t.TempDir(), "identity.txt")
	identity, err := tokenstore.GenerateIdentity(identityPath)
	if err != nil {
		t.Fatal(err)
	}

	inner := newStore(t)
	store := tokenstore.NewEncryptedStore(inner, identity)
	ctx := context.Background()

	if err := store.Put(ctx, "s", "memory", []byte("secret")); err != nil {
		t.Fatal(err)
	}
	raw, err := inner.Get(ctx, "s")
	if err != nil {
		t.Fatal(err)
	}
	if string(raw.Payload) == "secret" {
		t.Error("payload stored in clear text")
	}

	rec, err := store.Get(ctx, "s")
	if err != nil {
		t.Fatal(err)
	}
	if string(rec.Payload) != "secret" {
		t.Errorf("payload = %q", rec.Payload)
	}
}
