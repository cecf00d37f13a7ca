package core

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/ebogdum/cloudbox/backends"
	"github.com/ebogdum/cloudbox/backends/httpfs"
	"github.com/ebogdum/cloudbox/backends/memory"
)

func TestTokenRoundTrip(t *testing.T) {
	s, _, _ := openMemory(t)
	token := s.CurrentAccessToken()
	metadata := map[string]string{"user": "alice", "device": "laptop"}

	payload, err := s.SerializeSecurityToken(token, metadata)
	if err != nil {
		t.Fatal(err)
	}

	restored, gotMetadata, err := s.DeserializeSecurityToken(bytes.NewReader(payload))
	if err != nil {
		t.Fatal(err)
	}
	original := token.(*memory.Token)
	got, ok := restored.(*memory.Token)
	if !ok {
		t.Fatalf("restored %T", restored)
	}
	if got.Secret != original.Secret || !got.Issued.Equal(original.Issued) {
		t.Errorf("token = %+v, want %+v", got, original)
	}
	if !reflect.DeepEqual(gotMetadata, metadata) {
		t.Errorf("metadata = %v", gotMetadata)
	}

	again, err := s.SerializeSecurityToken(restored, gotMetadata)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(payload, again) {
		t.Errorf("payload changed:\n%s\n%s", payload, again)
	}
}

func TestTokenPayloadKeys(t *testing.T) {
	s := NewCloudStorage(nil, nil)
	payload, err := s.SerializeSecurityTokenEx(&httpfs.Token{Bearer: "abc"}, httpfs.Kind, map[string]string{"k": "v"})
	if err != nil {
		t.Fatal(err)
	}

	want := `{"Bearer":"abc","TokenCredType":"httpfs.BearerToken","TokenMetadatak":"v","TokenProviderConfigurationType":"httpfs"}`
	if string(payload) != want {
		t.Errorf("payload = %s", payload)
	}
}

func TestSerializeNeedsSession(t *testing.T) {
	s := NewCloudStorage(nil, nil)
	_, err := s.SerializeSecurityToken(&memory.Token{}, nil)
	if !errors.Is(err, backends.ErrOpenedConnectionNeeded) {
		t.Errorf("expected ErrOpenedConnectionNeeded, got %v", err)
	}
	if err := s.SerializeSecurityTokenToStream(&memory.Token{}, &bytes.Buffer{}, nil); !errors.Is(err, backends.ErrOpenedConnectionNeeded) {
		t.Errorf("stream: expected ErrOpenedConnectionNeeded, got %v", err)
	}
}

func TestTokenExWorksWhileClosed(t *testing.T) {
	s := NewCloudStorage(nil, nil)
	token := &httpfs.Token{Bearer: "abc"}

	encoded, err := s.SerializeSecurityTokenToBase64Ex(token, httpfs.Kind, nil)
	if err != nil {
		t.Fatal(err)
	}
	restored, metadata, err := s.DeserializeSecurityTokenFromBase64(encoded)
	if err != nil {
		t.Fatal(err)
	}
	if got := restored.(*httpfs.Token); got.Bearer != "abc" {
		t.Errorf("bearer = %q", got.Bearer)
	}
	if len(metadata) != 0 {
		t.Errorf("metadata = %v", metadata)
	}
}

func TestTokenFileAndStream(t *testing.T) {
	s, _, _ := openMemory(t)
	token := s.CurrentAccessToken()
	path := filepath.Join(t.TempDir(), "token.json")

	if err := s.SerializeSecurityTokenToFile(token, path, map[string]string{"a": "b"}); err != nil {
		t.Fatal(err)
	}
	_, metadata, err := s.DeserializeSecurityTokenFromFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if metadata["a"] != "b" {
		t.Errorf("metadata = %v", metadata)
	}

	var buf bytes.Buffer
	if err := s.SerializeSecurityTokenToStream(token, &buf, nil); err != nil {
		t.Fatal(err)
	}
	direct, err := s.SerializeSecurityToken(token, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(buf.Bytes(), direct) {
		t.Error("stream payload differs from the direct one")
	}
}

func TestDeserializeErrors(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		wantErr error
	}{
		{name: "array", payload: `["a"]`, wantErr: backends.ErrUnexpectedPayloadShape},
		{name: "string", payload: `"token"`, wantErr: backends.ErrUnexpectedPayloadShape},
		{name: "null", payload: `null`, wantErr: backends.ErrUnexpectedPayloadShape},
		{name: "nested values", payload: `{"TokenProviderConfigurationType":{"a":1}}`, wantErr: backends.ErrUnexpectedPayloadShape},
		{name: "no kind", payload: `{"Bearer":"x"}`, wantErr: backends.ErrUnexpectedPayloadShape},
		{name: "unknown kind", payload: `{"TokenProviderConfigurationType":"ftp"}`, wantErr: backends.ErrNoProviderFound},
		{name: "vendor fields missing", payload: `{"TokenProviderConfigurationType":"httpfs"}`, wantErr: backends.ErrUnexpectedPayloadShape},
		{name: "token type mismatch", payload: `{"TokenProviderConfigurationType":"httpfs","TokenCredType":"s3.StaticCredentials","Bearer":"x"}`, wantErr: backends.ErrUnexpectedPayloadShape},
	}

	s := NewCloudStorage(nil, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, _, err := s.DeserializeSecurityToken(strings.NewReader(tt.payload))
			if token != nil {
				t.Error("expected no token")
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}

	if _, _, err := s.DeserializeSecurityTokenFromBase64("%%%"); !errors.Is(err, backends.ErrUnexpectedPayloadShape) {
		t.Errorf("bad base64: %v", err)
	}
}

func TestOpenWithDeserializedToken(t *testing.T) {
	ctx := context.Background()
	cfg := &memory.Configuration{Secret: "s3cret"}

	first := NewCloudStorage(nil, nil)
	token, err := first.Open(ctx, cfg, &memory.Token{Secret: "s3cret"})
	if err != nil {
		t.Fatal(err)
	}
	encoded, err := first.SerializeSecurityTokenToBase64Ex(token, memory.Kind, nil)
	if err != nil {
		t.Fatal(err)
	}

	second := NewCloudStorage(nil, nil)
	restored, _, err := second.DeserializeSecurityTokenFromBase64(encoded)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := second.Open(ctx, cfg, restored); err != nil {
		t.Errorf("reopening with the restored token: %v", err)
	}
}
