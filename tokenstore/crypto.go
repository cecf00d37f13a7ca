package tokenstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"filippo.io/age"
)

// GenerateIdentity writes a new X25519 identity to path. An existing file is
// never overwritten.
func GenerateIdentity(path string) (*age.X25519Identity, error) {
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return nil, fmt.Errorf("failed to generate identity: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to create identity file: %w", err)
	}
	defer f.Close()

	if _, err := fmt.Fprintf(f, "# public key: %s\n%s\n", identity.Recipient(), identity); err != nil {
		return nil, fmt.Errorf("failed to write identity file: %w", err)
	}
	return identity, nil
}

// LoadIdentity reads the first X25519 identity from path
func LoadIdentity(path string) (*age.X25519Identity, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open identity file: %w", err)
	}
	defer f.Close()

	identities, err := age.ParseIdentities(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse identities: %w", err)
	}
	for _, id := range identities {
		if x, ok := id.(*age.X25519Identity); ok {
			return x, nil
		}
	}
	return nil, fmt.Errorf("no X25519 identity in %s", path)
}

// Encrypt seals payload for the recipient of identity
func Encrypt(identity *age.X25519Identity, payload []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := age.Encrypt(&buf, identity.Recipient())
	if err != nil {
		return nil, fmt.Errorf("failed to start encryption: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return nil, fmt.Errorf("failed to encrypt token: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish encryption: %w", err)
	}
	return buf.Bytes(), nil
}

// Decrypt opens a payload sealed by Encrypt
func Decrypt(identity *age.X25519Identity, sealed []byte) ([]byte, error) {
	r, err := age.Decrypt(bytes.NewReader(sealed), identity)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt token: %w", err)
	}
	payload, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read decrypted token: %w", err)
	}
	return payload, nil
}

// EncryptedStore seals payloads before they reach the wrapped store
type EncryptedStore struct {
	Store
	identity *age.X25519Identity
}

// NewEncryptedStore wraps store so that payloads are stored encrypted
func NewEncryptedStore(store Store, identity *age.X25519Identity) *EncryptedStore {
	return &EncryptedStore{Store: store, identity: identity}
}

// Put encrypts payload and stores it
func (s *EncryptedStore) Put(ctx context.Context, name, kind string, payload []byte) error {
	sealed, err := Encrypt(s.identity, payload)
	if err != nil {
		return err
	}
	return s.Store.Put(ctx, name, kind, sealed)
}

// Get loads and decrypts the token called name
func (s *EncryptedStore) Get(ctx context.Context, name string) (*Record, error) {
	rec, err := s.Store.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	payload, err := Decrypt(s.identity, rec.Payload)
	if err != nil {
		return nil, err
	}
	rec.Payload = payload
	return rec, nil
}
