// Package backends defines the provider capability contract the cloud
// storage facade works against, together with the remote entry model and
// the error taxonomy shared by every provider.
package backends

import (
	"context"
	"io"
	"net/url"
)

// Configuration describes how to reach and authenticate to one provider
// instance. A configuration is never modified after it is handed to Open.
type Configuration interface {
	// Kind identifies the configuration type and therefore its provider.
	Kind() string

	// TrustUnsecureSSLConnections disables certificate validation for the
	// session opened with this configuration only.
	TrustUnsecureSSLConnections() bool
}

// AccessToken is the opaque credential handle a provider returns from Open.
type AccessToken interface {
	// TokenType identifies the concrete token type inside its provider.
	TokenType() string
}

// Provider is implemented once per storage vendor
type Provider interface {
	// Open performs the provider handshake. token may be nil or a token
	// obtained from an earlier session; the returned token may be refreshed.
	Open(ctx context.Context, cfg Configuration, token AccessToken) (AccessToken, error)

	// Close releases the session. It does not revoke the token server-side.
	Close() error

	// GetRoot returns the root folder of the session
	GetRoot(ctx context.Context) (*DirectoryEntry, error)

	// GetFileSystemObject resolves name below parent. name may be a rooted
	// path, a relative path or a single segment. A nil parent means the root.
	GetFileSystemObject(ctx context.Context, name string, parent *DirectoryEntry) (FileSystemEntry, error)

	// ListChildren lists the direct children of dir
	ListChildren(ctx context.Context, dir *DirectoryEntry) ([]FileSystemEntry, error)

	// CreateFolder creates a folder called name below parent
	CreateFolder(ctx context.Context, name string, parent *DirectoryEntry) (*DirectoryEntry, error)

	// CreateFile creates an empty file called name below parent, truncating
	// an existing one
	CreateFile(ctx context.Context, parent *DirectoryEntry, name string) (*FileEntry, error)

	// Delete removes a file or a folder with all its content
	Delete(ctx context.Context, entry FileSystemEntry) (bool, error)

	// Move moves entry below newParent
	Move(ctx context.Context, entry FileSystemEntry, newParent *DirectoryEntry) (bool, error)

	// Copy copies entry below newParent
	Copy(ctx context.Context, entry FileSystemEntry, newParent *DirectoryEntry) (bool, error)

	// Rename renames entry in place
	Rename(ctx context.Context, entry FileSystemEntry, newName string) (bool, error)

	// GetFileSystemObjectURL returns a URL addressing the object at path
	GetFileSystemObjectURL(ctx context.Context, path string, parent *DirectoryEntry) (*url.URL, error)

	// GetFileSystemObjectPath returns the provider path of entry
	GetFileSystemObjectPath(entry FileSystemEntry) string

	// OpenRead opens the content of file for reading
	OpenRead(ctx context.Context, file *FileEntry) (io.ReadCloser, error)

	// OpenWrite opens file for writing; content is committed on Close
	OpenWrite(ctx context.Context, file *FileEntry) (io.WriteCloser, error)

	// StoreToken writes the vendor fields of token into data
	StoreToken(data map[string]string, token AccessToken) error

	// LoadToken rebuilds a token from the vendor fields in data
	LoadToken(data map[string]string) (AccessToken, error)
}
