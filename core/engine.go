// Package core implements the CloudStorage facade: a single session over one
// storage provider, with entry-based primitives, path-based comfort methods,
// file transfers and token serialization.
package core

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/ebogdum/cloudbox/backends"
	"github.com/ebogdum/cloudbox/metrics"
	"github.com/ebogdum/cloudbox/registry"
)

// CloudStorage holds at most one open provider session. It has no internal
// locking: callers sharing an instance across goroutines must synchronize.
type CloudStorage struct {
	registry *registry.Registry
	provider backends.Provider
	config   backends.Configuration
	token    backends.AccessToken
	logger   *zap.Logger
}

// NewCloudStorage creates a closed facade. A nil registry means the default
// registry with every built-in provider.
func NewCloudStorage(reg *registry.Registry, logger *zap.Logger) *CloudStorage {
	if logger == nil {
		logger = zap.NewNop()
	}
	if reg == nil {
		reg = registry.NewDefault(logger)
	}
	return &CloudStorage{
		registry: reg,
		logger:   logger,
	}
}

// Registry returns the provider registry of the facade
func (s *CloudStorage) Registry() *registry.Registry {
	return s.registry
}

// Open starts a session for cfg. It returns nil, nil without touching the
// current session when one is already open.
func (s *CloudStorage) Open(ctx context.Context, cfg backends.Configuration, token backends.AccessToken) (backends.AccessToken, error) {
	if s.IsOpened() {
		s.logger.Debug("Session already open, ignoring open request",
			zap.String("kind", s.config.Kind()))
		return nil, nil
	}
	if cfg == nil {
		return nil, backends.NewError(backends.CodeInvalidParameters, "configuration is required", nil)
	}

	kind := cfg.Kind()
	provider, err := s.registry.Resolve(kind)
	if err != nil {
		metrics.SessionsTotal.WithLabelValues(kind, "failed").Inc()
		return nil, err
	}

	opened, err := provider.Open(ctx, cfg, token)
	if err != nil {
		result := "failed"
		if errors.Is(err, backends.ErrUnauthorizedAccess) {
			result = "rejected"
		}
		metrics.SessionsTotal.WithLabelValues(kind, result).Inc()
		metrics.ErrorsTotal.WithLabelValues("core", backends.CodeOf(err).String()).Inc()
		s.logger.Warn("Failed to open session", zap.String("kind", kind), zap.Error(err))
		return nil, backends.Wrap(err, "failed to open "+kind+" session")
	}

	s.provider = provider
	s.config = cfg
	s.token = opened
	metrics.SessionsTotal.WithLabelValues(kind, "opened").Inc()

	s.logger.Info("Session opened",
		zap.String("kind", kind),
		zap.Bool("trust_unsecure", cfg.TrustUnsecureSSLConnections()))

	return opened, nil
}

// Close ends the session. Closing a closed facade does nothing. The session
// is dropped even when the provider fails to close.
func (s *CloudStorage) Close(ctx context.Context) error {
	if !s.IsOpened() {
		return nil
	}

	kind := s.config.Kind()
	err := s.provider.Close()
	s.provider = nil
	s.config = nil
	s.token = nil

	if err != nil {
		return fmt.Errorf("failed to close %s session: %w", kind, err)
	}
	s.logger.Info("Session closed", zap.String("kind", kind))
	return nil
}

// IsOpened reports whether a session is open
func (s *CloudStorage) IsOpened() bool {
	return s.provider != nil
}

// CurrentAccessToken returns the token of the open session, or nil
func (s *CloudStorage) CurrentAccessToken() backends.AccessToken {
	return s.token
}

// CurrentConfiguration returns the configuration of the open session, or nil
func (s *CloudStorage) CurrentConfiguration() backends.Configuration {
	return s.config
}

// Clone creates a facade on the same registry. When s is open the clone opens
// its own session with the same configuration and the current token.
func (s *CloudStorage) Clone(ctx context.Context) (*CloudStorage, error) {
	clone := NewCloudStorage(s.registry, s.logger)
	if !s.IsOpened() {
		return clone, nil
	}
	if _, err := clone.Open(ctx, s.config, s.token); err != nil {
		return nil, fmt.Errorf("failed to open cloned session: %w", err)
	}
	return clone, nil
}

// observe records the count and duration of a provider operation
func (s *CloudStorage) observe(operation string) func() {
	start := time.Now()
	kind := s.config.Kind()
	return func() {
		metrics.ProviderOpsTotal.WithLabelValues(kind, operation).Inc()
		metrics.ProviderOpDuration.WithLabelValues(kind, operation).Observe(time.Since(start).Seconds())
	}
}

func (s *CloudStorage) countError(err error) {
	if err != nil {
		metrics.ErrorsTotal.WithLabelValues("core", backends.CodeOf(err).String()).Inc()
	}
}

// GetRoot returns the root folder, or nil when closed
func (s *CloudStorage) GetRoot(ctx context.Context) (*backends.DirectoryEntry, error) {
	if !s.IsOpened() {
		return nil, nil
	}
	defer s.observe("get_root")()

	root, err := s.provider.GetRoot(ctx)
	s.countError(err)
	return root, err
}

// GetFileSystemObject resolves name below parent, or returns nil when closed.
// A nil parent means the root.
func (s *CloudStorage) GetFileSystemObject(ctx context.Context, name string, parent *backends.DirectoryEntry) (backends.FileSystemEntry, error) {
	if !s.IsOpened() {
		return nil, nil
	}
	defer s.observe("stat")()

	entry, err := s.provider.GetFileSystemObject(ctx, name, parent)
	s.countError(err)
	return entry, err
}

// CreateFolder creates the folder name below parent
func (s *CloudStorage) CreateFolder(ctx context.Context, name string, parent *backends.DirectoryEntry) (*backends.DirectoryEntry, error) {
	if !s.IsOpened() {
		return nil, nil
	}
	if name == "" {
		return nil, backends.NewError(backends.CodeInvalidParameters, "folder name is required", nil)
	}
	defer s.observe("create_folder")()

	dir, err := s.provider.CreateFolder(ctx, name, parent)
	s.countError(err)
	if err == nil && dir != nil {
		s.logger.Debug("Folder created successfully", zap.String("path", dir.Path()))
	}
	return dir, err
}

// CreateFile creates an empty file name below parent
func (s *CloudStorage) CreateFile(ctx context.Context, parent *backends.DirectoryEntry, name string) (*backends.FileEntry, error) {
	if !s.IsOpened() {
		return nil, nil
	}
	if parent == nil || name == "" {
		return nil, backends.NewError(backends.CodeInvalidParameters, "parent and file name are required", nil)
	}
	defer s.observe("create_file")()

	file, err := s.provider.CreateFile(ctx, parent, name)
	s.countError(err)
	if err == nil && file != nil {
		s.logger.Debug("File created successfully", zap.String("path", file.Path()))
	}
	return file, err
}

// DeleteFileSystemEntry removes entry and everything below it
func (s *CloudStorage) DeleteFileSystemEntry(ctx context.Context, entry backends.FileSystemEntry) (bool, error) {
	if !s.IsOpened() {
		return false, nil
	}
	if entry == nil {
		return false, backends.NewError(backends.CodeInvalidParameters, "entry is required", nil)
	}
	defer s.observe("delete")()

	ok, err := s.provider.Delete(ctx, entry)
	s.countError(err)
	if ok {
		s.logger.Info("Entry deleted successfully", zap.String("path", entry.Path()))
	}
	return ok, err
}

// MoveFileSystemEntry moves entry below newParent
func (s *CloudStorage) MoveFileSystemEntry(ctx context.Context, entry backends.FileSystemEntry, newParent *backends.DirectoryEntry) (bool, error) {
	if !s.IsOpened() {
		return false, nil
	}
	if entry == nil || newParent == nil {
		return false, backends.NewError(backends.CodeInvalidParameters, "entry and new parent are required", nil)
	}
	defer s.observe("move")()

	ok, err := s.provider.Move(ctx, entry, newParent)
	s.countError(err)
	if ok {
		s.logger.Info("Entry moved successfully",
			zap.String("path", entry.Path()),
			zap.String("new_parent", newParent.Path()))
	}
	return ok, err
}

// CopyFileSystemEntry copies entry below newParent
func (s *CloudStorage) CopyFileSystemEntry(ctx context.Context, entry backends.FileSystemEntry, newParent *backends.DirectoryEntry) (bool, error) {
	if !s.IsOpened() {
		return false, nil
	}
	if entry == nil || newParent == nil {
		return false, backends.NewError(backends.CodeInvalidParameters, "entry and new parent are required", nil)
	}
	defer s.observe("copy")()

	ok, err := s.provider.Copy(ctx, entry, newParent)
	s.countError(err)
	if ok {
		s.logger.Info("Entry copied successfully",
			zap.String("path", entry.Path()),
			zap.String("new_parent", newParent.Path()))
	}
	return ok, err
}

// RenameFileSystemEntry renames entry in place
func (s *CloudStorage) RenameFileSystemEntry(ctx context.Context, entry backends.FileSystemEntry, newName string) (bool, error) {
	if !s.IsOpened() {
		return false, nil
	}
	if entry == nil || newName == "" {
		return false, backends.NewError(backends.CodeInvalidParameters, "entry and new name are required", nil)
	}
	defer s.observe("rename")()

	ok, err := s.provider.Rename(ctx, entry, newName)
	s.countError(err)
	if ok {
		s.logger.Info("Entry renamed successfully",
			zap.String("path", entry.Path()),
			zap.String("new_name", newName))
	}
	return ok, err
}

// GetFileSystemObjectURL returns the provider URL of the object at path
func (s *CloudStorage) GetFileSystemObjectURL(ctx context.Context, path string, parent *backends.DirectoryEntry) (*url.URL, error) {
	if !s.IsOpened() {
		return nil, nil
	}
	defer s.observe("url")()

	u, err := s.provider.GetFileSystemObjectURL(ctx, path, parent)
	s.countError(err)
	return u, err
}

// GetFileSystemObjectPath returns the provider path of entry, or "" when
// closed
func (s *CloudStorage) GetFileSystemObjectPath(entry backends.FileSystemEntry) string {
	if !s.IsOpened() || entry == nil {
		return ""
	}
	return s.provider.GetFileSystemObjectPath(entry)
}
