package core

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/ebogdum/cloudbox/backends"
	"github.com/ebogdum/cloudbox/transfer"
)

// Reserved keys of the serialized token mapping
const (
	TokenProviderConfigurationType = "TokenProviderConfigurationType"
	TokenCredType                  = "TokenCredType"
	TokenMetadataPrefix            = "TokenMetadata"
)

// SerializeSecurityToken serializes token for the kind of the open session.
// It fails with ErrOpenedConnectionNeeded when the facade is closed.
func (s *CloudStorage) SerializeSecurityToken(token backends.AccessToken, metadata map[string]string) ([]byte, error) {
	if !s.IsOpened() {
		return nil, backends.NewError(backends.CodeOpenedConnectionNeeded, "token serialization needs an open session", nil)
	}
	return s.SerializeSecurityTokenEx(token, s.config.Kind(), metadata)
}

// SerializeSecurityTokenEx serializes token for the given configuration kind
// as a flat JSON object of strings. It works with or without a session.
func (s *CloudStorage) SerializeSecurityTokenEx(token backends.AccessToken, kind string, metadata map[string]string) ([]byte, error) {
	if token == nil || kind == "" {
		return nil, backends.NewError(backends.CodeInvalidParameters, "token and configuration kind are required", nil)
	}

	provider, err := s.tokenProvider(kind)
	if err != nil {
		return nil, err
	}

	data := make(map[string]string)
	if err := provider.StoreToken(data, token); err != nil {
		return nil, err
	}
	data[TokenProviderConfigurationType] = kind
	data[TokenCredType] = token.TokenType()
	for key, value := range metadata {
		data[TokenMetadataPrefix+key] = value
	}

	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to encode token: %w", err)
	}

	s.logger.Debug("Token serialized",
		zap.String("kind", kind),
		zap.String("token_type", token.TokenType()),
		zap.Int("metadata", len(metadata)))
	return payload, nil
}

// SerializeSecurityTokenToStream writes the serialized token of the open
// session to w
func (s *CloudStorage) SerializeSecurityTokenToStream(token backends.AccessToken, w io.Writer, metadata map[string]string) error {
	if w == nil {
		return backends.NewError(backends.CodeInvalidParameters, "target stream is required", nil)
	}
	payload, err := s.SerializeSecurityToken(token, metadata)
	if err != nil {
		return err
	}

	if _, err := transfer.Copy(bytes.NewReader(payload), w, 0, nil); err != nil {
		return fmt.Errorf("failed to write token: %w", err)
	}
	return nil
}

// SerializeSecurityTokenToFile writes the serialized token of the open
// session to path with owner-only permissions
func (s *CloudStorage) SerializeSecurityTokenToFile(token backends.AccessToken, path string, metadata map[string]string) error {
	if path == "" {
		return backends.NewError(backends.CodeInvalidParameters, "token file path is required", nil)
	}
	payload, err := s.SerializeSecurityToken(token, metadata)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, payload, 0600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}
	return nil
}

// SerializeSecurityTokenToBase64Ex is SerializeSecurityTokenEx encoded as
// standard base64
func (s *CloudStorage) SerializeSecurityTokenToBase64Ex(token backends.AccessToken, kind string, metadata map[string]string) (string, error) {
	payload, err := s.SerializeSecurityTokenEx(token, kind, metadata)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(payload), nil
}

// DeserializeSecurityToken reads a serialized token. The owning provider
// rebuilds the token; metadata keys come back without their prefix.
func (s *CloudStorage) DeserializeSecurityToken(r io.Reader) (backends.AccessToken, map[string]string, error) {
	if r == nil {
		return nil, nil, backends.NewError(backends.CodeInvalidParameters, "token stream is required", nil)
	}
	payload, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read token: %w", err)
	}

	var data map[string]string
	if err := json.Unmarshal(payload, &data); err != nil || data == nil {
		return nil, nil, backends.NewError(backends.CodeUnexpectedPayloadShape, "token payload is not a flat string mapping", err)
	}

	kind := data[TokenProviderConfigurationType]
	if kind == "" {
		return nil, nil, backends.NewError(backends.CodeUnexpectedPayloadShape, "token payload has no configuration kind", nil)
	}
	credType := data[TokenCredType]

	provider, err := s.tokenProvider(kind)
	if err != nil {
		return nil, nil, err
	}

	fields := make(map[string]string, len(data))
	metadata := make(map[string]string)
	for key, value := range data {
		switch {
		case key == TokenProviderConfigurationType || key == TokenCredType:
		case strings.HasPrefix(key, TokenMetadataPrefix):
			metadata[strings.TrimPrefix(key, TokenMetadataPrefix)] = value
		default:
			fields[key] = value
		}
	}

	token, err := provider.LoadToken(fields)
	if err != nil {
		return nil, nil, err
	}
	if credType != "" && token.TokenType() != credType {
		return nil, nil, backends.NewError(backends.CodeUnexpectedPayloadShape,
			fmt.Sprintf("token type %s does not match %s", token.TokenType(), credType), nil)
	}
	return token, metadata, nil
}

// DeserializeSecurityTokenFromFile reads a token written by
// SerializeSecurityTokenToFile
func (s *CloudStorage) DeserializeSecurityTokenFromFile(path string) (backends.AccessToken, map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open token file: %w", err)
	}
	defer f.Close()
	return s.DeserializeSecurityToken(f)
}

// DeserializeSecurityTokenFromBase64 decodes a token produced by
// SerializeSecurityTokenToBase64Ex
func (s *CloudStorage) DeserializeSecurityTokenFromBase64(encoded string) (backends.AccessToken, map[string]string, error) {
	payload, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return nil, nil, backends.NewError(backends.CodeUnexpectedPayloadShape, "token is not valid base64", err)
	}
	return s.DeserializeSecurityToken(bytes.NewReader(payload))
}

// tokenProvider returns the session provider for its own kind and a fresh,
// unopened provider from the registry otherwise
func (s *CloudStorage) tokenProvider(kind string) (backends.Provider, error) {
	if s.IsOpened() && s.config.Kind() == kind {
		return s.provider, nil
	}
	return s.registry.Resolve(kind)
}
