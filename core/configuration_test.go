package core

import (
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/ebogdum/cloudbox/backends"
	"github.com/ebogdum/cloudbox/backends/httpfs"
	"github.com/ebogdum/cloudbox/backends/localfs"
	"github.com/ebogdum/cloudbox/backends/memory"
	"github.com/ebogdum/cloudbox/backends/s3"
)

func TestGetCloudConfiguration(t *testing.T) {
	tree := memory.NewTree()
	base, _ := url.Parse("https://files.example.com")

	tests := []struct {
		name      string
		kind      SupportedConfiguration
		params    []any
		wantKind  string
		wantTrust bool
		wantErr   error
	}{
		{name: "localfs", kind: LocalFS, params: []any{"/srv/data"}, wantKind: localfs.Kind},
		{name: "localfs without root", kind: LocalFS, wantErr: backends.ErrInvalidParameters},
		{name: "localfs wrong type", kind: LocalFS, params: []any{42}, wantErr: backends.ErrInvalidParameters},
		{name: "s3", kind: S3, params: []any{"bucket"}, wantKind: s3.Kind},
		{name: "s3 with endpoint", kind: S3, params: []any{"bucket", "eu-west-1", "http://minio:9000"}, wantKind: s3.Kind},
		{name: "httpfs string", kind: HTTPFS, params: []any{"https://files.example.com"}, wantKind: httpfs.Kind, wantTrust: true},
		{name: "httpfs url", kind: HTTPFS, params: []any{base}, wantKind: httpfs.Kind, wantTrust: true},
		{name: "httpfs without url", kind: HTTPFS, wantErr: backends.ErrInvalidParameters},
		{name: "memory", kind: Memory, wantKind: memory.Kind},
		{name: "memory with tree", kind: Memory, params: []any{tree}, wantKind: memory.Kind},
		{name: "memory wrong type", kind: Memory, params: []any{"tree"}, wantErr: backends.ErrInvalidParameters},
		{name: "unknown", kind: SupportedConfiguration(99), wantErr: backends.ErrNoProviderFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := GetCloudConfiguration(tt.kind, tt.params...)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if cfg.Kind() != tt.wantKind {
				t.Errorf("kind = %s", cfg.Kind())
			}
			if cfg.TrustUnsecureSSLConnections() != tt.wantTrust {
				t.Errorf("trust = %v", cfg.TrustUnsecureSSLConnections())
			}
		})
	}
}

func TestS3PresetDefaults(t *testing.T) {
	cfg, err := GetCloudConfiguration(S3, "bucket", "", "http://minio:9000")
	if err != nil {
		t.Fatal(err)
	}
	s3Cfg := cfg.(*s3.Configuration)
	if s3Cfg.Region != defaultS3Region || !s3Cfg.ForcePathStyle {
		t.Errorf("config = %+v", s3Cfg)
	}
}

func TestConfigurationFromOptions(t *testing.T) {
	cfg, err := ConfigurationFromOptions(s3.Kind, map[string]any{
		"bucket":           "media",
		"endpoint":         "http://localhost:9000",
		"force_path_style": "true",
		"presign_ttl":      "5m",
	})
	if err != nil {
		t.Fatal(err)
	}
	s3Cfg := cfg.(*s3.Configuration)
	if s3Cfg.Bucket != "media" || !s3Cfg.ForcePathStyle || s3Cfg.PresignTTL != 5*time.Minute {
		t.Errorf("config = %+v", s3Cfg)
	}
	if s3Cfg.Region != defaultS3Region {
		t.Errorf("region = %q", s3Cfg.Region)
	}

	tests := []struct {
		name    string
		kind    string
		options map[string]any
		wantErr error
	}{
		{name: "unknown kind", kind: "ftp", wantErr: backends.ErrNoProviderFound},
		{name: "unknown option", kind: localfs.Kind, options: map[string]any{"root_path": "/x", "colour": "red"}, wantErr: backends.ErrInvalidParameters},
		{name: "missing required", kind: localfs.Kind, options: map[string]any{}, wantErr: backends.ErrInvalidParameters},
		{name: "bad url", kind: httpfs.Kind, options: map[string]any{"base_url": "not a url"}, wantErr: backends.ErrInvalidParameters},
		{name: "bad encryption", kind: s3.Kind, options: map[string]any{"bucket": "b", "server_side_encryption": "rot13"}, wantErr: backends.ErrInvalidParameters},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ConfigurationFromOptions(tt.kind, tt.options); !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}
