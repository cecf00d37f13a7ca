package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaultsWithEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CLOUDBOX_PROVIDER_KIND", "localfs")
	t.Setenv("CLOUDBOX_PROVIDER_OPTIONS_ROOT_PATH", "/srv/data")
	t.Setenv("CLOUDBOX_METRICS_LISTEN_ADDR", ":9090")
	t.Setenv("CLOUDBOX_TOKEN_STORE_SQLITE_PATH", "/tmp/tokens.db")
	t.Setenv("CLOUDBOX_TRANSFER_PROGRESS", "false")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Provider.Kind != "localfs" || cfg.Provider.Options["root_path"] != "/srv/data" {
		t.Errorf("provider = %+v", cfg.Provider)
	}
	if cfg.Metrics.ListenAddr != ":9090" {
		t.Errorf("metrics = %+v", cfg.Metrics)
	}
	if cfg.TokenStore.SQLitePath != "/tmp/tokens.db" {
		t.Errorf("token store = %+v", cfg.TokenStore)
	}
	if cfg.Transfer.Progress {
		t.Error("progress not disabled by env")
	}
	if cfg.Log.Level != "info" || cfg.Locks.TTL != 5*time.Minute || cfg.Sync.WatchDebounce != 2*time.Second {
		t.Errorf("defaults lost: %+v", cfg)
	}
}

func TestLoadProviderOptionsFromEnvOnly(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CLOUDBOX_PROVIDER_KIND", "s3")
	t.Setenv("CLOUDBOX_PROVIDER_OPTIONS_BUCKET", "media")
	t.Setenv("CLOUDBOX_PROVIDER_OPTIONS_ENDPOINT", "http://localhost:9000")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Provider.Options["bucket"] != "media" || cfg.Provider.Options["endpoint"] != "http://localhost:9000" {
		t.Errorf("options = %v", cfg.Provider.Options)
	}

	if DefaultAppConfig().Provider.Options == nil {
		t.Error("default provider options must be an empty map")
	}
}

func TestLoadYAMLFile(t *testing.T) {
	path := writeFile(t, "cloudbox.yaml", `
log:
  level: debug
provider:
  kind: s3
  options:
    bucket: media
    endpoint: http://localhost:9000
    force_path_style: true
locks:
  type: redis
  redis_addr: redis:6379
  ttl: 30s
sync:
  local_root: ./photos
  remote_root: /photos
`)

	cfg, err := LoadConfigFromFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "console" {
		t.Errorf("log = %+v", cfg.Log)
	}
	if cfg.Provider.Kind != "s3" || cfg.Provider.Options["bucket"] != "media" {
		t.Errorf("provider = %+v", cfg.Provider)
	}
	if cfg.Locks.Type != "redis" || cfg.Locks.TTL != 30*time.Second {
		t.Errorf("locks = %+v", cfg.Locks)
	}
	if cfg.Sync.RemoteRoot != "/photos" {
		t.Errorf("sync = %+v", cfg.Sync)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeFile(t, "cloudbox.json", `{"provider": {"kind": "memory"}, "log": {"level": "warn"}}`)
	t.Setenv("CLOUDBOX_LOG_LEVEL", "error")

	cfg, err := LoadConfigFromFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Provider.Kind != "memory" {
		t.Errorf("kind = %s", cfg.Provider.Kind)
	}
	if cfg.Log.Level != "error" {
		t.Errorf("level = %s", cfg.Log.Level)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		file    string
		wantErr string
	}{
		{name: "no provider", file: "a.yaml", content: "log:\n  level: info\n", wantErr: "Provider.Kind"},
		{name: "unknown provider", file: "a.yaml", content: "provider:\n  kind: ftp\n", wantErr: "Provider.Kind"},
		{name: "bad log level", file: "a.yaml", content: "provider:\n  kind: memory\nlog:\n  level: loud\n", wantErr: "Log.Level"},
		{name: "missing provider option", file: "a.yaml", content: "provider:\n  kind: localfs\n", wantErr: "provider.options"},
		{name: "unknown provider option", file: "a.yaml", content: "provider:\n  kind: memory\n  options:\n    colour: red\n", wantErr: "provider.options"},
		{name: "bad metrics addr", file: "a.yaml", content: "provider:\n  kind: memory\nmetrics:\n  listen_addr: nine\n", wantErr: "metrics.listen_addr"},
		{name: "redis locks without addr", file: "a.yaml", content: "provider:\n  kind: memory\nlocks:\n  type: redis\n  redis_addr: \"\"\n", wantErr: "locks.redis_addr"},
		{name: "relative remote root", file: "a.yaml", content: "provider:\n  kind: memory\nsync:\n  remote_root: photos\n", wantErr: "sync.remote_root"},
		{name: "unsupported format", file: "a.toml", content: "x = 1\n", wantErr: "unsupported config file format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, tt.file, tt.content)
			_, err := LoadConfigFromFile(path)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}

	if _, err := LoadConfigFromFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("missing config file accepted")
	}
}

func TestEnvKey(t *testing.T) {
	tests := map[string]string{
		"CLOUDBOX_LOG_LEVEL":                    "log.level",
		"CLOUDBOX_METRICS_LISTEN_ADDR":          "metrics.listen_addr",
		"CLOUDBOX_TOKEN_STORE_IDENTITY_FILE":    "token_store.identity_file",
		"CLOUDBOX_PROVIDER_OPTIONS_PRESIGN_TTL": "provider.options.presign_ttl",
		"CLOUDBOX_PROVIDER_KIND":                "provider.kind",
		"CLOUDBOX_SYNC_WATCH_DEBOUNCE":          "sync.watch_debounce",
	}
	for in, want := range tests {
		if got := envKey(in); got != want {
			t.Errorf("envKey(%s) = %s, want %s", in, got, want)
		}
	}
}
