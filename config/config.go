// Package config provides configuration management for cloudbox.
// It handles loading and validating configuration from YAML or JSON files and
// environment variables.
package config

import "time"

// AppConfig represents the complete application configuration
type AppConfig struct {
	Log        LogConfig        `koanf:"log" yaml:"log"`
	Metrics    MetricsConfig    `koanf:"metrics" yaml:"metrics"`
	Provider   ProviderConfig   `koanf:"provider" yaml:"provider"`
	Transfer   TransferConfig   `koanf:"transfer" yaml:"transfer"`
	TokenStore TokenStoreConfig `koanf:"token_store" yaml:"token_store"`
	Locks      LocksConfig      `koanf:"locks" yaml:"locks"`
	Sync       SyncConfig       `koanf:"sync" yaml:"sync"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `koanf:"level" yaml:"level" validate:"oneof=debug info warn error"`
	Format string `koanf:"format" yaml:"format" validate:"oneof=json console"`
}

// MetricsConfig holds metrics server configuration. An empty address
// disables the endpoint.
type MetricsConfig struct {
	ListenAddr string `koanf:"listen_addr" yaml:"listen_addr"`
}

// ProviderConfig selects the storage provider and its options. Options are
// decoded into the provider's configuration type.
type ProviderConfig struct {
	Kind    string         `koanf:"kind" yaml:"kind" validate:"required,oneof=localfs s3 httpfs memory"`
	Options map[string]any `koanf:"options" yaml:"options"`
}

// TransferConfig holds transfer settings
type TransferConfig struct {
	Progress bool `koanf:"progress" yaml:"progress"`
}

// TokenStoreConfig holds token persistence configuration
type TokenStoreConfig struct {
	Type          string `koanf:"type" yaml:"type" validate:"oneof=sqlite redis"`
	SQLitePath    string `koanf:"sqlite_path" yaml:"sqlite_path"`
	RedisAddr     string `koanf:"redis_addr" yaml:"redis_addr"`
	RedisPassword string `koanf:"redis_password" yaml:"redis_password"`
	RedisDB       int    `koanf:"redis_db" yaml:"redis_db" validate:"gte=0"`
	KeyPrefix     string `koanf:"key_prefix" yaml:"key_prefix"`
	// IdentityFile holds the age identity used to encrypt stored tokens.
	// Tokens are stored in clear text when it is empty.
	IdentityFile string `koanf:"identity_file" yaml:"identity_file"`
}

// LocksConfig holds lock manager configuration
type LocksConfig struct {
	Type          string        `koanf:"type" yaml:"type" validate:"oneof=local redis"`
	RedisAddr     string        `koanf:"redis_addr" yaml:"redis_addr"`
	RedisPassword string        `koanf:"redis_password" yaml:"redis_password"`
	RedisDB       int           `koanf:"redis_db" yaml:"redis_db" validate:"gte=0"`
	TTL           time.Duration `koanf:"ttl" yaml:"ttl" validate:"gte=0"`
}

// SyncConfig holds the defaults of the sync command
type SyncConfig struct {
	LocalRoot     string        `koanf:"local_root" yaml:"local_root"`
	RemoteRoot    string        `koanf:"remote_root" yaml:"remote_root"`
	Recursive     bool          `koanf:"recursive" yaml:"recursive"`
	WatchDebounce time.Duration `koanf:"watch_debounce" yaml:"watch_debounce" validate:"gte=0"`
}
