package config

import "time"

// DefaultAppConfig returns an AppConfig struct with sensible default values.
// The provider kind has no default and must be configured.
func DefaultAppConfig() AppConfig {
	return AppConfig{
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Metrics: MetricsConfig{
			ListenAddr: "",
		},
		Provider: ProviderConfig{
			Kind:    "",
			Options: map[string]any{},
		},
		Transfer: TransferConfig{
			Progress: true,
		},
		TokenStore: TokenStoreConfig{
			Type:       "sqlite",
			SQLitePath: "./cloudbox-tokens.sqlite3",
			RedisAddr:  "localhost:6379",
			KeyPrefix:  "cloudbox:token:",
		},
		Locks: LocksConfig{
			Type:      "local",
			RedisAddr: "localhost:6379",
			TTL:       5 * time.Minute,
		},
		Sync: SyncConfig{
			RemoteRoot:    "/",
			Recursive:     true,
			WatchDebounce: 2 * time.Second,
		},
	}
}
