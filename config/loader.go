package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/ebogdum/cloudbox/core"
	"github.com/ebogdum/cloudbox/internal/pathutil"
)

// EnvPrefix prefixes every environment variable read by the loader
const EnvPrefix = "CLOUDBOX_"

var validate = validator.New()

// sections lists the top-level keys, longest first, so that env variables
// such as CLOUDBOX_TOKEN_STORE_SQLITE_PATH map onto token_store.sqlite_path.
var sections = func() []string {
	s := []string{"log", "metrics", "provider", "transfer", "token_store", "locks", "sync"}
	sort.Slice(s, func(i, j int) bool { return len(s[i]) > len(s[j]) })
	return s
}()

// LoadConfig loads configuration from multiple sources with strict priority:
// 1. Environment variables (highest priority)
// 2. Config file (cloudbox.yaml, cloudbox.yml or cloudbox.json)
// 3. Defaults (lowest priority)
func LoadConfig() (AppConfig, error) {
	return LoadConfigFromFile("")
}

// LoadConfigFromFile loads configuration from multiple sources with a specific config file:
// 1. Environment variables (highest priority)
// 2. Specified config file or default config files
// 3. Defaults (lowest priority)
func LoadConfigFromFile(configFilePath string) (AppConfig, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(DefaultAppConfig(), "koanf"), nil); err != nil {
		return AppConfig{}, fmt.Errorf("failed to load default config: %w", err)
	}

	if configFilePath != "" {
		if _, err := os.Stat(configFilePath); err != nil {
			return AppConfig{}, fmt.Errorf("specified config file %s not found: %w", configFilePath, err)
		}
		if err := loadFile(k, configFilePath); err != nil {
			return AppConfig{}, err
		}
	} else {
		for _, configFile := range []string{"cloudbox.yaml", "cloudbox.yml", "cloudbox.json"} {
			if _, err := os.Stat(configFile); err == nil {
				if err := loadFile(k, configFile); err != nil {
					return AppConfig{}, err
				}
				break
			}
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return AppConfig{}, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg AppConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		return AppConfig{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return AppConfig{}, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func loadFile(k *koanf.Koanf, path string) error {
	var parser koanf.Parser
	switch {
	case strings.HasSuffix(path, ".yaml"), strings.HasSuffix(path, ".yml"):
		parser = yaml.Parser()
	case strings.HasSuffix(path, ".json"):
		parser = json.Parser()
	default:
		return fmt.Errorf("unsupported config file format: %s", path)
	}

	if err := k.Load(file.Provider(path), parser); err != nil {
		return fmt.Errorf("failed to load config file %s: %w", path, err)
	}
	return nil
}

// envKey maps CLOUDBOX_SECTION_FIELD_NAME to section.field_name. Provider
// options nest one level deeper: CLOUDBOX_PROVIDER_OPTIONS_BUCKET becomes
// provider.options.bucket.
func envKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	for _, section := range sections {
		if !strings.HasPrefix(key, section+"_") {
			continue
		}
		rest := strings.TrimPrefix(key, section+"_")
		if section == "provider" && strings.HasPrefix(rest, "options_") {
			return "provider.options." + strings.TrimPrefix(rest, "options_")
		}
		return section + "." + rest
	}
	return strings.ReplaceAll(key, "_", ".")
}

// Validate checks struct tags first and then the rules that span fields
func Validate(cfg *AppConfig) error {
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed on %q", fe.Namespace(), fe.Tag()))
			}
			return errors.New(strings.Join(msgs, "; "))
		}
		return err
	}

	if cfg.Metrics.ListenAddr != "" {
		if _, _, err := net.SplitHostPort(cfg.Metrics.ListenAddr); err != nil {
			return fmt.Errorf("metrics.listen_addr is not host:port: %w", err)
		}
	}

	if _, err := core.ConfigurationFromOptions(cfg.Provider.Kind, cfg.Provider.Options); err != nil {
		return fmt.Errorf("provider.options: %w", err)
	}

	switch cfg.TokenStore.Type {
	case "sqlite":
		if cfg.TokenStore.SQLitePath == "" {
			return fmt.Errorf("token_store.sqlite_path is required for the sqlite token store")
		}
	case "redis":
		if cfg.TokenStore.RedisAddr == "" {
			return fmt.Errorf("token_store.redis_addr is required for the redis token store")
		}
	}

	if cfg.Locks.Type == "redis" && cfg.Locks.RedisAddr == "" {
		return fmt.Errorf("locks.redis_addr is required for redis locks")
	}

	if cfg.Sync.RemoteRoot != "" && !pathutil.IsRooted(cfg.Sync.RemoteRoot) {
		return fmt.Errorf("sync.remote_root must start with %q", pathutil.Delimiter)
	}

	return nil
}
