package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ebogdum/cloudbox/backends"
	"github.com/ebogdum/cloudbox/config"
	"github.com/ebogdum/cloudbox/core"
	"github.com/ebogdum/cloudbox/locks"
	"github.com/ebogdum/cloudbox/tokenstore"
	tokenredis "github.com/ebogdum/cloudbox/tokenstore/redis"
	tokensqlite "github.com/ebogdum/cloudbox/tokenstore/sqlite"
)

var rootCmd = &cobra.Command{
	Use:   "cloudbox",
	Short: "cloudbox - one file API over local, S3 and HTTP storage",
	Long: `cloudbox opens a session on a storage provider and lets you browse,
transfer and synchronize files with the same commands on every provider.`,
	SilenceUsage: true,
}

var (
	configFilePath string
	tokenName      string
)

func main() {
	rootCmd.PersistentFlags().StringVarP(&configFilePath, "config", "c", "", "Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&tokenName, "token", "", "Name of a stored token to open the session with")

	rootCmd.AddCommand(
		lsCmd, mkdirCmd, rmCmd, mvCmd, cpCmd, renameCmd,
		uploadCmd, downloadCmd, diffCmd, syncCmd,
		tokenCmd, configCmd,
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// app bundles what every command needs
type app struct {
	cfg     config.AppConfig
	logger  *zap.Logger
	storage *core.CloudStorage
	metrics *http.Server
}

// setup loads the configuration, starts the logger and the metrics endpoint
// and, when open is set, opens a session on the configured provider.
func setup(ctx context.Context, open bool) (*app, error) {
	cfg, err := config.LoadConfigFromFile(configFilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := initializeLogger(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	a := &app{cfg: cfg, logger: logger, storage: core.NewCloudStorage(nil, logger)}
	if cfg.Metrics.ListenAddr != "" {
		a.metrics = startMetricsServer(cfg.Metrics.ListenAddr, logger)
	}

	if !open {
		return a, nil
	}

	providerCfg, err := core.ConfigurationFromOptions(cfg.Provider.Kind, cfg.Provider.Options)
	if err != nil {
		a.close(ctx)
		return nil, err
	}

	token, err := a.storedToken(ctx)
	if err != nil {
		a.close(ctx)
		return nil, err
	}

	if _, err := a.storage.Open(ctx, providerCfg, token); err != nil {
		a.close(ctx)
		return nil, fmt.Errorf("failed to open %s session: %w", cfg.Provider.Kind, err)
	}
	return a, nil
}

// storedToken loads the token named by --token, if any
func (a *app) storedToken(ctx context.Context) (backends.AccessToken, error) {
	if tokenName == "" {
		return nil, nil
	}

	store, err := openTokenStore(a.cfg.TokenStore, a.logger)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	rec, err := store.Get(ctx, tokenName)
	if err != nil {
		return nil, fmt.Errorf("failed to load token %q: %w", tokenName, err)
	}
	token, _, err := a.storage.DeserializeSecurityToken(bytes.NewReader(rec.Payload))
	if err != nil {
		return nil, fmt.Errorf("failed to decode token %q: %w", tokenName, err)
	}
	return token, nil
}

func (a *app) close(ctx context.Context) {
	if err := a.storage.Close(ctx); err != nil {
		a.logger.Warn("Failed to close session", zap.Error(err))
	}
	if a.metrics != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.metrics.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn("Metrics server forced to shutdown", zap.Error(err))
		}
	}
	if err := a.logger.Sync(); err != nil && !errors.Is(err, syscall.ENOTTY) && !errors.Is(err, syscall.EINVAL) {
		fmt.Fprintf(os.Stderr, "Failed to sync logger: %v\n", err)
	}
}

// withApp runs fn with a ready app and a context cancelled on SIGINT or SIGTERM
func withApp(open bool, fn func(ctx context.Context, a *app) error) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := setup(ctx, open)
	if err != nil {
		return err
	}
	defer a.close(context.Background())

	return fn(ctx, a)
}

func startMetricsServer(addr string, logger *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Starting metrics server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Metrics server failed", zap.Error(err))
		}
	}()
	return srv
}

// openTokenStore opens the configured token store, encrypted when an
// identity file is configured. A missing identity file is created.
func openTokenStore(cfg config.TokenStoreConfig, logger *zap.Logger) (tokenstore.Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var store tokenstore.Store
	switch cfg.Type {
	case "redis":
		s, err := tokenredis.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.KeyPrefix, logger)
		if err != nil {
			return nil, err
		}
		store = s
	default:
		s, err := tokensqlite.NewSQLiteStore(cfg.SQLitePath, logger)
		if err != nil {
			return nil, err
		}
		store = s
	}

	if cfg.IdentityFile == "" {
		return store, nil
	}

	identity, err := tokenstore.LoadIdentity(cfg.IdentityFile)
	if errors.Is(err, os.ErrNotExist) {
		logger.Info("Generating token identity", zap.String("path", cfg.IdentityFile))
		identity, err = tokenstore.GenerateIdentity(cfg.IdentityFile)
	}
	if err != nil {
		store.Close()
		return nil, err
	}
	return tokenstore.NewEncryptedStore(store, identity), nil
}

func openLockManager(cfg config.LocksConfig, logger *zap.Logger) (locks.Manager, error) {
	if cfg.Type == "redis" {
		return locks.NewRedisManager(locks.RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			TTL:      cfg.TTL,
		}, logger)
	}
	return locks.NewLocalManager(cfg.TTL), nil
}

// initializeLogger creates a zap logger based on configuration
func initializeLogger(logCfg config.LogConfig) (*zap.Logger, error) {
	var cfg zap.Config

	if logCfg.Format == "json" {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
	}

	switch logCfg.Level {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	return cfg.Build()
}
