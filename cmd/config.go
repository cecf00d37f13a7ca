package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ebogdum/cloudbox/config"
	cblog "github.com/ebogdum/cloudbox/core/log"
	"github.com/ebogdum/cloudbox/registry"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration",
	Long:  "Validate the cloudbox configuration and display the loaded settings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println("Validating configuration...")

		cfg, err := config.LoadConfigFromFile(configFilePath)
		if err != nil {
			printFailure("Configuration validation failed: %v", err)
			return err
		}

		printSuccess("Configuration is valid")
		fmt.Printf("Provider: %s\n", cfg.Provider.Kind)
		fmt.Printf("Token Store: %s\n", cfg.TokenStore.Type)
		if cfg.TokenStore.Type == "redis" {
			fmt.Printf("Token Store Password: %s\n", cblog.SanitizeSecret(cfg.TokenStore.RedisPassword))
		}
		fmt.Printf("Locks: %s\n", cfg.Locks.Type)
		if cfg.Metrics.ListenAddr != "" {
			fmt.Printf("Metrics Address: %s\n", cfg.Metrics.ListenAddr)
		}
		fmt.Printf("Available Providers: %v\n", registry.NewDefault(nil).Kinds())
		return nil
	},
}

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration as YAML",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(false, func(ctx context.Context, a *app) error {
			cfg := a.cfg
			cfg.TokenStore.RedisPassword = cblog.SanitizeSecret(cfg.TokenStore.RedisPassword)
			cfg.Locks.RedisPassword = cblog.SanitizeSecret(cfg.Locks.RedisPassword)

			enc := yaml.NewEncoder(os.Stdout)
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(cfg)
		})
	},
}

func init() {
	configCmd.AddCommand(validateCmd, showCmd)
}
