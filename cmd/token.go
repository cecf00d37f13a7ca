package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ebogdum/cloudbox/core"
	cblog "github.com/ebogdum/cloudbox/core/log"
)

var tokenMetadata []string

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Manage stored access tokens",
}

var tokenSaveCmd = &cobra.Command{
	Use:   "save <name>",
	Short: "Open a session and store its access token under name",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		metadata, err := parseMetadata(tokenMetadata)
		if err != nil {
			return err
		}
		return withApp(true, func(ctx context.Context, a *app) error {
			payload, err := a.storage.SerializeSecurityToken(a.storage.CurrentAccessToken(), metadata)
			if err != nil {
				return err
			}

			store, err := openTokenStore(a.cfg.TokenStore, a.logger)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.Put(ctx, args[0], a.storage.CurrentConfiguration().Kind(), payload); err != nil {
				return err
			}
			printSuccess("Stored %s token %q", a.storage.CurrentConfiguration().Kind(), args[0])
			return nil
		})
	},
}

var tokenShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Describe a stored token without revealing its secret",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(false, func(ctx context.Context, a *app) error {
			store, err := openTokenStore(a.cfg.TokenStore, a.logger)
			if err != nil {
				return err
			}
			defer store.Close()

			rec, err := store.Get(ctx, args[0])
			if err != nil {
				return err
			}
			token, metadata, err := a.storage.DeserializeSecurityToken(bytes.NewReader(rec.Payload))
			if err != nil {
				return err
			}

			fmt.Printf("%s %s\n", bold("Name:"), rec.Name)
			fmt.Printf("%s %s\n", bold("Kind:"), rec.Kind)
			fmt.Printf("%s %T\n", bold("Type:"), token)
			fmt.Printf("%s %s\n", bold("Updated:"), rec.UpdatedAt.Format("2006-01-02 15:04:05"))
			fmt.Printf("%s %s\n", bold("Payload:"), cblog.SanitizeSecret(string(rec.Payload)))

			keys := make([]string, 0, len(metadata))
			for k := range metadata {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Printf("  %s = %s\n", k, metadata[k])
			}
			return nil
		})
	},
}

var tokenExportCmd = &cobra.Command{
	Use:   "export <name>",
	Short: "Print a stored token as base64 for use on another host",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(false, func(ctx context.Context, a *app) error {
			store, err := openTokenStore(a.cfg.TokenStore, a.logger)
			if err != nil {
				return err
			}
			defer store.Close()

			rec, err := store.Get(ctx, args[0])
			if err != nil {
				return err
			}
			token, metadata, err := a.storage.DeserializeSecurityToken(bytes.NewReader(rec.Payload))
			if err != nil {
				return err
			}
			encoded, err := a.storage.SerializeSecurityTokenToBase64Ex(token, rec.Kind, metadata)
			if err != nil {
				return err
			}
			fmt.Println(encoded)
			return nil
		})
	},
}

var tokenImportCmd = &cobra.Command{
	Use:   "import <name> <base64>",
	Short: "Store a token exported on another host",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		payload, err := base64.StdEncoding.DecodeString(strings.TrimSpace(args[1]))
		if err != nil {
			return fmt.Errorf("token is not valid base64: %w", err)
		}
		var fields map[string]any
		if err := json.Unmarshal(payload, &fields); err != nil {
			return fmt.Errorf("token is not a JSON object: %w", err)
		}
		kind, _ := fields[core.TokenProviderConfigurationType].(string)

		return withApp(false, func(ctx context.Context, a *app) error {
			// Rejects payloads no provider can read
			if _, _, err := a.storage.DeserializeSecurityToken(bytes.NewReader(payload)); err != nil {
				return err
			}

			store, err := openTokenStore(a.cfg.TokenStore, a.logger)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.Put(ctx, args[0], kind, payload); err != nil {
				return err
			}
			printSuccess("Imported %s token %q", kind, args[0])
			return nil
		})
	},
}

var tokenListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored token names",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(false, func(ctx context.Context, a *app) error {
			store, err := openTokenStore(a.cfg.TokenStore, a.logger)
			if err != nil {
				return err
			}
			defer store.Close()

			names, err := store.List(ctx)
			if err != nil {
				return err
			}
			for _, name := range names {
				fmt.Println(name)
			}
			return nil
		})
	},
}

var tokenDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a stored token",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(false, func(ctx context.Context, a *app) error {
			store, err := openTokenStore(a.cfg.TokenStore, a.logger)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.Delete(ctx, args[0]); err != nil {
				return err
			}
			printSuccess("Deleted token %q", args[0])
			return nil
		})
	},
}

// parseMetadata turns key=value flags into a map
func parseMetadata(pairs []string) (map[string]string, error) {
	metadata := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("metadata %q is not key=value", pair)
		}
		metadata[key] = value
	}
	return metadata, nil
}

func init() {
	tokenSaveCmd.Flags().StringArrayVarP(&tokenMetadata, "meta", "m", nil, "Metadata stored with the token as key=value")
	tokenCmd.AddCommand(tokenSaveCmd, tokenShowCmd, tokenExportCmd, tokenImportCmd, tokenListCmd, tokenDeleteCmd)
}
