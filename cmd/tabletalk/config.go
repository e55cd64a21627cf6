package main

import (
	_ "embed"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/harunnryd/tabletalk/internal/config"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

//go:embed templates/config.yaml
var embeddedDefaultConfig []byte

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long:  `Manage the tabletalk configuration file.`,
}

var configViewCmd = &cobra.Command{
	Use:   "view",
	Short: "Dump fully resolved configuration",
	Long:  `Display current configuration with all defaults applied and environment variables resolved. Secrets are masked.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		loadedCfg, err := loadConfigForCommand(cmd)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		return writeConfig(cmd.OutOrStdout(), loadedCfg)
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize default configuration",
	Long:  `Create a default configuration file at $HOME/.tabletalk/config.yaml if it doesn't exist.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, err := config.DefaultConfigPath()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		out := cmd.OutOrStdout()

		if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
			return fmt.Errorf("failed to create config directory %s: %w", filepath.Dir(configPath), err)
		}

		if _, err := os.Stat(configPath); err == nil {
			fmt.Fprintf(out, "Config already exists at %s\n", configPath)
			fmt.Fprintln(out, "Use 'tabletalk config view' to see current configuration.")
			fmt.Fprintln(out, "To reinitialize, remove the existing config file first.")
			return nil
		} else if !os.IsNotExist(err) {
			return fmt.Errorf("failed to check config file: %w", err)
		}

		defaultConfig := strings.TrimSpace(string(embeddedDefaultConfig)) + "\n"
		if err := os.WriteFile(configPath, []byte(defaultConfig), 0600); err != nil {
			return fmt.Errorf("failed to write config to %s: %w", configPath, err)
		}

		fmt.Fprintf(out, "Initialized config at %s\n", configPath)
		fmt.Fprintln(out, "\nNext steps:")
		fmt.Fprintln(out, "1. Point connector.path (sqlite) or connector.host/http_path/access_token (databricks) at your data")
		fmt.Fprintln(out, "2. Set table.db, table.schema and table.table")
		fmt.Fprintln(out, "3. Set OPENAI_API_KEY, ANTHROPIC_API_KEY or GEMINI_API_KEY")
		fmt.Fprintln(out, "4. Run 'tabletalk config view' to verify your configuration")
		return nil
	},
}

func loadConfigForCommand(cmd *cobra.Command) (*config.Config, error) {
	if cfg != nil {
		return cfg, nil
	}

	loadedCfg, err := config.Load(cmd)
	if err != nil {
		return nil, err
	}

	return loadedCfg, nil
}

func writeConfig(w io.Writer, in *config.Config) error {
	if in == nil {
		return fmt.Errorf("config is not initialized; run 'tabletalk config init' first")
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(redactConfigSecrets(in)); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return enc.Close()
}

func redactConfigSecrets(in *config.Config) *config.Config {
	if in == nil {
		return nil
	}

	out := *in

	if len(in.Models.Registry) > 0 {
		out.Models.Registry = make([]config.ModelRegistry, len(in.Models.Registry))
		copy(out.Models.Registry, in.Models.Registry)
		for i := range out.Models.Registry {
			out.Models.Registry[i].APIKey = maskSecret(out.Models.Registry[i].APIKey)
		}
	}

	out.Connector.AccessToken = maskSecret(out.Connector.AccessToken)

	return &out
}

func maskSecret(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 4 {
		return "****"
	}
	return secret[:2] + strings.Repeat("*", len(secret)-4) + secret[len(secret)-2:]
}

func init() {
	configCmd.AddCommand(configViewCmd)
	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(configCmd)
}
