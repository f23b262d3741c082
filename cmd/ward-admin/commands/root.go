// ABOUTME: Root cobra command and shared helpers for ward-admin
// ABOUTME: Resolves the config file and opens the store on demand

package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/2389/ward-gateway/internal/config"
	"github.com/2389/ward-gateway/internal/store"
)

var configPath string

// NewRootCommand builds the ward-admin command tree.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "ward-admin",
		Short:         "Manage ward-gateway accounts and tokens",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "gateway config file (default $WARD_CONFIG or ~/.config/ward/gateway.yaml)")

	root.AddCommand(accountCmd(), tokenCmd(), meCmd())
	return root
}

// Execute runs the CLI with os.Args.
func Execute() error {
	return NewRootCommand().Execute()
}

func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	if envPath := os.Getenv("WARD_CONFIG"); envPath != "" {
		return envPath
	}
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "gateway.yaml"
		}
		configDir = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(configDir, "ward", "gateway.yaml")
}

func loadConfig() (*config.Config, error) {
	path := resolveConfigPath()
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading config %s: %w", path, err)
	}
	return cfg, nil
}

// withStore opens the configured database for the duration of fn.
func withStore(fn func(cfg *config.Config, s store.Store) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	s, err := store.Open(cfg.Database.Driver, cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer s.Close()
	return fn(cfg, s)
}
