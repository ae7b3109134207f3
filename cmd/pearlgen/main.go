package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"pearlgen/internal/accounts"
	"pearlgen/internal/shared/config"
	"pearlgen/internal/shared/logger"
	"pearlgen/internal/shared/types"
)

// app holds everything a subcommand needs after configuration is loaded.
type app struct {
	cfg   *types.Config
	store *accounts.FileStore
}

// loadApp loads the ini config, initializes logging and opens the account
// store. Called by every subcommand except `config init`.
func loadApp(configPath string) (*app, error) {
	cfg := new(types.Config)
	if err := config.LoadIni(cfg, configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file '%s': %w", configPath, err)
	}
	if err := logger.Init(cfg.LogConf); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	store, err := accounts.NewFileStore(cfg.StoreConf.Dir)
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, store: store}, nil
}

func main() {
	var configPath string

	root := &cobra.Command{
		Use:           "pearlgen",
		Short:         "Account provisioning pipeline and session tools",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "pearlgen.ini", "path to the ini config file")

	root.AddCommand(
		newGenerateCmd(&configPath),
		newAccountsCmd(&configPath),
		newOpenCmd(&configPath),
		newConfigCmd(&configPath),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
