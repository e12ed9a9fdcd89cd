package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/parleybot/parley/internal/config"
)

var configPath string

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "parley",
		Short: "Conversation title sync for Slack, Discord and Telegram",
		Long: `Parley watches chat threads across platforms and keeps their titles in
sync: it derives a short title from the opening messages (deterministically,
with a language model, or both) and applies it through the platform API,
with per-thread retry and backoff state persisted in SQLite.`,
		Run: func(cmd *cobra.Command, args []string) {
			runServe()
		},
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path")

	cmd.AddCommand(serveCmd())
	cmd.AddCommand(titlesCmd())

	return cmd
}

// loadConfig loads the config from --config, falling back to the data dir
func loadConfig() *config.Config {
	path := configPath
	if path == "" {
		path = filepath.Join(config.DefaultDataDir(), "config.yaml")
	}
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}
