package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/bowdler/internal/api"
	"github.com/jackzampolin/bowdler/internal/config"
	"github.com/jackzampolin/bowdler/internal/home"
	"github.com/jackzampolin/bowdler/internal/ledger"
	"github.com/jackzampolin/bowdler/internal/oracle"
	"github.com/jackzampolin/bowdler/version"
)

var (
	cfgFile      string
	homeDir      string
	outputFormat string
	verbose      bool
)

var rootCmd = &cobra.Command{
	Use:   "bowdler",
	Short: "LLM-assisted book content revision with a reviewable change ledger",
	Long: `Bowdler revises book text for content using an LLM, recording every
proposed edit in a durable ledger for human review.

The pipeline includes:
  - Document conversion via an external converter command
  - Chapter chunking within model-friendly size limits
  - Per-category cleaning passes with paragraph-level reconciliation
  - An interactive review flow over the change ledger`,
	Version: version.GitRelease,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.bowdler/config.yaml)",
	)
	rootCmd.PersistentFlags().StringVar(
		&homeDir, "home", "", "bowdler home directory (default: ~/.bowdler)",
	)
	rootCmd.PersistentFlags().StringVarP(
		&outputFormat, "output", "o", "yaml", "output format: yaml or json",
	)
	rootCmd.PersistentFlags().BoolVarP(
		&verbose, "verbose", "v", false, "enable debug logging",
	)

	// Set output format before any command runs
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		api.SetOutputFormat(outputFormat)
	}

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(cleanCmd)
	rootCmd.AddCommand(reviewCmd)
	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(statusCmd)
}

// newLogger builds the process logger. Debug level with --verbose.
func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// loadHome resolves the home directory from the --home flag.
func loadHome() (*home.Dir, error) {
	return home.New(homeDir)
}

// loadConfig loads configuration honoring --config and --home. The returned
// manager supports hot reload for long-running commands.
func loadConfig() (*config.Manager, error) {
	path := cfgFile
	if path == "" {
		h, err := loadHome()
		if err != nil {
			return nil, err
		}
		if h.ConfigExists() {
			path = h.ConfigPath()
		}
	}
	return config.NewManager(path)
}

// buildOracle constructs the configured oracle client.
func buildOracle(cfg *config.Config) (oracle.Client, error) {
	switch cfg.Oracle.Type {
	case "mock":
		return oracle.NewMockClient(), nil
	case "openai":
		key := cfg.APIKey()
		if key == "" {
			return nil, fmt.Errorf("oracle api key is not set (oracle.api_key in config)")
		}
		return oracle.NewOpenAIClient(oracle.OpenAIConfig{
			APIKey:  key,
			Model:   cfg.Oracle.Model,
			BaseURL: cfg.Oracle.BaseURL,
			Timeout: cfg.Oracle.Timeout(),
			RPM:     cfg.Oracle.RateLimit,
		}), nil
	default:
		return nil, fmt.Errorf("unknown oracle type: %q", cfg.Oracle.Type)
	}
}

// openLedger loads the ledger for a book, or starts a fresh one.
func openLedger(store *ledger.Store) (*ledger.Ledger, error) {
	if !store.Exists() {
		return ledger.New(), nil
	}
	return store.Load()
}
