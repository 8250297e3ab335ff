package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/bowdler/internal/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the bowdler home directory and default config",
	Long: `Create the bowdler home directory (default ~/.bowdler) with a books
subdirectory and a commented default config file.

Examples:
  bowdler init
  bowdler init --home /data/bowdler
  bowdler init --force     # overwrite an existing config`,
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := loadHome()
		if err != nil {
			return err
		}
		if err := h.EnsureExists(); err != nil {
			return err
		}

		if h.ConfigExists() && !initForce {
			fmt.Printf("Config already exists at %s (use --force to overwrite)\n", h.ConfigPath())
			return nil
		}

		if err := config.WriteDefault(h.ConfigPath()); err != nil {
			return fmt.Errorf("failed to write config: %w", err)
		}

		fmt.Printf("Initialized bowdler home at %s\n", h.Path())
		fmt.Printf("Config written to %s\n", h.ConfigPath())
		return nil
	},
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "overwrite existing config")
}
