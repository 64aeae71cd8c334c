package main

import (
	"fmt"
	"os"
	"path/filepath"

	"finledger/internal/config"
	ferrors "finledger/internal/errors"
	"finledger/internal/paths"
	"finledger/internal/retention"

	"github.com/spf13/cobra"
)

var (
	initForce bool
	initDev   bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize the finledger data directory",
	Long: `Creates the data directory with a default config.json and retention.toml,
then opens the store so it is created at the latest schema version.`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "Overwrite existing config.json and retention.toml")
	initCmd.Flags().BoolVar(&initDev, "dev", false, "Write a development-mode config (failed upgrades reset the store)")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	home, err := resolveHome()
	if err != nil {
		return err
	}

	configPath := filepath.Join(home, paths.ConfigFile)
	if _, statErr := os.Stat(configPath); statErr == nil && !initForce {
		// already initialized is success
		fmt.Println("finledger already initialized.")
		fmt.Printf("Configuration at: %s\n", configPath)
		fmt.Println("\nRun 'finledger init --force' to reinitialize.")
		return nil
	}

	cfg := config.DefaultConfig()
	if initDev {
		cfg.Mode = config.ModeDevelopment
	}
	cfg.Retention.PoliciesFile = paths.RetentionFile

	if err := retention.WritePolicies(paths.RetentionPath(home), retention.FromConfig(cfg.Retention)); err != nil {
		return ferrors.New(ferrors.InternalError, "Failed to write retention policies", err)
	}
	if err := cfg.Save(home); err != nil {
		return ferrors.New(ferrors.InternalError, "Failed to write config file", err)
	}

	env, err := openEnv(cmd.Context())
	if err != nil {
		return err
	}
	defer env.Close()

	v, err := env.store.SchemaVersion(cmd.Context())
	if err != nil {
		return err
	}
	env.logger.Info("finledger initialized", "home", home, "schemaVersion", v)

	fmt.Println("finledger initialized successfully!")
	fmt.Printf("Configuration written to: %s\n", configPath)
	fmt.Printf("Store at schema version %d\n", v)
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Run 'finledger preload <file>' to import an initial snapshot")
	fmt.Println("  2. Run 'finledger check' to verify the data")
	return nil
}
