package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"sentinel-hq/aegis/pkg/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration file",
	Long: `Validate the configuration file without starting the server.

Exits non-zero when the configuration cannot be loaded or fails
validation; environment overrides are applied first, exactly as "run"
would apply them.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := config.LoadConfigWithEnvOverrides(cfgFile); err != nil {
			return fmt.Errorf("configuration invalid: %w", err)
		}
		fmt.Println("✓ Configuration valid")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
