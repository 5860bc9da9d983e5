package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
)

var rootCmd = &cobra.Command{
	Use:   "aegis",
	Short: "Aegis - guarded reverse proxy for LLM inference backends",
	Long: `Aegis is a guarded reverse proxy that sits between untrusted clients
and an LLM inference backend.

It provides:
  - Per-model admission control with bounded wait-lines
  - Input and output content scanning through an analyzer pipeline
  - Verdict caching (local, Redis, or automatic failover)
  - Streaming relay with rolling window scans and immediate cutoff
  - Block-event audit logging`,
	Version: Version,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config.yaml", "config file path")
}
