package main

import (
	"github.com/spf13/cobra"

	"github.com/jackzampolin/folio/internal/cli"
	"github.com/jackzampolin/folio/version"
)

var (
	cfgFile      string
	homeDir      string
	outputFormat string
)

var rootCmd = &cobra.Command{
	Use:   "folio",
	Short: "Viewport-aware incremental novel translation",
	Long: `Folio translates long-form documents paragraph by paragraph through
a remote LLM provider, prioritizing the part of the text the reader is
currently looking at.

Translation is scheduled incrementally:
  - Paragraphs near the visible viewport are queued first
  - Contiguous paragraphs are batched to preserve narrative context
  - Concurrent batch requests are bounded, with retry and backoff
  - Completed translations are persisted and survive restarts`,
	Version: version.GitRelease,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.folio/config.yaml)",
	)
	rootCmd.PersistentFlags().StringVar(
		&homeDir, "home", "", "folio home directory (default: ~/.folio)",
	)
	rootCmd.PersistentFlags().StringVarP(
		&outputFormat, "output", "o", "yaml", "output format: yaml or json",
	)

	// Set output format before any command runs
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		cli.SetOutputFormat(outputFormat)
	}

	rootCmd.AddCommand(versionCmd)
}
