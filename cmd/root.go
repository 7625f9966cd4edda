package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/denirokp/dialogs-rag-v3/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "rag",
	Short: "Dialog mention consolidation pipeline",
	Long:  "Validates, deduplicates, and aggregates extracted dialog mentions into theme summaries and problem cards, with quality gates on every run.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
