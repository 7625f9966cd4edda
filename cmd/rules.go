package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/denirokp/dialogs-rag-v3/internal/rules"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Problem-map rule table operations",
}

var rulesValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Load the rule table and check match patterns for overlap",
	RunE: func(cmd *cobra.Command, args []string) error {
		table, err := rules.Load(cfg.Rules.Path)
		if err != nil {
			return err
		}
		zap.L().Info("rule table valid",
			zap.String("path", cfg.Rules.Path),
			zap.Int("rules", len(table.Rules())),
		)
		return nil
	},
}

func init() {
	rulesCmd.AddCommand(rulesValidateCmd)
	rootCmd.AddCommand(rulesCmd)
}
