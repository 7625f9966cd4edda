package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/denirokp/dialogs-rag-v3/internal/store"
)

var qualityBatch string

var qualityCmd = &cobra.Command{
	Use:   "quality",
	Short: "Print the stored quality report for a batch",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := store.Open(ctx, cfg.Store)
		if err != nil {
			return err
		}
		defer st.Close()

		report, err := st.QualityReport(ctx, qualityBatch)
		if err != nil {
			return err
		}
		if report == nil {
			return eris.Errorf("no quality report for batch %s", qualityBatch)
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	},
}

func init() {
	qualityCmd.Flags().StringVar(&qualityBatch, "batch", "", "batch identifier (required)")
	_ = qualityCmd.MarkFlagRequired("batch")
	rootCmd.AddCommand(qualityCmd)
}
