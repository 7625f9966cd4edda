package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/denirokp/dialogs-rag-v3/internal/ingest"
	"github.com/denirokp/dialogs-rag-v3/internal/model"
	"github.com/denirokp/dialogs-rag-v3/internal/store"
	"github.com/denirokp/dialogs-rag-v3/internal/taxonomy"
)

var (
	ingestInput string
	ingestBatch string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Parse a mention feed and load raw mentions into the warehouse",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		tax, err := taxonomy.Load(cfg.Taxonomy.Path)
		if err != nil {
			return err
		}

		feed, err := ingest.ReadMentions(ingestInput, ingestBatch, tax, ingest.Options{
			MaskPII:    cfg.Ingest.MaskPII,
			SheetName:  cfg.Ingest.SheetName,
			SheetIndex: cfg.Ingest.SheetIndex,
		})
		if err != nil {
			return err
		}

		st, err := store.Open(ctx, cfg.Store)
		if err != nil {
			return err
		}
		defer st.Close()

		batch := model.Batch{
			ID:           ingestBatch,
			Source:       ingestInput,
			TotalDialogs: countDialogs(feed.Mentions),
		}
		if err := st.CreateBatch(ctx, batch); err != nil {
			return err
		}
		if err := st.ReplaceResults(ctx, &model.RunResult{
			BatchID:  ingestBatch,
			Mentions: feed.Mentions,
		}); err != nil {
			return err
		}

		zap.L().Info("feed loaded",
			zap.String("batch", ingestBatch),
			zap.Int("mentions", len(feed.Mentions)),
			zap.Int("skipped", feed.Skipped),
			zap.Int("unclassified", feed.Unclassified),
		)
		return nil
	},
}

func init() {
	ingestCmd.Flags().StringVar(&ingestInput, "input", "", "mention feed path (jsonl/csv/xlsx, required)")
	ingestCmd.Flags().StringVar(&ingestBatch, "batch", "", "batch identifier (required)")
	_ = ingestCmd.MarkFlagRequired("input")
	_ = ingestCmd.MarkFlagRequired("batch")
	rootCmd.AddCommand(ingestCmd)
}
