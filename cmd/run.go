package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/denirokp/dialogs-rag-v3/internal/embed"
	"github.com/denirokp/dialogs-rag-v3/internal/ingest"
	"github.com/denirokp/dialogs-rag-v3/internal/model"
	"github.com/denirokp/dialogs-rag-v3/internal/pipeline"
	"github.com/denirokp/dialogs-rag-v3/internal/rules"
	"github.com/denirokp/dialogs-rag-v3/internal/store"
	"github.com/denirokp/dialogs-rag-v3/internal/taxonomy"
)

var (
	runInput   string
	runRoles   string
	runBatch   string
	runDialogs int
	runStrict  bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full consolidation pipeline over a mention feed",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		tax, err := taxonomy.Load(cfg.Taxonomy.Path)
		if err != nil {
			return err
		}
		table, err := rules.Load(cfg.Rules.Path)
		if err != nil {
			return err
		}

		feed, err := ingest.ReadMentions(runInput, runBatch, tax, ingest.Options{
			MaskPII:    cfg.Ingest.MaskPII,
			SheetName:  cfg.Ingest.SheetName,
			SheetIndex: cfg.Ingest.SheetIndex,
		})
		if err != nil {
			return err
		}
		zap.L().Info("feed parsed",
			zap.Int("mentions", len(feed.Mentions)),
			zap.Int("skipped", feed.Skipped),
			zap.Int("unclassified", feed.Unclassified),
		)

		var roles model.RoleIndex
		if runRoles != "" {
			roles, err = ingest.ReadRoles(runRoles)
			if err != nil {
				return err
			}
		}

		totalDialogs := runDialogs
		if totalDialogs == 0 {
			totalDialogs = countDialogs(feed.Mentions)
		}

		st, err := store.Open(ctx, cfg.Store)
		if err != nil {
			return err
		}
		defer st.Close()

		embedder, err := embed.New(cfg.Embeddings)
		if err != nil {
			return err
		}

		p := pipeline.New(cfg, st, table, embedder)
		batch := model.Batch{
			ID:           runBatch,
			Source:       runInput,
			TotalDialogs: totalDialogs,
		}

		result, err := p.Run(ctx, batch, feed.Mentions, roles)
		if err != nil {
			return eris.Wrap(err, "pipeline run")
		}

		fmt.Fprintln(os.Stdout, result.Report)

		if runStrict && result.Quality != nil && !result.Quality.Passed {
			return eris.Errorf("quality gate failed for batch %s", runBatch)
		}
		return nil
	},
}

// countDialogs derives the dialog universe from the feed itself when the
// caller does not supply --dialogs.
func countDialogs(mentions []model.Mention) int {
	seen := make(map[string]struct{})
	for _, m := range mentions {
		seen[m.DialogID] = struct{}{}
	}
	return len(seen)
}

func init() {
	runCmd.Flags().StringVar(&runInput, "input", "", "mention feed path (jsonl/csv/xlsx, required)")
	runCmd.Flags().StringVar(&runRoles, "roles", "", "role/turn index CSV")
	runCmd.Flags().StringVar(&runBatch, "batch", "", "batch identifier (required)")
	runCmd.Flags().IntVar(&runDialogs, "dialogs", 0, "total dialogs in the batch (default: distinct dialog_ids in feed)")
	runCmd.Flags().BoolVar(&runStrict, "strict", false, "exit non-zero when the quality gate fails")
	_ = runCmd.MarkFlagRequired("input")
	_ = runCmd.MarkFlagRequired("batch")
	rootCmd.AddCommand(runCmd)
}
