package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/denirokp/dialogs-rag-v3/internal/store"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the warehouse schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		// Open runs migrations as part of connecting.
		st, err := store.Open(ctx, cfg.Store)
		if err != nil {
			return err
		}
		defer st.Close()

		zap.L().Info("schema up to date", zap.String("driver", cfg.Store.Driver))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
