package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/denirokp/dialogs-rag-v3/internal/store"
)

var batchesCmd = &cobra.Command{
	Use:   "batches",
	Short: "List known batches",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := store.Open(ctx, cfg.Store)
		if err != nil {
			return err
		}
		defer st.Close()

		batches, err := st.ListBatches(ctx)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSTATUS\tDIALOGS\tSOURCE\tUPDATED")
		for _, b := range batches {
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
				b.ID, b.Status, b.TotalDialogs, b.Source, b.UpdatedAt.Format("2006-01-02 15:04:05"))
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(batchesCmd)
}
