package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/filesearch/internal/catalog"
)

func newBatchesCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "batches [batch-id]",
		Short: "List recent ingest batches, or the documents of one batch",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var cl closers
			defer cl.run()
			store, _, err := openCatalog(cmd.Context(), a.cfg.Catalog, &cl)
			if err != nil {
				return err
			}
			if store == nil {
				return fmt.Errorf("no ingest catalog configured (set catalog.driver)")
			}
			out := cmd.OutOrStdout()

			if len(args) == 1 {
				b, err := store.Batch(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if b == nil {
					return fmt.Errorf("batch %s not found", args[0])
				}
				return renderTable(out, []string{"Outcome", "Document", "Error"}, entryRows(b.Entries))
			}

			list, err := store.RecentBatches(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return renderTable(out, []string{"Batch", "Generation", "Added", "Skipped", "Failed", "Finished"}, batchRows(list))
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of batches to list")
	return cmd
}

func batchRows(list []catalog.Batch) [][]string {
	rows := make([][]string, 0, len(list))
	for _, b := range list {
		rows = append(rows, []string{
			b.ID,
			strconv.FormatUint(b.Generation, 10),
			strconv.Itoa(b.Added),
			strconv.Itoa(b.Skipped),
			strconv.Itoa(b.Failed),
			b.FinishedAt.Local().Format(time.DateTime),
		})
	}
	return rows
}

func entryRows(entries []catalog.Entry) [][]string {
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []string{e.Outcome, e.DocID, e.Error})
	}
	return rows
}
