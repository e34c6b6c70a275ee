package main

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/filesearch/internal/analyzer"
	"github.com/Adithya-Monish-Kumar-K/filesearch/internal/collector"
	"github.com/Adithya-Monish-Kumar-K/filesearch/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/filesearch/pkg/config"
)

func newIndexCmd(a *app) *cobra.Command {
	var (
		reset      bool
		appendMode bool
		exts       []string
	)
	cmd := &cobra.Command{
		Use:   "index <path>...",
		Short: "Index every matching file under the given paths and commit once",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.cfg
			switch {
			case reset && appendMode:
				return fmt.Errorf("--reset and --append are mutually exclusive")
			case reset:
				cfg.Index.Mode = config.ModeCreate
			case appendMode:
				cfg.Index.Mode = config.ModeAppend
			}
			if len(exts) > 0 {
				cfg.Ingest.Extensions = exts
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runIndex(ctx, cmd, cfg, args)
		},
	}
	cmd.Flags().BoolVar(&reset, "reset", false, "discard the existing index before indexing")
	cmd.Flags().BoolVar(&appendMode, "append", false, "add to the existing index")
	cmd.Flags().StringSliceVar(&exts, "ext", nil, "file extensions to index (default from config)")
	return cmd
}

func runIndex(ctx context.Context, cmd *cobra.Command, cfg *config.Config, roots []string) error {
	var cl closers
	defer cl.run()

	an, err := analyzer.New(cfg.Analyzer)
	if err != nil {
		return err
	}
	_, m := openMetrics(cfg.Metrics, true, &cl)
	opts := indexer.Options{
		Metrics:          m,
		MaxDocumentBytes: cfg.Ingest.MaxDocumentBytes,
	}
	store, _, err := openCatalog(ctx, cfg.Catalog, &cl)
	if err != nil {
		return err
	}
	if store != nil {
		opts.Catalog = store
	}
	if notifier := openNotifier(cfg.Kafka, &cl); notifier != nil {
		opts.Notifier = notifier
	}

	w, err := indexer.Open(cfg.Index, an, opts)
	if err != nil {
		return err
	}
	defer w.Close()

	slog.Info("indexing", "dir", cfg.Index.DataDir, "mode", cfg.Index.Mode, "roots", roots)
	var walkErrs []error
	docs := collector.Documents(walkAll(roots, cfg.Ingest.Extensions), func(err error) {
		slog.Warn("walk error", "error", err)
		walkErrs = append(walkErrs, err)
	})
	report, err := w.IngestBatch(ctx, docs)

	out := cmd.OutOrStdout()
	rows := [][]string{{
		strconv.FormatUint(report.Generation, 10),
		strconv.Itoa(report.Attempted),
		strconv.Itoa(report.Added),
		strconv.Itoa(report.Skipped),
		strconv.Itoa(report.Failed),
		strconv.Itoa(w.DocumentCount()),
		report.Duration.Round(time.Millisecond).String(),
	}}
	if rerr := renderTable(out, []string{"Generation", "Attempted", "Added", "Skipped", "Failed", "Total Docs", "Time"}, rows); rerr != nil {
		return rerr
	}
	for _, e := range append(walkErrs, report.Errors...) {
		fmt.Fprintf(out, "  ! %v\n", e)
	}
	return err
}

// walkAll chains the walks of several roots. Paths are made absolute so
// document identifiers do not depend on the working directory.
func walkAll(roots []string, exts []string) iter.Seq2[indexer.Document, error] {
	return func(yield func(indexer.Document, error) bool) {
		for _, root := range roots {
			abs, err := filepath.Abs(root)
			if err != nil {
				if !yield(indexer.Document{}, err) {
					return
				}
				continue
			}
			for doc, err := range collector.Walk(abs, exts) {
				if !yield(doc, err) {
					return
				}
			}
		}
	}
}
