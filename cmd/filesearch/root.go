package main

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/filesearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/filesearch/pkg/logger"
)

// app carries state shared by every subcommand.
type app struct {
	configPath string
	dataDir    string
	logLevel   string
	cfg        *config.Config
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "filesearch",
		Short: "Index a file tree and run ranked full-text queries over it",
		Long: `filesearch walks a directory, indexes every matching text file into an
on-disk inverted index, and answers tf-idf ranked queries against the last
committed snapshot, from the command line or over HTTP.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load()
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "path to YAML config file")
	root.PersistentFlags().StringVar(&a.dataDir, "index", "", "index directory (overrides index.dataDir)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error")

	root.AddCommand(
		newIndexCmd(a),
		newSearchCmd(a),
		newReplCmd(a),
		newServeCmd(a),
		newBatchesCmd(a),
	)
	return root
}

func (a *app) load() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.dataDir != "" {
		cfg.Index.DataDir = a.dataDir
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}
	// commit events name the directory; writers and servers must agree on it
	dir, err := filepath.Abs(cfg.Index.DataDir)
	if err != nil {
		return fmt.Errorf("resolving index directory: %w", err)
	}
	cfg.Index.DataDir = dir
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	a.cfg = cfg
	return nil
}

func renderTable(w io.Writer, headers []string, rows [][]string) error {
	table := tablewriter.NewWriter(w)
	table.Header(headers)
	if err := table.Bulk(rows); err != nil {
		return err
	}
	return table.Render()
}
