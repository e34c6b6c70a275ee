package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/filesearch/internal/searcher"
)

func newSearchCmd(a *app) *cobra.Command {
	var k int
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Run one query against the last committed snapshot",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("limit") {
				k = a.cfg.Search.DefaultLimit
			}
			e, err := openEngine(a)
			if err != nil {
				return err
			}
			defer e.Close()
			return runQuery(cmd.Context(), cmd.OutOrStdout(), e, strings.Join(args, " "), k)
		},
	}
	cmd.Flags().IntVarP(&k, "limit", "k", 0, "number of results (default search.defaultLimit)")
	return cmd
}

func newReplCmd(a *app) *cobra.Command {
	var k int
	cmd := &cobra.Command{
		Use:   "repl",
		Short: "Read queries from stdin until EOF or an empty line",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("limit") {
				k = a.cfg.Search.DefaultLimit
			}
			e, err := openEngine(a)
			if err != nil {
				return err
			}
			defer e.Close()
			return repl(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), e, k)
		},
	}
	cmd.Flags().IntVarP(&k, "limit", "k", 0, "number of results (default search.defaultLimit)")
	return cmd
}

func openEngine(a *app) (*searcher.Engine, error) {
	return searcher.Open(a.cfg.Index.DataDir, searcher.Options{MaxResults: a.cfg.Search.MaxResults})
}

func repl(ctx context.Context, in io.Reader, out io.Writer, e *searcher.Engine, k int) error {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "query> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			return nil
		}
		if err := e.Reload(); err != nil {
			fmt.Fprintf(out, "reload failed: %v\n", err)
		}
		if err := runQuery(ctx, out, e, line, k); err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
		}
	}
}

func runQuery(ctx context.Context, out io.Writer, e *searcher.Engine, query string, k int) error {
	start := time.Now()
	res, err := e.Search(ctx, query, k)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%d matching documents (generation %d, %v)\n",
		res.TotalHits, res.Generation, time.Since(start).Round(time.Microsecond))
	if len(res.Results) == 0 {
		return nil
	}
	rows := make([][]string, 0, len(res.Results))
	for i, r := range res.Results {
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			strconv.FormatFloat(r.Score, 'f', 4, 64),
			r.DocID,
		})
	}
	return renderTable(out, []string{"#", "Score", "Document"}, rows)
}
