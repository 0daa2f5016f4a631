package cmd

import (
	"encoding/json"
	"fmt"
	"html"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/searchbox/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/searchbox/internal/searcher/executor"
)

func newSearchCmd(opts *rootOptions) *cobra.Command {
	var limit int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "search <folder> <query...>",
		Short: "Index a folder and print the ranked results for one query",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load(args[0])
			if err != nil {
				return err
			}
			opts.setupCLILogging(cmd.ErrOrStderr(), cfg)

			engine, err := indexer.NewEngine(cmd.Context(), cfg.Index)
			if err != nil {
				return err
			}
			defer engine.Close()

			if limit <= 0 {
				limit = cfg.Search.DefaultLimit
			}
			limit = min(limit, cfg.Search.MaxResults)
			results, err := executor.New(engine, cfg.Search).Search(cmd.Context(), strings.Join(args[1:], " "), limit)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(results)
			}
			return printResults(cmd.OutOrStdout(), results)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum number of results (default from config)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print results as JSON")
	return cmd
}

var markStripper = strings.NewReplacer("<mark>", "", "</mark>", "")

func printResults(w io.Writer, results []executor.Result) error {
	if len(results) == 0 {
		_, err := fmt.Fprintln(w, "No results.")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SCORE\tPATH\tMODIFIED")
	for _, r := range results {
		fmt.Fprintf(tw, "%.4f\t%s\t%s\n", r.Score, r.Path, time.Unix(r.MTime, 0).Format(time.DateTime))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintln(w)
	for i, r := range results {
		fmt.Fprintf(w, "%d. %s\n   %s\n", i+1, r.Path, html.UnescapeString(markStripper.Replace(r.Snippet)))
	}
	return nil
}
