package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/searchbox/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/searchbox/internal/indexer/index"
)

func newIndexCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "index <folder>",
		Short: "Build the index once and print corpus statistics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load(args[0])
			if err != nil {
				return err
			}
			opts.setupCLILogging(cmd.ErrOrStderr(), cfg)

			var stats index.BuildStats
			engine, err := indexer.NewEngine(cmd.Context(), cfg.Index,
				indexer.WithRebuildHook(func(s index.BuildStats, _ error) { stats = s }),
			)
			if err != nil {
				return err
			}
			defer engine.Close()

			st := engine.Status()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Root:        %s\n", st.Root)
			fmt.Fprintf(out, "Documents:   %d\n", st.Documents)
			fmt.Fprintf(out, "Skipped:     %d\n", stats.Skipped)
			fmt.Fprintf(out, "Terms:       %d\n", st.Terms)
			fmt.Fprintf(out, "Avg length:  %.1f tokens\n", st.AvgDocLength)
			fmt.Fprintf(out, "Build time:  %s\n", stats.Duration.Round(time.Millisecond))
			return nil
		},
	}
}
