package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/searchbox/pkg/kafka"
)

func newEventsCmd(opts *rootOptions) *cobra.Command {
	var fromStart bool

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Tail the search event log published to Kafka",
		Long: `Prints every analytics event a server started with
analytics.publishToKafka writes, one JSON object per line.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load("")
			if err != nil {
				return err
			}
			opts.setupCLILogging(cmd.ErrOrStderr(), cfg)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			enc := json.NewEncoder(cmd.OutOrStdout())
			consumer := kafka.NewConsumer(cfg.Kafka, fromStart, func(_ context.Context, key, value []byte) error {
				event, err := kafka.DecodeJSON[map[string]any](value)
				if err != nil {
					return err
				}
				if _, ok := event["type"]; !ok {
					event["type"] = string(key)
				}
				return enc.Encode(event)
			})
			fmt.Fprintf(cmd.ErrOrStderr(), "Tailing %s on %v (Ctrl-C to stop)\n", cfg.Kafka.Topic, cfg.Kafka.Brokers)
			return consumer.Run(ctx)
		},
	}
	cmd.Flags().BoolVar(&fromStart, "from-start", false, "replay the log from the oldest retained event")
	return cmd
}
