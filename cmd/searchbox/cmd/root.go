// Package cmd provides the searchbox CLI commands.
package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/searchbox/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/searchbox/pkg/logger"
)

type rootOptions struct {
	configPath string
	logLevel   string
}

// NewRootCmd creates the searchbox command tree.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "searchbox",
		Short: "Local, offline BM25 search over a folder of documents",
		Long: `SearchBox indexes the .md, .txt and .html files under a folder and ranks
them with BM25. The index lives in memory and is rebuilt whenever the
folder changes.`,
		Version:      Version,
		SilenceUsage: true,
	}
	cmd.SetVersionTemplate("searchbox {{.Version}}\n")

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to a YAML config file")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override logging.level (debug, info, warn, error)")

	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newSearchCmd(opts))
	cmd.AddCommand(newIndexCmd(opts))
	cmd.AddCommand(newEventsCmd(opts))
	cmd.AddCommand(newLoadTestCmd())
	cmd.AddCommand(newVersionCmd())
	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().ExecuteContext(context.Background())
}

// load reads the config and applies the folder argument and flag overrides.
func (o *rootOptions) load(folder string) (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if folder != "" {
		cfg.Index.Root = folder
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}
	return cfg, nil
}

// setupCLILogging sends logs to w, quieter than the server unless a level
// was asked for.
func (o *rootOptions) setupCLILogging(w io.Writer, cfg *config.Config) {
	level := "warn"
	if o.logLevel != "" {
		level = o.logLevel
	}
	logger.SetupWriter(w, level, cfg.Logging.Format)
}
