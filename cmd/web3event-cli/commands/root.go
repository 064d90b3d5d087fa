package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/smyja/web3event/internal/config"
	"github.com/smyja/web3event/internal/domain"
	"github.com/smyja/web3event/internal/logging"
)

type rootOptions struct {
	logLevel  string
	logFormat string
	catalog   string
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "web3event-cli",
		Short:         "web3event-cli runs one-off web3 event scrapes without the HTTP service.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "info", "debug, info, warn or error")
	cmd.PersistentFlags().StringVar(&opts.logFormat, "log-format", "console", "json or console")
	cmd.PersistentFlags().StringVar(&opts.catalog, "catalog", os.Getenv("CATALOG_PATH"), "YAML file overriding cities and tags")

	cmd.AddCommand(newScrapeCmd(opts), newCitiesCmd(opts))
	return cmd
}

func (o *rootOptions) logger(cmd *cobra.Command) zerolog.Logger {
	return logging.New(cmd.ErrOrStderr(), o.logLevel, o.logFormat)
}

func (o *rootOptions) loadCatalog() (domain.Catalog, error) {
	catalog, err := config.LoadCatalog(o.catalog)
	if err != nil {
		return domain.Catalog{}, fmt.Errorf("catalog: %w", err)
	}
	return catalog, nil
}

func ExecuteContext(ctx context.Context) {
	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
