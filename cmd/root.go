package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/imdb-chart-crawler/internal/config"
	"github.com/JakeFAU/imdb-chart-crawler/internal/logging"
)

var cfgFile string

// depsKeyType is the key for storing shared dependencies in the context.
type depsKeyType string

const depsKey depsKeyType = "deps"

// deps holds what every subcommand needs: the loaded configuration and the
// run logger.
type deps struct {
	cfg    config.Config
	logger *zap.Logger
}

// newRootCmd creates and configures the root command. Configuration and the
// logger are built in PersistentPreRunE so every subcommand inherits them
// through the command context.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chartcrawler",
		Short: "A polite, resilient crawler for the IMDB Top 250 chart.",
		Long: `chartcrawler fetches the IMDB Top 250 chart, selects the leading
titles, and crawls each title's detail page concurrently under identity and
egress rotation. Extracted records are persisted to CSV files and, when
configured, to Postgres.`,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}

			logger, err := logging.New(cfg.Logging.Development)
			if err != nil {
				return fmt.Errorf("initialize logger: %w", err)
			}

			ctx := context.WithValue(cmd.Context(), depsKey, &deps{cfg: cfg, logger: logger})
			cmd.SetContext(ctx)
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if d, ok := cmd.Context().Value(depsKey).(*deps); ok && d != nil {
				_ = d.logger.Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./chartcrawler.yaml)")

	cmd.AddCommand(newCrawlCmd())

	return cmd
}

// resolveDeps retrieves the shared dependencies stored by the root command.
func resolveDeps(ctx context.Context) (*deps, error) {
	d, ok := ctx.Value(depsKey).(*deps)
	if !ok || d == nil {
		return nil, errors.New("application services not initialized")
	}
	return d, nil
}

// Execute is the main entry point. SIGINT and SIGTERM cancel the command
// context so an in-flight crawl can wind down instead of being killed.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
