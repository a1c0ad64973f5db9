package cmd

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	provisioner "github.com/getpup/tenant-provisioner"
	"github.com/getpup/tenant-provisioner/config"
	"github.com/getpup/tenant-provisioner/deploy"
	"github.com/getpup/tenant-provisioner/metrics"
	"github.com/getpup/tenant-provisioner/pipeline"
	"github.com/getpup/tenant-provisioner/pkg/orchestrator"
	"github.com/getpup/tenant-provisioner/store/sqlstore"
)

func newRunCommand(v *viper.Viper) *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Provision databases for eligible work items",
		Long: `Runs provisioning passes over the eligible work items. By default the
command polls until it receives SIGINT or SIGTERM; with --once it performs a
single pass and exits.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return run(ctx, cmd, cfg, v.GetBool("once"))
		},
	}

	runCmd.Flags().Bool("once", false, "perform a single pass and exit")
	_ = v.BindPFlag("once", runCmd.Flags().Lookup("once"))

	return runCmd
}

func run(ctx context.Context, cmd *cobra.Command, cfg *config.Config, once bool) error {
	if err := cfg.RequireStore(); err != nil {
		return err
	}

	slogger, err := newLogger(cmd.ErrOrStderr(), cfg.Log)
	if err != nil {
		return err
	}
	logger := provisioner.NewSlogLogger(slogger)

	storeDialect, err := sqlstore.ParseDialect(cfg.Store.Dialect)
	if err != nil {
		return err
	}
	db, err := sql.Open(storeDialect.DriverName(), cfg.Store.DSN)
	if err != nil {
		return fmt.Errorf("failed to open store database: %w", err)
	}
	defer db.Close()

	if cfg.Metrics.Address != "" {
		server := metrics.NewServer(cfg.Metrics.Address)
		server.Start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				logger.Warn(ctx, "metrics server shutdown failed", "error", err)
			}
		}()
		logger.Info(ctx, "metrics server started", "address", cfg.Metrics.Address)
	}

	orch, err := orchestrator.New(buildOptions(cfg, db, storeDialect, logger)...)
	if err != nil {
		return err
	}

	logger.Info(ctx, "provisioner starting", "version", Version, "dialect", cfg.Dialect, "once", once)

	if once {
		summary, err := orch.RunOnce(ctx)
		if err != nil {
			return err
		}
		cmd.Printf("run %s: eligible=%d completed=%d failed=%d skipped=%t\n",
			summary.RunID, summary.Eligible, summary.Completed, summary.Failed, summary.Skipped)
		return nil
	}

	if err := orch.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info(context.Background(), "provisioner stopped")
	return nil
}

// buildOptions maps the configuration onto orchestrator options.
func buildOptions(cfg *config.Config, db *sql.DB, storeDialect sqlstore.Dialect, logger provisioner.Logger) []orchestrator.Option {
	return []orchestrator.Option{
		orchestrator.WithDatabase(db, storeDialect),
		orchestrator.WithTableNames(cfg.Store.WorkItemsTable, cfg.Store.ProjectsTable),
		orchestrator.WithAdminConnection(cfg.AdminConnection),
		orchestrator.WithDialect(cfg.Dialect),
		orchestrator.WithTemplates(pipeline.Templates{
			Integrated: cfg.Templates.Integrated,
			SQLAuth:    cfg.Templates.SQL,
		}),
		orchestrator.WithArtifacts(pipeline.Artifacts{
			Schema:  cfg.Artifacts.SchemaScript,
			Package: cfg.Artifacts.Package,
			Script:  cfg.Artifacts.Script,
		}),
		orchestrator.WithStatusCodes(cfg.StatusCodes.WorkItem.StatusCodes(), cfg.StatusCodes.Project.StatusCodes()),
		orchestrator.WithSettleDelay(cfg.Timings.SettleDelay),
		orchestrator.WithRetry(cfg.Timings.MaxAttempts, cfg.Timings.RetryDelay),
		orchestrator.WithItemTimeout(cfg.Timings.ItemTimeout),
		orchestrator.WithPollInterval(cfg.Timings.PollInterval),
		orchestrator.WithContinueOnError(cfg.ContinueOnError),
		orchestrator.WithPublisher(&deploy.SqlPackage{
			Path:       cfg.SqlPackage.Path,
			Properties: cfg.SqlPackage.Properties,
			Logger:     logger,
		}),
		orchestrator.WithLogger(logger),
		orchestrator.WithPipelineName(cfg.Metrics.Pipeline),
	}
}
