package cmd

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/getpup/tenant-provisioner/pkg/migrations"
	"github.com/getpup/tenant-provisioner/pkg/orchestrator"
	"github.com/getpup/tenant-provisioner/store/sqlstore"
)

func newMigrateCommand(v *viper.Viper) *cobra.Command {
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create the scheduler tables",
		Long: `Creates the work item and project tables in the store database, or writes
the migration to a file with --output.

The store is configured with PROVISIONER_STORE_DIALECT and PROVISIONER_STORE_DSN.
After migrating, point the store at the printed table names.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}

			mc := migrations.DefaultConfig()
			mc.SchemaName = v.GetString("schema")
			mc.WorkItemsTable = v.GetString("work-items-table")
			mc.ProjectsTable = v.GetString("projects-table")

			adapter := strings.ToLower(cfg.Store.Dialect)
			workItems, projects, err := migrations.TableNames(adapter, mc)
			if err != nil {
				return err
			}

			if output := v.GetString("output"); output != "" {
				mc.OutputFolder = output
				if err := migrations.Generate(adapter, &mc); err != nil {
					return err
				}
				cmd.Printf("Generated %s migration: %s/%s\n", adapter, mc.OutputFolder, mc.OutputFilename)
			} else {
				if err := cfg.RequireStore(); err != nil {
					return err
				}
				dialect, err := sqlstore.ParseDialect(adapter)
				if err != nil {
					return err
				}
				db, err := sql.Open(dialect.DriverName(), cfg.Store.DSN)
				if err != nil {
					return fmt.Errorf("failed to open store database: %w", err)
				}
				defer db.Close()

				if err := orchestrator.RunMigrations(cmd.Context(), db, adapter, mc); err != nil {
					return err
				}
				cmd.Printf("Applied %s migration\n", adapter)
			}

			cmd.Printf("workItemsTable: %s\nprojectsTable: %s\n", workItems, projects)
			return nil
		},
	}

	migrateCmd.Flags().String("output", "", "write the migration to this folder instead of applying it")
	migrateCmd.Flags().String("schema", "provisioning", "schema (PostgreSQL, SQL Server), database (MySQL) or table prefix (SQLite)")
	migrateCmd.Flags().String("work-items-table", "work_items", "name of the work items table")
	migrateCmd.Flags().String("projects-table", "projects", "name of the projects table")
	for _, name := range []string{"output", "schema", "work-items-table", "projects-table"} {
		_ = v.BindPFlag(name, migrateCmd.Flags().Lookup(name))
	}

	return migrateCmd
}
