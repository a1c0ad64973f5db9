// Package cmd implements the provisioner command line.
package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/getpup/tenant-provisioner/config"
)

// Version is set at build time with -ldflags "-X .../cmd.Version=...".
var Version = "dev"

// NewRootCommand builds the command tree. Flags are bound to v so they can
// also be set through PROVISIONER_* environment variables.
func NewRootCommand(v *viper.Viper) *cobra.Command {
	root := &cobra.Command{
		Use:   "provisioner",
		Short: "Provisions tenant databases for queued work items",
		Long: `provisioner reads eligible work items from the scheduler tables, creates a
database per tenant and deploys the configured schema script, package and
seed script into it. Every processed item ends in a completed or failed status.

Configuration:
  A YAML file passed with --config, overridden by environment variables:
    PROVISIONER_ADMIN_CONNECTION   admin connection string of the tenant server
    PROVISIONER_STORE_DSN          data source of the scheduler tables
    PROVISIONER_PACKAGE_PATH       .dacpac package to publish
    PROVISIONER_SCRIPT_PATH        .sql script to execute`,
		Version:       Version,
		SilenceUsage:  true,
	}

	root.PersistentFlags().String("config", "", "config file (YAML)")
	root.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")
	root.PersistentFlags().String("metrics-addr", "", "address of the /metrics endpoint, e.g. :9090 (disabled when empty)")

	_ = v.BindPFlag("config", root.PersistentFlags().Lookup("config"))
	_ = v.BindPFlag("log-level", root.PersistentFlags().Lookup("log-level"))
	_ = v.BindPFlag("metrics-addr", root.PersistentFlags().Lookup("metrics-addr"))

	v.SetEnvPrefix("PROVISIONER")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	root.AddCommand(newRunCommand(v), newMigrateCommand(v))
	return root
}

// Execute runs the command line with process arguments.
func Execute() error {
	return NewRootCommand(viper.New()).Execute()
}

// loadConfig reads the config file and applies flag overrides.
func loadConfig(v *viper.Viper) (*config.Config, error) {
	cfg, err := config.Load(v.GetString("config"))
	if err != nil {
		return nil, err
	}
	if level := v.GetString("log-level"); level != "" {
		cfg.Log.Level = level
	}
	if addr := v.GetString("metrics-addr"); addr != "" {
		cfg.Metrics.Address = addr
	}
	return cfg, nil
}

// newLogger builds the slog logger described by cfg.
func newLogger(w io.Writer, cfg config.LogConfig) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "text") {
		return slog.New(slog.NewTextHandler(w, opts)), nil
	}
	return slog.New(slog.NewJSONHandler(w, opts)), nil
}
