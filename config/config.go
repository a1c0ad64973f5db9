// Package config loads the provisioner configuration from a YAML file and
// PROVISIONER_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	provisioner "github.com/getpup/tenant-provisioner"
	"github.com/getpup/tenant-provisioner/provision"
	"github.com/getpup/tenant-provisioner/store/sqlstore"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "PROVISIONER_"

// TemplatesConfig holds the per-item connection string templates.
type TemplatesConfig struct {
	Integrated string `yaml:"integrated"`
	SQL        string `yaml:"sql"`
}

// ArtifactsConfig holds the artifact paths. Empty paths are not deployed.
type ArtifactsConfig struct {
	Package      string `yaml:"package"`
	Script       string `yaml:"script"`
	SchemaScript string `yaml:"schemaScript"`
}

// StoreConfig locates the scheduler tables.
type StoreConfig struct {
	Dialect        string `yaml:"dialect"`
	DSN            string `yaml:"dsn"`
	WorkItemsTable string `yaml:"workItemsTable"`
	ProjectsTable  string `yaml:"projectsTable"`
}

// TimingsConfig holds delays, attempts and timeouts.
type TimingsConfig struct {
	SettleDelay  time.Duration `yaml:"settleDelay"`
	RetryDelay   time.Duration `yaml:"retryDelay"`
	MaxAttempts  int           `yaml:"maxAttempts"`
	ItemTimeout  time.Duration `yaml:"itemTimeout"`
	PollInterval time.Duration `yaml:"pollInterval"`
}

// CodesConfig is a set of status codes.
type CodesConfig struct {
	Eligible  int `yaml:"eligible"`
	Completed int `yaml:"completed"`
	Failed    int `yaml:"failed"`
}

// StatusCodes converts the config into provisioner.StatusCodes.
func (c CodesConfig) StatusCodes() provisioner.StatusCodes {
	return provisioner.StatusCodes{
		Eligible:  provisioner.Status(c.Eligible),
		Completed: provisioner.Status(c.Completed),
		Failed:    provisioner.Status(c.Failed),
	}
}

// StatusCodesConfig holds the codes written on work items and projects.
// Project defaults to WorkItem.
type StatusCodesConfig struct {
	WorkItem CodesConfig  `yaml:"workItem"`
	Project  *CodesConfig `yaml:"project"`
}

// SqlPackageConfig configures the package publisher.
type SqlPackageConfig struct {
	Path       string            `yaml:"path"`
	Properties map[string]string `yaml:"properties"`
}

// MetricsConfig configures the optional metrics endpoint.
type MetricsConfig struct {
	Address  string `yaml:"address"`
	Pipeline string `yaml:"pipeline"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config is the complete provisioner configuration.
type Config struct {
	AdminConnection string            `yaml:"adminConnection"`
	Dialect         string            `yaml:"dialect"`
	Templates       TemplatesConfig   `yaml:"templates"`
	Artifacts       ArtifactsConfig   `yaml:"artifacts"`
	Store           StoreConfig       `yaml:"store"`
	Timings         TimingsConfig     `yaml:"timings"`
	StatusCodes     StatusCodesConfig `yaml:"statusCodes"`
	SqlPackage      SqlPackageConfig  `yaml:"sqlpackage"`
	Metrics         MetricsConfig     `yaml:"metrics"`
	Log             LogConfig         `yaml:"log"`
	ContinueOnError bool              `yaml:"continueOnError"`
}

// Load reads path (skipped when empty), applies environment overrides and
// defaults, and validates the result.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from PROVISIONER_* environment variables.
func (c *Config) ApplyEnv() error {
	setString(&c.AdminConnection, "ADMIN_CONNECTION")
	setString(&c.Dialect, "DIALECT")
	setString(&c.Templates.Integrated, "TEMPLATE_INTEGRATED")
	setString(&c.Templates.SQL, "TEMPLATE_SQL")
	setString(&c.Artifacts.Package, "PACKAGE_PATH")
	setString(&c.Artifacts.Script, "SCRIPT_PATH")
	setString(&c.Artifacts.SchemaScript, "SCHEMA_SCRIPT_PATH")
	setString(&c.Store.Dialect, "STORE_DIALECT")
	setString(&c.Store.DSN, "STORE_DSN")
	setString(&c.Store.WorkItemsTable, "STORE_WORK_ITEMS_TABLE")
	setString(&c.Store.ProjectsTable, "STORE_PROJECTS_TABLE")
	setString(&c.SqlPackage.Path, "SQLPACKAGE_PATH")
	setString(&c.Metrics.Address, "METRICS_ADDR")
	setString(&c.Log.Level, "LOG_LEVEL")
	setString(&c.Log.Format, "LOG_FORMAT")

	var errs []error
	errs = append(errs,
		setDuration(&c.Timings.SettleDelay, "SETTLE_DELAY"),
		setDuration(&c.Timings.RetryDelay, "RETRY_DELAY"),
		setInt(&c.Timings.MaxAttempts, "MAX_ATTEMPTS"),
		setDuration(&c.Timings.ItemTimeout, "ITEM_TIMEOUT"),
		setDuration(&c.Timings.PollInterval, "POLL_INTERVAL"),
		setBool(&c.ContinueOnError, "CONTINUE_ON_ERROR"),
	)
	return errors.Join(errs...)
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.Dialect == "" {
		c.Dialect = "sqlserver"
	}
	if c.Store.Dialect == "" {
		c.Store.Dialect = c.Dialect
	}
	if c.Store.WorkItemsTable == "" {
		c.Store.WorkItemsTable = sqlstore.DefaultTableConfig().WorkItemsTable
	}
	if c.Store.ProjectsTable == "" {
		c.Store.ProjectsTable = sqlstore.DefaultTableConfig().ProjectsTable
	}
	if c.Timings.SettleDelay == 0 {
		c.Timings.SettleDelay = provision.DefaultSettleDelay
	}
	if c.Timings.RetryDelay == 0 {
		c.Timings.RetryDelay = 2 * time.Second
	}
	if c.Timings.MaxAttempts == 0 {
		c.Timings.MaxAttempts = 3
	}
	if c.Timings.ItemTimeout == 0 {
		c.Timings.ItemTimeout = 10 * time.Minute
	}
	if c.Timings.PollInterval == 0 {
		c.Timings.PollInterval = time.Minute
	}
	if c.StatusCodes.WorkItem == (CodesConfig{}) {
		defaults := provisioner.DefaultStatusCodes()
		c.StatusCodes.WorkItem = CodesConfig{
			Eligible:  int(defaults.Eligible),
			Completed: int(defaults.Completed),
			Failed:    int(defaults.Failed),
		}
	}
	if c.StatusCodes.Project == nil {
		project := c.StatusCodes.WorkItem
		c.StatusCodes.Project = &project
	}
	if c.SqlPackage.Path == "" {
		c.SqlPackage.Path = "sqlpackage"
	}
	if c.Metrics.Pipeline == "" {
		c.Metrics.Pipeline = "default"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
}

// Validate checks names and numeric ranges. An empty admin connection is
// valid; runs are skipped until it is configured.
func (c *Config) Validate() error {
	var errs []error

	if _, err := provision.DialectByName(c.Dialect); err != nil {
		errs = append(errs, err)
	}
	if _, err := sqlstore.ParseDialect(c.Store.Dialect); err != nil {
		errs = append(errs, err)
	}
	if c.Timings.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("maxAttempts must be at least 1 (got %d)", c.Timings.MaxAttempts))
	}
	if c.Timings.ItemTimeout < 0 || c.Timings.PollInterval < 0 {
		errs = append(errs, errors.New("itemTimeout and pollInterval must not be negative"))
	}
	codes := c.StatusCodes.WorkItem
	if codes.Eligible == codes.Completed || codes.Eligible == codes.Failed || codes.Completed == codes.Failed {
		errs = append(errs, fmt.Errorf("work item status codes must be distinct (got %+v)", codes))
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("unsupported log format %q (supported: json, text)", c.Log.Format))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// RequireStore reports an error when no work item store is configured.
func (c *Config) RequireStore() error {
	if c.Store.DSN == "" {
		return fmt.Errorf("store dsn is required (env: %sSTORE_DSN)", EnvPrefix)
	}
	return nil
}

func setString(field *string, key string) {
	if value := os.Getenv(EnvPrefix + key); value != "" {
		*field = value
	}
}

func setInt(field *int, key string) error {
	value := os.Getenv(EnvPrefix + key)
	if value == "" {
		return nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid %s%s: %w", EnvPrefix, key, err)
	}
	*field = n
	return nil
}

func setDuration(field *time.Duration, key string) error {
	value := os.Getenv(EnvPrefix + key)
	if value == "" {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("invalid %s%s: %w", EnvPrefix, key, err)
	}
	*field = d
	return nil
}

func setBool(field *bool, key string) error {
	value := os.Getenv(EnvPrefix + key)
	if value == "" {
		return nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return fmt.Errorf("invalid %s%s: %w", EnvPrefix, key, err)
	}
	*field = b
	return nil
}
