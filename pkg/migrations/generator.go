package migrations

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"
)

var identifierRegex = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]*$`)

// Adapters lists the supported database adapters.
var Adapters = []string{"postgres", "mysql", "sqlite", "sqlserver"}

// validateIdentifier ensures an identifier contains only safe characters for SQL.
// Returns an error if the identifier contains characters that could be used for SQL injection.
func validateIdentifier(name, fieldName string) error {
	if name == "" {
		return fmt.Errorf("%s cannot be empty", fieldName)
	}
	if !identifierRegex.MatchString(name) {
		return fmt.Errorf("%s must start with a letter and contain only letters, numbers, and underscores (got: %s)", fieldName, name)
	}
	return nil
}

// validateConfig validates all configuration values to prevent SQL injection.
func validateConfig(config *Config) error {
	if err := validateIdentifier(config.SchemaName, "SchemaName"); err != nil {
		return err
	}
	if err := validateIdentifier(config.WorkItemsTable, "WorkItemsTable"); err != nil {
		return err
	}
	if err := validateIdentifier(config.ProjectsTable, "ProjectsTable"); err != nil {
		return err
	}
	return nil
}

// Config configures migration generation for the scheduler tables.
type Config struct {
	// OutputFolder is the directory where the migration file will be written
	OutputFolder string

	// OutputFilename is the name of the migration file
	OutputFilename string

	// SchemaName is the schema (PostgreSQL, SQL Server) or database (MySQL).
	// For SQLite, table name prefixes are used instead of schemas (e.g., provisioning_work_items)
	SchemaName string

	// WorkItemsTable is the name of the provisioning work item queue table
	WorkItemsTable string

	// ProjectsTable is the name of the project status table
	ProjectsTable string
}

// DefaultConfig returns the default configuration for scheduler migrations.
func DefaultConfig() Config {
	timestamp := time.Now().Format("20060102150405")
	return Config{
		OutputFolder:   "migrations",
		OutputFilename: fmt.Sprintf("%s_init_provisioning_scheduler.sql", timestamp),
		SchemaName:     "provisioning",
		WorkItemsTable: "work_items",
		ProjectsTable:  "projects",
	}
}

// TableNames returns the qualified table names the adapter's migration
// creates, in the form the work item store expects.
func TableNames(adapter string, config Config) (workItems, projects string, err error) {
	switch adapter {
	case "postgres", "mysql", "sqlserver":
		return config.SchemaName + "." + config.WorkItemsTable, config.SchemaName + "." + config.ProjectsTable, nil
	case "sqlite":
		return config.SchemaName + "_" + config.WorkItemsTable, config.SchemaName + "_" + config.ProjectsTable, nil
	default:
		return "", "", unsupported(adapter)
	}
}

// Render returns the migration SQL for adapter without writing a file.
func Render(adapter string, config *Config) (string, error) {
	if err := validateConfig(config); err != nil {
		return "", fmt.Errorf("invalid configuration: %w", err)
	}

	switch adapter {
	case "postgres":
		return generatePostgresSQL(config), nil
	case "mysql":
		return generateMySQLSQL(config), nil
	case "sqlite":
		return generateSQLiteSQL(config), nil
	case "sqlserver":
		return generateSQLServerSQL(config), nil
	default:
		return "", unsupported(adapter)
	}
}

// Generate writes the migration file for adapter.
func Generate(adapter string, config *Config) error {
	sql, err := Render(adapter, config)
	if err != nil {
		return err
	}

	// Ensure output folder exists
	if err := os.MkdirAll(config.OutputFolder, 0o755); err != nil {
		return fmt.Errorf("failed to create output folder: %w", err)
	}

	outputPath := filepath.Join(config.OutputFolder, config.OutputFilename)
	if err := os.WriteFile(outputPath, []byte(sql), 0o600); err != nil {
		return fmt.Errorf("failed to write migration file: %w", err)
	}

	return nil
}

// GeneratePostgres generates a PostgreSQL migration file.
func GeneratePostgres(config *Config) error {
	return Generate("postgres", config)
}

// GenerateMySQL generates a MySQL/MariaDB migration file.
func GenerateMySQL(config *Config) error {
	return Generate("mysql", config)
}

// GenerateSQLite generates a SQLite migration file.
func GenerateSQLite(config *Config) error {
	return Generate("sqlite", config)
}

// GenerateSQLServer generates a SQL Server migration file with GO batch separators.
func GenerateSQLServer(config *Config) error {
	return Generate("sqlserver", config)
}

func unsupported(adapter string) error {
	return fmt.Errorf("unsupported adapter '%s'. Supported adapters are: postgres, mysql, sqlite, sqlserver", adapter)
}

func generatePostgresSQL(config *Config) string {
	return fmt.Sprintf(`-- Provisioning Scheduler Migration
-- Generated: %s
-- Database: PostgreSQL

CREATE SCHEMA IF NOT EXISTS %s;

-- Project records mirror the terminal provisioning status
CREATE TABLE IF NOT EXISTS %s.%s (
    id BIGINT PRIMARY KEY,
    name TEXT NOT NULL,
    status INTEGER NOT NULL,
    error_message TEXT NULL,
    modified_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

-- Work items queue database provisioning requests
-- Only the provisioner writes status, error_message and updated_at
CREATE TABLE IF NOT EXISTS %s.%s (
    id BIGSERIAL PRIMARY KEY,
    project_id BIGINT NULL REFERENCES %s.%s (id),
    project_name TEXT NOT NULL,
    database_name VARCHAR(128) NULL,
    username VARCHAR(128) NULL,
    password TEXT NULL,
    template VARCHAR(16) NOT NULL DEFAULT 'integrated' CHECK (template IN ('integrated', 'sql')),
    status INTEGER NOT NULL,
    error_message TEXT NULL,
    active BOOLEAN NOT NULL DEFAULT TRUE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

-- Index for selecting the eligible set
CREATE INDEX IF NOT EXISTS idx_%s_eligible
    ON %s.%s (active, status, id);

-- Index for finding work items by project
CREATE INDEX IF NOT EXISTS idx_%s_project
    ON %s.%s (project_id);
`,
		time.Now().Format(time.RFC3339),
		config.SchemaName,
		config.SchemaName, config.ProjectsTable,
		config.SchemaName, config.WorkItemsTable,
		config.SchemaName, config.ProjectsTable,
		config.WorkItemsTable, config.SchemaName, config.WorkItemsTable,
		config.WorkItemsTable, config.SchemaName, config.WorkItemsTable,
	)
}

func generateMySQLSQL(config *Config) string {
	return fmt.Sprintf(`-- Provisioning Scheduler Migration
-- Generated: %s
-- Database: MySQL/MariaDB

-- In MySQL, we use a separate database instead of schema
CREATE DATABASE IF NOT EXISTS %s
    DEFAULT CHARACTER SET utf8mb4
    DEFAULT COLLATE utf8mb4_unicode_ci;

USE %s;

-- Project records mirror the terminal provisioning status
CREATE TABLE IF NOT EXISTS %s (
    id BIGINT PRIMARY KEY,
    name VARCHAR(255) NOT NULL,
    status INT NOT NULL,
    error_message TEXT NULL,
    modified_at TIMESTAMP(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci;

-- Work items queue database provisioning requests
-- Only the provisioner writes status, error_message and updated_at
CREATE TABLE IF NOT EXISTS %s (
    id BIGINT AUTO_INCREMENT PRIMARY KEY,
    project_id BIGINT NULL,
    project_name VARCHAR(255) NOT NULL,
    database_name VARCHAR(128) NULL,
    username VARCHAR(128) NULL,
    password VARCHAR(255) NULL,
    template ENUM('integrated', 'sql') NOT NULL DEFAULT 'integrated',
    status INT NOT NULL,
    error_message TEXT NULL,
    active TINYINT(1) NOT NULL DEFAULT 1,
    created_at TIMESTAMP(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
    updated_at TIMESTAMP(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),

    FOREIGN KEY (project_id) REFERENCES %s (id)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci;

-- Index for selecting the eligible set
CREATE INDEX idx_%s_eligible
    ON %s (active, status, id);
`,
		time.Now().Format(time.RFC3339),
		config.SchemaName,
		config.SchemaName,
		config.ProjectsTable,
		config.WorkItemsTable,
		config.ProjectsTable,
		config.WorkItemsTable, config.WorkItemsTable,
	)
}

func generateSQLiteSQL(config *Config) string {
	// SQLite doesn't support schemas, so we use table name prefixes instead
	projectsTable := config.SchemaName + "_" + config.ProjectsTable
	workItemsTable := config.SchemaName + "_" + config.WorkItemsTable

	return fmt.Sprintf(`-- Provisioning Scheduler Migration
-- Generated: %s
-- Database: SQLite

-- Project records mirror the terminal provisioning status
CREATE TABLE IF NOT EXISTS %s (
    id INTEGER PRIMARY KEY,
    name TEXT NOT NULL,
    status INTEGER NOT NULL,
    error_message TEXT NULL,
    modified_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

-- Work items queue database provisioning requests
-- Only the provisioner writes status, error_message and updated_at
CREATE TABLE IF NOT EXISTS %s (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    project_id INTEGER NULL REFERENCES %s (id),
    project_name TEXT NOT NULL,
    database_name TEXT NULL,
    username TEXT NULL,
    password TEXT NULL,
    template TEXT NOT NULL DEFAULT 'integrated' CHECK (template IN ('integrated', 'sql')),
    status INTEGER NOT NULL,
    error_message TEXT NULL,
    active BOOLEAN NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

-- Index for selecting the eligible set
CREATE INDEX IF NOT EXISTS idx_%s_eligible
    ON %s (active, status, id);
`,
		time.Now().Format(time.RFC3339),
		projectsTable,
		workItemsTable, projectsTable,
		workItemsTable, workItemsTable,
	)
}

func generateSQLServerSQL(config *Config) string {
	return fmt.Sprintf(`-- Provisioning Scheduler Migration
-- Generated: %s
-- Database: SQL Server

IF SCHEMA_ID(N'%s') IS NULL
    EXEC(N'CREATE SCHEMA [%s]');
GO

-- Project records mirror the terminal provisioning status
IF OBJECT_ID(N'[%s].[%s]', N'U') IS NULL
CREATE TABLE [%s].[%s] (
    id BIGINT NOT NULL PRIMARY KEY,
    name NVARCHAR(256) NOT NULL,
    status INT NOT NULL,
    error_message NVARCHAR(MAX) NULL,
    modified_at DATETIME2 NOT NULL DEFAULT SYSUTCDATETIME()
);
GO

-- Work items queue database provisioning requests
-- Only the provisioner writes status, error_message and updated_at
IF OBJECT_ID(N'[%s].[%s]', N'U') IS NULL
CREATE TABLE [%s].[%s] (
    id BIGINT IDENTITY(1,1) NOT NULL PRIMARY KEY,
    project_id BIGINT NULL REFERENCES [%s].[%s] (id),
    project_name NVARCHAR(256) NOT NULL,
    database_name NVARCHAR(128) NULL,
    username NVARCHAR(128) NULL,
    password NVARCHAR(256) NULL,
    template NVARCHAR(16) NOT NULL DEFAULT 'integrated' CHECK (template IN ('integrated', 'sql')),
    status INT NOT NULL,
    error_message NVARCHAR(MAX) NULL,
    active BIT NOT NULL DEFAULT 1,
    created_at DATETIME2 NOT NULL DEFAULT SYSUTCDATETIME(),
    updated_at DATETIME2 NOT NULL DEFAULT SYSUTCDATETIME()
);
GO

-- Index for selecting the eligible set
IF NOT EXISTS (SELECT 1 FROM sys.indexes WHERE name = N'idx_%s_eligible')
CREATE INDEX idx_%s_eligible
    ON [%s].[%s] (active, status, id);
GO
`,
		time.Now().Format(time.RFC3339),
		config.SchemaName, config.SchemaName,
		config.SchemaName, config.ProjectsTable,
		config.SchemaName, config.ProjectsTable,
		config.SchemaName, config.WorkItemsTable,
		config.SchemaName, config.WorkItemsTable,
		config.SchemaName, config.ProjectsTable,
		config.WorkItemsTable,
		config.WorkItemsTable, config.SchemaName, config.WorkItemsTable,
	)
}
