// Package migrations provides SQL migration generation for the provisioning
// scheduler tables. It generates the work item queue and project status
// tables for PostgreSQL, MySQL/MariaDB, SQLite and SQL Server.
package migrations
