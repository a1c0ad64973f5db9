// Command migrate-gen generates SQL migration files for the provisioning scheduler tables.
//
// Usage:
//
//	go run github.com/getpup/tenant-provisioner/cmd/migrate-gen -output migrations -filename init.sql
//
// Or with go generate:
//
//	//go:generate go run github.com/getpup/tenant-provisioner/cmd/migrate-gen -output migrations
//
// Generate migrations for different database adapters:
//
//	go run github.com/getpup/tenant-provisioner/cmd/migrate-gen -adapter postgres -output migrations
//	go run github.com/getpup/tenant-provisioner/cmd/migrate-gen -adapter mysql -output migrations
//	go run github.com/getpup/tenant-provisioner/cmd/migrate-gen -adapter sqlite -output migrations
//	go run github.com/getpup/tenant-provisioner/cmd/migrate-gen -adapter sqlserver -output migrations
//
// Customize table names:
//
//	go run github.com/getpup/tenant-provisioner/cmd/migrate-gen -schema scheduler -work-items-table db_requests
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/getpup/tenant-provisioner/pkg/migrations"
)

func main() {
	var (
		adapter        = flag.String("adapter", "postgres", "Database adapter: "+strings.Join(migrations.Adapters, ", "))
		outputFolder   = flag.String("output", "migrations", "Output folder for migration file")
		outputFilename = flag.String("filename", "", "Output filename (default: timestamp-based)")
		schemaName     = flag.String("schema", "provisioning", "Schema name (PostgreSQL, SQL Server) or database name (MySQL)")
		workItemsTable = flag.String("work-items-table", "work_items", "Name of work items table")
		projectsTable  = flag.String("projects-table", "projects", "Name of projects table")
	)

	flag.Parse()

	config := migrations.DefaultConfig()
	config.OutputFolder = *outputFolder
	config.SchemaName = *schemaName
	config.WorkItemsTable = *workItemsTable
	config.ProjectsTable = *projectsTable

	if *outputFilename != "" {
		config.OutputFilename = *outputFilename
	}

	if err := migrations.Generate(*adapter, &config); err != nil {
		fmt.Fprintf(os.Stderr, "Error generating migration: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Generated %s migration: %s/%s\n", *adapter, config.OutputFolder, config.OutputFilename)
}
