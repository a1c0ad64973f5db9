//go:build integration

package integration_test

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	_ "github.com/microsoft/go-mssqldb"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/getpup/tenant-provisioner/connstr"
	"github.com/getpup/tenant-provisioner/pkg/migrations"
	"github.com/getpup/tenant-provisioner/pkg/orchestrator"
	"github.com/getpup/tenant-provisioner/store/sqlstore"
)

const saPassword = "Provisioner!Passw0rd"

// server is a disposable SQL Server instance.
type server struct {
	// Admin is an ADO style admin connection string without a database.
	Admin string
}

// startSQLServer starts a SQL Server container. The test is skipped when
// Docker is not available.
func startSQLServer(t *testing.T, ctx context.Context) *server {
	t.Helper()

	port := nat.Port("1433/tcp")
	urlDSN := func(host string, port nat.Port) string {
		return fmt.Sprintf("sqlserver://sa:%s@%s:%s?database=master&encrypt=disable", saPassword, host, port.Port())
	}

	req := testcontainers.ContainerRequest{
		Image:        "mcr.microsoft.com/mssql/server:2022-latest",
		ExposedPorts: []string{string(port)},
		Env: map[string]string{
			"ACCEPT_EULA":       "Y",
			"MSSQL_SA_PASSWORD": saPassword,
		},
		WaitingFor: wait.ForSQL(port, "sqlserver", urlDSN).WithStartupTimeout(3 * time.Minute),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("start sqlserver container: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	mappedPort, err := container.MappedPort(ctx, port)
	require.NoError(t, err)

	return &server{
		Admin: fmt.Sprintf("Server=%s;Port=%s;User ID=sa;Password=%s;Encrypt=disable;", host, mappedPort.Port(), saPassword),
	}
}

// open connects to database on the server.
func (s *server) open(t *testing.T, database string) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlserver", connstr.WithDatabase(s.Admin, database))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Ping())
	return db
}

// setupScheduler creates the scheduler database and its tables.
func setupScheduler(t *testing.T, ctx context.Context, s *server) (*sql.DB, sqlstore.TableConfig) {
	t.Helper()

	master := s.open(t, "master")
	_, err := master.ExecContext(ctx, "IF DB_ID(N'scheduler') IS NULL CREATE DATABASE [scheduler]")
	require.NoError(t, err)

	db := s.open(t, "scheduler")
	config := migrations.DefaultConfig()
	require.NoError(t, orchestrator.RunMigrations(ctx, db, "sqlserver", config))

	workItems, projects, err := migrations.TableNames("sqlserver", config)
	require.NoError(t, err)
	return db, sqlstore.TableConfig{WorkItemsTable: workItems, ProjectsTable: projects}
}
