package orchestrator

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rootpkg "github.com/getpup/tenant-provisioner"
	"github.com/getpup/tenant-provisioner/batch"
	"github.com/getpup/tenant-provisioner/internal/sqlfake"
	"github.com/getpup/tenant-provisioner/pipeline"
	"github.com/getpup/tenant-provisioner/pkg/migrations"
	"github.com/getpup/tenant-provisioner/store/memory"
	"github.com/getpup/tenant-provisioner/store/sqlstore"
)

func TestNew_WithStore(t *testing.T) {
	orch, err := New(WithStore(memory.New()), WithMetricsEnabled(false))

	require.NoError(t, err)
	assert.NotNil(t, orch)
}

func TestNew_WithDatabase(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	orch, err := New(WithDatabase(db, sqlstore.SQLServer), WithTableNames("prov.work_items", "prov.projects"))

	require.NoError(t, err)
	assert.NotNil(t, orch)
}

func TestNew_MissingWorkItemSource(t *testing.T) {
	orch, err := New(WithAdminConnection("Server=sql01;"))

	assert.Error(t, err)
	assert.Nil(t, orch)
	assert.Contains(t, err.Error(), "work item source is required")
}

func TestNew_UnknownDialect(t *testing.T) {
	orch, err := New(WithStore(memory.New()), WithDialect("oracle"))

	assert.Error(t, err)
	assert.Nil(t, orch)
}

func TestNew_SkipsWithoutAdminConnection(t *testing.T) {
	orch, err := New(WithStore(memory.New()), WithMetricsEnabled(false))
	require.NoError(t, err)

	summary, err := orch.RunOnce(context.Background())

	require.NoError(t, err)
	assert.True(t, summary.Skipped)
}

func TestNew_WiresProvisioningPipeline(t *testing.T) {
	server := sqlfake.NewServer("master")
	s := memory.New()
	s.PutWorkItem(rootpkg.WorkItem{ID: 1, ProjectName: "Acme", Status: 7, Active: true})

	script := filepath.Join(t.TempDir(), "seed.sql")
	require.NoError(t, os.WriteFile(script, []byte("CREATE TABLE a (id int)\nGO\nCREATE TABLE b (id int)\n"), 0o600))

	orch, err := New(
		WithStore(s),
		WithAdminConnection("Server=sql01;User ID=sa;Password=secret;"),
		WithOpener(server.Open),
		WithSettleDelay(-1),
		WithRetry(1, -1),
		WithArtifacts(pipeline.Artifacts{Script: script}),
		WithStatusCodes(
			rootpkg.StatusCodes{Eligible: 7, Completed: 8, Failed: 9},
			rootpkg.StatusCodes{Eligible: 7, Completed: 8, Failed: 9},
		),
		WithPipelineName("facade-test"),
	)
	require.NoError(t, err)

	summary, err := orch.RunOnce(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, summary.Completed)
	assert.True(t, server.HasDatabase("Acme"))

	item, ok := s.WorkItem(1)
	require.True(t, ok)
	assert.Equal(t, rootpkg.Status(8), item.Status)
}

func TestNew_FailureRecordedWithCustomCodes(t *testing.T) {
	server := sqlfake.NewServer("master")
	server.FailWhenContains("CREATE DATABASE", -1, errors.New("permission denied"))
	s := memory.New()
	s.PutWorkItem(rootpkg.WorkItem{ID: 1, ProjectName: "Acme", Status: 7, Active: true})

	orch, err := New(
		WithStore(s),
		WithAdminConnection("Server=sql01;"),
		WithOpener(server.Open),
		WithSettleDelay(-1),
		WithMetricsEnabled(false),
		WithStatusCodes(
			rootpkg.StatusCodes{Eligible: 7, Completed: 8, Failed: 9},
			rootpkg.StatusCodes{Eligible: 7, Completed: 8, Failed: 9},
		),
	)
	require.NoError(t, err)

	summary, err := orch.RunOnce(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
	item, _ := s.WorkItem(1)
	assert.Equal(t, rootpkg.Status(9), item.Status)
	require.NotNil(t, item.ErrorMessage)
	assert.Contains(t, *item.ErrorMessage, "permission denied")
}

func TestRunMigrations_SQLServerExecutesBatches(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	cfg := migrations.DefaultConfig()
	ddl, err := migrations.Render("sqlserver", &cfg)
	require.NoError(t, err)
	batches := len(batch.Split(ddl))
	require.Greater(t, batches, 1)
	for i := 0; i < batches; i++ {
		mock.ExpectExec(".*").WillReturnResult(sqlmock.NewResult(0, 0))
	}

	err = RunMigrations(context.Background(), db, "sqlserver", migrations.DefaultConfig())

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunMigrations_PostgresSingleStatement(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectExec("CREATE TABLE").WillReturnResult(sqlmock.NewResult(0, 0))

	err = RunMigrations(context.Background(), db, "postgres", migrations.DefaultConfig())

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunMigrations_ExecError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectExec(".*").WillReturnError(errors.New("permission denied"))

	err = RunMigrations(context.Background(), db, "postgres", migrations.DefaultConfig())

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to execute migrations")
}

func TestRunMigrations_UnsupportedAdapter(t *testing.T) {
	var db *sql.DB

	err := RunMigrations(context.Background(), db, "oracle", migrations.DefaultConfig())

	assert.Error(t, err)
}
