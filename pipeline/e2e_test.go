package pipeline

import (
	"archive/zip"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	provisioner "github.com/getpup/tenant-provisioner"
	"github.com/getpup/tenant-provisioner/deploy"
	"github.com/getpup/tenant-provisioner/executor"
	"github.com/getpup/tenant-provisioner/identifier"
	"github.com/getpup/tenant-provisioner/internal/sqlfake"
	"github.com/getpup/tenant-provisioner/lifecycle"
	"github.com/getpup/tenant-provisioner/provision"
	"github.com/getpup/tenant-provisioner/store/memory"
)

type recordingPublisher struct {
	targets []string
}

func (p *recordingPublisher) Publish(ctx context.Context, pkg deploy.Package, targetConnection string) error {
	p.targets = append(p.targets, targetConnection)
	return nil
}

type endToEnd struct {
	server    *sqlfake.Server
	store     *memory.Store
	publisher *recordingPublisher
	orch      *Orchestrator
}

func writeDacpac(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "Tenant.dacpac")
	f, err := os.Create(path)
	require.NoError(t, err)

	w := zip.NewWriter(f)
	fw, err := w.Create("model.xml")
	require.NoError(t, err)
	_, err = fw.Write([]byte("<DataSchemaModel/>"))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())
	return path
}

func writeScript(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func newEndToEnd(t *testing.T, script string, items ...provisioner.WorkItem) *endToEnd {
	t.Helper()

	e := &endToEnd{
		server:    sqlfake.NewServer("master"),
		store:     memory.New(),
		publisher: &recordingPublisher{},
	}
	for _, item := range items {
		e.store.PutWorkItem(item)
		if item.ProjectID != nil {
			e.store.PutProject(provisioner.Project{ID: *item.ProjectID})
		}
	}

	ensurer := provision.New(provision.Config{
		Open:        e.server.Open,
		SettleDelay: -1,
	})
	runner := executor.New(executor.Config{
		Open:        e.server.Open,
		MaxAttempts: 3,
		RetryDelay:  -1,
	})

	e.orch = New(Config{
		Store:   e.store,
		Ensurer: ensurer,
		Deployer: deploy.New(deploy.Config{
			Ensurer:   ensurer,
			Runner:    runner,
			Publisher: e.publisher,
		}),
		Tracker:         lifecycle.New(lifecycle.Config{Store: e.store}),
		AdminConnection: "Server=sql01;User ID=sa;Password=secret;",
		Artifacts: Artifacts{
			Package: writeDacpac(t),
			Script:  writeScript(t, "seed.sql", script),
		},
	})
	return e
}

func TestEndToEnd_SanitizedDatabaseCompleted(t *testing.T) {
	projectID := int64(77)
	e := newEndToEnd(t, "CREATE TABLE settings (id int)\nGO\nINSERT INTO settings VALUES (1)\nGO\n",
		provisioner.WorkItem{ID: 1, ProjectID: &projectID, ProjectName: "My Böse Project!!", Status: 1, Active: true})

	summary, err := e.orch.RunOnce(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, summary.Completed)

	name := DatabaseName(provisioner.WorkItem{ProjectName: "My Böse Project!!"})
	assert.True(t, identifier.Valid(name))
	assert.LessOrEqual(t, len(name), identifier.CatalogMaxLength)
	assert.True(t, e.server.HasDatabase(name))
	assert.Equal(t, 1, e.server.Creates())

	require.Len(t, e.publisher.targets, 1)
	assert.Contains(t, e.publisher.targets[0], "Database="+name+";")

	item, ok := e.store.WorkItem(1)
	require.True(t, ok)
	assert.Equal(t, provisioner.Status(4), item.Status)
	assert.Nil(t, item.ErrorMessage)
	assert.Equal(t, 1, e.store.Saves())

	project, ok := e.store.Project(projectID)
	require.True(t, ok)
	assert.Equal(t, provisioner.Status(4), project.Status)

	var scriptBatches int
	for _, st := range e.server.Statements() {
		if !st.Query && strings.Contains(st.DSN, "Database="+name) {
			scriptBatches++
		}
	}
	assert.Equal(t, 2, scriptBatches)
}

func TestEndToEnd_InvalidStatementFails(t *testing.T) {
	e := newEndToEnd(t, "SELECT * FROM missing_table",
		provisioner.WorkItem{ID: 1, ProjectName: "My Böse Project!!", Status: 1, Active: true})
	e.server.FailWhenContains("missing_table", -1, errors.New("invalid object name 'missing_table'"))

	summary, err := e.orch.RunOnce(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)

	item, ok := e.store.WorkItem(1)
	require.True(t, ok)
	assert.Equal(t, provisioner.Status(5), item.Status)
	require.NotNil(t, item.ErrorMessage)
	assert.NotEmpty(t, *item.ErrorMessage)
	assert.Contains(t, *item.ErrorMessage, "script artifact")
	assert.Equal(t, 1, e.store.Saves())
}

func TestEndToEnd_FirstFailureDoesNotAffectSecond(t *testing.T) {
	e := newEndToEnd(t, "INSERT INTO audit VALUES (1)",
		provisioner.WorkItem{ID: 1, ProjectName: "Broken", Status: 1, Active: true},
		provisioner.WorkItem{ID: 2, ProjectName: "Healthy", Status: 1, Active: true},
		provisioner.WorkItem{ID: 3, ProjectName: "Inactive", Status: 1, Active: false})
	// The first item's database cannot be created.
	e.server.FailWhenContains("CREATE DATABASE [Broken]", -1, errors.New("permission denied"))

	summary, err := e.orch.RunOnce(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 2, summary.Eligible)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, summary.Completed)

	first, _ := e.store.WorkItem(1)
	second, _ := e.store.WorkItem(2)
	third, _ := e.store.WorkItem(3)
	assert.Equal(t, provisioner.Status(5), first.Status)
	assert.Equal(t, provisioner.Status(4), second.Status)
	assert.Nil(t, second.ErrorMessage)
	assert.Equal(t, provisioner.Status(1), third.Status)

	assert.False(t, e.server.HasDatabase("Broken"))
	assert.True(t, e.server.HasDatabase("Healthy"))
}

func TestEndToEnd_SecondRunIsNoop(t *testing.T) {
	e := newEndToEnd(t, "SELECT 1",
		provisioner.WorkItem{ID: 1, ProjectName: "Acme", Status: 1, Active: true})

	_, err := e.orch.RunOnce(context.Background())
	require.NoError(t, err)

	summary, err := e.orch.RunOnce(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 0, summary.Eligible)
	assert.Equal(t, 1, e.server.Creates())
	assert.Equal(t, 1, e.store.Saves())
}

func TestEndToEnd_SchemaScriptUsesNormalizedAdminConnection(t *testing.T) {
	server := sqlfake.NewServer("master")
	s := memory.New()
	s.PutWorkItem(provisioner.WorkItem{ID: 1, ProjectName: "Acme", Status: 1, Active: true})

	ensurer := provision.New(provision.Config{Open: server.Open, SettleDelay: -1})
	runner := executor.New(executor.Config{Open: server.Open, MaxAttempts: 1, RetryDelay: -1})
	orch := New(Config{
		Store:   s,
		Ensurer: ensurer,
		Deployer: deploy.New(deploy.Config{
			Ensurer: ensurer,
			Runner:  runner,
		}),
		Tracker:         lifecycle.New(lifecycle.Config{Store: s}),
		AdminConnection: "Server=sql01;Username=sa;pwd=secret;",
		Artifacts: Artifacts{
			Schema: writeScript(t, "schema.sql", "USE [master]\nGO\nCREATE TABLE t (id int)\n"),
		},
	})

	summary, err := orch.RunOnce(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, summary.Completed)

	var schemaStatements int
	for _, st := range server.Statements() {
		if st.Query {
			continue
		}
		if strings.Contains(st.SQL, "USE [master]") || strings.Contains(st.SQL, "CREATE TABLE t") {
			schemaStatements++
			assert.Equal(t, "Server=sql01;User ID=sa;Password=secret;Database=master;", st.DSN)
		}
	}
	assert.Equal(t, 2, schemaStatements)
}
