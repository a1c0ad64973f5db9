package deploy

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	provisioner "github.com/getpup/tenant-provisioner"
	"github.com/getpup/tenant-provisioner/executor"
	"github.com/getpup/tenant-provisioner/metrics"
	"github.com/getpup/tenant-provisioner/provision"
)

// mockLogger captures log calls for testing
type mockLogger struct {
	mu    sync.Mutex
	calls []string
}

func newMockLogger() *mockLogger {
	return &mockLogger{calls: make([]string, 0)}
}

func (m *mockLogger) record(level string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, level)
}

func (m *mockLogger) Debug(ctx context.Context, msg string, args ...any) { m.record("debug") }
func (m *mockLogger) Info(ctx context.Context, msg string, args ...any)  { m.record("info") }
func (m *mockLogger) Warn(ctx context.Context, msg string, args ...any)  { m.record("warn") }
func (m *mockLogger) Error(ctx context.Context, msg string, args ...any) { m.record("error") }

func (m *mockLogger) count(level string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c == level {
			n++
		}
	}
	return n
}

type fakePublisher struct {
	err   error
	calls []publishCall
}

type publishCall struct {
	pkg    Package
	target string
}

func (f *fakePublisher) Publish(ctx context.Context, pkg Package, targetConnection string) error {
	f.calls = append(f.calls, publishCall{pkg: pkg, target: targetConnection})
	return f.err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

type deployerFixture struct {
	ensurer   *provision.MockEnsurer
	runner    *executor.MockRunner
	publisher *fakePublisher
	deployer  *Deployer
}

func newDeployerFixture(collector *metrics.Collector) *deployerFixture {
	f := &deployerFixture{
		ensurer:   provision.NewMockEnsurer(),
		runner:    executor.NewMockRunner(),
		publisher: &fakePublisher{},
	}
	f.deployer = New(Config{
		Ensurer:   f.ensurer,
		Runner:    f.runner,
		Publisher: f.publisher,
		Logger:    newMockLogger(),
		Collector: collector,
	})
	return f
}

func TestNew_DefaultsToSqlPackage(t *testing.T) {
	d := New(Config{})

	_, ok := d.config.Publisher.(*SqlPackage)
	assert.True(t, ok)
}

func TestDeploy_Script(t *testing.T) {
	f := newDeployerFixture(nil)
	path := writeFile(t, "seed.sql", "INSERT INTO t VALUES (1)\nGO\nINSERT INTO t VALUES (2)")

	outcome := f.deployer.Deploy(context.Background(), Artifact{Kind: KindScript, Path: path, Role: RoleScript}, "tenant_a", "Server=db;")

	require.Equal(t, provisioner.OutcomeSucceeded, outcome.State, outcome.Err)
	assert.Equal(t, 2, outcome.Batches)
	require.Len(t, f.ensurer.EnsureExistsCalls, 1)
	assert.Equal(t, "tenant_a", f.ensurer.EnsureExistsCalls[0].DatabaseName)
	require.Len(t, f.runner.Calls, 1)
	assert.Equal(t, "Server=db;Database=tenant_a;", f.runner.Calls[0].ConnectionString)
}

func TestDeploy_ScriptEnsureFailureStopsExecution(t *testing.T) {
	f := newDeployerFixture(nil)
	boom := errors.New("server unreachable")
	f.ensurer.EnsureExistsFunc = func(ctx context.Context, serverConnection, databaseName string) (bool, error) {
		return false, boom
	}
	path := writeFile(t, "seed.sql", "SELECT 1")

	outcome := f.deployer.Deploy(context.Background(), Artifact{Kind: KindScript, Path: path, Role: RoleScript}, "tenant_a", "Server=db;")

	assert.Equal(t, provisioner.OutcomeFailed, outcome.State)
	assert.ErrorIs(t, outcome.Err, boom)
	assert.Empty(t, f.runner.Calls)
}

func TestDeploy_ScriptExecutionFailureIsWrappedWithRole(t *testing.T) {
	f := newDeployerFixture(nil)
	f.runner.ExecuteBatchesFunc = func(ctx context.Context, connectionString string, batches []string) (int, error) {
		return 0, provisioner.ErrRetriesExhausted
	}
	path := writeFile(t, "seed.sql", "SELECT 1")

	outcome := f.deployer.Deploy(context.Background(), Artifact{Kind: KindScript, Path: path, Role: RoleScript}, "tenant_a", "Server=db;")

	assert.Equal(t, provisioner.OutcomeFailed, outcome.State)
	assert.ErrorIs(t, outcome.Err, provisioner.ErrRetriesExhausted)
	var artifactErr *ArtifactError
	require.True(t, errors.As(outcome.Err, &artifactErr))
	assert.Equal(t, RoleScript, artifactErr.Role)
	assert.Len(t, f.runner.Calls, 1)
}

func TestDeploy_MissingScriptFile(t *testing.T) {
	f := newDeployerFixture(nil)

	outcome := f.deployer.Deploy(context.Background(), Artifact{Kind: KindScript, Path: "/nope/seed.sql", Role: RoleScript}, "tenant_a", "Server=db;")

	assert.Equal(t, provisioner.OutcomeFailed, outcome.State)
	assert.ErrorIs(t, outcome.Err, os.ErrNotExist)
}

func TestDeploy_SchemaRunsOnServerConnection(t *testing.T) {
	f := newDeployerFixture(nil)
	path := writeFile(t, "schema.sql", schemaScript)

	outcome := f.deployer.Deploy(context.Background(), Artifact{Kind: KindSchemaScript, Path: path, Role: RoleSchema}, "tenant_a", "Server=db;Database=master;")

	require.Equal(t, provisioner.OutcomeSucceeded, outcome.State, outcome.Err)
	require.Len(t, f.runner.Calls, 1)
	assert.Equal(t, "Server=db;Database=master;", f.runner.Calls[0].ConnectionString)
	assert.Contains(t, f.runner.Calls[0].Batches, "CREATE DATABASE [tenant_a]")
	assert.Empty(t, f.ensurer.EnsureExistsCalls)
}

func TestDeploy_SchemaNormalizesServerConnection(t *testing.T) {
	f := newDeployerFixture(nil)
	path := writeFile(t, "schema.sql", schemaScript)

	outcome := f.deployer.Deploy(context.Background(), Artifact{Kind: KindSchemaScript, Path: path, Role: RoleSchema}, "tenant_a", "Server=db;Username=sa;pwd=secret;")

	require.Equal(t, provisioner.OutcomeSucceeded, outcome.State, outcome.Err)
	require.Len(t, f.runner.Calls, 1)
	assert.Equal(t, "Server=db;User ID=sa;Password=secret;Database=master;", f.runner.Calls[0].ConnectionString)
	assert.Equal(t, []string{"Server=db;Username=sa;pwd=secret;"}, f.ensurer.AdminConnectionCalls)
}

func TestDeploy_SchemaAdminConnectionError(t *testing.T) {
	f := newDeployerFixture(nil)
	f.ensurer.AdminConnectionFunc = func(serverConnection string) (string, error) {
		return "", errors.New("bad dsn")
	}
	path := writeFile(t, "schema.sql", schemaScript)

	outcome := f.deployer.Deploy(context.Background(), Artifact{Kind: KindSchemaScript, Path: path, Role: RoleSchema}, "tenant_a", "Server=db;")

	assert.Equal(t, provisioner.OutcomeFailed, outcome.State)
	assert.Contains(t, outcome.Err.Error(), "bad dsn")
	assert.Empty(t, f.runner.Calls)
}

func TestDeploy_SchemaWithoutMarkerIsSkipped(t *testing.T) {
	f := newDeployerFixture(nil)
	path := writeFile(t, "schema.sql", "CREATE TABLE t (id int)")

	outcome := f.deployer.Deploy(context.Background(), Artifact{Kind: KindSchemaScript, Path: path, Role: RoleSchema}, "tenant_a", "Server=db;")

	assert.Equal(t, provisioner.OutcomeSkipped, outcome.State)
	assert.Empty(t, f.runner.Calls)
}

func TestDeploy_Package(t *testing.T) {
	f := newDeployerFixture(nil)
	path := writeZip(t, "App.dacpac", map[string]string{"model.xml": "<DataSchemaModel/>", "DacMetadata.xml": testMetadata})

	outcome := f.deployer.Deploy(context.Background(), Artifact{Kind: KindPackage, Path: path, Role: RolePackage}, "tenant_a", "Server=db;")

	require.Equal(t, provisioner.OutcomeSucceeded, outcome.State, outcome.Err)
	require.Len(t, f.publisher.calls, 1)
	assert.Equal(t, "TenantApp", f.publisher.calls[0].pkg.Name)
	assert.Equal(t, "Server=db;Database=tenant_a;", f.publisher.calls[0].target)
	assert.Empty(t, f.runner.Calls)
}

func TestDeploy_InvalidPackageNeverPublishes(t *testing.T) {
	f := newDeployerFixture(nil)
	path := writeFile(t, "App.dacpac", "not a zip")

	outcome := f.deployer.Deploy(context.Background(), Artifact{Kind: KindPackage, Path: path, Role: RolePackage}, "tenant_a", "Server=db;")

	assert.Equal(t, provisioner.OutcomeFailed, outcome.State)
	assert.ErrorIs(t, outcome.Err, ErrInvalidPackage)
	assert.Empty(t, f.publisher.calls)
}

func TestDeploy_PublishFailure(t *testing.T) {
	f := newDeployerFixture(nil)
	f.publisher.err = errors.New("SQL72014")
	path := writeZip(t, "App.dacpac", map[string]string{"model.xml": "<DataSchemaModel/>"})

	outcome := f.deployer.Deploy(context.Background(), Artifact{Kind: KindPackage, Path: path, Role: RolePackage}, "tenant_a", "Server=db;")

	assert.Equal(t, provisioner.OutcomeFailed, outcome.State)
	assert.Contains(t, outcome.Err.Error(), "package artifact")
	assert.Contains(t, outcome.Err.Error(), "SQL72014")
}

func TestDeploy_UnknownKindIsNeverSkipped(t *testing.T) {
	f := newDeployerFixture(nil)

	outcome := f.deployer.Deploy(context.Background(), Artifact{Path: "x.bin", Role: RoleScript}, "tenant_a", "Server=db;")

	assert.Equal(t, provisioner.OutcomeFailed, outcome.State)
	assert.ErrorIs(t, outcome.Err, provisioner.ErrUnsupportedArtifact)
}

func TestDeploy_RecordsMetrics(t *testing.T) {
	f := newDeployerFixture(metrics.NewCollector("test-deploy"))
	path := writeFile(t, "seed.sql", "SELECT 1")

	before := testutil.ToFloat64(metrics.ArtifactDeploysTotal.WithLabelValues("test-deploy", "script", "succeeded"))
	f.deployer.Deploy(context.Background(), Artifact{Kind: KindScript, Path: path, Role: RoleScript}, "tenant_a", "Server=db;")
	after := testutil.ToFloat64(metrics.ArtifactDeploysTotal.WithLabelValues("test-deploy", "script", "succeeded"))

	assert.Equal(t, before+1, after)
}
