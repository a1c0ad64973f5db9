package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNewCollector_CreatesCollectorWithPipeline(t *testing.T) {
	collector := NewCollector("test-pipeline")

	assert.NotNil(t, collector)
	assert.Equal(t, "test-pipeline", collector.pipeline)
}

func TestCollector_IncItemsProcessed(t *testing.T) {
	collector := NewCollector("test-coll-1")

	before := testutil.ToFloat64(ItemsProcessedTotal.WithLabelValues("test-coll-1", "completed"))
	collector.IncItemsProcessed("completed")
	after := testutil.ToFloat64(ItemsProcessedTotal.WithLabelValues("test-coll-1", "completed"))

	assert.Equal(t, before+1, after)
}

func TestCollector_IncDatabasesCreated(t *testing.T) {
	collector := NewCollector("test-coll-2")

	before := testutil.ToFloat64(DatabasesCreatedTotal.WithLabelValues("test-coll-2", "sqlserver"))
	collector.IncDatabasesCreated("sqlserver")
	after := testutil.ToFloat64(DatabasesCreatedTotal.WithLabelValues("test-coll-2", "sqlserver"))

	assert.Equal(t, before+1, after)
}

func TestCollector_AddBatchesExecuted(t *testing.T) {
	collector := NewCollector("test-coll-3")

	before := testutil.ToFloat64(BatchesExecutedTotal.WithLabelValues("test-coll-3"))
	collector.AddBatchesExecuted(3)
	collector.AddBatchesExecuted(0)
	after := testutil.ToFloat64(BatchesExecutedTotal.WithLabelValues("test-coll-3"))

	assert.Equal(t, before+3, after)
}

func TestCollector_IncBatchRetries(t *testing.T) {
	collector := NewCollector("test-coll-4")

	before := testutil.ToFloat64(BatchRetriesTotal.WithLabelValues("test-coll-4"))
	collector.IncBatchRetries()
	after := testutil.ToFloat64(BatchRetriesTotal.WithLabelValues("test-coll-4"))

	assert.Equal(t, before+1, after)
}

func TestCollector_IncArtifactDeploys(t *testing.T) {
	collector := NewCollector("test-coll-5")

	before := testutil.ToFloat64(ArtifactDeploysTotal.WithLabelValues("test-coll-5", "schema", "skipped"))
	collector.IncArtifactDeploys("schema", "skipped")
	after := testutil.ToFloat64(ArtifactDeploysTotal.WithLabelValues("test-coll-5", "schema", "skipped"))

	assert.Equal(t, before+1, after)
}

func TestCollector_SetEligibleItems(t *testing.T) {
	collector := NewCollector("test-coll-6")

	collector.SetEligibleItems(7)
	value := testutil.ToFloat64(EligibleItems.WithLabelValues("test-coll-6"))

	assert.Equal(t, float64(7), value)
}

func TestCollector_ObserveArtifactDeployDuration(t *testing.T) {
	collector := NewCollector("test-coll-7")

	collector.ObserveArtifactDeployDuration("package", 12.5)

	count := testutil.CollectAndCount(ArtifactDeployDuration)
	assert.Greater(t, count, 0)
}

func TestCollector_ObserveRunDuration(t *testing.T) {
	collector := NewCollector("test-coll-8")

	collector.ObserveRunDuration(42)

	count := testutil.CollectAndCount(RunDuration)
	assert.Greater(t, count, 0)
}

func TestCollector_NilIsNoop(t *testing.T) {
	var collector *Collector

	assert.NotPanics(t, func() {
		collector.IncItemsProcessed("failed")
		collector.IncDatabasesCreated("mysql")
		collector.AddBatchesExecuted(2)
		collector.IncBatchRetries()
		collector.IncArtifactDeploys("script", "failed")
		collector.SetEligibleItems(1)
		collector.ObserveArtifactDeployDuration("script", 1)
		collector.ObserveRunDuration(1)
	})
}
