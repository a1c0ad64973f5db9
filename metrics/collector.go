package metrics

// Collector wraps metrics and provides helper methods with pre-filled labels.
// A nil *Collector is valid and records nothing.
type Collector struct {
	pipeline string
}

// NewCollector creates a new Collector for the given pipeline name.
func NewCollector(pipeline string) *Collector {
	return &Collector{pipeline: pipeline}
}

// IncItemsProcessed increments the processed items counter for an outcome.
func (c *Collector) IncItemsProcessed(outcome string) {
	if c == nil {
		return
	}
	ItemsProcessedTotal.WithLabelValues(c.pipeline, outcome).Inc()
}

// IncDatabasesCreated increments the databases created counter.
func (c *Collector) IncDatabasesCreated(dialect string) {
	if c == nil {
		return
	}
	DatabasesCreatedTotal.WithLabelValues(c.pipeline, dialect).Inc()
}

// AddBatchesExecuted adds n to the executed batches counter.
func (c *Collector) AddBatchesExecuted(n int) {
	if c == nil || n <= 0 {
		return
	}
	BatchesExecutedTotal.WithLabelValues(c.pipeline).Add(float64(n))
}

// IncBatchRetries increments the batch retries counter.
func (c *Collector) IncBatchRetries() {
	if c == nil {
		return
	}
	BatchRetriesTotal.WithLabelValues(c.pipeline).Inc()
}

// IncArtifactDeploys increments the artifact deploys counter.
func (c *Collector) IncArtifactDeploys(role, outcome string) {
	if c == nil {
		return
	}
	ArtifactDeploysTotal.WithLabelValues(c.pipeline, role, outcome).Inc()
}

// SetEligibleItems sets the eligible items gauge.
func (c *Collector) SetEligibleItems(count int) {
	if c == nil {
		return
	}
	EligibleItems.WithLabelValues(c.pipeline).Set(float64(count))
}

// ObserveArtifactDeployDuration records an artifact deployment duration.
func (c *Collector) ObserveArtifactDeployDuration(role string, seconds float64) {
	if c == nil {
		return
	}
	ArtifactDeployDuration.WithLabelValues(c.pipeline, role).Observe(seconds)
}

// ObserveRunDuration records a run duration observation.
func (c *Collector) ObserveRunDuration(seconds float64) {
	if c == nil {
		return
	}
	RunDuration.WithLabelValues(c.pipeline).Observe(seconds)
}
