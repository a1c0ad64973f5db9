package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ItemsProcessedTotal tracks work items that reached a terminal outcome.
var ItemsProcessedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "tenant_provisioner_items_processed_total",
		Help: "Total work items processed by outcome",
	},
	[]string{"pipeline", "outcome"},
)

// DatabasesCreatedTotal tracks CREATE DATABASE statements that succeeded.
var DatabasesCreatedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "tenant_provisioner_databases_created_total",
		Help: "Total databases created",
	},
	[]string{"pipeline", "dialect"},
)

// BatchesExecutedTotal tracks script batches that executed successfully.
var BatchesExecutedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "tenant_provisioner_batches_executed_total",
		Help: "Total script batches executed",
	},
	[]string{"pipeline"},
)

// BatchRetriesTotal tracks failed batch execution attempts that were retried.
var BatchRetriesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "tenant_provisioner_batch_retries_total",
		Help: "Total batch execution attempts retried",
	},
	[]string{"pipeline"},
)

// ArtifactDeploysTotal tracks artifact deployments by role and outcome.
var ArtifactDeploysTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "tenant_provisioner_artifact_deploys_total",
		Help: "Total artifact deployments by role and outcome",
	},
	[]string{"pipeline", "role", "outcome"},
)

// EligibleItems tracks the size of the eligible set seen by the last run.
var EligibleItems = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "tenant_provisioner_eligible_items",
		Help: "Eligible work items found by the last run",
	},
	[]string{"pipeline"},
)

// ArtifactDeployDuration tracks time spent deploying one artifact.
var ArtifactDeployDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "tenant_provisioner_artifact_deploy_duration_seconds",
		Help:    "Time spent deploying one artifact",
		Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
	},
	[]string{"pipeline", "role"},
)

// RunDuration tracks time spent in one pass over the eligible set.
var RunDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "tenant_provisioner_run_duration_seconds",
		Help:    "Time spent in one provisioning run",
		Buckets: []float64{0.1, 1, 5, 15, 60, 300, 900, 1800, 3600},
	},
	[]string{"pipeline"},
)
