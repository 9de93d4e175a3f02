// Package common holds the process-wide prometheus metrics registry.
// Metrics are registered at init and read by the metrics listener; they are
// never reset for the lifetime of the process.
package common

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Legacy dashboard metrics. The names predate this implementation and are
// consumed by existing alerting, so they are kept verbatim.
var (
	BlockTxs = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "block_arrived",
		Help: "block seen with n transactions",
	})

	BankingStageErrorCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bankingstage_banking_errors",
		Help: "banking_stage errors in block",
	})

	TxErrorCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bankingstage_txerrors",
		Help: "transaction errors in block",
	})

	BankingStageErrorEventCount = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bankingstage_banking_stage_events_counter",
		Help: "Banking stage events received",
	})

	BankingStageBlocksCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bankingstage_blocks_counter",
		Help: "Banking stage blocks received",
	})
)

// Operational metrics.
var (
	DelayQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "banking_sidecar_delay_queue_depth",
		Help: "Number of blocks waiting in the delay queue",
	})

	TrackedTransactions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "banking_sidecar_tracked_transactions",
		Help: "Number of transaction signatures currently held in the index",
	})

	TransactionsEvicted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "banking_sidecar_transactions_evicted_total",
		Help: "Total transaction entries evicted from the index",
	})

	MalformedEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "banking_sidecar_malformed_events_total",
		Help: "Total malformed upstream events skipped",
	}, []string{"kind"})

	SourceReconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "banking_sidecar_source_reconnects_total",
		Help: "Total reconnects to the geyser event source",
	})

	StorageOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "banking_sidecar_storage_operations_total",
		Help: "Total storage sink operations",
	}, []string{"driver", "operation", "status"})

	StorageOperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "banking_sidecar_storage_operation_duration_seconds",
		Help:    "Duration of storage sink operations",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	}, []string{"driver", "operation"})

	StorageRowsWritten = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "banking_sidecar_storage_rows_written_total",
		Help: "Total rows written to the storage sink",
	}, []string{"driver", "table"})
)
