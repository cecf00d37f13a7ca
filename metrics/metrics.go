// Package metrics provides Prometheus metrics for cloudbox operations.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Provider operation metrics
	ProviderOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cloudbox_provider_ops_total",
			Help: "Total number of provider operations",
		},
		[]string{"provider", "operation"},
	)

	ProviderOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cloudbox_provider_op_duration_seconds",
			Help:    "Provider operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider", "operation"},
	)

	// Session metrics
	SessionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cloudbox_sessions_total",
			Help: "Total number of session open attempts",
		},
		[]string{"provider", "result"}, // result: "opened", "rejected", "failed"
	)

	// Transfer metrics
	TransferBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cloudbox_transfer_bytes_total",
			Help: "Total number of bytes moved by the transfer engine",
		},
		[]string{"direction"}, // "upload", "download", "stream"
	)

	TransfersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cloudbox_transfers_total",
			Help: "Total number of transfers by outcome",
		},
		[]string{"direction", "result"}, // result: "ok", "aborted", "invalid_parameter", "failed"
	)

	TransferDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cloudbox_transfer_duration_seconds",
			Help:    "Transfer duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
		},
		[]string{"direction"},
	)

	// Directory diff metrics
	DiffItemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cloudbox_diff_items_total",
			Help: "Total number of directory diff rows by classification",
		},
		[]string{"kind"},
	)

	// Lock manager metrics
	LockOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cloudbox_lock_operations_total",
			Help: "Total number of lock operations",
		},
		[]string{"operation", "status"}, // operation: "acquire", "release"; status: "success", "failure", "busy"
	)

	// Active locks gauge
	ActiveLocks = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cloudbox_active_locks",
			Help: "Number of currently held locks",
		},
	)

	// Token store metrics
	TokenStoreOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cloudbox_token_store_ops_total",
			Help: "Total number of token store operations",
		},
		[]string{"store", "operation"},
	)

	// Error metrics
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cloudbox_errors_total",
			Help: "Total number of errors by component",
		},
		[]string{"component", "error_type"},
	)
)
