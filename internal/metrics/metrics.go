package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Pipeline metrics
var (
	PipelineRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "raw_organizer_pipeline_runs_total",
			Help: "Total number of pipeline runs",
		},
		[]string{"status"}, // "success", "error", "empty"
	)

	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "raw_organizer_stage_duration_seconds",
			Help:    "Duration of each pipeline stage in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"stage"}, // "convert", "extract", "cluster_fine", "cluster_coarse", "merge"
	)

	SourceImagesFound = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "raw_organizer_source_images",
			Help: "Number of RAW images found by the last scan",
		},
	)
)

// Conversion metrics
var (
	ConversionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "raw_organizer_conversions_total",
			Help: "Total number of RAW to thumbnail conversions",
		},
		[]string{"status"}, // "success", "cached", "error"
	)

	ConversionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "raw_organizer_conversion_duration_seconds",
			Help:    "Per-image conversion duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"renderer"},
	)

	ConversionWorkers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "raw_organizer_conversion_workers",
			Help: "Number of conversion workers in the current pool",
		},
	)
)

// Cache mapping metrics
var (
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "raw_organizer_cache_lookups_total",
			Help: "Thumbnail cache lookups by result",
		},
		[]string{"result"}, // "hit", "miss"
	)

	CacheMappingWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "raw_organizer_cache_mapping_writes_total",
			Help: "Mapping record attempts by outcome",
		},
		[]string{"status"}, // "success", "dropped", "error"
	)

	CacheLockRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "raw_organizer_cache_lock_retries_total",
			Help: "Retries while acquiring the mapping lock",
		},
	)

	CacheLockHoldDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "raw_organizer_cache_lock_hold_seconds",
			Help:    "Time the mapping lock is held for one load-mutate-persist cycle",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.5},
		},
	)

	CacheCorruptionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "raw_organizer_cache_corruptions_total",
			Help: "Number of corrupt mapping files discarded",
		},
	)
)

// Embedding metrics
var (
	ExtractionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "raw_organizer_extractions_total",
			Help: "Feature extractions by status",
		},
		[]string{"model", "status"},
	)

	EmbeddingDimension = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "raw_organizer_embedding_dimension",
			Help: "Dimension of the last embedding batch",
		},
	)
)

// Clustering metrics
var (
	ClustersTotal = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "raw_organizer_clusters",
			Help: "Number of clusters produced by the last run per granularity",
		},
		[]string{"granularity"}, // "fine", "coarse"
	)

	NoiseReassignedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "raw_organizer_noise_points_reassigned_total",
			Help: "Unassigned points moved to their nearest cluster centroid",
		},
		[]string{"granularity"},
	)
)

// Sidecar metrics
var (
	SidecarWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "raw_organizer_sidecar_writes_total",
			Help: "Sidecar merge tasks by outcome",
		},
		[]string{"status"}, // "written", "planned", "skipped", "error"
	)

	SidecarParseFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "raw_organizer_sidecar_parse_failures_total",
			Help: "Existing sidecars that could not be parsed and were treated as absent",
		},
	)
)

// Filesystem metrics
var (
	FilesystemOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "raw_organizer_filesystem_operation_duration_seconds",
			Help:    "Duration of filesystem operations by volume and type",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"volume", "operation"},
	)

	FilesystemOperationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "raw_organizer_filesystem_operation_errors_total",
			Help: "Filesystem operation errors by volume and type",
		},
		[]string{"volume", "operation"},
	)

	FilesystemRetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "raw_organizer_filesystem_retry_attempts_total",
			Help: "Filesystem retry attempts",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetrySuccess = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "raw_organizer_filesystem_retry_success_total",
			Help: "Filesystem operations that succeeded after retrying",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "raw_organizer_filesystem_retry_failures_total",
			Help: "Filesystem operations that failed after exhausting retries",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "raw_organizer_filesystem_retry_duration_seconds",
			Help:    "Total time spent in retried filesystem operations",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"operation", "volume"},
	)

	FilesystemStaleErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "raw_organizer_filesystem_stale_errors_total",
			Help: "NFS stale file handle errors seen",
		},
		[]string{"operation", "volume"},
	)
)

// Run ledger metrics
var (
	DBQueryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "raw_organizer_db_queries_total",
			Help: "Run ledger queries by operation and status",
		},
		[]string{"operation", "status"},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "raw_organizer_db_query_duration_seconds",
			Help:    "Run ledger query duration by operation",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"operation"},
	)

	DBTransactionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "raw_organizer_db_transaction_duration_seconds",
			Help:    "Run ledger transaction duration by outcome",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"status"},
	)

	DBConnectionsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "raw_organizer_db_connections_open",
			Help: "Open run ledger connections",
		},
	)

	LedgerRunsTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "raw_organizer_ledger_runs",
			Help: "Runs recorded in the ledger",
		},
	)

	LedgerAssignmentsTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "raw_organizer_ledger_assignments",
			Help: "Tag assignments recorded in the ledger",
		},
	)
)

// Memory metrics
var (
	MemoryUsageRatio = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "raw_organizer_memory_usage_ratio",
			Help: "Heap usage as a fraction of the configured memory limit",
		},
	)

	MemoryPaused = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "raw_organizer_memory_paused",
			Help: "1 while new renders are held back by memory pressure",
		},
	)

	MemoryGCPauses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "raw_organizer_memory_gc_pauses_total",
			Help: "Times rendering was paused for memory pressure",
		},
	)
)
