// Package metrics provides Prometheus instrumentation for the RAW organizer.
//
// All metrics are prefixed with "raw_organizer_" and registered on the default
// registry through promauto. A run is a batch job, so the metrics are mostly
// useful when the process is started with RAWORG_METRICS_ADDR and scraped
// while a large library is being processed.
//
// # Metric Categories
//
// ## Pipeline
//   - PipelineRunsTotal: runs by status (success, error, empty)
//   - StageDuration: per-stage wall time
//   - SourceImagesFound: images found by the last scan
//
// ## Conversion and cache
//   - ConversionsTotal: conversions by status (success, cached, error)
//   - ConversionDuration: per-image render time by renderer
//   - CacheLookups: mapping lookups by result (hit, miss)
//   - CacheMappingWrites: Record outcomes (success, dropped, error)
//   - CacheLockRetries, CacheLockHoldDuration: mapping lock contention
//   - CacheCorruptionsTotal: corrupt mapping files discarded
//
// ## Embedding and clustering
//   - ExtractionsTotal: feature extractions by model and status
//   - EmbeddingDimension: dimension of the last batch
//   - ClustersTotal: clusters per granularity
//   - NoiseReassignedTotal: unassigned points moved to a centroid
//
// ## Sidecars
//   - SidecarWritesTotal: merge task outcomes (written, planned, skipped, error)
//   - SidecarParseFailures: unreadable sidecars treated as absent
//
// ## Filesystem
//
// Recorded through the filesystem.Observer returned by NewFilesystemObserver,
// labelled by volume (source, cache, output, unknown).
//
// Call InitializeMetrics once at startup so every label combination is
// exported on the first scrape.
package metrics
