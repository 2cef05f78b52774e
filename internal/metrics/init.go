package metrics

// InitializeMetrics pre-populates all expected label combinations so that
// every metric is exported from the first Prometheus scrape.
// Call this once at startup after metric registration.
func InitializeMetrics() {
	for _, status := range []string{"success", "error", "empty"} {
		PipelineRunsTotal.WithLabelValues(status)
	}

	for _, stage := range []string{"convert", "extract", "cluster_fine", "cluster_coarse", "merge"} {
		StageDuration.WithLabelValues(stage)
	}

	for _, status := range []string{"success", "cached", "error"} {
		ConversionsTotal.WithLabelValues(status)
	}

	for _, result := range []string{"hit", "miss"} {
		CacheLookups.WithLabelValues(result)
	}

	for _, status := range []string{"success", "dropped", "error"} {
		CacheMappingWrites.WithLabelValues(status)
	}

	for _, g := range []string{"fine", "coarse"} {
		ClustersTotal.WithLabelValues(g)
		NoiseReassignedTotal.WithLabelValues(g)
	}

	for _, status := range []string{"written", "planned", "skipped", "error"} {
		SidecarWritesTotal.WithLabelValues(status)
	}

	for _, status := range []string{"success", "error"} {
		for _, op := range []string{"record_run", "list_runs", "images_with_tag", "tags_for_image", "stats"} {
			DBQueryTotal.WithLabelValues(op, status)
		}
	}
	for _, status := range []string{"commit", "rollback"} {
		DBTransactionDuration.WithLabelValues(status)
	}

	// --- Filesystem operation metrics (per volume × operation) ---
	volumes := []string{"source", "cache", "output", "unknown"}
	for _, vol := range volumes {
		for _, op := range []string{"read", "write", "stat"} {
			FilesystemOperationDuration.WithLabelValues(vol, op)
			FilesystemOperationErrors.WithLabelValues(vol, op)
		}
		for _, op := range []string{"stat", "read", "lock"} {
			FilesystemRetryAttempts.WithLabelValues(op, vol)
			FilesystemRetrySuccess.WithLabelValues(op, vol)
			FilesystemRetryFailures.WithLabelValues(op, vol)
			FilesystemStaleErrors.WithLabelValues(op, vol)
			FilesystemRetryDuration.WithLabelValues(op, vol)
		}
	}
}
