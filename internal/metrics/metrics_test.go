package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestInitializeMetrics(t *testing.T) {
	assert.NotPanics(t, InitializeMetrics)

	// Pre-populated label sets start at zero.
	assert.GreaterOrEqual(t, testutil.ToFloat64(ConversionsTotal.WithLabelValues("cached")), 0.0)
	assert.GreaterOrEqual(t, testutil.CollectAndCount(SidecarWritesTotal), 4)
	assert.GreaterOrEqual(t, testutil.CollectAndCount(ClustersTotal), 2)
}

func TestFilesystemObserver(t *testing.T) {
	obs := NewFilesystemObserver()

	errsBefore := testutil.ToFloat64(FilesystemOperationErrors.WithLabelValues("cache", "write"))
	obs.ObserveOperation("cache", "write", 0.01, errors.New("disk full"))
	obs.ObserveOperation("cache", "write", 0.01, nil)
	assert.Equal(t, errsBefore+1, testutil.ToFloat64(FilesystemOperationErrors.WithLabelValues("cache", "write")))

	attemptsBefore := testutil.ToFloat64(FilesystemRetryAttempts.WithLabelValues("lock", "cache"))
	obs.ObserveRetryAttempt("lock", "cache")
	obs.ObserveRetryAttempt("lock", "cache")
	assert.Equal(t, attemptsBefore+2, testutil.ToFloat64(FilesystemRetryAttempts.WithLabelValues("lock", "cache")))

	failBefore := testutil.ToFloat64(FilesystemRetryFailures.WithLabelValues("read", "source"))
	obs.ObserveRetryFailure("read", "source")
	assert.Equal(t, failBefore+1, testutil.ToFloat64(FilesystemRetryFailures.WithLabelValues("read", "source")))

	staleBefore := testutil.ToFloat64(FilesystemStaleErrors.WithLabelValues("stat", "source"))
	obs.ObserveStaleError("stat", "source")
	assert.Equal(t, staleBefore+1, testutil.ToFloat64(FilesystemStaleErrors.WithLabelValues("stat", "source")))

	assert.NotPanics(t, func() {
		obs.ObserveRetrySuccess("stat", "source")
		obs.ObserveRetryDuration("stat", "source", 0.2)
	})
}

type fixedStats struct{ stats Stats }

func (f fixedStats) LedgerStats() Stats { return f.stats }

func TestCollector(t *testing.T) {
	c := NewCollector(fixedStats{Stats{Runs: 3, Assignments: 42, OpenConnections: 1}}, time.Hour)
	c.Start()
	c.Stop()

	assert.Equal(t, 3.0, testutil.ToFloat64(LedgerRunsTotal))
	assert.Equal(t, 42.0, testutil.ToFloat64(LedgerAssignmentsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(DBConnectionsOpen))
}

func TestCollector_NilProvider(t *testing.T) {
	c := NewCollector(nil, time.Hour)
	c.Start()
	assert.NotPanics(t, c.Stop)
}
