package metrics

import (
	"time"

	"raw-organizer/internal/logging"
)

// StatsProvider interface for collecting stats
type StatsProvider interface {
	LedgerStats() Stats
}

// Stats holds the current ledger statistics
type Stats struct {
	Runs            int
	Assignments     int
	OpenConnections int
}

// Collector periodically collects and updates metrics
type Collector struct {
	statsProvider StatsProvider
	interval      time.Duration
	stopChan      chan struct{}
	done          chan struct{}
}

// NewCollector creates a new metrics collector
func NewCollector(provider StatsProvider, interval time.Duration) *Collector {
	return &Collector{
		statsProvider: provider,
		interval:      interval,
		stopChan:      make(chan struct{}),
		done:          make(chan struct{}),
	}
}

// Start begins the metrics collection loop
func (c *Collector) Start() {
	go c.collectLoop()
}

// Stop stops the collection loop after one final collection, so gauges
// reflect the state at shutdown.
func (c *Collector) Stop() {
	close(c.stopChan)
	<-c.done
}

func (c *Collector) collectLoop() {
	defer close(c.done)

	// Collect immediately on start
	c.collect()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.collect()
		case <-c.stopChan:
			c.collect()
			return
		}
	}
}

func (c *Collector) collect() {
	if c.statsProvider == nil {
		return
	}

	stats := c.statsProvider.LedgerStats()

	LedgerRunsTotal.Set(float64(stats.Runs))
	LedgerAssignmentsTotal.Set(float64(stats.Assignments))
	DBConnectionsOpen.Set(float64(stats.OpenConnections))

	logging.Debug("Metrics collected: runs=%d, assignments=%d, connections=%d",
		stats.Runs, stats.Assignments, stats.OpenConnections)
}
