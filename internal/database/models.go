package database

import "time"

// Run is one organize run as recorded in the ledger.
type Run struct {
	ID             string    `json:"id"`
	Root           string    `json:"root"`
	StartedAt      time.Time `json:"startedAt"`
	FinishedAt     time.Time `json:"finishedAt"`
	DryRun         bool      `json:"dryRun"`
	Model          string    `json:"model"`
	Images         int       `json:"images"`
	Thumbnails     int       `json:"thumbnails"`
	CacheHits      int       `json:"cacheHits"`
	Embeddings     int       `json:"embeddings"`
	Dimension      int       `json:"dimension"`
	FineClusters   int       `json:"fineClusters"`
	CoarseClusters int       `json:"coarseClusters"`
	Updated        int       `json:"sidecarsUpdated"`
	Planned        int       `json:"sidecarsPlanned"`
	Failed         int       `json:"sidecarsFailed"`
}

// Duration returns how long the run took.
func (r Run) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Assignment is one tag given to one image identity by a run.
type Assignment struct {
	RunID       string `json:"runId,omitempty"`
	Identity    string `json:"identity"`
	Granularity string `json:"granularity"`
	Tag         string `json:"tag"`
	Keyword     string `json:"keyword"`
}
