package handlers

import (
	"time"

	"raw-organizer/internal/pipeline"
)

// Handlers serves the status endpoints of a running organize pass.
type Handlers struct {
	progress  *pipeline.Progress
	startTime time.Time
}

// New returns Handlers reporting progress.
func New(progress *pipeline.Progress) *Handlers {
	return &Handlers{
		progress:  progress,
		startTime: time.Now(),
	}
}
