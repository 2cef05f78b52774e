package pipeline

import (
	"time"

	"raw-organizer/internal/database"
	"raw-organizer/internal/logging"
	"raw-organizer/internal/merge"
)

// RunSummary reports what one run did.
type RunSummary struct {
	RunID  string
	Root   string
	DryRun bool
	Model  string

	StartedAt  time.Time
	FinishedAt time.Time

	Images int
	// Duplicates counts images sharing an identity with an earlier one;
	// they are not rendered but still receive the shared sidecar.
	Duplicates    int
	Thumbnails    int
	Rendered      int
	CacheHits     int
	ConvertFailed int

	Embeddings int
	Dimension  int

	FineClusters   int
	CoarseClusters int

	Sidecars merge.Summary
}

// Duration returns the wall time of the run.
func (s *RunSummary) Duration() time.Duration {
	if s.FinishedAt.IsZero() {
		return time.Since(s.StartedAt)
	}
	return s.FinishedAt.Sub(s.StartedAt)
}

// Log writes the summary at info level.
func (s *RunSummary) Log() {
	logging.Info("------------------------------------------------------------")
	logging.Info("SUMMARY")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Images found:    %d (%d sharing an identity)", s.Images, s.Duplicates)
	logging.Info("  Thumbnails:      %d (%d rendered, %d cached, %d failed)",
		s.Thumbnails, s.Rendered, s.CacheHits, s.ConvertFailed)
	logging.Info("  Embeddings:      %d x %d (%s)", s.Embeddings, s.Dimension, s.Model)
	logging.Info("  Clusters:        %d fine, %d coarse", s.FineClusters, s.CoarseClusters)
	if s.DryRun {
		logging.Info("  Sidecars:        %d would be updated (dry run), %d failed",
			s.Sidecars.Planned, s.Sidecars.Failed)
	} else {
		logging.Info("  Sidecars:        %d updated, %d failed", s.Sidecars.Updated, s.Sidecars.Failed)
	}
	if s.RunID != "" {
		logging.Info("  Run ID:          %s", s.RunID)
	}
	logging.Info("  Duration:        %v", s.Duration().Round(time.Millisecond))
	logging.Info("")
}

func (s *RunSummary) ledgerRun() *database.Run {
	return &database.Run{
		Root:           s.Root,
		StartedAt:      s.StartedAt,
		FinishedAt:     s.FinishedAt,
		DryRun:         s.DryRun,
		Model:          s.Model,
		Images:         s.Images,
		Thumbnails:     s.Thumbnails,
		CacheHits:      s.CacheHits,
		Embeddings:     s.Embeddings,
		Dimension:      s.Dimension,
		FineClusters:   s.FineClusters,
		CoarseClusters: s.CoarseClusters,
		Updated:        s.Sidecars.Updated,
		Planned:        s.Sidecars.Planned,
		Failed:         s.Sidecars.Failed,
	}
}
