package merge

import (
	"context"
	"errors"
	"sync/atomic"

	"raw-organizer/internal/cluster"
	"raw-organizer/internal/logging"
	"raw-organizer/internal/media"
	"raw-organizer/internal/metrics"
	"raw-organizer/internal/sidecar"
	"raw-organizer/internal/workers"

	"golang.org/x/sync/errgroup"
)

var log = logging.Prefixed("merge")

// DefaultPrefix writes cluster tags as keywords unchanged.
const DefaultPrefix = ""

// Engine merges cluster tags into sidecars.
type Engine struct {
	// Prefix forms keywords from tags ("ai" turns fine_003 into
	// ai_cluster_fine_003). Empty writes tags verbatim.
	Prefix string
	// Workers bounds concurrent sidecar tasks (0 = one per CPU).
	Workers int
	// Exclude lists directories skipped while scanning, such as the cache.
	Exclude []string
}

// New returns an Engine using prefix for keywords.
func New(prefix string, workers int, exclude ...string) *Engine {
	return &Engine{Prefix: prefix, Workers: workers, Exclude: exclude}
}

// Summary counts sidecar outcomes for one UpdateAll call.
type Summary struct {
	// Updated is the number of sidecars written; always 0 on a dry run.
	Updated int
	// Planned is the number of sidecars a dry run would have written.
	Planned int
	// Skipped is the number of source images with no pending tags.
	Skipped int
	// Failed is the number of sidecar tasks that returned an error.
	Failed int
}

type task struct {
	path    string
	sources []string
	tags    []string
}

// UpdateAll merges the tags of every result into the sidecars of the source
// images under dir. Per-file failures are counted in the summary; only a
// scan failure or context cancellation is returned as an error.
func (e *Engine) UpdateAll(ctx context.Context, dir string, results []*cluster.Result, dryRun bool) (Summary, error) {
	var summary Summary

	pending := PendingTags(results)
	if len(pending) == 0 {
		log.Warn("no cluster tags to merge")
		return summary, nil
	}

	images, err := media.Scan(dir, e.Exclude...)
	if err != nil {
		return summary, err
	}

	tasks, skipped := e.plan(dir, images, pending)
	summary.Skipped = skipped
	metrics.SidecarWritesTotal.WithLabelValues("skipped").Add(float64(skipped))
	if len(tasks) == 0 {
		log.Warn("none of the %d images under %s has pending tags", len(images), dir)
		return summary, nil
	}

	mode := "writing"
	if dryRun {
		mode = "dry run for"
	}
	log.Info("%s %d sidecars (%d images without tags)", mode, len(tasks), skipped)

	var updated, planned, failed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers.ForTasks(e.Workers, len(tasks)))

	for _, t := range tasks {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if err := e.update(t, dryRun); err != nil {
				failed.Add(1)
				metrics.SidecarWritesTotal.WithLabelValues("error").Inc()
				log.Error("%s: %v", t.path, err)
				return nil
			}
			if dryRun {
				planned.Add(1)
				metrics.SidecarWritesTotal.WithLabelValues("planned").Inc()
			} else {
				updated.Add(1)
				metrics.SidecarWritesTotal.WithLabelValues("written").Inc()
			}
			return nil
		})
	}

	err = g.Wait()
	summary.Updated = int(updated.Load())
	summary.Planned = int(planned.Load())
	summary.Failed = int(failed.Load())
	if err != nil {
		return summary, err
	}

	log.Info("sidecars: %d updated, %d planned, %d skipped, %d failed",
		summary.Updated, summary.Planned, summary.Skipped, summary.Failed)
	return summary, nil
}

// plan builds one task per sidecar file. Images sharing a sidecar (the same
// base name in different RAW formats) are folded into a single task so no
// two tasks touch the same file.
func (e *Engine) plan(dir string, images []media.SourceImage, pending map[string][]string) ([]*task, int) {
	var tasks []*task
	byPath := make(map[string]*task)
	skipped := 0
	matched := make(map[string]bool, len(pending))

	for _, img := range images {
		id := img.Identity(dir)
		tags, ok := pending[id]
		if !ok {
			skipped++
			continue
		}
		matched[id] = true

		path := sidecar.PathFor(img.Path)
		t, ok := byPath[path]
		if !ok {
			t = &task{path: path}
			byPath[path] = t
			tasks = append(tasks, t)
		}
		t.sources = append(t.sources, img.Path)
		t.tags = appendUnique(t.tags, tags...)
	}

	if missing := len(pending) - len(matched); missing > 0 {
		log.Warn("%d clustered identities have no source image under %s", missing, dir)
	}
	return tasks, skipped
}

// update loads, merges and (unless dryRun) writes one sidecar.
func (e *Engine) update(t *task, dryRun bool) error {
	existing, raw, err := sidecar.Load(t.path)
	if err != nil {
		if !errors.Is(err, sidecar.ErrParse) {
			return err
		}
		metrics.SidecarParseFailures.Inc()
		log.Warn("%s: unreadable sidecar treated as absent: %v", t.path, err)
		raw = nil
	}

	merged := &sidecar.Metadata{
		Subject:      append([]string(nil), existing.Subject...),
		Hierarchical: append([]string(nil), existing.Hierarchical...),
	}
	keywords := sidecar.Keywords(t.tags, e.Prefix)
	merged.Add(keywords...)

	if dryRun {
		log.Info("would write %s: %v", t.path, keywords)
		return nil
	}

	if err := sidecar.Write(t.path, raw, merged); err != nil {
		return err
	}
	log.Debug("wrote %s for %v (%d keywords)", t.path, t.sources, len(merged.Subject))
	return nil
}

// PendingTags concatenates the tag indices of results into one map from
// identity to tags. Results are taken in order, so an identity typically
// gets its fine tag then its coarse tag. A tag repeated for the same
// identity is kept once.
func PendingTags(results []*cluster.Result) map[string][]string {
	pending := make(map[string][]string)
	for _, r := range results {
		if r == nil {
			continue
		}
		for id, tags := range r.TagIndex() {
			pending[id] = appendUnique(pending[id], tags...)
		}
	}
	return pending
}

func appendUnique(dst []string, values ...string) []string {
	for _, v := range values {
		dup := false
		for _, have := range dst {
			if have == v {
				dup = true
				break
			}
		}
		if !dup {
			dst = append(dst, v)
		}
	}
	return dst
}
