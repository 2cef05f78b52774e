package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"raw-organizer/internal/cache"
	"raw-organizer/internal/cluster"
	"raw-organizer/internal/conversion"
	"raw-organizer/internal/database"
	"raw-organizer/internal/embedding"
	"raw-organizer/internal/logging"
	"raw-organizer/internal/media"
	"raw-organizer/internal/merge"
	"raw-organizer/internal/metrics"
	"raw-organizer/internal/sidecar"
)

var log = logging.Prefixed("pipeline")

// Ledger records finished runs.
type Ledger interface {
	RecordRun(ctx context.Context, run *database.Run, assignments []database.Assignment) (string, error)
}

// Config is the explicit configuration of one run.
type Config struct {
	// Root is the directory scanned for RAW images.
	Root string
	// CacheDir holds thumbnails and the mapping file (empty = <Root>/.cache).
	CacheDir string
	// OutputDir receives the embedding batch and cluster files
	// (empty = CacheDir).
	OutputDir string

	ThumbnailSize int
	// Workers sizes the conversion and extraction pools, MergeWorkers the
	// sidecar pool. Zero means one per CPU.
	Workers      int
	MergeWorkers int

	Fine   cluster.Algorithm
	Coarse cluster.Algorithm

	// Prefix forms sidecar keywords from cluster tags.
	Prefix     string
	DryRun     bool
	ClearCache bool
}

// Pipeline wires the stages together.
type Pipeline struct {
	config    Config
	renderer  media.Renderer
	extractor embedding.Extractor
	gate      conversion.Gate
	ledger    Ledger
	progress  *Progress
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithGate makes conversion wait on g before each render.
func WithGate(g conversion.Gate) Option {
	return func(p *Pipeline) { p.gate = g }
}

// WithLedger records every completed run in l.
func WithLedger(l Ledger) Option {
	return func(p *Pipeline) { p.ledger = l }
}

// WithProgress reports the current stage to progress.
func WithProgress(progress *Progress) Option {
	return func(p *Pipeline) { p.progress = progress }
}

// New returns a Pipeline rendering with renderer and embedding with
// extractor.
func New(config Config, renderer media.Renderer, extractor embedding.Extractor, opts ...Option) *Pipeline {
	if config.CacheDir == "" {
		config.CacheDir = filepath.Join(config.Root, cache.DefaultDirName)
	}
	if config.OutputDir == "" {
		config.OutputDir = config.CacheDir
	}
	p := &Pipeline{config: config, renderer: renderer, extractor: extractor}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run executes every stage once. Errors returned are run-level failures
// (unusable directory, cache setup, contract violations); per-image problems
// only reduce the counts in the summary.
func (p *Pipeline) Run(ctx context.Context) (summary *RunSummary, err error) {
	cfg := p.config
	summary = &RunSummary{
		Root:      cfg.Root,
		DryRun:    cfg.DryRun,
		Model:     p.extractor.ModelName(),
		StartedAt: time.Now(),
	}

	p.progress.start()
	status := "error"
	defer func() {
		summary.FinishedAt = time.Now()
		p.progress.finish(err)
		metrics.PipelineRunsTotal.WithLabelValues(status).Inc()
	}()

	if cfg.Fine == nil || cfg.Coarse == nil {
		return summary, fmt.Errorf("pipeline: clustering algorithms not configured")
	}

	// Initializing the cache would create a missing root.
	if err := checkRoot(cfg.Root); err != nil {
		return summary, err
	}

	store := cache.New(cfg.Root, cfg.CacheDir)
	if cfg.ClearCache {
		if err := store.Clear(); err != nil {
			return summary, err
		}
	}
	if err := store.Initialize(); err != nil {
		return summary, err
	}

	var converted *conversion.Result
	err = p.stage("convert", func() error {
		conv := conversion.New(store, p.renderer, conversion.Config{
			Size:    cfg.ThumbnailSize,
			Workers: cfg.Workers,
			Exclude: []string{cfg.OutputDir},
			Gate:    p.gate,
		})
		var err error
		converted, err = conv.ConvertAll(ctx, cfg.Root)
		return err
	})
	if err != nil {
		return summary, err
	}
	summary.Images = converted.Found
	summary.Duplicates = converted.Duplicates
	summary.Thumbnails = len(converted.Thumbnails)
	summary.Rendered = converted.Rendered
	summary.CacheHits = converted.Cached
	summary.ConvertFailed = converted.Failed

	if len(converted.Thumbnails) == 0 {
		log.Warn("no thumbnails produced under %s, nothing to cluster", cfg.Root)
		status = "empty"
		return summary, nil
	}
	if err := ctx.Err(); err != nil {
		return summary, err
	}

	var embeddings []embedding.Embedding
	err = p.stage("extract", func() error {
		s := &embedding.Stage{Extractor: p.extractor, Root: cfg.Root, Workers: cfg.Workers}
		var err error
		embeddings, err = s.ExtractAll(ctx, converted.Thumbnails, cfg.OutputDir)
		return err
	})
	if err != nil {
		return summary, err
	}
	summary.Embeddings = len(embeddings)
	if summary.Dimension, err = embedding.Dimension(embeddings); err != nil {
		return summary, err
	}

	if len(embeddings) == 0 {
		log.Warn("no embeddings extracted, nothing to cluster")
		status = "empty"
		return summary, nil
	}

	results := make([]*cluster.Result, 0, 2)
	for _, run := range []struct {
		g   cluster.Granularity
		alg cluster.Algorithm
	}{
		{cluster.Fine, cfg.Fine},
		{cluster.Coarse, cfg.Coarse},
	} {
		var result *cluster.Result
		err = p.stage("cluster_"+run.g.Level(), func() error {
			var err error
			result, err = cluster.Run(ctx, run.alg, embeddings, run.g, filepath.Join(cfg.OutputDir, run.g.FileName()))
			return err
		})
		if err != nil {
			return summary, err
		}
		results = append(results, result)
	}
	summary.FineClusters = results[0].NumClusters()
	summary.CoarseClusters = results[1].NumClusters()

	err = p.stage("merge", func() error {
		engine := merge.New(cfg.Prefix, cfg.MergeWorkers, cfg.CacheDir, cfg.OutputDir)
		var err error
		summary.Sidecars, err = engine.UpdateAll(ctx, cfg.Root, results, cfg.DryRun)
		return err
	})
	if err != nil {
		return summary, err
	}

	summary.FinishedAt = time.Now()
	if p.ledger != nil {
		p.progress.enter("record")
		id, err := p.ledger.RecordRun(ctx, summary.ledgerRun(), assignments(results, cfg.Prefix))
		if err != nil {
			// The sidecars are already written; a missing ledger row only
			// affects later queries.
			log.Error("failed to record run: %v", err)
		} else {
			summary.RunID = id
		}
	}

	status = "success"
	return summary, nil
}

// stage times fn under the given stage label.
func (p *Pipeline) stage(name string, fn func() error) error {
	p.progress.enter(name)
	start := time.Now()
	log.Info("stage %s started", name)
	err := fn()
	elapsed := time.Since(start)
	metrics.StageDuration.WithLabelValues(name).Observe(elapsed.Seconds())
	if err != nil {
		log.Error("stage %s failed after %v: %v", name, elapsed, err)
		return fmt.Errorf("%s: %w", name, err)
	}
	log.Info("stage %s finished in %v", name, elapsed)
	return nil
}

func checkRoot(root string) error {
	info, err := os.Stat(root)
	if os.IsNotExist(err) {
		return fmt.Errorf("%w: %s", media.ErrNotExist, root)
	}
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s", media.ErrNotDirectory, root)
	}
	return nil
}

// assignments flattens results into ledger rows, one per identity and tag.
func assignments(results []*cluster.Result, prefix string) []database.Assignment {
	var out []database.Assignment
	for _, r := range results {
		for _, c := range r.Clusters {
			keyword := sidecar.Keyword(c.Tag, prefix)
			for _, id := range c.ImageIDs {
				out = append(out, database.Assignment{
					Identity:    id,
					Granularity: r.Granularity.Level(),
					Tag:         c.Tag,
					Keyword:     keyword,
				})
			}
		}
	}
	return out
}
