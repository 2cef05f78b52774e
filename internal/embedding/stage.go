package embedding

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync/atomic"

	"raw-organizer/internal/logging"
	"raw-organizer/internal/media"
	"raw-organizer/internal/metrics"
	"raw-organizer/internal/workers"

	"github.com/facette/natsort"
	"golang.org/x/sync/errgroup"
)

var log = logging.Prefixed("embed")

// Stage extracts embeddings for a set of thumbnails.
type Stage struct {
	Extractor Extractor
	// Root is the scan root identities are computed against.
	Root string
	// Workers bounds concurrent extractions (0 = one per CPU).
	Workers int
}

// ExtractAll computes one embedding per thumbnail and saves the batch to
// outDir. Thumbnails that are missing, fail to decode or yield an empty
// vector are logged and skipped. The result is ordered by identity so the
// same inputs always produce the same batch. Vectors of differing length are
// a hard error.
func (s *Stage) ExtractAll(ctx context.Context, thumbs []media.Thumbnail, outDir string) ([]Embedding, error) {
	model := s.Extractor.ModelName()
	if len(thumbs) == 0 {
		log.Warn("no thumbnails to embed")
		if err := SaveBatch(outDir, nil, model); err != nil {
			return nil, err
		}
		return nil, nil
	}

	thumbs = uniqueThumbnails(thumbs, s.Root)
	slots := make([]*Embedding, len(thumbs))
	var done atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers.ForTasks(s.Workers, len(thumbs)))

	for i, th := range thumbs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			id := th.Source.Identity(s.Root)
			n := done.Add(1)

			emb, err := s.extractOne(gctx, th.Path, id, model)
			if err != nil {
				metrics.ExtractionsTotal.WithLabelValues(model, "error").Inc()
				log.Error("[%d/%d] %s: %v", n, len(thumbs), id, err)
				return nil
			}
			metrics.ExtractionsTotal.WithLabelValues(model, "success").Inc()
			log.Debug("[%d/%d] %s: %d dims", n, len(thumbs), id, len(emb.Vector))
			slots[i] = emb
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	embeddings := make([]Embedding, 0, len(slots))
	for _, e := range slots {
		if e != nil {
			embeddings = append(embeddings, *e)
		}
	}
	sort.Slice(embeddings, func(i, j int) bool { return embeddings[i].ID < embeddings[j].ID })

	dim, err := Dimension(embeddings)
	if err != nil {
		return nil, err
	}
	metrics.EmbeddingDimension.Set(float64(dim))

	if err := SaveBatch(outDir, embeddings, model); err != nil {
		return nil, err
	}
	log.Info("extracted %d/%d embeddings (%s, %d dims)", len(embeddings), len(thumbs), model, dim)
	return embeddings, nil
}

// uniqueThumbnails keeps one thumbnail per identity, preferring the source
// that sorts first naturally, so the batch never holds an identity twice.
func uniqueThumbnails(thumbs []media.Thumbnail, root string) []media.Thumbnail {
	chosen := make(map[string]int, len(thumbs))
	out := make([]media.Thumbnail, 0, len(thumbs))
	for _, th := range thumbs {
		id := th.Source.Identity(root)
		i, ok := chosen[id]
		if !ok {
			chosen[id] = len(out)
			out = append(out, th)
			continue
		}
		kept, dropped := out[i], th
		if natsort.Compare(filepath.ToSlash(th.Source.Path), filepath.ToSlash(kept.Source.Path)) {
			kept, dropped = th, out[i]
			out[i] = th
		}
		log.Warn("%s: skipping %s, same identity as %s", id, dropped.Source.Name(), kept.Source.Name())
	}
	return out
}

func (s *Stage) extractOne(ctx context.Context, path, id, model string) (*Embedding, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("thumbnail unavailable: %w", err)
	}
	vec, err := s.Extractor.Extract(ctx, path)
	if err != nil {
		return nil, err
	}
	if len(vec) == 0 {
		return nil, ErrEmptyVector
	}
	return &Embedding{ID: id, Vector: vec, Model: model}, nil
}

// Dimension returns the common vector length of embeddings, or 0 for an empty
// batch. Any disagreement yields ErrDimensionMismatch.
func Dimension(embeddings []Embedding) (int, error) {
	if len(embeddings) == 0 {
		return 0, nil
	}
	dim := len(embeddings[0].Vector)
	for _, e := range embeddings[1:] {
		if len(e.Vector) != dim {
			return 0, fmt.Errorf("%w: %s has %d values, expected %d", ErrDimensionMismatch, e.ID, len(e.Vector), dim)
		}
	}
	return dim, nil
}
