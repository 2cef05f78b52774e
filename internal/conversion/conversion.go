package conversion

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"raw-organizer/internal/cache"
	"raw-organizer/internal/logging"
	"raw-organizer/internal/media"
	"raw-organizer/internal/metrics"
	"raw-organizer/internal/workers"
)

var log = logging.Prefixed("convert")

// Config configures a Converter.
type Config struct {
	// Size is the longest edge of rendered thumbnails in pixels.
	Size int
	// Workers is the pool size (0 = one per CPU, capped at the image count).
	Workers int
	// Exclude lists directories the scan skips besides hidden ones.
	Exclude []string
	// Gate, when set, is waited on before each render so decoding stalls
	// while memory is critical.
	Gate Gate
}

// Gate blocks until it is safe to start another render.
type Gate interface {
	Wait(ctx context.Context) error
}

// Result is the outcome of ConvertAll.
type Result struct {
	// Thumbnails holds one entry per successful image in completion order.
	Thumbnails []media.Thumbnail
	Found      int
	// Duplicates counts images skipped because an earlier image in scan
	// order has the same identity.
	Duplicates int
	Rendered   int
	Cached     int
	Failed     int
}

// Converter renders thumbnails for every RAW file under a directory and
// records them in the cache.
type Converter struct {
	store    *cache.Store
	renderer media.Renderer
	config   Config
}

// New returns a Converter writing into store with renderer.
func New(store *cache.Store, renderer media.Renderer, config Config) *Converter {
	return &Converter{store: store, renderer: renderer, config: config}
}

type job struct {
	src media.SourceImage
}

type result struct {
	thumb media.Thumbnail
	err   error
}

// ConvertAll scans dir and renders a thumbnail for each image that has no
// cached one. Per-image failures are logged and left out of the result; only
// scan errors abort the batch. Thumbnails are returned in completion order.
func (c *Converter) ConvertAll(ctx context.Context, dir string) (*Result, error) {
	exclude := append([]string{c.store.Dir()}, c.config.Exclude...)
	images, err := media.Scan(dir, exclude...)
	if err != nil {
		return nil, err
	}
	metrics.SourceImagesFound.Set(float64(len(images)))

	res := &Result{Found: len(images)}
	if len(images) == 0 {
		log.Warn("no RAW files found in %s", dir)
		return res, nil
	}

	images, dups := media.UniqueByIdentity(images, c.store.Root())
	for _, d := range dups {
		log.Warn("%s: skipped, same identity %q as another image", d.Path, d.Identity(c.store.Root()))
	}
	res.Duplicates = len(dups)

	mapping, err := c.store.Load()
	if err != nil {
		log.Warn("cache mapping unreadable, rendering everything: %v", err)
		mapping = cache.Mapping{}
	}

	numWorkers := workers.ForTasks(c.config.Workers, len(images))
	metrics.ConversionWorkers.Set(float64(numWorkers))
	log.Info("converting %d images with %d workers (%s renderer, %dpx)",
		len(images), numWorkers, c.renderer.Name(), c.config.Size)

	jobs := make(chan job)
	results := make(chan result, numWorkers)
	var done atomic.Int64

	var wg sync.WaitGroup
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				thumb, err := c.convertOne(ctx, mapping, j.src)
				n := done.Add(1)
				if err != nil {
					log.Error("[%d/%d] %s: %v", n, len(images), j.src.Name(), err)
				} else {
					log.Debug("[%d/%d] %s: ok", n, len(images), j.src.Name())
				}
				results <- result{thumb: thumb, err: err}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, src := range images {
			select {
			case jobs <- job{src: src}:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	for r := range results {
		if r.err != nil {
			res.Failed++
			continue
		}
		if r.thumb.Cached {
			res.Cached++
		} else {
			res.Rendered++
		}
		res.Thumbnails = append(res.Thumbnails, r.thumb)
	}

	log.Info("conversion complete: %d rendered, %d cached, %d failed, %d duplicates",
		res.Rendered, res.Cached, res.Failed, res.Duplicates)
	if err := ctx.Err(); err != nil {
		return res, err
	}
	return res, nil
}

// convertOne reuses a thumbnail cached in mapping or renders and records a
// new one.
func (c *Converter) convertOne(ctx context.Context, mapping cache.Mapping, src media.SourceImage) (media.Thumbnail, error) {
	if err := ctx.Err(); err != nil {
		return media.Thumbnail{}, err
	}

	if cached, ok := c.store.LookupIn(mapping, src.Path); ok {
		metrics.ConversionsTotal.WithLabelValues("cached").Inc()
		return media.Thumbnail{Path: cached, Source: src, Size: c.config.Size, Cached: true}, nil
	}

	if c.config.Gate != nil {
		if err := c.config.Gate.Wait(ctx); err != nil {
			return media.Thumbnail{}, err
		}
	}

	dst := media.ThumbnailPath(c.store.ThumbnailDir(), c.store.Root(), src)
	start := time.Now()
	if err := c.renderer.Render(ctx, src, dst, c.config.Size); err != nil {
		metrics.ConversionsTotal.WithLabelValues("error").Inc()
		return media.Thumbnail{}, fmt.Errorf("render: %w", err)
	}

	if err := c.store.Record(ctx, src.Path, dst); err != nil {
		metrics.ConversionsTotal.WithLabelValues("error").Inc()
		return media.Thumbnail{}, err
	}

	metrics.ConversionsTotal.WithLabelValues("success").Inc()
	log.Debug("rendered %s in %v", src.Name(), time.Since(start))
	return media.Thumbnail{Path: dst, Source: src, Size: c.config.Size}, nil
}
