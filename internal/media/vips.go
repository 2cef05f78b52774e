package media

import (
	"context"
	"fmt"
	"sync"
	"time"

	"raw-organizer/internal/logging"
	"raw-organizer/internal/metrics"

	"github.com/davidbyttow/govips/v2/vips"
)

var (
	vipsInitialized bool
	vipsInitMutex   sync.Mutex
	vipsAvailable   bool
)

// InitVips initializes the libvips library
// This should be called once at startup
func InitVips() error {
	vipsInitMutex.Lock()
	defer vipsInitMutex.Unlock()

	if vipsInitialized {
		return nil
	}

	// Configure vips logging BEFORE Startup() to respect LOG_LEVEL
	vipsLogLevel, logHandler := vipsLogging(logging.GetLevel())
	vips.LoggingSettings(logHandler, vipsLogLevel)

	vips.Startup(&vips.Config{
		ConcurrencyLevel: 1,                // Conversion workers already run in parallel
		MaxCacheMem:      50 * 1024 * 1024, // 50MB cache
		MaxCacheSize:     100,
		ReportLeaks:      false,
		CacheTrace:       false,
		CollectStats:     false,
	})

	vipsInitialized = true
	vipsAvailable = true
	logging.Info("libvips initialized successfully (version: %s)", vips.Version)
	return nil
}

// vipsLogging maps the application log level to a libvips level and handler.
func vipsLogging(appLevel logging.LogLevel) (vips.LogLevel, func(string, vips.LogLevel, string)) {
	switch appLevel {
	case logging.LevelDebug:
		return vips.LogLevelInfo, func(domain string, level vips.LogLevel, msg string) {
			switch level {
			case vips.LogLevelError, vips.LogLevelCritical:
				logging.Error("[%s] %s", domain, msg)
			case vips.LogLevelWarning:
				logging.Warn("[%s] %s", domain, msg)
			default:
				logging.Debug("[%s] %s", domain, msg)
			}
		}
	case logging.LevelWarn:
		return vips.LogLevelError, func(domain string, level vips.LogLevel, msg string) {
			if level >= vips.LogLevelError {
				logging.Error("[%s] %s", domain, msg)
			}
		}
	case logging.LevelError:
		return vips.LogLevelCritical, func(domain string, level vips.LogLevel, msg string) {
			if level >= vips.LogLevelCritical {
				logging.Error("[%s] %s", domain, msg)
			}
		}
	default:
		return vips.LogLevelWarning, func(domain string, level vips.LogLevel, msg string) {
			switch level {
			case vips.LogLevelError, vips.LogLevelCritical:
				logging.Error("[%s] %s", domain, msg)
			case vips.LogLevelWarning:
				logging.Warn("[%s] %s", domain, msg)
			}
		}
	}
}

// ShutdownVips cleans up libvips resources
func ShutdownVips() {
	vipsInitMutex.Lock()
	defer vipsInitMutex.Unlock()

	if vipsInitialized {
		vips.Shutdown()
		vipsInitialized = false
		vipsAvailable = false
		logging.Info("libvips shutdown complete")
	}
}

// IsVipsAvailable returns whether libvips is initialized and available
func IsVipsAvailable() bool {
	vipsInitMutex.Lock()
	defer vipsInitMutex.Unlock()
	return vipsAvailable
}

// VipsRenderer renders thumbnails with libvips, which shrinks at decode time
// and reads RAW files when libvips is built with libraw. Any failure, or
// libvips not being initialized, defers to Fallback.
type VipsRenderer struct {
	Quality  int
	Fallback Renderer
}

// NewVipsRenderer returns a VipsRenderer that falls back to fallback.
func NewVipsRenderer(quality int, fallback Renderer) *VipsRenderer {
	if quality <= 0 || quality > 100 {
		quality = DefaultJPEGQuality
	}
	return &VipsRenderer{Quality: quality, Fallback: fallback}
}

// Name implements Renderer.
func (r *VipsRenderer) Name() string { return "vips" }

// Render implements Renderer.
func (r *VipsRenderer) Render(ctx context.Context, src SourceImage, dst string, size int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !IsVipsAvailable() {
		return r.fallback(ctx, src, dst, size, fmt.Errorf("libvips not available"))
	}

	start := time.Now()
	data, err := r.thumbnail(src, size)
	if err != nil {
		return r.fallback(ctx, src, dst, size, err)
	}
	metrics.ConversionDuration.WithLabelValues(r.Name()).Observe(time.Since(start).Seconds())

	return writeBytes(dst, data)
}

func (r *VipsRenderer) thumbnail(src SourceImage, size int) ([]byte, error) {
	ref, err := vips.NewThumbnailFromFile(src.Path, size, size, vips.InterestingNone)
	if err != nil {
		return nil, fmt.Errorf("vips failed to load image: %w", err)
	}
	defer ref.Close()

	if err := ref.AutoRotate(); err != nil {
		log.Debug("vips auto-rotate failed for %s: %v", src.Name(), err)
	}

	data, _, err := ref.ExportJpeg(&vips.JpegExportParams{
		Quality:        r.Quality,
		StripMetadata:  true,
		OptimizeCoding: true,
	})
	if err != nil {
		return nil, fmt.Errorf("vips export failed: %w", err)
	}
	return data, nil
}

func (r *VipsRenderer) fallback(ctx context.Context, src SourceImage, dst string, size int, cause error) error {
	if r.Fallback == nil {
		return cause
	}
	log.Debug("vips render of %s failed (%v), using %s renderer", src.Name(), cause, r.Fallback.Name())
	return r.Fallback.Render(ctx, src, dst, size)
}
