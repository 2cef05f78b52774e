package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"os"
	"path/filepath"
	"time"

	"raw-organizer/internal/filesystem"
	"raw-organizer/internal/metrics"

	// Decoders for full-file fallbacks (DNG is TIFF based)
	_ "image/png"

	"github.com/disintegration/imaging"
	"github.com/rwcarlsen/goexif/exif"
	_ "golang.org/x/image/tiff"
)

const (
	// DefaultJPEGQuality is used when a renderer has no quality configured.
	DefaultJPEGQuality = 90

	// MaxImagePixels bounds full-file decodes. A 20MP RGBA image is ~80MB.
	MaxImagePixels = 20_000_000

	// maxPreviewCandidates bounds how many embedded JPEG streams are probed.
	maxPreviewCandidates = 64
)

// ErrNoPreview is returned when a RAW file has no decodable preview and cannot
// be decoded directly.
var ErrNoPreview = errors.New("no decodable preview")

// PreviewRenderer renders thumbnails from the JPEG previews that cameras embed
// in RAW files. The largest decodable preview wins: the EXIF thumbnail and
// every JPEG stream found in the file are candidates. Files without previews
// are decoded directly when a registered decoder understands them.
type PreviewRenderer struct {
	Quality int
}

// NewPreviewRenderer returns a PreviewRenderer encoding at quality (1-100).
func NewPreviewRenderer(quality int) *PreviewRenderer {
	if quality <= 0 || quality > 100 {
		quality = DefaultJPEGQuality
	}
	return &PreviewRenderer{Quality: quality}
}

// Name implements Renderer.
func (r *PreviewRenderer) Name() string { return "preview" }

// Render implements Renderer.
func (r *PreviewRenderer) Render(ctx context.Context, src SourceImage, dst string, size int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if size <= 0 {
		return fmt.Errorf("invalid thumbnail size %d", size)
	}

	start := time.Now()
	defer func() {
		metrics.ConversionDuration.WithLabelValues(r.Name()).Observe(time.Since(start).Seconds())
	}()

	data, err := filesystem.ReadFileWithRetry(src.Path, filesystem.DefaultRetryConfig())
	if err != nil {
		return fmt.Errorf("read %s: %w", src.Path, err)
	}

	img, err := decodePreview(data, src.Format.IsTIFFBased())
	if err != nil {
		return fmt.Errorf("%s: %w", src.Name(), err)
	}

	img = applyOrientation(img, readOrientation(data))
	thumb := imaging.Fit(img, size, size, imaging.Lanczos)

	return writeJPEG(dst, thumb, r.Quality)
}

// decodePreview picks the largest embedded JPEG or falls back to decoding the
// whole file. The EXIF thumbnail is only consulted for TIFF-based layouts.
func decodePreview(data []byte, tiffBased bool) (image.Image, error) {
	var best []byte
	bestArea := 0

	consider := func(candidate []byte) {
		cfg, err := jpeg.DecodeConfig(bytes.NewReader(candidate))
		if err != nil {
			return
		}
		if area := cfg.Width * cfg.Height; area > bestArea {
			best, bestArea = candidate, area
		}
	}

	if tiffBased {
		if x, err := exif.Decode(bytes.NewReader(data)); err == nil {
			if thumb, err := x.JpegThumbnail(); err == nil {
				consider(thumb)
			}
		}
	}
	for _, offset := range jpegOffsets(data, maxPreviewCandidates) {
		consider(data[offset:])
	}

	if best != nil {
		img, err := jpeg.Decode(bytes.NewReader(best))
		if err == nil {
			return img, nil
		}
		log.Debug("embedded preview failed to decode: %v", err)
	}

	return decodeConstrained(data)
}

// jpegOffsets returns the offsets of up to limit JPEG start-of-image markers
// (FF D8 FF) in data.
func jpegOffsets(data []byte, limit int) []int {
	var offsets []int
	marker := []byte{0xFF, 0xD8, 0xFF}
	for i := 0; i < len(data) && len(offsets) < limit; {
		idx := bytes.Index(data[i:], marker)
		if idx < 0 {
			break
		}
		offsets = append(offsets, i+idx)
		i += idx + len(marker)
	}
	return offsets
}

// decodeConstrained decodes data with the registered decoders, refusing images
// above MaxImagePixels.
func decodeConstrained(data []byte) (image.Image, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, ErrNoPreview
	}
	if cfg.Width*cfg.Height > MaxImagePixels {
		return nil, fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrNoPreview, cfg.Width, cfg.Height, MaxImagePixels)
	}
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoPreview, err)
	}
	return img, nil
}

// readOrientation returns the EXIF orientation (1-8), or 1 when unknown.
func readOrientation(data []byte) int {
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return 1
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return 1
	}
	v, err := tag.Int(0)
	if err != nil || v < 1 || v > 8 {
		return 1
	}
	return v
}

func applyOrientation(img image.Image, orientation int) image.Image {
	switch orientation {
	case 2:
		return imaging.FlipH(img)
	case 3:
		return imaging.Rotate180(img)
	case 4:
		return imaging.FlipV(img)
	case 5:
		return imaging.Transpose(img)
	case 6:
		return imaging.Rotate270(img)
	case 7:
		return imaging.Transverse(img)
	case 8:
		return imaging.Rotate90(img)
	default:
		return img
	}
}

// writeJPEG atomically writes img to dst, creating parent directories.
func writeJPEG(dst string, img image.Image, quality int) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create thumbnail dir: %w", err)
	}
	return filesystem.SaveAtomic(dst, 0o644, func(w io.Writer) error {
		return imaging.Encode(w, img, imaging.JPEG, imaging.JPEGQuality(quality))
	})
}

// writeBytes atomically writes already-encoded thumbnail bytes to dst.
func writeBytes(dst string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create thumbnail dir: %w", err)
	}
	return filesystem.WriteFileAtomic(dst, data, 0o644)
}
