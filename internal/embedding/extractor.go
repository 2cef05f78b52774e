package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"math"
	"os/exec"
	"strings"
	"time"

	"github.com/disintegration/imaging"
)

var (
	// ErrEmptyVector is returned when an extractor produces no values.
	ErrEmptyVector = errors.New("empty embedding vector")
	// ErrDimensionMismatch is returned when vectors in one batch differ in length.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// Extractor computes a fixed-length feature vector for a raster image. The
// vector length is constant for a given ModelName.
type Extractor interface {
	Extract(ctx context.Context, path string) ([]float32, error)
	ModelName() string
}

// Embedding is the feature vector of one image.
type Embedding struct {
	ID     string
	Vector []float32
	Model  string
}

const (
	gridSize      = 8
	histogramBins = 16
	histogramSide = 64

	// GridModelName identifies vectors produced by GridExtractor.
	GridModelName = "grid-rgb-8x8+luma16"
	// GridDimension is the length of GridExtractor vectors.
	GridDimension = gridSize*gridSize*3 + histogramBins
)

// GridExtractor is a dependency-free extractor: the mean colour of an 8×8
// grid over the image plus a 16-bin luminance histogram, L2-normalized. It
// groups photos by composition and tone rather than content.
type GridExtractor struct{}

// ModelName implements Extractor.
func (GridExtractor) ModelName() string { return GridModelName }

// Extract implements Extractor.
func (GridExtractor) Extract(ctx context.Context, path string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	img, err := imaging.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return gridFeatures(img), nil
}

func gridFeatures(img image.Image) []float32 {
	vec := make([]float32, 0, GridDimension)

	grid := imaging.Resize(img, gridSize, gridSize, imaging.Box)
	for y := 0; y < gridSize; y++ {
		for x := 0; x < gridSize; x++ {
			i := grid.PixOffset(x, y)
			vec = append(vec,
				float32(grid.Pix[i])/255,
				float32(grid.Pix[i+1])/255,
				float32(grid.Pix[i+2])/255,
			)
		}
	}

	small := imaging.Resize(img, histogramSide, histogramSide, imaging.Linear)
	var hist [histogramBins]float32
	pixels := 0
	for i := 0; i+3 < len(small.Pix); i += 4 {
		luma := 0.299*float64(small.Pix[i]) + 0.587*float64(small.Pix[i+1]) + 0.114*float64(small.Pix[i+2])
		bin := int(luma) * histogramBins / 256
		if bin >= histogramBins {
			bin = histogramBins - 1
		}
		hist[bin]++
		pixels++
	}
	for _, h := range hist {
		if pixels > 0 {
			h /= float32(pixels)
		}
		vec = append(vec, h)
	}

	return normalize(vec)
}

// normalize scales v to unit L2 norm in place. Zero vectors are returned as is.
func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	inv := float32(1 / math.Sqrt(sum))
	for i := range v {
		v[i] *= inv
	}
	return v
}

// CommandExtractor runs an external program, such as a ResNet feature
// script, with the image path as its last argument. The program must print a
// JSON array of numbers on stdout.
type CommandExtractor struct {
	Command string
	Args    []string
	Model   string
	Timeout time.Duration
}

// ModelName implements Extractor.
func (c *CommandExtractor) ModelName() string {
	if c.Model != "" {
		return c.Model
	}
	return c.Command
}

// Extract implements Extractor.
func (c *CommandExtractor) Extract(ctx context.Context, path string) ([]float32, error) {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	args := append(append([]string{}, c.Args...), path)
	cmd := exec.CommandContext(ctx, c.Command, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return nil, fmt.Errorf("%s: %w: %s", c.Command, err, msg)
		}
		return nil, fmt.Errorf("%s: %w", c.Command, err)
	}

	var vec []float32
	if err := json.Unmarshal(bytes.TrimSpace(out), &vec); err != nil {
		return nil, fmt.Errorf("%s: invalid vector output: %w", c.Command, err)
	}
	return vec, nil
}
