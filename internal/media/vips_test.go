package media

import (
	"context"
	"path/filepath"
	"testing"

	"raw-organizer/internal/logging"

	"github.com/davidbyttow/govips/v2/vips"
	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingRenderer struct {
	calls int
}

func (r *recordingRenderer) Name() string { return "recording" }

func (r *recordingRenderer) Render(_ context.Context, _ SourceImage, _ string, _ int) error {
	r.calls++
	return nil
}

func TestVipsRenderer_FallsBackWhenUnavailable(t *testing.T) {
	if IsVipsAvailable() {
		t.Skip("libvips initialized in this process")
	}

	fallback := &recordingRenderer{}
	r := NewVipsRenderer(0, fallback)

	err := r.Render(context.Background(), SourceImage{Path: "/nope/a.cr2"}, "/nope/a.jpg", 64)
	require.NoError(t, err)
	assert.Equal(t, 1, fallback.calls)
	assert.Equal(t, DefaultJPEGQuality, r.Quality)
}

func TestVipsRenderer_NoFallbackReturnsError(t *testing.T) {
	if IsVipsAvailable() {
		t.Skip("libvips initialized in this process")
	}

	r := NewVipsRenderer(80, nil)
	assert.Error(t, r.Render(context.Background(), SourceImage{Path: "/nope/a.cr2"}, "/nope/a.jpg", 64))
}

func TestVipsRenderer_WithPreviewFallback(t *testing.T) {
	if IsVipsAvailable() {
		t.Skip("libvips initialized in this process")
	}

	dir := t.TempDir()
	src := fakeRAW(t, dir, encodeJPEG(t, 200, 100))
	dst := filepath.Join(dir, "out.jpg")

	r := NewVipsRenderer(80, NewPreviewRenderer(80))
	require.NoError(t, r.Render(context.Background(), src, dst, 50))

	img, err := imaging.Open(dst)
	require.NoError(t, err)
	assert.Equal(t, 50, img.Bounds().Dx())
}

func TestVipsLogging(t *testing.T) {
	tests := []struct {
		app  logging.LogLevel
		want vips.LogLevel
	}{
		{app: logging.LevelDebug, want: vips.LogLevelInfo},
		{app: logging.LevelInfo, want: vips.LogLevelWarning},
		{app: logging.LevelWarn, want: vips.LogLevelError},
		{app: logging.LevelError, want: vips.LogLevelCritical},
	}

	for _, tt := range tests {
		got, handler := vipsLogging(tt.app)
		assert.Equal(t, tt.want, got, tt.app.String())
		assert.NotNil(t, handler)
	}
}
