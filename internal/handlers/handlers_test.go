package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"raw-organizer/internal/cluster"
	"raw-organizer/internal/embedding"
	"raw-organizer/internal/media"
	"raw-organizer/internal/metrics"
	"raw-organizer/internal/pipeline"
	"raw-organizer/internal/startup"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeHealth(t *testing.T, rec *httptest.ResponseRecorder) HealthResponse {
	t.Helper()
	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestHealthCheck_Starting(t *testing.T) {
	h := New(pipeline.NewProgress())

	rec := httptest.NewRecorder()
	h.HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	resp := decodeHealth(t, rec)
	assert.Equal(t, statusStarting, resp.Status)
	assert.False(t, resp.Ready)
	assert.Equal(t, startup.Version, resp.Version)
	assert.Positive(t, resp.NumCPU)
}

// failingRenderer fails every image so a run ends right after conversion.
type failingRenderer struct{}

func (failingRenderer) Name() string { return "failing" }

func (failingRenderer) Render(context.Context, media.SourceImage, string, int) error {
	return os.ErrInvalid
}

func runPipeline(t *testing.T, root string, progress *pipeline.Progress) {
	t.Helper()
	cfg := pipeline.Config{
		Root:   root,
		Fine:   cluster.NewKMeans(2, 1),
		Coarse: cluster.NewKMeans(1, 1),
	}
	_, _ = pipeline.New(cfg, failingRenderer{}, embedding.GridExtractor{}, pipeline.WithProgress(progress)).Run(context.Background())
}

func TestHealthCheck_Done(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.cr2"), []byte("raw"), 0o644))
	progress := pipeline.NewProgress()
	runPipeline(t, root, progress)

	rec := httptest.NewRecorder()
	New(progress).HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	resp := decodeHealth(t, rec)
	assert.Equal(t, statusDone, resp.Status)
	assert.True(t, resp.Ready)
	assert.Equal(t, "convert", resp.Stage)
	assert.NotEmpty(t, resp.Elapsed)
}

func TestHealthCheck_Failed(t *testing.T) {
	progress := pipeline.NewProgress()
	runPipeline(t, filepath.Join(t.TempDir(), "missing"), progress)

	rec := httptest.NewRecorder()
	New(progress).HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	resp := decodeHealth(t, rec)
	assert.Equal(t, statusFailed, resp.Status)
	assert.Contains(t, resp.Error, "missing")
}

func TestLivenessCheck(t *testing.T) {
	h := New(pipeline.NewProgress())

	rec := httptest.NewRecorder()
	h.LivenessCheck(rec, httptest.NewRequest(http.MethodGet, "/livez", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"alive"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	h.LivenessCheck(rec, httptest.NewRequest(http.MethodHead, "/livez", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestGetVersion(t *testing.T) {
	h := New(pipeline.NewProgress())

	rec := httptest.NewRecorder()
	h.GetVersion(rec, httptest.NewRequest(http.MethodGet, "/version", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))

	var info startup.BuildInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.Equal(t, startup.GetBuildInfo(), info)
}

func TestMetricsHandler(t *testing.T) {
	metrics.InitializeMetrics()
	h := New(pipeline.NewProgress())

	rec := httptest.NewRecorder()
	h.MetricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "raw_organizer_pipeline_runs_total"))
	assert.True(t, strings.Contains(body, "raw_organizer_sidecar_writes_total"))
}
