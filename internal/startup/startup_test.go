package startup

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"raw-organizer/internal/cluster"
	"raw-organizer/internal/database"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// unsetEnv removes key for the duration of the test.
func unsetEnv(t *testing.T, key string) {
	t.Helper()
	t.Setenv(key, "")
	require.NoError(t, os.Unsetenv(key))
}

func TestGetBuildInfo(t *testing.T) {
	info := GetBuildInfo()

	assert.NotEmpty(t, info.Version)
	assert.NotEmpty(t, info.OS)
	assert.NotEmpty(t, info.Arch)
	assert.Equal(t, GoVersion, info.GoVersion)
}

func TestLoadConfig_Defaults(t *testing.T) {
	dir := t.TempDir()

	cfg, err := LoadConfig([]string{dir})
	require.NoError(t, err)

	assert.Equal(t, dir, cfg.Dir)
	assert.Equal(t, filepath.Join(dir, ".cache"), cfg.CacheDir)
	assert.Equal(t, cfg.CacheDir, cfg.OutputDir)
	assert.Equal(t, filepath.Join(cfg.OutputDir, database.DefaultFileName), cfg.Database)

	assert.Equal(t, DefaultThumbnailSize, cfg.ThumbnailSize)
	assert.Equal(t, RendererPreview, cfg.Renderer)
	assert.Equal(t, cluster.AlgorithmKMeans, cfg.Algorithm)
	assert.Equal(t, 50, cfg.Fine.Clusters)
	assert.Equal(t, 25, cfg.Coarse.Clusters)
	assert.Equal(t, int64(42), cfg.Fine.Seed)
	assert.Equal(t, 3, cfg.Fine.MinSamples)
	assert.Equal(t, 6, cfg.Coarse.MinSamples)
	assert.Equal(t, ExtractorGrid, cfg.Extractor.Name)
	assert.Empty(t, cfg.Prefix, "cluster tags are written verbatim by default")
	assert.False(t, cfg.DryRun)
}

func TestLoadConfig_NoDirectory(t *testing.T) {
	_, err := LoadConfig(nil)
	assert.ErrorIs(t, err, ErrNoDirectory)
}

func TestLoadConfig_DirectoryFromEnv(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("RAWORG_DIR", dir)

	cfg, err := LoadConfig(nil)
	require.NoError(t, err)
	assert.Equal(t, dir, cfg.Dir)
}

func TestLoadConfig_YAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(t.TempDir(), "organize.yaml")
	content := `
thumbnail_size: 768
algorithm: dbscan
fine:
  eps: 0.4
  min_samples: 4
coarse:
  eps: 0.9
  min_samples: 8
extractor:
  name: command
  command: [python3, embed.py]
  model: resnet50
prefix: my_ai
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadConfig([]string{"-config", path, dir})
	require.NoError(t, err)

	assert.Equal(t, path, cfg.ConfigFile)
	assert.Equal(t, 768, cfg.ThumbnailSize)
	assert.Equal(t, cluster.AlgorithmDBSCAN, cfg.Algorithm)
	assert.InDelta(t, 0.4, cfg.Fine.Eps, 1e-9)
	assert.Equal(t, 8, cfg.Coarse.MinSamples)
	assert.Equal(t, []string{"python3", "embed.py"}, cfg.Extractor.Command)
	assert.Equal(t, "resnet50", cfg.Extractor.Model)
	assert.Equal(t, "my_ai", cfg.Prefix)
	// Untouched keys keep their defaults.
	assert.Equal(t, DefaultJPEGQuality, cfg.JPEGQuality)
}

func TestLoadConfig_YAMLUnknownField(t *testing.T) {
	path := filepath.Join(t.TempDir(), "organize.yaml")
	require.NoError(t, os.WriteFile(path, []byte("thumbnail_sise: 10\n"), 0o644))

	_, err := LoadConfig([]string{"-config", path, t.TempDir()})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestLoadConfig_YAMLMissing(t *testing.T) {
	_, err := LoadConfig([]string{"-config", filepath.Join(t.TempDir(), "nope.yaml"), t.TempDir()})
	assert.Error(t, err)
}

func TestLoadConfig_Env(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(t.TempDir(), "organize.yaml")
	require.NoError(t, os.WriteFile(path, []byte("prefix: ai\n"), 0o644))
	t.Setenv("RAWORG_CLUSTERS_FINE", "12")
	t.Setenv("RAWORG_SEED", "7")
	t.Setenv("RAWORG_DRY_RUN", "true")
	t.Setenv("RAWORG_PREFIX", "")

	cfg, err := LoadConfig([]string{"-config", path, dir})
	require.NoError(t, err)

	assert.Equal(t, 12, cfg.Fine.Clusters)
	assert.Equal(t, int64(7), cfg.Fine.Seed)
	assert.Equal(t, int64(7), cfg.Coarse.Seed)
	assert.True(t, cfg.DryRun)
	assert.Equal(t, "", cfg.Prefix, "an explicitly empty prefix overrides the YAML one")
}

func TestLoadConfig_FlagsOverrideEnvAndYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(t.TempDir(), "organize.yaml")
	require.NoError(t, os.WriteFile(path, []byte("thumbnail_size: 768\nprefix: yaml\n"), 0o644))
	t.Setenv("RAWORG_SIZE", "300")

	cfg, err := LoadConfig([]string{"-config", path, "-size", "200", "-seed", "9", dir})
	require.NoError(t, err)

	assert.Equal(t, 200, cfg.ThumbnailSize)
	assert.Equal(t, "yaml", cfg.Prefix)
	assert.Equal(t, int64(9), cfg.Fine.Seed)
	assert.Equal(t, int64(9), cfg.Coarse.Seed)
}

func TestLoadConfig_EnvFile(t *testing.T) {
	unsetEnv(t, "RAWORG_MODEL")
	unsetEnv(t, "RAWORG_EXTRACTOR")
	unsetEnv(t, "RAWORG_EXTRACTOR_CMD")

	envFile := filepath.Join(t.TempDir(), "organize.env")
	content := "RAWORG_EXTRACTOR=command\nRAWORG_EXTRACTOR_CMD=\"python3 embed.py --fast\"\nRAWORG_MODEL=clip\n"
	require.NoError(t, os.WriteFile(envFile, []byte(content), 0o644))

	cfg, err := LoadConfig([]string{"-env-file", envFile, t.TempDir()})
	require.NoError(t, err)

	assert.Equal(t, ExtractorCommand, cfg.Extractor.Name)
	assert.Equal(t, []string{"python3", "embed.py", "--fast"}, cfg.Extractor.Command)
	assert.Equal(t, "clip", cfg.Extractor.Model)
}

func TestLoadConfig_MissingEnvFileIgnored(t *testing.T) {
	_, err := LoadConfig([]string{"-env-file", filepath.Join(t.TempDir(), "missing.env"), t.TempDir()})
	assert.NoError(t, err)
}

func TestLoadConfig_ExplicitPaths(t *testing.T) {
	dir := t.TempDir()
	out := t.TempDir()

	cfg, err := LoadConfig([]string{"-output", out, dir})
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, ".cache"), cfg.CacheDir)
	assert.Equal(t, out, cfg.OutputDir)
	assert.Equal(t, filepath.Join(out, database.DefaultFileName), cfg.Database)
}

func TestLoadConfig_Invalid(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "photo.cr2")
	require.NoError(t, os.WriteFile(file, []byte("raw"), 0o644))

	tests := []struct {
		name string
		args []string
	}{
		{"zero size", []string{"-size", "0", dir}},
		{"quality too high", []string{"-quality", "101", dir}},
		{"unknown renderer", []string{"-renderer", "gpu", dir}},
		{"unknown algorithm", []string{"-algorithm", "spectral", dir}},
		{"zero clusters", []string{"-clusters-coarse", "0", dir}},
		{"dbscan without min samples", []string{"-algorithm", "dbscan", "-min-samples-fine", "0", dir}},
		{"command extractor without command", []string{"-extractor", "command", dir}},
		{"unknown extractor", []string{"-extractor", "clip", dir}},
		{"cache is the directory", []string{"-cache", dir, dir}},
		{"directory is a file", []string{file}},
		{"directory missing", []string{filepath.Join(dir, "missing")}},
		{"extra arguments", []string{dir, "other"}},
		{"bad log level", []string{"-log-level", "loud", dir}},
		{"prefix with slash", []string{"-prefix", "ai/x", dir}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(tt.args)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestLoadConfig_BadFlag(t *testing.T) {
	_, err := LoadConfig([]string{"-size", "big", t.TempDir()})
	assert.Error(t, err)
	assert.False(t, errors.Is(err, ErrInvalidConfig))
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := Defaults()
	cfg.Dir = t.TempDir()
	cfg.ThumbnailSize = -1
	cfg.JPEGQuality = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "thumbnail size")
	assert.Contains(t, err.Error(), "JPEG quality")
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("RAWORG_TEST_STR", "value")
	t.Setenv("RAWORG_TEST_BOOL", "yes-please")
	t.Setenv("RAWORG_TEST_INT", "12")
	t.Setenv("RAWORG_TEST_BADINT", "twelve")

	assert.Equal(t, "value", getEnv("RAWORG_TEST_STR", "default"))
	assert.Equal(t, "default", getEnv("RAWORG_TEST_UNSET", "default"))
	assert.True(t, getEnvBool("RAWORG_TEST_BOOL", true), "invalid booleans fall back to the default")
	assert.False(t, getEnvBool("RAWORG_TEST_UNSET", false))
	assert.Equal(t, 12, getEnvInt("RAWORG_TEST_INT", 3))
	assert.Equal(t, 3, getEnvInt("RAWORG_TEST_BADINT", 3))
}

func TestPrepareDirectories(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadConfig([]string{"-db", filepath.Join(t.TempDir(), "ledger", "runs.db"), dir})
	require.NoError(t, err)

	require.NoError(t, PrepareDirectories(cfg))

	for _, p := range []string{cfg.CacheDir, cfg.OutputDir, filepath.Dir(cfg.Database)} {
		info, err := os.Stat(p)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
		assert.NoFileExists(t, filepath.Join(p, ".write-test"))
	}
}

func TestPrepareDirectories_CacheIsFile(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadConfig([]string{dir})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(cfg.CacheDir, []byte("x"), 0o644))

	assert.Error(t, PrepareDirectories(cfg))
}

func TestGetRoutes(t *testing.T) {
	router := mux.NewRouter()
	noop := func(http.ResponseWriter, *http.Request) {}
	router.HandleFunc("/metrics", noop).Methods(http.MethodGet).Name("metrics")
	router.HandleFunc("/healthz", noop).Methods(http.MethodGet, http.MethodHead)

	routes, err := GetRoutes(router)
	require.NoError(t, err)

	assert.Equal(t, []RouteInfo{
		{Method: http.MethodGet, Path: "/healthz"},
		{Method: http.MethodHead, Path: "/healthz"},
		{Method: http.MethodGet, Path: "/metrics", Name: "metrics"},
	}, routes)
}
