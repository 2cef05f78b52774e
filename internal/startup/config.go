package startup

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"raw-organizer/internal/cache"
	"raw-organizer/internal/cluster"
	"raw-organizer/internal/database"
	"raw-organizer/internal/logging"
	"raw-organizer/internal/mediatypes"
	"raw-organizer/internal/merge"
	"raw-organizer/internal/sidecar"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Renderer and extractor names accepted in the configuration.
const (
	RendererPreview = "preview"
	RendererVips    = "vips"

	ExtractorGrid    = "grid"
	ExtractorCommand = "command"
)

// Defaults for an organize run.
const (
	DefaultThumbnailSize  = 512
	DefaultJPEGQuality    = 90
	DefaultFineClusters   = 50
	DefaultCoarseClusters = DefaultFineClusters / 2
	DefaultSeed           = 42
	DefaultMinSamples     = 3
	DefaultExtractTimeout = 2 * time.Minute
)

var (
	// ErrNoDirectory is returned when no scan directory was given.
	ErrNoDirectory = errors.New("no directory given")
	// ErrInvalidConfig wraps every other validation failure.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// ClusterConfig holds the parameters of one granularity.
type ClusterConfig struct {
	Clusters   int     `yaml:"clusters"`
	Seed       int64   `yaml:"seed"`
	MaxIter    int     `yaml:"max_iter"`
	Restarts   int     `yaml:"restarts"`
	Eps        float64 `yaml:"eps"`
	MinSamples int     `yaml:"min_samples"`
}

// Params converts c for cluster.NewAlgorithm.
func (c ClusterConfig) Params() cluster.Params {
	return cluster.Params{
		K:          c.Clusters,
		Seed:       c.Seed,
		MaxIter:    c.MaxIter,
		Restarts:   c.Restarts,
		Eps:        c.Eps,
		MinSamples: c.MinSamples,
	}
}

// ExtractorConfig selects the feature extractor.
type ExtractorConfig struct {
	Name    string        `yaml:"name"`
	Command []string      `yaml:"command"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
}

// Config is everything an organize run needs. It is built from defaults,
// then an optional YAML file, then the environment (and .env file), then
// command-line flags, each layer overriding the previous one.
type Config struct {
	Dir       string `yaml:"dir"`
	CacheDir  string `yaml:"cache_dir"`
	OutputDir string `yaml:"output_dir"`
	Database  string `yaml:"database"`
	NoLedger  bool   `yaml:"no_ledger"`

	ThumbnailSize int    `yaml:"thumbnail_size"`
	JPEGQuality   int    `yaml:"jpeg_quality"`
	Renderer      string `yaml:"renderer"`

	Workers      int `yaml:"workers"`
	MergeWorkers int `yaml:"merge_workers"`

	Algorithm string          `yaml:"algorithm"`
	Fine      ClusterConfig   `yaml:"fine"`
	Coarse    ClusterConfig   `yaml:"coarse"`
	Extractor ExtractorConfig `yaml:"extractor"`

	Prefix     string `yaml:"prefix"`
	DryRun     bool   `yaml:"dry_run"`
	ClearCache bool   `yaml:"clear_cache"`

	MetricsAddr string `yaml:"metrics_addr"`
	LogLevel    string `yaml:"log_level"`

	ConfigFile string `yaml:"-"`
	EnvFile    string `yaml:"-"`
}

// Defaults returns the configuration used when nothing overrides it.
func Defaults() *Config {
	return &Config{
		ThumbnailSize: DefaultThumbnailSize,
		JPEGQuality:   DefaultJPEGQuality,
		Renderer:      RendererPreview,
		Algorithm:     cluster.AlgorithmKMeans,
		Fine: ClusterConfig{
			Clusters:   DefaultFineClusters,
			Seed:       DefaultSeed,
			MinSamples: DefaultMinSamples,
		},
		Coarse: ClusterConfig{
			Clusters:   DefaultCoarseClusters,
			Seed:       DefaultSeed,
			MinSamples: DefaultMinSamples * 2,
		},
		Extractor: ExtractorConfig{
			Name:    ExtractorGrid,
			Timeout: DefaultExtractTimeout,
		},
		Prefix:  merge.DefaultPrefix,
		EnvFile: ".env",
	}
}

// LoadConfig builds the configuration for args (without the program name).
// The directory may be given as the first positional argument.
func LoadConfig(args []string) (*Config, error) {
	// First pass only discovers -config and -env-file.
	scout := Defaults()
	pre := flag.NewFlagSet("raw-organizer", flag.ContinueOnError)
	pre.SetOutput(io.Discard)
	bindFlags(pre, scout)
	_ = pre.Parse(args)

	cfg := Defaults()

	configFile := scout.ConfigFile
	if configFile == "" {
		configFile = os.Getenv("RAWORG_CONFIG")
	}
	if configFile != "" {
		if err := cfg.loadYAML(configFile); err != nil {
			return nil, err
		}
		cfg.ConfigFile = configFile
	}

	cfg.EnvFile = scout.EnvFile
	if err := loadEnvFile(cfg.EnvFile); err != nil {
		return nil, err
	}
	cfg.applyEnv()

	fs := flag.NewFlagSet("raw-organizer", flag.ContinueOnError)
	bindFlags(fs, cfg)
	fs.Usage = func() { usage(fs) }
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 1 {
		return nil, fmt.Errorf("%w: unexpected arguments %v", ErrInvalidConfig, fs.Args()[1:])
	}
	if fs.NArg() == 1 {
		cfg.Dir = fs.Arg(0)
	}

	if cfg.LogLevel != "" {
		level, ok := logging.ParseLevel(cfg.LogLevel)
		if !ok {
			return nil, fmt.Errorf("%w: unknown log level %q", ErrInvalidConfig, cfg.LogLevel)
		}
		logging.SetLevel(level)
	}

	if err := cfg.Resolve(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func bindFlags(fs *flag.FlagSet, c *Config) {
	fs.StringVar(&c.ConfigFile, "config", c.ConfigFile, "YAML configuration `file`")
	fs.StringVar(&c.EnvFile, "env-file", c.EnvFile, "environment `file` loaded before RAWORG_* variables are read")

	fs.StringVar(&c.CacheDir, "cache", c.CacheDir, "cache `dir` (default <dir>/.cache)")
	fs.StringVar(&c.OutputDir, "output", c.OutputDir, "`dir` for embeddings and cluster files (default the cache dir)")
	fs.StringVar(&c.Database, "db", c.Database, "run ledger `file` (default <output>/runs.db)")
	fs.BoolVar(&c.NoLedger, "no-ledger", c.NoLedger, "do not record the run in the ledger")

	fs.IntVar(&c.ThumbnailSize, "size", c.ThumbnailSize, "thumbnail longest edge in `pixels`")
	fs.IntVar(&c.JPEGQuality, "quality", c.JPEGQuality, "thumbnail JPEG quality (1-100)")
	fs.StringVar(&c.Renderer, "renderer", c.Renderer, "RAW renderer: preview or vips")

	fs.IntVar(&c.Workers, "workers", c.Workers, "conversion and extraction workers (0 = one per CPU)")
	fs.IntVar(&c.MergeWorkers, "merge-workers", c.MergeWorkers, "sidecar merge workers (0 = one per CPU)")

	fs.StringVar(&c.Algorithm, "algorithm", c.Algorithm, "clustering algorithm: "+strings.Join(cluster.Algorithms(), " or "))
	fs.IntVar(&c.Fine.Clusters, "clusters-fine", c.Fine.Clusters, "number of fine clusters (kmeans)")
	fs.IntVar(&c.Coarse.Clusters, "clusters-coarse", c.Coarse.Clusters, "number of coarse clusters (kmeans)")
	fs.Func("seed", "random seed for both granularities (kmeans)", func(s string) error {
		seed, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return err
		}
		c.Fine.Seed, c.Coarse.Seed = seed, seed
		return nil
	})
	fs.Float64Var(&c.Fine.Eps, "eps-fine", c.Fine.Eps, "neighbourhood radius for fine clusters (dbscan, 0 = estimate)")
	fs.Float64Var(&c.Coarse.Eps, "eps-coarse", c.Coarse.Eps, "neighbourhood radius for coarse clusters (dbscan, 0 = estimate)")
	fs.IntVar(&c.Fine.MinSamples, "min-samples-fine", c.Fine.MinSamples, "core point neighbours for fine clusters (dbscan)")
	fs.IntVar(&c.Coarse.MinSamples, "min-samples-coarse", c.Coarse.MinSamples, "core point neighbours for coarse clusters (dbscan)")

	fs.StringVar(&c.Extractor.Name, "extractor", c.Extractor.Name, "feature extractor: grid or command")
	fs.Func("extractor-cmd", "command run per thumbnail by the command extractor", func(s string) error {
		c.Extractor.Command = strings.Fields(s)
		return nil
	})
	fs.StringVar(&c.Extractor.Model, "model", c.Extractor.Model, "model name recorded for the command extractor")

	fs.StringVar(&c.Prefix, "prefix", c.Prefix, "keyword prefix (empty writes cluster tags verbatim)")
	fs.BoolVar(&c.DryRun, "dry-run", c.DryRun, "do not write sidecars, only report what would change")
	fs.BoolVar(&c.ClearCache, "clear-cache", c.ClearCache, "delete the cache before converting")

	fs.StringVar(&c.MetricsAddr, "metrics-addr", c.MetricsAddr, "serve /metrics and /healthz on this `address` during the run")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "debug, info, warn or error")
}

func usage(fs *flag.FlagSet) {
	out := fs.Output()
	fmt.Fprintf(out, "Usage: %s [flags] <directory>\n\n", fs.Name())
	fmt.Fprintln(out, "Clusters the RAW images under <directory> by visual similarity and writes")
	fmt.Fprintln(out, "the clusters into each image's XMP sidecar as keywords.")
	fmt.Fprintln(out)
	fs.PrintDefaults()
}

func (c *Config) loadYAML(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, path, err)
	}
	return nil
}

// loadEnvFile loads path into the environment without overriding variables
// that are already set. A missing file is not an error.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	logging.Debug("Loaded environment from %s", path)
	return nil
}

func (c *Config) applyEnv() {
	c.Dir = getEnv("RAWORG_DIR", c.Dir)
	c.CacheDir = getEnv("RAWORG_CACHE_DIR", c.CacheDir)
	c.OutputDir = getEnv("RAWORG_OUTPUT_DIR", c.OutputDir)
	c.Database = getEnv("RAWORG_DB", c.Database)
	c.NoLedger = getEnvBool("RAWORG_NO_LEDGER", c.NoLedger)

	c.ThumbnailSize = getEnvInt("RAWORG_SIZE", c.ThumbnailSize)
	c.JPEGQuality = getEnvInt("RAWORG_JPEG_QUALITY", c.JPEGQuality)
	c.Renderer = getEnv("RAWORG_RENDERER", c.Renderer)
	c.MergeWorkers = getEnvInt("RAWORG_MERGE_WORKERS", c.MergeWorkers)

	c.Algorithm = getEnv("RAWORG_ALGORITHM", c.Algorithm)
	c.Fine.Clusters = getEnvInt("RAWORG_CLUSTERS_FINE", c.Fine.Clusters)
	c.Coarse.Clusters = getEnvInt("RAWORG_CLUSTERS_COARSE", c.Coarse.Clusters)
	if seed := getEnvInt("RAWORG_SEED", -1); seed >= 0 {
		c.Fine.Seed, c.Coarse.Seed = int64(seed), int64(seed)
	}

	c.Extractor.Name = getEnv("RAWORG_EXTRACTOR", c.Extractor.Name)
	if cmd := os.Getenv("RAWORG_EXTRACTOR_CMD"); cmd != "" {
		c.Extractor.Command = strings.Fields(cmd)
	}
	c.Extractor.Model = getEnv("RAWORG_MODEL", c.Extractor.Model)

	// An explicitly empty prefix is meaningful.
	if prefix, ok := os.LookupEnv("RAWORG_PREFIX"); ok {
		c.Prefix = prefix
	}
	c.DryRun = getEnvBool("RAWORG_DRY_RUN", c.DryRun)
	c.ClearCache = getEnvBool("RAWORG_CLEAR_CACHE", c.ClearCache)
	c.MetricsAddr = getEnv("RAWORG_METRICS_ADDR", c.MetricsAddr)
	c.LogLevel = getEnv("RAWORG_LOG_LEVEL", c.LogLevel)
}

// Resolve makes paths absolute and fills in derived locations.
func (c *Config) Resolve() error {
	if c.Dir == "" {
		return ErrNoDirectory
	}

	var err error
	if c.Dir, err = filepath.Abs(c.Dir); err != nil {
		return fmt.Errorf("resolve directory: %w", err)
	}
	if c.CacheDir == "" {
		c.CacheDir = filepath.Join(c.Dir, cache.DefaultDirName)
	}
	if c.CacheDir, err = filepath.Abs(c.CacheDir); err != nil {
		return fmt.Errorf("resolve cache directory: %w", err)
	}
	if c.OutputDir == "" {
		c.OutputDir = c.CacheDir
	}
	if c.OutputDir, err = filepath.Abs(c.OutputDir); err != nil {
		return fmt.Errorf("resolve output directory: %w", err)
	}
	if c.Database == "" {
		c.Database = filepath.Join(c.OutputDir, database.DefaultFileName)
	}
	if c.Database, err = filepath.Abs(c.Database); err != nil {
		return fmt.Errorf("resolve database path: %w", err)
	}
	return nil
}

// Validate rejects configurations that cannot produce a run.
func (c *Config) Validate() error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
	}

	if c.Dir == "" {
		errs = append(errs, ErrNoDirectory)
	} else if info, err := os.Stat(c.Dir); err != nil {
		fail("directory %s: %v", c.Dir, err)
	} else if !info.IsDir() {
		fail("%s is not a directory", c.Dir)
	}

	if c.ThumbnailSize <= 0 {
		fail("thumbnail size must be positive, got %d", c.ThumbnailSize)
	}
	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		fail("JPEG quality must be 1-100, got %d", c.JPEGQuality)
	}
	if c.Renderer != RendererPreview && c.Renderer != RendererVips {
		fail("unknown renderer %q", c.Renderer)
	}
	if c.Workers < 0 || c.MergeWorkers < 0 {
		fail("worker counts cannot be negative")
	}

	switch c.Algorithm {
	case cluster.AlgorithmKMeans:
		if c.Fine.Clusters <= 0 || c.Coarse.Clusters <= 0 {
			fail("cluster counts must be positive, got fine=%d coarse=%d", c.Fine.Clusters, c.Coarse.Clusters)
		}
	case cluster.AlgorithmDBSCAN:
		if c.Fine.MinSamples <= 0 || c.Coarse.MinSamples <= 0 {
			fail("min samples must be positive, got fine=%d coarse=%d", c.Fine.MinSamples, c.Coarse.MinSamples)
		}
		if c.Fine.Eps < 0 || c.Coarse.Eps < 0 {
			fail("eps cannot be negative")
		}
	default:
		fail("unknown algorithm %q (want one of %v)", c.Algorithm, cluster.Algorithms())
	}

	switch c.Extractor.Name {
	case ExtractorGrid:
	case ExtractorCommand:
		if len(c.Extractor.Command) == 0 {
			fail("the command extractor needs a command")
		}
	default:
		fail("unknown extractor %q", c.Extractor.Name)
	}

	if !sidecar.ValidPrefix(c.Prefix) {
		fail("keyword prefix %q cannot contain a slash", c.Prefix)
	}

	if c.CacheDir != "" && c.CacheDir == c.Dir {
		fail("cache directory cannot be the scan directory")
	}

	return errors.Join(errs...)
}

// Log writes the effective configuration at info level.
func (c *Config) Log() {
	logging.Info("------------------------------------------------------------")
	logging.Info("CONFIGURATION")
	logging.Info("------------------------------------------------------------")
	if c.ConfigFile != "" {
		logging.Info("  Config file:     %s", c.ConfigFile)
	}
	logging.Info("  Directory:       %s", c.Dir)
	logging.Info("  Formats:         %s", strings.Join(mediatypes.SupportedExtensions(), " "))
	logging.Info("  Cache:           %s", c.CacheDir)
	logging.Info("  Output:          %s", c.OutputDir)
	if c.NoLedger {
		logging.Info("  Ledger:          DISABLED")
	} else {
		logging.Info("  Ledger:          %s", c.Database)
	}
	logging.Info("  Thumbnails:      %dpx, quality %d, %s renderer", c.ThumbnailSize, c.JPEGQuality, c.Renderer)
	logging.Info("  Extractor:       %s", c.Extractor.Name)
	switch c.Algorithm {
	case cluster.AlgorithmKMeans:
		logging.Info("  Clustering:      kmeans fine=%d coarse=%d seed=%d", c.Fine.Clusters, c.Coarse.Clusters, c.Fine.Seed)
	default:
		logging.Info("  Clustering:      %s fine(eps=%g, min=%d) coarse(eps=%g, min=%d)",
			c.Algorithm, c.Fine.Eps, c.Fine.MinSamples, c.Coarse.Eps, c.Coarse.MinSamples)
	}
	logging.Info("  Keyword prefix:  %q", c.Prefix)
	logging.Info("  Dry run:         %v", c.DryRun)
	logging.Info("  Clear cache:     %v", c.ClearCache)
	logging.Info("  LOG_LEVEL:       %s", logging.GetLevel())
	logging.Info("")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		logging.Warn("Invalid boolean value for %s: %q, using default: %v", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		logging.Warn("Invalid integer value for %s: %q, using default: %d", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}
