// Package startup loads the organize configuration and prints the startup
// banner, system information and directory checks.
//
// Configuration is layered; each layer overrides the one before it:
//
//  1. built-in defaults ([Defaults])
//  2. a YAML file given with -config or RAWORG_CONFIG
//  3. the environment, after loading a .env file (-env-file, default ".env")
//  4. command-line flags and the positional directory argument
//
// # Environment Variables
//
//   - RAWORG_DIR, RAWORG_CACHE_DIR, RAWORG_OUTPUT_DIR, RAWORG_DB
//   - RAWORG_SIZE, RAWORG_JPEG_QUALITY, RAWORG_RENDERER (preview|vips)
//   - RAWORG_MERGE_WORKERS (RAWORG_WORKERS is read by package workers)
//   - RAWORG_ALGORITHM (kmeans|dbscan), RAWORG_CLUSTERS_FINE,
//     RAWORG_CLUSTERS_COARSE, RAWORG_SEED
//   - RAWORG_EXTRACTOR (grid|command), RAWORG_EXTRACTOR_CMD, RAWORG_MODEL
//   - RAWORG_PREFIX (may be set to the empty string), RAWORG_DRY_RUN,
//     RAWORG_CLEAR_CACHE, RAWORG_NO_LEDGER
//   - RAWORG_METRICS_ADDR, RAWORG_LOG_LEVEL
//
// # YAML
//
//	dir: /photos/2024
//	thumbnail_size: 768
//	algorithm: kmeans
//	fine:
//	  clusters: 40
//	  seed: 7
//	coarse:
//	  clusters: 12
//	extractor:
//	  name: command
//	  command: [python3, embed.py]
//	  model: resnet50
//	  timeout: 90s
//	prefix: ai          # keywords ai_cluster_fine_003; omit to write fine_003
package startup
