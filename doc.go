// Command raw-organizer groups a directory of RAW photos by visual
// similarity and writes the groups into each photo's XMP sidecar as
// keywords, so any XMP-aware catalog can filter by them.
//
// # Usage
//
//	raw-organizer [flags] <directory>
//
// See [raw-organizer/internal/startup] for every flag, environment
// variable and YAML key.
//
// # Run Sequence
//
//  1. Memory configuration: sets GOMEMLIMIT from MEMORY_LIMIT if needed
//  2. Configuration: defaults, YAML file, .env and RAWORG_* variables, flags
//  3. Directory checks: cache, output and ledger directories are created
//     and tested for write access
//  4. Conversion: one thumbnail per RAW file, reused from the cache when
//     present; new renders pause while heap usage is critical
//  5. Embedding: one feature vector per thumbnail, saved as embeddings.npy
//     and meta.json
//  6. Clustering: fine and coarse groupings, saved as clusters_fine.json and
//     clusters_coarse.json; noise points join their nearest cluster
//  7. Sidecar merge: cluster keywords are added to <name>.xmp next to each
//     RAW file, keeping every other keyword and XMP property
//  8. Ledger: the run and its tag assignments are recorded in runs.db for
//     the rawtags command
//
// Every step is idempotent: rerunning on the same directory reuses the
// thumbnails and rewrites sidecars with identical content.
//
// # Metrics
//
// With -metrics-addr (or RAWORG_METRICS_ADDR) an HTTP listener serves
// /metrics, /healthz, /livez and /version for the duration of the run.
//
// # Interruption
//
// SIGINT and SIGTERM cancel the run. The cache mapping and any sidecars
// already written stay valid, so the next run continues from there.
//
// # Build Requirements
//
// CGO is required for SQLite. libvips is only used with -renderer vips.
//
// # Related Packages
//
//   - [raw-organizer/internal/pipeline]: stage orchestration
//   - [raw-organizer/internal/conversion]: thumbnail rendering pool
//   - [raw-organizer/internal/embedding]: feature extraction
//   - [raw-organizer/internal/cluster]: k-means and DBSCAN clustering
//   - [raw-organizer/internal/merge]: sidecar keyword merge
//   - [raw-organizer/internal/sidecar]: XMP reading and writing
//   - [raw-organizer/internal/database]: run ledger
package main
