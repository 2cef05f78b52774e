/*
Package workers sizes the worker pools used by the conversion, embedding and
sidecar-merge stages.

Go 1.19+ sets GOMAXPROCS from the container CPU limit, while runtime.NumCPU
still reports the host count. Pool sizes are therefore derived from
GOMAXPROCS:

	numWorkers := workers.ForCPU(8) // RAW decoding, max 8 workers

For a batch of known size use ForTasks, which also bounds the pool by the
number of tasks so a three-file run never starts sixteen workers:

	n := workers.ForTasks(cfg.Workers, len(images))

# Environment

RAWORG_WORKERS pins the worker count for every pool (still capped by the
limit passed to Count).
*/
package workers
