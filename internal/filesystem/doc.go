/*
Package filesystem provides resilient filesystem operations for photo folders
that may live on network shares.

# Retry

Retry runs an operation with exponential backoff. The caller decides which
errors are worth another attempt; StatWithRetry and ReadFileWithRetry retry
NFS stale file handle errors (ESTALE) only. The cache package uses Retry to
acquire its mapping lock.

	data, err := filesystem.ReadFileWithRetry(path, filesystem.DefaultRetryConfig())

Defaults:
  - MaxRetries: 3
  - InitialBackoff: 50ms
  - MaxBackoff: 500ms

# Atomic writes

WriteFileAtomic and SaveAtomic write to a temp file in the target directory,
fsync it and rename it over the destination. Readers never observe a
half-written mapping, sidecar or cluster file.

# Locks

LockFile wraps flock(2) on Unix and LockFileEx on Windows. TryLock never
blocks; it returns ErrLockHeld when another process owns the lock.

# Metrics

Operations are reported through an Observer installed with SetObserver.
Paths are labeled with a volume name ("source", "cache", "output") resolved
by the VolumeResolver installed with SetDefaultVolumeResolver.
*/
package filesystem
