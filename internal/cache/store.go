package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"raw-organizer/internal/filesystem"
	"raw-organizer/internal/identity"
	"raw-organizer/internal/logging"
	"raw-organizer/internal/metrics"
)

const (
	// DefaultDirName is the cache directory created inside the scan root.
	DefaultDirName = ".cache"
	// MappingFileName holds the source → thumbnail mapping.
	MappingFileName = "mapping.json"
	// LockFileName guards read-modify-write cycles on the mapping file.
	LockFileName = "mapping.lock"
	// ThumbnailDirName is where rendered thumbnails are stored.
	ThumbnailDirName = "thumbnails"

	// LockAttempts is the total number of tries Record makes.
	LockAttempts = 5
	// LockInitialBackoff is the first wait between tries; it doubles.
	LockInitialBackoff = 100 * time.Millisecond
)

var (
	// ErrLockContended is returned when another writer holds the mapping lock.
	ErrLockContended = errors.New("cache mapping lock contended")
	// ErrRetriesExhausted is returned when Record gives up.
	ErrRetriesExhausted = errors.New("cache mapping update retries exhausted")
	// ErrUnsafeClear is returned when clearing would remove the scan root.
	ErrUnsafeClear = errors.New("refusing to clear cache that contains the scan root")
)

var log = logging.Prefixed("cache")

// Mapping maps root-relative source paths to cache-relative thumbnail paths.
// Both use "/" separators.
type Mapping map[string]string

// Store is the persistent mapping from source images to their thumbnails.
// It is safe for concurrent use by goroutines of one process and by several
// processes sharing the same cache directory.
type Store struct {
	root string
	dir  string

	// mu serializes writers within this process; the lock file serializes
	// writers across processes.
	mu        sync.Mutex
	lockRetry filesystem.RetryConfig
}

// New returns a Store for images under root. An empty dir selects
// <root>/.cache.
func New(root, dir string) *Store {
	if dir == "" {
		dir = filepath.Join(root, DefaultDirName)
	}
	return &Store{
		root: root,
		dir:  dir,
		lockRetry: filesystem.RetryConfig{
			MaxRetries:     LockAttempts - 1,
			InitialBackoff: LockInitialBackoff,
			MaxBackoff:     LockInitialBackoff << (LockAttempts - 2),
		},
	}
}

// Root returns the scan root source keys are relative to.
func (s *Store) Root() string { return s.root }

// Dir returns the cache directory.
func (s *Store) Dir() string { return s.dir }

// ThumbnailDir returns the directory thumbnails are rendered into.
func (s *Store) ThumbnailDir() string { return filepath.Join(s.dir, ThumbnailDirName) }

// MappingPath returns the mapping file location.
func (s *Store) MappingPath() string { return filepath.Join(s.dir, MappingFileName) }

// LockPath returns the lock file location.
func (s *Store) LockPath() string { return filepath.Join(s.dir, LockFileName) }

// Initialize creates the cache tree and an empty mapping file if none exists.
// It is safe to call on every run.
func (s *Store) Initialize() error {
	if err := os.MkdirAll(s.ThumbnailDir(), 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}

	if _, err := os.Stat(s.MappingPath()); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("stat mapping: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.withLock(context.Background(), func() error {
		// Another process may have created it while we waited.
		if _, err := os.Stat(s.MappingPath()); err == nil {
			return nil
		}
		return s.persist(Mapping{})
	})
}

// Load reads the mapping file. A missing file yields an empty mapping. A
// corrupt file is deleted and also yields an empty mapping, so damage to the
// cache only costs recomputation.
func (s *Store) Load() (Mapping, error) {
	data, err := os.ReadFile(s.MappingPath())
	if err != nil {
		if os.IsNotExist(err) {
			return Mapping{}, nil
		}
		return nil, fmt.Errorf("read mapping: %w", err)
	}

	var m Mapping
	if err := json.Unmarshal(data, &m); err != nil {
		log.Warn("mapping file %s is corrupt, discarding: %v", s.MappingPath(), err)
		metrics.CacheCorruptionsTotal.Inc()
		if rmErr := os.Remove(s.MappingPath()); rmErr != nil && !os.IsNotExist(rmErr) {
			log.Warn("failed to remove corrupt mapping: %v", rmErr)
		}
		return Mapping{}, nil
	}
	if m == nil {
		m = Mapping{}
	}
	return m, nil
}

// All returns a copy of the current mapping.
func (s *Store) All() (Mapping, error) {
	return s.Load()
}

// Record stores source → thumbnail. Both paths are made relative (source to
// the scan root, thumbnail to the cache dir); if either lies outside its root
// the call does nothing. The update runs under the mapping lock: reload,
// insert, persist. Transient failures are retried LockAttempts times with
// doubling backoff; exhaustion returns ErrRetriesExhausted.
func (s *Store) Record(ctx context.Context, source, thumbnail string) error {
	srcKey, ok := identity.Relative(source, s.root)
	if !ok {
		log.Debug("dropping mapping for %s: not under %s", source, s.root)
		metrics.CacheMappingWrites.WithLabelValues("dropped").Inc()
		return nil
	}
	thumbRel, ok := identity.Relative(thumbnail, s.dir)
	if !ok {
		log.Debug("dropping mapping for %s: thumbnail %s not under %s", source, thumbnail, s.dir)
		metrics.CacheMappingWrites.WithLabelValues("dropped").Inc()
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.withLock(ctx, func() error {
		m, err := s.Load()
		if err != nil {
			return err
		}
		m[srcKey] = thumbRel
		return s.persist(m)
	})
	if err != nil {
		metrics.CacheMappingWrites.WithLabelValues("error").Inc()
		return fmt.Errorf("record %s: %w", srcKey, err)
	}

	metrics.CacheMappingWrites.WithLabelValues("success").Inc()
	return nil
}

// withLock runs fn while holding the cross-process mapping lock, retrying the
// whole sequence on failure. Callers hold s.mu.
func (s *Store) withLock(ctx context.Context, fn func() error) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}

	attempt := 0
	err := filesystem.Retry(ctx, "lock", s.LockPath(), s.lockRetry, nil, func() error {
		if attempt > 0 {
			metrics.CacheLockRetries.Inc()
		}
		attempt++

		lock, err := filesystem.OpenLockFile(s.LockPath())
		if err != nil {
			return err
		}
		defer func() {
			if err := lock.Close(); err != nil {
				log.Warn("failed to close lock file: %v", err)
			}
		}()

		if err := lock.TryLock(); err != nil {
			if errors.Is(err, filesystem.ErrLockHeld) {
				return ErrLockContended
			}
			return err
		}

		held := time.Now()
		defer func() {
			if err := lock.Unlock(); err != nil {
				log.Warn("failed to release mapping lock: %v", err)
			}
			metrics.CacheLockHoldDuration.Observe(time.Since(held).Seconds())
		}()

		return fn()
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, attempt, err)
	}
	return nil
}

func (s *Store) persist(m Mapping) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return filesystem.WriteFileAtomic(s.MappingPath(), data, 0o644)
}

// Lookup returns the absolute thumbnail path recorded for source, provided
// the thumbnail file still exists. It takes no lock; a stale read only causes
// a recomputation.
func (s *Store) Lookup(source string) (string, bool) {
	m, err := s.Load()
	if err != nil {
		log.Debug("lookup %s: %v", source, err)
		metrics.CacheLookups.WithLabelValues("miss").Inc()
		return "", false
	}
	return s.LookupIn(m, source)
}

// LookupIn is Lookup against a mapping loaded earlier, so a batch reads
// mapping.json once instead of once per image.
func (s *Store) LookupIn(m Mapping, source string) (string, bool) {
	key, ok := identity.Relative(source, s.root)
	if !ok {
		metrics.CacheLookups.WithLabelValues("miss").Inc()
		return "", false
	}

	rel, ok := m[key]
	if !ok {
		metrics.CacheLookups.WithLabelValues("miss").Inc()
		return "", false
	}

	thumb := filepath.Join(s.dir, filepath.FromSlash(rel))
	if _, err := os.Stat(thumb); err != nil {
		metrics.CacheLookups.WithLabelValues("miss").Inc()
		return "", false
	}

	metrics.CacheLookups.WithLabelValues("hit").Inc()
	return thumb, true
}

// Exists reports whether a mapping entry exists for source, whether or not
// the thumbnail file is still present.
func (s *Store) Exists(source string) bool {
	key, ok := identity.Relative(source, s.root)
	if !ok {
		return false
	}
	m, err := s.Load()
	if err != nil {
		return false
	}
	_, ok = m[key]
	return ok
}

// Clear removes the cache directory and everything in it.
func (s *Store) Clear() error {
	absDir, err := filepath.Abs(s.dir)
	if err != nil {
		return err
	}
	absRoot, err := filepath.Abs(s.root)
	if err != nil {
		return err
	}
	if absDir == absRoot {
		return ErrUnsafeClear
	}
	if _, inside := identity.Relative(absRoot, absDir); inside {
		return ErrUnsafeClear
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.RemoveAll(s.dir); err != nil {
		return fmt.Errorf("clear cache: %w", err)
	}
	log.Info("cleared cache %s", s.dir)
	return nil
}
