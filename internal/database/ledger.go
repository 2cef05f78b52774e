package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrNoRuns is returned by tag queries when no applied run exists for the
// requested root.
var ErrNoRuns = errors.New("no runs recorded")

// RecordRun stores run and its assignments in one transaction. A missing
// run ID is filled with a new UUID, which is returned.
func (d *Database) RecordRun(ctx context.Context, run *Run, assignments []Assignment) (string, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("record_run", start, err) }()

	if run.ID == "" {
		run.ID = uuid.NewString()
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	tx, txStart, err := d.beginBatch(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	err = insertRun(ctx, tx, run, assignments)
	if err = d.endBatch(tx, txStart, err); err != nil {
		return "", err
	}

	err = d.setMetadata(ctx, lastRunKey, run.FinishedAt.UTC().Format(time.RFC3339))
	return run.ID, err
}

func insertRun(ctx context.Context, tx *sql.Tx, run *Run, assignments []Assignment) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO runs (id, root, started_at, finished_at, dry_run, model,
			images, thumbnails, cache_hits, embeddings, dimension,
			fine_clusters, coarse_clusters,
			sidecars_updated, sidecars_planned, sidecars_failed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID, run.Root, run.StartedAt.UnixMilli(), run.FinishedAt.UnixMilli(), run.DryRun, run.Model,
		run.Images, run.Thumbnails, run.CacheHits, run.Embeddings, run.Dimension,
		run.FineClusters, run.CoarseClusters,
		run.Updated, run.Planned, run.Failed,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	if len(assignments) == 0 {
		return nil
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO assignments (run_id, identity, granularity, tag, keyword)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare assignment insert: %w", err)
	}
	defer stmt.Close()

	for _, a := range assignments {
		if _, err := stmt.ExecContext(ctx, run.ID, a.Identity, a.Granularity, a.Tag, a.Keyword); err != nil {
			return fmt.Errorf("failed to insert assignment %s/%s: %w", a.Identity, a.Tag, err)
		}
	}
	return nil
}

// ListRuns returns up to limit runs, newest first. limit <= 0 returns all.
func (d *Database) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("list_runs", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if limit <= 0 {
		limit = -1
	}

	rows, err := d.db.QueryContext(ctx, `
		SELECT id, root, started_at, finished_at, dry_run, model,
			images, thumbnails, cache_hits, embeddings, dimension,
			fine_clusters, coarse_clusters,
			sidecars_updated, sidecars_planned, sidecars_failed
		FROM runs
		ORDER BY started_at DESC, id
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var started, finished int64
		if err = rows.Scan(
			&r.ID, &r.Root, &started, &finished, &r.DryRun, &r.Model,
			&r.Images, &r.Thumbnails, &r.CacheHits, &r.Embeddings, &r.Dimension,
			&r.FineClusters, &r.CoarseClusters,
			&r.Updated, &r.Planned, &r.Failed,
		); err != nil {
			return nil, err
		}
		r.StartedAt = time.UnixMilli(started)
		r.FinishedAt = time.UnixMilli(finished)
		runs = append(runs, r)
	}
	err = rows.Err()
	return runs, err
}

// latestRunID returns the newest run that wrote sidecars under root, or the
// newest such run overall when root is empty. Dry runs are ignored since
// their tags never reached disk.
func (d *Database) latestRunID(ctx context.Context, root string) (string, error) {
	var id string
	err := d.db.QueryRowContext(ctx, `
		SELECT id FROM runs
		WHERE dry_run = 0 AND (? = '' OR root = ?)
		ORDER BY started_at DESC, id DESC
		LIMIT 1
	`, root, root).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNoRuns
	}
	return id, err
}

// ImagesWithTag returns the identities carrying tag in the latest run for
// root. tag may be a cluster tag (fine_003) or its keyword
// (ai_cluster_fine_003).
func (d *Database) ImagesWithTag(ctx context.Context, root, tag string) ([]string, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("images_with_tag", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	runID, err := d.latestRunID(ctx, root)
	if err != nil {
		return nil, err
	}

	rows, err := d.db.QueryContext(ctx, `
		SELECT DISTINCT identity FROM assignments
		WHERE run_id = ? AND (tag = ? OR keyword = ?)
		ORDER BY identity
	`, runID, tag, tag)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err = rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	err = rows.Err()
	return ids, err
}

// TagsForImage returns the assignments of one identity in the latest run
// for root, fine before coarse.
func (d *Database) TagsForImage(ctx context.Context, root, identity string) ([]Assignment, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("tags_for_image", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	runID, err := d.latestRunID(ctx, root)
	if err != nil {
		return nil, err
	}

	rows, err := d.db.QueryContext(ctx, `
		SELECT run_id, identity, granularity, tag, keyword FROM assignments
		WHERE run_id = ? AND identity = ?
		ORDER BY CASE granularity WHEN 'fine' THEN 0 ELSE 1 END, tag
	`, runID, identity)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Assignment
	for rows.Next() {
		var a Assignment
		if err = rows.Scan(&a.RunID, &a.Identity, &a.Granularity, &a.Tag, &a.Keyword); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	err = rows.Err()
	return out, err
}
