package database

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

func record(t *testing.T, db *Database, root string, offset time.Duration, dryRun bool, assignments ...Assignment) string {
	t.Helper()
	run := &Run{
		Root:       root,
		StartedAt:  base.Add(offset),
		FinishedAt: base.Add(offset + time.Minute),
		DryRun:     dryRun,
		Model:      "grid",
		Images:     len(assignments),
	}
	id, err := db.RecordRun(context.Background(), run, assignments)
	require.NoError(t, err)
	return id
}

func fine(id string, n string) Assignment {
	return Assignment{Identity: id, Granularity: "fine", Tag: "fine_" + n, Keyword: "ai_cluster_fine_" + n}
}

func coarse(id string, n string) Assignment {
	return Assignment{Identity: id, Granularity: "coarse", Tag: "coarse_" + n, Keyword: "ai_cluster_coarse_" + n}
}

func TestRecordRun_AssignsUUID(t *testing.T) {
	db := setupTestDB(t)

	id := record(t, db, "/photos", 0, false, fine("a", "000"))
	_, err := uuid.Parse(id)
	assert.NoError(t, err)

	last, err := db.GetLastRun(context.Background())
	require.NoError(t, err)
	assert.True(t, base.Add(time.Minute).Equal(last))
}

func TestRecordRun_KeepsGivenID(t *testing.T) {
	db := setupTestDB(t)

	id, err := db.RecordRun(context.Background(), &Run{ID: "run-1", Root: "/p", StartedAt: base, FinishedAt: base}, nil)
	require.NoError(t, err)
	assert.Equal(t, "run-1", id)

	_, err = db.RecordRun(context.Background(), &Run{ID: "run-1", Root: "/p", StartedAt: base, FinishedAt: base}, nil)
	assert.Error(t, err, "duplicate run id")

	runs, err := db.ListRuns(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestRecordRun_DuplicateAssignmentsIgnored(t *testing.T) {
	db := setupTestDB(t)
	record(t, db, "/photos", 0, false, fine("a", "000"), fine("a", "000"))

	tags, err := db.TagsForImage(context.Background(), "/photos", "a")
	require.NoError(t, err)
	assert.Len(t, tags, 1)
}

func TestListRuns(t *testing.T) {
	db := setupTestDB(t)
	first := record(t, db, "/a", 0, false)
	second := record(t, db, "/b", time.Hour, true)
	third := record(t, db, "/a", 2*time.Hour, false)

	runs, err := db.ListRuns(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, []string{third, second, first}, []string{runs[0].ID, runs[1].ID, runs[2].ID})
	assert.True(t, runs[1].DryRun)
	assert.Equal(t, time.Minute, runs[0].Duration())
	assert.Equal(t, "grid", runs[0].Model)

	runs, err = db.ListRuns(context.Background(), 2)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestImagesWithTag_LatestRun(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	record(t, db, "/photos", 0, false, fine("a", "000"), fine("b", "000"))
	record(t, db, "/photos", time.Hour, false, fine("a", "001"), fine("b", "000"), fine("c", "000"))

	ids, err := db.ImagesWithTag(ctx, "/photos", "fine_000")
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, ids)

	ids, err = db.ImagesWithTag(ctx, "/photos", "ai_cluster_fine_001")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids)

	ids, err = db.ImagesWithTag(ctx, "/photos", "fine_999")
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestImagesWithTag_IgnoresDryRunsAndOtherRoots(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	record(t, db, "/photos", 0, false, fine("a", "000"))
	record(t, db, "/photos", time.Hour, true, fine("z", "000"))
	record(t, db, "/other", 2*time.Hour, false, fine("x", "000"))

	ids, err := db.ImagesWithTag(ctx, "/photos", "fine_000")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids)

	ids, err = db.ImagesWithTag(ctx, "", "fine_000")
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, ids)
}

func TestTagQueries_NoRuns(t *testing.T) {
	db := setupTestDB(t)

	_, err := db.ImagesWithTag(context.Background(), "/photos", "fine_000")
	assert.ErrorIs(t, err, ErrNoRuns)

	_, err = db.TagsForImage(context.Background(), "/photos", "a")
	assert.ErrorIs(t, err, ErrNoRuns)
}

func TestTagsForImage(t *testing.T) {
	db := setupTestDB(t)
	record(t, db, "/photos", 0, false, coarse("a", "001"), fine("a", "004"), fine("b", "000"))

	tags, err := db.TagsForImage(context.Background(), "/photos", "a")
	require.NoError(t, err)
	require.Len(t, tags, 2)
	assert.Equal(t, "fine_004", tags[0].Tag)
	assert.Equal(t, "ai_cluster_coarse_001", tags[1].Keyword)
	assert.NotEmpty(t, tags[0].RunID)
}
