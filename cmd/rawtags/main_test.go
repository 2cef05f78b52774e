package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"raw-organizer/internal/cache"
	"raw-organizer/internal/database"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seedLedger writes one applied run and one later dry run for root.
func seedLedger(t *testing.T, path, root string) {
	t.Helper()
	ctx := context.Background()

	db, err := database.New(ctx, path)
	require.NoError(t, err)
	defer db.Close()

	started := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	_, err = db.RecordRun(ctx, &database.Run{
		ID:             "run-applied",
		Root:           root,
		StartedAt:      started,
		FinishedAt:     started.Add(3 * time.Second),
		Model:          "grid",
		Images:         3,
		FineClusters:   2,
		CoarseClusters: 1,
		Updated:        3,
	}, []database.Assignment{
		{Identity: "trip/IMG_0001", Granularity: "fine", Tag: "fine_000", Keyword: "ai_cluster_fine_000"},
		{Identity: "trip/IMG_0001", Granularity: "coarse", Tag: "coarse_000", Keyword: "ai_cluster_coarse_000"},
		{Identity: "trip/IMG_0002", Granularity: "fine", Tag: "fine_000", Keyword: "ai_cluster_fine_000"},
		{Identity: "IMG_0003", Granularity: "fine", Tag: "fine_001", Keyword: "ai_cluster_fine_001"},
	})
	require.NoError(t, err)

	_, err = db.RecordRun(ctx, &database.Run{
		ID:         "run-dry",
		Root:       root,
		StartedAt:  started.Add(time.Hour),
		FinishedAt: started.Add(time.Hour + time.Second),
		DryRun:     true,
		Model:      "grid",
		Planned:    3,
	}, []database.Assignment{
		{Identity: "trip/IMG_0001", Granularity: "fine", Tag: "fine_009", Keyword: "ai_cluster_fine_009"},
	})
	require.NoError(t, err)
}

func runCmd(t *testing.T, args ...string) (code int, stdout, stderr string) {
	t.Helper()
	t.Setenv("RAWORG_DB", "")
	var out, errOut bytes.Buffer
	code = run(context.Background(), args, &out, &errOut)
	return code, out.String(), errOut.String()
}

func setup(t *testing.T) (root, dbPath string) {
	t.Helper()
	root = t.TempDir()
	dbPath = filepath.Join(root, cache.DefaultDirName, database.DefaultFileName)
	require.NoError(t, os.MkdirAll(filepath.Dir(dbPath), 0o755))
	seedLedger(t, dbPath, root)
	return root, dbPath
}

func TestRuns(t *testing.T) {
	root, _ := setup(t)

	code, out, _ := runCmd(t, "-root", root, "runs")
	require.Equal(t, 0, code)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 5)
	assert.True(t, strings.HasPrefix(lines[0], "ID"))
	assert.True(t, strings.HasPrefix(lines[1], "run-dry"), "newest first")
	assert.Contains(t, lines[1], "3 (dry run)")
	assert.True(t, strings.HasPrefix(lines[2], "run-applied"))
	assert.Contains(t, lines[2], "2/1")
	assert.Empty(t, lines[3])
	assert.True(t, strings.HasPrefix(lines[4], "Last run finished"))
}

func TestRuns_Limit(t *testing.T) {
	root, _ := setup(t)

	code, out, _ := runCmd(t, "-root", root, "-n", "1", "runs")
	require.Equal(t, 0, code)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[1], "run-dry"))
}

func TestFind(t *testing.T) {
	root, _ := setup(t)

	for _, tag := range []string{"fine_000", "ai_cluster_fine_000"} {
		code, out, _ := runCmd(t, "-root", root, "find", tag)
		require.Equal(t, 0, code)
		assert.Equal(t, "trip/IMG_0001\ntrip/IMG_0002\n", out, tag)
	}
}

func TestFind_IgnoresDryRun(t *testing.T) {
	root, _ := setup(t)

	code, out, _ := runCmd(t, "-root", root, "find", "fine_009")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "No images tagged fine_009")
}

func TestTags(t *testing.T) {
	root, _ := setup(t)

	code, out, _ := runCmd(t, "-root", root, "tags", "trip/IMG_0001.CR2")
	require.Equal(t, 0, code)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, []string{"fine", "fine_000", "ai_cluster_fine_000"}, strings.Fields(lines[0]))
	assert.Equal(t, []string{"coarse", "coarse_000", "ai_cluster_coarse_000"}, strings.Fields(lines[1]))
}

func TestExplicitDB(t *testing.T) {
	root := t.TempDir()
	dbPath := filepath.Join(t.TempDir(), "ledger.db")
	seedLedger(t, dbPath, root)

	code, out, _ := runCmd(t, "-db", dbPath, "tags", "IMG_0003")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "fine_001")
}

func TestOtherRoot(t *testing.T) {
	_, dbPath := setup(t)

	code, _, errOut := runCmd(t, "-db", dbPath, "-root", t.TempDir(), "find", "fine_000")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "No applied runs")
}

func TestMissingLedger(t *testing.T) {
	code, _, errOut := runCmd(t, "-root", t.TempDir(), "runs")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "no run ledger")
}

func TestUsageErrors(t *testing.T) {
	root, _ := setup(t)

	tests := []struct {
		name string
		args []string
	}{
		{"no command", []string{"-root", root}},
		{"unknown command", []string{"-root", root, "drop;tables"}},
		{"find without tag", []string{"-root", root, "find"}},
		{"tags with extra args", []string{"-root", root, "tags", "a", "b"}},
		{"bad flag", []string{"-limit", "3"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, _ := runCmd(t, tt.args...)
			assert.Equal(t, 2, code)
		})
	}
}

func TestHelp(t *testing.T) {
	code, _, errOut := runCmd(t, "-h")
	assert.Equal(t, 0, code)
	assert.Contains(t, errOut, "Usage: rawtags")
}

func TestSanitizeCommand(t *testing.T) {
	assert.Equal(t, "runs", sanitizeCommand("runs"))
	assert.Equal(t, "drop_tables", sanitizeCommand("drop;tables"))
	assert.Equal(t, "a_b", sanitizeCommand("a\nb"))
}
