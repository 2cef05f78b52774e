package cluster

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"raw-organizer/internal/embedding"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixedLabels is an Algorithm returning preset labels.
type fixedLabels struct {
	labels []int
	err    error
}

func (f *fixedLabels) Name() string { return "fixed" }

func (f *fixedLabels) FitPredict(_ context.Context, _ [][]float32) ([]int, error) {
	return f.labels, f.err
}

func embeddingsOf(vectors ...[]float32) []embedding.Embedding {
	out := make([]embedding.Embedding, len(vectors))
	for i, v := range vectors {
		out[i] = embedding.Embedding{ID: fmt.Sprintf("img%02d", i), Vector: v}
	}
	return out
}

// threeBlobs returns 10 points around three well separated centres.
func threeBlobs() []embedding.Embedding {
	return embeddingsOf(
		[]float32{0, 0}, []float32{0.1, 0}, []float32{0, 0.1}, []float32{0.1, 0.1},
		[]float32{10, 10}, []float32{10.1, 10}, []float32{10, 10.1},
		[]float32{-10, 10}, []float32{-10.1, 10}, []float32{-10, 10.1},
	)
}

func TestTag(t *testing.T) {
	assert.Equal(t, "fine_003", Tag(3, Fine))
	assert.Equal(t, "coarse_042", Tag(42, Coarse))
	assert.Equal(t, "cluster/fine/003", HierarchicalTag(3, Fine))
	assert.Equal(t, "cluster/coarse/042", HierarchicalTag(42, Coarse))
	assert.Equal(t, "fine_1234", Tag(1234, Fine))
}

func TestGranularity(t *testing.T) {
	assert.True(t, Fine.Valid())
	assert.True(t, Coarse.Valid())
	assert.False(t, Granularity(3).Valid())
	assert.Equal(t, "clusters_fine.json", Fine.FileName())
	assert.Equal(t, "clusters_coarse.json", Coarse.FileName())
}

func TestRun(t *testing.T) {
	out := filepath.Join(t.TempDir(), "clusters_fine.json")
	alg := &fixedLabels{labels: []int{1, 0, 1, 0}}

	res, err := Run(context.Background(), alg, embeddingsOf([]float32{1}, []float32{2}, []float32{3}, []float32{4}), Fine, out)
	require.NoError(t, err)

	require.Len(t, res.Clusters, 2)
	assert.Equal(t, Cluster{ID: 0, Granularity: Fine, ImageIDs: []string{"img01", "img03"}, Size: 2, Tag: "fine_000", HierarchicalTag: "cluster/fine/000"}, res.Clusters[0])
	assert.Equal(t, []string{"img00", "img02"}, res.Clusters[1].ImageIDs)
	assert.Equal(t, 4, res.TotalImages())
	assert.Equal(t, 2, res.NumClusters())
	assert.Equal(t, map[string][]string{
		"img00": {"fine_001"}, "img01": {"fine_000"}, "img02": {"fine_001"}, "img03": {"fine_000"},
	}, res.TagIndex())
	assert.Equal(t, []string{"fine_001"}, res.TagsFor("img02"))
	assert.Nil(t, res.TagsFor("unknown"))

	loaded, err := LoadFile(out)
	require.NoError(t, err)
	assert.Equal(t, res.Clusters, loaded.Clusters)
	assert.Equal(t, Fine, loaded.Granularity)
	assert.Equal(t, "fixed", loaded.Algorithm)
}

func TestRun_FileFormat(t *testing.T) {
	out := filepath.Join(t.TempDir(), "nested", "clusters_coarse.json")
	_, err := Run(context.Background(), &fixedLabels{labels: []int{0, 0}}, embeddingsOf([]float32{1}, []float32{2}), Coarse, out)
	require.NoError(t, err)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"clusters": [{"cluster_id": 0, "granularity": 2, "image_ids": ["img00", "img01"], "size": 2,
		              "tag": "coarse_000", "hierarchical_tag": "cluster/coarse/000"}],
		"total_images": 2,
		"num_clusters": 1,
		"granularity": 2,
		"algorithm": "fixed"
	}`, string(data))
}

func TestRun_NoiseIsReassigned(t *testing.T) {
	emb := embeddingsOf([]float32{0, 0}, []float32{0, 1}, []float32{10, 10}, []float32{9, 9}, []float32{1, 0})
	alg := &fixedLabels{labels: []int{0, 0, 1, Noise, Noise}}

	res, err := Run(context.Background(), alg, emb, Fine, filepath.Join(t.TempDir(), "c.json"))
	require.NoError(t, err)

	index := res.TagIndex()
	assert.Equal(t, []string{"fine_001"}, index["img03"])
	assert.Equal(t, []string{"fine_000"}, index["img04"])
	for _, c := range res.Clusters {
		assert.GreaterOrEqual(t, c.ID, 0)
	}
	assert.Equal(t, 5, res.TotalImages())
}

func TestRun_Errors(t *testing.T) {
	dir := t.TempDir()
	ok := &fixedLabels{labels: []int{0, 0}}

	_, err := Run(context.Background(), ok, embeddingsOf([]float32{1}, []float32{2}), Granularity(0), filepath.Join(dir, "a.json"))
	assert.ErrorIs(t, err, ErrInvalidGranularity)

	_, err = Run(context.Background(), ok, embeddingsOf([]float32{1}, []float32{2, 3}), Fine, filepath.Join(dir, "b.json"))
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	_, err = Run(context.Background(), ok, embeddingsOf([]float32{}, []float32{}), Fine, filepath.Join(dir, "c.json"))
	assert.ErrorIs(t, err, embedding.ErrEmptyVector)

	dup := []embedding.Embedding{{ID: "a", Vector: []float32{1}}, {ID: "a", Vector: []float32{2}}}
	_, err = Run(context.Background(), ok, dup, Fine, filepath.Join(dir, "d.json"))
	assert.ErrorIs(t, err, ErrDuplicateID)

	_, err = Run(context.Background(), &fixedLabels{labels: []int{0}}, embeddingsOf([]float32{1}, []float32{2}), Fine, filepath.Join(dir, "e.json"))
	assert.ErrorIs(t, err, ErrLabelCount)

	_, err = Run(context.Background(), &fixedLabels{labels: []int{-2, 0}}, embeddingsOf([]float32{1}, []float32{2}), Fine, filepath.Join(dir, "g.json"))
	assert.ErrorIs(t, err, ErrInvalidLabel)
	assert.NoFileExists(t, filepath.Join(dir, "g.json"))

	boom := errors.New("boom")
	_, err = Run(context.Background(), &fixedLabels{err: boom}, embeddingsOf([]float32{1}), Fine, filepath.Join(dir, "f.json"))
	assert.ErrorIs(t, err, boom)
}

func TestRun_Empty(t *testing.T) {
	out := filepath.Join(t.TempDir(), "c.json")
	res, err := Run(context.Background(), NewKMeans(3, 42), nil, Fine, out)
	require.NoError(t, err)
	assert.Zero(t, res.NumClusters())
	assert.Empty(t, res.TagIndex())

	loaded, err := LoadFile(out)
	require.NoError(t, err)
	assert.Empty(t, loaded.Clusters)
	assert.Equal(t, Fine, loaded.Granularity)
}

func TestRun_EndToEndDeterministic(t *testing.T) {
	dir := t.TempDir()
	emb := threeBlobs()

	first, err := Run(context.Background(), NewKMeans(3, 42), emb, Fine, filepath.Join(dir, "a.json"))
	require.NoError(t, err)
	second, err := Run(context.Background(), NewKMeans(3, 42), emb, Fine, filepath.Join(dir, "b.json"))
	require.NoError(t, err)

	assert.Equal(t, 3, first.NumClusters())
	assert.Equal(t, 10, first.TotalImages())
	assert.Equal(t, first.Clusters, second.Clusters)

	index := first.TagIndex()
	assert.Equal(t, index["img00"], index["img03"])
	assert.Equal(t, index["img04"], index["img06"])
	assert.NotEqual(t, index["img00"], index["img04"])
	assert.NotEqual(t, index["img04"], index["img07"])
}

func TestStats(t *testing.T) {
	res := &Result{Clusters: []Cluster{{Size: 1}, {Size: 5}, {Size: 3}}}
	assert.Equal(t, Stats{Min: 1, Max: 5, Mean: 3}, res.Stats())
	assert.Equal(t, Stats{}, (&Result{}).Stats())
}

func TestLoadFile_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadFile(filepath.Join(dir, "missing.json"))
	assert.True(t, os.IsNotExist(err))

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{"), 0o644))
	_, err = LoadFile(bad)
	assert.Error(t, err)

	noGranularity := filepath.Join(dir, "nog.json")
	require.NoError(t, os.WriteFile(noGranularity, []byte(`{"clusters": []}`), 0o644))
	_, err = LoadFile(noGranularity)
	assert.ErrorIs(t, err, ErrInvalidGranularity)
}
