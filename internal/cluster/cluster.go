package cluster

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"raw-organizer/internal/embedding"
	"raw-organizer/internal/filesystem"
	"raw-organizer/internal/logging"
	"raw-organizer/internal/metrics"
)

var log = logging.Prefixed("cluster")

var (
	// ErrInvalidGranularity is returned for granularities other than Fine and Coarse.
	ErrInvalidGranularity = errors.New("invalid granularity")
	// ErrDimensionMismatch is returned when embeddings differ in length.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	// ErrDuplicateID is returned when two embeddings share an identity.
	ErrDuplicateID = errors.New("duplicate image identity")
)

// Granularity is the clustering resolution.
type Granularity int

const (
	// Fine produces many small clusters.
	Fine Granularity = 1
	// Coarse produces few large clusters.
	Coarse Granularity = 2
)

// Level returns the word used in tags: "fine" or "coarse".
func (g Granularity) Level() string {
	switch g {
	case Fine:
		return "fine"
	case Coarse:
		return "coarse"
	default:
		return fmt.Sprintf("level%d", int(g))
	}
}

// Valid reports whether g is Fine or Coarse.
func (g Granularity) Valid() bool {
	return g == Fine || g == Coarse
}

// FileName returns the default output file name for g.
func (g Granularity) FileName() string {
	return "clusters_" + g.Level() + ".json"
}

// Tag returns the canonical tag of cluster id at g, e.g. "fine_003".
func Tag(id int, g Granularity) string {
	return fmt.Sprintf("%s_%03d", g.Level(), id)
}

// HierarchicalTag returns the hierarchical form of Tag, e.g. "cluster/fine/003".
func HierarchicalTag(id int, g Granularity) string {
	return fmt.Sprintf("cluster/%s/%03d", g.Level(), id)
}

// Cluster is a group of images sharing a label at one granularity.
type Cluster struct {
	ID              int         `json:"cluster_id"`
	Granularity     Granularity `json:"granularity"`
	ImageIDs        []string    `json:"image_ids"`
	Size            int         `json:"size"`
	Tag             string      `json:"tag"`
	HierarchicalTag string      `json:"hierarchical_tag"`
}

// Result is the outcome of clustering one batch at one granularity.
type Result struct {
	Granularity Granularity
	Algorithm   string
	Clusters    []Cluster
}

// TagIndex maps each identity to its tags, in cluster order.
func (r *Result) TagIndex() map[string][]string {
	index := make(map[string][]string)
	for _, c := range r.Clusters {
		for _, id := range c.ImageIDs {
			index[id] = append(index[id], c.Tag)
		}
	}
	return index
}

// TagsFor returns the tags of one identity.
func (r *Result) TagsFor(id string) []string {
	var tags []string
	for _, c := range r.Clusters {
		for _, member := range c.ImageIDs {
			if member == id {
				tags = append(tags, c.Tag)
				break
			}
		}
	}
	return tags
}

// TotalImages returns the number of clustered images.
func (r *Result) TotalImages() int {
	total := 0
	for _, c := range r.Clusters {
		total += c.Size
	}
	return total
}

// NumClusters returns the number of clusters.
func (r *Result) NumClusters() int {
	return len(r.Clusters)
}

// Stats summarizes cluster sizes.
type Stats struct {
	Min  int
	Max  int
	Mean float64
}

// Stats returns size statistics; all zero for an empty result.
func (r *Result) Stats() Stats {
	if len(r.Clusters) == 0 {
		return Stats{}
	}
	s := Stats{Min: r.Clusters[0].Size, Max: r.Clusters[0].Size}
	for _, c := range r.Clusters {
		if c.Size < s.Min {
			s.Min = c.Size
		}
		if c.Size > s.Max {
			s.Max = c.Size
		}
	}
	s.Mean = float64(r.TotalImages()) / float64(len(r.Clusters))
	return s
}

// Run clusters embeddings at granularity g with alg, reassigns noise points
// to their nearest cluster, writes the clusters to outputPath and returns
// them. An empty batch produces an empty result.
func Run(ctx context.Context, alg Algorithm, embeddings []embedding.Embedding, g Granularity, outputPath string) (*Result, error) {
	if !g.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidGranularity, int(g))
	}
	start := time.Now()

	matrix, ids, err := stack(embeddings)
	if err != nil {
		return nil, err
	}

	result := &Result{Granularity: g, Algorithm: alg.Name()}
	if len(matrix) > 0 {
		labels, err := alg.FitPredict(ctx, matrix)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", alg.Name(), err)
		}
		if len(labels) != len(matrix) {
			return nil, fmt.Errorf("%s: %w: got %d for %d rows", alg.Name(), ErrLabelCount, len(labels), len(matrix))
		}
		for i, l := range labels {
			if l < Noise {
				return nil, fmt.Errorf("%s: %w: %d for %s", alg.Name(), ErrInvalidLabel, l, ids[i])
			}
		}

		labels, moved := ReassignNoise(matrix, labels)
		if moved > 0 {
			log.Info("%s: reassigned %d noise points to nearest clusters", g.Level(), moved)
			metrics.NoiseReassignedTotal.WithLabelValues(g.Level()).Add(float64(moved))
		}
		result.Clusters = group(ids, labels, g)
	}

	if err := SaveFile(outputPath, result); err != nil {
		return nil, err
	}

	metrics.ClustersTotal.WithLabelValues(g.Level()).Set(float64(result.NumClusters()))
	st := result.Stats()
	log.Info("%s: %d images in %d clusters (size min %d, max %d, mean %.1f) in %v",
		g.Level(), result.TotalImages(), result.NumClusters(), st.Min, st.Max, st.Mean, time.Since(start))
	return result, nil
}

// stack builds the N×D matrix and parallel identity list.
func stack(embeddings []embedding.Embedding) ([][]float32, []string, error) {
	matrix := make([][]float32, len(embeddings))
	ids := make([]string, len(embeddings))
	seen := make(map[string]bool, len(embeddings))

	for i, e := range embeddings {
		if i > 0 && len(e.Vector) != len(matrix[0]) {
			return nil, nil, fmt.Errorf("%w: %s has %d values, expected %d",
				ErrDimensionMismatch, e.ID, len(e.Vector), len(matrix[0]))
		}
		if len(e.Vector) == 0 {
			return nil, nil, fmt.Errorf("%w: %s", embedding.ErrEmptyVector, e.ID)
		}
		if seen[e.ID] {
			return nil, nil, fmt.Errorf("%w: %s", ErrDuplicateID, e.ID)
		}
		seen[e.ID] = true
		matrix[i] = e.Vector
		ids[i] = e.ID
	}
	return matrix, ids, nil
}

// group turns labels into clusters ordered by id; members keep row order.
func group(ids []string, labels []int, g Granularity) []Cluster {
	members := make(map[int][]string)
	for i, l := range labels {
		members[l] = append(members[l], ids[i])
	}

	clusters := make([]Cluster, 0, len(members))
	for id, m := range members {
		clusters = append(clusters, Cluster{
			ID:              id,
			Granularity:     g,
			ImageIDs:        m,
			Size:            len(m),
			Tag:             Tag(id, g),
			HierarchicalTag: HierarchicalTag(id, g),
		})
	}
	sort.Slice(clusters, func(i, j int) bool { return clusters[i].ID < clusters[j].ID })
	return clusters
}

// fileFormat is the on-disk cluster document.
type fileFormat struct {
	Clusters    []Cluster   `json:"clusters"`
	TotalImages int         `json:"total_images"`
	NumClusters int         `json:"num_clusters"`
	Granularity Granularity `json:"granularity"`
	Algorithm   string      `json:"algorithm,omitempty"`
}

// SaveFile writes r to path atomically.
func SaveFile(path string, r *Result) error {
	doc := fileFormat{
		Clusters:    r.Clusters,
		TotalImages: r.TotalImages(),
		NumClusters: r.NumClusters(),
		Granularity: r.Granularity,
		Algorithm:   r.Algorithm,
	}
	if doc.Clusters == nil {
		doc.Clusters = []Cluster{}
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	if err := filesystem.WriteFileAtomic(path, data, 0o644); err != nil {
		return fmt.Errorf("save clusters: %w", err)
	}
	return nil
}

// LoadFile reads a cluster file written by SaveFile.
func LoadFile(path string) (*Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc fileFormat
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	g := doc.Granularity
	if !g.Valid() && len(doc.Clusters) > 0 {
		g = doc.Clusters[0].Granularity
	}
	if !g.Valid() {
		return nil, fmt.Errorf("%s: %w: %d", path, ErrInvalidGranularity, int(g))
	}
	return &Result{Granularity: g, Algorithm: doc.Algorithm, Clusters: doc.Clusters}, nil
}
