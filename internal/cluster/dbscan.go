package cluster

import (
	"context"
	"math"
	"sort"
)

// DBSCAN is density-based clustering. Points in sparse regions are labeled
// Noise. When Eps is zero it is estimated as the median distance from each
// point to its MinSamples-th nearest neighbour.
type DBSCAN struct {
	Eps        float64
	MinSamples int
}

// Name implements Algorithm.
func (db *DBSCAN) Name() string { return "dbscan" }

// FitPredict implements Algorithm. Clusters are numbered in the order they
// are discovered scanning rows from first to last.
func (db *DBSCAN) FitPredict(ctx context.Context, matrix [][]float32) ([]int, error) {
	if _, err := validateMatrix(matrix); err != nil {
		return nil, err
	}
	n := len(matrix)
	if n == 0 {
		return []int{}, nil
	}

	minSamples := db.MinSamples
	if minSamples < 1 {
		minSamples = 1
	}

	eps := db.Eps
	if eps <= 0 {
		eps = estimateEps(matrix, minSamples)
	}
	eps2 := eps * eps

	// Distances are computed on demand: O(N²) time but O(N) memory, so large
	// batches never hold an N×N matrix.
	neighbours := func(i int) []int {
		var out []int
		for j := 0; j < n; j++ {
			if squaredL2(matrix[i], matrix[j]) <= eps2 {
				out = append(out, j)
			}
		}
		return out
	}

	const unvisited = -2
	labels := make([]int, n)
	for i := range labels {
		labels[i] = unvisited
	}

	next := 0
	for i := 0; i < n; i++ {
		if labels[i] != unvisited {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		seeds := neighbours(i)
		if len(seeds) < minSamples {
			labels[i] = Noise
			continue
		}

		id := next
		next++
		labels[i] = id

		// Each point enters the queue at most once.
		var queue []int
		claim := func(points []int) {
			for _, p := range points {
				switch labels[p] {
				case Noise:
					// Border point
					labels[p] = id
				case unvisited:
					labels[p] = id
					queue = append(queue, p)
				}
			}
		}
		claim(seeds)
		for q := 0; q < len(queue); q++ {
			if q%1024 == 0 {
				if err := ctx.Err(); err != nil {
					return nil, err
				}
			}
			if more := neighbours(queue[q]); len(more) >= minSamples {
				claim(more)
			}
		}
	}

	return labels, nil
}

// estimateEps returns the median k-distance, k = minSamples (counting the
// point itself, as the neighbourhood query does).
func estimateEps(matrix [][]float32, minSamples int) float64 {
	n := len(matrix)
	k := minSamples - 1
	if k >= n {
		k = n - 1
	}

	kdist := make([]float64, n)
	nearest := make([]float64, 0, k+1)
	for i := range matrix {
		nearest = nearest[:0]
		for j := range matrix {
			nearest = insertBounded(nearest, squaredL2(matrix[i], matrix[j]), k+1)
		}
		kdist[i] = math.Sqrt(nearest[k])
	}
	sort.Float64s(kdist)
	eps := kdist[n/2]
	if eps == 0 {
		eps = math.SmallestNonzeroFloat32
	}
	return eps
}

// insertBounded inserts d into the ascending slice s, keeping at most limit
// smallest values.
func insertBounded(s []float64, d float64, limit int) []float64 {
	if len(s) == limit && d >= s[len(s)-1] {
		return s
	}
	i := sort.SearchFloat64s(s, d)
	if len(s) < limit {
		s = append(s, 0)
	}
	copy(s[i+1:], s[i:len(s)-1])
	s[i] = d
	return s
}
