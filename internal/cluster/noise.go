package cluster

import (
	"math"
	"sort"
)

// ReassignNoise moves every Noise point to the cluster whose centroid is
// nearest in Euclidean distance. Ties go to the lowest label. When every
// point is noise they all become cluster 0. It returns the new labels and the
// number of points moved; labels is not modified.
func ReassignNoise(matrix [][]float32, labels []int) ([]int, int) {
	out := append([]int(nil), labels...)

	noisy := 0
	for _, l := range out {
		if l == Noise {
			noisy++
		}
	}
	if noisy == 0 {
		return out, 0
	}
	if noisy == len(out) {
		for i := range out {
			out[i] = 0
		}
		return out, noisy
	}

	ids, centroids := centroidsOf(matrix, labels)
	for i, l := range out {
		if l != Noise {
			continue
		}
		best, bestDist := ids[0], math.Inf(1)
		for j, c := range centroids {
			if d := squaredL2(matrix[i], c); d < bestDist {
				best, bestDist = ids[j], d
			}
		}
		out[i] = best
	}
	return out, noisy
}

// centroidsOf returns the sorted non-noise labels and the mean vector of each.
func centroidsOf(matrix [][]float32, labels []int) ([]int, [][]float32) {
	sums := make(map[int][]float64)
	counts := make(map[int]int)
	for i, l := range labels {
		if l == Noise {
			continue
		}
		s, ok := sums[l]
		if !ok {
			s = make([]float64, len(matrix[i]))
			sums[l] = s
		}
		for d, v := range matrix[i] {
			s[d] += float64(v)
		}
		counts[l]++
	}

	ids := make([]int, 0, len(sums))
	for l := range sums {
		ids = append(ids, l)
	}
	sort.Ints(ids)

	centroids := make([][]float32, len(ids))
	for j, l := range ids {
		c := make([]float32, len(sums[l]))
		for d, v := range sums[l] {
			c[d] = float32(v / float64(counts[l]))
		}
		centroids[j] = c
	}
	return ids, centroids
}
