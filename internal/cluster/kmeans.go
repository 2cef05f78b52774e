package cluster

import (
	"context"
	"math"
	"math/rand"
)

const (
	defaultMaxIter  = 300
	defaultRestarts = 4
)

// KMeans is Lloyd's algorithm with k-means++ seeding. Runs with the same Seed
// on the same input produce the same labels.
type KMeans struct {
	K        int
	Seed     int64
	MaxIter  int
	Restarts int
}

// NewKMeans returns a KMeans with default iteration and restart counts.
func NewKMeans(k int, seed int64) *KMeans {
	return &KMeans{K: k, Seed: seed, MaxIter: defaultMaxIter, Restarts: defaultRestarts}
}

// Name implements Algorithm.
func (km *KMeans) Name() string { return "kmeans" }

// FitPredict implements Algorithm. K is clamped to the number of rows; the
// best of Restarts runs by inertia is kept. Labels are renumbered in order of
// first appearance so equivalent partitions always get the same labels.
func (km *KMeans) FitPredict(ctx context.Context, matrix [][]float32) ([]int, error) {
	dim, err := validateMatrix(matrix)
	if err != nil {
		return nil, err
	}
	n := len(matrix)
	if n == 0 {
		return []int{}, nil
	}

	k := km.K
	if k <= 0 {
		k = 1
	}
	if k > n {
		k = n
	}
	maxIter := km.MaxIter
	if maxIter <= 0 {
		maxIter = defaultMaxIter
	}
	restarts := km.Restarts
	if restarts <= 0 {
		restarts = 1
	}

	rng := rand.New(rand.NewSource(km.Seed))
	var best []int
	bestInertia := math.Inf(1)

	for r := 0; r < restarts; r++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		centroids := seedPlusPlus(matrix, k, rng)
		labels, inertia := lloyd(matrix, centroids, dim, maxIter)
		if inertia < bestInertia {
			best, bestInertia = labels, inertia
		}
	}

	return relabel(best), nil
}

// seedPlusPlus picks k initial centroids: the first uniformly, each next one
// with probability proportional to its squared distance from the nearest
// centroid chosen so far.
func seedPlusPlus(matrix [][]float32, k int, rng *rand.Rand) [][]float32 {
	n := len(matrix)
	centroids := make([][]float32, 0, k)
	centroids = append(centroids, clone(matrix[rng.Intn(n)]))

	dist := make([]float64, n)
	for i := range dist {
		dist[i] = squaredL2(matrix[i], centroids[0])
	}

	for len(centroids) < k {
		var total float64
		for _, d := range dist {
			total += d
		}

		next := 0
		if total == 0 {
			// All remaining points coincide with a centroid.
			next = rng.Intn(n)
		} else {
			target := rng.Float64() * total
			for i, d := range dist {
				target -= d
				if target <= 0 {
					next = i
					break
				}
				next = i
			}
		}

		c := clone(matrix[next])
		centroids = append(centroids, c)
		for i := range dist {
			if d := squaredL2(matrix[i], c); d < dist[i] {
				dist[i] = d
			}
		}
	}
	return centroids
}

// lloyd runs assignment/update iterations until labels stop changing and
// returns the labels and the inertia (sum of squared distances).
func lloyd(matrix [][]float32, centroids [][]float32, dim, maxIter int) ([]int, float64) {
	n, k := len(matrix), len(centroids)
	labels := make([]int, n)
	for i := range labels {
		labels[i] = -1
	}
	sums := make([][]float64, k)
	for j := range sums {
		sums[j] = make([]float64, dim)
	}
	counts := make([]int, k)

	for iter := 0; iter < maxIter; iter++ {
		changed := false

		// Assignment step
		for i, vec := range matrix {
			bestCluster := nearest(vec, centroids)
			if labels[i] != bestCluster {
				labels[i] = bestCluster
				changed = true
			}
		}
		if !changed {
			break
		}

		// Update step
		for j := range sums {
			for d := range sums[j] {
				sums[j][d] = 0
			}
			counts[j] = 0
		}
		for i, vec := range matrix {
			c := labels[i]
			for d, v := range vec {
				sums[c][d] += float64(v)
			}
			counts[c]++
		}
		for j := range centroids {
			if counts[j] == 0 {
				// Move an empty centroid onto the point farthest from its own.
				far := farthest(matrix, labels, centroids)
				copy(centroids[j], matrix[far])
				continue
			}
			for d := range centroids[j] {
				centroids[j][d] = float32(sums[j][d] / float64(counts[j]))
			}
		}
	}

	var inertia float64
	for i, vec := range matrix {
		inertia += squaredL2(vec, centroids[labels[i]])
	}
	return labels, inertia
}

// nearest returns the index of the closest centroid; ties go to the lowest index.
func nearest(vec []float32, centroids [][]float32) int {
	best := 0
	minDist := math.Inf(1)
	for j, c := range centroids {
		if d := squaredL2(vec, c); d < minDist {
			minDist = d
			best = j
		}
	}
	return best
}

func farthest(matrix [][]float32, labels []int, centroids [][]float32) int {
	far, farDist := 0, -1.0
	for i, vec := range matrix {
		if d := squaredL2(vec, centroids[labels[i]]); d > farDist {
			far, farDist = i, d
		}
	}
	return far
}

// relabel renumbers non-noise labels 0..m-1 in order of first appearance.
func relabel(labels []int) []int {
	mapping := make(map[int]int)
	out := make([]int, len(labels))
	for i, l := range labels {
		if l == Noise {
			out[i] = Noise
			continue
		}
		id, ok := mapping[l]
		if !ok {
			id = len(mapping)
			mapping[l] = id
		}
		out[i] = id
	}
	return out
}

func clone(v []float32) []float32 {
	return append([]float32(nil), v...)
}
