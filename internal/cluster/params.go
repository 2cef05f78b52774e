package cluster

import (
	"errors"
	"fmt"
)

// ErrUnknownAlgorithm is returned by NewAlgorithm for an unrecognised name.
var ErrUnknownAlgorithm = errors.New("unknown clustering algorithm")

// Algorithm names accepted by NewAlgorithm.
const (
	AlgorithmKMeans = "kmeans"
	AlgorithmDBSCAN = "dbscan"
)

// Params configures one clustering run. KMeans reads K, Seed, MaxIter and
// Restarts; DBSCAN reads Eps and MinSamples.
type Params struct {
	K          int
	Seed       int64
	MaxIter    int
	Restarts   int
	Eps        float64
	MinSamples int
}

// Algorithms lists the accepted algorithm names.
func Algorithms() []string {
	return []string{AlgorithmKMeans, AlgorithmDBSCAN}
}

// NewAlgorithm builds the named algorithm from p.
func NewAlgorithm(name string, p Params) (Algorithm, error) {
	switch name {
	case AlgorithmKMeans:
		km := NewKMeans(p.K, p.Seed)
		if p.MaxIter > 0 {
			km.MaxIter = p.MaxIter
		}
		if p.Restarts > 0 {
			km.Restarts = p.Restarts
		}
		return km, nil
	case AlgorithmDBSCAN:
		return &DBSCAN{Eps: p.Eps, MinSamples: p.MinSamples}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, name)
}
