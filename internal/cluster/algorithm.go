package cluster

import (
	"context"
	"errors"
	"fmt"
)

// Noise is the label density-based algorithms give to points they could not
// place in any cluster.
const Noise = -1

var (
	// ErrNotMatrix is returned for input that is not a non-empty rectangular
	// matrix of non-empty rows.
	ErrNotMatrix = errors.New("input is not a rectangular matrix")
	// ErrLabelCount is returned when an algorithm returns the wrong number of labels.
	ErrLabelCount = errors.New("label count does not match row count")
	// ErrInvalidLabel is returned when an algorithm emits a negative label
	// other than Noise.
	ErrInvalidLabel = errors.New("invalid cluster label")
)

// Algorithm assigns one integer label per matrix row. Labels are
// non-negative cluster ids, or Noise.
type Algorithm interface {
	FitPredict(ctx context.Context, matrix [][]float32) ([]int, error)
	Name() string
}

// validateMatrix checks that matrix is rectangular with non-empty rows and
// returns its dimension. An empty matrix is valid with dimension 0.
func validateMatrix(matrix [][]float32) (int, error) {
	if len(matrix) == 0 {
		return 0, nil
	}
	dim := len(matrix[0])
	if dim == 0 {
		return 0, fmt.Errorf("%w: row 0 is empty", ErrNotMatrix)
	}
	for i, row := range matrix {
		if len(row) != dim {
			return 0, fmt.Errorf("%w: row %d has %d columns, expected %d", ErrNotMatrix, i, len(row), dim)
		}
	}
	return dim, nil
}

func squaredL2(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return sum
}
