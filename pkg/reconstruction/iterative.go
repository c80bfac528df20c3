package reconstruction

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// ErrInvalidArgument is returned for negative iteration counts, a negative
// epsilon or an empty projection array.
var ErrInvalidArgument = errors.New("reconstruction: invalid argument")

// DefaultEpsilon keeps the column-sum division finite.
const DefaultEpsilon = 1e-8

// Iterative is a simplified multiplicative reconstructor. It uses no scanner
// geometry: the estimate has the shape of the projection array and every
// round rescales each entry by the ratio of the measured value to the
// current column sum,
//
//	X[i,j] <- X[i,j] * P[i,j] / (sum_r X[r,j] + Epsilon)
//
// starting from X = 1. Entries whose measurement is zero become zero and
// stay zero in every later round.
type Iterative struct {
	// Iterations is the number of update rounds; zero returns the all-ones
	// starting estimate.
	Iterations int

	// Epsilon is added to every column sum. Zero means DefaultEpsilon.
	Epsilon float64
}

// NewIterative creates an iterative reconstructor with DefaultEpsilon.
func NewIterative(iterations int) *Iterative {
	return &Iterative{Iterations: iterations, Epsilon: DefaultEpsilon}
}

// Reconstruct runs the update rounds on p and returns the estimate.
func (it *Iterative) Reconstruct(p *mat.Dense) (*mat.Dense, error) {
	if it.Iterations < 0 {
		return nil, fmt.Errorf("%w: %d iterations", ErrInvalidArgument, it.Iterations)
	}
	eps := it.Epsilon
	if eps == 0 {
		eps = DefaultEpsilon
	}
	if eps < 0 {
		return nil, fmt.Errorf("%w: epsilon %v", ErrInvalidArgument, eps)
	}
	if p == nil || p.IsEmpty() {
		return nil, fmt.Errorf("%w: empty projections", ErrInvalidArgument)
	}

	rows, cols := p.Dims()
	data := make([]float64, rows*cols)
	for i := range data {
		data[i] = 1
	}
	x := mat.NewDense(rows, cols, data)

	colSums := make([]float64, cols)
	for n := 0; n < it.Iterations; n++ {
		// Column sums come from the previous estimate, before any update.
		for j := range colSums {
			colSums[j] = mat.Sum(x.ColView(j))
		}
		for i := 0; i < rows; i++ {
			for j := 0; j < cols; j++ {
				x.Set(i, j, x.At(i, j)*(p.At(i, j)/(colSums[j]+eps)))
			}
		}
	}
	return x, nil
}
