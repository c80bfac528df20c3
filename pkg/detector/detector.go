// Package detector models imperfections of the detector array applied to an
// acquired sinogram.
package detector

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// ErrInvalidArgument is returned when a gain map does not have one entry per
// detector or a saturation level is negative.
var ErrInvalidArgument = errors.New("detector: invalid argument")

// truncate is the kernel half-width in standard deviations.
const truncate = 4.0

// Blur convolves every sinogram row with a Gaussian point spread function of
// the given width in detector elements. Angles are not mixed. Edges use
// half-sample symmetric reflection. A non-positive sigma returns a copy.
func Blur(sino *mat.Dense, sigma float64) *mat.Dense {
	out := mat.DenseCopyOf(sino)
	if !(sigma > 0) {
		return out
	}
	kernel := gaussianKernel(sigma)
	radius := len(kernel) / 2

	rows, cols := sino.Dims()
	row := make([]float64, cols)
	for i := 0; i < rows; i++ {
		src := sino.RawRowView(i)
		for k := 0; k < cols; k++ {
			sum := 0.0
			for t, w := range kernel {
				sum += w * src[reflect(k+t-radius, cols)]
			}
			row[k] = sum
		}
		out.SetRow(i, row)
	}
	return out
}

func gaussianKernel(sigma float64) []float64 {
	radius := int(truncate*sigma + 0.5)
	kernel := make([]float64, 2*radius+1)
	for t := range kernel {
		x := float64(t - radius)
		kernel[t] = math.Exp(-0.5 * x * x / (sigma * sigma))
	}
	floats.Scale(1/floats.Sum(kernel), kernel)
	return kernel
}

// reflect maps an out-of-range index into [0, n) by mirroring about the
// array edges (d c b a | a b c d | d c b a).
func reflect(i, n int) int {
	if n == 1 {
		return 0
	}
	period := 2 * n
	i %= period
	if i < 0 {
		i += period
	}
	if i >= n {
		i = period - 1 - i
	}
	return i
}

// Saturate clips every value to [0, max].
func Saturate(sino *mat.Dense, max float64) (*mat.Dense, error) {
	if max < 0 || math.IsNaN(max) {
		return nil, fmt.Errorf("%w: saturation level %v", ErrInvalidArgument, max)
	}
	out := mat.DenseCopyOf(sino)
	out.Apply(func(_, _ int, v float64) float64 {
		return math.Min(math.Max(v, 0), max)
	}, out)
	return out, nil
}

// Gain multiplies detector column k by gains[k].
func Gain(sino *mat.Dense, gains []float64) (*mat.Dense, error) {
	_, cols := sino.Dims()
	if len(gains) != cols {
		return nil, fmt.Errorf("%w: %d gains for %d detectors", ErrInvalidArgument, len(gains), cols)
	}
	out := mat.DenseCopyOf(sino)
	out.Apply(func(_, j int, v float64) float64 {
		return v * gains[j]
	}, out)
	return out, nil
}
