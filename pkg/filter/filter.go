// Package filter implements the frequency-domain filters applied to each
// sinogram row before filtered backprojection.
package filter

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"strings"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/mat"
)

// ErrInvalidArgument is returned for an unknown filter, a non-positive kernel
// length or a kernel whose length differs from the sinogram width.
var ErrInvalidArgument = errors.New("filter: invalid argument")

// Kind selects a reconstruction filter.
type Kind int

const (
	// None disables filtering. It has no kernel.
	None Kind = iota
	Ramp
	SheppLogan
	Hamming
)

func (k Kind) String() string {
	switch k {
	case None:
		return "none"
	case Ramp:
		return "ramp"
	case SheppLogan:
		return "shepp-logan"
	case Hamming:
		return "hamming"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind maps a filter name to its Kind. Names are case-insensitive and
// accept "shepp_logan" as well as "shepp-logan".
func ParseKind(name string) (Kind, error) {
	switch strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "_", "-") {
	case "", "none":
		return None, nil
	case "ramp":
		return Ramp, nil
	case "shepp-logan":
		return SheppLogan, nil
	case "hamming":
		return Hamming, nil
	}
	return None, fmt.Errorf("%w: unknown filter %q", ErrInvalidArgument, name)
}

// Frequencies returns the n sample frequencies of a length-n DFT in cycles
// per sample: 0, 1/n, ..., followed by the negative frequencies.
func Frequencies(n int) []float64 {
	if n <= 0 {
		return nil
	}
	fft := fourier.NewCmplxFFT(n)
	freqs := make([]float64, n)
	for i := range freqs {
		freqs[i] = fft.Freq(i)
	}
	return freqs
}

// Kernel builds the length-n frequency response of the given filter in DFT
// order. Every kernel is zero at DC.
func Kernel(kind Kind, n int) ([]float64, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: kernel length %d", ErrInvalidArgument, n)
	}
	freqs := Frequencies(n)

	fmax := 0.0
	for _, f := range freqs {
		fmax = math.Max(fmax, math.Abs(f))
	}

	kernel := make([]float64, n)
	for i, f := range freqs {
		ramp := 2 * math.Abs(f)
		switch kind {
		case Ramp:
			kernel[i] = ramp
		case SheppLogan:
			kernel[i] = ramp * sinc(f)
		case Hamming:
			if fmax == 0 {
				continue
			}
			kernel[i] = ramp * (0.54 + 0.46*math.Cos(math.Pi*f/fmax))
		default:
			return nil, fmt.Errorf("%w: no kernel for filter %v", ErrInvalidArgument, kind)
		}
	}
	return kernel, nil
}

func sinc(x float64) float64 {
	if x == 0 {
		return 1
	}
	return math.Sin(math.Pi*x) / (math.Pi * x)
}

// Apply filters every row of sino with the kernel of the given kind.
func Apply(ctx context.Context, sino *mat.Dense, kind Kind) (*mat.Dense, error) {
	_, cols := sino.Dims()
	kernel, err := Kernel(kind, cols)
	if err != nil {
		return nil, err
	}
	return ApplyKernel(ctx, sino, kernel)
}

// ApplyKernel filters every row of sino independently: forward DFT,
// multiplication by kernel, inverse DFT, real part. Rows are processed in
// parallel.
func ApplyKernel(ctx context.Context, sino *mat.Dense, kernel []float64) (*mat.Dense, error) {
	rows, cols := sino.Dims()
	if len(kernel) != cols {
		return nil, fmt.Errorf("%w: kernel length %d, sinogram has %d detectors", ErrInvalidArgument, len(kernel), cols)
	}

	out := mat.NewDense(rows, cols, nil)
	workers := min(runtime.NumCPU(), rows)
	perWorker := (rows + workers - 1) / workers

	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		start := w * perWorker
		end := min(start+perWorker, rows)
		if start >= end {
			continue
		}
		g.Go(func() error {
			// CmplxFFT keeps internal work space; one per goroutine.
			fft := fourier.NewCmplxFFT(cols)
			seq := make([]complex128, cols)
			coeff := make([]complex128, cols)
			row := make([]float64, cols)
			scale := 1 / float64(cols)

			for r := start; r < end; r++ {
				if err := ctx.Err(); err != nil {
					return err
				}
				for k := 0; k < cols; k++ {
					seq[k] = complex(sino.At(r, k), 0)
				}
				fft.Coefficients(coeff, seq)
				for k := range coeff {
					coeff[k] *= complex(kernel[k], 0)
				}
				fft.Sequence(seq, coeff)
				for k := range row {
					row[k] = real(seq[k]) * scale
				}
				out.SetRow(r, row)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Response returns the kernel gain per frequency for plotting, ordered from
// the most negative to the most positive frequency.
func Response(kernel []float64) (freqs, gains []float64) {
	n := len(kernel)
	if n == 0 {
		return nil, nil
	}
	all := Frequencies(n)
	// Negative frequencies start after the first (n-1)/2+1 entries.
	split := (n-1)/2 + 1
	for _, i := range append(seqRange(split, n), seqRange(0, split)...) {
		freqs = append(freqs, all[i])
		gains = append(gains, math.Abs(kernel[i]))
	}
	return freqs, gains
}

func seqRange(from, to int) []int {
	out := make([]int, 0, to-from)
	for i := from; i < to; i++ {
		out = append(out, i)
	}
	return out
}
