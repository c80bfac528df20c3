package reconstruction

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// ValidationMetrics compares a reconstruction with the phantom it was
// simulated from. Both images are min-max normalized to [0, 1] first, since
// backprojection does not preserve absolute attenuation values.
type ValidationMetrics struct {
	// RMSE is the root mean square error. Lower is better.
	RMSE float64 `json:"rmse"`

	// SSIM is a global structural similarity index in [-1, 1].
	SSIM float64 `json:"ssim"`

	// Correlation is the Pearson correlation of the pixel values.
	Correlation float64 `json:"correlation"`

	// MI approximates the mutual information under a Gaussian assumption.
	MI float64 `json:"mutual_information"`

	// EntropyDiff is the absolute difference of the 256-bin Shannon entropies.
	EntropyDiff float64 `json:"entropy_diff"`
}

// CompareImages computes validation metrics between a reference image and
// a reconstruction of the same shape.
func CompareImages(reference, reconstructed *mat.Dense) (ValidationMetrics, error) {
	rr, rc := reference.Dims()
	sr, sc := reconstructed.Dims()
	if rr != sr || rc != sc {
		return ValidationMetrics{}, fmt.Errorf("%w: reference is %dx%d, reconstruction is %dx%d",
			ErrInvalidArgument, rr, rc, sr, sc)
	}
	original := normalized(reference)
	recon := normalized(reconstructed)

	return ValidationMetrics{
		RMSE:        calculateRMSE(original, recon),
		SSIM:        calculateSSIM(original, recon),
		Correlation: calculateCorrelation(original, recon),
		MI:          calculateMutualInformation(original, recon),
		EntropyDiff: math.Abs(calculateEntropy(original) - calculateEntropy(recon)),
	}, nil
}

func normalized(m *mat.Dense) []float64 {
	r, c := m.Dims()
	data := make([]float64, 0, r*c)
	for i := 0; i < r; i++ {
		data = append(data, m.RawRowView(i)...)
	}
	lo, hi := floats.Min(data), floats.Max(data)
	if hi == lo {
		for i := range data {
			data[i] = 0
		}
		return data
	}
	floats.AddConst(-lo, data)
	floats.Scale(1/(hi-lo), data)
	return data
}

// calculateRMSE computes the root mean square error
func calculateRMSE(original, reconstructed []float64) float64 {
	return floats.Distance(original, reconstructed, 2) / math.Sqrt(float64(len(original)))
}

// calculateSSIM computes a single-window structural similarity index
func calculateSSIM(original, reconstructed []float64) float64 {
	const (
		L  = 1.0 // dynamic range
		k1 = 0.01
		k2 = 0.03
	)
	c1 := (k1 * L) * (k1 * L)
	c2 := (k2 * L) * (k2 * L)

	muX := stat.Mean(original, nil)
	muY := stat.Mean(reconstructed, nil)
	sigmaX := stat.Variance(original, nil)
	sigmaY := stat.Variance(reconstructed, nil)
	sigmaXY := stat.Covariance(original, reconstructed, nil)

	num := (2*muX*muY + c1) * (2*sigmaXY + c2)
	den := (muX*muX + muY*muY + c1) * (sigmaX + sigmaY + c2)
	return num / den
}

func calculateCorrelation(original, reconstructed []float64) float64 {
	c := stat.Correlation(original, reconstructed, nil)
	if math.IsNaN(c) {
		return 0
	}
	return c
}

// calculateMutualInformation uses MI = 0.5*log(varX*varY / (varX*varY - cov²))
func calculateMutualInformation(original, reconstructed []float64) float64 {
	varX := stat.Variance(original, nil)
	varY := stat.Variance(reconstructed, nil)
	cov := stat.Covariance(original, reconstructed, nil)
	if varX <= 0 || varY <= 0 {
		return 0
	}
	// Identical images make the determinant vanish; the floor keeps the
	// result finite so it can be serialized.
	det := math.Max(varX*varY-cov*cov, 1e-12*varX*varY)
	return 0.5 * math.Log(varX*varY/det)
}

// calculateEntropy computes the Shannon entropy of data over 256 bins
func calculateEntropy(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	lo, hi := floats.Min(data), floats.Max(data)
	if hi <= lo {
		return 0
	}

	const numBins = 256
	dividers := make([]float64, numBins+1)
	floats.Span(dividers, lo, hi)
	// The last divider must exceed the maximum for stat.Histogram.
	dividers[numBins] = math.Nextafter(hi, math.Inf(1))

	sorted := make([]float64, len(data))
	copy(sorted, data)
	floats.Argsort(sorted, make([]int, len(sorted)))
	hist := stat.Histogram(nil, dividers, sorted, nil)

	entropy := 0.0
	n := float64(len(data))
	for _, count := range hist {
		if count > 0 {
			p := count / n
			entropy -= p * math.Log2(p)
		}
	}
	return entropy
}
