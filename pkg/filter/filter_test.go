package filter

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestFrequencies(t *testing.T) {
	assert.Equal(t, []float64{0, 0.125, 0.25, 0.375, -0.5, -0.375, -0.25, -0.125}, Frequencies(8))
	assert.InDeltaSlice(t, []float64{0, 0.2, 0.4, -0.4, -0.2}, Frequencies(5), 1e-15)
	assert.Nil(t, Frequencies(0))
}

// TestKernelZeroAtDC verifies that every filter removes the mean of a row
func TestKernelZeroAtDC(t *testing.T) {
	for _, kind := range []Kind{Ramp, SheppLogan, Hamming} {
		for _, n := range []int{1, 2, 7, 128} {
			k, err := Kernel(kind, n)
			require.NoError(t, err)
			require.Len(t, k, n)
			assert.Equal(t, 0.0, k[0], "%v n=%d", kind, n)
			for i := 1; i < n; i++ {
				assert.InDelta(t, k[i], k[n-i], 1e-15, "%v must be even", kind)
				assert.GreaterOrEqual(t, k[i], 0.0)
			}
		}
	}
}

func TestKernelValues(t *testing.T) {
	ramp, err := Kernel(Ramp, 8)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0.25, 0.5, 0.75, 1, 0.75, 0.5, 0.25}, ramp)

	hamming, err := Kernel(Hamming, 8)
	require.NoError(t, err)
	assert.InDelta(t, 0.08, hamming[4], 1e-12)
	assert.InDelta(t, 0.25*(0.54+0.46*math.Cos(math.Pi/4)), hamming[1], 1e-12)

	sl, err := Kernel(SheppLogan, 8)
	require.NoError(t, err)
	assert.InDelta(t, 2/math.Pi, sl[4], 1e-12)
	for i := 1; i < 8; i++ {
		assert.Less(t, sl[i], ramp[i], "shepp-logan attenuates every non-zero frequency")
	}
}

func TestKernelInvalid(t *testing.T) {
	_, err := Kernel(Ramp, 0)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = Kernel(None, 16)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = Kernel(Kind(42), 16)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestParseKind(t *testing.T) {
	cases := map[string]Kind{
		"ramp":        Ramp,
		"RAMP":        Ramp,
		"shepp-logan": SheppLogan,
		"shepp_logan": SheppLogan,
		"hamming":     Hamming,
		"none":        None,
		"":            None,
	}
	for name, want := range cases {
		got, err := ParseKind(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}

	_, err := ParseKind("cosine")
	assert.ErrorIs(t, err, ErrInvalidArgument)

	for _, k := range []Kind{None, Ramp, SheppLogan, Hamming} {
		back, err := ParseKind(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, back)
	}
}

// TestApplyRemovesConstant checks a constant sinogram filters to zero
func TestApplyRemovesConstant(t *testing.T) {
	data := make([]float64, 6*32)
	for i := range data {
		data[i] = 4.5
	}
	sino := mat.NewDense(6, 32, data)

	for _, kind := range []Kind{Ramp, SheppLogan, Hamming} {
		out, err := Apply(context.Background(), sino, kind)
		require.NoError(t, err)
		for _, v := range out.RawMatrix().Data {
			assert.InDelta(t, 0, v, 1e-12)
		}
	}
}

// TestApplyKernelIdentity checks the inverse transform normalization
func TestApplyKernelIdentity(t *testing.T) {
	sino := mat.NewDense(3, 5, []float64{
		1, 2, 3, 4, 5,
		-1, 0, 2, 0, -1,
		0.5, 0.25, 0, 7, 3,
	})
	ones := []float64{1, 1, 1, 1, 1}

	out, err := ApplyKernel(context.Background(), sino, ones)
	require.NoError(t, err)
	assert.True(t, mat.EqualApprox(sino, out, 1e-12))
}

func TestApplyKernelLengthMismatch(t *testing.T) {
	sino := mat.NewDense(2, 4, nil)
	_, err := ApplyKernel(context.Background(), sino, []float64{0, 1, 1})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = Apply(context.Background(), sino, None)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestApplyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Apply(ctx, mat.NewDense(4, 8, nil), Ramp)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestResponse(t *testing.T) {
	k, err := Kernel(Ramp, 4)
	require.NoError(t, err)

	freqs, gains := Response(k)
	assert.Equal(t, []float64{-0.5, -0.25, 0, 0.25}, freqs)
	assert.Equal(t, []float64{1, 0.5, 0, 0.5}, gains)

	f, g := Response(nil)
	assert.Nil(t, f)
	assert.Nil(t, g)
}
