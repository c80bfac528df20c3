package visualization

import (
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func ramp(rows, cols int) *mat.Dense {
	m := mat.NewDense(rows, cols, nil)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			m.Set(i, j, float64(i*cols+j))
		}
	}
	return m
}

// TestToGray16 verifies min-max scaling and orientation
func TestToGray16(t *testing.T) {
	img := ToGray16(ramp(3, 4))

	assert.Equal(t, 4, img.Bounds().Dx())
	assert.Equal(t, 3, img.Bounds().Dy())
	assert.Equal(t, uint16(0), img.Gray16At(0, 0).Y)
	assert.Equal(t, uint16(65535), img.Gray16At(3, 2).Y)
	assert.Less(t, img.Gray16At(1, 0).Y, img.Gray16At(0, 1).Y)
}

func TestToGray16Constant(t *testing.T) {
	m := mat.NewDense(2, 2, []float64{5, 5, 5, 5})
	img := ToGray16(m)
	for y := 0; y < 2; y++ {
		for x := 0; x < 2; x++ {
			assert.Equal(t, uint16(0), img.Gray16At(x, y).Y)
		}
	}
}

func TestSavePNG(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "phantom.png")
	require.NoError(t, SavePNG(ramp(8, 6), path))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	img, err := png.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, 6, img.Bounds().Dx())
	assert.Equal(t, 8, img.Bounds().Dy())
}

func TestRow(t *testing.T) {
	v := NewViewer(ramp(3, 4))
	row, err := v.Row(1)
	require.NoError(t, err)
	assert.Equal(t, []float64{4, 5, 6, 7}, row)

	_, err = v.Row(3)
	assert.ErrorIs(t, err, ErrOutOfRange)
	_, err = v.Row(-1)
	assert.ErrorIs(t, err, ErrOutOfRange)
}

func TestGridOrientation(t *testing.T) {
	g := grid{NewViewer(ramp(3, 4))}
	c, r := g.Dims()
	assert.Equal(t, 4, c)
	assert.Equal(t, 3, r)
	// Plot row 0 is the bottom of the figure, i.e. the last matrix row.
	assert.Equal(t, 8.0, g.Z(0, 0))
	assert.Equal(t, 3.0, g.Z(3, 2))
}

func TestSavePlots(t *testing.T) {
	dir := t.TempDir()
	m := ramp(10, 12)

	heat := filepath.Join(dir, "sinogram.png")
	require.NoError(t, SaveHeatMap(m, "Sinogram", heat))
	assert.FileExists(t, heat)

	flat := filepath.Join(dir, "flat.png")
	require.NoError(t, SaveHeatMap(mat.NewDense(2, 2, nil), "Flat", flat))
	assert.FileExists(t, flat)

	profile := filepath.Join(dir, "profile.png")
	require.NoError(t, SaveProfile(m, 4, "Detector profile", profile))
	assert.FileExists(t, profile)
	assert.ErrorIs(t, SaveProfile(m, 10, "bad", profile), ErrOutOfRange)

	series := filepath.Join(dir, "series.png")
	require.NoError(t, SaveSeries([]float64{-0.5, 0, 0.5}, []float64{1, 0, 1}, "Ramp", "f", "gain", series))
	assert.Error(t, SaveSeries(nil, nil, "", "", "", series))
}
