// Package visualization renders images and sinograms as grayscale PNG files
// and as annotated plots.
package visualization

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// ErrOutOfRange is returned when a requested row lies outside the data.
var ErrOutOfRange = errors.New("visualization: index out of range")

// Viewer wraps a 2-D array (an image or a sinogram) for export.
type Viewer struct {
	data *mat.Dense

	// min and max of the data, used for grayscale scaling
	min float64
	max float64
}

// NewViewer creates a viewer over m. The matrix is not copied.
func NewViewer(m *mat.Dense) *Viewer {
	return &Viewer{data: m, min: mat.Min(m), max: mat.Max(m)}
}

// ToGray16 min-max scales the data to a 16-bit grayscale image. Matrix rows
// become image rows. A constant array renders black.
func (v *Viewer) ToGray16() *image.Gray16 {
	rows, cols := v.data.Dims()
	img := image.NewGray16(image.Rect(0, 0, cols, rows))
	span := v.max - v.min
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			value := 0.0
			if span > 0 {
				value = (v.data.At(y, x) - v.min) / span
			}
			img.SetGray16(x, y, color.Gray16{Y: uint16(math.Max(0, math.Min(65535, value*65535)))})
		}
	}
	return img
}

// ToGray16 renders m as a min-max scaled grayscale image.
func ToGray16(m *mat.Dense) *image.Gray16 {
	return NewViewer(m).ToGray16()
}

// SavePNG writes the grayscale rendering to filename, creating parent
// directories as needed.
func (v *Viewer) SavePNG(filename string) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return err
	}
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	if err := png.Encode(file, v.ToGray16()); err != nil {
		file.Close()
		return fmt.Errorf("failed to encode image: %w", err)
	}
	return file.Close()
}

// SavePNG writes m as a grayscale PNG.
func SavePNG(m *mat.Dense, filename string) error {
	return NewViewer(m).SavePNG(filename)
}

// Row returns a copy of one row, e.g. the detector profile of one angle.
func (v *Viewer) Row(i int) ([]float64, error) {
	rows, _ := v.data.Dims()
	if i < 0 || i >= rows {
		return nil, fmt.Errorf("%w: row %d of %d", ErrOutOfRange, i, rows)
	}
	return mat.Row(nil, i, v.data), nil
}

// grid adapts the viewer to plotter.GridXYZ. Column index maps to X and row
// index to Y, with row 0 drawn at the top.
type grid struct{ v *Viewer }

func (g grid) Dims() (c, r int) {
	rows, cols := g.v.data.Dims()
	return cols, rows
}

func (g grid) Z(c, r int) float64 {
	rows, _ := g.v.data.Dims()
	return g.v.data.At(rows-1-r, c)
}

func (g grid) X(c int) float64 { return float64(c) }

func (g grid) Y(r int) float64 { return float64(r) }

// SaveHeatMap renders the data as a heat map plot with the given title.
func (v *Viewer) SaveHeatMap(title, xLabel, yLabel, filename string) error {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = xLabel
	p.Y.Label.Text = yLabel

	hm := plotter.NewHeatMap(grid{v}, palette.Heat(64, 1))
	if v.max == v.min {
		// HeatMap needs a non-empty range.
		hm.Min, hm.Max = v.min, v.min+1
	}
	p.Add(hm)

	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return err
	}
	if err := p.Save(8*vg.Inch, 8*vg.Inch, filename); err != nil {
		return fmt.Errorf("failed to save heat map: %w", err)
	}
	return nil
}

// SaveHeatMap renders m as a heat map.
func SaveHeatMap(m *mat.Dense, title, filename string) error {
	return NewViewer(m).SaveHeatMap(title, "column", "row", filename)
}

// SaveProfile plots one row of the data as a line, e.g. a detector profile.
func (v *Viewer) SaveProfile(row int, title, filename string) error {
	values, err := v.Row(row)
	if err != nil {
		return err
	}
	pts := make(plotter.XYs, len(values))
	for i, y := range values {
		pts[i] = plotter.XY{X: float64(i), Y: y}
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Detector index"
	p.Y.Label.Text = "Value"
	p.Add(plotter.NewGrid())

	line, err := plotter.NewLine(pts)
	if err != nil {
		return fmt.Errorf("failed to create line: %w", err)
	}
	line.Width = vg.Points(1)
	line.Color = color.RGBA{R: 200, A: 255}
	p.Add(line)

	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return err
	}
	if err := p.Save(10*vg.Inch, 4*vg.Inch, filename); err != nil {
		return fmt.Errorf("failed to save profile: %w", err)
	}
	return nil
}

// SaveProfile plots row of m as a line.
func SaveProfile(m *mat.Dense, row int, title, filename string) error {
	return NewViewer(m).SaveProfile(row, title, filename)
}

// SaveSeries plots y against x as a single line, e.g. a filter response.
func SaveSeries(x, y []float64, title, xLabel, yLabel, filename string) error {
	if len(x) != len(y) || len(x) == 0 {
		return fmt.Errorf("%w: %d x values, %d y values", ErrOutOfRange, len(x), len(y))
	}
	pts := make(plotter.XYs, len(x))
	for i := range x {
		pts[i] = plotter.XY{X: x[i], Y: y[i]}
	}
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = xLabel
	p.Y.Label.Text = yLabel

	line, err := plotter.NewLine(pts)
	if err != nil {
		return fmt.Errorf("failed to create line: %w", err)
	}
	line.Width = vg.Points(1)
	p.Add(line)

	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return err
	}
	return p.Save(8*vg.Inch, 4*vg.Inch, filename)
}
