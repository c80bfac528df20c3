// Package phantom generates synthetic density images used as scan subjects
// and loads custom phantoms from image files.
package phantom

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"os"

	xdraw "golang.org/x/image/draw"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// ErrInvalidSize is returned for a non-positive phantom size.
var ErrInvalidSize = errors.New("phantom: size must be positive")

// ellipse is one component of the analytic Shepp-Logan phantom, in
// normalized coordinates where the image spans [-1, 1] on both axes.
type ellipse struct {
	intensity float64
	a, b      float64
	x0, y0    float64
	phi       float64 // degrees
}

// Modified Shepp-Logan parameters with improved contrast.
var sheppLogan = []ellipse{
	{1.0, 0.6900, 0.9200, 0, 0, 0},
	{-0.8, 0.6624, 0.8740, 0, -0.0184, 0},
	{-0.2, 0.1100, 0.3100, 0.22, 0, -18},
	{-0.2, 0.1600, 0.4100, -0.22, 0, 18},
	{0.1, 0.2100, 0.2500, 0, 0.35, 0},
	{0.1, 0.0460, 0.0460, 0, 0.1, 0},
	{0.1, 0.0460, 0.0460, 0, -0.1, 0},
	{0.1, 0.0460, 0.0230, -0.08, -0.605, 0},
	{0.1, 0.0230, 0.0230, 0, -0.606, 0},
	{0.1, 0.0230, 0.0460, 0.06, -0.605, 0},
}

// SheppLogan returns a size x size modified Shepp-Logan head phantom with
// values in [0, 1]. Row 0 is the top of the head.
func SheppLogan(size int) (*mat.Dense, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSize, size)
	}
	img := mat.NewDense(size, size, nil)
	for i := 0; i < size; i++ {
		y := 1 - (2*float64(i)+1)/float64(size)
		for j := 0; j < size; j++ {
			x := (2*float64(j)+1)/float64(size) - 1
			v := 0.0
			for _, e := range sheppLogan {
				if e.contains(x, y) {
					v += e.intensity
				}
			}
			img.Set(i, j, clamp(v, 0, 1))
		}
	}
	return img, nil
}

func (e ellipse) contains(x, y float64) bool {
	phi := e.phi * math.Pi / 180
	c, s := math.Cos(phi), math.Sin(phi)
	dx, dy := x-e.x0, y-e.y0
	u := (dx*c + dy*s) / e.a
	v := (-dx*s + dy*c) / e.b
	return u*u+v*v <= 1
}

// BreastTissue returns a soft tissue background of 0.1 with two circular
// masses: 0.8 centered at (size/3, size/3) with radius size/10 and 0.6
// centered at (2size/3, 2size/3) with radius size/12.
func BreastTissue(size int) (*mat.Dense, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSize, size)
	}
	img := Uniform(size, size, 0.1)
	masses := []struct {
		center, radius int
		value          float64
	}{
		{size / 3, size / 10, 0.8},
		{2 * size / 3, size / 12, 0.6},
	}
	for _, m := range masses {
		r2 := m.radius * m.radius
		for i := 0; i < size; i++ {
			for j := 0; j < size; j++ {
				di, dj := i-m.center, j-m.center
				if di*di+dj*dj < r2 {
					img.Set(i, j, m.value)
				}
			}
		}
	}
	return img, nil
}

// Uniform returns a rows x cols image filled with value.
func Uniform(rows, cols int, value float64) *mat.Dense {
	data := make([]float64, rows*cols)
	for i := range data {
		data[i] = value
	}
	return mat.NewDense(rows, cols, data)
}

// Normalize rescales img to [0, 1] as (x-min)/(max-min+1e-8). A constant
// image maps to zeros.
func Normalize(img *mat.Dense) *mat.Dense {
	r, c := img.Dims()
	data := make([]float64, 0, r*c)
	for i := 0; i < r; i++ {
		data = append(data, img.RawRowView(i)...)
	}
	lo, hi := floats.Min(data), floats.Max(data)
	span := hi - lo + 1e-8
	for i := range data {
		data[i] = (data[i] - lo) / span
	}
	return mat.NewDense(r, c, data)
}

// Load decodes a PNG or JPEG file, converts it to grayscale, resizes it to
// size x size and normalizes it to [0, 1].
func Load(path string, size int) (*mat.Dense, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSize, size)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("phantom file not found: %w", err)
	}
	defer f.Close()

	src, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode phantom %s: %w", path, err)
	}
	return FromImage(src, size), nil
}

// FromImage converts any image to a normalized size x size phantom.
func FromImage(src image.Image, size int) *mat.Dense {
	gray := image.NewGray16(src.Bounds())
	draw.Draw(gray, gray.Bounds(), src, src.Bounds().Min, draw.Src)

	scaled := image.NewGray16(image.Rect(0, 0, size, size))
	xdraw.CatmullRom.Scale(scaled, scaled.Bounds(), gray, gray.Bounds(), draw.Src, nil)

	img := mat.NewDense(size, size, nil)
	for i := 0; i < size; i++ {
		for j := 0; j < size; j++ {
			v := scaled.Gray16At(j, i).Y
			img.Set(i, j, float64(v)/float64(color.White.Y))
		}
	}
	return Normalize(img)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
