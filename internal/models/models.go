package models

import "math"

// Point is a position in the scanner plane, in the same physical units
// as the scanner geometry (typically mm).
type Point struct {
	X float64
	Y float64
}

// Sub returns p - q.
func (p Point) Sub(q Point) Point {
	return Point{X: p.X - q.X, Y: p.Y - q.Y}
}

// Distance returns the Euclidean distance between p and q.
func (p Point) Distance(q Point) float64 {
	return math.Hypot(p.X-q.X, p.Y-q.Y)
}

// Grid describes the pixel lattice a ray is traced through.
type Grid struct {
	// Rows is the number of pixels along x (the first image axis).
	Rows int

	// Cols is the number of pixels along y (the second image axis).
	Cols int

	// PixelSize is the physical edge length of a square pixel.
	PixelSize float64

	// Origin is the physical position of the corner of pixel (0, 0).
	// The zero value places the grid in the positive quadrant with its
	// corner on the rotation center.
	Origin Point
}

// Centered returns a grid of the given shape whose center lies on the
// rotation center.
func Centered(rows, cols int, pixelSize float64) Grid {
	return Grid{
		Rows:      rows,
		Cols:      cols,
		PixelSize: pixelSize,
		Origin: Point{
			X: -float64(rows) * pixelSize / 2,
			Y: -float64(cols) * pixelSize / 2,
		},
	}
}

// Contains reports whether the pixel index (i, j) lies inside the grid.
func (g Grid) Contains(i, j int) bool {
	return i >= 0 && i < g.Rows && j >= 0 && j < g.Cols
}

// Intersection is one pixel visited by a ray together with the estimated
// chord length of the ray inside that pixel.
type Intersection struct {
	Row    int
	Col    int
	Length float64
}
