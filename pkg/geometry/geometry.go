// Package geometry describes a 2-D fan-beam CT scanner: where the source and
// every detector element sit for each projection angle, and the set of
// source-to-detector rays shared by forward and back projection.
package geometry

import (
	"errors"
	"fmt"
	"io"
	"math"

	"gonum.org/v1/gonum/floats"

	"ctraysim/internal/models"
	"ctraysim/pkg/config"
)

// ErrConfiguration is returned when a scanner description has a
// non-positive field.
var ErrConfiguration = errors.New("geometry: invalid scanner configuration")

// ScannerGeometry is an immutable fan-beam scanner description.
//
// The source rotates on a circle of radius SourceToCenter around the
// origin. Detectors lie on an arc of radius SourceToDetector centered on
// the source, roughly opposite it across the rotation center.
type ScannerGeometry struct {
	numAngles        int
	numDetectors     int
	detectorSpacing  float64
	sourceToCenter   float64
	sourceToDetector float64
}

// New validates the scanner description and builds a geometry from it.
func New(s config.Scanner) (*ScannerGeometry, error) {
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	return &ScannerGeometry{
		numAngles:        s.NumAngles,
		numDetectors:     s.NumDetectors,
		detectorSpacing:  s.DetectorSpacing,
		sourceToCenter:   s.SourceToCenter,
		sourceToDetector: s.SourceToDetector,
	}, nil
}

// NumAngles returns the number of projection angles.
func (g *ScannerGeometry) NumAngles() int { return g.numAngles }

// NumDetectors returns the number of detector elements.
func (g *ScannerGeometry) NumDetectors() int { return g.numDetectors }

// DetectorSpacing returns the spacing between detector elements.
func (g *ScannerGeometry) DetectorSpacing() float64 { return g.detectorSpacing }

// SourceToCenter returns the source rotation radius.
func (g *ScannerGeometry) SourceToCenter() float64 { return g.sourceToCenter }

// SourceToDetector returns the radius of the detector arc.
func (g *ScannerGeometry) SourceToDetector() float64 { return g.sourceToDetector }

// Scanner returns the configuration record the geometry was built from.
func (g *ScannerGeometry) Scanner() config.Scanner {
	return config.Scanner{
		NumAngles:        g.numAngles,
		NumDetectors:     g.numDetectors,
		DetectorSpacing:  g.detectorSpacing,
		SourceToCenter:   g.sourceToCenter,
		SourceToDetector: g.sourceToDetector,
	}
}

// Angles returns NumAngles evenly spaced projection angles in radians,
// ascending from 0 and excluding 2π.
func (g *ScannerGeometry) Angles() []float64 {
	angles := make([]float64, g.numAngles)
	if g.numAngles == 1 {
		return angles
	}
	step := 2 * math.Pi / float64(g.numAngles)
	floats.Span(angles, 0, 2*math.Pi-step)
	return angles
}

// SourcePosition returns the source position at angle theta.
func (g *ScannerGeometry) SourcePosition(theta float64) models.Point {
	return models.Point{
		X: g.sourceToCenter * math.Cos(theta),
		Y: g.sourceToCenter * math.Sin(theta),
	}
}

// DetectorOffset returns the angular offset of detector k on the arc. The
// linear detector spacing is converted to an angle with the small-angle
// approximation spacing/Rd, which holds while spacing is much smaller than
// the source-to-detector distance.
func (g *ScannerGeometry) DetectorOffset(k int) float64 {
	return (float64(k) - float64(g.numDetectors)/2) * g.detectorSpacing / g.sourceToDetector
}

// DetectorPosition returns the position of detector k at angle theta.
func (g *ScannerGeometry) DetectorPosition(theta float64, k int) models.Point {
	src := g.SourcePosition(theta)
	alpha := theta + math.Pi - g.DetectorOffset(k)
	return models.Point{
		X: src.X + g.sourceToDetector*math.Cos(alpha),
		Y: src.Y + g.sourceToDetector*math.Sin(alpha),
	}
}

// DetectorPositions returns the positions of all detectors at angle theta,
// in detector index order.
func (g *ScannerGeometry) DetectorPositions(theta float64) []models.Point {
	positions := make([]models.Point, g.numDetectors)
	for k := range positions {
		positions[k] = g.DetectorPosition(theta, k)
	}
	return positions
}

// Describe writes a human readable summary of the geometry.
func (g *ScannerGeometry) Describe(w io.Writer) {
	fmt.Fprintln(w, "CT Geometry Config:")
	fmt.Fprintf(w, "  Projections: %d\n", g.numAngles)
	fmt.Fprintf(w, "  Detectors: %d\n", g.numDetectors)
	fmt.Fprintf(w, "  Detector Spacing: %g mm\n", g.detectorSpacing)
	fmt.Fprintf(w, "  Source-to-Center: %g mm\n", g.sourceToCenter)
	fmt.Fprintf(w, "  Source-to-Detector: %g mm\n", g.sourceToDetector)
}
