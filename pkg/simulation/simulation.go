// Package simulation holds two small demonstration models: a fan of rays
// leaving a point source and a Monte Carlo particle absorption estimate.
package simulation

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"

	"ctraysim/internal/models"
)

// ErrInvalidArgument is returned for negative counts or a non-positive
// detector distance.
var ErrInvalidArgument = errors.New("simulation: invalid argument")

// SimulateRays returns the end points of numRays rays leaving the origin at
// evenly spaced angles over [-π/4, π/4], each of length distance.
func SimulateRays(numRays int, distance float64) ([]models.Point, error) {
	if numRays < 0 || !(distance > 0) {
		return nil, fmt.Errorf("%w: %d rays at distance %v", ErrInvalidArgument, numRays, distance)
	}
	angles := make([]float64, numRays)
	switch numRays {
	case 0:
		return []models.Point{}, nil
	case 1:
		angles[0] = -math.Pi / 4
	default:
		floats.Span(angles, -math.Pi/4, math.Pi/4)
	}

	points := make([]models.Point, numRays)
	for i, a := range angles {
		points[i] = models.Point{X: math.Cos(a) * distance, Y: math.Sin(a) * distance}
	}
	return points, nil
}

// MonteCarlo scatters particle interaction points uniformly over a square
// of side DetectorDistance.
type MonteCarlo struct {
	Particles        int
	DetectorDistance float64
}

// Summary is the outcome of a Monte Carlo run.
type Summary struct {
	TotalParticles int     `json:"total_particles"`
	AbsorbedRatio  float64 `json:"absorbed_ratio"`
}

// Run draws one interaction point per particle.
func (mc MonteCarlo) Run(src rand.Source) ([]models.Point, error) {
	if mc.Particles < 0 || !(mc.DetectorDistance > 0) {
		return nil, fmt.Errorf("%w: %d particles at distance %v", ErrInvalidArgument, mc.Particles, mc.DetectorDistance)
	}
	dist := distuv.Uniform{Min: 0, Max: mc.DetectorDistance, Src: src}
	points := make([]models.Point, mc.Particles)
	for i := range points {
		points[i] = models.Point{X: dist.Rand(), Y: dist.Rand()}
	}
	return points, nil
}

// Analyze counts a particle as absorbed when its interaction lies in the
// near half of the square (x < DetectorDistance/2).
func (mc MonteCarlo) Analyze(points []models.Point) Summary {
	s := Summary{TotalParticles: mc.Particles}
	if len(points) == 0 {
		return s
	}
	absorbed := 0
	for _, p := range points {
		if p.X < mc.DetectorDistance/2 {
			absorbed++
		}
	}
	s.AbsorbedRatio = float64(absorbed) / float64(len(points))
	return s
}
