package simulation

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ctraysim/internal/models"
)

func TestSimulateRays(t *testing.T) {
	points, err := SimulateRays(5, 50)
	require.NoError(t, err)
	require.Len(t, points, 5)

	origin := models.Point{}
	for _, p := range points {
		assert.InDelta(t, 50, origin.Distance(p), 1e-9)
		assert.Greater(t, p.X, 0.0)
	}
	assert.InDelta(t, -50*math.Sqrt2/2, points[0].Y, 1e-9)
	assert.InDelta(t, 0, points[2].Y, 1e-9)
	assert.InDelta(t, 50*math.Sqrt2/2, points[4].Y, 1e-9)

	single, err := SimulateRays(1, 10)
	require.NoError(t, err)
	assert.InDelta(t, -10*math.Sqrt2/2, single[0].Y, 1e-9)

	none, err := SimulateRays(0, 10)
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = SimulateRays(3, 0)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestMonteCarlo(t *testing.T) {
	mc := MonteCarlo{Particles: 20000, DetectorDistance: 50}
	points, err := mc.Run(rand.NewPCG(5, 6))
	require.NoError(t, err)
	require.Len(t, points, 20000)
	for _, p := range points {
		assert.True(t, p.X >= 0 && p.X < 50 && p.Y >= 0 && p.Y < 50)
	}

	s := mc.Analyze(points)
	assert.Equal(t, 20000, s.TotalParticles)
	assert.InDelta(t, 0.5, s.AbsorbedRatio, 0.02)

	_, err = MonteCarlo{Particles: -1, DetectorDistance: 5}.Run(rand.NewPCG(1, 1))
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestAnalyze(t *testing.T) {
	mc := MonteCarlo{Particles: 4, DetectorDistance: 10}
	s := mc.Analyze([]models.Point{{X: 1}, {X: 4.9}, {X: 5}, {X: 9}})
	assert.Equal(t, Summary{TotalParticles: 4, AbsorbedRatio: 0.5}, s)

	assert.Equal(t, Summary{TotalParticles: 4}, mc.Analyze(nil))
}
