package api

import (
	"log/slog"
	"math"
	"math/rand/v2"
	"net/http"

	"github.com/gin-gonic/gin"
	"gonum.org/v1/gonum/mat"

	"ctraysim/pkg/arrayio"
	"ctraysim/pkg/reconstruction"
	"ctraysim/pkg/simulation"
)

// SimulateRaysRequest is the body of POST /simulate_rays.
type SimulateRaysRequest struct {
	NumRays          int     `json:"num_rays" binding:"required,gt=0,lte=100000"`
	DetectorDistance float64 `json:"detector_distance" binding:"required,gt=0"`
}

// MonteCarloRequest is the body of POST /monte_carlo.
type MonteCarloRequest struct {
	NumParticles     int     `json:"num_particles" binding:"required,gt=0,lte=10000000"`
	DetectorDistance float64 `json:"detector_distance" binding:"required,gt=0"`
}

// ReconstructRequest is the body of POST /reconstruct.
type ReconstructRequest struct {
	Projections   [][]float64 `json:"projections" binding:"required,min=1"`
	NumIterations *int        `json:"num_iterations" binding:"required,gte=0,lte=10000"`
}

// HandleRoot greets API clients.
func HandleRoot() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "Welcome to the ctraysim API!"})
	}
}

// HandleHealth reports liveness.
func HandleHealth() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

// HandleSimulateRays returns the end points of a fan of rays.
func HandleSimulateRays(logger *slog.Logger, metrics *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req SimulateRaysRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
			return
		}

		points, err := simulation.SimulateRays(req.NumRays, req.DetectorDistance)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		rays := make([][2]float64, len(points))
		for i, p := range points {
			rays[i] = [2]float64{p.X, p.Y}
		}
		metrics.addItems("rays", len(rays))
		logger.Info("simulated rays", "request_id", requestID(c), "rays", len(rays))
		c.JSON(http.StatusOK, gin.H{"rays": rays})
	}
}

// HandleMonteCarlo runs a particle simulation and returns its summary.
func HandleMonteCarlo(logger *slog.Logger, metrics *Metrics, newSource func() rand.Source) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req MonteCarloRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
			return
		}

		mc := simulation.MonteCarlo{Particles: req.NumParticles, DetectorDistance: req.DetectorDistance}
		points, err := mc.Run(newSource())
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		summary := mc.Analyze(points)
		metrics.addItems("particles", req.NumParticles)
		logger.Info("monte carlo run", "request_id", requestID(c),
			"particles", summary.TotalParticles, "absorbed_ratio", summary.AbsorbedRatio)
		c.JSON(http.StatusOK, gin.H{"results": summary})
	}
}

// HandleReconstruct runs the iterative reconstructor on the posted array.
func HandleReconstruct(logger *slog.Logger, metrics *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ReconstructRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
			return
		}
		projections, err := arrayio.FromRows(req.Projections)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		iterations := *req.NumIterations
		image, err := reconstruction.NewIterative(iterations).Reconstruct(projections)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		// Mixed-sign input can drive a column sum to zero and the estimate
		// to infinity, which JSON cannot carry.
		if !allFinite(image) {
			logger.Warn("iterative reconstruction diverged", "request_id", requestID(c), "iterations", iterations)
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "reconstruction diverged to a non-finite value"})
			return
		}
		metrics.addItems("iterations", iterations)
		rows, cols := image.Dims()
		logger.Info("iterative reconstruction", "request_id", requestID(c),
			"rows", rows, "cols", cols, "iterations", iterations)
		c.JSON(http.StatusOK, gin.H{"reconstructed_image": arrayio.ToRows(image)})
	}
}

func allFinite(m *mat.Dense) bool {
	raw := m.RawMatrix()
	for i := 0; i < raw.Rows; i++ {
		for _, v := range raw.Data[i*raw.Stride : i*raw.Stride+raw.Cols] {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
	}
	return true
}
