// Package reconstruction turns sinograms back into images. It provides the
// filtered backprojection pipeline, a geometry-free iterative reconstructor
// and the quality metrics used to compare results with their phantoms.
package reconstruction

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/mat"

	"ctraysim/internal/models"
	"ctraysim/pkg/arrayio"
	"ctraysim/pkg/config"
	"ctraysim/pkg/detector"
	"ctraysim/pkg/filter"
	"ctraysim/pkg/geometry"
	"ctraysim/pkg/noise"
	"ctraysim/pkg/projection"
	"ctraysim/pkg/raytrace"
	"ctraysim/pkg/visualization"
)

// ProgressCallback reports progress of the current pipeline pass.
type ProgressCallback = projection.ProgressCallback

// NoiseParams configures the acquisition noise applied by Simulate.
type NoiseParams struct {
	Enabled      bool
	PhotonCount  float64
	GaussianMean float64
	GaussianStd  float64
	Seed         uint64
}

// DetectorParams configures detector imperfections; zero values disable them.
type DetectorParams struct {
	BlurSigma  float64
	Saturation float64
}

// Params holds the pipeline configuration.
type Params struct {
	// Scanner is the fan-beam geometry description.
	Scanner config.Scanner

	// Grid is the pixel grid of phantoms and reconstructions.
	Grid models.Grid

	// Oversample is the intersector sampling density; zero means the default.
	Oversample float64

	// Filter applied before backprojection; filter.None backprojects the raw
	// sinogram.
	Filter filter.Kind

	// Workers specifies how many goroutines process angles in parallel.
	Workers int

	// NormalizeRayLength enables ray length normalization in backprojection.
	NormalizeRayLength bool

	Noise    NoiseParams
	Detector DetectorParams

	// SaveIntermediaryResults determines whether to save each stage as a PNG
	// and a raw array under IntermediaryDir.
	SaveIntermediaryResults bool
	IntermediaryDir         string

	// Progress, when set, receives per-angle progress.
	Progress ProgressCallback
}

// ParamsFromConfig builds pipeline parameters from a loaded configuration.
func ParamsFromConfig(cfg *config.Config) (*Params, error) {
	kind, err := filter.ParseKind(cfg.Reconstruction.Filter)
	if err != nil {
		return nil, err
	}
	grid := models.Grid{Rows: cfg.Grid.Rows, Cols: cfg.Grid.Cols, PixelSize: cfg.Grid.PixelSize}
	if cfg.Grid.Centered {
		grid = models.Centered(cfg.Grid.Rows, cfg.Grid.Cols, cfg.Grid.PixelSize)
	}
	return &Params{
		Scanner:            cfg.Scanner,
		Grid:               grid,
		Oversample:         cfg.Reconstruction.Oversample,
		Filter:             kind,
		Workers:            cfg.Reconstruction.Workers,
		NormalizeRayLength: cfg.Reconstruction.NormalizeRayLength,
		Noise: NoiseParams{
			Enabled:      cfg.Noise.Enabled,
			PhotonCount:  cfg.Noise.PhotonCount,
			GaussianMean: cfg.Noise.GaussianMean,
			GaussianStd:  cfg.Noise.GaussianStd,
			Seed:         cfg.Noise.Seed,
		},
		Detector: DetectorParams{
			BlurSigma:  cfg.Detector.BlurSigma,
			Saturation: cfg.Detector.Saturation,
		},
		SaveIntermediaryResults: cfg.Output.SaveIntermediaryResults,
		IntermediaryDir:         filepath.Join(cfg.Output.Dir, "intermediary"),
	}, nil
}

// Result collects every stage of a pipeline run.
type Result struct {
	Sinogram *mat.Dense
	Filtered *mat.Dense
	Image    *mat.Dense
	Metrics  ValidationMetrics
}

// Pipeline runs fan-beam acquisition and filtered backprojection.
//
// The geometry, ray set and projector are built once in NewPipeline and
// shared by Simulate and Reconstruct, so a sinogram is always reconstructed
// with the rays that acquired it.
type Pipeline struct {
	params    *Params
	geometry  *geometry.ScannerGeometry
	rays      *geometry.RaySet
	projector *projection.Projector
	logger    *slog.Logger
}

// NewPipeline validates params and prepares the shared geometry. A nil logger
// uses slog.Default().
func NewPipeline(params *Params, logger *slog.Logger) (*Pipeline, error) {
	if logger == nil {
		logger = slog.Default()
	}
	g, err := geometry.New(params.Scanner)
	if err != nil {
		return nil, err
	}

	in := raytrace.NewDefault()
	if params.Oversample != 0 {
		if in, err = raytrace.New(params.Oversample); err != nil {
			return nil, err
		}
	}
	opts := []projection.Option{
		projection.WithIntersector(in),
		projection.WithWorkers(params.Workers),
		projection.WithLogger(logger),
	}
	if params.NormalizeRayLength {
		opts = append(opts, projection.WithRayLengthNormalization())
	}
	if params.Progress != nil {
		opts = append(opts, projection.WithProgress(params.Progress))
	}
	proj, err := projection.NewProjector(params.Grid, opts...)
	if err != nil {
		return nil, err
	}

	return &Pipeline{
		params:    params,
		geometry:  g,
		rays:      geometry.GenerateRays(g),
		projector: proj,
		logger:    logger,
	}, nil
}

// Geometry returns the scanner geometry.
func (p *Pipeline) Geometry() *geometry.ScannerGeometry { return p.geometry }

// Rays returns the shared ray set.
func (p *Pipeline) Rays() *geometry.RaySet { return p.rays }

// Simulate acquires a sinogram of phantom, then applies noise and detector
// effects when configured.
func (p *Pipeline) Simulate(ctx context.Context, phantom *mat.Dense) (*mat.Dense, error) {
	p.logger.Info("forward projecting phantom",
		"angles", p.geometry.NumAngles(), "detectors", p.geometry.NumDetectors())
	sino, err := p.projector.Forward(ctx, phantom, p.rays)
	if err != nil {
		return nil, fmt.Errorf("forward projection failed: %w", err)
	}

	if n := p.params.Noise; n.Enabled {
		p.logger.Info("adding acquisition noise", "photons", n.PhotonCount, "gaussian_std", n.GaussianStd)
		src := noise.NewSource(n.Seed)
		if n.PhotonCount > 0 {
			if sino, err = noise.Poisson(sino, n.PhotonCount, src); err != nil {
				return nil, err
			}
		}
		if n.GaussianStd > 0 || n.GaussianMean != 0 {
			if sino, err = noise.Gaussian(sino, n.GaussianMean, n.GaussianStd, src); err != nil {
				return nil, err
			}
		}
	}

	d := p.params.Detector
	if d.BlurSigma > 0 {
		p.logger.Info("applying detector blur", "sigma", d.BlurSigma)
		sino = detector.Blur(sino, d.BlurSigma)
	}
	if d.Saturation > 0 {
		p.logger.Info("applying detector saturation", "max", d.Saturation)
		if sino, err = detector.Saturate(sino, d.Saturation); err != nil {
			return nil, err
		}
	}
	return sino, nil
}

// Filter applies the configured filter to sino. With filter.None the input
// is returned unchanged.
func (p *Pipeline) Filter(ctx context.Context, sino *mat.Dense) (*mat.Dense, error) {
	if p.params.Filter == filter.None {
		return sino, nil
	}
	p.logger.Info("filtering sinogram", "filter", p.params.Filter.String())
	out, err := filter.Apply(ctx, sino, p.params.Filter)
	if err != nil {
		return nil, fmt.Errorf("filtering failed: %w", err)
	}
	return out, nil
}

// Reconstruct filters sino and backprojects it onto the grid.
func (p *Pipeline) Reconstruct(ctx context.Context, sino *mat.Dense) (*mat.Dense, error) {
	filtered, err := p.Filter(ctx, sino)
	if err != nil {
		return nil, err
	}
	return p.backproject(ctx, filtered)
}

func (p *Pipeline) backproject(ctx context.Context, sino *mat.Dense) (*mat.Dense, error) {
	p.logger.Info("backprojecting", "rows", p.params.Grid.Rows, "cols", p.params.Grid.Cols)
	img, err := p.projector.Back(ctx, sino, p.rays)
	if err != nil {
		return nil, fmt.Errorf("backprojection failed: %w", err)
	}
	return img, nil
}

// Run executes the complete pipeline on phantom and computes validation
// metrics against it.
func (p *Pipeline) Run(ctx context.Context, phantom *mat.Dense) (*Result, error) {
	if p.params.SaveIntermediaryResults {
		if err := os.MkdirAll(p.params.IntermediaryDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create intermediary directory: %w", err)
		}
	}

	p.logger.Info("Step 1: Preparing phantom")
	p.saveIntermediaryResult("01_phantom", phantom)

	p.logger.Info("Step 2: Simulating acquisition")
	sino, err := p.Simulate(ctx, phantom)
	if err != nil {
		return nil, err
	}
	p.saveIntermediaryResult("02_sinogram", sino)

	p.logger.Info("Step 3: Filtering projections")
	filtered, err := p.Filter(ctx, sino)
	if err != nil {
		return nil, err
	}
	p.saveIntermediaryResult("03_filtered", filtered)

	p.logger.Info("Step 4: Backprojecting")
	img, err := p.backproject(ctx, filtered)
	if err != nil {
		return nil, err
	}
	p.saveIntermediaryResult("04_reconstruction", img)

	p.logger.Info("Step 5: Calculating validation metrics")
	metrics, err := CompareImages(phantom, img)
	if err != nil {
		return nil, err
	}
	p.logger.Info("reconstruction complete",
		"rmse", metrics.RMSE, "ssim", metrics.SSIM, "correlation", metrics.Correlation)

	return &Result{Sinogram: sino, Filtered: filtered, Image: img, Metrics: metrics}, nil
}

// saveIntermediaryResult writes one stage as a PNG and a raw array. Failures
// are logged and do not stop the pipeline.
func (p *Pipeline) saveIntermediaryResult(stage string, data *mat.Dense) {
	if !p.params.SaveIntermediaryResults {
		return
	}
	base := filepath.Join(p.params.IntermediaryDir, stage)
	if err := visualization.SavePNG(data, base+".png"); err != nil {
		p.logger.Warn("failed to save intermediary image", "stage", stage, "error", err)
	}
	if err := arrayio.Save(base+".bin", data); err != nil {
		p.logger.Warn("failed to save intermediary array", "stage", stage, "error", err)
	}
}
