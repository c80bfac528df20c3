// Package projection maps images to sinograms and back by tracing every ray
// of a fan-beam scan through a pixel grid.
//
// Forward and Back must be called with the same *geometry.RaySet so that the
// reconstruction uses exactly the geometry the sinogram was acquired with.
package projection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"ctraysim/internal/models"
	"ctraysim/pkg/geometry"
	"ctraysim/pkg/raytrace"
)

// ErrShapeMismatch is returned when an image does not match the projector
// grid or a sinogram does not match the ray set.
var ErrShapeMismatch = errors.New("projection: shape mismatch")

// ProgressCallback reports how many angles of the current pass are done.
type ProgressCallback func(completed, total int, message string)

// Projector traces rays through a fixed pixel grid. It holds no per-call
// state and may be shared between goroutines.
type Projector struct {
	grid        models.Grid
	intersector *raytrace.Intersector
	workers     int
	normalize   bool
	progress    ProgressCallback
	logger      *slog.Logger
}

// Option configures a Projector.
type Option func(*Projector)

// WithWorkers sets the number of goroutines used per call. Values below one
// are ignored.
func WithWorkers(n int) Option {
	return func(p *Projector) {
		if n >= 1 {
			p.workers = n
		}
	}
}

// WithIntersector replaces the default intersector.
func WithIntersector(in *raytrace.Intersector) Option {
	return func(p *Projector) {
		if in != nil {
			p.intersector = in
		}
	}
}

// WithProgress installs a progress callback. Calls are serialized.
func WithProgress(cb ProgressCallback) Option {
	return func(p *Projector) { p.progress = cb }
}

// WithLogger sets the logger used for debug output.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Projector) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithRayLengthNormalization makes Back divide each sinogram value by the
// in-grid length of its ray before smearing it. A sinogram of line integrals
// then backprojects to the mean attenuation along each ray, so a uniform
// image comes back close to its original value.
func WithRayLengthNormalization() Option {
	return func(p *Projector) { p.normalize = true }
}

// NewProjector creates a projector for the given grid.
func NewProjector(grid models.Grid, opts ...Option) (*Projector, error) {
	if grid.Rows <= 0 || grid.Cols <= 0 || !(grid.PixelSize > 0) {
		return nil, fmt.Errorf("%w: %dx%d pixel size %v", raytrace.ErrInvalidGrid, grid.Rows, grid.Cols, grid.PixelSize)
	}
	p := &Projector{
		grid:        grid,
		intersector: raytrace.NewDefault(),
		workers:     runtime.NumCPU(),
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Grid returns the pixel grid of the projector.
func (p *Projector) Grid() models.Grid { return p.grid }

// Forward computes the sinogram of image: for every ray, the sum over the
// visited pixels of pixel value times chord length. The result has one row
// per angle and one column per detector.
func (p *Projector) Forward(ctx context.Context, image *mat.Dense, rays *geometry.RaySet) (*mat.Dense, error) {
	r, c := image.Dims()
	if r != p.grid.Rows || c != p.grid.Cols {
		return nil, fmt.Errorf("%w: image is %dx%d, grid is %dx%d", ErrShapeMismatch, r, c, p.grid.Rows, p.grid.Cols)
	}
	numAngles, numDetectors := rays.NumAngles(), rays.NumDetectors()
	if numAngles == 0 || numDetectors == 0 {
		return nil, fmt.Errorf("%w: empty ray set", ErrShapeMismatch)
	}

	p.logger.Debug("forward projection",
		"angles", numAngles, "detectors", numDetectors, "workers", p.workers)

	sino := mat.NewDense(numAngles, numDetectors, nil)
	report := p.reporter(numAngles, "forward projection")

	err := p.forEachChunk(ctx, numAngles, func(ctx context.Context, _, start, end int) error {
		row := make([]float64, numDetectors)
		for a := start; a < end; a++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			for k, ray := range rays.Angle(a) {
				records, err := p.intersector.Intersect(ray, p.grid)
				if err != nil {
					return fmt.Errorf("angle %d detector %d: %w", a, k, err)
				}
				sum := 0.0
				for _, rec := range records {
					sum += image.At(rec.Row, rec.Col) * rec.Length
				}
				row[k] = sum
			}
			// Each worker owns a disjoint block of sinogram rows.
			sino.SetRow(a, row)
			report()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sino, nil
}

// Back smears every sinogram value over the pixels its ray visits and
// normalizes each pixel by the total chord length it received. Pixels no ray
// touches are zero.
func (p *Projector) Back(ctx context.Context, sino *mat.Dense, rays *geometry.RaySet) (*mat.Dense, error) {
	numAngles, numDetectors := rays.NumAngles(), rays.NumDetectors()
	r, c := sino.Dims()
	if r != numAngles || c != numDetectors {
		return nil, fmt.Errorf("%w: sinogram is %dx%d, ray set is %dx%d", ErrShapeMismatch, r, c, numAngles, numDetectors)
	}

	size := p.grid.Rows * p.grid.Cols
	workers := p.workerCount(numAngles)
	acc := make([][]float64, workers)
	weight := make([][]float64, workers)

	p.logger.Debug("backprojection",
		"angles", numAngles, "detectors", numDetectors, "workers", workers, "normalize", p.normalize)

	report := p.reporter(numAngles, "backprojection")

	err := p.forEachChunk(ctx, numAngles, func(ctx context.Context, w, start, end int) error {
		a, wt := make([]float64, size), make([]float64, size)
		acc[w], weight[w] = a, wt
		for ang := start; ang < end; ang++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			for k, ray := range rays.Angle(ang) {
				records, err := p.intersector.Intersect(ray, p.grid)
				if err != nil {
					return fmt.Errorf("angle %d detector %d: %w", ang, k, err)
				}
				v := sino.At(ang, k)
				if p.normalize {
					total := raytrace.TotalLength(records)
					if total == 0 {
						continue
					}
					v /= total
				}
				for _, rec := range records {
					idx := rec.Row*p.grid.Cols + rec.Col
					a[idx] += v * rec.Length
					wt[idx] += rec.Length
				}
			}
			report()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Merge in worker order so the result does not depend on scheduling.
	sumAcc := make([]float64, size)
	sumWeight := make([]float64, size)
	for w := range acc {
		if acc[w] == nil {
			continue
		}
		for i := range sumAcc {
			sumAcc[i] += acc[w][i]
			sumWeight[i] += weight[w][i]
		}
	}

	out := make([]float64, size)
	for i := range out {
		if sumWeight[i] > 0 {
			out[i] = sumAcc[i] / sumWeight[i]
		}
	}
	return mat.NewDense(p.grid.Rows, p.grid.Cols, out), nil
}

func (p *Projector) workerCount(numAngles int) int {
	workers := p.workers
	if workers < 1 {
		workers = 1
	}
	if workers > numAngles {
		workers = numAngles
	}
	return workers
}

// forEachChunk splits [0, n) into contiguous chunks, one per worker, and runs
// fn on each chunk concurrently. The first error cancels the others.
func (p *Projector) forEachChunk(ctx context.Context, n int, fn func(ctx context.Context, worker, start, end int) error) error {
	workers := p.workerCount(n)
	perWorker := (n + workers - 1) / workers

	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		start := w * perWorker
		end := min(start+perWorker, n)
		if start >= end {
			continue
		}
		g.Go(func() error {
			return fn(ctx, w, start, end)
		})
	}
	return g.Wait()
}

func (p *Projector) reporter(total int, message string) func() {
	if p.progress == nil {
		return func() {}
	}
	var (
		mu   sync.Mutex
		done int
	)
	return func() {
		mu.Lock()
		defer mu.Unlock()
		done++
		p.progress(done, total, message)
	}
}
