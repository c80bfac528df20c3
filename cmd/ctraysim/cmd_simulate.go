package main

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/mat"

	"ctraysim/pkg/arrayio"
	"ctraysim/pkg/catalog"
	"ctraysim/pkg/filter"
	"ctraysim/pkg/phantom"
	"ctraysim/pkg/reconstruction"
	"ctraysim/pkg/visualization"
)

func runSimulate(cmd *cobra.Command, _ []string) error {
	phantomName, _ := cmd.Flags().GetString("phantom")
	outDir, _ := cmd.Flags().GetString("out")
	forceNoise, _ := cmd.Flags().GetBool("noise")
	showProgress, _ := cmd.Flags().GetBool("progress")

	if outDir != "" {
		cfg.Output.Dir = outDir
	}
	if forceNoise {
		cfg.Noise.Enabled = true
	}

	params, err := reconstruction.ParamsFromConfig(cfg)
	if err != nil {
		return err
	}
	if showProgress {
		params.Progress = func(completed, total int, message string) {
			logger.Info(message, "completed", completed, "total", total)
		}
	}
	pipeline, err := reconstruction.NewPipeline(params, logger)
	if err != nil {
		return err
	}
	pipeline.Geometry().Describe(cmd.ErrOrStderr())

	img, err := loadPhantom(phantomName, cfg.Grid.Rows, cfg.Grid.Cols)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	start := time.Now()
	res, err := pipeline.Run(ctx, img)
	if err != nil {
		return fmt.Errorf("simulation failed: %w", err)
	}
	elapsed := time.Since(start)

	dir := cfg.Output.Dir
	if err := saveResult(dir, res); err != nil {
		return err
	}
	printMetrics(cmd.OutOrStdout(), res.Metrics, elapsed)
	fmt.Fprintf(cmd.OutOrStdout(), "Results saved to: %s\n", dir)

	if cfg.Output.CatalogPath == "" {
		return nil
	}
	runs, err := catalog.Open(cfg.Output.CatalogPath)
	if err != nil {
		return err
	}
	defer runs.Close()
	id, err := runs.Record(ctx, catalog.Run{
		Phantom:   phantomName,
		Filter:    params.Filter.String(),
		Scanner:   cfg.Scanner,
		Metrics:   res.Metrics,
		OutputDir: dir,
	})
	if err != nil {
		return err
	}
	logger.Info("run catalogued", "run_id", id, "catalog", cfg.Output.CatalogPath)
	return nil
}

// loadPhantom builds a named synthetic phantom or loads an image file.
func loadPhantom(name string, rows, cols int) (*mat.Dense, error) {
	switch strings.ToLower(name) {
	case "uniform":
		return phantom.Uniform(rows, cols, 1), nil
	}
	if rows != cols {
		return nil, fmt.Errorf("phantom %q needs a square grid, got %dx%d", name, rows, cols)
	}
	switch strings.ToLower(name) {
	case "shepp-logan", "shepp_logan", "shepplogan":
		return phantom.SheppLogan(rows)
	case "breast", "breast-tissue":
		return phantom.BreastTissue(rows)
	default:
		return phantom.Load(name, rows)
	}
}

func saveResult(dir string, res *reconstruction.Result) error {
	arrays := []struct {
		name string
		data *mat.Dense
	}{
		{"sinogram", res.Sinogram},
		{"filtered", res.Filtered},
		{"reconstruction", res.Image},
	}
	for _, a := range arrays {
		if err := arrayio.Save(filepath.Join(dir, a.name+".bin"), a.data); err != nil {
			return err
		}
	}

	plots := []struct {
		name  string
		title string
		data  *mat.Dense
	}{
		{"sinogram", "Sinogram (angle x detector)", res.Sinogram},
		{"reconstruction", "Reconstruction", res.Image},
	}
	for _, p := range plots {
		if err := visualization.SaveHeatMap(p.data, p.title, filepath.Join(dir, p.name+"_heatmap.png")); err != nil {
			return err
		}
	}
	if err := visualization.SavePNG(res.Image, filepath.Join(dir, "reconstruction.png")); err != nil {
		return err
	}
	return visualization.SaveProfile(res.Sinogram, 0, "Detector profile at angle 0", filepath.Join(dir, "profile.png"))
}

func printMetrics(w io.Writer, m reconstruction.ValidationMetrics, elapsed time.Duration) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "Validation Metrics")
	fmt.Fprintln(tw, "==================")
	fmt.Fprintf(tw, "Root Mean Square Error (RMSE):\t%.6f\n", m.RMSE)
	fmt.Fprintf(tw, "Structural Similarity Index (SSIM):\t%.3f\n", m.SSIM)
	fmt.Fprintf(tw, "Correlation:\t%.3f\n", m.Correlation)
	fmt.Fprintf(tw, "Mutual Information (MI):\t%.3f\n", m.MI)
	fmt.Fprintf(tw, "Entropy Difference:\t%.3f\n", m.EntropyDiff)
	fmt.Fprintf(tw, "Processing time:\t%.2fs\n", elapsed.Seconds())
	tw.Flush()
}

func runReconstruct(cmd *cobra.Command, args []string) error {
	out, _ := cmd.Flags().GetString("out")
	iterative, _ := cmd.Flags().GetBool("iterative")

	sino, err := arrayio.Load(args[0])
	if err != nil {
		return fmt.Errorf("failed to load sinogram: %w", err)
	}

	var img *mat.Dense
	if iterative {
		logger.Info("iterative reconstruction", "iterations", cfg.Reconstruction.Iterations)
		img, err = reconstruction.NewIterative(cfg.Reconstruction.Iterations).Reconstruct(sino)
	} else {
		var params *reconstruction.Params
		if params, err = reconstruction.ParamsFromConfig(cfg); err != nil {
			return err
		}
		var pipeline *reconstruction.Pipeline
		if pipeline, err = reconstruction.NewPipeline(params, logger); err != nil {
			return err
		}
		ctx, cancel := signalContext(cmd.Context())
		defer cancel()
		img, err = pipeline.Reconstruct(ctx, sino)
	}
	if err != nil {
		return err
	}

	if err := arrayio.Save(out, img); err != nil {
		return err
	}
	png := strings.TrimSuffix(out, filepath.Ext(out)) + ".png"
	if err := visualization.SavePNG(img, png); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Reconstruction saved to: %s (%s)\n", out, png)
	return nil
}

func runFilter(cmd *cobra.Command, _ []string) error {
	out, _ := cmd.Flags().GetString("out")
	kind, err := filter.ParseKind(cfg.Reconstruction.Filter)
	if err != nil {
		return err
	}
	if kind == filter.None {
		return errors.New("the configured filter is none; there is no response to plot")
	}
	kernel, err := filter.Kernel(kind, cfg.Scanner.NumDetectors)
	if err != nil {
		return err
	}
	freqs, gains := filter.Response(kernel)
	title := fmt.Sprintf("%s filter, %d detectors", kind, cfg.Scanner.NumDetectors)
	if err := visualization.SaveSeries(freqs, gains, title, "Frequency (cycles/sample)", "Gain", out); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Filter response saved to: %s\n", out)
	return nil
}

func runListRuns(cmd *cobra.Command, _ []string) error {
	limit, _ := cmd.Flags().GetInt("limit")
	if cfg.Output.CatalogPath == "" {
		return errors.New("no catalog configured; set output.catalogPath")
	}
	runs, err := catalog.Open(cfg.Output.CatalogPath)
	if err != nil {
		return err
	}
	defer runs.Close()

	list, err := runs.List(cmd.Context(), limit)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN ID\tCREATED\tPHANTOM\tFILTER\tANGLES\tRMSE\tSSIM")
	for _, r := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%.4f\t%.3f\n",
			r.ID, r.CreatedAt.Format(time.RFC3339), r.Phantom, r.Filter,
			r.Scanner.NumAngles, r.Metrics.RMSE, r.Metrics.SSIM)
	}
	return tw.Flush()
}
