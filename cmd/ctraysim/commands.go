package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"ctraysim/internal/logging"
	"ctraysim/pkg/config"
)

// --- Global Command Variables ---
var (
	configPath string
	logLevel   string
	logFormat  string

	cfg    *config.Config
	logger *slog.Logger

	rootCmd = &cobra.Command{
		Use:   "ctraysim",
		Short: "A 2-D fan-beam CT acquisition and reconstruction simulator",
		Long: `ctraysim traces fan-beam rays through a pixel grid, simulates
sinograms of synthetic phantoms and reconstructs them with filtered
backprojection.`,
		SilenceUsage:      true,
		PersistentPreRunE: loadSettings,
	}

	// --- Simulation ---
	simulateCmd = &cobra.Command{
		Use:   "simulate",
		Short: "Acquire a phantom sinogram and reconstruct it",
		RunE:  runSimulate,
	}
	reconstructCmd = &cobra.Command{
		Use:   "reconstruct [sinogram file]",
		Short: "Reconstruct an image from a saved sinogram",
		Args:  cobra.ExactArgs(1),
		RunE:  runReconstruct,
	}
	filterCmd = &cobra.Command{
		Use:   "filter",
		Short: "Plot the frequency response of the configured filter",
		RunE:  runFilter,
	}
	runsCmd = &cobra.Command{
		Use:   "runs",
		Short: "List catalogued simulation runs",
		RunE:  runListRuns,
	}

	// --- Toy models ---
	raysCmd = &cobra.Command{
		Use:   "rays",
		Short: "Print the end points of a fan of rays",
		RunE:  runRays,
	}
	monteCarloCmd = &cobra.Command{
		Use:   "montecarlo",
		Short: "Run a Monte Carlo particle absorption estimate",
		RunE:  runMonteCarlo,
	}

	// --- Service ---
	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE:  runServe,
	}

	// --- Configuration ---
	configCmd = &cobra.Command{
		Use:   "config",
		Short: "Manage configuration files",
	}
	configInitCmd = &cobra.Command{
		Use:   "init [path]",
		Short: "Write a default configuration file (YAML or JSON by extension)",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runConfigInit,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "ctraysim.yaml", "configuration file (.yaml or .json)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override the configured log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "override the configured log format (text, json)")

	simulateCmd.Flags().String("phantom", "shepp-logan", "phantom: shepp-logan, breast, uniform or an image file path")
	simulateCmd.Flags().StringP("out", "o", "", "output directory (defaults to output.dir)")
	simulateCmd.Flags().Bool("noise", false, "enable acquisition noise regardless of the configuration")
	simulateCmd.Flags().Bool("progress", false, "log per-angle progress")
	rootCmd.AddCommand(simulateCmd)

	reconstructCmd.Flags().StringP("out", "o", "reconstruction.bin", "output array (.bin or .json); a PNG is written alongside")
	reconstructCmd.Flags().Bool("iterative", false, "use the geometry-free iterative reconstructor")
	rootCmd.AddCommand(reconstructCmd)

	filterCmd.Flags().StringP("out", "o", "filter.png", "output plot")
	rootCmd.AddCommand(filterCmd)

	runsCmd.Flags().Int("limit", 20, "maximum number of runs to list; 0 lists all")
	rootCmd.AddCommand(runsCmd)

	raysCmd.Flags().Int("num-rays", 10, "number of rays")
	raysCmd.Flags().Float64("distance", 100, "ray length")
	raysCmd.Flags().String("plot", "", "optional PNG of the ray end points")
	rootCmd.AddCommand(raysCmd)

	monteCarloCmd.Flags().Int("particles", 1000, "number of particles")
	monteCarloCmd.Flags().Float64("distance", 100, "side of the detector square")
	monteCarloCmd.Flags().Uint64("seed", 1, "random seed")
	rootCmd.AddCommand(monteCarloCmd)

	serveCmd.Flags().String("addr", "", "listen address (defaults to server.addr)")
	rootCmd.AddCommand(serveCmd)

	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(configCmd)
}

// loadSettings reads the configuration and builds the logger before every
// command.
func loadSettings(cmd *cobra.Command, _ []string) error {
	loaded, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}
	if logLevel != "" {
		loaded.Logging.Level = logLevel
	}
	if logFormat != "" {
		loaded.Logging.Format = logFormat
	}
	l, err := logging.FromStrings(loaded.Logging.Level, loaded.Logging.Format, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	cfg, logger = loaded, l
	slog.SetDefault(logger)
	logger.Debug("configuration loaded", "path", configPath)
	return nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
