package main

import (
	"encoding/json"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"ctraysim/pkg/api"
	"ctraysim/pkg/config"
	"ctraysim/pkg/noise"
	"ctraysim/pkg/simulation"
	"ctraysim/pkg/visualization"
)

func runRays(cmd *cobra.Command, _ []string) error {
	numRays, _ := cmd.Flags().GetInt("num-rays")
	distance, _ := cmd.Flags().GetFloat64("distance")
	plotPath, _ := cmd.Flags().GetString("plot")

	points, err := simulation.SimulateRays(numRays, distance)
	if err != nil {
		return err
	}
	if plotPath != "" && len(points) > 0 {
		x := make([]float64, len(points))
		y := make([]float64, len(points))
		for i, p := range points {
			x[i], y[i] = p.X, p.Y
		}
		if err := visualization.SaveSeries(x, y, "Ray end points", "x", "y", plotPath); err != nil {
			return err
		}
	}

	rays := make([][2]float64, len(points))
	for i, p := range points {
		rays[i] = [2]float64{p.X, p.Y}
	}
	return printJSON(cmd, map[string]any{"rays": rays})
}

func runMonteCarlo(cmd *cobra.Command, _ []string) error {
	particles, _ := cmd.Flags().GetInt("particles")
	distance, _ := cmd.Flags().GetFloat64("distance")
	seed, _ := cmd.Flags().GetUint64("seed")

	mc := simulation.MonteCarlo{Particles: particles, DetectorDistance: distance}
	points, err := mc.Run(noise.NewSource(seed))
	if err != nil {
		return err
	}
	return printJSON(cmd, map[string]any{"results": mc.Analyze(points)})
}

func runServe(cmd *cobra.Command, _ []string) error {
	addr, _ := cmd.Flags().GetString("addr")
	if addr == "" {
		addr = cfg.Server.Addr
	}
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	ctx, cancel := signalContext(cmd.Context())
	defer cancel()
	return api.NewServer(addr, logger).Run(ctx)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := configPath
	if len(args) == 1 {
		path = args[0]
	}
	if err := config.CreateDefaultConfigFile(path); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Default configuration written to: %s\n", path)
	return nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
