package main

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ctraysim/pkg/config"
)

func execute(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs(args)
	require.NoError(t, rootCmd.Execute())
	return out.String()
}

func TestLoadPhantom(t *testing.T) {
	img, err := loadPhantom("uniform", 4, 6)
	require.NoError(t, err)
	r, c := img.Dims()
	assert.Equal(t, 4, r)
	assert.Equal(t, 6, c)

	img, err = loadPhantom("Shepp-Logan", 16, 16)
	require.NoError(t, err)
	r, _ = img.Dims()
	assert.Equal(t, 16, r)

	_, err = loadPhantom("breast", 8, 16)
	assert.Error(t, err, "non-square grid")

	_, err = loadPhantom(filepath.Join(t.TempDir(), "missing.png"), 8, 8)
	assert.Error(t, err)
}

func TestConfigInitAndRays(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ctraysim.yaml")
	execute(t, "--config", path, "config", "init")

	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultConfig().Scanner, cfg.Scanner)

	out := execute(t, "--config", path, "rays", "--num-rays", "3", "--distance", "2")
	var resp struct {
		Rays [][2]float64 `json:"rays"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Rays, 3)
	assert.InDelta(t, 2.0, resp.Rays[1][0], 1e-12)
}

func TestMonteCarloCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.yaml")
	out := execute(t, "--config", path, "montecarlo", "--particles", "500", "--distance", "4", "--seed", "3")

	var resp struct {
		Results struct {
			TotalParticles int     `json:"total_particles"`
			AbsorbedRatio  float64 `json:"absorbed_ratio"`
		} `json:"results"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, 500, resp.Results.TotalParticles)
	assert.Greater(t, resp.Results.AbsorbedRatio, 0.3)
	assert.Less(t, resp.Results.AbsorbedRatio, 0.7)
}
