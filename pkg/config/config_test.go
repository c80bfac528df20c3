package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestDefaultConfig verifies the defaults describe a valid scanner
func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 180, cfg.Scanner.NumAngles)
	assert.Equal(t, 128, cfg.Scanner.NumDetectors)
	assert.Equal(t, 500.0, cfg.Scanner.SourceToCenter)
	assert.Equal(t, 1000.0, cfg.Scanner.SourceToDetector)
	assert.Equal(t, "ramp", cfg.Reconstruction.Filter)
	assert.GreaterOrEqual(t, cfg.Reconstruction.Workers, 1)
	require.NoError(t, cfg.Validate())
}

// TestScannerValidate rejects every non-positive geometry field
func TestScannerValidate(t *testing.T) {
	valid := DefaultConfig().Scanner
	require.NoError(t, valid.Validate())

	cases := map[string]func(s *Scanner){
		"angles":             func(s *Scanner) { s.NumAngles = 0 },
		"detectors":          func(s *Scanner) { s.NumDetectors = -1 },
		"spacing":            func(s *Scanner) { s.DetectorSpacing = 0 },
		"source to center":   func(s *Scanner) { s.SourceToCenter = -5 },
		"source to detector": func(s *Scanner) { s.SourceToDetector = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			s := valid
			mutate(&s)
			assert.Error(t, s.Validate())
		})
	}
}

// TestSaveAndLoadConfig checks both supported file formats
func TestSaveAndLoadConfig(t *testing.T) {
	for _, name := range []string{"scanner.yaml", "scanner.yml", "scanner.json"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "nested", name)

			cfg := DefaultConfig()
			cfg.Scanner.NumAngles = 90
			cfg.Scanner.DetectorSpacing = 0.5
			cfg.Reconstruction.Filter = "hamming"
			cfg.Noise.Enabled = true
			require.NoError(t, SaveConfig(cfg, path))

			loaded, err := LoadConfig(path)
			require.NoError(t, err)
			assert.Equal(t, 90, loaded.Scanner.NumAngles)
			assert.Equal(t, 0.5, loaded.Scanner.DetectorSpacing)
			assert.Equal(t, "hamming", loaded.Reconstruction.Filter)
			assert.True(t, loaded.Noise.Enabled)
		})
	}
}

// TestLoadConfigMissingFile falls back to defaults
func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Scanner, cfg.Scanner)
}

// TestUnsupportedFormat rejects unknown extensions on load and save
func TestUnsupportedFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scanner.toml")
	require.NoError(t, os.WriteFile(path, []byte("numAngles = 3"), 0644))

	_, err := LoadConfig(path)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	assert.ErrorIs(t, SaveConfig(DefaultConfig(), path), ErrUnsupportedFormat)
}

// TestLoadConfigRejectsInvalidScanner surfaces validation failures from the file
func TestLoadConfigRejectsInvalidScanner(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	data := []byte("scanner:\n  numAngles: 0\n")
	require.NoError(t, os.WriteFile(path, data, 0644))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

// TestLoadConfigRejectsUnknownKeys stops keys in the wrong case or with a typo
// from silently leaving the defaults in place
func TestLoadConfigRejectsUnknownKeys(t *testing.T) {
	cases := map[string]string{
		"snake case yaml": "scanner:\n  num_angles: 7\n  num_detectors: 9\n",
		"typo yaml":       "scanner:\n  numAngle: 7\n",
		"camel case json": `{"scanner": {"numAngles": 7}}`,
		"typo json":       `{"reconstruction": {"filtr": "ramp"}}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			ext := ".yaml"
			if body[0] == '{' {
				ext = ".json"
			}
			path := filepath.Join(t.TempDir(), "scanner"+ext)
			require.NoError(t, os.WriteFile(path, []byte(body), 0644))

			_, err := LoadConfig(path)
			assert.Error(t, err)
		})
	}
}

// TestLoadConfigPartialFile keeps defaults for keys the file leaves out
func TestLoadConfigPartialFile(t *testing.T) {
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "partial.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("scanner:\n  numAngles: 7\n"), 0644))
	cfg, err := LoadConfig(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Scanner.NumAngles)
	assert.Equal(t, 128, cfg.Scanner.NumDetectors)

	jsonPath := filepath.Join(dir, "partial.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"scanner": {"num_detectors": 9}}`), 0644))
	cfg, err = LoadConfig(jsonPath)
	require.NoError(t, err)
	assert.Equal(t, 180, cfg.Scanner.NumAngles)
	assert.Equal(t, 9, cfg.Scanner.NumDetectors)

	emptyPath := filepath.Join(dir, "empty.yaml")
	require.NoError(t, os.WriteFile(emptyPath, nil, 0644))
	cfg, err = LoadConfig(emptyPath)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Scanner, cfg.Scanner)
}
