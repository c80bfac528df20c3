// Package config provides configuration loading and management for ctraysim.
// It handles loading configuration from YAML or JSON files, validating it and
// providing default values.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ErrUnsupportedFormat is returned when a configuration path has an
// extension other than .json, .yml or .yaml.
var ErrUnsupportedFormat = errors.New("unsupported config format, use .json or .yaml")

var validate = validator.New(validator.WithRequiredStructEnabled())

// Scanner is the fan-beam scanner description consumed by the geometry
// provider. All five fields must be strictly positive.
type Scanner struct {
	// NumAngles is the number of projection angles over a full rotation
	NumAngles int `yaml:"numAngles" json:"num_angles" validate:"gt=0"`

	// NumDetectors is the number of detector elements on the arc
	NumDetectors int `yaml:"numDetectors" json:"num_detectors" validate:"gt=0"`

	// DetectorSpacing is the arc length between neighbouring detectors in mm
	DetectorSpacing float64 `yaml:"detectorSpacing" json:"detector_spacing" validate:"gt=0"`

	// SourceToCenter is the distance from the source to the rotation center in mm
	SourceToCenter float64 `yaml:"sourceToCenter" json:"source_to_center" validate:"gt=0"`

	// SourceToDetector is the distance from the source to the detector arc in mm
	SourceToDetector float64 `yaml:"sourceToDetector" json:"source_to_detector" validate:"gt=0"`
}

// Validate checks that every scanner field is strictly positive.
func (s Scanner) Validate() error {
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("invalid scanner configuration: %w", err)
	}
	return nil
}

// Config represents the application configuration.
type Config struct {
	Scanner Scanner `yaml:"scanner" json:"scanner"`

	// Grid describes the reconstruction / phantom pixel grid
	Grid struct {
		Rows      int     `yaml:"rows" json:"rows" validate:"gt=0"`
		Cols      int     `yaml:"cols" json:"cols" validate:"gt=0"`
		PixelSize float64 `yaml:"pixelSize" json:"pixel_size" validate:"gt=0"`

		// Centered places the grid center on the rotation center. When false the
		// pixel (0, 0) corner sits on the rotation center.
		Centered bool `yaml:"centered" json:"centered"`
	} `yaml:"grid" json:"grid"`

	// Reconstruction parameters
	Reconstruction struct {
		// Filter is one of "ramp", "shepp-logan", "hamming" or "none"
		Filter string `yaml:"filter" json:"filter" validate:"oneof=ramp shepp-logan hamming none"`

		// Oversample controls the ray sampling density of the intersector
		Oversample float64 `yaml:"oversample" json:"oversample" validate:"gt=0"`

		// Iterations is the number of rounds of the iterative reconstructor
		Iterations int `yaml:"iterations" json:"iterations" validate:"gte=0"`

		// Workers specifies how many goroutines process angles in parallel
		Workers int `yaml:"workers" json:"workers" validate:"gte=1"`

		// NormalizeRayLength divides each sinogram value by its ray's in-grid
		// length before backprojection
		NormalizeRayLength bool `yaml:"normalizeRayLength" json:"normalize_ray_length"`
	} `yaml:"reconstruction" json:"reconstruction"`

	// Noise parameters; disabled unless Enabled is set
	Noise struct {
		Enabled      bool    `yaml:"enabled" json:"enabled"`
		PhotonCount  float64 `yaml:"photonCount" json:"photon_count" validate:"gte=0"`
		GaussianMean float64 `yaml:"gaussianMean" json:"gaussian_mean"`
		GaussianStd  float64 `yaml:"gaussianStd" json:"gaussian_std" validate:"gte=0"`
		Seed         uint64  `yaml:"seed" json:"seed"`
	} `yaml:"noise" json:"noise"`

	// Detector imperfection parameters; a zero value disables the effect
	Detector struct {
		BlurSigma  float64 `yaml:"blurSigma" json:"blur_sigma" validate:"gte=0"`
		Saturation float64 `yaml:"saturation" json:"saturation" validate:"gte=0"`
	} `yaml:"detector" json:"detector"`

	// Output parameters
	Output struct {
		// Dir is where simulation artifacts are written
		Dir string `yaml:"dir" json:"dir"`

		// SaveIntermediaryResults determines whether to save intermediary processing results
		SaveIntermediaryResults bool `yaml:"saveIntermediaryResults" json:"save_intermediary_results"`

		// CatalogPath is the SQLite run catalog; empty disables cataloguing
		CatalogPath string `yaml:"catalogPath" json:"catalog_path"`
	} `yaml:"output" json:"output"`

	// Server parameters
	Server struct {
		Addr string `yaml:"addr" json:"addr" validate:"required"`
	} `yaml:"server" json:"server"`

	// Logging parameters
	Logging struct {
		Level  string `yaml:"level" json:"level" validate:"oneof=debug info warn error"`
		Format string `yaml:"format" json:"format" validate:"oneof=text json"`
	} `yaml:"logging" json:"logging"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Scanner = Scanner{
		NumAngles:        180,
		NumDetectors:     128,
		DetectorSpacing:  1.0,
		SourceToCenter:   500,
		SourceToDetector: 1000,
	}

	cfg.Grid.Rows = 128
	cfg.Grid.Cols = 128
	cfg.Grid.PixelSize = 1.0
	cfg.Grid.Centered = true

	cfg.Reconstruction.Filter = "ramp"
	cfg.Reconstruction.Oversample = 2.0
	cfg.Reconstruction.Iterations = 10
	cfg.Reconstruction.Workers = runtime.NumCPU() // Use all available cores by default

	cfg.Noise.PhotonCount = 1e4
	cfg.Noise.GaussianStd = 0.01
	cfg.Noise.Seed = 1

	cfg.Output.Dir = "output"

	cfg.Server.Addr = ":8000"

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "text"

	return cfg
}

// Validate checks the whole configuration.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// LoadConfig loads configuration from a YAML or JSON file.
// If the file doesn't exist, it returns the default configuration. Keys
// that match no field are rejected so a misspelled key cannot silently
// leave a default in place. YAML keys are camelCase, JSON keys snake_case.
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	switch formatOf(configPath) {
	case "json":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		err = dec.Decode(cfg)
	case "yaml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		err = dec.Decode(cfg)
	default:
		return nil, fmt.Errorf("%s: %w", configPath, ErrUnsupportedFormat)
	}
	// An empty file keeps the defaults.
	if errors.Is(err, io.EOF) {
		err = nil
	}
	if err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SaveConfig saves the configuration to a YAML or JSON file
func SaveConfig(cfg *Config, configPath string) error {
	var (
		data []byte
		err  error
	)
	switch formatOf(configPath) {
	case "json":
		data, err = json.MarshalIndent(cfg, "", "    ")
	case "yaml":
		data, err = yaml.Marshal(cfg)
	default:
		return fmt.Errorf("%s: %w", configPath, ErrUnsupportedFormat)
	}
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	return SaveConfig(DefaultConfig(), configPath)
}

func formatOf(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return "json"
	case ".yml", ".yaml":
		return "yaml"
	}
	return ""
}
