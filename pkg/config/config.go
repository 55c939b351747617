// Package config provides configuration loading and management for blurredcluster.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"math"
	"os"
	"path/filepath"
	"runtime"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"blurredcluster/pkg/geometry"
)

// ErrInvalidConfig is returned by Validate for unusable settings
var ErrInvalidConfig = errors.New("invalid configuration")

// Blur methods
const (
	MethodDirect = "direct"
	MethodFFT    = "fft"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Gaussian blur parameters
	Blur struct {
		// Wire is the kernel radius along the wire axis, in wires
		Wire int `yaml:"wire"`

		// Tick is the kernel radius along the tick axis, in ticks
		Tick int `yaml:"tick"`

		// Sigma is the Gaussian width, in bins
		Sigma float64 `yaml:"sigma"`

		// SigmaTick is the width along the tick axis; zero uses Sigma
		SigmaTick float64 `yaml:"sigmaTick"`

		// Method selects the convolver: "direct" or "fft"
		Method string `yaml:"method"`

		// ScaleTickByDrift derives the tick radius and tick width from the
		// wire pitch and the drift distance per tick instead of using Tick
		ScaleTickByDrift bool `yaml:"scaleTickByDrift"`
	} `yaml:"blur"`

	// Region growing parameters
	Cluster struct {
		// WireDistance and TickDistance bound the neighbour search around a cluster bin
		WireDistance int `yaml:"wireDistance"`
		TickDistance int `yaml:"tickDistance"`

		// MinSeed is the blurred density needed for a bin to be clustered
		MinSeed float64 `yaml:"minSeed"`

		// NeighboursThreshold is the number of qualifying neighbours a bin needs to join
		NeighboursThreshold int `yaml:"neighboursThreshold"`

		// MinNeighbours is the minimum number of adjacent bin pairs in a cluster
		MinNeighbours int `yaml:"minNeighbours"`

		// MinSize is the minimum number of bins (and hits) in a cluster
		MinSize int `yaml:"minSize"`
	} `yaml:"cluster"`

	// Collinear merging parameters
	Merge struct {
		Enabled bool `yaml:"enabled"`

		// MinClusterSize is the size a cluster needs to be considered for merging
		MinClusterSize int `yaml:"minClusterSize"`

		// Threshold is the PCA eigenvalue ratio needed to merge two clusters
		Threshold float64 `yaml:"threshold"`

		// WeightByDensity weights bins by blurred density in the PCA
		WeightByDensity bool `yaml:"weightByDensity"`
	} `yaml:"merge"`

	// Settings for the upstream filter that removes hits already used by 3D
	// tracks. They are carried here for that filter and not read by the
	// clustering itself.
	PreFilter struct {
		TimeThreshold   float64 `yaml:"timeThreshold"`
		ChargeThreshold float64 `yaml:"chargeThreshold"`
	} `yaml:"preFilter"`

	// Detector description
	Geometry struct {
		NumTPCs       int `yaml:"numTPCs"`
		PlanesPerTPC  int `yaml:"planesPerTPC"`
		WiresPerPlane int `yaml:"wiresPerPlane"`

		// WirePitch is the wire spacing in cm
		WirePitch float64 `yaml:"wirePitch"`

		// SamplingRate is the tick period in ns
		SamplingRate float64 `yaml:"samplingRate"`

		// DriftVelocity is in cm/us
		DriftVelocity float64 `yaml:"driftVelocity"`
	} `yaml:"geometry"`

	// Processing parameters
	Processing struct {
		// NumCores specifies how many planes may be processed in parallel
		NumCores int `yaml:"numCores"`
	} `yaml:"processing"`

	// Output parameters
	Output struct {
		// SaveIntermediaryResults writes debug images of every stage
		SaveIntermediaryResults bool `yaml:"saveIntermediaryResults"`

		// IntermediaryDir is where debug images go
		IntermediaryDir string `yaml:"intermediaryDir"`

		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	// Set default blur parameters
	cfg.Blur.Wire = 6
	cfg.Blur.Tick = 12
	cfg.Blur.Sigma = 6
	cfg.Blur.Method = MethodDirect

	// Set default clustering parameters
	cfg.Cluster.WireDistance = 2
	cfg.Cluster.TickDistance = 2
	cfg.Cluster.MinSeed = 0.1
	cfg.Cluster.NeighboursThreshold = 0
	cfg.Cluster.MinNeighbours = 0
	cfg.Cluster.MinSize = 2

	// Set default merge parameters
	cfg.Merge.Enabled = true
	cfg.Merge.MinClusterSize = 50
	cfg.Merge.Threshold = 30

	cfg.PreFilter.TimeThreshold = 500
	cfg.PreFilter.ChargeThreshold = 5

	// Set default geometry
	cfg.Geometry.NumTPCs = 1
	cfg.Geometry.PlanesPerTPC = 3
	cfg.Geometry.WiresPerPlane = 4096
	cfg.Geometry.WirePitch = 0.5
	cfg.Geometry.SamplingRate = 500
	cfg.Geometry.DriftVelocity = 0.16

	cfg.Processing.NumCores = runtime.NumCPU() // Use all available cores by default

	// Set default output parameters
	cfg.Output.SaveIntermediaryResults = false
	cfg.Output.IntermediaryDir = "intermediary_results"
	cfg.Output.Verbose = true

	return cfg
}

// Validate checks the configuration for values the pipeline cannot use
func (cfg *Config) Validate() error {
	if cfg.Blur.Wire < 0 || cfg.Blur.Tick < 0 {
		return errors.Wrapf(ErrInvalidConfig, "blur radius (%d, %d) must not be negative", cfg.Blur.Wire, cfg.Blur.Tick)
	}
	if !(cfg.Blur.Sigma > 0) {
		return errors.Wrapf(ErrInvalidConfig, "blur sigma %g must be positive", cfg.Blur.Sigma)
	}
	if cfg.Blur.SigmaTick < 0 || math.IsNaN(cfg.Blur.SigmaTick) {
		return errors.Wrapf(ErrInvalidConfig, "blur tick sigma %g must not be negative", cfg.Blur.SigmaTick)
	}
	switch cfg.Blur.Method {
	case MethodDirect, MethodFFT, "":
	default:
		return errors.Wrapf(ErrInvalidConfig, "unknown blur method %q", cfg.Blur.Method)
	}

	if cfg.Cluster.WireDistance < 1 || cfg.Cluster.TickDistance < 1 {
		return errors.Wrapf(ErrInvalidConfig, "cluster window (%d, %d) must be positive",
			cfg.Cluster.WireDistance, cfg.Cluster.TickDistance)
	}
	if !(cfg.Cluster.MinSeed >= 0) {
		return errors.Wrapf(ErrInvalidConfig, "seed threshold %g must not be negative", cfg.Cluster.MinSeed)
	}
	if cfg.Cluster.NeighboursThreshold < 0 || cfg.Cluster.MinNeighbours < 0 || cfg.Cluster.MinSize < 0 {
		return errors.Wrap(ErrInvalidConfig, "cluster thresholds must not be negative")
	}

	if cfg.Merge.Enabled {
		if cfg.Merge.MinClusterSize < 0 {
			return errors.Wrapf(ErrInvalidConfig, "merge min cluster size %d must not be negative", cfg.Merge.MinClusterSize)
		}
		if !(cfg.Merge.Threshold >= 1) {
			return errors.Wrapf(ErrInvalidConfig, "merging threshold %g must be at least 1", cfg.Merge.Threshold)
		}
	}

	if err := cfg.Layout().Validate(); err != nil {
		return errors.Wrap(ErrInvalidConfig, err.Error())
	}
	if cfg.Blur.ScaleTickByDrift {
		if err := cfg.Detector().Validate(); err != nil {
			return errors.Wrap(ErrInvalidConfig, err.Error())
		}
	}

	return nil
}

// Layout returns the detector layout described by the geometry section
func (cfg *Config) Layout() geometry.Layout {
	return geometry.Layout{
		NumTPCs:       cfg.Geometry.NumTPCs,
		PlanesPerTPC:  cfg.Geometry.PlanesPerTPC,
		WiresPerPlane: cfg.Geometry.WiresPerPlane,
		WirePitch:     cfg.Geometry.WirePitch,
	}
}

// Detector returns the readout timing described by the geometry section
func (cfg *Config) Detector() geometry.Detector {
	return geometry.Detector{
		SamplingRate:  cfg.Geometry.SamplingRate,
		DriftVelocity: cfg.Geometry.DriftVelocity,
	}
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, errors.Wrap(err, "error reading config file")
	}

	// Parse YAML
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(err, "error parsing config file")
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrap(err, "error creating config directory")
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return errors.Wrap(err, "error marshaling config")
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return errors.Wrap(err, "error writing config file")
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}
