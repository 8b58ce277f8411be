// Package config provides configuration loading and management for roistats.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Analysis parameters
	Analysis struct {
		// MinVoxels is the minimum finite-voxel count for a region to be reported
		MinVoxels int `yaml:"minVoxels"`

		// Trim is the winsorization fraction applied to each tail, in [0, 0.5)
		Trim float64 `yaml:"trim"`

		// Scale is the unit scale applied to the reported statistics
		Scale float64 `yaml:"scale"`

		// NumCores specifies how many CPU cores to use for parallel processing
		NumCores int `yaml:"numCores"`
	} `yaml:"analysis"`

	// Input parameters
	Input struct {
		// MDPath is the NIfTI file holding the scalar measurement volume
		MDPath string `yaml:"mdPath"`

		// AtlasPath is the NIfTI file holding the anatomical label volume
		AtlasPath string `yaml:"atlasPath"`
	} `yaml:"input"`

	// Output parameters
	Output struct {
		// CSVPath is where the result table is written
		CSVPath string `yaml:"csvPath"`

		// ChartPrefix is the filename prefix for the rendered charts
		ChartPrefix string `yaml:"chartPrefix"`

		// RenderCharts determines whether chart images are produced
		RenderCharts bool `yaml:"renderCharts"`

		// TopN is how many regions the top/bottom charts and console summary show
		TopN int `yaml:"topN"`

		// HistogramBins is the bin count of the median distribution histogram
		HistogramBins int `yaml:"histogramBins"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	// Set default analysis parameters
	cfg.Analysis.MinVoxels = 30
	cfg.Analysis.Trim = 0.025
	cfg.Analysis.Scale = 1000
	cfg.Analysis.NumCores = runtime.NumCPU() // Use all available cores by default

	// Set default output parameters
	cfg.Output.CSVPath = "md_by_region.csv"
	cfg.Output.ChartPrefix = "md"
	cfg.Output.RenderCharts = true
	cfg.Output.TopN = 25
	cfg.Output.HistogramBins = 40

	return cfg
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
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Parse YAML
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	// Marshal config to YAML
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	// Write to file
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}
