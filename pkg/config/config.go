// Package config provides configuration loading and management for mrichange.
// It handles loading configuration from YAML files, applies environment
// overrides and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Registration parameters for the gradient-descent aligner
	Registration struct {
		// Type is "rigid" (rotation + translation) or "affine"
		Type string `yaml:"type"`

		// LearningRate is the initial step length
		LearningRate float64 `yaml:"learningRate"`

		// MinStep stops the optimizer once the step length falls below it
		MinStep float64 `yaml:"minStep"`

		// Iterations caps the number of optimizer iterations
		Iterations int `yaml:"iterations"`

		// RelaxationFactor shrinks the step whenever a candidate does not improve the metric
		RelaxationFactor float64 `yaml:"relaxationFactor"`

		// GradientTolerance stops the optimizer on a vanishing scaled gradient
		GradientTolerance float64 `yaml:"gradientTolerance"`

		// ShiftDelta is the parameter perturbation used to estimate parameter scales
		ShiftDelta float64 `yaml:"shiftDelta"`
	} `yaml:"registration"`

	// Metrics parameters
	Metrics struct {
		// IntensityThreshold is the absolute difference above which a pixel counts as changed
		IntensityThreshold float64 `yaml:"intensityThreshold"`
	} `yaml:"metrics"`

	// Mask generation parameters
	Masks struct {
		// Type is "binary" or "confidence"
		Type string `yaml:"type"`

		// ConfidenceCutoff excludes boxes below it from binary masks
		ConfidenceCutoff float64 `yaml:"confidenceCutoff"`
	} `yaml:"masks"`

	// Detection collaborator parameters
	Detection struct {
		// Backend is "none", "http" or "dnn"
		Backend string `yaml:"backend"`

		// URL of the remote inference service for the http backend
		URL string `yaml:"url"`

		// ModelPath and ConfigPath locate the network for the dnn backend
		ModelPath  string `yaml:"modelPath"`
		ConfigPath string `yaml:"configPath"`

		// MinConfidence is passed to the detector as its cutoff
		MinConfidence float64 `yaml:"minConfidence"`

		// Timeout bounds a single remote inference call
		Timeout time.Duration `yaml:"timeout"`

		// MatchDistance is the largest normalized centroid distance that pairs two tumors
		MatchDistance float64 `yaml:"matchDistance"`
	} `yaml:"detection"`

	// Output parameters
	Output struct {
		// Dir receives registered images, overlays and metrics
		Dir string `yaml:"dir"`

		// SaveRegistered writes the registered moving image
		SaveRegistered bool `yaml:"saveRegistered"`

		// SaveVisualization writes the change overlay
		SaveVisualization bool `yaml:"saveVisualization"`

		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose"`

		// LogDir, when set, also writes per-level log files
		LogDir string `yaml:"logDir"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Registration.Type = "rigid"
	cfg.Registration.LearningRate = 2.0
	cfg.Registration.MinStep = 0.01
	cfg.Registration.Iterations = 50
	cfg.Registration.RelaxationFactor = 0.5
	cfg.Registration.GradientTolerance = 1e-4
	cfg.Registration.ShiftDelta = 0.01

	cfg.Metrics.IntensityThreshold = 10.0

	cfg.Masks.Type = "binary"
	cfg.Masks.ConfidenceCutoff = 0.5

	cfg.Detection.Backend = "none"
	cfg.Detection.MinConfidence = 0.5
	cfg.Detection.Timeout = 30 * time.Second
	cfg.Detection.MatchDistance = 0.25

	cfg.Output.Dir = "comparison_results"
	cfg.Output.SaveRegistered = true
	cfg.Output.SaveVisualization = true
	cfg.Output.Verbose = true

	return cfg
}

// Validate checks value ranges that the pipeline relies on.
func (c *Config) Validate() error {
	switch c.Registration.Type {
	case "rigid", "affine":
	default:
		return fmt.Errorf("unknown registration type %q", c.Registration.Type)
	}
	if c.Registration.Iterations <= 0 {
		return fmt.Errorf("registration iterations must be positive, got %d", c.Registration.Iterations)
	}
	if c.Registration.LearningRate <= 0 || c.Registration.MinStep <= 0 {
		return fmt.Errorf("learning rate and minimum step must be positive")
	}
	if c.Registration.RelaxationFactor <= 0 || c.Registration.RelaxationFactor >= 1 {
		return fmt.Errorf("relaxation factor must be in (0,1), got %g", c.Registration.RelaxationFactor)
	}
	if c.Metrics.IntensityThreshold < 0 {
		return fmt.Errorf("intensity threshold must be non-negative, got %g", c.Metrics.IntensityThreshold)
	}
	switch c.Masks.Type {
	case "binary", "confidence":
	default:
		return fmt.Errorf("unknown mask type %q", c.Masks.Type)
	}
	switch c.Detection.Backend {
	case "none", "http", "dnn":
	default:
		return fmt.Errorf("unknown detection backend %q", c.Detection.Backend)
	}
	return nil
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if configPath == "" {
		return cfg, nil
	}

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

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

// LoadEnvFile loads KEY=VALUE pairs from a .env file into the process
// environment. Variables already set are left untouched. A missing file is
// not an error.
func LoadEnvFile(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("error loading env file: %w", err)
	}
	return nil
}

// ApplyEnv overrides configuration values from MRICHANGE_* environment variables.
func (c *Config) ApplyEnv() {
	c.Registration.Type = getEnv("MRICHANGE_REGISTRATION_TYPE", c.Registration.Type)
	c.Registration.Iterations = getEnvAsInt("MRICHANGE_ITERATIONS", c.Registration.Iterations)
	c.Registration.LearningRate = getEnvAsFloat("MRICHANGE_LEARNING_RATE", c.Registration.LearningRate)
	c.Metrics.IntensityThreshold = getEnvAsFloat("MRICHANGE_INTENSITY_THRESHOLD", c.Metrics.IntensityThreshold)
	c.Masks.Type = getEnv("MRICHANGE_MASK_TYPE", c.Masks.Type)
	c.Detection.Backend = getEnv("MRICHANGE_DETECTOR", c.Detection.Backend)
	c.Detection.URL = getEnv("MRICHANGE_DETECTOR_URL", c.Detection.URL)
	c.Detection.ModelPath = getEnv("MRICHANGE_MODEL_PATH", c.Detection.ModelPath)
	c.Detection.ConfigPath = getEnv("MRICHANGE_MODEL_CONFIG", c.Detection.ConfigPath)
	c.Detection.MinConfidence = getEnvAsFloat("MRICHANGE_MIN_CONFIDENCE", c.Detection.MinConfidence)
	c.Output.Dir = getEnv("MRICHANGE_OUTPUT_DIR", c.Output.Dir)
	c.Output.LogDir = getEnv("MRICHANGE_LOG_DIR", c.Output.LogDir)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}
