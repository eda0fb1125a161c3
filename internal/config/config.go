package config

import (
	"encoding/json"
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"strings"

	"github.com/lucasb-eyer/go-colorful"

	"github.com/menta2k/crop-sorter/pkg/bucket"
)

// Environment overrides, applied after the config file and before flags
const (
	DetectorURLEnv = "CROPSORT_DETECTOR_URL"
	LogLevelEnv    = "CROPSORT_LOG_LEVEL"
)

// Detector backends
const (
	BackendStatic    = "static"
	BackendInference = "inference"
	BackendOllama    = "ollama"
	BackendLlamaCpp  = "llamacpp"
)

// Config holds the application configuration
type Config struct {
	InputDir            string         `json:"input_dir"`
	OutputDir           string         `json:"output_dir"`
	ConfidenceThreshold float64        `json:"confidence_threshold"`
	MarginFraction      float64        `json:"margin_fraction"`
	ShowBox             bool           `json:"show_box"`
	Overlay             OverlayConfig  `json:"overlay"`
	JPEGQuality         int            `json:"jpeg_quality"`
	FailFast            bool           `json:"fail_fast"`
	Ranges              []bucket.Range `json:"ranges"`
	Detector            DetectorConfig `json:"detector"`
	LogLevel            string         `json:"log_level"`
	LogFormat           string         `json:"log_format"`
}

// OverlayConfig holds the show-box outline style
type OverlayConfig struct {
	Color string `json:"color"`
	Width int    `json:"width"`
}

// DetectorConfig selects and configures the detection backend
type DetectorConfig struct {
	Backend        string `json:"backend"`
	URL            string `json:"url"`
	Model          string `json:"model"`
	Manifest       string `json:"manifest"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		InputDir:            "./images",
		OutputDir:           "./crops",
		ConfidenceThreshold: 0.5,
		MarginFraction:      0.1,
		ShowBox:             false,
		Overlay: OverlayConfig{
			Color: "#ff0000",
			Width: 3,
		},
		JPEGQuality: 95,
		Ranges:      bucket.DefaultTable(),
		Detector: DetectorConfig{
			Backend:        BackendStatic,
			Manifest:       "detections.json",
			TimeoutSeconds: 300,
		},
		LogLevel:  "info",
		LogFormat: "text",
	}
}

// LoadFromFile loads configuration from a JSON file. Fields absent from the
// file keep their default values.
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a JSON file
func (c *Config) SaveToFile(filename string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ApplyEnv overrides fields from the environment
func (c *Config) ApplyEnv() {
	if u := os.Getenv(DetectorURLEnv); u != "" {
		c.Detector.URL = u
	}
	if l := os.Getenv(LogLevelEnv); l != "" {
		c.LogLevel = l
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.InputDir == "" {
		return fmt.Errorf("input_dir is required")
	}

	if c.OutputDir == "" {
		return fmt.Errorf("output_dir is required")
	}

	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		return fmt.Errorf("confidence_threshold must be between 0 and 1")
	}

	if c.MarginFraction < 0 {
		return fmt.Errorf("margin_fraction must not be negative")
	}

	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		return fmt.Errorf("jpeg_quality must be between 1 and 100")
	}

	if c.Overlay.Width < 1 {
		return fmt.Errorf("overlay.width must be positive")
	}

	if _, err := colorful.Hex(c.Overlay.Color); err != nil {
		return fmt.Errorf("overlay.color: %w", err)
	}

	if err := c.Table().Validate(); err != nil {
		return fmt.Errorf("ranges: %w", err)
	}

	switch strings.ToLower(c.Detector.Backend) {
	case BackendStatic:
		if c.Detector.Manifest == "" {
			return fmt.Errorf("detector.manifest is required for the static backend")
		}
	case BackendInference:
		if c.Detector.URL == "" {
			return fmt.Errorf("detector.url is required for the inference backend")
		}
	case BackendOllama, BackendLlamaCpp:
		if c.Detector.Model == "" {
			return fmt.Errorf("detector.model is required for the %s backend", c.Detector.Backend)
		}
	default:
		return fmt.Errorf("unknown detector.backend %q", c.Detector.Backend)
	}

	if c.Detector.TimeoutSeconds < 0 {
		return fmt.Errorf("detector.timeout_seconds must not be negative")
	}

	return nil
}

// Table returns the configured ranges as a classification table
func (c *Config) Table() bucket.Table {
	return bucket.Table(c.Ranges)
}

// OverlayColor parses overlay.color, falling back to red when invalid
func (c *Config) OverlayColor() color.Color {
	col, err := colorful.Hex(c.Overlay.Color)
	if err != nil {
		return color.NRGBA{R: 255, A: 255}
	}
	r, g, b := col.RGB255()
	return color.NRGBA{R: r, G: g, B: b, A: 255}
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.json"
	}
	return filepath.Join(home, ".config", "crop-sorter", "config.json")
}
