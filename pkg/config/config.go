// Package config provides configuration loading and management for polcube.
// It handles loading configuration from YAML files, provides default values
// and validates the result once so later stages can rely on typed fields.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"polcube/internal/models"
)

// ErrInvalid is returned by Validate for unusable configurations.
var ErrInvalid = errors.New("invalid configuration")

// Archive target types
const (
	ArchiveNone  = "none"
	ArchiveLocal = "localFile"
	ArchiveMinio = "minio"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Observation and product parameters
	Input struct {
		// Basename is the common file name prefix of all products
		Basename string `yaml:"basename"`

		// DirOutput holds the smoothed input cube and receives the average map
		DirOutput string `yaml:"dirOutput"`

		// DirArchive receives a verbatim copy of the finished average map
		DirArchive string `yaml:"dirArchive"`

		// SmoothBeam enables the average map; without a common beam the
		// channels are not comparable and the map is skipped
		SmoothBeam bool `yaml:"smoothBeam"`

		// FreqRanges lists observed sub-ranges as "<startMHz>-<stopMHz>"
		FreqRanges []string `yaml:"freqRanges,omitempty"`

		// StartFreq anchors channel 0 in the single window mode, in Hz
		StartFreq float64 `yaml:"startFreq"`

		// FirstFreq anchors channel 0 of the output cube, in Hz
		FirstFreq float64 `yaml:"firstFreq"`

		// OutputChanBandwidth is the width of one output channel in Hz
		OutputChanBandwidth float64 `yaml:"outputChanBandwidth"`

		// SpwFile describes the spectral windows of the observation
		SpwFile string `yaml:"spwFile"`
	} `yaml:"input"`

	// File naming and directory layout
	Env struct {
		ExtCubeSmoothedFits         string   `yaml:"extCubeSmoothedFits"`
		ExtCubeAveragemapFits       string   `yaml:"extCubeAveragemapFits"`
		ExtCubeAveragemapStatistics string   `yaml:"extCubeAveragemapStatistics"`
		ExtPredictedChannels        string   `yaml:"extPredictedChannels"`
		DirList                     []string `yaml:"dirList"`

		// DirPreview receives JPEG quick-looks of the average map, empty
		// disables them
		DirPreview string `yaml:"dirPreview"`

		// PreviewSize bounds the longest side of a quick-look in pixels
		PreviewSize int `yaml:"previewSize"`
	} `yaml:"env"`

	// Secondary copy of the average map
	Archive struct {
		// Type is one of none, localFile or minio
		Type      string `yaml:"type"`
		Endpoint  string `yaml:"endpoint"`
		Bucket    string `yaml:"bucket"`
		Prefix    string `yaml:"prefix"`
		AccessKey string `yaml:"accessKey"`
		SecretKey string `yaml:"secretKey"`
		Secure    bool   `yaml:"secure"`
	} `yaml:"archive"`

	// Logging parameters
	Logging struct {
		// Debug enables per-channel progress messages
		Debug bool `yaml:"debug"`

		// Encoding is json or console
		Encoding string `yaml:"encoding"`
	} `yaml:"logging"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Input.Basename = "cube"
	cfg.Input.DirOutput = "."
	cfg.Input.DirArchive = "archive"
	cfg.Input.SmoothBeam = true
	cfg.Input.OutputChanBandwidth = 2.5e6
	cfg.Input.SpwFile = "spw.yaml"

	cfg.Env.ExtCubeSmoothedFits = ".smoothed.fits"
	cfg.Env.ExtCubeAveragemapFits = ".averagemap.fits"
	cfg.Env.ExtCubeAveragemapStatistics = ".averagemap.statistics.dat"
	cfg.Env.ExtPredictedChannels = ".channels.yaml"
	cfg.Env.DirList = []string{"logs", "archive"}
	cfg.Env.DirPreview = "preview"
	cfg.Env.PreviewSize = 1024

	cfg.Archive.Type = ArchiveLocal

	cfg.Logging.Encoding = "console"

	return cfg
}

// LoadConfig loads configuration from a YAML file and validates it.
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

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

	if err := cfg.Validate(); err != nil {
		return nil, err
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

// Validate checks the fields later stages depend on.
func (c *Config) Validate() error {
	if c.Input.OutputChanBandwidth <= 0 {
		return fmt.Errorf("%w: outputChanBandwidth must be positive, got %v", ErrInvalid, c.Input.OutputChanBandwidth)
	}
	if _, err := c.FrequencyWindows(); err != nil {
		return err
	}
	if c.Env.PreviewSize < 0 {
		return fmt.Errorf("%w: previewSize must not be negative, got %d", ErrInvalid, c.Env.PreviewSize)
	}
	switch c.Archive.Type {
	case "", ArchiveNone, ArchiveLocal:
	case ArchiveMinio:
		if c.Archive.Endpoint == "" || c.Archive.Bucket == "" {
			return fmt.Errorf("%w: minio archive needs endpoint and bucket", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown archive type %q", ErrInvalid, c.Archive.Type)
	}
	switch c.Logging.Encoding {
	case "", "json", "console":
	default:
		return fmt.Errorf("%w: unknown log encoding %q", ErrInvalid, c.Logging.Encoding)
	}
	return nil
}

// FrequencyWindows parses FreqRanges into windows in Hz.
func (c *Config) FrequencyWindows() ([]models.FrequencyWindow, error) {
	windows := make([]models.FrequencyWindow, 0, len(c.Input.FreqRanges))
	for _, r := range c.Input.FreqRanges {
		w, err := ParseFreqRange(r)
		if err != nil {
			return nil, err
		}
		windows = append(windows, w)
	}
	return windows, nil
}

// ParseFreqRange parses "<startMHz>-<stopMHz>" into a window in Hz.
func ParseFreqRange(s string) (models.FrequencyWindow, error) {
	start, stop, ok := strings.Cut(strings.TrimSpace(s), "-")
	if !ok {
		return models.FrequencyWindow{}, fmt.Errorf("%w: frequency range %q is not <start>-<stop>", ErrInvalid, s)
	}
	startMHz, err := strconv.ParseFloat(strings.TrimSpace(start), 64)
	if err != nil {
		return models.FrequencyWindow{}, fmt.Errorf("%w: frequency range %q: %v", ErrInvalid, s, err)
	}
	stopMHz, err := strconv.ParseFloat(strings.TrimSpace(stop), 64)
	if err != nil {
		return models.FrequencyWindow{}, fmt.Errorf("%w: frequency range %q: %v", ErrInvalid, s, err)
	}
	if startMHz > stopMHz {
		return models.FrequencyWindow{}, fmt.Errorf("%w: frequency range %q starts after it stops", ErrInvalid, s)
	}
	return models.FrequencyWindow{Start: startMHz * 1e6, Stop: stopMHz * 1e6}, nil
}

// AnchorFrequency returns the frequency of channel 0: FirstFreq, or StartFreq
// for single window configurations.
func (c *Config) AnchorFrequency() (float64, error) {
	switch {
	case c.Input.FirstFreq != 0:
		return c.Input.FirstFreq, nil
	case c.Input.StartFreq != 0:
		return c.Input.StartFreq, nil
	}
	return 0, fmt.Errorf("%w: neither firstFreq nor startFreq is set", ErrInvalid)
}

// InputCubePath is the smoothed cube the average map is built from.
func (c *Config) InputCubePath() string {
	return filepath.Join(c.Input.DirOutput, c.Input.Basename+c.Env.ExtCubeSmoothedFits)
}

// OutputCubePath is the average map cube.
func (c *Config) OutputCubePath() string {
	return filepath.Join(c.Input.DirOutput, c.Input.Basename+c.Env.ExtCubeAveragemapFits)
}

// StatisticsPath is the per-channel weight report.
func (c *Config) StatisticsPath() string {
	return filepath.Join(c.Input.DirOutput, c.Input.Basename+c.Env.ExtCubeAveragemapStatistics)
}

// PredictedChannelsPath is the artifact listing the channels that will hold data.
func (c *Config) PredictedChannelsPath() string {
	return filepath.Join(c.Input.DirOutput, c.Input.Basename+c.Env.ExtPredictedChannels)
}

// CreateDirectories creates every directory of Env.DirList that is missing.
func (c *Config) CreateDirectories() error {
	for _, dir := range c.Env.DirList {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating directory %s: %w", dir, err)
		}
	}
	return nil
}
