package channels

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"polcube/internal/models"
)

type spwFile struct {
	SpectralWindows []models.SpectralWindow `yaml:"spectralWindows"`
}

// LoadSpectralWindows reads the sub-channel layout of an observation from a
// YAML file of the form
//
//	spectralWindows:
//	  - chanFreqs: [890.1e6, 890.3e6]
//	    chanWidths: [0.2e6, 0.2e6]
func LoadSpectralWindows(path string) ([]models.SpectralWindow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading spectral windows: %w", err)
	}
	var f spwFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing spectral windows %s: %w", path, err)
	}
	if len(f.SpectralWindows) == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrNoEdges)
	}
	return f.SpectralWindows, nil
}

// PredictedChannels is the artifact consumed when sizing per-channel jobs.
type PredictedChannels struct {
	Data struct {
		PredictedOutputChannels []int `yaml:"predictedOutputChannels"`
	} `yaml:"data"`
}

// WritePredictedChannels stores the 1-based populated channel numbers.
func WritePredictedChannels(path string, populated []int) error {
	var p PredictedChannels
	p.Data.PredictedOutputChannels = populated
	data, err := yaml.Marshal(&p)
	if err != nil {
		return fmt.Errorf("marshaling predicted channels: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing predicted channels: %w", err)
	}
	return nil
}

// ReadPredictedChannels loads an artifact written by WritePredictedChannels.
func ReadPredictedChannels(path string) ([]int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading predicted channels: %w", err)
	}
	var p PredictedChannels
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parsing predicted channels %s: %w", path, err)
	}
	return p.Data.PredictedOutputChannels, nil
}
