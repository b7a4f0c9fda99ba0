package models

import "math"

// Stokes is the position of a polarization plane along the first
// (slowest varying) axis of an input cube.
type Stokes int

const (
	StokesI Stokes = iota
	StokesQ
	StokesU
	StokesV
)

// NumStokes is the length of the Stokes axis of every input cube.
const NumStokes = 4

// AverageMap planes, in their order along the first axis of the output cube.
const (
	PlanePolarizedI = iota
	PlanePolarizedQU
	PlaneV
)

// NumAveragePlanes is the length of the first axis of an average map cube.
const NumAveragePlanes = 3

// ChannelStatistic is the noise estimate of a single input channel
type ChannelStatistic struct {
	// Channel is the 0-based index along the spectral axis
	Channel int

	// Frequency is the channel frequency in Hz derived from the cube header
	Frequency float64

	// Weight is 1/rms² in Jy^-2, NaN if the channel holds no Stokes V data
	Weight float64
}

// HasData reports whether the channel takes part in the weighted average.
func (s ChannelStatistic) HasData() bool {
	return !math.IsNaN(s.Weight)
}

// FrequencyWindow is an inclusive frequency interval in Hz.
type FrequencyWindow struct {
	Start float64
	Stop  float64
}

// Contains reports whether freq lies inside the window, bounds included.
func (w FrequencyWindow) Contains(freq float64) bool {
	return freq >= w.Start && freq <= w.Stop
}

// SpectralWindow is one independently calibrated frequency range of an
// observation, described by the centre frequency and width of each of its
// channels in Hz.
type SpectralWindow struct {
	ChanFreqs  []float64 `yaml:"chanFreqs"`
	ChanWidths []float64 `yaml:"chanWidths"`
}
