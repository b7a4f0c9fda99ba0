// Package channels predicts which channels of a uniform output channel grid
// receive data from the sub-channels of an observation.
package channels

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"go.uber.org/zap"

	"polcube/internal/models"
)

var (
	// ErrNoEdges is returned when there is no sub-channel to map.
	ErrNoEdges = errors.New("channels: no sub-channel edge frequencies")

	// ErrNoChannels is returned when no edge maps onto a valid channel.
	ErrNoChannels = errors.New("channels: no output channel receives data")
)

// IndexSet is a set of 0-based output channel indices.
type IndexSet map[int]struct{}

// Contains reports whether channel i is in the set.
func (s IndexSet) Contains(i int) bool {
	_, ok := s[i]
	return ok
}

// Max returns the largest index. ok is false for an empty set.
func (s IndexSet) Max() (max int, ok bool) {
	for i := range s {
		if !ok || i > max {
			max, ok = i, true
		}
	}
	return max, ok
}

// Sorted returns the indices in increasing order.
func (s IndexSet) Sorted() []int {
	out := make([]int, 0, len(s))
	for i := range s {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}

// ExpandSubchannelEdges returns, for every channel of every spectral window,
// the frequencies half a channel width above and below its centre. Edges are
// ordered by window, then channel, upper edge first.
func ExpandSubchannelEdges(spws []models.SpectralWindow) ([]float64, error) {
	var edges []float64
	for i, spw := range spws {
		if len(spw.ChanFreqs) != len(spw.ChanWidths) {
			return nil, fmt.Errorf("spectral window %d has %d frequencies but %d widths", i, len(spw.ChanFreqs), len(spw.ChanWidths))
		}
		for j, freq := range spw.ChanFreqs {
			half := spw.ChanWidths[j] / 2
			edges = append(edges, freq+half, freq-half)
		}
	}
	return edges, nil
}

// MapEdgesToChannelIndices maps edge frequencies onto the channel grid that
// starts at firstFreq with channels of width bandwidth, using
// floor((edge - firstFreq) / bandwidth).
//
// With windows given only edges inside at least one window are mapped and
// the result is the union over all windows. Without windows every edge is
// mapped. Indices below zero belong to frequencies under the grid and are
// dropped in both cases.
func MapEdgesToChannelIndices(edges []float64, firstFreq, bandwidth float64, windows []models.FrequencyWindow) (IndexSet, error) {
	if len(edges) == 0 {
		return nil, ErrNoEdges
	}
	if bandwidth <= 0 || math.IsNaN(bandwidth) || math.IsInf(bandwidth, 0) {
		return nil, fmt.Errorf("channels: invalid output channel bandwidth %v", bandwidth)
	}

	set := make(IndexSet)
	add := func(edge float64) {
		idx := math.Floor((edge - firstFreq) / bandwidth)
		if math.IsNaN(idx) || idx < 0 || idx > math.MaxInt32 {
			return
		}
		set[int(idx)] = struct{}{}
	}

	if len(windows) == 0 {
		for _, edge := range edges {
			add(edge)
		}
	} else {
		for _, w := range windows {
			for _, edge := range edges {
				if w.Contains(edge) {
					add(edge)
				}
			}
		}
	}

	if len(set) == 0 {
		return nil, ErrNoChannels
	}
	return set, nil
}

// BooleanChannelVector returns a dense vector of length max(set)+1 whose
// element i is true when channel i is in set.
func BooleanChannelVector(set IndexSet) []bool {
	max, ok := set.Max()
	if !ok {
		return nil
	}
	vec := make([]bool, max+1)
	for i := range set {
		vec[i] = true
	}
	return vec
}

// PopulatedChannelNumbers returns the 1-based numbers of the true elements of
// vec in increasing order.
func PopulatedChannelNumbers(vec []bool) []int {
	var out []int
	for i, present := range vec {
		if present {
			out = append(out, i+1)
		}
	}
	return out
}

// Mapper predicts the populated output channels of an observation.
type Mapper struct {
	firstFreq float64
	bandwidth float64
	windows   []models.FrequencyWindow
	logger    *zap.Logger
}

// NewMapper creates a mapper for the grid anchored at firstFreq. An empty
// windows list maps every sub-channel.
func NewMapper(firstFreq, bandwidth float64, windows []models.FrequencyWindow, logger *zap.Logger) *Mapper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Mapper{
		firstFreq: firstFreq,
		bandwidth: bandwidth,
		windows:   windows,
		logger:    logger,
	}
}

// Predict returns the channel vector and the 1-based populated channel
// numbers for the given spectral windows.
func (m *Mapper) Predict(spws []models.SpectralWindow) ([]bool, []int, error) {
	edges, err := ExpandSubchannelEdges(spws)
	if err != nil {
		return nil, nil, err
	}
	m.logger.Debug("Expanded sub-channel edges",
		zap.Int("spectral_windows", len(spws)),
		zap.Int("edges", len(edges)),
	)

	set, err := MapEdgesToChannelIndices(edges, m.firstFreq, m.bandwidth, m.windows)
	if err != nil {
		return nil, nil, err
	}
	vec := BooleanChannelVector(set)
	populated := PopulatedChannelNumbers(vec)

	m.logger.Info("Predicted output channels",
		zap.Float64("first_freq_hz", m.firstFreq),
		zap.Float64("bandwidth_hz", m.bandwidth),
		zap.Int("windows", len(m.windows)),
		zap.Int("grid_length", len(vec)),
		zap.Int("populated", len(populated)),
	)
	return vec, populated, nil
}
