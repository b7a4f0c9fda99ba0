package channels

import (
	"math"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"polcube/internal/models"
)

func TestExpandSubchannelEdges(t *testing.T) {
	spws := []models.SpectralWindow{
		{ChanFreqs: []float64{100, 110}, ChanWidths: []float64{10, 10}},
		{ChanFreqs: []float64{200}, ChanWidths: []float64{4}},
	}
	edges, err := ExpandSubchannelEdges(spws)
	require.NoError(t, err)
	assert.Equal(t, []float64{105, 95, 115, 105, 202, 198}, edges)
}

func TestExpandSubchannelEdgesMismatch(t *testing.T) {
	_, err := ExpandSubchannelEdges([]models.SpectralWindow{
		{ChanFreqs: []float64{1, 2}, ChanWidths: []float64{1}},
	})
	assert.Error(t, err)
}

func TestMapEdgesExample(t *testing.T) {
	windows := []models.FrequencyWindow{{Start: 890e6, Stop: 901e6}}
	set, err := MapEdgesToChannelIndices([]float64{901e6}, 890e6, 2.5e6, windows)
	require.NoError(t, err)
	assert.Equal(t, []int{4}, set.Sorted())

	vec := BooleanChannelVector(set)
	assert.Equal(t, []bool{false, false, false, false, true}, vec)
	assert.Equal(t, []int{5}, PopulatedChannelNumbers(vec))
}

func TestMapEdgesWindowFilter(t *testing.T) {
	edges := []float64{889e6, 891e6, 896e6, 905e6, 951e6}
	windows := []models.FrequencyWindow{
		{Start: 890e6, Stop: 900e6},
		{Start: 950e6, Stop: 960e6},
	}
	set, err := MapEdgesToChannelIndices(edges, 890e6, 2.5e6, windows)
	require.NoError(t, err)
	// 891 -> 0, 896 -> 2, 951 -> 24; 889 and 905 fall outside every window
	assert.Equal(t, []int{0, 2, 24}, set.Sorted())
}

func TestMapEdgesLegacyDropsNegative(t *testing.T) {
	edges := []float64{880e6, 889.9e6, 890e6, 893e6}
	set, err := MapEdgesToChannelIndices(edges, 890e6, 2.5e6, nil)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, set.Sorted())
}

func TestMapEdgesWindowBelowGridDropsNegative(t *testing.T) {
	windows := []models.FrequencyWindow{{Start: 880e6, Stop: 895e6}}
	set, err := MapEdgesToChannelIndices([]float64{881e6, 891e6}, 890e6, 2.5e6, windows)
	require.NoError(t, err)
	assert.Equal(t, []int{0}, set.Sorted())
}

func TestMapEdgesErrors(t *testing.T) {
	_, err := MapEdgesToChannelIndices(nil, 890e6, 2.5e6, nil)
	assert.ErrorIs(t, err, ErrNoEdges)

	_, err = MapEdgesToChannelIndices([]float64{100}, 890e6, 2.5e6, nil)
	assert.ErrorIs(t, err, ErrNoChannels)

	windows := []models.FrequencyWindow{{Start: 1e9, Stop: 2e9}}
	_, err = MapEdgesToChannelIndices([]float64{900e6}, 890e6, 2.5e6, windows)
	assert.ErrorIs(t, err, ErrNoChannels)

	_, err = MapEdgesToChannelIndices([]float64{900e6}, 890e6, 0, nil)
	assert.Error(t, err)
}

func TestMapEdgesCardinalityBound(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	const bandwidth = 2.5e6
	const firstFreq = 856e6

	for trial := 0; trial < 50; trial++ {
		a := firstFreq + rng.Float64()*200e6
		b := a + bandwidth + rng.Float64()*50e6

		var spw models.SpectralWindow
		for f := a - 5e6; f < b+5e6; f += 0.1e6 + rng.Float64()*0.3e6 {
			spw.ChanFreqs = append(spw.ChanFreqs, f)
			spw.ChanWidths = append(spw.ChanWidths, 0.2e6)
		}
		edges, err := ExpandSubchannelEdges([]models.SpectralWindow{spw})
		require.NoError(t, err)

		set, err := MapEdgesToChannelIndices(edges, firstFreq, bandwidth, []models.FrequencyWindow{{Start: a, Stop: b}})
		require.NoError(t, err)

		bound := int(math.Floor((b-a)/bandwidth)) + 2
		assert.LessOrEqual(t, len(set), bound, "window [%v, %v]", a, b)
		for i := range set {
			assert.GreaterOrEqual(t, i, 0)
		}
	}
}

func TestPopulatedChannelNumbers(t *testing.T) {
	set := IndexSet{0: {}, 3: {}, 7: {}}
	vec := BooleanChannelVector(set)
	require.Len(t, vec, 8)

	populated := PopulatedChannelNumbers(vec)
	assert.Equal(t, []int{1, 4, 8}, populated)

	for i := 1; i < len(populated); i++ {
		assert.Greater(t, populated[i], populated[i-1])
	}
	for i, present := range vec {
		assert.Equal(t, present, containsInt(populated, i+1), "channel %d", i)
	}
}

func TestBooleanChannelVectorEmpty(t *testing.T) {
	assert.Nil(t, BooleanChannelVector(IndexSet{}))
	assert.Nil(t, PopulatedChannelNumbers(nil))
}

func TestMapperPredict(t *testing.T) {
	spws := []models.SpectralWindow{
		{ChanFreqs: []float64{891e6, 892e6, 899e6}, ChanWidths: []float64{1e6, 1e6, 1e6}},
	}
	m := NewMapper(890e6, 2.5e6, []models.FrequencyWindow{{Start: 890e6, Stop: 901e6}}, zaptest.NewLogger(t))
	vec, populated, err := m.Predict(spws)
	require.NoError(t, err)

	// edges 891.5, 890.5, 892.5, 891.5, 899.5, 898.5 MHz
	assert.Equal(t, []bool{true, true, false, true}, vec)
	assert.Equal(t, []int{1, 2, 4}, populated)
}

func TestLoadSpectralWindowsAndArtifact(t *testing.T) {
	dir := t.TempDir()
	spwPath := filepath.Join(dir, "spw.yaml")
	writeFile(t, spwPath, `
spectralWindows:
  - chanFreqs: [891.0e6, 892.0e6]
    chanWidths: [1.0e6, 1.0e6]
  - chanFreqs: [950.0e6]
    chanWidths: [2.0e6]
`)
	spws, err := LoadSpectralWindows(spwPath)
	require.NoError(t, err)
	require.Len(t, spws, 2)
	assert.Equal(t, []float64{950e6}, spws[1].ChanFreqs)

	artifact := filepath.Join(dir, "channels.yaml")
	require.NoError(t, WritePredictedChannels(artifact, []int{1, 2, 5}))
	got, err := ReadPredictedChannels(artifact)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 5}, got)
}

func TestLoadSpectralWindowsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spw.yaml")
	writeFile(t, path, "spectralWindows: []\n")
	_, err := LoadSpectralWindows(path)
	assert.ErrorIs(t, err, ErrNoEdges)
}
