// Package averagemap collapses a full Stokes spectral cube into a single
// noise weighted average map.
//
// Every channel is weighted by the inverse variance of its Stokes V plane,
// estimated robustly from the median absolute deviation. The output cube has
// three planes, the weighted means of I, of sqrt(Q²+U²) and of V, and a
// single synthetic channel tagged with the weighted mean frequency.
//
// Input and output cubes are memory-mapped and processed one plane at a time,
// so cubes much larger than physical memory can be averaged. Accumulation
// happens directly in the output file.
package averagemap

import (
	"errors"
	"fmt"
	"math"

	"github.com/cwbudde/algo-vecmath"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"

	"polcube/internal/models"
	"polcube/pkg/fits"
	"polcube/pkg/robust"
)

// spectralAxis is the FITS axis (NAXIS3) holding the channels.
const spectralAxis = 3

// ErrLayout is returned when a cube is not ordered (X, Y, FREQ, STOKES).
var ErrLayout = errors.New("averagemap: unexpected cube layout")

// AllocateOutputCube creates an empty average map cube of width x height
// pixels at outputPath. The header is cloned from inputHeader with the axis
// lengths replaced by (width, height, 1, 3) and the data stored as 32 bit
// floats. The file is extended to its final size without writing the zero
// filled image. It returns the size of the file.
func AllocateOutputCube(inputHeader *fits.Header, width, height int, outputPath string) (int64, error) {
	if width <= 0 || height <= 0 {
		return 0, fmt.Errorf("%w: spatial axes %d x %d", ErrLayout, width, height)
	}

	header := inputHeader.Clone()
	for _, key := range []string{"BSCALE", "BZERO", "BLANK"} {
		header.Delete(key)
	}
	keywords := []fits.Keyword{
		{Key: "BITPIX", Value: -32},
		{Key: "NAXIS", Value: 4},
		{Key: "NAXIS1", Value: width},
		{Key: "NAXIS2", Value: height},
		{Key: "NAXIS3", Value: 1},
		{Key: "NAXIS4", Value: models.NumAveragePlanes},
	}
	for _, kw := range keywords {
		if err := header.Set(kw.Key, kw.Value); err != nil {
			return 0, err
		}
	}

	size, err := fits.Allocate(outputPath, header)
	if err != nil {
		return 0, fmt.Errorf("allocating output cube: %w", err)
	}
	return size, nil
}

// ComputeChannelStatistics derives the frequency and weight of every channel
// of input. The weight is 1/rms² with rms the MAD based standard deviation of
// the Stokes V plane. Channels without any finite Stokes V pixel get a NaN
// weight.
func ComputeChannelStatistics(input *fits.Cube, logger *zap.Logger) ([]models.ChannelStatistic, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := checkInputLayout(input); err != nil {
		return nil, err
	}

	plane := make([]float64, input.PlaneLen())
	stats := make([]models.ChannelStatistic, 0, input.Channels())
	for c := 0; c < input.Channels(); c++ {
		if err := input.ReadPlane(int(models.StokesV), c, plane); err != nil {
			return nil, fmt.Errorf("reading Stokes V of channel %d: %w", c, err)
		}

		w := math.NaN()
		if !robust.AllNonFinite(plane) {
			rms := robust.StdViaMAD(plane)
			w = 1 / (rms * rms)
		}

		freq, err := input.ChannelFrequency(c)
		if err != nil {
			return nil, fmt.Errorf("frequency of channel %d: %w", c, err)
		}

		logger.Debug("Channel statistics",
			zap.Int("channel", c),
			zap.Float64("frequency_hz", freq),
			zap.Float64("weight", w),
		)
		stats = append(stats, models.ChannelStatistic{Channel: c, Frequency: freq, Weight: w})
	}
	return stats, nil
}

// FillAverageCube accumulates the weighted planes of input into output and
// normalizes them by the sum of the defined weights. It returns the
// weighted mean frequency.
//
// A zero weight sum is not special cased: every output pixel and the
// frequency become NaN or Inf.
func FillAverageCube(input, output *fits.Cube, stats []models.ChannelStatistic, logger *zap.Logger) (float64, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := checkInputLayout(input); err != nil {
		return 0, err
	}
	if output.Planes() != models.NumAveragePlanes || output.Channels() != 1 ||
		output.Width() != input.Width() || output.Height() != input.Height() {
		return 0, fmt.Errorf("%w: output cube %dx%dx%dx%d does not match input %dx%d",
			ErrLayout, output.Width(), output.Height(), output.Channels(), output.Planes(),
			input.Width(), input.Height())
	}

	n := input.PlaneLen()
	stokesI := make([]float64, n)
	stokesQ := make([]float64, n)
	stokesU := make([]float64, n)
	stokesV := make([]float64, n)
	polQU := make([]float64, n)

	weights := make([]float64, 0, len(stats))
	weightedFreqs := 0.0
	for i, s := range stats {
		logger.Debug("Processing average maps",
			zap.Int("progress", i+1),
			zap.Int("channels", len(stats)),
		)
		if !s.HasData() {
			continue
		}

		for _, p := range []struct {
			stokes models.Stokes
			dst    []float64
		}{
			{models.StokesI, stokesI},
			{models.StokesQ, stokesQ},
			{models.StokesU, stokesU},
			{models.StokesV, stokesV},
		} {
			if err := input.ReadPlane(int(p.stokes), s.Channel, p.dst); err != nil {
				return 0, fmt.Errorf("reading channel %d: %w", s.Channel, err)
			}
		}
		vecmath.Magnitude(polQU, stokesQ, stokesU)

		w := s.Weight
		if err := output.AccumulatePlane(models.PlanePolarizedI, 0, w, stokesI); err != nil {
			return 0, err
		}
		if err := output.AccumulatePlane(models.PlanePolarizedQU, 0, w, polQU); err != nil {
			return 0, err
		}
		if err := output.AccumulatePlane(models.PlaneV, 0, w, stokesV); err != nil {
			return 0, err
		}
		weightedFreqs += w * math.Sqrt(s.Frequency*s.Frequency)
		weights = append(weights, w)
	}

	weightsSum := floats.Sum(weights)
	for plane := 0; plane < models.NumAveragePlanes; plane++ {
		if err := output.DividePlane(plane, 0, weightsSum); err != nil {
			return 0, err
		}
	}
	if err := output.Flush(); err != nil {
		return 0, err
	}

	averagedFreq := weightedFreqs / weightsSum
	logger.Info("Filled average map",
		zap.Int("channels_used", len(weights)),
		zap.Int("channels_total", len(stats)),
		zap.Float64("weights_sum", weightsSum),
		zap.Float64("averaged_frequency_hz", averagedFreq),
	)
	return averagedFreq, nil
}

// PatchOutputHeader tags the single channel of the output cube at path with
// the averaged frequency.
func PatchOutputHeader(path string, averagedFreq float64) error {
	err := fits.UpdateHeader(path, []fits.Keyword{
		{Key: fmt.Sprintf("CRPIX%d", spectralAxis), Value: 1},
		{Key: fmt.Sprintf("NAXIS%d", spectralAxis), Value: 1},
		{Key: fmt.Sprintf("CRVAL%d", spectralAxis), Value: averagedFreq},
	})
	if err != nil {
		return fmt.Errorf("patching output header: %w", err)
	}
	return nil
}

func checkInputLayout(input *fits.Cube) error {
	if input.Planes() != models.NumStokes {
		return fmt.Errorf("%w: %s has %d Stokes planes, need %d", ErrLayout, input.Path(), input.Planes(), models.NumStokes)
	}
	if axis := input.SpectralAxis(); axis != spectralAxis {
		return fmt.Errorf("%w: %s has its frequency axis at NAXIS%d", ErrLayout, input.Path(), axis)
	}
	return nil
}
