package averagemap

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"polcube/internal/models"
	"polcube/pkg/archive"
	"polcube/pkg/fits"
)

// Params holds the file locations of one average map run.
type Params struct {
	// InputCube is the smoothed (X, Y, FREQ, STOKES) cube
	InputCube string

	// OutputCube receives the average map, it is overwritten
	OutputCube string

	// StatisticsFile receives the per-channel weight report
	StatisticsFile string
}

// Engine runs the average map pipeline:
// 1. Allocating an empty output cube sized after the input
// 2. Estimating per-channel weights from Stokes V
// 3. Accumulating the weighted planes in place
// 4. Tagging the output header with the averaged frequency
// 5. Writing the statistics report
// 6. Archiving a copy of the output cube
//
// A failed run leaves a partially filled output cube that has to be
// regenerated from scratch.
type Engine struct {
	params   *Params
	archiver archive.Archiver
	logger   *zap.Logger

	stats        []models.ChannelStatistic
	averagedFreq float64
}

// NewEngine creates an engine. A nil archiver skips archiving.
func NewEngine(params *Params, archiver archive.Archiver, logger *zap.Logger) *Engine {
	if archiver == nil {
		archiver = archive.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		params:   params,
		archiver: archiver,
		logger:   logger,
	}
}

// Process runs the complete pipeline.
func (e *Engine) Process(ctx context.Context) error {
	start := time.Now()

	e.logger.Info("Opening data cube", zap.String("path", e.params.InputCube))
	input, err := fits.Open(e.params.InputCube, fits.ReadOnly)
	if err != nil {
		return err
	}
	defer input.Close()
	if err := checkInputLayout(input); err != nil {
		return err
	}
	e.logger.Info("Input cube dimensions",
		zap.Int("x", input.Width()),
		zap.Int("y", input.Height()),
		zap.Int("channels", input.Channels()),
		zap.Int("stokes", input.Planes()),
	)

	size, err := AllocateOutputCube(input.Header(), input.Width(), input.Height(), e.params.OutputCube)
	if err != nil {
		return err
	}
	e.logger.Info("Allocated output cube",
		zap.String("path", e.params.OutputCube),
		zap.Int64("bytes", size),
	)

	e.stats, err = ComputeChannelStatistics(input, e.logger)
	if err != nil {
		return fmt.Errorf("computing channel statistics: %w", err)
	}

	output, err := fits.Open(e.params.OutputCube, fits.ReadWrite)
	if err != nil {
		return err
	}
	e.averagedFreq, err = FillAverageCube(input, output, e.stats, e.logger)
	if err != nil {
		output.Close()
		return fmt.Errorf("filling average map: %w", err)
	}
	if err := output.Close(); err != nil {
		return err
	}

	if err := PatchOutputHeader(e.params.OutputCube, e.averagedFreq); err != nil {
		return err
	}

	e.logger.Info("Writing statistics file", zap.String("path", e.params.StatisticsFile))
	if err := WriteStatisticsReport(e.stats, e.params.StatisticsFile); err != nil {
		return err
	}

	dest, err := e.archiver.Archive(ctx, e.params.OutputCube)
	if err != nil {
		return fmt.Errorf("archiving average map: %w", err)
	}

	e.logger.Info("Average map completed",
		zap.String("output", e.params.OutputCube),
		zap.String("archive", dest),
		zap.Float64("averaged_frequency_hz", e.averagedFreq),
		zap.Duration("elapsed", time.Since(start)),
	)
	return nil
}

// Statistics returns the per-channel statistics of the last run.
func (e *Engine) Statistics() []models.ChannelStatistic {
	return e.stats
}

// AveragedFrequency returns the weighted mean frequency of the last run.
func (e *Engine) AveragedFrequency() float64 {
	return e.averagedFreq
}
