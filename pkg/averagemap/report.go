package averagemap

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"strconv"

	"polcube/internal/models"
)

// reportScale converts Hz to MHz. The weight column uses the same factor.
const reportScale = 1e6

var reportLegend = []string{"channel index", "frequency [MHz]", "weight [Jy^-2]"}

// WriteStatisticsReport writes stats as a tab separated table: a legend row
// followed by one row per channel with frequency and weight divided by 1e6
// and rounded to 4 decimals. Undefined weights are written as NaN.
func WriteStatisticsReport(stats []models.ChannelStatistic, path string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating statistics file: %w", err)
	}
	defer file.Close()

	w := csv.NewWriter(file)
	w.Comma = '\t'
	if err := w.Write(reportLegend); err != nil {
		return fmt.Errorf("writing statistics file: %w", err)
	}
	for _, s := range stats {
		row := []string{
			strconv.Itoa(s.Channel),
			formatRounded(s.Frequency / reportScale),
			formatRounded(s.Weight / reportScale),
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("writing statistics file: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("writing statistics file: %w", err)
	}
	return file.Close()
}

// ReadStatisticsReport parses a file written by WriteStatisticsReport,
// converting the columns back to Hz and Jy^-2.
func ReadStatisticsReport(path string) ([]models.ChannelStatistic, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening statistics file: %w", err)
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.Comma = '\t'
	r.FieldsPerRecord = len(reportLegend)
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading statistics file %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("statistics file %s has no legend", path)
	}

	stats := make([]models.ChannelStatistic, 0, len(records)-1)
	for i, rec := range records[1:] {
		channel, err := strconv.Atoi(rec[0])
		if err != nil {
			return nil, fmt.Errorf("%s row %d: channel: %w", path, i+2, err)
		}
		freq, err := strconv.ParseFloat(rec[1], 64)
		if err != nil {
			return nil, fmt.Errorf("%s row %d: frequency: %w", path, i+2, err)
		}
		weight, err := strconv.ParseFloat(rec[2], 64)
		if err != nil {
			return nil, fmt.Errorf("%s row %d: weight: %w", path, i+2, err)
		}
		stats = append(stats, models.ChannelStatistic{
			Channel:   channel,
			Frequency: freq * reportScale,
			Weight:    weight * reportScale,
		})
	}
	return stats, nil
}

func formatRounded(v float64) string {
	switch {
	case math.IsNaN(v):
		return "NaN"
	case math.IsInf(v, 1):
		return "inf"
	case math.IsInf(v, -1):
		return "-inf"
	}
	return strconv.FormatFloat(math.Round(v*1e4)/1e4, 'f', -1, 64)
}
