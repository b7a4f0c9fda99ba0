package averagemap

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"polcube/internal/models"
)

func TestStatisticsReportRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stats.dat")
	stats := []models.ChannelStatistic{
		{Channel: 0, Frequency: 890.123456e6, Weight: 1.23456789e10},
		{Channel: 1, Frequency: 892.5e6, Weight: math.NaN()},
		{Channel: 2, Frequency: 895.00004e6, Weight: 4.2e4},
	}
	if err := WriteStatisticsReport(stats, path); err != nil {
		t.Fatalf("WriteStatisticsReport failed: %v", err)
	}

	got, err := ReadStatisticsReport(path)
	if err != nil {
		t.Fatalf("ReadStatisticsReport failed: %v", err)
	}
	if len(got) != len(stats) {
		t.Fatalf("read %d rows, want %d", len(got), len(stats))
	}
	for i, s := range stats {
		g := got[i]
		if g.Channel != s.Channel {
			t.Errorf("row %d: channel %d, want %d", i, g.Channel, s.Channel)
		}
		if math.Abs(g.Frequency/1e6-s.Frequency/1e6) > 0.5e-4+1e-9 {
			t.Errorf("row %d: frequency %v, want %v to 4 decimals", i, g.Frequency, s.Frequency)
		}
		if math.IsNaN(s.Weight) {
			if !math.IsNaN(g.Weight) {
				t.Errorf("row %d: weight %v, want NaN", i, g.Weight)
			}
			continue
		}
		if math.Abs(g.Weight/1e6-s.Weight/1e6) > 0.5e-4+1e-9 {
			t.Errorf("row %d: weight %v, want %v to 4 decimals", i, g.Weight, s.Weight)
		}
	}
}

func TestStatisticsReportFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stats.dat")
	stats := []models.ChannelStatistic{
		{Channel: 0, Frequency: 890.123456e6, Weight: 1.23456789e10},
		{Channel: 1, Frequency: 892.5e6, Weight: math.NaN()},
	}
	if err := WriteStatisticsReport(stats, path); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	want := "channel index\tfrequency [MHz]\tweight [Jy^-2]\n" +
		"0\t890.1235\t12345.6789\n" +
		"1\t892.5\tNaN\n"
	if string(data) != want {
		t.Errorf("unexpected report:\n%s\nwant:\n%s", data, want)
	}
	if strings.Count(string(data), "\n") != len(stats)+1 {
		t.Error("expected one legend line and one line per channel")
	}
}
