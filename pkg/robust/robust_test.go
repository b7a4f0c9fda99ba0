package robust

import (
	"math"
	"testing"
)

func TestMedian(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		want   float64
	}{
		{"odd", []float64{3, 1, 2}, 2},
		{"even", []float64{4, 1, 3, 2}, 2.5},
		{"single", []float64{7}, 7},
		{"negative", []float64{-5, -1, -3}, -3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Median(tt.values); got != tt.want {
				t.Errorf("Median(%v) = %v, want %v", tt.values, got, tt.want)
			}
		})
	}
}

func TestMedianDoesNotReorderInput(t *testing.T) {
	values := []float64{3, 1, 2}
	Median(values)
	if values[0] != 3 || values[1] != 1 || values[2] != 2 {
		t.Errorf("input was modified: %v", values)
	}
}

func TestMedianEmpty(t *testing.T) {
	if got := Median(nil); !math.IsNaN(got) {
		t.Errorf("expected NaN for empty input, got %v", got)
	}
}

func TestStdViaMAD(t *testing.T) {
	// median = 3, |x - 3| = {2, 1, 0, 1, 97}, median = 1
	values := []float64{1, 2, 3, 4, 100}
	got := StdViaMAD(values)
	if math.Abs(got-MADScale) > 1e-12 {
		t.Errorf("StdViaMAD(%v) = %v, want %v", values, got, MADScale)
	}
}

func TestStdViaMADIgnoresNonFinite(t *testing.T) {
	values := []float64{1, math.NaN(), 2, 3, math.Inf(1), 4, 100}
	got := StdViaMAD(values)
	if math.Abs(got-MADScale) > 1e-12 {
		t.Errorf("StdViaMAD = %v, want %v", got, MADScale)
	}
}

func TestStdViaMADConstant(t *testing.T) {
	if got := StdViaMAD([]float64{5, 5, 5, 5}); got != 0 {
		t.Errorf("expected zero spread for constant input, got %v", got)
	}
}

func TestStdViaMADAllNaN(t *testing.T) {
	values := []float64{math.NaN(), math.NaN()}
	if got := StdViaMAD(values); !math.IsNaN(got) {
		t.Errorf("expected NaN, got %v", got)
	}
	if !AllNonFinite(values) {
		t.Error("AllNonFinite should be true for an all-NaN slice")
	}
}

func TestAllNonFinite(t *testing.T) {
	if AllNonFinite([]float64{math.NaN(), 1}) {
		t.Error("slice with a finite element reported as non-finite")
	}
	if !AllNonFinite([]float64{math.Inf(-1), math.NaN()}) {
		t.Error("slice of infinities and NaN reported as finite")
	}
}
