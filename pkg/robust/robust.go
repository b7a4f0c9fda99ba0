// Package robust provides outlier resistant estimators of location and scale.
package robust

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
)

// MADScale converts a median absolute deviation into a standard deviation
// estimate for normally distributed data.
const MADScale = 1.4826

// Median calculates the median of values. It returns NaN for an empty slice.
// values is left untouched.
func Median(values []float64) float64 {
	valuesCopy := make([]float64, len(values))
	copy(valuesCopy, values)
	return medianInPlace(valuesCopy)
}

// medianInPlace sorts values and returns its median
func medianInPlace(values []float64) float64 {
	n := len(values)
	if n == 0 {
		return math.NaN()
	}

	sort.Float64s(values)
	if n%2 == 0 {
		return (values[n/2-1] + values[n/2]) / 2
	}
	return values[n/2]
}

// Finite returns the finite elements of values in a newly allocated slice.
func Finite(values []float64) []float64 {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			out = append(out, v)
		}
	}
	return out
}

// AllNonFinite reports whether no element of values is finite. An empty
// slice counts as non-finite.
func AllNonFinite(values []float64) bool {
	for _, v := range values {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// StdViaMAD estimates the standard deviation of the finite elements of
// values as MADScale * median(|x - median(x)|).
//
// Non-finite elements are ignored. NaN is returned when no element is finite.
func StdViaMAD(values []float64) float64 {
	buf := Finite(values)
	if len(buf) == 0 {
		return math.NaN()
	}

	med := medianInPlace(buf)
	floats.AddConst(-med, buf)
	for i, v := range buf {
		buf[i] = math.Abs(v)
	}
	return MADScale * medianInPlace(buf)
}
