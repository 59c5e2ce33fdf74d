// Package stats holds the numeric helpers shared by the segmenter and the aggregator.
package stats

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Round rounds half away from zero to the given number of decimals.
func Round(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(v*p) / p
}

// Round2 rounds to two decimals.
func Round2(v float64) float64 {
	return Round(v, 2)
}

// Mean returns the arithmetic mean, 0 for an empty slice.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return stat.Mean(values, nil)
}

// Sum returns the sum of values.
func Sum(values []float64) float64 {
	return floats.Sum(values)
}

// Quantile returns the q-quantile of values using linear interpolation between
// closest ranks: position (n-1)*q over the sorted data.
func Quantile(values []float64, q float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	return QuantileSorted(sorted, q)
}

// QuantileSorted is Quantile over already sorted data.
func QuantileSorted(sorted []float64, q float64) float64 {
	n := len(sorted)
	if n == 0 {
		return math.NaN()
	}
	if q <= 0 {
		return sorted[0]
	}
	if q >= 1 {
		return sorted[n-1]
	}
	pos := q * float64(n-1)
	lo := int(math.Floor(pos))
	hi := lo + 1
	if hi >= n {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}

// IQRBounds describes the accepted value range of an IQR correction.
type IQRBounds struct {
	Q1    float64
	Q3    float64
	Lower float64
	Upper float64
}

// Contains reports whether v lies within the bounds (inclusive).
func (b IQRBounds) Contains(v float64) bool {
	return v >= b.Lower && v <= b.Upper
}

// ComputeIQRBounds computes [Q1-k*IQR, Q3+k*IQR] with custom quantile levels.
func ComputeIQRBounds(values []float64, lowQ, highQ, k float64) IQRBounds {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	q1 := QuantileSorted(sorted, lowQ)
	q3 := QuantileSorted(sorted, highQ)
	iqr := q3 - q1
	return IQRBounds{Q1: q1, Q3: q3, Lower: q1 - k*iqr, Upper: q3 + k*iqr}
}

// ReplaceOutliers replaces every value outside bounds with the mean of the
// in-bound values and rounds all values to two decimals. It returns the
// corrected copy and the number of replaced values.
func ReplaceOutliers(values []float64, bounds IQRBounds) ([]float64, int) {
	inBound := make([]float64, 0, len(values))
	for _, v := range values {
		if bounds.Contains(v) {
			inBound = append(inBound, v)
		}
	}
	substitute := Mean(inBound)

	corrected := make([]float64, len(values))
	replaced := 0
	for i, v := range values {
		if bounds.Contains(v) {
			corrected[i] = Round2(v)
			continue
		}
		corrected[i] = Round2(substitute)
		replaced++
	}
	return corrected, replaced
}

// QuantileLabels assigns each value to one of n equal-frequency bins and
// returns 1-based bin labels. Bin edges are the k/n quantiles; a value v gets
// the first bin k with v <= edge[k], the minimum falls into bin 1. Repeated
// edges collapse, so fewer than n labels are used for data with many ties
// and constant data gets label 1 everywhere.
func QuantileLabels(values []float64, n int) []int {
	labels := make([]int, len(values))
	if len(values) == 0 || n < 1 {
		return labels
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	edges := make([]float64, 0, n+1)
	for k := 0; k <= n; k++ {
		e := QuantileSorted(sorted, float64(k)/float64(n))
		if len(edges) > 0 && e == edges[len(edges)-1] {
			continue
		}
		edges = append(edges, e)
	}

	bins := len(edges) - 1
	for i, v := range values {
		if bins < 1 {
			labels[i] = 1
			continue
		}
		k := sort.SearchFloat64s(edges[1:], v) + 1
		if k > bins {
			k = bins
		}
		labels[i] = k
	}
	return labels
}
