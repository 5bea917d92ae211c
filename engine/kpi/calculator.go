package kpi

import (
	"math"
	"sort"
)

// Percentile calculates the continuous (linearly interpolated) percentile of
// the given values. Empty input resolves to 0.
func Percentile(values []float64, percentile float64) float64 {
	if len(values) == 0 {
		return 0
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	index := (percentile / 100.0) * float64(len(sorted)-1)
	lower := int(math.Floor(index))
	upper := int(math.Ceil(index))

	if lower == upper {
		return sorted[lower]
	}

	weight := index - float64(lower)
	return sorted[lower]*(1-weight) + sorted[upper]*weight
}

// Mean calculates the arithmetic mean. Empty input resolves to 0.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// SuccessRate maps boolean outcomes to {0,100} and averages them. Empty
// input resolves to 0.
func SuccessRate(outcomes []bool) float64 {
	if len(outcomes) == 0 {
		return 0
	}

	var sum float64
	for _, ok := range outcomes {
		if ok {
			sum += 100
		}
	}
	return sum / float64(len(outcomes))
}
