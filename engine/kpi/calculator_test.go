package kpi

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPercentile(t *testing.T) {
	tests := []struct {
		name       string
		values     []float64
		percentile float64
		expected   float64
	}{
		{
			name:       "p95 interpolates between the two highest values",
			values:     []float64{10, 20, 30, 40, 50},
			percentile: 95,
			expected:   48,
		},
		{
			name:       "p50 of even count interpolates the middle pair",
			values:     []float64{10, 20, 30, 40},
			percentile: 50,
			expected:   25,
		},
		{
			name:       "p90 of unsorted input sorts first",
			values:     []float64{50, 10, 40, 20, 30},
			percentile: 90,
			expected:   46,
		},
		{
			name:       "p100 returns the maximum",
			values:     []float64{10, 20, 30},
			percentile: 100,
			expected:   30,
		},
		{
			name:       "p0 returns the minimum",
			values:     []float64{10, 20, 30},
			percentile: 0,
			expected:   10,
		},
		{
			name:       "single value is every percentile",
			values:     []float64{42},
			percentile: 95,
			expected:   42,
		},
		{
			name:       "empty input resolves to zero",
			values:     nil,
			percentile: 95,
			expected:   0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, Percentile(tt.values, tt.percentile), 1e-9)
		})
	}
}

func TestPercentileDoesNotMutateInput(t *testing.T) {
	values := []float64{30, 10, 20}
	Percentile(values, 95)
	assert.Equal(t, []float64{30, 10, 20}, values)
}

func TestMean(t *testing.T) {
	assert.InDelta(t, 20, Mean([]float64{10, 20, 30}), 1e-9)
	assert.Zero(t, Mean(nil))
}

func TestSuccessRate(t *testing.T) {
	assert.InDelta(t, 75, SuccessRate([]bool{true, true, true, false}), 1e-9)
	assert.InDelta(t, 100, SuccessRate([]bool{true}), 1e-9)
	assert.Zero(t, SuccessRate([]bool{false, false}))
	assert.Zero(t, SuccessRate(nil))
}
