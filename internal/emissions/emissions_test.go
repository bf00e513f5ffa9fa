package emissions

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEstimateCO2(t *testing.T) {
	factors := map[string]float64{"car": 0.2, "bus": 1.0}

	got := EstimateCO2(map[string]int{"car": 2, "bus": 1}, factors, 120)
	// (2*0.2 + 1*1.0) * 2 minutes
	assert.InDelta(t, 2.8, got, 1e-9)
}

func TestEstimateCO2ScalesWithWindow(t *testing.T) {
	factors := map[string]float64{"car": 0.25}
	counts := map[string]int{"car": 4}

	oneMinute := EstimateCO2(counts, factors, 60)
	fiveMinutes := EstimateCO2(counts, factors, 300)
	assert.InDelta(t, oneMinute*5, fiveMinutes, 1e-9)
}

func TestEstimateCO2IgnoresUnknownClasses(t *testing.T) {
	factors := map[string]float64{"car": 0.25}

	with := EstimateCO2(map[string]int{"car": 3}, factors, 60)
	without := EstimateCO2(map[string]int{"car": 3, "rickshaw": 9}, factors, 60)
	assert.Equal(t, with, without)
}

func TestEstimateCO2Empty(t *testing.T) {
	assert.Equal(t, 0.0, EstimateCO2(nil, map[string]float64{"car": 0.25}, 60))
	assert.Equal(t, 0.0, EstimateCO2(map[string]int{"car": 3}, nil, 60))
}

func TestSensitivityInterval(t *testing.T) {
	low, high, err := SensitivityInterval(10.0, 10)
	require.NoError(t, err)
	assert.InDelta(t, 9.0, low, 1e-9)
	assert.InDelta(t, 11.0, high, 1e-9)
}

func TestSensitivityIntervalZeroPct(t *testing.T) {
	low, high, err := SensitivityInterval(5.5, 0)
	require.NoError(t, err)
	assert.Equal(t, 5.5, low)
	assert.Equal(t, 5.5, high)
}

func TestSensitivityIntervalNegativePct(t *testing.T) {
	_, _, err := SensitivityInterval(10.0, -1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be >= 0")
}
