// Package emissions estimates CO2 output for one counting window from
// per-class emission factors.
package emissions

import "fmt"

// EstimateCO2 returns the estimated kilograms of CO2 for a bucket:
// each class contributes count * factor * window minutes, where the
// factor is kg CO2 per vehicle-minute. Classes without a configured
// factor contribute nothing.
func EstimateCO2(counts map[string]int, factors map[string]float64, bucketSeconds int) float64 {
	minutes := float64(bucketSeconds) / 60.0
	total := 0.0
	for class, count := range counts {
		factor, ok := factors[class]
		if !ok {
			continue
		}
		total += float64(count) * factor * minutes
	}
	return total
}

// SensitivityInterval returns the symmetric (low, high) band around an
// estimate for a percentage uncertainty. A negative pct is rejected; a
// zero pct collapses the band onto the estimate.
func SensitivityInterval(estimate, pct float64) (float64, float64, error) {
	if pct < 0 {
		return 0, 0, fmt.Errorf("sensitivity pct must be >= 0, got %v", pct)
	}
	delta := pct / 100.0
	return estimate * (1 - delta), estimate * (1 + delta), nil
}
