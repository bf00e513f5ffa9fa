// Package density scores traffic congestion for one counting window.
package density

import "math"

// Classification levels, ordered from quiet to congested.
const (
	LevelLow    = "low"
	LevelMedium = "medium"
	LevelHigh   = "high"
)

// Result pairs a normalized score with its classification band.
type Result struct {
	Score float64
	Level string
}

// Score normalizes totalVehicles against maxVehicles and classifies
// the result. A non-positive ceiling scores 0; scores are clamped to
// at most 1. Ties on a threshold go to the lower band.
func Score(totalVehicles, maxVehicles int, lowMax, mediumMax float64) Result {
	score := 0.0
	if maxVehicles > 0 {
		score = math.Min(1, float64(totalVehicles)/float64(maxVehicles))
	}

	level := LevelHigh
	switch {
	case score <= lowMax:
		level = LevelLow
	case score <= mediumMax:
		level = LevelMedium
	}
	return Result{Score: score, Level: level}
}

// Ceiling resolves the normalization ceiling per bucket.
type Ceiling struct {
	rolling bool
	value   int
}

// NewRollingCeiling seeds a rolling ceiling. seed is the largest
// total_vehicles ever stored for the camera, or the configured default
// when the camera has no history at all.
func NewRollingCeiling(seed int) *Ceiling {
	return &Ceiling{rolling: true, value: seed}
}

// NewFixedCeiling builds a constant ceiling, per-camera or default.
func NewFixedCeiling(value int) *Ceiling {
	return &Ceiling{value: value}
}

// ForBucket returns the ceiling to score a bucket against. In rolling
// mode a record-setting total raises the ceiling before scoring, so
// the record bucket itself scores 1.0.
func (c *Ceiling) ForBucket(totalVehicles int) int {
	if c.rolling && totalVehicles > c.value {
		c.value = totalVehicles
	}
	return c.value
}
