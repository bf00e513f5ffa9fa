// Package video produces sampled frame streams for the metrics pipeline.
package video

import (
	"context"
	"math"
)

// Frame is one sampled frame handed to the detector. Pixel data stays
// with the upstream capture system; the pipeline only needs identity,
// timing, and geometry.
type Frame struct {
	// Index is the native (pre-sampling) frame index.
	Index int
	// Timestamp is seconds since stream start.
	Timestamp float64
	Width     int
	Height    int
}

// Metadata describes the native stream before sampling.
type Metadata struct {
	FPS        float64
	FrameCount int
	Width      int
	Height     int
}

// Source yields sampled frames in ascending timestamp order. Next
// returns io.EOF after the final frame. Sources are not restartable;
// a resumed run opens a fresh Source and iterates from the start.
type Source interface {
	Metadata() Metadata
	Next(ctx context.Context) (Frame, error)
	Close() error
}

// SampleInterval returns how many native frames to advance between
// sampled frames so the effective rate approximates targetFPS. The
// interval never drops below 1: a target above the native rate still
// visits every frame exactly once.
func SampleInterval(nativeFPS, targetFPS float64) int {
	if nativeFPS <= 0 || targetFPS <= 0 {
		return 1
	}
	interval := int(math.Round(nativeFPS / targetFPS))
	if interval < 1 {
		interval = 1
	}
	return interval
}
