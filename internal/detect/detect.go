// Package detect turns sampled frames into classified object
// detections. Backends share the Detector interface so the pipeline
// never knows whether detections come from a live model, a capture
// replay, or a synthetic generator.
package detect

import (
	"context"
	"errors"
	"math"

	"github.com/runger/camflow/internal/video"
)

// ErrStop is returned by a detector to request an orderly early stop.
// The pipeline finalizes and persists everything accumulated so far,
// then marks the run stopped instead of failed.
var ErrStop = errors.New("detector requested stop")

// BBox is an axis-aligned bounding box in pixel coordinates,
// corner form: (X1, Y1) top-left, (X2, Y2) bottom-right.
type BBox struct {
	X1 float64
	Y1 float64
	X2 float64
	Y2 float64
}

// Area returns the box area in square pixels. Degenerate boxes with
// inverted corners count as zero.
func (b BBox) Area() float64 {
	return math.Max(0, b.X2-b.X1) * math.Max(0, b.Y2-b.Y1)
}

// Detection is one classified object in a frame. BBox is nil when the
// backend provides no localization.
type Detection struct {
	Class      string
	Confidence float64
	BBox       *BBox
}

// Detector produces detections for one frame. Implementations are
// driven from a single goroutine per run and need not be safe for
// concurrent use.
type Detector interface {
	Detect(ctx context.Context, frame video.Frame) ([]Detection, error)
}
