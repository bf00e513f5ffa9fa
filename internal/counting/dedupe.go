package counting

import (
	"math"

	"github.com/runger/camflow/internal/detect"
)

type dedupeKey struct {
	class  string
	hasBox bool
	x1     float64
	y1     float64
	x2     float64
	y2     float64
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// Dedupe collapses duplicate detections within one frame. Two
// detections are duplicates when they share a class and their box
// corners agree after rounding to one decimal; detections without a
// box collapse per class. First occurrence wins, order is kept.
func Dedupe(detections []detect.Detection) []detect.Detection {
	seen := make(map[dedupeKey]struct{}, len(detections))
	unique := make([]detect.Detection, 0, len(detections))
	for _, det := range detections {
		key := dedupeKey{class: det.Class}
		if det.BBox != nil {
			key.hasBox = true
			key.x1 = round1(det.BBox.X1)
			key.y1 = round1(det.BBox.Y1)
			key.x2 = round1(det.BBox.X2)
			key.y2 = round1(det.BBox.Y2)
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		unique = append(unique, det)
	}
	return unique
}
