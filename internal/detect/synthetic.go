package detect

import (
	"context"
	"math/rand"

	"github.com/runger/camflow/internal/config"
	"github.com/runger/camflow/internal/video"
)

// Synthetic fabricates detections from a seeded generator. Identical
// seed and frame sequence produce identical detections, which keeps
// smoke runs reproducible.
type Synthetic struct {
	mode        string
	maxPerFrame int
	classes     []string
	rng         *rand.Rand
}

// NewSynthetic builds a synthetic detector. An empty class list falls
// back to the canonical vehicle classes.
func NewSynthetic(cfg config.SyntheticDetector, classes []string) *Synthetic {
	if len(classes) == 0 {
		classes = CanonicalClasses
	}
	return &Synthetic{
		mode:        cfg.Mode,
		maxPerFrame: cfg.MaxPerFrame,
		classes:     classes,
		rng:         rand.New(rand.NewSource(cfg.Seed)),
	}
}

func (d *Synthetic) Detect(ctx context.Context, frame video.Frame) ([]Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if d.mode != "random" || d.maxPerFrame <= 0 {
		return nil, nil
	}
	if frame.Width <= 0 || frame.Height <= 0 {
		return nil, nil
	}

	width := float64(frame.Width)
	height := float64(frame.Height)

	count := d.rng.Intn(d.maxPerFrame + 1)
	detections := make([]Detection, 0, count)
	for i := 0; i < count; i++ {
		x1 := d.rng.Float64() * width * 0.7
		y1 := d.rng.Float64() * height * 0.7
		box := BBox{
			X1: x1,
			Y1: y1,
			X2: clampMax(x1+spanBetween(d.rng, 10, width*0.3), width),
			Y2: clampMax(y1+spanBetween(d.rng, 10, height*0.3), height),
		}
		detections = append(detections, Detection{
			Class:      d.classes[d.rng.Intn(len(d.classes))],
			Confidence: 0.3 + d.rng.Float64()*0.65,
			BBox:       &box,
		})
	}
	return detections, nil
}

// spanBetween draws a uniform value in [min, max], collapsing to min
// when the frame is too small for the usual box size range.
func spanBetween(rng *rand.Rand, min, max float64) float64 {
	if max <= min {
		return min
	}
	return min + rng.Float64()*(max-min)
}

func clampMax(v, max float64) float64 {
	if v > max {
		return max
	}
	return v
}
