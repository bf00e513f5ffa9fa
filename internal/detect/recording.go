package detect

import (
	"context"

	"github.com/runger/camflow/internal/capture"
	"github.com/runger/camflow/internal/video"
)

// Recording replays the detections captured alongside a recorded
// stream, keyed by native frame index. Frames absent from the capture
// yield no detections.
type Recording struct {
	frames map[int][]Detection
}

// NewRecording converts a loaded capture into a replay detector.
func NewRecording(rec *capture.Recording) *Recording {
	frames := make(map[int][]Detection, len(rec.Frames))
	for idx, dets := range rec.Frames {
		converted := make([]Detection, 0, len(dets))
		for _, det := range dets {
			d := Detection{
				Class:      det.ClassName,
				Confidence: det.Confidence,
			}
			if det.BBox != nil {
				d.BBox = &BBox{
					X1: det.BBox.X1,
					Y1: det.BBox.Y1,
					X2: det.BBox.X2,
					Y2: det.BBox.Y2,
				}
			}
			converted = append(converted, d)
		}
		frames[idx] = converted
	}
	return &Recording{frames: frames}
}

func (d *Recording) Detect(ctx context.Context, frame video.Frame) ([]Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return d.frames[frame.Index], nil
}
