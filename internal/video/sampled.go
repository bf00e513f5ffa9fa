package video

import (
	"context"
	"io"

	"github.com/runger/camflow/internal/capture"
	"github.com/runger/camflow/internal/config"
)

// SampledSource walks a fixed-length native timeline at the configured
// sampling rate. Timestamps are derived from the native index, so the
// stream position survives process restarts.
type SampledSource struct {
	meta     Metadata
	interval int
	next     int
}

// NewSynthetic fabricates a stream from configuration alone, with no
// backing capture data. Useful for smoke runs and benchmarks.
func NewSynthetic(cfg config.SyntheticVideo, samplingFPS float64) *SampledSource {
	meta := Metadata{
		FPS:        cfg.FPS,
		FrameCount: int(cfg.FPS * cfg.Seconds),
		Width:      cfg.Width,
		Height:     cfg.Height,
	}
	return &SampledSource{
		meta:     meta,
		interval: SampleInterval(meta.FPS, samplingFPS),
	}
}

// NewFromRecording replays the frame timeline of a loaded capture file.
func NewFromRecording(rec *capture.Recording, samplingFPS float64) *SampledSource {
	meta := Metadata{
		FPS:        rec.Meta.FPS,
		FrameCount: rec.Meta.FrameCount,
		Width:      rec.Meta.Width,
		Height:     rec.Meta.Height,
	}
	return &SampledSource{
		meta:     meta,
		interval: SampleInterval(meta.FPS, samplingFPS),
	}
}

func (s *SampledSource) Metadata() Metadata {
	return s.meta
}

func (s *SampledSource) Next(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}
	if s.next >= s.meta.FrameCount {
		return Frame{}, io.EOF
	}
	frame := Frame{
		Index:     s.next,
		Timestamp: float64(s.next) / s.meta.FPS,
		Width:     s.meta.Width,
		Height:    s.meta.Height,
	}
	s.next += s.interval
	return frame, nil
}

func (s *SampledSource) Close() error {
	return nil
}
