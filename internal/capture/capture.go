// Package capture reads camera capture files: newline-delimited JSON
// with one metadata header followed by per-frame detection records.
// Capture files are produced by the upstream camera/model system; the
// pipeline replays them as a frame source and detector.
package capture

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
)

// Meta is the header record describing the native stream.
type Meta struct {
	FPS        float64 `json:"fps"`
	FrameCount int     `json:"frame_count"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
}

// BoundingBox is an axis-aligned box in pixel coordinates, corner form.
type BoundingBox struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

// Detection mirrors the JSON shape emitted by the capture system.
type Detection struct {
	ClassName  string       `json:"class_name"`
	Confidence float64      `json:"confidence"`
	BBox       *BoundingBox `json:"bbox,omitempty"`
}

// Frame is one per-frame record. Frames without detections may be
// omitted from the file entirely.
type Frame struct {
	FrameNumber int         `json:"frame_number"`
	Detections  []Detection `json:"detections"`
}

// Recording is a fully loaded capture file.
type Recording struct {
	Meta   Meta
	Frames map[int][]Detection
}

// Load reads and validates a capture file.
func Load(path string) (*Recording, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open capture file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	// Frame records can carry hundreds of detections per line.
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	rec := &Recording{
		Frames: make(map[int][]Detection),
	}

	lineNo := 0
	headerSeen := false
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		if !headerSeen {
			if err := json.Unmarshal(line, &rec.Meta); err != nil {
				return nil, fmt.Errorf("parsing capture header (line %d): %w", lineNo, err)
			}
			if rec.Meta.FPS <= 0 {
				return nil, fmt.Errorf("capture header: fps must be > 0, got %v", rec.Meta.FPS)
			}
			if rec.Meta.FrameCount <= 0 {
				return nil, fmt.Errorf("capture header: frame_count must be > 0, got %d", rec.Meta.FrameCount)
			}
			headerSeen = true
			continue
		}

		var frame Frame
		if err := json.Unmarshal(line, &frame); err != nil {
			return nil, fmt.Errorf("parsing capture frame (line %d): %w", lineNo, err)
		}
		if frame.FrameNumber < 0 || frame.FrameNumber >= rec.Meta.FrameCount {
			return nil, fmt.Errorf("capture frame %d out of range [0, %d) (line %d)", frame.FrameNumber, rec.Meta.FrameCount, lineNo)
		}
		rec.Frames[frame.FrameNumber] = frame.Detections
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading capture file: %w", err)
	}
	if !headerSeen {
		return nil, fmt.Errorf("capture file %s is empty", path)
	}

	return rec, nil
}
