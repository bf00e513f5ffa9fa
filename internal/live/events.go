package live

import (
	"time"

	"github.com/runger/camflow/internal/detect"
	"github.com/runger/camflow/internal/pipeline"
	"github.com/runger/camflow/internal/video"
)

// Event types carried on the relay. Every event is a JSON object with
// a type and camera_id field; subscribers filter on camera_id.
const (
	EventTypeWelcome    = "welcome"
	EventTypeDetections = "detections"
	EventTypeBucket     = "bucket"
)

// Detection is one detection as published on the feed.
type Detection struct {
	Class      string  `json:"class"`
	Confidence float64 `json:"confidence"`
	BBox       *BBox   `json:"bbox,omitempty"`
}

// BBox is a detection bounding box in pixel corner coordinates.
type BBox struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

// DetectionEvent is the per-frame event published while a pipeline
// consumes its source.
type DetectionEvent struct {
	Type        string      `json:"type"`
	CameraID    string      `json:"camera_id"`
	RunID       string      `json:"run_id"`
	FrameNumber int         `json:"frame_number"`
	Timestamp   float64     `json:"timestamp"`
	Detections  []Detection `json:"detections"`
}

// BucketEvent is published once per committed bucket.
type BucketEvent struct {
	Type          string         `json:"type"`
	CameraID      string         `json:"camera_id"`
	RunID         string         `json:"run_id"`
	BucketTS      time.Time      `json:"bucket_ts"`
	TotalVehicles int            `json:"total_vehicles"`
	Counts        map[string]int `json:"counts"`
	BBoxOccupancy *float64       `json:"bbox_occupancy,omitempty"`
	DensityScore  float64        `json:"density_score"`
	DensityLevel  string         `json:"density_level"`
	CO2Kg         float64        `json:"estimated_co2_kg"`
}

// WelcomeEvent confirms a subscription on /live. It is sent after the
// subscriber is registered, so any event published afterwards reaches
// the subscriber.
type WelcomeEvent struct {
	Type     string `json:"type"`
	CameraID string `json:"camera_id,omitempty"`
}

func newDetectionEvent(cameraID, runID string, frame video.Frame, detections []detect.Detection) DetectionEvent {
	converted := make([]Detection, 0, len(detections))
	for _, d := range detections {
		det := Detection{Class: d.Class, Confidence: d.Confidence}
		if d.BBox != nil {
			det.BBox = &BBox{X1: d.BBox.X1, Y1: d.BBox.Y1, X2: d.BBox.X2, Y2: d.BBox.Y2}
		}
		converted = append(converted, det)
	}
	return DetectionEvent{
		Type:        EventTypeDetections,
		CameraID:    cameraID,
		RunID:       runID,
		FrameNumber: frame.Index,
		Timestamp:   frame.Timestamp,
		Detections:  converted,
	}
}

func newBucketEvent(cameraID, runID string, payload *pipeline.BucketPayload) BucketEvent {
	return BucketEvent{
		Type:          EventTypeBucket,
		CameraID:      cameraID,
		RunID:         runID,
		BucketTS:      payload.BucketTS.UTC(),
		TotalVehicles: payload.TotalVehicles,
		Counts:        payload.Counts,
		BBoxOccupancy: payload.BBoxOccupancy,
		DensityScore:  payload.DensityScore,
		DensityLevel:  payload.DensityLevel,
		CO2Kg:         payload.CO2Kg,
	}
}
