// Package storage provides persistent storage for camflow pipeline
// state: the camera registry, run ledger, per-bucket metrics, and
// resume checkpoints. SQLite is the default backend; PostgreSQL is
// selected by a postgres:// database URL.
package storage

import (
	"context"
	"time"
)

// Run lifecycle states. Every run row holds exactly one of these.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusStopped   = "stopped"
)

// TerminalStatuses are the states a running run may finish in.
var TerminalStatuses = []string{StatusCompleted, StatusFailed, StatusStopped}

// Store defines the interface for all storage operations.
// One pipeline run is the only writer for its own rows; cross-run
// coordination happens through the run ledger alone.
type Store interface {
	// Cameras
	UpsertCamera(ctx context.Context, c *Camera) error
	GetCamera(ctx context.Context, cameraID string) (*Camera, error)
	ListCameras(ctx context.Context) ([]Camera, error)

	// Runs
	CreateRun(ctx context.Context, run *Run) error
	GetRun(ctx context.Context, runID string) (*Run, error)
	FindLatestRun(ctx context.Context, cameraID, source, configHash string, statuses ...string) (*Run, error)
	ReactivateRun(ctx context.Context, runID string) error
	FinishRun(ctx context.Context, runID, status string, endedAt time.Time, errorMessage string) error
	QueryRuns(ctx context.Context, q RunQuery) ([]Run, error)

	// Checkpoints
	GetCheckpoint(ctx context.Context, runID string) (*Checkpoint, error)

	// Metrics
	QueryVehicleCounts(ctx context.Context, q MetricsQuery) ([]VehicleCount, error)
	QueryDensity(ctx context.Context, q MetricsQuery) ([]DensityRecord, error)
	QueryEmissions(ctx context.Context, q MetricsQuery) ([]EmissionEstimate, error)
	MaxTotalVehicles(ctx context.Context, cameraID string) (int, bool, error)

	// InTx runs fn inside one database transaction. The transaction is
	// committed when fn returns nil and rolled back otherwise.
	InTx(ctx context.Context, fn func(tx *Tx) error) error

	// Lifecycle
	Close() error
}

// Camera is one registered traffic camera.
type Camera struct {
	CameraID  string
	Location  string
	Latitude  *float64
	Longitude *float64
	Notes     string
	CreatedAt time.Time
}

// Run is one pipeline execution over (camera, source, config hash).
type Run struct {
	RunID        string
	CameraID     string
	Source       string
	ConfigHash   string
	Status       string
	StartedAt    time.Time
	EndedAt      *time.Time
	ErrorMessage *string

	// Native stream metadata probed when the source was opened.
	VideoFPS    *float64
	FrameCount  *int
	FrameWidth  *int
	FrameHeight *int
}

// Checkpoint marks the highest fully committed bucket of a run.
type Checkpoint struct {
	RunID        string
	BucketIndex  int
	LastBucketTS time.Time
	UpdatedAt    time.Time
}

// VehicleCount is one per-class count row for a bucket.
type VehicleCount struct {
	ID          int64
	RunID       string
	CameraID    string
	BucketTS    time.Time
	VehicleType string
	Count       int
	Source      string
	CreatedAt   time.Time
}

// DensityRecord is the congestion row for a bucket.
type DensityRecord struct {
	ID            int64
	RunID         string
	CameraID      string
	BucketTS      time.Time
	TotalVehicles int
	DensityScore  float64
	DensityLevel  string
	BBoxOccupancy *float64
	Source        string
	CreatedAt     time.Time
}

// EmissionEstimate is the CO2 row for a bucket.
type EmissionEstimate struct {
	ID             int64
	RunID          string
	CameraID       string
	BucketTS       time.Time
	EstimatedCO2Kg float64
	CO2LowKg       float64
	CO2HighKg      float64
	Source         string
	CreatedAt      time.Time
}

// RunQuery defines parameters for querying runs.
type RunQuery struct {
	CameraID string
	Source   string
	Status   string
	Limit    int
	Offset   int
}

// MetricsQuery defines parameters for querying per-bucket metrics.
// Since/Until bound bucket_ts inclusively/exclusively.
type MetricsQuery struct {
	CameraID string
	RunID    string
	Source   string
	Since    *time.Time
	Until    *time.Time
	Limit    int
	Offset   int
}
