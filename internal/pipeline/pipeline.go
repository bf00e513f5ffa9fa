// Package pipeline orchestrates camera analysis runs. Frames sampled
// from a source are pushed through a detector, aggregated into time
// buckets, and each bucket is committed atomically together with the
// resume checkpoint that makes a crashed or stopped run resumable.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/runger/camflow/internal/config"
	"github.com/runger/camflow/internal/counting"
	"github.com/runger/camflow/internal/density"
	"github.com/runger/camflow/internal/detect"
	"github.com/runger/camflow/internal/emissions"
	"github.com/runger/camflow/internal/storage"
	"github.com/runger/camflow/internal/video"
)

// EventSink receives fire-and-forget telemetry from a running
// pipeline. Implementations must not block the frame loop; dropping
// events is fine.
type EventSink interface {
	PublishFrame(cameraID, runID string, frame video.Frame, detections []detect.Detection)
	PublishBucket(cameraID, runID string, payload *BucketPayload)
}

// Options configures a Pipeline.
type Options struct {
	// Config is the effective configuration (required).
	Config *config.Config

	// Store is the storage backend (required).
	Store storage.Store

	// Writer commits finished buckets (optional, defaults to a
	// transaction writer backed by Store).
	Writer BucketWriter

	// Sink receives live telemetry (optional).
	Sink EventSink

	// Logger is the structured logger (optional, uses default if nil).
	Logger *slog.Logger
}

// Pipeline executes analysis runs against one configuration and store.
type Pipeline struct {
	cfg    *config.Config
	store  storage.Store
	writer BucketWriter
	sink   EventSink
	logger *slog.Logger
}

// New creates a Pipeline with the given options.
func New(opts *Options) (*Pipeline, error) {
	if opts == nil {
		return nil, fmt.Errorf("options are required")
	}
	if opts.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("store is required")
	}

	writer := opts.Writer
	if writer == nil {
		writer = NewBucketWriter(opts.Store)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Pipeline{
		cfg:    opts.Config,
		store:  opts.Store,
		writer: writer,
		sink:   opts.Sink,
		logger: logger,
	}, nil
}

// Request identifies one pipeline invocation.
type Request struct {
	// CameraID identifies the camera (required).
	CameraID string

	// Source references the frame source: synthetic:<name> or a .jsonl
	// capture file (required).
	Source string

	// StartTime anchors bucket timestamps and is floored to the bucket
	// grid. Zero means now.
	StartTime time.Time

	// Camera registry fields, merged into the camera row. Empty fields
	// never overwrite previously stored values.
	Location  string
	Latitude  *float64
	Longitude *float64
	Notes     string
}

// Summary reports what one invocation did.
type Summary struct {
	RunID            string
	Status           string
	AlreadyComplete  bool
	Resumed          bool
	FramesProcessed  int
	FramesSkipped    int
	BucketsCommitted int
}

// Run executes one invocation end to end. Cancellation of ctx is
// treated as a user stop: frames consumed so far are finalized, their
// buckets committed, and the run is marked stopped rather than failed.
// Any other error marks the run failed and is returned.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Summary, error) {
	if req.CameraID == "" {
		return nil, errors.New("camera id is required")
	}
	if req.Source == "" {
		return nil, errors.New("source is required")
	}

	startTime := req.StartTime
	if startTime.IsZero() {
		startTime = time.Now().UTC()
	}
	startTime = counting.FloorToBucket(startTime, p.cfg.Counting.BucketSeconds)

	// Ledger bookkeeping and bucket commits must land even when ctx is
	// cancelled by a stop request; only frame consumption observes ctx.
	persistCtx := context.WithoutCancel(ctx)

	src, rec, err := video.Open(req.Source, p.cfg)
	if err != nil {
		return nil, err
	}
	defer src.Close()
	meta := src.Metadata()

	err = p.store.UpsertCamera(persistCtx, &storage.Camera{
		CameraID:  req.CameraID,
		Location:  req.Location,
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
		Notes:     req.Notes,
	})
	if err != nil {
		return nil, fmt.Errorf("registering camera: %w", err)
	}

	res, err := p.resolveRun(persistCtx, req, p.cfg.BucketHash(), meta)
	if err != nil {
		return nil, err
	}
	if res.alreadyComplete {
		p.logger.Info("run already completed",
			"camera_id", req.CameraID, "source", req.Source, "run_id", res.run.RunID)
		return &Summary{
			RunID:           res.run.RunID,
			Status:          storage.StatusCompleted,
			AlreadyComplete: true,
		}, nil
	}
	run := res.run

	checkpoint, err := p.store.GetCheckpoint(persistCtx, run.RunID)
	if err != nil && !errors.Is(err, storage.ErrCheckpointNotFound) {
		return nil, fmt.Errorf("reading checkpoint: %w", err)
	}
	var resumeAfter float64
	if checkpoint != nil {
		// Frames before this offset belong to already committed
		// buckets and are skipped without invoking the detector.
		resumeAfter = float64(checkpoint.BucketIndex+1) * float64(p.cfg.Counting.BucketSeconds)
		p.logger.Info("resuming from checkpoint",
			"run_id", run.RunID, "bucket_index", checkpoint.BucketIndex, "resume_after_sec", resumeAfter)
	}

	detector := detect.New(p.cfg.Detector, sortedFactorClasses(p.cfg.Emissions.Factors), rec, p.logger)
	aggregator := counting.New(p.cfg.Counting.BucketSeconds)

	var framesProcessed, framesSkipped int
	stopped := false

	for {
		frame, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				stopped = true
				break
			}
			return nil, p.fail(persistCtx, run, fmt.Errorf("reading frames: %w", err))
		}
		if checkpoint != nil && frame.Timestamp < resumeAfter {
			framesSkipped++
			continue
		}
		framesProcessed++

		detections, err := detector.Detect(ctx, frame)
		if err != nil {
			if errors.Is(err, detect.ErrStop) || ctx.Err() != nil {
				stopped = true
				break
			}
			return nil, p.fail(persistCtx, run, fmt.Errorf("running detector: %w", err))
		}

		normalized := detect.Normalize(detections, p.cfg.Counting.ClassMap)
		if p.sink != nil {
			p.sink.PublishFrame(req.CameraID, run.RunID, frame, normalized)
		}
		aggregator.AddFrame(frame.Timestamp, normalized, frame.Width, frame.Height)
	}

	if stopped {
		p.logger.Info("processing stopped by user",
			"camera_id", req.CameraID, "run_id", run.RunID, "frames", framesProcessed)
	}

	if framesProcessed == 0 && checkpoint == nil && !stopped {
		err := fmt.Errorf("no frames processed from %s at sampling fps %.2f", req.Source, p.cfg.Video.SamplingFPS)
		return nil, p.fail(persistCtx, run, err)
	}

	buckets := aggregator.Finalize(startTime)
	if len(buckets) == 0 && checkpoint == nil && !stopped {
		return nil, p.fail(persistCtx, run, errors.New("no buckets produced; check input data and bucket settings"))
	}

	ceiling, err := p.ceilingFor(persistCtx, req.CameraID)
	if err != nil {
		return nil, p.fail(persistCtx, run, err)
	}

	types := reportedTypes(p.cfg.Emissions.Factors)
	payloads := make([]*BucketPayload, 0, len(buckets))
	for _, bucket := range buckets {
		scored := density.Score(
			bucket.TotalVehicles,
			ceiling.ForBucket(bucket.TotalVehicles),
			p.cfg.Density.LowMax,
			p.cfg.Density.MediumMax,
		)

		counts := make(map[string]int, len(types))
		for _, vehicleType := range types {
			counts[vehicleType] = bucket.Counts[vehicleType]
		}

		co2 := emissions.EstimateCO2(counts, p.cfg.Emissions.Factors, p.cfg.Counting.BucketSeconds)
		co2Low, co2High, err := emissions.SensitivityInterval(co2, p.cfg.Emissions.SensitivityPct)
		if err != nil {
			return nil, p.fail(persistCtx, run, err)
		}

		payloads = append(payloads, &BucketPayload{
			BucketIndex:   bucket.Index,
			BucketTS:      bucket.Start,
			Counts:        counts,
			TotalVehicles: bucket.TotalVehicles,
			BBoxOccupancy: bucket.BBoxOccupancy,
			DensityScore:  scored.Score,
			DensityLevel:  scored.Level,
			CO2Kg:         co2,
			CO2LowKg:      co2Low,
			CO2HighKg:     co2High,
		})
	}

	if checkpoint != nil {
		kept := payloads[:0]
		for _, payload := range payloads {
			if payload.BucketIndex > checkpoint.BucketIndex {
				kept = append(kept, payload)
			}
		}
		payloads = kept
	}

	committed := 0
	for _, payload := range payloads {
		if err := p.writer.CommitBucket(persistCtx, run, payload); err != nil {
			p.logger.Error("bucket commit failed",
				"run_id", run.RunID, "bucket_index", payload.BucketIndex,
				"bucket_ts", payload.BucketTS, "error", err)
			return nil, p.fail(persistCtx, run, fmt.Errorf("committing bucket %d: %w", payload.BucketIndex, err))
		}
		committed++
		if p.sink != nil {
			p.sink.PublishBucket(req.CameraID, run.RunID, payload)
		}
	}

	status := storage.StatusCompleted
	if stopped {
		status = storage.StatusStopped
	}
	if err := p.finish(persistCtx, run, status); err != nil {
		return nil, p.fail(persistCtx, run, err)
	}

	p.logger.Info("pipeline run finished",
		"camera_id", req.CameraID, "run_id", run.RunID, "status", status,
		"frames", framesProcessed, "frames_skipped", framesSkipped, "buckets", committed)

	return &Summary{
		RunID:            run.RunID,
		Status:           status,
		Resumed:          res.resumed,
		FramesProcessed:  framesProcessed,
		FramesSkipped:    framesSkipped,
		BucketsCommitted: committed,
	}, nil
}

// ceilingFor builds the density normalization ceiling for a camera. In
// rolling mode it is seeded from the camera's stored maximum, falling
// back to the configured default only when the camera has no history.
func (p *Pipeline) ceilingFor(ctx context.Context, cameraID string) (*density.Ceiling, error) {
	if !p.cfg.Density.RollingMax {
		fixed := p.cfg.Density.DefaultMaxVehicles
		if v, ok := p.cfg.Density.PerCameraMax[cameraID]; ok {
			fixed = v
		}
		return density.NewFixedCeiling(fixed), nil
	}

	maxSeen, found, err := p.store.MaxTotalVehicles(ctx, cameraID)
	if err != nil {
		return nil, fmt.Errorf("reading max total vehicles: %w", err)
	}
	seed := p.cfg.Density.DefaultMaxVehicles
	if found {
		seed = maxSeen
	}
	return density.NewRollingCeiling(seed), nil
}

// fail records the failed terminal status and returns err unchanged. A
// failure to record the status is logged and leaves the run in running
// state; a later invocation then starts a fresh run rather than
// resuming.
func (p *Pipeline) fail(ctx context.Context, run *storage.Run, err error) error {
	finishErr := p.store.FinishRun(ctx, run.RunID, storage.StatusFailed, time.Now().UTC(), err.Error())
	if finishErr != nil {
		p.logger.Error("failed to record run failure", "run_id", run.RunID, "error", finishErr)
	}
	return err
}

func (p *Pipeline) finish(ctx context.Context, run *storage.Run, status string) error {
	if err := p.store.FinishRun(ctx, run.RunID, status, time.Now().UTC(), ""); err != nil {
		return fmt.Errorf("recording terminal status %s: %w", status, err)
	}
	return nil
}

// sortedFactorClasses lists the emission factor classes in stable
// order; the synthetic detector draws its labels from these.
func sortedFactorClasses(factors map[string]float64) []string {
	classes := make([]string, 0, len(factors))
	for class := range factors {
		classes = append(classes, class)
	}
	sort.Strings(classes)
	return classes
}

// reportedTypes is the fixed per-bucket reporting set: every class
// with an emission factor plus the canonical vehicle classes. Count
// rows are zero-filled over this set rather than written sparsely.
func reportedTypes(factors map[string]float64) []string {
	seen := make(map[string]bool, len(factors)+len(detect.CanonicalClasses))
	for class := range factors {
		seen[class] = true
	}
	for _, class := range detect.CanonicalClasses {
		seen[class] = true
	}
	types := make([]string, 0, len(seen))
	for class := range seen {
		types = append(types, class)
	}
	sort.Strings(types)
	return types
}
