package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/runger/camflow/internal/storage"
	"github.com/runger/camflow/internal/video"
)

// resolution is the run ledger's answer for one invocation.
type resolution struct {
	run             *storage.Run
	alreadyComplete bool
	resumed         bool
}

// resolveRun maps an invocation onto a pipeline_runs row. A completed
// run for the (camera, source, config hash) lineage absorbs the
// request outright. Otherwise the most recent failed or stopped run is
// reactivated and will resume from its checkpoint. Otherwise a fresh
// running row is created.
func (p *Pipeline) resolveRun(ctx context.Context, req Request, configHash string, meta video.Metadata) (*resolution, error) {
	done, err := p.store.FindLatestRun(ctx, req.CameraID, req.Source, configHash, storage.StatusCompleted)
	if err == nil {
		return &resolution{run: done, alreadyComplete: true}, nil
	}
	if !errors.Is(err, storage.ErrRunNotFound) {
		return nil, fmt.Errorf("looking up completed runs: %w", err)
	}

	prior, err := p.store.FindLatestRun(ctx, req.CameraID, req.Source, configHash, storage.StatusFailed, storage.StatusStopped)
	if err == nil {
		if err := p.store.ReactivateRun(ctx, prior.RunID); err != nil {
			return nil, fmt.Errorf("reactivating run %s: %w", prior.RunID, err)
		}
		prior.Status = storage.StatusRunning
		prior.EndedAt = nil
		prior.ErrorMessage = nil
		return &resolution{run: prior, resumed: true}, nil
	}
	if !errors.Is(err, storage.ErrRunNotFound) {
		return nil, fmt.Errorf("looking up resumable runs: %w", err)
	}

	run := &storage.Run{
		RunID:      uuid.New().String(),
		CameraID:   req.CameraID,
		Source:     req.Source,
		ConfigHash: configHash,
		Status:     storage.StatusRunning,
		StartedAt:  time.Now().UTC(),
	}
	if meta.FPS > 0 {
		run.VideoFPS = &meta.FPS
	}
	if meta.FrameCount > 0 {
		run.FrameCount = &meta.FrameCount
	}
	if meta.Width > 0 {
		run.FrameWidth = &meta.Width
	}
	if meta.Height > 0 {
		run.FrameHeight = &meta.Height
	}
	if err := p.store.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("creating run: %w", err)
	}
	return &resolution{run: run}, nil
}
