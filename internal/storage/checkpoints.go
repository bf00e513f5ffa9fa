package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrCheckpointNotFound is returned when a run has no checkpoint yet.
var ErrCheckpointNotFound = errors.New("checkpoint not found")

// GetCheckpoint retrieves the resume checkpoint for a run. A run that
// never committed a bucket has no checkpoint.
func (s *SQLStore) GetCheckpoint(ctx context.Context, runID string) (*Checkpoint, error) {
	if runID == "" {
		return nil, errors.New(errRunIDRequired)
	}

	row := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT run_id, bucket_index, last_bucket_ts, updated_at
		FROM processing_checkpoints WHERE run_id = ?
	`), runID)

	var (
		cp           Checkpoint
		lastBucketTS string
		updatedAt    string
	)
	err := row.Scan(&cp.RunID, &cp.BucketIndex, &lastBucketTS, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCheckpointNotFound
		}
		return nil, fmt.Errorf("failed to get checkpoint: %w", err)
	}

	cp.LastBucketTS, err = parseTime(lastBucketTS)
	if err != nil {
		return nil, err
	}
	cp.UpdatedAt, err = parseTime(updatedAt)
	if err != nil {
		return nil, err
	}
	return &cp, nil
}
