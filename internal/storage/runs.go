package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrRunNotFound is returned when a pipeline run is not found.
var ErrRunNotFound = errors.New("pipeline run not found")

const errRunIDRequired = "run_id is required"

const runColumns = `run_id, camera_id, source, config_hash, status,
	       started_at, ended_at, error_message,
	       video_fps, frame_count, frame_width, frame_height`

// CreateRun creates a new pipeline run record. The referenced camera
// must already exist.
func (s *SQLStore) CreateRun(ctx context.Context, run *Run) error {
	if run == nil {
		return errors.New("run cannot be nil")
	}
	if run.RunID == "" {
		return errors.New(errRunIDRequired)
	}
	if run.CameraID == "" {
		return errors.New(errCameraIDRequired)
	}
	if run.Source == "" {
		return errors.New("source is required")
	}
	if run.ConfigHash == "" {
		return errors.New("config_hash is required")
	}

	status := run.Status
	if status == "" {
		status = StatusRunning
	}
	startedAt := run.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO pipeline_runs (
			run_id, camera_id, source, config_hash, status, started_at,
			video_fps, frame_count, frame_width, frame_height
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`),
		run.RunID,
		run.CameraID,
		run.Source,
		run.ConfigHash,
		status,
		formatTime(startedAt),
		run.VideoFPS,
		run.FrameCount,
		run.FrameWidth,
		run.FrameHeight,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return fmt.Errorf("run with id %s already exists", run.RunID)
		}
		if isForeignKeyError(err) {
			return fmt.Errorf("camera %s does not exist", run.CameraID)
		}
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

// GetRun retrieves a pipeline run by ID.
func (s *SQLStore) GetRun(ctx context.Context, runID string) (*Run, error) {
	if runID == "" {
		return nil, errors.New(errRunIDRequired)
	}

	row := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT `+runColumns+`
		FROM pipeline_runs WHERE run_id = ?
	`), runID)

	run, err := scanRun(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// FindLatestRun returns the most recently started run matching the
// (camera, source, config hash) lineage. When statuses are given, only
// runs in one of those states are considered.
func (s *SQLStore) FindLatestRun(ctx context.Context, cameraID, source, configHash string, statuses ...string) (*Run, error) {
	if cameraID == "" {
		return nil, errors.New(errCameraIDRequired)
	}
	if source == "" {
		return nil, errors.New("source is required")
	}
	if configHash == "" {
		return nil, errors.New("config_hash is required")
	}

	query := `
		SELECT ` + runColumns + `
		FROM pipeline_runs
		WHERE camera_id = ? AND source = ? AND config_hash = ?
	`
	args := []interface{}{cameraID, source, configHash}

	if len(statuses) > 0 {
		query += " AND status IN (?"
		args = append(args, statuses[0])
		for _, status := range statuses[1:] {
			query += ", ?"
			args = append(args, status)
		}
		query += ")"
	}

	query += " ORDER BY started_at DESC LIMIT 1"

	row := s.db.QueryRowContext(ctx, s.rebind(query), args...)

	run, err := scanRun(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, fmt.Errorf("failed to find latest run: %w", err)
	}
	return run, nil
}

// ReactivateRun flips a failed or stopped run back to running so it can
// resume. The original started_at is kept; ended_at and error_message
// are cleared.
func (s *SQLStore) ReactivateRun(ctx context.Context, runID string) error {
	if runID == "" {
		return errors.New(errRunIDRequired)
	}

	result, err := s.db.ExecContext(ctx, s.rebind(`
		UPDATE pipeline_runs
		SET status = ?, ended_at = NULL, error_message = NULL
		WHERE run_id = ?
	`), StatusRunning, runID)
	if err != nil {
		return fmt.Errorf("failed to reactivate run: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrRunNotFound
	}
	return nil
}

// FinishRun records a terminal status for a run. errorMessage is only
// stored for failed runs; completed and stopped clear it.
func (s *SQLStore) FinishRun(ctx context.Context, runID, status string, endedAt time.Time, errorMessage string) error {
	if runID == "" {
		return errors.New(errRunIDRequired)
	}
	if !isTerminalStatus(status) {
		return fmt.Errorf("status %q is not a terminal run status", status)
	}

	var message any
	if status == StatusFailed && errorMessage != "" {
		message = errorMessage
	}

	result, err := s.db.ExecContext(ctx, s.rebind(`
		UPDATE pipeline_runs SET status = ?, ended_at = ?, error_message = ?
		WHERE run_id = ?
	`), status, formatTime(endedAt), message, runID)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrRunNotFound
	}
	return nil
}

// QueryRuns queries pipeline runs based on the given criteria.
func (s *SQLStore) QueryRuns(ctx context.Context, q RunQuery) ([]Run, error) {
	query := `
		SELECT ` + runColumns + `
		FROM pipeline_runs
		WHERE 1=1
	`
	args := make([]interface{}, 0)

	if q.CameraID != "" {
		query += " AND camera_id = ?"
		args = append(args, q.CameraID)
	}
	if q.Source != "" {
		query += " AND source = ?"
		args = append(args, q.Source)
	}
	if q.Status != "" {
		query += " AND status = ?"
		args = append(args, q.Status)
	}

	query += " ORDER BY started_at DESC"

	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	} else {
		query += " LIMIT 1000"
	}

	if q.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, q.Offset)
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, *run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	return runs, nil
}

func isTerminalStatus(status string) bool {
	for _, s := range TerminalStatuses {
		if status == s {
			return true
		}
	}
	return false
}

func scanRun(scan func(dest ...any) error) (*Run, error) {
	var (
		run          Run
		startedAt    string
		endedAt      sql.NullString
		errorMessage sql.NullString
		videoFPS     sql.NullFloat64
		frameCount   sql.NullInt64
		frameWidth   sql.NullInt64
		frameHeight  sql.NullInt64
	)
	err := scan(
		&run.RunID,
		&run.CameraID,
		&run.Source,
		&run.ConfigHash,
		&run.Status,
		&startedAt,
		&endedAt,
		&errorMessage,
		&videoFPS,
		&frameCount,
		&frameWidth,
		&frameHeight,
	)
	if err != nil {
		return nil, err
	}

	run.StartedAt, err = parseTime(startedAt)
	if err != nil {
		return nil, err
	}
	if endedAt.Valid {
		t, err := parseTime(endedAt.String)
		if err != nil {
			return nil, err
		}
		run.EndedAt = &t
	}
	if errorMessage.Valid {
		run.ErrorMessage = &errorMessage.String
	}
	if videoFPS.Valid {
		run.VideoFPS = &videoFPS.Float64
	}
	if frameCount.Valid {
		n := int(frameCount.Int64)
		run.FrameCount = &n
	}
	if frameWidth.Valid {
		n := int(frameWidth.Int64)
		run.FrameWidth = &n
	}
	if frameHeight.Valid {
		n := int(frameHeight.Int64)
		run.FrameHeight = &n
	}
	return &run, nil
}
