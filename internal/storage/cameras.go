package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrCameraNotFound is returned when a camera is not found.
var ErrCameraNotFound = errors.New("camera not found")

const errCameraIDRequired = "camera_id is required"

// UpsertCamera creates the camera or updates an existing registration.
// Only fields carrying a value overwrite what is already stored, so a
// pipeline run registering a bare camera ID never blanks curated
// location data.
func (s *SQLStore) UpsertCamera(ctx context.Context, c *Camera) error {
	if c == nil {
		return errors.New("camera cannot be nil")
	}
	if c.CameraID == "" {
		return errors.New(errCameraIDRequired)
	}

	existing, err := s.GetCamera(ctx, c.CameraID)
	if err != nil {
		if !errors.Is(err, ErrCameraNotFound) {
			return err
		}
		createdAt := c.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now()
		}
		_, err := s.db.ExecContext(ctx, s.rebind(`
			INSERT INTO traffic_cameras (camera_id, location, latitude, longitude, notes, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`),
			c.CameraID,
			c.Location,
			c.Latitude,
			c.Longitude,
			c.Notes,
			formatTime(createdAt),
		)
		if err != nil {
			if isDuplicateKeyError(err) {
				// Lost a race with a concurrent registration; retry as update.
				return s.UpsertCamera(ctx, c)
			}
			return fmt.Errorf("failed to create camera: %w", err)
		}
		return nil
	}

	location := existing.Location
	if c.Location != "" {
		location = c.Location
	}
	latitude := existing.Latitude
	if c.Latitude != nil {
		latitude = c.Latitude
	}
	longitude := existing.Longitude
	if c.Longitude != nil {
		longitude = c.Longitude
	}
	notes := existing.Notes
	if c.Notes != "" {
		notes = c.Notes
	}

	_, err = s.db.ExecContext(ctx, s.rebind(`
		UPDATE traffic_cameras SET location = ?, latitude = ?, longitude = ?, notes = ?
		WHERE camera_id = ?
	`), location, latitude, longitude, notes, c.CameraID)
	if err != nil {
		return fmt.Errorf("failed to update camera: %w", err)
	}
	return nil
}

// GetCamera retrieves a camera by ID.
func (s *SQLStore) GetCamera(ctx context.Context, cameraID string) (*Camera, error) {
	if cameraID == "" {
		return nil, errors.New(errCameraIDRequired)
	}

	row := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT camera_id, location, latitude, longitude, notes, created_at
		FROM traffic_cameras WHERE camera_id = ?
	`), cameraID)

	camera, err := scanCamera(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCameraNotFound
		}
		return nil, fmt.Errorf("failed to get camera: %w", err)
	}
	return camera, nil
}

// ListCameras returns all registered cameras ordered by ID.
func (s *SQLStore) ListCameras(ctx context.Context) ([]Camera, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT camera_id, location, latitude, longitude, notes, created_at
		FROM traffic_cameras ORDER BY camera_id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query cameras: %w", err)
	}
	defer rows.Close()

	var cameras []Camera
	for rows.Next() {
		camera, err := scanCamera(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan camera: %w", err)
		}
		cameras = append(cameras, *camera)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cameras: %w", err)
	}

	return cameras, nil
}

func scanCamera(scan func(dest ...any) error) (*Camera, error) {
	var (
		camera    Camera
		latitude  sql.NullFloat64
		longitude sql.NullFloat64
		createdAt string
	)
	err := scan(
		&camera.CameraID,
		&camera.Location,
		&latitude,
		&longitude,
		&camera.Notes,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}

	if latitude.Valid {
		camera.Latitude = &latitude.Float64
	}
	if longitude.Valid {
		camera.Longitude = &longitude.Float64
	}
	camera.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	return &camera, nil
}
