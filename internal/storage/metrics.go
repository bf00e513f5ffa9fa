package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// metricsWhere appends the shared filter clauses for per-bucket metric
// queries and returns the assembled args.
func metricsWhere(query string, q MetricsQuery) (string, []interface{}) {
	args := make([]interface{}, 0)

	if q.CameraID != "" {
		query += " AND camera_id = ?"
		args = append(args, q.CameraID)
	}
	if q.RunID != "" {
		query += " AND run_id = ?"
		args = append(args, q.RunID)
	}
	if q.Source != "" {
		query += " AND source = ?"
		args = append(args, q.Source)
	}
	if q.Since != nil {
		query += " AND bucket_ts >= ?"
		args = append(args, formatTime(*q.Since))
	}
	if q.Until != nil {
		query += " AND bucket_ts < ?"
		args = append(args, formatTime(*q.Until))
	}

	query += " ORDER BY bucket_ts ASC"

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

	return query, args
}

// QueryVehicleCounts returns per-class count rows matching the query,
// ordered by bucket timestamp.
func (s *SQLStore) QueryVehicleCounts(ctx context.Context, q MetricsQuery) ([]VehicleCount, error) {
	query, args := metricsWhere(`
		SELECT id, run_id, camera_id, bucket_ts, vehicle_type, count, source, created_at
		FROM vehicle_counts
		WHERE 1=1
	`, q)

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query vehicle counts: %w", err)
	}
	defer rows.Close()

	var counts []VehicleCount
	for rows.Next() {
		var (
			vc        VehicleCount
			bucketTS  string
			createdAt string
		)
		err := rows.Scan(
			&vc.ID,
			&vc.RunID,
			&vc.CameraID,
			&bucketTS,
			&vc.VehicleType,
			&vc.Count,
			&vc.Source,
			&createdAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan vehicle count: %w", err)
		}
		if vc.BucketTS, err = parseTime(bucketTS); err != nil {
			return nil, err
		}
		if vc.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		counts = append(counts, vc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating vehicle counts: %w", err)
	}

	return counts, nil
}

// QueryDensity returns congestion rows matching the query, ordered by
// bucket timestamp.
func (s *SQLStore) QueryDensity(ctx context.Context, q MetricsQuery) ([]DensityRecord, error) {
	query, args := metricsWhere(`
		SELECT id, run_id, camera_id, bucket_ts, total_vehicles,
		       density_score, density_level, bbox_occupancy, source, created_at
		FROM traffic_density
		WHERE 1=1
	`, q)

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query density: %w", err)
	}
	defer rows.Close()

	var records []DensityRecord
	for rows.Next() {
		var (
			d         DensityRecord
			bucketTS  string
			occupancy sql.NullFloat64
			createdAt string
		)
		err := rows.Scan(
			&d.ID,
			&d.RunID,
			&d.CameraID,
			&bucketTS,
			&d.TotalVehicles,
			&d.DensityScore,
			&d.DensityLevel,
			&occupancy,
			&d.Source,
			&createdAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan density record: %w", err)
		}
		if d.BucketTS, err = parseTime(bucketTS); err != nil {
			return nil, err
		}
		if d.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		if occupancy.Valid {
			d.BBoxOccupancy = &occupancy.Float64
		}
		records = append(records, d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating density records: %w", err)
	}

	return records, nil
}

// QueryEmissions returns CO2 rows matching the query, ordered by
// bucket timestamp.
func (s *SQLStore) QueryEmissions(ctx context.Context, q MetricsQuery) ([]EmissionEstimate, error) {
	query, args := metricsWhere(`
		SELECT id, run_id, camera_id, bucket_ts,
		       estimated_co2_kg, co2_low_kg, co2_high_kg, source, created_at
		FROM emission_estimates
		WHERE 1=1
	`, q)

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query emission estimates: %w", err)
	}
	defer rows.Close()

	var estimates []EmissionEstimate
	for rows.Next() {
		var (
			e         EmissionEstimate
			bucketTS  string
			createdAt string
		)
		err := rows.Scan(
			&e.ID,
			&e.RunID,
			&e.CameraID,
			&bucketTS,
			&e.EstimatedCO2Kg,
			&e.CO2LowKg,
			&e.CO2HighKg,
			&e.Source,
			&createdAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan emission estimate: %w", err)
		}
		if e.BucketTS, err = parseTime(bucketTS); err != nil {
			return nil, err
		}
		if e.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		estimates = append(estimates, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating emission estimates: %w", err)
	}

	return estimates, nil
}

// MaxTotalVehicles returns the largest total_vehicles ever stored for
// a camera across all runs. The second return is false when the camera
// has no density history at all, which callers must distinguish from a
// history of zero-traffic buckets.
func (s *SQLStore) MaxTotalVehicles(ctx context.Context, cameraID string) (int, bool, error) {
	if cameraID == "" {
		return 0, false, errors.New(errCameraIDRequired)
	}

	row := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT MAX(total_vehicles) FROM traffic_density WHERE camera_id = ?
	`), cameraID)

	var max sql.NullInt64
	if err := row.Scan(&max); err != nil {
		return 0, false, fmt.Errorf("failed to query max total vehicles: %w", err)
	}
	if !max.Valid {
		return 0, false, nil
	}
	return int(max.Int64), true, nil
}
