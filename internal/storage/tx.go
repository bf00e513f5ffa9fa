package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Tx is a transaction handle for the writes that must land atomically:
// a bucket's count, density, and emission rows together with the
// checkpoint that marks the bucket durable.
type Tx struct {
	tx    *sql.Tx
	store *SQLStore
}

// InTx runs fn inside one database transaction. The transaction is
// committed when fn returns nil and rolled back otherwise (including
// panics).
func (s *SQLStore) InTx(ctx context.Context, fn func(tx *Tx) error) error {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	committed := false
	defer func() {
		if !committed {
			_ = dbTx.Rollback()
		}
	}()

	if err := fn(&Tx{tx: dbTx, store: s}); err != nil {
		return err
	}

	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	committed = true
	return nil
}

// UpsertVehicleCount writes one per-class count row, updating the count
// in place when the (run_id, bucket_ts, vehicle_type) row already
// exists. created_at is kept from the first write.
func (t *Tx) UpsertVehicleCount(ctx context.Context, vc *VehicleCount) error {
	if vc == nil {
		return errors.New("vehicle count cannot be nil")
	}
	if vc.RunID == "" {
		return errors.New(errRunIDRequired)
	}
	if vc.VehicleType == "" {
		return errors.New("vehicle_type is required")
	}
	if vc.BucketTS.IsZero() {
		return errors.New("bucket_ts is required")
	}

	_, err := t.tx.ExecContext(ctx, t.store.rebind(`
		INSERT INTO vehicle_counts (run_id, camera_id, bucket_ts, vehicle_type, count, source, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (run_id, bucket_ts, vehicle_type) DO UPDATE SET
			count = excluded.count,
			source = excluded.source
	`),
		vc.RunID,
		vc.CameraID,
		formatTime(vc.BucketTS),
		vc.VehicleType,
		vc.Count,
		vc.Source,
		formatTime(createdAtOrNow(vc.CreatedAt)),
	)
	if err != nil {
		if isForeignKeyError(err) {
			return fmt.Errorf("run %s does not exist", vc.RunID)
		}
		return fmt.Errorf("failed to upsert vehicle count: %w", err)
	}
	return nil
}

// UpsertDensity writes the congestion row for a bucket, updating the
// derived fields in place when the (run_id, bucket_ts) row exists.
func (t *Tx) UpsertDensity(ctx context.Context, d *DensityRecord) error {
	if d == nil {
		return errors.New("density record cannot be nil")
	}
	if d.RunID == "" {
		return errors.New(errRunIDRequired)
	}
	if d.BucketTS.IsZero() {
		return errors.New("bucket_ts is required")
	}

	_, err := t.tx.ExecContext(ctx, t.store.rebind(`
		INSERT INTO traffic_density (run_id, camera_id, bucket_ts, total_vehicles,
			density_score, density_level, bbox_occupancy, source, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (run_id, bucket_ts) DO UPDATE SET
			total_vehicles = excluded.total_vehicles,
			density_score = excluded.density_score,
			density_level = excluded.density_level,
			bbox_occupancy = excluded.bbox_occupancy,
			source = excluded.source
	`),
		d.RunID,
		d.CameraID,
		formatTime(d.BucketTS),
		d.TotalVehicles,
		d.DensityScore,
		d.DensityLevel,
		d.BBoxOccupancy,
		d.Source,
		formatTime(createdAtOrNow(d.CreatedAt)),
	)
	if err != nil {
		if isForeignKeyError(err) {
			return fmt.Errorf("run %s does not exist", d.RunID)
		}
		return fmt.Errorf("failed to upsert density: %w", err)
	}
	return nil
}

// UpsertEmission writes the CO2 row for a bucket, updating the derived
// fields in place when the (run_id, bucket_ts) row exists.
func (t *Tx) UpsertEmission(ctx context.Context, e *EmissionEstimate) error {
	if e == nil {
		return errors.New("emission estimate cannot be nil")
	}
	if e.RunID == "" {
		return errors.New(errRunIDRequired)
	}
	if e.BucketTS.IsZero() {
		return errors.New("bucket_ts is required")
	}

	_, err := t.tx.ExecContext(ctx, t.store.rebind(`
		INSERT INTO emission_estimates (run_id, camera_id, bucket_ts,
			estimated_co2_kg, co2_low_kg, co2_high_kg, source, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (run_id, bucket_ts) DO UPDATE SET
			estimated_co2_kg = excluded.estimated_co2_kg,
			co2_low_kg = excluded.co2_low_kg,
			co2_high_kg = excluded.co2_high_kg,
			source = excluded.source
	`),
		e.RunID,
		e.CameraID,
		formatTime(e.BucketTS),
		e.EstimatedCO2Kg,
		e.CO2LowKg,
		e.CO2HighKg,
		e.Source,
		formatTime(createdAtOrNow(e.CreatedAt)),
	)
	if err != nil {
		if isForeignKeyError(err) {
			return fmt.Errorf("run %s does not exist", e.RunID)
		}
		return fmt.Errorf("failed to upsert emission estimate: %w", err)
	}
	return nil
}

// UpsertCheckpoint advances the run's resume checkpoint. The call must
// share a transaction with the bucket rows it acknowledges, otherwise a
// crash between the two would make the checkpoint lie.
func (t *Tx) UpsertCheckpoint(ctx context.Context, cp *Checkpoint) error {
	if cp == nil {
		return errors.New("checkpoint cannot be nil")
	}
	if cp.RunID == "" {
		return errors.New(errRunIDRequired)
	}
	if cp.BucketIndex < 0 {
		return fmt.Errorf("bucket_index must be >= 0, got %d", cp.BucketIndex)
	}

	updatedAt := cp.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	_, err := t.tx.ExecContext(ctx, t.store.rebind(`
		INSERT INTO processing_checkpoints (run_id, bucket_index, last_bucket_ts, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (run_id) DO UPDATE SET
			bucket_index = excluded.bucket_index,
			last_bucket_ts = excluded.last_bucket_ts,
			updated_at = excluded.updated_at
	`),
		cp.RunID,
		cp.BucketIndex,
		formatTime(cp.LastBucketTS),
		formatTime(updatedAt),
	)
	if err != nil {
		if isForeignKeyError(err) {
			return fmt.Errorf("run %s does not exist", cp.RunID)
		}
		return fmt.Errorf("failed to upsert checkpoint: %w", err)
	}
	return nil
}

func createdAtOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}
