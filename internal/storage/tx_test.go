package storage

import (
	"context"
	"errors"
	"testing"
	"time"
)

var bucketTS = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

// writeBucket commits a full bucket (counts, density, emission,
// checkpoint) in one transaction, the way the pipeline does.
func writeBucket(t *testing.T, store *SQLStore, runID, cameraID string, ts time.Time, index int, counts map[string]int) {
	t.Helper()

	ctx := context.Background()
	err := store.InTx(ctx, func(tx *Tx) error {
		total := 0
		for class, n := range counts {
			total += n
			err := tx.UpsertVehicleCount(ctx, &VehicleCount{
				RunID:       runID,
				CameraID:    cameraID,
				BucketTS:    ts,
				VehicleType: class,
				Count:       n,
			})
			if err != nil {
				return err
			}
		}
		err := tx.UpsertDensity(ctx, &DensityRecord{
			RunID:         runID,
			CameraID:      cameraID,
			BucketTS:      ts,
			TotalVehicles: total,
			DensityScore:  0.5,
			DensityLevel:  "medium",
		})
		if err != nil {
			return err
		}
		err = tx.UpsertEmission(ctx, &EmissionEstimate{
			RunID:          runID,
			CameraID:       cameraID,
			BucketTS:       ts,
			EstimatedCO2Kg: 1.5,
			CO2LowKg:       1.35,
			CO2HighKg:      1.65,
		})
		if err != nil {
			return err
		}
		return tx.UpsertCheckpoint(ctx, &Checkpoint{
			RunID:        runID,
			BucketIndex:  index,
			LastBucketTS: ts,
		})
	})
	if err != nil {
		t.Fatalf("InTx() error = %v", err)
	}
}

func TestInTx_CommitsBucketAtomically(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	seedRun(t, store, "run-1", "cam-01")

	writeBucket(t, store, "run-1", "cam-01", bucketTS, 0, map[string]int{"car": 3, "bus": 1})

	counts, err := store.QueryVehicleCounts(ctx, MetricsQuery{RunID: "run-1"})
	if err != nil {
		t.Fatalf("QueryVehicleCounts() error = %v", err)
	}
	if len(counts) != 2 {
		t.Errorf("got %d count rows, want 2", len(counts))
	}

	density, err := store.QueryDensity(ctx, MetricsQuery{RunID: "run-1"})
	if err != nil {
		t.Fatalf("QueryDensity() error = %v", err)
	}
	if len(density) != 1 || density[0].TotalVehicles != 4 {
		t.Errorf("density rows = %+v", density)
	}

	emissions, err := store.QueryEmissions(ctx, MetricsQuery{RunID: "run-1"})
	if err != nil {
		t.Fatalf("QueryEmissions() error = %v", err)
	}
	if len(emissions) != 1 {
		t.Errorf("got %d emission rows, want 1", len(emissions))
	}

	cp, err := store.GetCheckpoint(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetCheckpoint() error = %v", err)
	}
	if cp.BucketIndex != 0 || !cp.LastBucketTS.Equal(bucketTS) {
		t.Errorf("checkpoint = %+v", cp)
	}
}

func TestInTx_RollsBackOnError(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	seedRun(t, store, "run-1", "cam-01")

	boom := errors.New("commit aborted")
	err := store.InTx(ctx, func(tx *Tx) error {
		err := tx.UpsertVehicleCount(ctx, &VehicleCount{
			RunID:       "run-1",
			CameraID:    "cam-01",
			BucketTS:    bucketTS,
			VehicleType: "car",
			Count:       3,
		})
		if err != nil {
			return err
		}
		err = tx.UpsertCheckpoint(ctx, &Checkpoint{
			RunID:        "run-1",
			BucketIndex:  0,
			LastBucketTS: bucketTS,
		})
		if err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("InTx() error = %v, want boom", err)
	}

	counts, err := store.QueryVehicleCounts(ctx, MetricsQuery{RunID: "run-1"})
	if err != nil {
		t.Fatalf("QueryVehicleCounts() error = %v", err)
	}
	if len(counts) != 0 {
		t.Errorf("rows survived rollback: %+v", counts)
	}

	_, err = store.GetCheckpoint(ctx, "run-1")
	if !errors.Is(err, ErrCheckpointNotFound) {
		t.Errorf("GetCheckpoint() error = %v, want ErrCheckpointNotFound", err)
	}
}

func TestUpsertVehicleCount_UpdatesInPlace(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	seedRun(t, store, "run-1", "cam-01")

	first := time.Date(2026, 5, 1, 12, 0, 1, 0, time.UTC)
	second := time.Date(2026, 5, 1, 13, 0, 0, 0, time.UTC)

	write := func(count int, createdAt time.Time) {
		t.Helper()
		err := store.InTx(ctx, func(tx *Tx) error {
			return tx.UpsertVehicleCount(ctx, &VehicleCount{
				RunID:       "run-1",
				CameraID:    "cam-01",
				BucketTS:    bucketTS,
				VehicleType: "car",
				Count:       count,
				CreatedAt:   createdAt,
			})
		})
		if err != nil {
			t.Fatalf("InTx() error = %v", err)
		}
	}

	write(5, first)
	write(9, second)

	counts, err := store.QueryVehicleCounts(ctx, MetricsQuery{RunID: "run-1"})
	if err != nil {
		t.Fatalf("QueryVehicleCounts() error = %v", err)
	}
	if len(counts) != 1 {
		t.Fatalf("got %d rows, want 1 (upsert must not duplicate)", len(counts))
	}
	if counts[0].Count != 9 {
		t.Errorf("Count = %d, want 9", counts[0].Count)
	}
	// created_at is not a mutable field.
	if !counts[0].CreatedAt.Equal(first) {
		t.Errorf("CreatedAt = %v, want %v", counts[0].CreatedAt, first)
	}
}

func TestUpsertDensity_UpdatesInPlace(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	seedRun(t, store, "run-1", "cam-01")

	occ := 0.25
	write := func(d *DensityRecord) {
		t.Helper()
		if err := store.InTx(ctx, func(tx *Tx) error { return tx.UpsertDensity(ctx, d) }); err != nil {
			t.Fatalf("InTx() error = %v", err)
		}
	}

	write(&DensityRecord{RunID: "run-1", CameraID: "cam-01", BucketTS: bucketTS, TotalVehicles: 4, DensityScore: 0.2, DensityLevel: "low"})
	write(&DensityRecord{RunID: "run-1", CameraID: "cam-01", BucketTS: bucketTS, TotalVehicles: 12, DensityScore: 0.6, DensityLevel: "medium", BBoxOccupancy: &occ})

	records, err := store.QueryDensity(ctx, MetricsQuery{RunID: "run-1"})
	if err != nil {
		t.Fatalf("QueryDensity() error = %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d rows, want 1", len(records))
	}
	got := records[0]
	if got.TotalVehicles != 12 || got.DensityLevel != "medium" {
		t.Errorf("row = %+v", got)
	}
	if got.BBoxOccupancy == nil || *got.BBoxOccupancy != occ {
		t.Errorf("BBoxOccupancy = %v, want %v", got.BBoxOccupancy, occ)
	}
}

func TestUpsertCheckpoint_Advances(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	seedRun(t, store, "run-1", "cam-01")

	writeBucket(t, store, "run-1", "cam-01", bucketTS, 0, map[string]int{"car": 1})
	writeBucket(t, store, "run-1", "cam-01", bucketTS.Add(time.Minute), 1, map[string]int{"car": 2})

	cp, err := store.GetCheckpoint(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetCheckpoint() error = %v", err)
	}
	if cp.BucketIndex != 1 {
		t.Errorf("BucketIndex = %d, want 1", cp.BucketIndex)
	}
	if !cp.LastBucketTS.Equal(bucketTS.Add(time.Minute)) {
		t.Errorf("LastBucketTS = %v", cp.LastBucketTS)
	}
}

func TestGetCheckpoint_NotFound(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	defer store.Close()

	seedRun(t, store, "run-1", "cam-01")

	_, err := store.GetCheckpoint(context.Background(), "run-1")
	if !errors.Is(err, ErrCheckpointNotFound) {
		t.Errorf("GetCheckpoint() error = %v, want ErrCheckpointNotFound", err)
	}
}

func TestUpserts_RequireExistingRun(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()

	err := store.InTx(ctx, func(tx *Tx) error {
		return tx.UpsertVehicleCount(ctx, &VehicleCount{
			RunID:       "ghost",
			CameraID:    "cam-01",
			BucketTS:    bucketTS,
			VehicleType: "car",
			Count:       1,
		})
	})
	if err == nil {
		t.Fatal("expected foreign key error for missing run")
	}
}

func TestUpserts_Validation(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	err := store.InTx(ctx, func(tx *Tx) error {
		if err := tx.UpsertVehicleCount(ctx, &VehicleCount{CameraID: "c", BucketTS: bucketTS, VehicleType: "car"}); err == nil {
			t.Error("expected error for missing run_id")
		}
		if err := tx.UpsertVehicleCount(ctx, &VehicleCount{RunID: "r", CameraID: "c", BucketTS: bucketTS}); err == nil {
			t.Error("expected error for missing vehicle_type")
		}
		if err := tx.UpsertDensity(ctx, &DensityRecord{RunID: "r", CameraID: "c"}); err == nil {
			t.Error("expected error for missing bucket_ts")
		}
		if err := tx.UpsertCheckpoint(ctx, &Checkpoint{RunID: "r", BucketIndex: -1, LastBucketTS: bucketTS}); err == nil {
			t.Error("expected error for negative bucket_index")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("InTx() error = %v", err)
	}
}
