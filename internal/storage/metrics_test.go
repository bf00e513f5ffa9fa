package storage

import (
	"context"
	"testing"
	"time"
)

func TestQueryVehicleCounts_Filters(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	seedRun(t, store, "run-1", "cam-01")
	seedCamera(t, store, "cam-02")
	if err := store.CreateRun(ctx, &Run{
		RunID: "run-2", CameraID: "cam-02", Source: "other.jsonl", ConfigHash: "h",
	}); err != nil {
		t.Fatalf("CreateRun() error = %v", err)
	}

	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	write := func(runID, cameraID, source string, ts time.Time, class string, n int) {
		t.Helper()
		err := store.InTx(ctx, func(tx *Tx) error {
			return tx.UpsertVehicleCount(ctx, &VehicleCount{
				RunID: runID, CameraID: cameraID, BucketTS: ts,
				VehicleType: class, Count: n, Source: source,
			})
		})
		if err != nil {
			t.Fatalf("InTx() error = %v", err)
		}
	}

	write("run-1", "cam-01", "cam.jsonl", base, "car", 3)
	write("run-1", "cam-01", "cam.jsonl", base.Add(time.Minute), "car", 5)
	write("run-1", "cam-01", "cam.jsonl", base.Add(2*time.Minute), "bus", 1)
	write("run-2", "cam-02", "other.jsonl", base, "car", 9)

	t.Run("by camera", func(t *testing.T) {
		got, err := store.QueryVehicleCounts(ctx, MetricsQuery{CameraID: "cam-01"})
		if err != nil {
			t.Fatalf("QueryVehicleCounts() error = %v", err)
		}
		if len(got) != 3 {
			t.Errorf("got %d rows, want 3", len(got))
		}
	})

	t.Run("by run", func(t *testing.T) {
		got, err := store.QueryVehicleCounts(ctx, MetricsQuery{RunID: "run-2"})
		if err != nil {
			t.Fatalf("QueryVehicleCounts() error = %v", err)
		}
		if len(got) != 1 || got[0].Count != 9 {
			t.Errorf("rows = %+v", got)
		}
	})

	t.Run("by source", func(t *testing.T) {
		got, err := store.QueryVehicleCounts(ctx, MetricsQuery{Source: "other.jsonl"})
		if err != nil {
			t.Fatalf("QueryVehicleCounts() error = %v", err)
		}
		if len(got) != 1 {
			t.Errorf("got %d rows, want 1", len(got))
		}
	})

	t.Run("time window", func(t *testing.T) {
		since := base.Add(time.Minute)
		until := base.Add(2 * time.Minute)
		got, err := store.QueryVehicleCounts(ctx, MetricsQuery{CameraID: "cam-01", Since: &since, Until: &until})
		if err != nil {
			t.Fatalf("QueryVehicleCounts() error = %v", err)
		}
		// since is inclusive, until exclusive
		if len(got) != 1 || !got[0].BucketTS.Equal(since) {
			t.Errorf("rows = %+v", got)
		}
	})

	t.Run("ordered by bucket_ts with limit", func(t *testing.T) {
		got, err := store.QueryVehicleCounts(ctx, MetricsQuery{CameraID: "cam-01", Limit: 2})
		if err != nil {
			t.Fatalf("QueryVehicleCounts() error = %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("got %d rows, want 2", len(got))
		}
		if !got[0].BucketTS.Equal(base) {
			t.Errorf("first row at %v, want %v", got[0].BucketTS, base)
		}
	})
}

func TestMaxTotalVehicles(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()

	t.Run("no history", func(t *testing.T) {
		_, found, err := store.MaxTotalVehicles(ctx, "cam-none")
		if err != nil {
			t.Fatalf("MaxTotalVehicles() error = %v", err)
		}
		if found {
			t.Error("found = true for camera without history")
		}
	})

	t.Run("with history", func(t *testing.T) {
		seedRun(t, store, "run-1", "cam-01")
		writeBucket(t, store, "run-1", "cam-01", bucketTS, 0, map[string]int{"car": 3})
		writeBucket(t, store, "run-1", "cam-01", bucketTS.Add(time.Minute), 1, map[string]int{"car": 7})

		max, found, err := store.MaxTotalVehicles(ctx, "cam-01")
		if err != nil {
			t.Fatalf("MaxTotalVehicles() error = %v", err)
		}
		if !found || max != 7 {
			t.Errorf("MaxTotalVehicles() = (%d, %v), want (7, true)", max, found)
		}
	})

	t.Run("zero-traffic history still counts as history", func(t *testing.T) {
		seedRun(t, store, "run-quiet", "cam-quiet")
		writeBucket(t, store, "run-quiet", "cam-quiet", bucketTS, 0, map[string]int{})

		max, found, err := store.MaxTotalVehicles(ctx, "cam-quiet")
		if err != nil {
			t.Fatalf("MaxTotalVehicles() error = %v", err)
		}
		if !found || max != 0 {
			t.Errorf("MaxTotalVehicles() = (%d, %v), want (0, true)", max, found)
		}
	})
}
