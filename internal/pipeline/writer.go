package pipeline

import (
	"context"
	"sort"
	"time"

	"github.com/runger/camflow/internal/storage"
)

// BucketPayload is one bucket's fully derived output, assembled in
// memory before the commit so a failed transaction can report exactly
// which bucket was lost.
type BucketPayload struct {
	BucketIndex   int
	BucketTS      time.Time
	Counts        map[string]int
	TotalVehicles int
	BBoxOccupancy *float64
	DensityScore  float64
	DensityLevel  string
	CO2Kg         float64
	CO2LowKg      float64
	CO2HighKg     float64
}

// BucketWriter persists one bucket's derived rows together with its
// checkpoint advance in a single transaction, so after any crash the
// checkpoint reflects exactly the buckets visible in storage.
type BucketWriter interface {
	CommitBucket(ctx context.Context, run *storage.Run, payload *BucketPayload) error
}

type storeWriter struct {
	store storage.Store
}

// NewBucketWriter returns a BucketWriter backed by store transactions.
func NewBucketWriter(store storage.Store) BucketWriter {
	return &storeWriter{store: store}
}

func (w *storeWriter) CommitBucket(ctx context.Context, run *storage.Run, payload *BucketPayload) error {
	return w.store.InTx(ctx, func(tx *storage.Tx) error {
		for _, vehicleType := range sortedTypes(payload.Counts) {
			err := tx.UpsertVehicleCount(ctx, &storage.VehicleCount{
				RunID:       run.RunID,
				CameraID:    run.CameraID,
				BucketTS:    payload.BucketTS,
				VehicleType: vehicleType,
				Count:       payload.Counts[vehicleType],
				Source:      run.Source,
			})
			if err != nil {
				return err
			}
		}

		err := tx.UpsertDensity(ctx, &storage.DensityRecord{
			RunID:         run.RunID,
			CameraID:      run.CameraID,
			BucketTS:      payload.BucketTS,
			TotalVehicles: payload.TotalVehicles,
			DensityScore:  payload.DensityScore,
			DensityLevel:  payload.DensityLevel,
			BBoxOccupancy: payload.BBoxOccupancy,
			Source:        run.Source,
		})
		if err != nil {
			return err
		}

		err = tx.UpsertEmission(ctx, &storage.EmissionEstimate{
			RunID:          run.RunID,
			CameraID:       run.CameraID,
			BucketTS:       payload.BucketTS,
			EstimatedCO2Kg: payload.CO2Kg,
			CO2LowKg:       payload.CO2LowKg,
			CO2HighKg:      payload.CO2HighKg,
			Source:         run.Source,
		})
		if err != nil {
			return err
		}

		return tx.UpsertCheckpoint(ctx, &storage.Checkpoint{
			RunID:        run.RunID,
			BucketIndex:  payload.BucketIndex,
			LastBucketTS: payload.BucketTS,
		})
	})
}

func sortedTypes(counts map[string]int) []string {
	types := make([]string, 0, len(counts))
	for vehicleType := range counts {
		types = append(types, vehicleType)
	}
	sort.Strings(types)
	return types
}
