package counting

import (
	"math"
	"sort"
	"time"

	"github.com/runger/camflow/internal/detect"
)

// Bucket is one finalized counting window.
type Bucket struct {
	// Index is the window ordinal: floor(frameTimestamp / bucketSeconds).
	Index int
	// Start is the wall-clock bucket timestamp, aligned to the grid.
	Start time.Time
	// Counts holds per-class totals over deduplicated detections.
	Counts map[string]int
	// TotalVehicles is the number of unique detections across classes.
	TotalVehicles int
	// Frames is how many sampled frames fell into the window.
	Frames int
	// BBoxOccupancy is the mean fractional frame coverage over frames
	// that contributed box data, nil when none did.
	BBoxOccupancy *float64
}

type accumulator struct {
	counts          map[string]int
	totalVehicles   int
	frames          int
	occupancySum    float64
	occupancyFrames int
}

// Aggregator accumulates detections into time buckets. It holds every
// touched bucket in memory until Finalize; runs are bounded by their
// source length, so this stays small.
type Aggregator struct {
	bucketSeconds int
	buckets       map[int]*accumulator
}

// New builds an aggregator with the given window width in seconds.
// bucketSeconds must be positive; configuration validation enforces
// that upstream.
func New(bucketSeconds int) *Aggregator {
	return &Aggregator{
		bucketSeconds: bucketSeconds,
		buckets:       make(map[int]*accumulator),
	}
}

// AddFrame folds one frame's detections into its window. Duplicate
// detections inside the frame are collapsed first. A frame with zero
// detections still populates its bucket so quiet windows are reported
// rather than skipped.
func (a *Aggregator) AddFrame(timestampSec float64, detections []detect.Detection, frameWidth, frameHeight int) {
	idx := int(math.Floor(timestampSec / float64(a.bucketSeconds)))
	acc := a.buckets[idx]
	if acc == nil {
		acc = &accumulator{counts: make(map[string]int)}
		a.buckets[idx] = acc
	}
	acc.frames++

	unique := Dedupe(detections)
	for _, det := range unique {
		acc.counts[det.Class]++
	}
	acc.totalVehicles += len(unique)

	if occ, ok := frameOccupancy(unique, frameWidth, frameHeight); ok {
		acc.occupancySum += occ
		acc.occupancyFrames++
	}
}

// frameOccupancy returns the fraction of the frame covered by detection
// boxes, clamped to 1. The second return is false when the frame has no
// usable dimensions or no detection carries a box.
func frameOccupancy(detections []detect.Detection, frameWidth, frameHeight int) (float64, bool) {
	if frameWidth <= 0 || frameHeight <= 0 {
		return 0, false
	}
	total := 0.0
	hasBox := false
	for _, det := range detections {
		if det.BBox == nil {
			continue
		}
		hasBox = true
		total += det.BBox.Area()
	}
	if !hasBox {
		return 0, false
	}
	return math.Min(1, total/(float64(frameWidth)*float64(frameHeight))), true
}

// Finalize converts accumulated state into buckets in ascending index
// order. start anchors the grid: it is floored to the bucket grid and
// each bucket's timestamp is flooredStart + index*bucketSeconds.
func (a *Aggregator) Finalize(start time.Time) []Bucket {
	floored := FloorToBucket(start, a.bucketSeconds)

	indexes := make([]int, 0, len(a.buckets))
	for idx := range a.buckets {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)

	buckets := make([]Bucket, 0, len(indexes))
	for _, idx := range indexes {
		acc := a.buckets[idx]
		counts := make(map[string]int, len(acc.counts))
		for class, n := range acc.counts {
			counts[class] = n
		}
		b := Bucket{
			Index:         idx,
			Start:         floored.Add(time.Duration(idx*a.bucketSeconds) * time.Second),
			Counts:        counts,
			TotalVehicles: acc.totalVehicles,
			Frames:        acc.frames,
		}
		if acc.occupancyFrames > 0 {
			mean := acc.occupancySum / float64(acc.occupancyFrames)
			b.BBoxOccupancy = &mean
		}
		buckets = append(buckets, b)
	}
	return buckets
}
