// Package counting folds per-frame detections into fixed-width time
// buckets of vehicle counts.
package counting

import "time"

// FloorToBucket aligns t down to the bucket grid. The grid is anchored
// at the Unix epoch, so every process floors the same instant to the
// same bucket regardless of when it started. bucketSeconds must be
// positive; configuration validation enforces that upstream.
func FloorToBucket(t time.Time, bucketSeconds int) time.Time {
	secs := t.Unix()
	rem := secs % int64(bucketSeconds)
	if rem < 0 {
		rem += int64(bucketSeconds)
	}
	return time.Unix(secs-rem, 0).UTC()
}
