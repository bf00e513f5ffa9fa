package config

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// BucketHash returns a stable digest over every tunable that affects
// bucket content. Two invocations share a run lineage only when their
// hashes match; changing any of these settings starts a fresh lineage
// instead of resuming against stale semantics. Storage, live-feed, and
// logging settings deliberately do not participate.
func (c *Config) BucketHash() string {
	payload := map[string]any{
		"sampling_fps":   c.Video.SamplingFPS,
		"bucket_seconds": c.Counting.BucketSeconds,
		"class_map":      c.Counting.ClassMap,
		"density": map[string]any{
			"low_max":              c.Density.LowMax,
			"medium_max":           c.Density.MediumMax,
			"default_max_vehicles": c.Density.DefaultMaxVehicles,
			"rolling_max":          c.Density.RollingMax,
			"per_camera_max":       c.Density.PerCameraMax,
		},
		"emissions": map[string]any{
			"factors":         c.Emissions.Factors,
			"sensitivity_pct": c.Emissions.SensitivityPct,
		},
	}

	// encoding/json emits map keys in sorted order, which makes the
	// digest independent of config field ordering. The payload is plain
	// scalars and string-keyed maps, so Marshal cannot fail.
	encoded, _ := json.Marshal(payload)
	sum := sha256.Sum256(encoded)
	return hex.EncodeToString(sum[:])
}
