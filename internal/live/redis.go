package live

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	mirrorKeyPrefix  = "camflow:camera:"
	mirrorHistoryCap = 1000
	mirrorTimeout    = 2 * time.Second
)

// Mirror keeps the latest committed bucket per camera in Redis, plus a
// capped sorted-set history keyed by bucket timestamp, for dashboards
// that poll instead of holding a websocket open. Writes are
// best-effort; errors are logged and dropped.
type Mirror struct {
	client *redis.Client
	logger *slog.Logger
}

// NewMirror creates a Mirror against the given Redis address. The
// connection is not verified up front; an unreachable server just
// makes every publish a logged no-op.
func NewMirror(addr string, logger *slog.Logger) *Mirror {
	if logger == nil {
		logger = slog.Default()
	}
	return &Mirror{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		logger: logger,
	}
}

// PublishBucket writes one committed bucket to the camera's latest
// hash and appends it to the history set.
func (m *Mirror) PublishBucket(event BucketEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		m.logger.Debug("marshaling bucket for redis failed", "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
	defer cancel()

	latestKey := mirrorKeyPrefix + event.CameraID + ":latest"
	historyKey := mirrorKeyPrefix + event.CameraID + ":history"

	pipe := m.client.Pipeline()
	pipe.HSet(ctx, latestKey, map[string]interface{}{
		"run_id":         event.RunID,
		"bucket_ts":      event.BucketTS.Format(time.RFC3339),
		"total_vehicles": event.TotalVehicles,
		"density_score":  event.DensityScore,
		"density_level":  event.DensityLevel,
		"co2_kg":         event.CO2Kg,
		"payload":        payload,
		"updated_at":     time.Now().UTC().Format(time.RFC3339),
	})
	pipe.ZAdd(ctx, historyKey, redis.Z{
		Score:  float64(event.BucketTS.Unix()),
		Member: payload,
	})
	pipe.ZRemRangeByRank(ctx, historyKey, 0, int64(-mirrorHistoryCap-1))

	if _, err := pipe.Exec(ctx); err != nil {
		m.logger.Debug("redis mirror publish failed", "camera_id", event.CameraID, "error", err)
	}
}

// Close releases the Redis client.
func (m *Mirror) Close() error {
	return m.client.Close()
}
