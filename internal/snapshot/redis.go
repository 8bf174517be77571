package snapshot

import (
	"context"
	"encoding/json"

	redis "github.com/redis/go-redis/v9"

	"vrpspd/internal/model"
)

// ChannelPrefix prefixes the per-run pub/sub channel names.
const ChannelPrefix = "run:"

// Channel is the pub/sub channel carrying the snapshots of a run.
func Channel(runID string) string { return ChannelPrefix + runID }

// RedisSink publishes snapshots on the channel of their run.
type RedisSink struct {
	Client redis.UniversalClient
}

func (r RedisSink) Name() string { return "redis" }

func (r RedisSink) Write(ctx context.Context, snap model.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return r.Client.Publish(ctx, Channel(snap.RunID), data).Err()
}
