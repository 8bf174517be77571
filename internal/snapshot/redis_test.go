package snapshot

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vrpspd/internal/model"
)

func TestRedisSinkPublishes(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx := context.Background()
	sub := client.Subscribe(ctx, Channel("r1"))
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	require.NoError(t, RedisSink{Client: client}.Write(ctx, model.Snapshot{RunID: "r1", Round: 9, Kind: model.KindOracle}))
	select {
	case msg := <-sub.Channel():
		var got model.Snapshot
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
		assert.Equal(t, 9, got.Round)
		assert.Equal(t, "run:r1", msg.Channel)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for publish")
	}
}
