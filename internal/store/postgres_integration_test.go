//go:build postgres_integration

package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"vrpspd/internal/model"
)

func TestPostgresConnectivityAndMigrate(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set; skipping integration test")
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p, err := NewPostgres(ctx, dsn)
	require.NoError(t, err)
	defer p.Close()
	require.NoError(t, p.Ping(ctx))
	// migrating twice is a no-op
	require.NoError(t, p.Migrate(ctx))

	id := uuid.Must(uuid.NewV7()).String()
	require.NoError(t, p.CreateRun(ctx, model.Run{ID: id, Instance: "CMT1X", Status: model.RunRunning, Oracle: "search", StartedAt: time.Now()}))
	_, _, err = p.ListRuns(ctx, "CMT1X", "", 1)
	require.NoError(t, err)
}
