package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRunMigrationsIdempotent(t *testing.T) {
	pool := TestPool(t)

	// TestPool already migrated once; running again must be a no-op.
	require.NoError(t, RunMigrations(context.Background(), pool))
}

func TestConnectRejectsBadURL(t *testing.T) {
	t.Parallel()

	_, err := Connect(context.Background(), "not-a-database-url")
	require.Error(t, err)
}
