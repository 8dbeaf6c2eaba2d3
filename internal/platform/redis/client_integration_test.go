//go:build integration

package redis_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	platformredis "attestry/internal/platform/redis"
	"attestry/pkg/testutil/containers"
)

func TestClientHealth(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	rc := containers.NewRedisContainer(t)

	client, err := platformredis.New(rc.Addr)
	require.NoError(t, err)
	require.NotNil(t, client)

	ctx := context.Background()
	assert.NoError(t, client.Health(ctx))

	require.NoError(t, client.Close())
	assert.Error(t, client.Health(ctx), "health reports failure once the connection is closed")
}
