//go:build integration

package request_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gatepass/internal/request"
	"gatepass/pkg/domain"
	"gatepass/pkg/platform/sentinel"
	"gatepass/pkg/testutil/containers"
)

func TestRedisTokenCache(t *testing.T) {
	rc := containers.NewRedisContainer(t)
	cache := request.NewRedisTokenCache(rc.Client)
	ctx := context.Background()

	id := domain.NewPassID()
	require.NoError(t, cache.Set(ctx, "cached-token", id, time.Minute))

	got, err := cache.Get(ctx, "cached-token")
	require.NoError(t, err)
	assert.Equal(t, id, got)

	_, err = cache.Get(ctx, "missing-token")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)

	// TTL expiry clears the entry.
	require.NoError(t, cache.Set(ctx, "short-token", id, 50*time.Millisecond))
	time.Sleep(150 * time.Millisecond)
	_, err = cache.Get(ctx, "short-token")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}
