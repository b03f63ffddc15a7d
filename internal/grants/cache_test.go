package grants

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/veritrail/veritrail/internal/authz"
)

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCache(client, time.Minute, nil), mr
}

func TestCacheRoundTrip(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()
	subject := uuid.New()

	_, ok := cache.Get(ctx, subject)
	require.False(t, ok)

	cache.Set(ctx, subject, map[authz.Capability]bool{authz.CapExportData: true})

	caps, ok := cache.Get(ctx, subject)
	require.True(t, ok)
	require.True(t, caps[authz.CapExportData])
}

func TestCacheInvalidate(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()
	subject := uuid.New()

	cache.Set(ctx, subject, map[authz.Capability]bool{authz.CapExportData: true})
	cache.Invalidate(ctx, subject)

	_, ok := cache.Get(ctx, subject)
	require.False(t, ok)
}

func TestCacheExpiry(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()
	subject := uuid.New()

	cache.Set(ctx, subject, map[authz.Capability]bool{authz.CapExportData: true})
	mr.FastForward(2 * time.Minute)

	_, ok := cache.Get(ctx, subject)
	require.False(t, ok)
}

func TestCacheFailureIsAMiss(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache := NewCache(client, time.Minute, nil)
	subject := uuid.New()

	cache.Set(context.Background(), subject, map[authz.Capability]bool{authz.CapExportData: true})
	mr.Close()

	_, ok := cache.Get(context.Background(), subject)
	require.False(t, ok, "cache errors fall through to the repository")

	var nilCache *Cache
	_, ok = nilCache.Get(context.Background(), subject)
	require.False(t, ok)
}
