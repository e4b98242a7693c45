package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingCache struct {
	memCache
	err error
}

func (c *failingCache) Get(context.Context, string, interface{}) error {
	return c.err
}

func TestCacheServiceRememberLoadsOnce(t *testing.T) {
	metrics := NewMetricsService()
	svc := NewCacheService(newMemCache(), metrics, 0, nil, true)
	ctx := context.Background()
	loads := 0
	load := func(context.Context) (interface{}, error) {
		loads++
		return map[string]int{"approved": 3}, nil
	}

	var dest map[string]int
	_, hit, err := svc.Remember(ctx, "reports:k", time.Minute, &dest, load)
	require.NoError(t, err)
	assert.False(t, hit)

	value, hit, err := svc.Remember(ctx, "reports:k", time.Minute, &dest, load)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 1, loads)
	assert.Equal(t, 3, (*value.(*map[string]int))["approved"])

	snap := metrics.Snapshot()
	assert.Equal(t, uint64(1), snap.CacheHits)
	assert.Equal(t, uint64(1), snap.CacheMisses)
	assert.InDelta(t, 0.5, snap.CacheHitRatio, 1e-9)
}

func TestCacheServiceDisabledIsAlwaysMiss(t *testing.T) {
	store := newMemCache()
	svc := NewCacheService(store, nil, time.Minute, nil, false)
	ctx := context.Background()

	require.NoError(t, svc.Set(ctx, "k", 1, 0))
	assert.Empty(t, store.entries)
	var dest int
	hit, err := svc.Get(ctx, "k", &dest)
	require.NoError(t, err)
	assert.False(t, hit)
	require.NoError(t, svc.Invalidate(ctx, "*"))
	assert.Empty(t, store.deleted)
	assert.False(t, (*CacheService)(nil).Enabled())
}

func TestCacheServiceRememberDegradesOnStoreFailure(t *testing.T) {
	store := &failingCache{memCache: *newMemCache(), err: errors.New("redis unavailable")}
	svc := NewCacheService(store, nil, time.Minute, nil, true)

	var dest string
	value, hit, err := svc.Remember(context.Background(), "k", 0, &dest, func(context.Context) (interface{}, error) {
		return "fresh", nil
	})
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, "fresh", value)

	_, _, err = svc.Remember(context.Background(), "k", 0, &dest, func(context.Context) (interface{}, error) {
		return nil, errors.New("load failed")
	})
	assert.EqualError(t, err, "load failed")
}
