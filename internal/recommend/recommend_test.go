package recommend

import (
	"context"
	"testing"
	"time"

	"recpay/internal/catalog"
	"recpay/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCatalog() *catalog.Catalog {
	return catalog.New([]models.Service{
		{ID: "1", Name: "Basketball Court", Category: "Sports", Price: 1500, Available: true},
		{ID: "2", Name: "Gym Day Pass", Category: "Fitness", Price: 500, Available: true},
		{ID: "3", Name: "Spa Session", Category: "Wellness", Price: 2500, Available: true},
		{ID: "4", Name: "Tennis Court", Category: "Sports", Price: 1200, Available: false},
	})
}

func newTestRecommender(t *testing.T, cache *redis.Client) *Recommender {
	t.Helper()
	logger := zerolog.Nop()
	return New(testCatalog(), cache, 30*time.Minute, &logger)
}

func TestRecommendByMood(t *testing.T) {
	r := newTestRecommender(t, nil)

	t.Run("Energetic", func(t *testing.T) {
		rec, err := r.Recommend(context.Background(), "Feeling ENERGETIC today")
		require.NoError(t, err)
		require.Len(t, rec.Services, 2, "unavailable services are excluded")
		assert.Equal(t, "Basketball Court", rec.Services[0].Name)
		assert.Equal(t, "Gym Day Pass", rec.Services[1].Name)
	})

	t.Run("Stressed", func(t *testing.T) {
		rec, err := r.Recommend(context.Background(), "stressed")
		require.NoError(t, err)
		require.Len(t, rec.Services, 1)
		assert.Equal(t, "Spa Session", rec.Services[0].Name)
	})

	t.Run("UnknownFallsBackToCatalog", func(t *testing.T) {
		rec, err := r.Recommend(context.Background(), "quizzical")
		require.NoError(t, err)
		assert.Len(t, rec.Services, 3)
	})

	t.Run("EmptyMood", func(t *testing.T) {
		_, err := r.Recommend(context.Background(), "   ")
		require.ErrorIs(t, err, ErrEmptyMood)
	})
}

func TestRecommendCache(t *testing.T) {
	mr := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = cache.Close() })

	r := newTestRecommender(t, cache)

	first, err := r.Recommend(context.Background(), "energetic")
	require.NoError(t, err)
	assert.False(t, first.Cached)

	second, err := r.Recommend(context.Background(), "  Energetic ")
	require.NoError(t, err)
	assert.True(t, second.Cached, "normalized moods share a cache entry")
	assert.Equal(t, first.Services, second.Services)

	// After the TTL the entry is recomputed.
	mr.FastForward(time.Hour)
	third, err := r.Recommend(context.Background(), "energetic")
	require.NoError(t, err)
	assert.False(t, third.Cached)
}

func TestRecommendCacheUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = cache.Close() })
	mr.Close()

	r := newTestRecommender(t, cache)

	rec, err := r.Recommend(context.Background(), "energetic")
	require.NoError(t, err, "cache outage must not break recommendations")
	assert.Len(t, rec.Services, 2)
}
