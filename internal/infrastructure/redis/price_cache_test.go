package redis

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sanosuguru/go-event-price-tracker/internal/domain/price"
)

func TestPriceCache(t *testing.T) {
	client := setupTestRedis(t)
	cache := NewPriceCache(client, 30*time.Second)
	ctx := context.Background()
	const eventID int64 = 42
	remaining := 7
	now := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)

	t.Run("キャッシュミス時はErrCacheMissを返す", func(t *testing.T) {
		_, err := cache.GetActive(ctx, eventID)
		assert.ErrorIs(t, err, ErrCacheMiss)
	})

	t.Run("有効な価格のみ保存される", func(t *testing.T) {
		prices := []*price.Price{
			{ID: 1, EventID: eventID, Category: "VIP", Amount: decimal.RequireFromString("1250.50"), Remaining: &remaining, IsActive: true, CreatedAt: now, LastSeen: now},
			{ID: 2, EventID: eventID, Category: "Balkon", Amount: decimal.NewFromInt(300), IsActive: false, CreatedAt: now, LastSeen: now},
		}
		version, err := cache.Version(ctx, eventID)
		require.NoError(t, err)
		assert.Zero(t, version)
		require.NoError(t, cache.SetActive(ctx, eventID, version, prices))

		got, err := cache.GetActive(ctx, eventID)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "VIP", got[0].Category)
		assert.True(t, decimal.RequireFromString("1250.50").Equal(got[0].Amount))
		assert.Equal(t, 7, *got[0].Remaining)
		assert.True(t, got[0].IsActive)
		assert.Equal(t, eventID, got[0].EventID)
	})

	t.Run("無効化後はキャッシュミス", func(t *testing.T) {
		require.NoError(t, cache.Invalidate(ctx, eventID))
		_, err := cache.GetActive(ctx, eventID)
		assert.ErrorIs(t, err, ErrCacheMiss)

		version, err := cache.Version(ctx, eventID)
		require.NoError(t, err)
		assert.Equal(t, int64(1), version)
	})

	t.Run("無効化より前に読んだ結果は書き戻さない", func(t *testing.T) {
		const otherID int64 = 43
		stale := []*price.Price{{ID: 3, EventID: otherID, Category: "VIP", Amount: decimal.NewFromInt(900), IsActive: true}}

		// 読み取り開始時の世代
		before, err := cache.Version(ctx, otherID)
		require.NoError(t, err)

		// 読み取り中に照合がコミットされ無効化された
		require.NoError(t, cache.Invalidate(ctx, otherID))

		require.NoError(t, cache.SetActive(ctx, otherID, before, stale))
		_, err = cache.GetActive(ctx, otherID)
		assert.ErrorIs(t, err, ErrCacheMiss)

		// 最新の世代で読んだ結果は保存される
		current, err := cache.Version(ctx, otherID)
		require.NoError(t, err)
		require.NoError(t, cache.SetActive(ctx, otherID, current, stale))
		got, err := cache.GetActive(ctx, otherID)
		require.NoError(t, err)
		assert.Len(t, got, 1)
	})
}
