package application

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sanosuguru/go-event-price-tracker/internal/domain/event"
	"github.com/sanosuguru/go-event-price-tracker/internal/domain/price"
)

func TestQueryService(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first := env.mustReconcile(t, snap(entry("A", "10"), entry("B", "20")))
	env.mustReconcile(t, snap(entry("A", "12")))

	other := snap(entry("X", "1"))
	other.Provider = event.ProviderPasso
	env.mustReconcile(t, other)

	q := NewQueryService(env.events, env.prices, env.history, nil)

	t.Run("イベント一覧を販売元で絞り込む", func(t *testing.T) {
		all, err := q.ListEvents(ctx, "", 0, 0)
		require.NoError(t, err)
		assert.Len(t, all, 2)

		passo, err := q.ListEvents(ctx, event.ProviderPasso, 10, 0)
		require.NoError(t, err)
		require.Len(t, passo, 1)
		assert.Equal(t, event.ProviderPasso, passo[0].Provider)
	})

	t.Run("存在しないイベント", func(t *testing.T) {
		_, err := q.GetEvent(ctx, 999)
		assert.ErrorIs(t, err, event.ErrEventNotFound)

		_, err = q.ListPrices(ctx, 999, false)
		assert.ErrorIs(t, err, event.ErrEventNotFound)

		_, err = q.GetHistory(ctx, 999, "")
		assert.ErrorIs(t, err, event.ErrEventNotFound)
	})

	t.Run("有効な価格と全ての価格", func(t *testing.T) {
		active, err := q.ListPrices(ctx, first.EventID, false)
		require.NoError(t, err)
		require.Len(t, active, 1)
		assert.Equal(t, "A", active[0].Category)

		all, err := q.ListPrices(ctx, first.EventID, true)
		require.NoError(t, err)
		assert.Len(t, all, 2)
	})

	t.Run("カテゴリで履歴を絞り込む", func(t *testing.T) {
		history, err := q.GetHistory(ctx, first.EventID, "A")
		require.NoError(t, err)
		require.Len(t, history, 2)
		assert.Equal(t, price.ChangeAdded, history[0].ChangeType)
		assert.Equal(t, price.ChangeUpdated, history[1].ChangeType)

		all, err := q.GetHistory(ctx, first.EventID, "")
		require.NoError(t, err)
		assert.Len(t, all, 4)
	})
}

func TestQueryService_PriceCache(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	r := env.mustReconcile(t, snap(entry("A", "10")))

	t.Run("キャッシュヒット時はDBを読まない", func(t *testing.T) {
		cache := new(MockPriceCache)
		cached := []*price.Price{{ID: 99, Category: "cached"}}
		cache.On("GetActive", mock.Anything, r.EventID).Return(cached, nil).Once()
		q := NewQueryService(env.events, env.prices, env.history, cache)

		got, err := q.ListPrices(ctx, r.EventID, false)

		require.NoError(t, err)
		assert.Equal(t, cached, got)
		cache.AssertNotCalled(t, "SetActive", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("キャッシュミス時はDBを読む前の世代で保存する", func(t *testing.T) {
		cache := new(MockPriceCache)
		cache.On("GetActive", mock.Anything, r.EventID).Return(nil, errors.New("miss")).Once()
		cache.On("Version", mock.Anything, r.EventID).Return(int64(3), nil).Once()
		cache.On("SetActive", mock.Anything, r.EventID, int64(3), mock.Anything).Return(nil).Once()
		q := NewQueryService(env.events, env.prices, env.history, cache)

		got, err := q.ListPrices(ctx, r.EventID, false)

		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "A", got[0].Category)
		cache.AssertExpectations(t)
	})

	t.Run("世代を取得できなければ保存しない", func(t *testing.T) {
		cache := new(MockPriceCache)
		cache.On("GetActive", mock.Anything, r.EventID).Return(nil, errors.New("miss")).Once()
		cache.On("Version", mock.Anything, r.EventID).Return(int64(0), errors.New("redis down")).Once()
		q := NewQueryService(env.events, env.prices, env.history, cache)

		got, err := q.ListPrices(ctx, r.EventID, false)

		require.NoError(t, err)
		require.Len(t, got, 1)
		cache.AssertNotCalled(t, "SetActive", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestClampPage(t *testing.T) {
	tests := []struct {
		name           string
		limit, offset  int
		wantL, wantOff int
	}{
		{name: "既定値", limit: 0, offset: 0, wantL: 20, wantOff: 0},
		{name: "上限", limit: 500, offset: 5, wantL: 100, wantOff: 5},
		{name: "負のオフセット", limit: 10, offset: -1, wantL: 10, wantOff: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, o := clampPage(tt.limit, tt.offset)
			assert.Equal(t, tt.wantL, l)
			assert.Equal(t, tt.wantOff, o)
		})
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want FailureKind
	}{
		{name: "入力不正", err: errors.Join(errors.New("x"), errSnapshotForTest()), want: FailureValidation},
		{name: "不変条件違反", err: price.ErrMultipleActivePrices, want: FailureInvariant},
		{name: "分類不能は一時的", err: errors.New("unknown"), want: FailureTransient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyError(tt.err))
		})
	}
}

func errSnapshotForTest() error {
	s := snap()
	s.Venue = ""
	return s.Validate()
}
