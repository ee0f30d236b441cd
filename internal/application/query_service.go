package application

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/sanosuguru/go-event-price-tracker/internal/domain/event"
	"github.com/sanosuguru/go-event-price-tracker/internal/domain/price"
	"github.com/sanosuguru/go-event-price-tracker/internal/pkg/logger"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// QueryService は照合結果の参照系
type QueryService struct {
	events  event.Repository
	prices  price.Repository
	history price.HistoryRepository
	cache   PriceCache
}

// NewQueryService は QueryService を作成する。cache は nil でもよい
func NewQueryService(events event.Repository, prices price.Repository, history price.HistoryRepository, cache PriceCache) *QueryService {
	return &QueryService{events: events, prices: prices, history: history, cache: cache}
}

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func (s *QueryService) ListEvents(ctx context.Context, provider event.Provider, limit, offset int) ([]*event.Event, error) {
	limit, offset = clampPage(limit, offset)
	return s.events.List(ctx, event.ListFilter{Provider: provider, Limit: limit, Offset: offset})
}

func (s *QueryService) GetEvent(ctx context.Context, id int64) (*event.Event, error) {
	return s.events.GetByID(ctx, id)
}

// ListPrices はイベントの価格を返す。all が false の場合は有効な価格のみ
// 有効な価格はキャッシュを優先し、キャッシュの障害は無視してDBから読む
func (s *QueryService) ListPrices(ctx context.Context, eventID int64, all bool) ([]*price.Price, error) {
	if _, err := s.events.GetByID(ctx, eventID); err != nil {
		return nil, err
	}
	if all {
		return s.prices.ListByEvent(ctx, eventID, false)
	}

	var (
		version   int64
		cacheable bool
	)
	if s.cache != nil {
		cached, err := s.cache.GetActive(ctx, eventID)
		if err == nil {
			return cached, nil
		}
		logger.Debug("価格キャッシュを利用できません", zap.Int64("event_id", eventID), zap.Error(err))

		// 世代は DB を読む前に取得する
		if v, err := s.cache.Version(ctx, eventID); err == nil {
			version, cacheable = v, true
		} else {
			logger.Warn("価格キャッシュの世代取得に失敗しました", zap.Int64("event_id", eventID), zap.Error(err))
		}
	}

	active, err := s.prices.ListByEvent(ctx, eventID, true)
	if err != nil {
		return nil, fmt.Errorf("有効な価格の取得に失敗: %w", err)
	}
	if cacheable {
		if err := s.cache.SetActive(ctx, eventID, version, active); err != nil {
			logger.Warn("価格キャッシュの保存に失敗しました", zap.Int64("event_id", eventID), zap.Error(err))
		}
	}
	return active, nil
}

// GetHistory はイベントの価格履歴を change_date 順に返す。category が空なら全カテゴリ
func (s *QueryService) GetHistory(ctx context.Context, eventID int64, category string) ([]*price.HistoryEntry, error) {
	if _, err := s.events.GetByID(ctx, eventID); err != nil {
		if errors.Is(err, event.ErrEventNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("イベント取得に失敗: %w", err)
	}
	return s.history.ListByEvent(ctx, eventID, category)
}
