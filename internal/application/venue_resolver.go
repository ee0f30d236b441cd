package application

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/sanosuguru/go-event-price-tracker/internal/domain/event"
	"github.com/sanosuguru/go-event-price-tracker/internal/domain/snapshot"
	"github.com/sanosuguru/go-event-price-tracker/internal/domain/transaction"
	"github.com/sanosuguru/go-event-price-tracker/internal/domain/venue"
	"github.com/sanosuguru/go-event-price-tracker/internal/pkg/logger"
	"github.com/sanosuguru/go-event-price-tracker/internal/pkg/metrics"
)

// VenueResolver は販売元の会場名を正規会場に対応付ける
type VenueResolver struct {
	repo      venue.Repository
	threshold float64
	metrics   *metrics.Metrics
}

// NewVenueResolver は VenueResolver を作成する
// threshold が範囲外の場合は既定値を使う
func NewVenueResolver(repo venue.Repository, threshold float64, m *metrics.Metrics) *VenueResolver {
	if threshold <= 0 || threshold > 1 {
		threshold = venue.DefaultMatchThreshold
	}
	return &VenueResolver{repo: repo, threshold: threshold, metrics: m}
}

// Resolve は別名 -> 類似度の順に正規会場を探す
// 見つからなければ未解決として記録し nil を返す
func (r *VenueResolver) Resolve(ctx context.Context, tx transaction.Tx, provider event.Provider, rawName string) (*int64, error) {
	normalized := venue.Normalize(rawName)
	if normalized == "" || strings.EqualFold(normalized, snapshot.Unknown) {
		r.observe("skipped")
		return nil, nil
	}

	id, err := r.repo.FindAlias(ctx, tx, normalized)
	if err == nil {
		r.observe(string(venue.MatchManual))
		return &id, nil
	}
	if !errors.Is(err, venue.ErrVenueNotFound) {
		return nil, fmt.Errorf("会場別名の検索に失敗: %w", err)
	}

	match, err := r.repo.FindSimilar(ctx, tx, normalized, r.threshold)
	if err == nil {
		logger.FromContext(ctx).Debug("会場を類似度で解決しました",
			zap.String("raw_name", rawName),
			zap.Int64("venue_id", match.VenueID),
			zap.Float64("score", match.Score),
		)
		r.observe(string(venue.MatchFuzzy))
		return &match.VenueID, nil
	}
	if !errors.Is(err, venue.ErrVenueNotFound) {
		return nil, fmt.Errorf("会場の類似検索に失敗: %w", err)
	}

	if err := r.repo.RecordUnmatched(ctx, tx, venue.Unmatched{Provider: string(provider), RawName: rawName}); err != nil {
		return nil, fmt.Errorf("未解決会場の記録に失敗: %w", err)
	}
	r.observe("unmatched")
	return nil, nil
}

func (r *VenueResolver) observe(result string) {
	if r.metrics != nil {
		r.metrics.VenueResolutionsTotal.WithLabelValues(result).Inc()
	}
}

// RegisterCanonical は正規会場を登録する
func (r *VenueResolver) RegisterCanonical(ctx context.Context, v *venue.CanonicalVenue) error {
	if strings.TrimSpace(v.Name) == "" {
		return venue.ErrVenueNameRequired
	}
	return r.repo.UpsertCanonical(ctx, v)
}

// RegisterAlias は会場名の別名を手動で登録する
func (r *VenueResolver) RegisterAlias(ctx context.Context, rawName string, canonicalID int64) error {
	if venue.Normalize(rawName) == "" {
		return venue.ErrVenueNameRequired
	}
	return r.repo.UpsertAlias(ctx, rawName, canonicalID)
}

// ListUnmatched は未解決の会場名一覧を返す
func (r *VenueResolver) ListUnmatched(ctx context.Context, limit, offset int) ([]venue.Unmatched, error) {
	limit, offset = clampPage(limit, offset)
	return r.repo.ListUnmatched(ctx, limit, offset)
}
