package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sanosuguru/go-event-price-tracker/internal/domain/event"
	"github.com/sanosuguru/go-event-price-tracker/internal/domain/price"
	"github.com/sanosuguru/go-event-price-tracker/internal/domain/snapshot"
	"github.com/sanosuguru/go-event-price-tracker/internal/pkg/logger"
)

// queuedPrice の price は null を保持し、取り出し側の検証で弾く
type queuedPrice struct {
	Category  string              `json:"category"`
	Price     decimal.NullDecimal `json:"price"`
	SoldOut   bool                `json:"sold_out"`
	Remaining *int                `json:"remaining,omitempty"`
	IsActive  *bool               `json:"is_active,omitempty"`
}

// queuedSnapshot はキューに積むスナップショットのJSON表現
type queuedSnapshot struct {
	Provider    string        `json:"provider"`
	SourceID    string        `json:"source_id,omitempty"`
	Name        string        `json:"name"`
	Venue       string        `json:"venue"`
	Date        string        `json:"date"`
	Genre       string        `json:"genre,omitempty"`
	Promoters   []string      `json:"promoters,omitempty"`
	Artists     []string      `json:"artists,omitempty"`
	Description string        `json:"description,omitempty"`
	Prices      []queuedPrice `json:"prices"`
	EnqueuedAt  time.Time     `json:"enqueued_at"`
}

func encodeSnapshot(s snapshot.Snapshot, now time.Time) ([]byte, error) {
	q := queuedSnapshot{
		Provider:    string(s.Provider),
		SourceID:    s.SourceID,
		Name:        s.Name,
		Venue:       s.Venue,
		Date:        s.Date,
		Genre:       s.Genre,
		Promoters:   s.Promoters,
		Artists:     s.Artists,
		Description: s.Description,
		Prices:      make([]queuedPrice, len(s.Prices)),
		EnqueuedAt:  now,
	}
	for i, e := range s.Prices {
		q.Prices[i] = queuedPrice{
			Category:  e.Category,
			Price:     decimal.NullDecimal{Decimal: e.Price, Valid: !e.PriceMissing},
			SoldOut:   e.SoldOut,
			Remaining: e.Remaining,
			IsActive:  e.IsActive,
		}
	}
	return json.Marshal(q)
}

func decodeSnapshot(raw string) (snapshot.Snapshot, error) {
	var q queuedSnapshot
	if err := json.Unmarshal([]byte(raw), &q); err != nil {
		return snapshot.Snapshot{}, err
	}
	s := snapshot.Snapshot{
		Provider:    event.Provider(q.Provider),
		SourceID:    q.SourceID,
		Name:        q.Name,
		Venue:       q.Venue,
		Date:        q.Date,
		Genre:       q.Genre,
		Promoters:   q.Promoters,
		Artists:     q.Artists,
		Description: q.Description,
		Prices:      make([]price.Entry, len(q.Prices)),
	}
	for i, p := range q.Prices {
		s.Prices[i] = price.Entry{
			Category:     p.Category,
			Price:        p.Price.Decimal,
			SoldOut:      p.SoldOut,
			Remaining:    p.Remaining,
			IsActive:     p.IsActive,
			PriceMissing: !p.Price.Valid,
		}
	}
	return s, nil
}

// SnapshotQueue は販売元ごとの Redis LIST でスナップショットを受け渡す
// スクレイパーが LPUSH し、取り込みワーカーが RPOP するため販売元内では先入れ先出しになる
type SnapshotQueue struct {
	client *redis.Client
	prefix string
}

// NewSnapshotQueue は SnapshotQueue を作成する
func NewSnapshotQueue(client *redis.Client) *SnapshotQueue {
	return &SnapshotQueue{client: client, prefix: "snapshots:"}
}

// Enqueue はスナップショットを販売元ごとのキューに追加する
func (q *SnapshotQueue) Enqueue(ctx context.Context, snaps ...snapshot.Snapshot) error {
	if len(snaps) == 0 {
		return nil
	}
	now := time.Now().UTC()

	pipe := q.client.TxPipeline()
	for _, s := range snaps {
		raw, err := encodeSnapshot(s, now)
		if err != nil {
			return fmt.Errorf("スナップショットのエンコードに失敗: %w", err)
		}
		pipe.LPush(ctx, q.key(s.Provider), raw)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("キューへの追加に失敗: %w", err)
	}
	return nil
}

// Dequeue は販売元のキューから最大 n 件を取り出す
// デコードできないメッセージはログに残して破棄する
func (q *SnapshotQueue) Dequeue(ctx context.Context, provider event.Provider, n int) ([]snapshot.Snapshot, error) {
	raws, err := q.client.RPopCount(ctx, q.key(provider), n).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("キューからの取り出しに失敗: %w", err)
	}

	snaps := make([]snapshot.Snapshot, 0, len(raws))
	for _, raw := range raws {
		s, err := decodeSnapshot(raw)
		if err != nil {
			logger.Warn("不正なスナップショットを破棄しました",
				zap.String("provider", string(provider)),
				zap.Error(err),
			)
			continue
		}
		snaps = append(snaps, s)
	}
	return snaps, nil
}

// Len は販売元のキューの長さを返す
func (q *SnapshotQueue) Len(ctx context.Context, provider event.Provider) (int64, error) {
	n, err := q.client.LLen(ctx, q.key(provider)).Result()
	if err != nil {
		return 0, fmt.Errorf("キュー長の取得に失敗: %w", err)
	}
	return n, nil
}

func (q *SnapshotQueue) key(provider event.Provider) string {
	return q.prefix + string(provider)
}
