package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/sanosuguru/go-event-price-tracker/internal/domain/price"
)

var (
	ErrCacheMiss = errors.New("キャッシュが見つかりません")
)

// 世代キーは価格キャッシュより長く保持する。期限切れ後は 0 から数え直す
const versionTTL = 24 * time.Hour

// 世代が一致する場合のみ保存する
var setIfVersionScript = redis.NewScript(`
	local current = redis.call("GET", KEYS[2])
	if (current or "0") ~= ARGV[1] then
		return 0
	end
	redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[3])
	return 1
`)

// cachedPrice はキャッシュに保存する有効な価格
type cachedPrice struct {
	ID        int64           `json:"id"`
	Category  string          `json:"category"`
	Price     decimal.Decimal `json:"price"`
	SoldOut   bool            `json:"sold_out"`
	Remaining *int            `json:"remaining,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	LastSeen  time.Time       `json:"last_seen"`
}

// PriceCache はイベントごとの有効な価格一覧をキャッシュする
// 照合のコミット後に無効化され、参照系APIが次回読み込み時に再構築する
type PriceCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewPriceCache は新しいPriceCacheインスタンスを作成する
func NewPriceCache(client *redis.Client, ttl time.Duration) *PriceCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &PriceCache{client: client, ttl: ttl}
}

// GetActive はイベントの有効な価格一覧をキャッシュから取得する
func (c *PriceCache) GetActive(ctx context.Context, eventID int64) ([]*price.Price, error) {
	raw, err := c.client.Get(ctx, c.activeKey(eventID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("キャッシュ取得に失敗: %w", err)
	}

	var cached []cachedPrice
	if err := json.Unmarshal(raw, &cached); err != nil {
		return nil, fmt.Errorf("キャッシュのデコードに失敗: %w", err)
	}

	prices := make([]*price.Price, len(cached))
	for i, p := range cached {
		prices[i] = &price.Price{
			ID:        p.ID,
			EventID:   eventID,
			Category:  p.Category,
			Amount:    p.Price,
			SoldOut:   p.SoldOut,
			Remaining: p.Remaining,
			IsActive:  true,
			CreatedAt: p.CreatedAt,
			LastSeen:  p.LastSeen,
		}
	}
	return prices, nil
}

// Version はイベントの現在の世代を返す。未作成なら 0
func (c *PriceCache) Version(ctx context.Context, eventID int64) (int64, error) {
	v, err := c.client.Get(ctx, c.versionKey(eventID)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("キャッシュ世代の取得に失敗: %w", err)
	}
	return v, nil
}

// SetActive はイベントの有効な価格一覧をキャッシュに保存する
// version が現在の世代と異なる場合は、読み取り中に照合がコミットされたとみなし何もしない
func (c *PriceCache) SetActive(ctx context.Context, eventID int64, version int64, prices []*price.Price) error {
	cached := make([]cachedPrice, 0, len(prices))
	for _, p := range prices {
		if !p.IsActive {
			continue
		}
		cached = append(cached, cachedPrice{
			ID:        p.ID,
			Category:  p.Category,
			Price:     p.Amount,
			SoldOut:   p.SoldOut,
			Remaining: p.Remaining,
			CreatedAt: p.CreatedAt,
			LastSeen:  p.LastSeen,
		})
	}

	raw, err := json.Marshal(cached)
	if err != nil {
		return fmt.Errorf("キャッシュのエンコードに失敗: %w", err)
	}
	keys := []string{c.activeKey(eventID), c.versionKey(eventID)}
	err = setIfVersionScript.Run(ctx, c.client, keys, version, raw, c.ttl.Milliseconds()).Err()
	if err != nil {
		return fmt.Errorf("キャッシュ保存に失敗: %w", err)
	}
	return nil
}

// Invalidate はイベントの世代を進め、キャッシュを削除する
func (c *PriceCache) Invalidate(ctx context.Context, eventID int64) error {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, c.versionKey(eventID))
		pipe.Expire(ctx, c.versionKey(eventID), versionTTL)
		pipe.Del(ctx, c.activeKey(eventID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("キャッシュ無効化に失敗: %w", err)
	}
	return nil
}

func (c *PriceCache) activeKey(eventID int64) string {
	return fmt.Sprintf("prices:active:%d", eventID)
}

func (c *PriceCache) versionKey(eventID int64) string {
	return fmt.Sprintf("prices:version:%d", eventID)
}
