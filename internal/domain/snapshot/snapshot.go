package snapshot

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/sanosuguru/go-event-price-tracker/internal/domain/event"
	"github.com/sanosuguru/go-event-price-tracker/internal/domain/price"
)

// Unknown は上流の正規化で欠損値の代わりに入る値
// 空文字ではないため識別キーとして受け付ける
const Unknown = "Unknown"

// 価格は NUMERIC(12, 2) で保存される。保存時に丸めが入らない値のみ受け付ける
const priceScale = 2

var maxPrice = decimal.New(1, 10) // この値以上は保存できない

// Snapshot は販売元から取得した1イベント分の正規化済みデータ
type Snapshot struct {
	Provider    event.Provider
	SourceID    string // Bubilet のセッションIDなど。自然キーの販売元では空
	Name        string
	Venue       string
	Date        string
	Genre       string
	Promoters   []string
	Artists     []string
	Description string
	Prices      []price.Entry
}

// Key は自然キーを返す
func (s *Snapshot) Key() event.Key {
	return event.Key{Provider: s.Provider, Name: s.Name, Venue: s.Venue, Date: s.Date}
}

// SourceKey はサロゲートキーを返す
func (s *Snapshot) SourceKey() event.SourceKey {
	return event.SourceKey{Provider: s.Provider, SourceID: s.SourceID}
}

// Attributes は上書き対象の属性を返す
func (s *Snapshot) Attributes() event.Attributes {
	return event.Attributes{
		Genre:       s.Genre,
		Promoters:   s.Promoters,
		Artists:     s.Artists,
		Description: s.Description,
	}
}

// Identity はログやバッチレポートに使う識別子を返す
func (s *Snapshot) Identity() string {
	if s.SourceID != "" {
		return fmt.Sprintf("%s#%s", s.Provider, s.SourceID)
	}
	return fmt.Sprintf("%s/%s/%s/%s", s.Provider, s.Name, s.Venue, s.Date)
}

// Validate はスナップショットの検証を行う
// トランザクション開始前に呼び出す
func (s *Snapshot) Validate() error {
	if s.Provider == "" {
		return ErrProviderRequired
	}
	if s.Name == "" {
		return ErrNameRequired
	}
	if s.Venue == "" {
		return ErrVenueRequired
	}
	if s.Date == "" {
		return ErrDateRequired
	}
	for i, e := range s.Prices {
		if e.Category == "" {
			return fmt.Errorf("prices[%d]: %w", i, ErrCategoryRequired)
		}
		if e.PriceMissing {
			return fmt.Errorf("prices[%d] category=%q: %w", i, e.Category, ErrPriceRequired)
		}
		if e.Price.IsNegative() {
			return fmt.Errorf("prices[%d] category=%q: %w", i, e.Category, ErrNegativePrice)
		}
		if !e.Price.Equal(e.Price.Round(priceScale)) {
			return fmt.Errorf("prices[%d] category=%q price=%s: %w", i, e.Category, e.Price, ErrPriceScale)
		}
		if e.Price.GreaterThanOrEqual(maxPrice) {
			return fmt.Errorf("prices[%d] category=%q price=%s: %w", i, e.Category, e.Price, ErrPriceTooLarge)
		}
		if e.Remaining != nil && *e.Remaining < 0 {
			return fmt.Errorf("prices[%d] category=%q: %w", i, e.Category, ErrNegativeRemaining)
		}
	}
	return nil
}

// Normalize は照合に渡す価格エントリを返す
//   - 販売元が is_active = false としたエントリは存在しないものとして除外する
//   - カテゴリが重複する場合は後に現れたエントリを採用し、位置は最初の出現を保つ
func (s *Snapshot) Normalize() []price.Entry {
	index := make(map[string]int, len(s.Prices))
	out := make([]price.Entry, 0, len(s.Prices))
	for _, e := range s.Prices {
		if e.IsActive != nil && !*e.IsActive {
			if i, ok := index[e.Category]; ok {
				// 後から無効とされたカテゴリは以前の出現も取り消す
				out[i].Category = ""
			}
			continue
		}
		if i, ok := index[e.Category]; ok && out[i].Category != "" {
			out[i] = e
			continue
		}
		index[e.Category] = len(out)
		out = append(out, e)
	}

	result := out[:0]
	for _, e := range out {
		if e.Category != "" {
			result = append(result, e)
		}
	}
	return result
}
