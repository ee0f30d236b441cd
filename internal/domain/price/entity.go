package price

import (
	"time"

	"github.com/shopspring/decimal"
)

// ChangeType は価格履歴の変更種別を表す
type ChangeType string

const (
	ChangeAdded   ChangeType = "ADDED"
	ChangeUpdated ChangeType = "UPDATED"
	ChangeRemoved ChangeType = "REMOVED"
)

// Entry はスナップショット側の価格カテゴリ（永続化されない）
type Entry struct {
	Category  string
	Price     decimal.Decimal
	SoldOut   bool
	Remaining *int
	IsActive  *bool // 販売元が提供する場合のみ

	// PriceMissing は入力に価格が含まれていなかった（null または欠落）ことを表す
	// Price のゼロ値と区別するために持つ
	PriceMissing bool
}

// Price は (イベント, カテゴリ) ごとの永続化された価格
// 同一 (イベント, カテゴリ) で is_active = true の行は高々1行
type Price struct {
	ID        int64
	EventID   int64
	Category  string
	Amount    decimal.Decimal
	SoldOut   bool
	Remaining *int
	IsActive  bool
	CreatedAt time.Time
	LastSeen  time.Time
}

// HistoryEntry は価格変更の追記専用監査レコード
// 一度書き込まれた後は更新・削除されない
type HistoryEntry struct {
	ID         int64
	EventID    int64
	Category   string
	Amount     decimal.Decimal
	SoldOut    bool
	Remaining  *int
	ChangeDate time.Time
	ChangeType ChangeType
}

// newPrice はエントリから新しい有効な価格行を作成する
func newPrice(eventID int64, e Entry, now time.Time) *Price {
	return &Price{
		EventID:   eventID,
		Category:  e.Category,
		Amount:    e.Price,
		SoldOut:   e.SoldOut,
		Remaining: copyInt(e.Remaining),
		IsActive:  true,
		CreatedAt: now,
		LastSeen:  now,
	}
}

// snapshot は現在の値を持つ履歴エントリを作成する
func (p *Price) snapshot(t ChangeType, now time.Time) *HistoryEntry {
	return &HistoryEntry{
		EventID:    p.EventID,
		Category:   p.Category,
		Amount:     p.Amount,
		SoldOut:    p.SoldOut,
		Remaining:  copyInt(p.Remaining),
		ChangeDate: now,
		ChangeType: t,
	}
}

// sameState は履歴対象の状態 (price, sold_out) が一致するかを返す
func (p *Price) sameState(e Entry) bool {
	return p.Amount.Equal(e.Price) && p.SoldOut == e.SoldOut
}

// sameRemaining は残席数が一致するかを返す
func (p *Price) sameRemaining(e Entry) bool {
	if p.Remaining == nil || e.Remaining == nil {
		return p.Remaining == nil && e.Remaining == nil
	}
	return *p.Remaining == *e.Remaining
}

func copyInt(v *int) *int {
	if v == nil {
		return nil
	}
	n := *v
	return &n
}
