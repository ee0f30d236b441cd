package price

import (
	"context"

	"github.com/sanosuguru/go-event-price-tracker/internal/domain/transaction"
)

// Repository は価格リポジトリのインターフェース
type Repository interface {
	// ListActive はイベントの有効な価格一覧を取得する（トランザクション必須）
	ListActive(ctx context.Context, tx transaction.Tx, eventID int64) ([]*Price, error)

	// Insert は新しい有効な価格を作成する（トランザクション必須）
	Insert(ctx context.Context, tx transaction.Tx, p *Price) error

	// Update は価格・売切・残席数と last_seen を更新する（トランザクション必須）
	Update(ctx context.Context, tx transaction.Tx, p *Price) error

	// Deactivate は価格を無効化する。行は削除しない（トランザクション必須）
	Deactivate(ctx context.Context, tx transaction.Tx, p *Price) error

	// ListByEvent はイベントの価格一覧を取得する
	ListByEvent(ctx context.Context, eventID int64, activeOnly bool) ([]*Price, error)
}

// HistoryRepository は価格履歴リポジトリのインターフェース
// 追記と参照のみを提供する
type HistoryRepository interface {
	// Append は履歴エントリを追記する（トランザクション必須）
	Append(ctx context.Context, tx transaction.Tx, h *HistoryEntry) error

	// ListByEvent はイベントの履歴を change_date 順に取得する。category が空なら全カテゴリ
	ListByEvent(ctx context.Context, eventID int64, category string) ([]*HistoryEntry, error)
}
