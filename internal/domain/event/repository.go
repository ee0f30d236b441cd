package event

import (
	"context"

	"github.com/sanosuguru/go-event-price-tracker/internal/domain/transaction"
)

// ListFilter はイベント一覧の取得条件
type ListFilter struct {
	Provider Provider
	Limit    int
	Offset   int
}

// Repository はイベントリポジトリのインターフェース
type Repository interface {
	// FindByKeyForUpdate は自然キーでイベントを検索し行ロックを取得する（トランザクション必須）
	FindByKeyForUpdate(ctx context.Context, tx transaction.Tx, key Key) (*Event, error)

	// Create は新しいイベントを作成する（トランザクション必須）
	// 同じキーのイベントが既に存在する場合は ErrEventAlreadyExists を返す
	Create(ctx context.Context, tx transaction.Tx, e *Event) error

	// Update は属性と last_seen を更新する（トランザクション必須）
	Update(ctx context.Context, tx transaction.Tx, e *Event) error

	// UpsertBySourceKey は販売元IDで挿入または更新し、行ロックを保持する（トランザクション必須）
	// 作成された場合は true を返す
	UpsertBySourceKey(ctx context.Context, tx transaction.Tx, e *Event) (bool, error)

	// GetByID はIDからイベントを取得する
	GetByID(ctx context.Context, id int64) (*Event, error)

	// List はイベント一覧を取得する
	List(ctx context.Context, filter ListFilter) ([]*Event, error)
}
