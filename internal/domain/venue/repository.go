package venue

import (
	"context"

	"github.com/sanosuguru/go-event-price-tracker/internal/domain/transaction"
)

// Repository は会場マスタのリポジトリインターフェース
type Repository interface {
	// FindAlias は手動登録された別名から正規会場IDを取得する。見つからない場合は ErrVenueNotFound
	FindAlias(ctx context.Context, tx transaction.Tx, normalized string) (int64, error)

	// FindSimilar は類似度がしきい値以上で最も近い正規会場を取得する。見つからない場合は ErrVenueNotFound
	FindSimilar(ctx context.Context, tx transaction.Tx, normalized string, threshold float64) (*Match, error)

	// RecordUnmatched は解決できなかった会場名を記録する。既に記録済みなら何もしない
	RecordUnmatched(ctx context.Context, tx transaction.Tx, u Unmatched) error

	// UpsertCanonical は正規会場を名前で登録・更新する
	UpsertCanonical(ctx context.Context, v *CanonicalVenue) error

	// UpsertAlias は別名を登録・更新し、同じ正規化名の未解決会場を削除する
	UpsertAlias(ctx context.Context, rawName string, canonicalID int64) error

	// ListUnmatched は未解決の会場名一覧を取得する
	ListUnmatched(ctx context.Context, limit, offset int) ([]Unmatched, error)
}
