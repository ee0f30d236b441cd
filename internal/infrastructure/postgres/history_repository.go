package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/sanosuguru/go-event-price-tracker/internal/domain/price"
	"github.com/sanosuguru/go-event-price-tracker/internal/domain/transaction"
)

type historyRow struct {
	ID         int64           `db:"id"`
	EventID    int64           `db:"event_id"`
	Category   string          `db:"category"`
	Price      decimal.Decimal `db:"price"`
	SoldOut    bool            `db:"sold_out"`
	Remaining  *int            `db:"remaining"`
	ChangeDate time.Time       `db:"change_date"`
	ChangeType string          `db:"change_type"`
}

// HistoryRepository は価格履歴の追記専用リポジトリ
type HistoryRepository struct {
	db *sqlx.DB
}

// NewHistoryRepository はHistoryRepositoryを作成する
func NewHistoryRepository(db *sqlx.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// Append は履歴エントリを追記する
func (r *HistoryRepository) Append(ctx context.Context, tx transaction.Tx, h *price.HistoryEntry) error {
	sqlxTx, err := requireTx(tx)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO price_history (event_id, category, price, sold_out, remaining, change_date, change_type)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`
	err = sqlxTx.QueryRowContext(ctx, query,
		h.EventID, h.Category, h.Amount, h.SoldOut, h.Remaining, h.ChangeDate, string(h.ChangeType),
	).Scan(&h.ID)
	if err != nil {
		return fmt.Errorf("価格履歴の追記に失敗しました: %w", translateError(err))
	}
	return nil
}

// ListByEvent はイベントの履歴を change_date, id 順に取得する
func (r *HistoryRepository) ListByEvent(ctx context.Context, eventID int64, category string) ([]*price.HistoryEntry, error) {
	query := `
		SELECT id, event_id, category, price, sold_out, remaining, change_date, change_type
		FROM price_history
		WHERE event_id = $1 AND ($2 = '' OR category = $2)
		ORDER BY change_date, id
	`

	var rows []historyRow
	if err := r.db.SelectContext(ctx, &rows, query, eventID, category); err != nil {
		return nil, fmt.Errorf("価格履歴の取得に失敗しました: %w", translateError(err))
	}

	entries := make([]*price.HistoryEntry, len(rows))
	for i, row := range rows {
		entries[i] = &price.HistoryEntry{
			ID:         row.ID,
			EventID:    row.EventID,
			Category:   row.Category,
			Amount:     row.Price,
			SoldOut:    row.SoldOut,
			Remaining:  row.Remaining,
			ChangeDate: row.ChangeDate,
			ChangeType: price.ChangeType(row.ChangeType),
		}
	}
	return entries, nil
}

var _ price.HistoryRepository = (*HistoryRepository)(nil)
