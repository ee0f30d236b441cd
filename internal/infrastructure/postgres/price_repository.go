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

const priceColumns = `id, event_id, category, price, sold_out, remaining, is_active, created_at, last_seen`

// priceRow はDBの行を表す構造体
type priceRow struct {
	ID        int64           `db:"id"`
	EventID   int64           `db:"event_id"`
	Category  string          `db:"category"`
	Price     decimal.Decimal `db:"price"`
	SoldOut   bool            `db:"sold_out"`
	Remaining *int            `db:"remaining"`
	IsActive  bool            `db:"is_active"`
	CreatedAt time.Time       `db:"created_at"`
	LastSeen  time.Time       `db:"last_seen"`
}

func (r *priceRow) toEntity() *price.Price {
	return &price.Price{
		ID:        r.ID,
		EventID:   r.EventID,
		Category:  r.Category,
		Amount:    r.Price,
		SoldOut:   r.SoldOut,
		Remaining: r.Remaining,
		IsActive:  r.IsActive,
		CreatedAt: r.CreatedAt,
		LastSeen:  r.LastSeen,
	}
}

func toPrices(rows []priceRow) []*price.Price {
	prices := make([]*price.Price, len(rows))
	for i := range rows {
		prices[i] = rows[i].toEntity()
	}
	return prices
}

// PriceRepository は価格リポジトリのPostgreSQL実装
type PriceRepository struct {
	db *sqlx.DB
}

// NewPriceRepository はPriceRepositoryを作成する
func NewPriceRepository(db *sqlx.DB) *PriceRepository {
	return &PriceRepository{db: db}
}

// ListActive はイベントの有効な価格一覧を取得する
func (r *PriceRepository) ListActive(ctx context.Context, tx transaction.Tx, eventID int64) ([]*price.Price, error) {
	sqlxTx, err := requireTx(tx)
	if err != nil {
		return nil, err
	}

	query := `SELECT ` + priceColumns + ` FROM prices WHERE event_id = $1 AND is_active ORDER BY category`

	var rows []priceRow
	if err := sqlxTx.SelectContext(ctx, &rows, query, eventID); err != nil {
		return nil, fmt.Errorf("有効な価格の取得に失敗しました: %w", translateError(err))
	}
	return toPrices(rows), nil
}

// Insert は新しい有効な価格を作成する
func (r *PriceRepository) Insert(ctx context.Context, tx transaction.Tx, p *price.Price) error {
	sqlxTx, err := requireTx(tx)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO prices (event_id, category, price, sold_out, remaining, is_active, created_at, last_seen)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`
	err = sqlxTx.QueryRowContext(ctx, query,
		p.EventID, p.Category, p.Amount, p.SoldOut, p.Remaining, p.IsActive, p.CreatedAt, p.LastSeen,
	).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("価格作成に失敗しました: %w", translateError(err))
	}
	return nil
}

// Update は有効な価格の値と last_seen を更新する
func (r *PriceRepository) Update(ctx context.Context, tx transaction.Tx, p *price.Price) error {
	query := `
		UPDATE prices
		SET price = $1, sold_out = $2, remaining = $3, last_seen = $4
		WHERE id = $5 AND is_active
	`
	return r.execActive(ctx, tx, "価格更新", query, p.Amount, p.SoldOut, p.Remaining, p.LastSeen, p.ID)
}

// Deactivate は価格を無効化する。行は削除しない
func (r *PriceRepository) Deactivate(ctx context.Context, tx transaction.Tx, p *price.Price) error {
	query := `UPDATE prices SET is_active = FALSE, last_seen = $1 WHERE id = $2 AND is_active`
	return r.execActive(ctx, tx, "価格の無効化", query, p.LastSeen, p.ID)
}

// execActive は有効な1行を対象とする更新を実行する
// 対象が見つからない場合は price.ErrActivePriceMissing を返す
func (r *PriceRepository) execActive(ctx context.Context, tx transaction.Tx, op, query string, args ...any) error {
	sqlxTx, err := requireTx(tx)
	if err != nil {
		return err
	}

	result, err := sqlxTx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%sに失敗しました: %w", op, translateError(err))
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新結果の確認に失敗しました: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%s: %w", op, price.ErrActivePriceMissing)
	}
	return nil
}

// ListByEvent はイベントの価格一覧を取得する
func (r *PriceRepository) ListByEvent(ctx context.Context, eventID int64, activeOnly bool) ([]*price.Price, error) {
	query := `SELECT ` + priceColumns + ` FROM prices
		WHERE event_id = $1 AND ($2 = FALSE OR is_active)
		ORDER BY category, id`

	var rows []priceRow
	if err := r.db.SelectContext(ctx, &rows, query, eventID, activeOnly); err != nil {
		return nil, fmt.Errorf("価格一覧取得に失敗しました: %w", translateError(err))
	}
	return toPrices(rows), nil
}

var _ price.Repository = (*PriceRepository)(nil)
