package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/sanosuguru/go-event-price-tracker/internal/domain/transaction"
	"github.com/sanosuguru/go-event-price-tracker/internal/domain/venue"
)

// VenueRepository は会場マスタのPostgreSQL実装
type VenueRepository struct {
	db *sqlx.DB
}

// NewVenueRepository はVenueRepositoryを作成する
func NewVenueRepository(db *sqlx.DB) *VenueRepository {
	return &VenueRepository{db: db}
}

// FindAlias は手動登録された別名から正規会場IDを取得する
func (r *VenueRepository) FindAlias(ctx context.Context, tx transaction.Tx, normalized string) (int64, error) {
	sqlxTx, err := requireTx(tx)
	if err != nil {
		return 0, err
	}

	var id int64
	err = sqlxTx.GetContext(ctx, &id, `SELECT canonical_id FROM manual_venue_map WHERE raw_name = $1`, normalized)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, venue.ErrVenueNotFound
		}
		return 0, fmt.Errorf("会場別名の取得に失敗しました: %w", translateError(err))
	}
	return id, nil
}

// FindSimilar は pg_trgm の類似度が最も高い正規会場を取得する
func (r *VenueRepository) FindSimilar(ctx context.Context, tx transaction.Tx, normalized string, threshold float64) (*venue.Match, error) {
	sqlxTx, err := requireTx(tx)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT id, similarity(normalized_name, $1) AS score
		FROM canonical_venues
		WHERE similarity(normalized_name, $1) >= $2
		ORDER BY score DESC, id
		LIMIT 1
	`
	var row struct {
		ID    int64   `db:"id"`
		Score float64 `db:"score"`
	}
	if err := sqlxTx.GetContext(ctx, &row, query, normalized, threshold); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, venue.ErrVenueNotFound
		}
		return nil, fmt.Errorf("会場の類似検索に失敗しました: %w", translateError(err))
	}
	return &venue.Match{VenueID: row.ID, Method: venue.MatchFuzzy, Score: row.Score}, nil
}

// RecordUnmatched は解決できなかった会場名を記録する
func (r *VenueRepository) RecordUnmatched(ctx context.Context, tx transaction.Tx, u venue.Unmatched) error {
	sqlxTx, err := requireTx(tx)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO unmatched_venues (provider, raw_name, normalized_name) VALUES ($1, $2, $3)
		ON CONFLICT (provider, raw_name) DO NOTHING
	`
	if _, err := sqlxTx.ExecContext(ctx, query, u.Provider, u.RawName, venue.Normalize(u.RawName)); err != nil {
		return fmt.Errorf("未解決会場の記録に失敗しました: %w", translateError(err))
	}
	return nil
}

// UpsertCanonical は正規会場を名前で登録・更新する
func (r *VenueRepository) UpsertCanonical(ctx context.Context, v *venue.CanonicalVenue) error {
	query := `
		INSERT INTO canonical_venues (name, normalized_name, city, capacity)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (name) DO UPDATE
		SET normalized_name = EXCLUDED.normalized_name, city = EXCLUDED.city, capacity = EXCLUDED.capacity
		RETURNING id
	`
	err := r.db.QueryRowContext(ctx, query, v.Name, venue.Normalize(v.Name), v.City, v.Capacity).Scan(&v.ID)
	if err != nil {
		return fmt.Errorf("正規会場の登録に失敗しました: %w", translateError(err))
	}
	return nil
}

// UpsertAlias は別名を登録・更新する。rawName は正規化して保存する
// 同じ正規化名の未解決会場は解決済みとして同じトランザクションで削除する
func (r *VenueRepository) UpsertAlias(ctx context.Context, rawName string, canonicalID int64) (err error) {
	normalized := venue.Normalize(rawName)

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクション開始に失敗しました: %w", translateError(err))
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	query := `
		INSERT INTO manual_venue_map (raw_name, canonical_id) VALUES ($1, $2)
		ON CONFLICT (raw_name) DO UPDATE SET canonical_id = EXCLUDED.canonical_id
	`
	if _, err = tx.ExecContext(ctx, query, normalized, canonicalID); err != nil {
		return fmt.Errorf("会場別名の登録に失敗しました: %w", translateError(err))
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM unmatched_venues WHERE normalized_name = $1`, normalized); err != nil {
		return fmt.Errorf("未解決会場の削除に失敗しました: %w", translateError(err))
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("コミットに失敗しました: %w", translateError(err))
	}
	return nil
}

// ListUnmatched は未解決の会場名一覧を新しい順に取得する
func (r *VenueRepository) ListUnmatched(ctx context.Context, limit, offset int) ([]venue.Unmatched, error) {
	query := `SELECT provider, raw_name FROM unmatched_venues ORDER BY created_at DESC, id DESC LIMIT $1 OFFSET $2`

	var rows []struct {
		Provider string `db:"provider"`
		RawName  string `db:"raw_name"`
	}
	if err := r.db.SelectContext(ctx, &rows, query, limit, offset); err != nil {
		return nil, fmt.Errorf("未解決会場の取得に失敗しました: %w", translateError(err))
	}

	out := make([]venue.Unmatched, len(rows))
	for i, row := range rows {
		out[i] = venue.Unmatched{Provider: row.Provider, RawName: row.RawName}
	}
	return out, nil
}

var _ venue.Repository = (*VenueRepository)(nil)
