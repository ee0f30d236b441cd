package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/sanosuguru/go-event-price-tracker/internal/domain/event"
	"github.com/sanosuguru/go-event-price-tracker/internal/domain/transaction"
)

const eventColumns = `id, provider, source_id, name, venue, date, genre, promoters, artists,
	description, canonical_venue_id, created_at, last_seen`

// eventRow はDBの行を表す構造体
type eventRow struct {
	ID               int64          `db:"id"`
	Provider         string         `db:"provider"`
	SourceID         *string        `db:"source_id"`
	Name             string         `db:"name"`
	Venue            string         `db:"venue"`
	Date             string         `db:"date"`
	Genre            string         `db:"genre"`
	Promoters        pq.StringArray `db:"promoters"`
	Artists          pq.StringArray `db:"artists"`
	Description      string         `db:"description"`
	CanonicalVenueID *int64         `db:"canonical_venue_id"`
	CreatedAt        time.Time      `db:"created_at"`
	LastSeen         time.Time      `db:"last_seen"`
}

// toEntity はeventRowをEventエンティティに変換する
func (r *eventRow) toEntity() *event.Event {
	var sourceID string
	if r.SourceID != nil {
		sourceID = *r.SourceID
	}
	return &event.Event{
		ID:               r.ID,
		Provider:         event.Provider(r.Provider),
		SourceID:         sourceID,
		Name:             r.Name,
		Venue:            r.Venue,
		Date:             r.Date,
		Genre:            r.Genre,
		Promoters:        []string(r.Promoters),
		Artists:          []string(r.Artists),
		Description:      r.Description,
		CanonicalVenueID: r.CanonicalVenueID,
		CreatedAt:        r.CreatedAt,
		LastSeen:         r.LastSeen,
	}
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func stringArray(v []string) pq.StringArray {
	if v == nil {
		return pq.StringArray{}
	}
	return pq.StringArray(v)
}

// EventRepository はイベントリポジトリのPostgreSQL実装
type EventRepository struct {
	db *sqlx.DB
}

// NewEventRepository はEventRepositoryを作成する
func NewEventRepository(db *sqlx.DB) *EventRepository {
	return &EventRepository{db: db}
}

// FindByKeyForUpdate は自然キーでイベントを取得し行ロックを取る
// 同一イベントの照合はこのロックで直列化される
func (r *EventRepository) FindByKeyForUpdate(ctx context.Context, tx transaction.Tx, key event.Key) (*event.Event, error) {
	sqlxTx, err := requireTx(tx)
	if err != nil {
		return nil, err
	}

	query := `SELECT ` + eventColumns + ` FROM events
		WHERE provider = $1 AND name = $2 AND venue = $3 AND date = $4 AND source_id IS NULL
		FOR UPDATE`

	var row eventRow
	if err := sqlxTx.GetContext(ctx, &row, query, string(key.Provider), key.Name, key.Venue, key.Date); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, event.ErrEventNotFound
		}
		return nil, fmt.Errorf("イベント取得に失敗しました: %w", translateError(err))
	}
	return row.toEntity(), nil
}

// Create は新しいイベントを作成する
// 並行する照合が先に同じ自然キーで作成していた場合は event.ErrEventAlreadyExists を返す
func (r *EventRepository) Create(ctx context.Context, tx transaction.Tx, e *event.Event) error {
	sqlxTx, err := requireTx(tx)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO events (provider, name, venue, date, genre, promoters, artists, description,
			canonical_venue_id, created_at, last_seen)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (provider, name, venue, date) WHERE source_id IS NULL DO NOTHING
		RETURNING id
	`
	err = sqlxTx.QueryRowContext(ctx, query,
		string(e.Provider), e.Name, e.Venue, e.Date, e.Genre,
		stringArray(e.Promoters), stringArray(e.Artists), e.Description,
		e.CanonicalVenueID, e.CreatedAt, e.LastSeen,
	).Scan(&e.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return event.ErrEventAlreadyExists
		}
		return fmt.Errorf("イベント作成に失敗しました: %w", translateError(err))
	}
	return nil
}

// Update は属性と last_seen を更新する
// canonical_venue_id が nil の場合は既存の値を保持する
func (r *EventRepository) Update(ctx context.Context, tx transaction.Tx, e *event.Event) error {
	sqlxTx, err := requireTx(tx)
	if err != nil {
		return err
	}

	query := `
		UPDATE events
		SET genre = $1, promoters = $2, artists = $3, description = $4,
		    canonical_venue_id = COALESCE($5, canonical_venue_id), last_seen = $6
		WHERE id = $7
	`
	result, err := sqlxTx.ExecContext(ctx, query,
		e.Genre, stringArray(e.Promoters), stringArray(e.Artists), e.Description,
		e.CanonicalVenueID, e.LastSeen, e.ID,
	)
	if err != nil {
		return fmt.Errorf("イベント更新に失敗しました: %w", translateError(err))
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新結果の確認に失敗しました: %w", err)
	}
	if rowsAffected == 0 {
		return event.ErrEventNotFound
	}
	return nil
}

// UpsertBySourceKey は販売元IDでイベントを作成または更新する
// 作成した場合は true を返す。ON CONFLICT DO UPDATE により行ロックも取得される
func (r *EventRepository) UpsertBySourceKey(ctx context.Context, tx transaction.Tx, e *event.Event) (bool, error) {
	sqlxTx, err := requireTx(tx)
	if err != nil {
		return false, err
	}

	query := `
		INSERT INTO events (provider, source_id, name, venue, date, genre, promoters, artists, description,
			canonical_venue_id, created_at, last_seen)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (provider, source_id) WHERE source_id IS NOT NULL DO UPDATE
		SET name               = EXCLUDED.name,
		    venue              = EXCLUDED.venue,
		    date               = EXCLUDED.date,
		    genre              = EXCLUDED.genre,
		    promoters          = EXCLUDED.promoters,
		    artists            = EXCLUDED.artists,
		    description        = EXCLUDED.description,
		    canonical_venue_id = COALESCE(EXCLUDED.canonical_venue_id, events.canonical_venue_id),
		    last_seen          = EXCLUDED.last_seen
		RETURNING id, created_at, canonical_venue_id, (xmax = 0) AS inserted
	`
	var inserted bool
	err = sqlxTx.QueryRowContext(ctx, query,
		string(e.Provider), nullableString(e.SourceID), e.Name, e.Venue, e.Date, e.Genre,
		stringArray(e.Promoters), stringArray(e.Artists), e.Description,
		e.CanonicalVenueID, e.CreatedAt, e.LastSeen,
	).Scan(&e.ID, &e.CreatedAt, &e.CanonicalVenueID, &inserted)
	if err != nil {
		return false, fmt.Errorf("イベントのupsertに失敗しました: %w", translateError(err))
	}
	return inserted, nil
}

// GetByID はIDからイベントを取得する
func (r *EventRepository) GetByID(ctx context.Context, id int64) (*event.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE id = $1`

	var row eventRow
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, event.ErrEventNotFound
		}
		return nil, fmt.Errorf("イベント取得に失敗しました: %w", translateError(err))
	}
	return row.toEntity(), nil
}

// List はイベント一覧を last_seen の新しい順に取得する
func (r *EventRepository) List(ctx context.Context, filter event.ListFilter) ([]*event.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events
		WHERE ($1 = '' OR provider = $1)
		ORDER BY last_seen DESC, id DESC
		LIMIT $2 OFFSET $3`

	var rows []eventRow
	if err := r.db.SelectContext(ctx, &rows, query, string(filter.Provider), filter.Limit, filter.Offset); err != nil {
		return nil, fmt.Errorf("イベント一覧取得に失敗しました: %w", translateError(err))
	}

	events := make([]*event.Event, len(rows))
	for i, row := range rows {
		events[i] = row.toEntity()
	}
	return events, nil
}

// インターフェースを満たしているか確認
var _ event.Repository = (*EventRepository)(nil)
