package handler

import (
	"context"

	"github.com/sanosuguru/go-event-price-tracker/internal/application"
	"github.com/sanosuguru/go-event-price-tracker/internal/domain/event"
	"github.com/sanosuguru/go-event-price-tracker/internal/domain/price"
	"github.com/sanosuguru/go-event-price-tracker/internal/domain/snapshot"
	"github.com/sanosuguru/go-event-price-tracker/internal/domain/venue"
)

// ReconcileServiceInterface は照合サービスのインターフェース
type ReconcileServiceInterface interface {
	Reconcile(ctx context.Context, snap snapshot.Snapshot) (*application.ReconcileResult, error)
	ReconcileBatch(ctx context.Context, snaps []snapshot.Snapshot) *application.BatchReport
}

// SnapshotQueueInterface はスナップショットキューのインターフェース
type SnapshotQueueInterface interface {
	Enqueue(ctx context.Context, snaps ...snapshot.Snapshot) error
}

// QueryServiceInterface は参照系サービスのインターフェース
type QueryServiceInterface interface {
	ListEvents(ctx context.Context, provider event.Provider, limit, offset int) ([]*event.Event, error)
	GetEvent(ctx context.Context, id int64) (*event.Event, error)
	ListPrices(ctx context.Context, eventID int64, all bool) ([]*price.Price, error)
	GetHistory(ctx context.Context, eventID int64, category string) ([]*price.HistoryEntry, error)
}

// VenueServiceInterface は会場マスタ管理のインターフェース
type VenueServiceInterface interface {
	RegisterCanonical(ctx context.Context, v *venue.CanonicalVenue) error
	RegisterAlias(ctx context.Context, rawName string, canonicalID int64) error
	ListUnmatched(ctx context.Context, limit, offset int) ([]venue.Unmatched, error)
}
