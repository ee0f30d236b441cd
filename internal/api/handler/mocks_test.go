package handler

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sanosuguru/go-event-price-tracker/internal/application"
	"github.com/sanosuguru/go-event-price-tracker/internal/domain/event"
	"github.com/sanosuguru/go-event-price-tracker/internal/domain/price"
	"github.com/sanosuguru/go-event-price-tracker/internal/domain/snapshot"
	"github.com/sanosuguru/go-event-price-tracker/internal/domain/venue"
)

// MockReconcileService はReconcileServiceInterfaceのモック
type MockReconcileService struct {
	mock.Mock
}

func (m *MockReconcileService) Reconcile(ctx context.Context, snap snapshot.Snapshot) (*application.ReconcileResult, error) {
	args := m.Called(ctx, snap)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*application.ReconcileResult), args.Error(1)
}

func (m *MockReconcileService) ReconcileBatch(ctx context.Context, snaps []snapshot.Snapshot) *application.BatchReport {
	args := m.Called(ctx, snaps)
	return args.Get(0).(*application.BatchReport)
}

// MockSnapshotQueue はSnapshotQueueInterfaceのモック
type MockSnapshotQueue struct {
	mock.Mock
}

func (m *MockSnapshotQueue) Enqueue(ctx context.Context, snaps ...snapshot.Snapshot) error {
	args := m.Called(ctx, snaps)
	return args.Error(0)
}

// MockQueryService はQueryServiceInterfaceのモック
type MockQueryService struct {
	mock.Mock
}

func (m *MockQueryService) ListEvents(ctx context.Context, provider event.Provider, limit, offset int) ([]*event.Event, error) {
	args := m.Called(ctx, provider, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*event.Event), args.Error(1)
}

func (m *MockQueryService) GetEvent(ctx context.Context, id int64) (*event.Event, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*event.Event), args.Error(1)
}

func (m *MockQueryService) ListPrices(ctx context.Context, eventID int64, all bool) ([]*price.Price, error) {
	args := m.Called(ctx, eventID, all)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*price.Price), args.Error(1)
}

func (m *MockQueryService) GetHistory(ctx context.Context, eventID int64, category string) ([]*price.HistoryEntry, error) {
	args := m.Called(ctx, eventID, category)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*price.HistoryEntry), args.Error(1)
}

// MockVenueService はVenueServiceInterfaceのモック
type MockVenueService struct {
	mock.Mock
}

func (m *MockVenueService) RegisterCanonical(ctx context.Context, v *venue.CanonicalVenue) error {
	args := m.Called(ctx, v)
	return args.Error(0)
}

func (m *MockVenueService) RegisterAlias(ctx context.Context, rawName string, canonicalID int64) error {
	args := m.Called(ctx, rawName, canonicalID)
	return args.Error(0)
}

func (m *MockVenueService) ListUnmatched(ctx context.Context, limit, offset int) ([]venue.Unmatched, error) {
	args := m.Called(ctx, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]venue.Unmatched), args.Error(1)
}
