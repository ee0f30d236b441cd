package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sanosuguru/go-event-price-tracker/internal/domain/event"
	"github.com/sanosuguru/go-event-price-tracker/internal/domain/snapshot"
	"github.com/sanosuguru/go-event-price-tracker/internal/domain/transaction"
)

// IdentityStrategy はスナップショットを永続化されたイベントに対応付ける方法
// 同じ販売元には常に同じ戦略を使う。戦略を混在させるとイベントの履歴が分断される
type IdentityStrategy interface {
	// Name はログ用の戦略名
	Name() string
	// Validate は戦略固有の入力検証を行う
	Validate(s *snapshot.Snapshot) error
	// LockKey は同一イベントの照合を直列化するためのキー
	LockKey(s *snapshot.Snapshot) string
	// Resolve はイベントを取得または作成し、行ロックを保持した状態で返す
	// 作成した場合は true を返す
	Resolve(ctx context.Context, tx transaction.Tx, s *snapshot.Snapshot, attrs event.Attributes, now time.Time) (*event.Event, bool, error)
}

// NaturalKeyStrategy は (販売元, 名前, 会場, 日付) の完全一致でイベントを識別する
type NaturalKeyStrategy struct {
	events event.Repository
}

func NewNaturalKeyStrategy(events event.Repository) *NaturalKeyStrategy {
	return &NaturalKeyStrategy{events: events}
}

func (s *NaturalKeyStrategy) Name() string { return "natural_key" }

func (s *NaturalKeyStrategy) Validate(*snapshot.Snapshot) error { return nil }

func (s *NaturalKeyStrategy) LockKey(snap *snapshot.Snapshot) string {
	return "nk\x1f" + snap.Key().String()
}

// Resolve は行ロック付きで検索し、無ければ作成する
// 並行する照合に作成で先を越された場合は、相手のコミット後の行を再検索して更新する
func (s *NaturalKeyStrategy) Resolve(ctx context.Context, tx transaction.Tx, snap *snapshot.Snapshot, attrs event.Attributes, now time.Time) (*event.Event, bool, error) {
	key := snap.Key()

	ev, err := s.events.FindByKeyForUpdate(ctx, tx, key)
	if err == nil {
		return s.observe(ctx, tx, ev, attrs, now)
	}
	if !errors.Is(err, event.ErrEventNotFound) {
		return nil, false, fmt.Errorf("イベント検索に失敗: %w", err)
	}

	ev = event.NewEvent(key, "", attrs, now)
	err = s.events.Create(ctx, tx, ev)
	if err == nil {
		return ev, true, nil
	}
	if !errors.Is(err, event.ErrEventAlreadyExists) {
		return nil, false, fmt.Errorf("イベント作成に失敗: %w", err)
	}

	ev, err = s.events.FindByKeyForUpdate(ctx, tx, key)
	if err != nil {
		return nil, false, transaction.Transient(fmt.Errorf("作成競合後のイベント再検索に失敗: %w", err))
	}
	return s.observe(ctx, tx, ev, attrs, now)
}

func (s *NaturalKeyStrategy) observe(ctx context.Context, tx transaction.Tx, ev *event.Event, attrs event.Attributes, now time.Time) (*event.Event, bool, error) {
	ev.Observe(attrs, now)
	if err := s.events.Update(ctx, tx, ev); err != nil {
		return nil, false, fmt.Errorf("イベント更新に失敗: %w", err)
	}
	return ev, false, nil
}

// SourceKeyStrategy は販売元が採番したIDでイベントを識別する
// 名前・会場・日付は毎回上書きされる
type SourceKeyStrategy struct {
	events event.Repository
}

func NewSourceKeyStrategy(events event.Repository) *SourceKeyStrategy {
	return &SourceKeyStrategy{events: events}
}

func (s *SourceKeyStrategy) Name() string { return "source_key" }

func (s *SourceKeyStrategy) Validate(snap *snapshot.Snapshot) error {
	if snap.SourceID == "" {
		return snapshot.ErrSourceIDRequired
	}
	return nil
}

func (s *SourceKeyStrategy) LockKey(snap *snapshot.Snapshot) string {
	return "sk\x1f" + snap.SourceKey().String()
}

// Resolve は INSERT ... ON CONFLICT DO UPDATE で1文で取得または作成する
func (s *SourceKeyStrategy) Resolve(ctx context.Context, tx transaction.Tx, snap *snapshot.Snapshot, attrs event.Attributes, now time.Time) (*event.Event, bool, error) {
	ev := event.NewEvent(snap.Key(), snap.SourceID, attrs, now)
	created, err := s.events.UpsertBySourceKey(ctx, tx, ev)
	if err != nil {
		return nil, false, fmt.Errorf("イベントのupsertに失敗: %w", err)
	}
	return ev, created, nil
}

// IdentityRegistry は販売元ごとの識別戦略を保持する
type IdentityRegistry struct {
	fallback   IdentityStrategy
	byProvider map[event.Provider]IdentityStrategy
}

// NewIdentityRegistry は sourceKeyProviders に販売元IDでの識別を、それ以外に自然キーでの識別を割り当てる
func NewIdentityRegistry(events event.Repository, sourceKeyProviders []string) *IdentityRegistry {
	r := &IdentityRegistry{
		fallback:   NewNaturalKeyStrategy(events),
		byProvider: make(map[event.Provider]IdentityStrategy),
	}
	sourceKey := NewSourceKeyStrategy(events)
	for _, p := range sourceKeyProviders {
		r.byProvider[event.Provider(p)] = sourceKey
	}
	return r
}

// Register は販売元の識別戦略を上書きする
func (r *IdentityRegistry) Register(provider event.Provider, strategy IdentityStrategy) {
	r.byProvider[provider] = strategy
}

// For は販売元の識別戦略を返す
func (r *IdentityRegistry) For(provider event.Provider) IdentityStrategy {
	if s, ok := r.byProvider[provider]; ok {
		return s
	}
	return r.fallback
}
