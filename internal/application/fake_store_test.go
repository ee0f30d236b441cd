package application

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/sanosuguru/go-event-price-tracker/internal/domain/event"
	"github.com/sanosuguru/go-event-price-tracker/internal/domain/price"
	"github.com/sanosuguru/go-event-price-tracker/internal/domain/transaction"
	"github.com/sanosuguru/go-event-price-tracker/internal/domain/venue"
)

// memState はインメモリストアの内容。トランザクション開始時に複製し、ロールバック時に戻す
type memState struct {
	events    []event.Event
	prices    []price.Price
	history   []price.HistoryEntry
	aliases   map[string]int64
	canonical []venue.CanonicalVenue
	unmatched []venue.Unmatched
	nextID    int64
}

func (s *memState) clone() *memState {
	c := &memState{
		events:    append([]event.Event(nil), s.events...),
		prices:    append([]price.Price(nil), s.prices...),
		history:   append([]price.HistoryEntry(nil), s.history...),
		aliases:   make(map[string]int64, len(s.aliases)),
		canonical: append([]venue.CanonicalVenue(nil), s.canonical...),
		unmatched: append([]venue.Unmatched(nil), s.unmatched...),
		nextID:    s.nextID,
	}
	for k, v := range s.aliases {
		c.aliases[k] = v
	}
	return c
}

func (s *memState) id() int64 {
	s.nextID++
	return s.nextID
}

// memStore はトランザクションを直列に実行するインメモリの永続化層
// 1つのトランザクションがコミットまたはロールバックされるまで他の Begin は待たされる
type memStore struct {
	txMu  sync.Mutex
	mu    sync.Mutex
	state *memState

	// failPriceWriteAt が正の場合、その回数目の価格書き込みで failErr を返す
	failPriceWriteAt int
	failErr          error
	priceWrites      int
	begins           int
}

func newMemStore() *memStore {
	return &memStore{state: &memState{aliases: map[string]int64{}}}
}

type memTx struct {
	store  *memStore
	backup *memState
	done   bool
}

func (t *memTx) Commit() error {
	if t.done {
		return errors.New("トランザクションは終了しています")
	}
	t.done = true
	t.store.txMu.Unlock()
	return nil
}

func (t *memTx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	t.store.mu.Lock()
	t.store.state = t.backup
	t.store.mu.Unlock()
	t.store.txMu.Unlock()
	return nil
}

func (s *memStore) Begin(ctx context.Context) (transaction.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, transaction.Transient(err)
	}
	s.txMu.Lock()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.begins++
	return &memTx{store: s, backup: s.state.clone()}, nil
}

func (s *memStore) priceWrite() error {
	s.priceWrites++
	if s.failPriceWriteAt > 0 && s.priceWrites == s.failPriceWriteAt {
		return s.failErr
	}
	return nil
}

// snapshotState は比較用に現在の内容を複製して返す
func (s *memStore) snapshotState() *memState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

func (s *memStore) activeCount(eventID int64, category string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, p := range s.state.prices {
		if p.EventID == eventID && p.Category == category && p.IsActive {
			n++
		}
	}
	return n
}

func (s *memStore) historyFor(eventID int64, category string) []price.HistoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []price.HistoryEntry
	for _, h := range s.state.history {
		if h.EventID == eventID && (category == "" || h.Category == category) {
			out = append(out, h)
		}
	}
	return out
}

func (s *memStore) eventCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.state.events)
}

func requireMemTx(tx transaction.Tx) error {
	if t, ok := tx.(*memTx); !ok || t.done {
		return errors.New("トランザクションが必要です")
	}
	return nil
}

// --- event.Repository ---

type memEventRepo struct{ s *memStore }

func (r *memEventRepo) FindByKeyForUpdate(_ context.Context, tx transaction.Tx, key event.Key) (*event.Event, error) {
	if err := requireMemTx(tx); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, e := range r.s.state.events {
		if e.SourceID == "" && e.Key() == key {
			ev := e
			return &ev, nil
		}
	}
	return nil, event.ErrEventNotFound
}

func (r *memEventRepo) Create(_ context.Context, tx transaction.Tx, e *event.Event) error {
	if err := requireMemTx(tx); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.state.events {
		if existing.SourceID == "" && existing.Key() == e.Key() {
			return event.ErrEventAlreadyExists
		}
	}
	e.ID = r.s.state.id()
	r.s.state.events = append(r.s.state.events, *e)
	return nil
}

func (r *memEventRepo) Update(_ context.Context, tx transaction.Tx, e *event.Event) error {
	if err := requireMemTx(tx); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i := range r.s.state.events {
		if r.s.state.events[i].ID == e.ID {
			r.s.state.events[i] = *e
			return nil
		}
	}
	return event.ErrEventNotFound
}

func (r *memEventRepo) UpsertBySourceKey(_ context.Context, tx transaction.Tx, e *event.Event) (bool, error) {
	if err := requireMemTx(tx); err != nil {
		return false, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i, existing := range r.s.state.events {
		if existing.Provider == e.Provider && existing.SourceID != "" && existing.SourceID == e.SourceID {
			e.ID = existing.ID
			e.CreatedAt = existing.CreatedAt
			if e.CanonicalVenueID == nil {
				e.CanonicalVenueID = existing.CanonicalVenueID
			}
			r.s.state.events[i] = *e
			return false, nil
		}
	}
	e.ID = r.s.state.id()
	r.s.state.events = append(r.s.state.events, *e)
	return true, nil
}

func (r *memEventRepo) GetByID(_ context.Context, id int64) (*event.Event, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, e := range r.s.state.events {
		if e.ID == id {
			ev := e
			return &ev, nil
		}
	}
	return nil, event.ErrEventNotFound
}

func (r *memEventRepo) List(_ context.Context, f event.ListFilter) ([]*event.Event, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*event.Event
	for _, e := range r.s.state.events {
		if f.Provider == "" || e.Provider == f.Provider {
			ev := e
			out = append(out, &ev)
		}
	}
	if f.Offset >= len(out) {
		return []*event.Event{}, nil
	}
	out = out[f.Offset:]
	if len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// --- price.Repository ---

type memPriceRepo struct{ s *memStore }

func (r *memPriceRepo) ListActive(_ context.Context, tx transaction.Tx, eventID int64) ([]*price.Price, error) {
	if err := requireMemTx(tx); err != nil {
		return nil, err
	}
	return r.list(eventID, true), nil
}

func (r *memPriceRepo) list(eventID int64, activeOnly bool) []*price.Price {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []*price.Price{}
	for _, p := range r.s.state.prices {
		if p.EventID == eventID && (!activeOnly || p.IsActive) {
			cp := p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Category < out[j].Category })
	return out
}

func (r *memPriceRepo) Insert(_ context.Context, tx transaction.Tx, p *price.Price) error {
	if err := requireMemTx(tx); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.priceWrite(); err != nil {
		return err
	}
	for _, existing := range r.s.state.prices {
		if existing.EventID == p.EventID && existing.Category == p.Category && existing.IsActive {
			return price.ErrMultipleActivePrices
		}
	}
	p.ID = r.s.state.id()
	r.s.state.prices = append(r.s.state.prices, *p)
	return nil
}

func (r *memPriceRepo) Update(_ context.Context, tx transaction.Tx, p *price.Price) error {
	return r.modify(tx, p.ID, func(row *price.Price) {
		row.Amount = p.Amount
		row.SoldOut = p.SoldOut
		row.Remaining = p.Remaining
		row.LastSeen = p.LastSeen
	})
}

func (r *memPriceRepo) Deactivate(_ context.Context, tx transaction.Tx, p *price.Price) error {
	return r.modify(tx, p.ID, func(row *price.Price) {
		row.IsActive = false
		row.LastSeen = p.LastSeen
	})
}

func (r *memPriceRepo) modify(tx transaction.Tx, id int64, fn func(row *price.Price)) error {
	if err := requireMemTx(tx); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.priceWrite(); err != nil {
		return err
	}
	for i := range r.s.state.prices {
		if r.s.state.prices[i].ID == id && r.s.state.prices[i].IsActive {
			fn(&r.s.state.prices[i])
			return nil
		}
	}
	return price.ErrActivePriceMissing
}

func (r *memPriceRepo) ListByEvent(_ context.Context, eventID int64, activeOnly bool) ([]*price.Price, error) {
	return r.list(eventID, activeOnly), nil
}

// --- price.HistoryRepository ---

type memHistoryRepo struct{ s *memStore }

func (r *memHistoryRepo) Append(_ context.Context, tx transaction.Tx, h *price.HistoryEntry) error {
	if err := requireMemTx(tx); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	h.ID = r.s.state.id()
	r.s.state.history = append(r.s.state.history, *h)
	return nil
}

func (r *memHistoryRepo) ListByEvent(_ context.Context, eventID int64, category string) ([]*price.HistoryEntry, error) {
	entries := r.s.historyFor(eventID, category)
	out := make([]*price.HistoryEntry, len(entries))
	for i := range entries {
		out[i] = &entries[i]
	}
	return out, nil
}

// --- venue.Repository ---

type memVenueRepo struct {
	s *memStore
	// similar は正規化済みの会場名から類似度検索の結果を返す
	similar map[string]venue.Match
}

func (r *memVenueRepo) FindAlias(_ context.Context, tx transaction.Tx, normalized string) (int64, error) {
	if err := requireMemTx(tx); err != nil {
		return 0, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if id, ok := r.s.state.aliases[normalized]; ok {
		return id, nil
	}
	return 0, venue.ErrVenueNotFound
}

func (r *memVenueRepo) FindSimilar(_ context.Context, tx transaction.Tx, normalized string, threshold float64) (*venue.Match, error) {
	if err := requireMemTx(tx); err != nil {
		return nil, err
	}
	if m, ok := r.similar[normalized]; ok && m.Score >= threshold {
		return &m, nil
	}
	return nil, venue.ErrVenueNotFound
}

func (r *memVenueRepo) RecordUnmatched(_ context.Context, tx transaction.Tx, u venue.Unmatched) error {
	if err := requireMemTx(tx); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.state.unmatched {
		if existing == u {
			return nil
		}
	}
	r.s.state.unmatched = append(r.s.state.unmatched, u)
	return nil
}

func (r *memVenueRepo) UpsertCanonical(_ context.Context, v *venue.CanonicalVenue) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i, existing := range r.s.state.canonical {
		if existing.Name == v.Name {
			v.ID = existing.ID
			r.s.state.canonical[i] = *v
			return nil
		}
	}
	v.ID = r.s.state.id()
	r.s.state.canonical = append(r.s.state.canonical, *v)
	return nil
}

func (r *memVenueRepo) UpsertAlias(_ context.Context, rawName string, canonicalID int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	normalized := venue.Normalize(rawName)
	r.s.state.aliases[normalized] = canonicalID
	kept := make([]venue.Unmatched, 0, len(r.s.state.unmatched))
	for _, u := range r.s.state.unmatched {
		if venue.Normalize(u.RawName) != normalized {
			kept = append(kept, u)
		}
	}
	r.s.state.unmatched = kept
	return nil
}

func (r *memVenueRepo) ListUnmatched(_ context.Context, limit, offset int) ([]venue.Unmatched, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := append([]venue.Unmatched(nil), r.s.state.unmatched...)
	if offset >= len(out) {
		return []venue.Unmatched{}, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
