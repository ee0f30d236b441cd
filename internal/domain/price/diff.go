package price

import (
	"fmt"
	"sort"
	"time"
)

// WriteSet は1回の照合で発生する書き込みの集合
type WriteSet struct {
	EventID     int64
	Inserts     []*Price
	Updates     []*Price
	Deactivates []*Price
	History     []*HistoryEntry
}

// Empty は書き込みが1件もないかを返す
func (w *WriteSet) Empty() bool {
	return len(w.Inserts) == 0 && len(w.Updates) == 0 && len(w.Deactivates) == 0 && len(w.History) == 0
}

// Count は指定種別の履歴エントリ数を返す
func (w *WriteSet) Count(t ChangeType) int {
	n := 0
	for _, h := range w.History {
		if h.ChangeType == t {
			n++
		}
	}
	return n
}

// Diff は現在の有効な価格とスナップショットのエントリをカテゴリ単位で比較し、書き込み集合を作る
//
//   - 有効な価格にあり (price, sold_out) が変化したカテゴリ: 変更前の値で UPDATED を記録し行を更新
//   - 残席数だけが変化したカテゴリ: 行のみ更新し履歴は記録しない
//   - 有効な価格にないカテゴリ: 新しい行を作成し ADDED を記録
//   - スナップショットにない有効なカテゴリ: 行を無効化し最後の値で REMOVED を記録
//
// カテゴリ名は完全一致で比較する。active と incoming は変更しない。
func Diff(eventID int64, active []*Price, incoming []Entry, now time.Time) (*WriteSet, error) {
	byCategory := make(map[string]*Price, len(active))
	for _, p := range active {
		if _, dup := byCategory[p.Category]; dup {
			return nil, fmt.Errorf("event_id=%d category=%q: %w", eventID, p.Category, ErrMultipleActivePrices)
		}
		byCategory[p.Category] = p
	}

	ws := &WriteSet{EventID: eventID}
	seen := make(map[string]struct{}, len(incoming))

	for _, e := range incoming {
		if _, dup := seen[e.Category]; dup {
			return nil, fmt.Errorf("category=%q: %w", e.Category, ErrDuplicateCategory)
		}
		seen[e.Category] = struct{}{}

		prev, ok := byCategory[e.Category]
		if !ok {
			p := newPrice(eventID, e, now)
			ws.Inserts = append(ws.Inserts, p)
			ws.History = append(ws.History, p.snapshot(ChangeAdded, now))
			continue
		}

		stateChanged := !prev.sameState(e)
		if !stateChanged && prev.sameRemaining(e) {
			continue
		}
		if stateChanged {
			ws.History = append(ws.History, prev.snapshot(ChangeUpdated, now))
		}

		next := *prev
		next.Amount = e.Price
		next.SoldOut = e.SoldOut
		next.Remaining = copyInt(e.Remaining)
		next.LastSeen = now
		ws.Updates = append(ws.Updates, &next)
	}

	removed := make([]*Price, 0)
	for category, p := range byCategory {
		if _, ok := seen[category]; !ok {
			removed = append(removed, p)
		}
	}
	sort.Slice(removed, func(i, j int) bool { return removed[i].Category < removed[j].Category })

	for _, p := range removed {
		off := *p
		off.IsActive = false
		off.LastSeen = now
		ws.Deactivates = append(ws.Deactivates, &off)
		ws.History = append(ws.History, p.snapshot(ChangeRemoved, now))
	}

	return ws, nil
}
