package price

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"pgregory.net/rapid"
)

var categories = []string{"Kategori 1", "Kategori 2", "VIP", "Öğrenci", "Sahne Önü"}

func genEntry() *rapid.Generator[Entry] {
	return rapid.Custom(func(t *rapid.T) Entry {
		e := Entry{
			Category: rapid.SampledFrom(categories).Draw(t, "category"),
			Price:    decimal.NewFromInt(int64(rapid.IntRange(0, 4).Draw(t, "price") * 250)),
			SoldOut:  rapid.Bool().Draw(t, "sold_out"),
		}
		if rapid.Bool().Draw(t, "has_remaining") {
			r := rapid.IntRange(0, 3).Draw(t, "remaining")
			e.Remaining = &r
		}
		return e
	})
}

func genSnapshot() *rapid.Generator[[]Entry] {
	return rapid.SliceOfNDistinct(genEntry(), 0, len(categories), func(e Entry) string { return e.Category })
}

// expectedTransitions は Diff とは独立に状態遷移数を数える
func expectedTransitions(active []*Price, incoming []Entry) int {
	byCategory := map[string]*Price{}
	for _, p := range active {
		byCategory[p.Category] = p
	}
	n := 0
	seen := map[string]bool{}
	for _, e := range incoming {
		seen[e.Category] = true
		prev, ok := byCategory[e.Category]
		if !ok || !prev.Amount.Equal(e.Price) || prev.SoldOut != e.SoldOut {
			n++
		}
	}
	for c := range byCategory {
		if !seen[c] {
			n++
		}
	}
	return n
}

func TestDiff_Properties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		runs := rapid.SliceOfN(genSnapshot(), 1, 8).Draw(t, "runs")

		tb := &table{}
		history := map[string][]*HistoryEntry{}

		for i, snap := range runs {
			now := t0.Add(time.Duration(i) * time.Hour)
			before := tb.active()

			ws, err := Diff(1, before, snap, now)
			if err != nil {
				t.Fatalf("run %d: unexpected error: %v", i, err)
			}
			if got, want := len(ws.History), expectedTransitions(before, snap); got != want {
				t.Fatalf("run %d: history entries = %d, transitions = %d", i, got, want)
			}
			tb.apply(ws)
			for _, h := range ws.History {
				history[h.Category] = append(history[h.Category], h)
			}

			// 有効行は (イベント, カテゴリ) ごとに高々1行で、スナップショットと一致する
			activeCount := map[string]int{}
			for _, p := range tb.active() {
				activeCount[p.Category]++
			}
			for c, n := range activeCount {
				if n > 1 {
					t.Fatalf("run %d: category %q has %d active rows", i, c, n)
				}
			}
			if len(activeCount) != len(snap) {
				t.Fatalf("run %d: active categories = %d, snapshot categories = %d", i, len(activeCount), len(snap))
			}
			for _, e := range snap {
				rows := tb.find(e.Category, true)
				if len(rows) != 1 || !rows[0].Amount.Equal(e.Price) || rows[0].SoldOut != e.SoldOut || !rows[0].sameRemaining(e) {
					t.Fatalf("run %d: active row for %q does not match snapshot", i, e.Category)
				}
			}

			// 同一スナップショットの再照合は何も書き込まない
			again, err := Diff(1, tb.active(), snap, now.Add(time.Minute))
			if err != nil {
				t.Fatalf("run %d: rerun error: %v", i, err)
			}
			if !again.Empty() {
				t.Fatalf("run %d: rerun produced writes", i)
			}
		}

		for c, entries := range history {
			assertValidTimeline(t, c, entries)
		}
	})
}

// assertValidTimeline は履歴が ADDED → UPDATED* → REMOVED? → ADDED ... の順になっているかを検証する
func assertValidTimeline(t *rapid.T, category string, entries []*HistoryEntry) {
	active := false
	var last *HistoryEntry
	for i, h := range entries {
		switch h.ChangeType {
		case ChangeAdded:
			if active {
				t.Fatalf("%q[%d]: ADDED while active", category, i)
			}
			active = true
		case ChangeUpdated:
			if !active {
				t.Fatalf("%q[%d]: UPDATED while inactive", category, i)
			}
			if last != nil && last.ChangeType == ChangeUpdated && last.Amount.Equal(h.Amount) && last.SoldOut == h.SoldOut {
				t.Fatalf("%q[%d]: consecutive UPDATED with identical values", category, i)
			}
		case ChangeRemoved:
			if !active {
				t.Fatalf("%q[%d]: REMOVED while inactive", category, i)
			}
			active = false
		}
		last = h
	}
}
