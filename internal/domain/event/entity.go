package event

import (
	"strings"
	"time"
)

// Provider はチケット販売元を表す
type Provider string

const (
	ProviderBiletinial Provider = "Biletinial"
	ProviderBugece     Provider = "Bugece"
	ProviderPasso      Provider = "Passo"
	ProviderBiletix    Provider = "Biletix"
	ProviderBubilet    Provider = "Bubilet"
)

// Key は自然キー（販売元 + 名前 + 会場 + 日付）を表す
// 文字列比較は大文字小文字・空白を区別する
type Key struct {
	Provider Provider
	Name     string
	Venue    string
	Date     string
}

// String はロックキーなどに使う文字列表現を返す
func (k Key) String() string {
	return strings.Join([]string{string(k.Provider), k.Name, k.Venue, k.Date}, "\x1f")
}

// SourceKey は販売元が採番した識別子（サロゲートキー）を表す
type SourceKey struct {
	Provider Provider
	SourceID string
}

// String はロックキーなどに使う文字列表現を返す
func (k SourceKey) String() string {
	return string(k.Provider) + "\x1f" + k.SourceID
}

// Attributes はスナップショットごとに上書きされるイベント属性
type Attributes struct {
	Genre            string
	Promoters        []string
	Artists          []string
	Description      string
	CanonicalVenueID *int64
}

// Event はイベントエンティティを表す
type Event struct {
	ID               int64
	Provider         Provider
	SourceID         string // サロゲートキーを使う販売元のみ
	Name             string
	Venue            string
	Date             string
	Genre            string
	Promoters        []string
	Artists          []string
	Description      string
	CanonicalVenueID *int64
	CreatedAt        time.Time
	LastSeen         time.Time
}

// NewEvent は初回観測時のイベントを作成する
func NewEvent(key Key, sourceID string, attrs Attributes, now time.Time) *Event {
	e := &Event{
		Provider:  key.Provider,
		SourceID:  sourceID,
		Name:      key.Name,
		Venue:     key.Venue,
		Date:      key.Date,
		CreatedAt: now,
		LastSeen:  now,
	}
	e.apply(attrs)
	return e
}

// Key はイベントの自然キーを返す
func (e *Event) Key() Key {
	return Key{Provider: e.Provider, Name: e.Name, Venue: e.Venue, Date: e.Date}
}

// Observe は再観測時に属性を最新値で上書きし last_seen を更新する
// created_at は変更しない
func (e *Event) Observe(attrs Attributes, now time.Time) {
	e.apply(attrs)
	e.LastSeen = now
}

func (e *Event) apply(attrs Attributes) {
	e.Genre = attrs.Genre
	e.Promoters = attrs.Promoters
	e.Artists = attrs.Artists
	e.Description = attrs.Description
	// 会場が解決できなかった場合、既存の正規会場IDは保持する
	if attrs.CanonicalVenueID != nil {
		id := *attrs.CanonicalVenueID
		e.CanonicalVenueID = &id
	}
}
