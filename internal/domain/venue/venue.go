package venue

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// DefaultMatchThreshold は pg_trgm 類似度の既定しきい値
const DefaultMatchThreshold = 0.75

// MatchMethod は正規会場の解決方法を表す
type MatchMethod string

const (
	MatchManual MatchMethod = "manual"
	MatchFuzzy  MatchMethod = "fuzzy"
)

// CanonicalVenue は正規化された会場マスタ
type CanonicalVenue struct {
	ID       int64
	Name     string
	City     string
	Capacity *int
}

// Match は会場名の解決結果
type Match struct {
	VenueID int64
	Method  MatchMethod
	Score   float64
}

// Unmatched は解決できなかった会場名
type Unmatched struct {
	Provider string
	RawName  string
}

// Normalize は会場名を比較用に正規化する
// 前後の空白除去・小文字化・ダイアクリティカルマークの除去・連続空白の圧縮を行う
// 例: "  İstanbul  Kongre Merkezi " -> "istanbul kongre merkezi"
func Normalize(name string) string {
	lowered := cases.Lower(language.Und).String(strings.TrimSpace(name))
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, lowered)
	if err != nil {
		stripped = lowered
	}
	// ı は分解できないため個別に置換する
	stripped = strings.ReplaceAll(stripped, "ı", "i")
	return strings.Join(strings.Fields(stripped), " ")
}
