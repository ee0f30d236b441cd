package snapshot

import (
	"errors"
	"fmt"
)

// ErrInvalidSnapshot は入力不正を表す。永続化層には到達しない
var ErrInvalidSnapshot = errors.New("スナップショットが不正です")

// Snapshot ドメインのエラー定義
var (
	ErrProviderRequired  = fmt.Errorf("販売元は必須です: %w", ErrInvalidSnapshot)
	ErrNameRequired      = fmt.Errorf("イベント名は必須です: %w", ErrInvalidSnapshot)
	ErrVenueRequired     = fmt.Errorf("会場は必須です: %w", ErrInvalidSnapshot)
	ErrDateRequired      = fmt.Errorf("日付は必須です: %w", ErrInvalidSnapshot)
	ErrSourceIDRequired  = fmt.Errorf("販売元IDは必須です: %w", ErrInvalidSnapshot)
	ErrCategoryRequired  = fmt.Errorf("カテゴリは必須です: %w", ErrInvalidSnapshot)
	ErrPriceRequired     = fmt.Errorf("価格は必須です: %w", ErrInvalidSnapshot)
	ErrNegativePrice     = fmt.Errorf("価格は0以上である必要があります: %w", ErrInvalidSnapshot)
	ErrPriceScale        = fmt.Errorf("価格の小数点以下は2桁までです: %w", ErrInvalidSnapshot)
	ErrPriceTooLarge     = fmt.Errorf("価格が上限を超えています: %w", ErrInvalidSnapshot)
	ErrNegativeRemaining = fmt.Errorf("残席数は0以上である必要があります: %w", ErrInvalidSnapshot)
)
