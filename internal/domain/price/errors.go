package price

import (
	"errors"
	"fmt"
)

// ErrInvariantViolation はデータ不整合を表す。再実行では解消しない
var ErrInvariantViolation = errors.New("価格データの不変条件違反")

// Price ドメインのエラー定義
var (
	ErrMultipleActivePrices = fmt.Errorf("同一カテゴリに有効な価格が複数存在します: %w", ErrInvariantViolation)
	ErrDuplicateCategory    = fmt.Errorf("スナップショット内でカテゴリが重複しています: %w", ErrInvariantViolation)
)

// ErrActivePriceMissing は更新対象の有効な価格行が存在しない場合のエラー
var ErrActivePriceMissing = fmt.Errorf("更新対象の有効な価格が存在しません: %w", ErrInvariantViolation)
