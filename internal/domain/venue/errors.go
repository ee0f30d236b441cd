package venue

import "errors"

// Venue ドメインのエラー定義
var (
	ErrVenueNotFound     = errors.New("会場が見つかりません")
	ErrVenueNameRequired = errors.New("会場名は必須です")
	ErrInvalidThreshold  = errors.New("類似度しきい値は0より大きく1以下である必要があります")
)
