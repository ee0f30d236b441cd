package event

import "errors"

// Event ドメインのエラー定義
var (
	ErrEventNotFound      = errors.New("イベントが見つかりません")
	ErrEventAlreadyExists = errors.New("イベントは既に存在します")
)
