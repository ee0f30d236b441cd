package application

import (
	"errors"

	"github.com/sanosuguru/go-event-price-tracker/internal/domain/price"
	"github.com/sanosuguru/go-event-price-tracker/internal/domain/snapshot"
	"github.com/sanosuguru/go-event-price-tracker/internal/domain/transaction"
)

// FailureKind は照合失敗の分類
type FailureKind string

const (
	// FailureValidation は入力不正。永続化状態には触れていない
	FailureValidation FailureKind = "validation"
	// FailureTransient は接続断・デッドロック・タイムアウト等。次回の実行で再試行される
	FailureTransient FailureKind = "transient"
	// FailureInvariant はデータ不整合。再試行では解消しないため運用者の確認が必要
	FailureInvariant FailureKind = "invariant"
)

// ClassifyError はエラーを失敗分類に変換する
// 分類できないエラーは一時的なものとして扱う
func ClassifyError(err error) FailureKind {
	switch {
	case errors.Is(err, snapshot.ErrInvalidSnapshot):
		return FailureValidation
	case errors.Is(err, price.ErrInvariantViolation):
		return FailureInvariant
	case errors.Is(err, transaction.ErrTransient):
		return FailureTransient
	default:
		return FailureTransient
	}
}
