package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"net"

	"github.com/lib/pq"

	"github.com/sanosuguru/go-event-price-tracker/internal/domain/price"
	"github.com/sanosuguru/go-event-price-tracker/internal/domain/transaction"
)

// 一時的とみなす SQLSTATE
const (
	codeSerializationFailure pq.ErrorCode = "40001"
	codeDeadlockDetected     pq.ErrorCode = "40P01"
	codeLockNotAvailable     pq.ErrorCode = "55P03"
	codeQueryCanceled        pq.ErrorCode = "57014"
	codeUniqueViolation      pq.ErrorCode = "23505"
	classConnectionException pq.ErrorClass = "08"
)

const activePriceIndex = "idx_prices_one_active"

// translateError はドライバのエラーをドメインのエラー分類に変換する
//   - 接続断・デッドロック・ロック待ちタイムアウト・キャンセル: transaction.ErrTransient
//   - 有効な価格の一意制約違反: price.ErrMultipleActivePrices
//
// それ以外はそのまま返す
func translateError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) ||
		errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) || errors.Is(err, sql.ErrTxDone) {
		return transaction.Transient(err)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch {
		case pqErr.Code == codeSerializationFailure,
			pqErr.Code == codeDeadlockDetected,
			pqErr.Code == codeLockNotAvailable,
			pqErr.Code == codeQueryCanceled,
			pqErr.Code.Class() == classConnectionException:
			return transaction.Transient(err)
		case pqErr.Code == codeUniqueViolation && pqErr.Constraint == activePriceIndex:
			return errors.Join(price.ErrMultipleActivePrices, err)
		}
		return err
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return transaction.Transient(err)
	}
	return err
}
