package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/sanosuguru/go-event-price-tracker/internal/domain/transaction"
)

// ErrTxRequired はトランザクション外で書き込み系メソッドが呼ばれた場合のエラー
var ErrTxRequired = errors.New("トランザクションが必要です")

// TxWrapper は sqlx.Tx を transaction.Tx インターフェースでラップする
type TxWrapper struct {
	*sqlx.Tx
}

// Commit はトランザクションをコミットする
func (t *TxWrapper) Commit() error {
	return translateError(t.Tx.Commit())
}

// Rollback はトランザクションをロールバックする
func (t *TxWrapper) Rollback() error {
	return t.Tx.Rollback()
}

// TxManager は sqlx.DB を使用したトランザクションマネージャー
type TxManager struct {
	db          *sqlx.DB
	lockTimeout time.Duration
}

// NewTxManager は新しい TxManager を作成する
// lockTimeout が正の場合、各トランザクションで行ロック待ちの上限を設定する
func NewTxManager(db *sqlx.DB, lockTimeout time.Duration) *TxManager {
	return &TxManager{db: db, lockTimeout: lockTimeout}
}

// Begin は新しいトランザクションを開始する
// ctx がキャンセルされるとドライバがトランザクションをロールバックする
func (m *TxManager) Begin(ctx context.Context) (transaction.Tx, error) {
	tx, err := m.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, translateError(err)
	}
	if m.lockTimeout > 0 {
		stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", m.lockTimeout.Milliseconds())
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			_ = tx.Rollback()
			return nil, translateError(err)
		}
	}
	return &TxWrapper{Tx: tx}, nil
}

// UnwrapTx は transaction.Tx から sqlx.Tx を取り出す
// リポジトリ実装で使用する
func UnwrapTx(tx transaction.Tx) *sqlx.Tx {
	if wrapper, ok := tx.(*TxWrapper); ok {
		return wrapper.Tx
	}
	return nil
}

func requireTx(tx transaction.Tx) (*sqlx.Tx, error) {
	sqlxTx := UnwrapTx(tx)
	if sqlxTx == nil {
		return nil, ErrTxRequired
	}
	return sqlxTx, nil
}

var _ transaction.Manager = (*TxManager)(nil)
