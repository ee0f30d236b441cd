package transaction

import (
	"context"
	"errors"
	"fmt"
)

// ErrTransient は再実行で解消しうる永続化エラー（接続断・デッドロック・タイムアウト等）
var ErrTransient = errors.New("一時的な永続化エラー")

// Tx はトランザクションを表すインターフェース
// ドメイン層がインフラ層（sqlx等）に依存しないようにするための抽象化
type Tx interface {
	// Commit はトランザクションをコミットする
	Commit() error
	// Rollback はトランザクションをロールバックする
	Rollback() error
}

// Manager はトランザクションを管理するインターフェース
type Manager interface {
	// Begin は新しいトランザクションを開始する
	Begin(ctx context.Context) (Tx, error)
}

// Run は fn をひとつのトランザクション内で実行する
// fn がエラーを返した場合・パニックした場合はロールバックし、成功時のみコミットする
func Run(ctx context.Context, m Manager, fn func(ctx context.Context, tx Tx) error) (err error) {
	tx, err := m.Begin(ctx)
	if err != nil {
		return fmt.Errorf("トランザクション開始に失敗: %w", err)
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		_ = tx.Rollback()
	}()

	if err := fn(ctx, tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("コミットに失敗: %w", err)
	}
	committed = true
	return nil
}

// Transient は err を一時的エラーとしてマークする
func Transient(err error) error {
	if err == nil || errors.Is(err, ErrTransient) {
		return err
	}
	return errors.Join(ErrTransient, err)
}
