package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sanosuguru/go-event-price-tracker/internal/domain/price"
	"github.com/sanosuguru/go-event-price-tracker/internal/domain/transaction"
)

// Gateway は1イベント分の照合を1トランザクションで実行する永続化境界
type Gateway struct {
	txManager transaction.Manager
	prices    price.Repository
	history   price.HistoryRepository
	timeout   time.Duration
}

// NewGateway は Gateway を作成する。timeout が正の場合、トランザクション全体の上限時間になる
func NewGateway(txManager transaction.Manager, prices price.Repository, history price.HistoryRepository, timeout time.Duration) *Gateway {
	return &Gateway{txManager: txManager, prices: prices, history: history, timeout: timeout}
}

// RunInTransaction は fn をトランザクション内で実行する
// fn が成功した場合のみコミットし、それ以外の全ての経路でロールバックする
// 上限時間を超えた場合は一時的エラーとして返す
func (g *Gateway) RunInTransaction(ctx context.Context, fn func(ctx context.Context, tx transaction.Tx) error) error {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	err := transaction.Run(ctx, g.txManager, fn)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return transaction.Transient(fmt.Errorf("トランザクションがタイムアウトしました: %w", err))
	}
	return err
}

// LoadActivePrices はイベントの有効な価格を取得する
func (g *Gateway) LoadActivePrices(ctx context.Context, tx transaction.Tx, eventID int64) ([]*price.Price, error) {
	active, err := g.prices.ListActive(ctx, tx, eventID)
	if err != nil {
		return nil, fmt.Errorf("有効な価格の取得に失敗: %w", err)
	}
	return active, nil
}

// ApplyWriteSet は書き込み集合を適用する
// いずれかの書き込みが失敗した時点で中断し、呼び出し側のトランザクションでロールバックさせる
func (g *Gateway) ApplyWriteSet(ctx context.Context, tx transaction.Tx, ws *price.WriteSet) error {
	for _, p := range ws.Deactivates {
		if err := g.prices.Deactivate(ctx, tx, p); err != nil {
			return fmt.Errorf("価格の無効化に失敗 category=%q: %w", p.Category, err)
		}
	}
	for _, p := range ws.Updates {
		if err := g.prices.Update(ctx, tx, p); err != nil {
			return fmt.Errorf("価格の更新に失敗 category=%q: %w", p.Category, err)
		}
	}
	for _, p := range ws.Inserts {
		if err := g.prices.Insert(ctx, tx, p); err != nil {
			return fmt.Errorf("価格の作成に失敗 category=%q: %w", p.Category, err)
		}
	}
	for _, h := range ws.History {
		if err := g.history.Append(ctx, tx, h); err != nil {
			return fmt.Errorf("価格履歴の追記に失敗 category=%q: %w", h.Category, err)
		}
	}
	return nil
}
