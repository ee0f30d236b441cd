package worker

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sanosuguru/go-event-price-tracker/internal/application"
	"github.com/sanosuguru/go-event-price-tracker/internal/domain/event"
	"github.com/sanosuguru/go-event-price-tracker/internal/domain/snapshot"
	"github.com/sanosuguru/go-event-price-tracker/internal/pkg/logger"
	"github.com/sanosuguru/go-event-price-tracker/internal/pkg/metrics"
)

// SnapshotSource は販売元ごとのスナップショットの取り出し元
type SnapshotSource interface {
	Dequeue(ctx context.Context, provider event.Provider, n int) ([]snapshot.Snapshot, error)
}

// BatchReconciler はスナップショットをまとめて照合する
type BatchReconciler interface {
	ReconcileBatch(ctx context.Context, snaps []snapshot.Snapshot) *application.BatchReport
}

// SnapshotIngester はキューに溜まったスナップショットを定期的に照合するワーカー
// 取り出したスナップショットが失敗しても再投入はしない。次回のスクレイピング結果で再試行される
type SnapshotIngester struct {
	source     SnapshotSource
	reconciler BatchReconciler
	providers  []event.Provider
	interval   time.Duration
	batchSize  int
	limiter    *rate.Limiter
	metrics    *metrics.Metrics
	stopCh     chan struct{}
	doneCh     chan struct{}
}

// NewSnapshotIngester は新しいワーカーを作成
// batchesPerSecond はDBへの書き込みを平準化するためのバッチ実行数の上限。0以下なら無制限
func NewSnapshotIngester(
	source SnapshotSource,
	reconciler BatchReconciler,
	providers []string,
	interval time.Duration,
	batchSize int,
	batchesPerSecond float64,
	m *metrics.Metrics,
) *SnapshotIngester {
	limit := rate.Inf
	if batchesPerSecond > 0 {
		limit = rate.Limit(batchesPerSecond)
	}
	ps := make([]event.Provider, len(providers))
	for i, p := range providers {
		ps[i] = event.Provider(p)
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &SnapshotIngester{
		source:     source,
		reconciler: reconciler,
		providers:  ps,
		interval:   interval,
		batchSize:  batchSize,
		limiter:    rate.NewLimiter(limit, 1),
		metrics:    m,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
}

// Start はワーカーを開始
func (w *SnapshotIngester) Start(ctx context.Context) {
	logger.Info("スナップショット取り込み開始",
		zap.Duration("interval", w.interval),
		zap.Int("batch_size", w.batchSize),
		zap.Int("providers", len(w.providers)),
	)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	defer close(w.doneCh)

	for {
		select {
		case <-ctx.Done():
			logger.Info("スナップショット取り込み停止（コンテキストキャンセル）")
			return
		case <-w.stopCh:
			logger.Info("スナップショット取り込み停止（シグナル受信）")
			return
		case <-ticker.C:
			w.drain(ctx)
		}
	}
}

// Stop はワーカーを停止
func (w *SnapshotIngester) Stop() {
	close(w.stopCh)
	<-w.doneCh
}

// drain は販売元ごとにキューを空になるまで照合する
func (w *SnapshotIngester) drain(ctx context.Context) {
	for _, p := range w.providers {
		for {
			n, err := w.drainOnce(ctx, p)
			if err != nil || n < w.batchSize {
				break
			}
		}
	}
}

// drainOnce は1バッチ分を取り出して照合し、取り出した件数を返す
func (w *SnapshotIngester) drainOnce(ctx context.Context, provider event.Provider) (int, error) {
	log := logger.Get().With(zap.String("provider", string(provider)))

	if err := w.limiter.Wait(ctx); err != nil {
		return 0, err
	}

	snaps, err := w.source.Dequeue(ctx, provider, w.batchSize)
	if err != nil {
		log.Error("スナップショットの取り出しに失敗", zap.Error(err))
		return 0, err
	}
	if len(snaps) == 0 {
		log.Debug("取り込むスナップショットなし")
		return 0, nil
	}
	if w.metrics != nil {
		w.metrics.SnapshotsDequeuedTotal.WithLabelValues(string(provider)).Add(float64(len(snaps)))
	}

	report := w.reconciler.ReconcileBatch(ctx, snaps)
	for _, f := range report.Failures {
		log.Warn("スナップショットの照合に失敗",
			zap.String("identity", f.Identity),
			zap.String("failure_kind", string(f.Kind)),
			zap.String("reason", f.Reason),
		)
	}
	log.Info("キューのバッチ照合が完了",
		zap.Int("total", report.Total),
		zap.Int("succeeded", report.Succeeded),
		zap.Int("failed", report.Failed),
	)
	return len(snaps), nil
}
