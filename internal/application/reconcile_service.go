package application

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/sanosuguru/go-event-price-tracker/internal/domain/event"
	"github.com/sanosuguru/go-event-price-tracker/internal/domain/price"
	"github.com/sanosuguru/go-event-price-tracker/internal/domain/snapshot"
	"github.com/sanosuguru/go-event-price-tracker/internal/domain/transaction"
	"github.com/sanosuguru/go-event-price-tracker/internal/pkg/logger"
	"github.com/sanosuguru/go-event-price-tracker/internal/pkg/metrics"
	"github.com/sanosuguru/go-event-price-tracker/internal/pkg/telemetry"
)

// IdentityLocker は同一イベントの照合をプロセス間で直列化する
type IdentityLocker interface {
	Lock(ctx context.Context, key string) (unlock func(context.Context) error, err error)
}

// PriceCache は有効な価格の読み取りキャッシュ
// Invalidate はイベントの世代を進める。SetActive は DB を読む前に Version で得た世代が
// 現在の世代と一致する場合だけ保存し、照合のコミットより古い読み取り結果を書き戻さない
type PriceCache interface {
	GetActive(ctx context.Context, eventID int64) ([]*price.Price, error)
	Version(ctx context.Context, eventID int64) (int64, error)
	SetActive(ctx context.Context, eventID int64, version int64, prices []*price.Price) error
	Invalidate(ctx context.Context, eventID int64) error
}

// ReconcileResult は1イベント分の照合結果
type ReconcileResult struct {
	RunID            uuid.UUID
	EventID          int64
	Provider         event.Provider
	EventCreated     bool
	Added            int
	Updated          int
	Removed          int
	History          []*price.HistoryEntry
	CanonicalVenueID *int64
	ReconciledAt     time.Time
}

// BatchFailure はバッチ内で失敗した1イベントの情報
type BatchFailure struct {
	Index    int
	Identity string
	Provider event.Provider
	Kind     FailureKind
	Reason   string
}

// BatchReport はバッチ全体の照合結果
type BatchReport struct {
	Total     int
	Succeeded int
	Failed    int
	Failures  []BatchFailure
	Results   []*ReconcileResult
}

// ReconcileService はスナップショットを永続化状態に照合する
// 販売元に依存しない単一の実装で、販売元ごとの違いは IdentityStrategy が吸収する
type ReconcileService struct {
	gateway    *Gateway
	identities *IdentityRegistry
	venues     *VenueResolver
	locker     IdentityLocker
	cache      PriceCache
	metrics    *metrics.Metrics
	now        func() time.Time
}

// NewReconcileService は ReconcileService を作成する
// venues, locker, cache, m は nil でもよい
func NewReconcileService(gateway *Gateway, identities *IdentityRegistry, venues *VenueResolver, locker IdentityLocker, cache PriceCache, m *metrics.Metrics) *ReconcileService {
	return &ReconcileService{
		gateway:    gateway,
		identities: identities,
		venues:     venues,
		locker:     locker,
		cache:      cache,
		metrics:    m,
		now:        time.Now,
	}
}

// Reconcile は1件のスナップショットを1トランザクションで照合する
//
// 入力検証はトランザクション開始前に行う。トランザクション内では外部I/Oを行わない
// 失敗した場合は何も書き込まれず、次回の実行で全体が再試行される
func (s *ReconcileService) Reconcile(ctx context.Context, snap snapshot.Snapshot) (*ReconcileResult, error) {
	start := time.Now()
	runID := uuid.New()

	ctx, span := telemetry.StartSpan(ctx, "reconcile",
		attribute.String("run_id", runID.String()),
		attribute.String("provider", string(snap.Provider)),
		attribute.String("identity", snap.Identity()),
	)
	defer span.End()

	log := logger.With(
		zap.String("run_id", runID.String()),
		zap.String("provider", string(snap.Provider)),
		zap.String("identity", snap.Identity()),
	)
	ctx = logger.NewContext(ctx, log)

	result, err := s.reconcile(ctx, runID, &snap)
	duration := time.Since(start)
	s.observeDuration(snap.Provider, duration)

	if err != nil {
		kind := ClassifyError(err)
		telemetry.RecordError(span, err)
		s.countRun(snap.Provider, string(kind))

		fields := []zap.Field{zap.String("failure_kind", string(kind)), zap.Duration("duration", duration), zap.Error(err)}
		if kind == FailureInvariant {
			log.Error("照合に失敗しました", fields...)
		} else {
			log.Warn("照合に失敗しました", fields...)
		}
		return nil, err
	}

	span.SetAttributes(
		attribute.Int64("event_id", result.EventID),
		attribute.Int("added", result.Added),
		attribute.Int("updated", result.Updated),
		attribute.Int("removed", result.Removed),
	)
	s.countRun(snap.Provider, "success")
	s.countChanges(result)

	log.Info("照合が完了しました",
		zap.Int64("event_id", result.EventID),
		zap.Bool("event_created", result.EventCreated),
		zap.Int("added", result.Added),
		zap.Int("updated", result.Updated),
		zap.Int("removed", result.Removed),
		zap.Duration("duration", duration),
	)
	return result, nil
}

func (s *ReconcileService) reconcile(ctx context.Context, runID uuid.UUID, snap *snapshot.Snapshot) (*ReconcileResult, error) {
	if err := snap.Validate(); err != nil {
		return nil, err
	}
	strategy := s.identities.For(snap.Provider)
	if err := strategy.Validate(snap); err != nil {
		return nil, err
	}
	entries := snap.Normalize()

	if s.locker != nil {
		unlock, err := s.locker.Lock(ctx, strategy.LockKey(snap))
		if err != nil {
			return nil, transaction.Transient(fmt.Errorf("分散ロックの取得に失敗: %w", err))
		}
		defer func() {
			// 呼び出し元のコンテキストがキャンセル済みでもロックは解放する
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				logger.FromContext(ctx).Warn("分散ロックの解放に失敗しました", zap.Error(err))
			}
		}()
	}

	now := s.now().UTC()
	result := &ReconcileResult{RunID: runID, Provider: snap.Provider, ReconciledAt: now}
	var changed bool

	err := s.gateway.RunInTransaction(ctx, func(ctx context.Context, tx transaction.Tx) error {
		attrs := snap.Attributes()
		if s.venues != nil {
			venueID, err := s.venues.Resolve(ctx, tx, snap.Provider, snap.Venue)
			if err != nil {
				return err
			}
			attrs.CanonicalVenueID = venueID
		}

		ev, created, err := strategy.Resolve(ctx, tx, snap, attrs, now)
		if err != nil {
			return err
		}

		active, err := s.gateway.LoadActivePrices(ctx, tx, ev.ID)
		if err != nil {
			return err
		}

		ws, err := price.Diff(ev.ID, active, entries, now)
		if err != nil {
			return err
		}
		if err := s.gateway.ApplyWriteSet(ctx, tx, ws); err != nil {
			return err
		}

		result.EventID = ev.ID
		result.EventCreated = created
		result.CanonicalVenueID = ev.CanonicalVenueID
		result.Added = ws.Count(price.ChangeAdded)
		result.Updated = ws.Count(price.ChangeUpdated)
		result.Removed = ws.Count(price.ChangeRemoved)
		result.History = ws.History
		changed = !ws.Empty()
		return nil
	})
	if err != nil {
		return nil, err
	}

	if changed && s.cache != nil {
		if err := s.cache.Invalidate(ctx, result.EventID); err != nil {
			logger.FromContext(ctx).Warn("価格キャッシュの削除に失敗しました", zap.Int64("event_id", result.EventID), zap.Error(err))
		}
	}
	return result, nil
}

// ReconcileBatch はスナップショットを1件ずつ照合する
// 1件の失敗は他のイベントの照合に影響しない
func (s *ReconcileService) ReconcileBatch(ctx context.Context, snaps []snapshot.Snapshot) *BatchReport {
	ctx, span := telemetry.StartSpan(ctx, "reconcile.batch", attribute.Int("total", len(snaps)))
	defer span.End()

	report := &BatchReport{Total: len(snaps)}
	for i, snap := range snaps {
		var (
			result *ReconcileResult
			err    error
		)
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = transaction.Transient(fmt.Errorf("バッチが中断されました: %w", ctxErr))
		} else {
			result, err = s.Reconcile(ctx, snap)
		}

		if err != nil {
			report.Failed++
			report.Failures = append(report.Failures, BatchFailure{
				Index:    i,
				Identity: snap.Identity(),
				Provider: snap.Provider,
				Kind:     ClassifyError(err),
				Reason:   err.Error(),
			})
			continue
		}
		report.Succeeded++
		report.Results = append(report.Results, result)
	}

	span.SetAttributes(attribute.Int("succeeded", report.Succeeded), attribute.Int("failed", report.Failed))
	logger.Info("バッチ照合が完了しました",
		zap.Int("total", report.Total),
		zap.Int("succeeded", report.Succeeded),
		zap.Int("failed", report.Failed),
	)
	return report
}

func (s *ReconcileService) countRun(provider event.Provider, status string) {
	if s.metrics != nil {
		s.metrics.ReconciliationsTotal.WithLabelValues(string(provider), status).Inc()
	}
}

func (s *ReconcileService) observeDuration(provider event.Provider, d time.Duration) {
	if s.metrics != nil {
		s.metrics.ReconcileDuration.WithLabelValues(string(provider)).Observe(d.Seconds())
	}
}

func (s *ReconcileService) countChanges(r *ReconcileResult) {
	if s.metrics == nil {
		return
	}
	p := string(r.Provider)
	if r.EventCreated {
		s.metrics.EventsCreatedTotal.WithLabelValues(p).Inc()
	}
	s.metrics.PriceChangesTotal.WithLabelValues(p, string(price.ChangeAdded)).Add(float64(r.Added))
	s.metrics.PriceChangesTotal.WithLabelValues(p, string(price.ChangeUpdated)).Add(float64(r.Updated))
	s.metrics.PriceChangesTotal.WithLabelValues(p, string(price.ChangeRemoved)).Add(float64(r.Removed))
}
