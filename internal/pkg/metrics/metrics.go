package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics はアプリケーションのメトリクスを管理する
type Metrics struct {
	// HTTPリクエストの総数（method, path, status_code）
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTPリクエストのレイテンシ（method, path）
	HTTPRequestDuration *prometheus.HistogramVec

	// 照合の総数（provider, status: success, validation, transient, invariant）
	ReconciliationsTotal *prometheus.CounterVec

	// 照合1件の所要時間（provider）
	ReconcileDuration *prometheus.HistogramVec

	// 検出した価格変更の総数（provider, change_type: ADDED, UPDATED, REMOVED）
	PriceChangesTotal *prometheus.CounterVec

	// 新規作成されたイベント数（provider）
	EventsCreatedTotal *prometheus.CounterVec

	// 会場名の解決結果（result: manual, fuzzy, unmatched）
	VenueResolutionsTotal *prometheus.CounterVec

	// キューから取り込んだスナップショット数（provider）
	SnapshotsDequeuedTotal *prometheus.CounterVec

	// 分散ロックの操作時間（operation: acquire/release, status: success/failed）
	DistributedLockDuration *prometheus.HistogramVec
}

// New は新しいMetricsインスタンスを作成し、デフォルトレジストリに登録する
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry は指定したレジストリにメトリクスを登録する
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status_code"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		ReconciliationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reconciliations_total",
				Help: "Total number of snapshot reconciliations",
			},
			[]string{"provider", "status"},
		),
		ReconcileDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "reconcile_duration_seconds",
				Help:    "Time spent reconciling one snapshot",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"provider"},
		),
		PriceChangesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "price_changes_total",
				Help: "Total number of detected price transitions",
			},
			[]string{"provider", "change_type"},
		),
		EventsCreatedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "events_created_total",
				Help: "Total number of events seen for the first time",
			},
			[]string{"provider"},
		),
		VenueResolutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "venue_resolutions_total",
				Help: "Venue canonicalization outcomes",
			},
			[]string{"result"},
		),
		SnapshotsDequeuedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "snapshots_dequeued_total",
				Help: "Total number of snapshots drained from the ingest queue",
			},
			[]string{"provider"},
		),
		DistributedLockDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "distributed_lock_duration_seconds",
				Help:    "Time spent on distributed lock operations",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"operation", "status"},
		),
	}

	// レジストリに登録
	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.ReconciliationsTotal,
		m.ReconcileDuration,
		m.PriceChangesTotal,
		m.EventsCreatedTotal,
		m.VenueResolutionsTotal,
		m.SnapshotsDequeuedTotal,
		m.DistributedLockDuration,
	)

	return m
}

// デフォルトのメトリクスインスタンス
var defaultMetrics *Metrics

// Init はデフォルトのメトリクスインスタンスを初期化する
func Init() *Metrics {
	defaultMetrics = New()
	return defaultMetrics
}

// Get はデフォルトのメトリクスインスタンスを返す
func Get() *Metrics {
	return defaultMetrics
}
