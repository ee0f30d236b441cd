package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/sanosuguru/go-event-price-tracker/internal/application"
	"github.com/sanosuguru/go-event-price-tracker/internal/domain/event"
	"github.com/sanosuguru/go-event-price-tracker/internal/domain/price"
	"github.com/sanosuguru/go-event-price-tracker/internal/domain/snapshot"
)

type SnapshotHandler struct {
	reconciler ReconcileServiceInterface
	queue      SnapshotQueueInterface
}

// NewSnapshotHandler は SnapshotHandler を作成する。queue が nil の場合はキュー投入を受け付けない
func NewSnapshotHandler(reconciler ReconcileServiceInterface, queue SnapshotQueueInterface) *SnapshotHandler {
	return &SnapshotHandler{reconciler: reconciler, queue: queue}
}

// PriceEntryRequest は価格カテゴリ1件
// price が null または欠落している場合はゼロ円ではなく入力不正として扱う
type PriceEntryRequest struct {
	Category  string              `json:"category" example:"Kategori 1"`
	Price     decimal.NullDecimal `json:"price" swaggertype:"string" example:"750.00"`
	SoldOut   bool                `json:"sold_out" example:"false"`
	Remaining *int                `json:"remaining,omitempty" example:"120"`
	IsActive  *bool               `json:"is_active,omitempty"`
}

// SnapshotRequest は販売元から取得した1イベント分のデータ
// 識別項目の検証はドメイン側で行い、バッチでは1件ごとの失敗として報告する
type SnapshotRequest struct {
	Provider    string              `json:"provider" example:"Biletix"`
	SourceID    string              `json:"source_id,omitempty" example:"48213"`
	Name        string              `json:"name" example:"Duman"`
	Venue       string              `json:"venue" example:"Zorlu PSM"`
	Date        string              `json:"date" example:"2025-07-12"`
	Genre       string              `json:"genre,omitempty" example:"Rock"`
	Promoters   []string            `json:"promoters,omitempty"`
	Artists     []string            `json:"artists,omitempty"`
	Description string              `json:"description,omitempty"`
	Prices      []PriceEntryRequest `json:"prices"`
}

type BatchRequest struct {
	Snapshots []SnapshotRequest `json:"snapshots" validate:"required,min=1,max=1000"`
}

func (r *SnapshotRequest) toSnapshot() snapshot.Snapshot {
	entries := make([]price.Entry, len(r.Prices))
	for i, p := range r.Prices {
		entries[i] = price.Entry{
			Category:     p.Category,
			Price:        p.Price.Decimal,
			SoldOut:      p.SoldOut,
			Remaining:    p.Remaining,
			IsActive:     p.IsActive,
			PriceMissing: !p.Price.Valid,
		}
	}
	return snapshot.Snapshot{
		Provider:    event.Provider(r.Provider),
		SourceID:    r.SourceID,
		Name:        r.Name,
		Venue:       r.Venue,
		Date:        r.Date,
		Genre:       r.Genre,
		Promoters:   r.Promoters,
		Artists:     r.Artists,
		Description: r.Description,
		Prices:      entries,
	}
}

func toSnapshots(reqs []SnapshotRequest) []snapshot.Snapshot {
	out := make([]snapshot.Snapshot, len(reqs))
	for i := range reqs {
		out[i] = reqs[i].toSnapshot()
	}
	return out
}

type HistoryResponse struct {
	ID         int64  `json:"id"`
	Category   string `json:"category"`
	Price      string `json:"price" example:"750.00"`
	SoldOut    bool   `json:"sold_out"`
	Remaining  *int   `json:"remaining,omitempty"`
	ChangeType string `json:"change_type" example:"UPDATED"`
	ChangeDate string `json:"change_date"`
}

func toHistoryResponse(h *price.HistoryEntry) HistoryResponse {
	return HistoryResponse{
		ID:         h.ID,
		Category:   h.Category,
		Price:      h.Amount.StringFixed(2),
		SoldOut:    h.SoldOut,
		Remaining:  h.Remaining,
		ChangeType: string(h.ChangeType),
		ChangeDate: h.ChangeDate.Format(time.RFC3339),
	}
}

type ReconcileResponse struct {
	RunID            uuid.UUID         `json:"run_id"`
	EventID          int64             `json:"event_id"`
	Provider         string            `json:"provider"`
	EventCreated     bool              `json:"event_created"`
	Added            int               `json:"added"`
	Updated          int               `json:"updated"`
	Removed          int               `json:"removed"`
	CanonicalVenueID *int64            `json:"canonical_venue_id,omitempty"`
	ReconciledAt     string            `json:"reconciled_at"`
	History          []HistoryResponse `json:"history"`
}

func toReconcileResponse(r *application.ReconcileResult) *ReconcileResponse {
	history := make([]HistoryResponse, len(r.History))
	for i, h := range r.History {
		history[i] = toHistoryResponse(h)
	}
	return &ReconcileResponse{
		RunID:            r.RunID,
		EventID:          r.EventID,
		Provider:         string(r.Provider),
		EventCreated:     r.EventCreated,
		Added:            r.Added,
		Updated:          r.Updated,
		Removed:          r.Removed,
		CanonicalVenueID: r.CanonicalVenueID,
		ReconciledAt:     r.ReconciledAt.Format(time.RFC3339),
		History:          history,
	}
}

type BatchFailureResponse struct {
	Index    int    `json:"index"`
	Identity string `json:"identity"`
	Provider string `json:"provider"`
	Kind     string `json:"kind" example:"transient"`
	Reason   string `json:"reason"`
}

type BatchResponse struct {
	Total     int                    `json:"total"`
	Succeeded int                    `json:"succeeded"`
	Failed    int                    `json:"failed"`
	Failures  []BatchFailureResponse `json:"failures"`
	Results   []*ReconcileResponse   `json:"results"`
}

func toBatchResponse(r *application.BatchReport) *BatchResponse {
	resp := &BatchResponse{
		Total:     r.Total,
		Succeeded: r.Succeeded,
		Failed:    r.Failed,
		Failures:  make([]BatchFailureResponse, len(r.Failures)),
		Results:   make([]*ReconcileResponse, len(r.Results)),
	}
	for i, f := range r.Failures {
		resp.Failures[i] = BatchFailureResponse{
			Index:    f.Index,
			Identity: f.Identity,
			Provider: string(f.Provider),
			Kind:     string(f.Kind),
			Reason:   f.Reason,
		}
	}
	for i, res := range r.Results {
		resp.Results[i] = toReconcileResponse(res)
	}
	return resp
}

// Reconcile godoc
// @Summary スナップショットを照合
// @Description 1イベント分のスナップショットを同期的に照合し、検出した変更を返します
// @Tags snapshots
// @Accept json
// @Produce json
// @Param request body SnapshotRequest true "スナップショット"
// @Success 200 {object} ReconcileResponse
// @Failure 400 {object} api.ErrorResponse
// @Failure 409 {object} api.ErrorResponse
// @Failure 503 {object} api.ErrorResponse
// @Router /snapshots [post]
func (h *SnapshotHandler) Reconcile(c echo.Context) error {
	var req SnapshotRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "リクエストの形式が不正です")
	}

	result, err := h.reconciler.Reconcile(c.Request().Context(), req.toSnapshot())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toReconcileResponse(result))
}

// ReconcileBatch godoc
// @Summary スナップショットを一括照合
// @Description 1件ごとに独立して照合し、成功・失敗の件数と失敗理由を返します
// @Tags snapshots
// @Accept json
// @Produce json
// @Param request body BatchRequest true "スナップショット一覧"
// @Success 200 {object} BatchResponse
// @Failure 400 {object} api.ErrorResponse
// @Router /snapshots/batch [post]
func (h *SnapshotHandler) ReconcileBatch(c echo.Context) error {
	req, err := bindBatch(c)
	if err != nil {
		return err
	}

	report := h.reconciler.ReconcileBatch(c.Request().Context(), toSnapshots(req.Snapshots))
	return c.JSON(http.StatusOK, toBatchResponse(report))
}

// Enqueue godoc
// @Summary スナップショットをキューに投入
// @Description 取り込みワーカーが後で照合します
// @Tags snapshots
// @Accept json
// @Produce json
// @Param request body BatchRequest true "スナップショット一覧"
// @Success 202 {object} map[string]int
// @Failure 400 {object} api.ErrorResponse
// @Failure 503 {object} api.ErrorResponse
// @Router /snapshots/queue [post]
func (h *SnapshotHandler) Enqueue(c echo.Context) error {
	if h.queue == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "スナップショットキューが無効です")
	}
	req, err := bindBatch(c)
	if err != nil {
		return err
	}

	snaps := toSnapshots(req.Snapshots)
	// 明らかに不正な入力はキューに入れない
	for i := range snaps {
		if err := snaps[i].Validate(); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("snapshots[%d]: %v", i, err))
		}
	}
	if err := h.queue.Enqueue(c.Request().Context(), snaps...); err != nil {
		return err
	}
	return c.JSON(http.StatusAccepted, map[string]int{"queued": len(snaps)})
}

func bindBatch(c echo.Context) (*BatchRequest, error) {
	var req BatchRequest
	if err := c.Bind(&req); err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "リクエストの形式が不正です")
	}
	if err := c.Validate(&req); err != nil {
		return nil, err
	}
	return &req, nil
}
