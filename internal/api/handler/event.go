package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/sanosuguru/go-event-price-tracker/internal/domain/event"
	"github.com/sanosuguru/go-event-price-tracker/internal/domain/price"
)

type EventHandler struct {
	queries QueryServiceInterface
}

func NewEventHandler(queries QueryServiceInterface) *EventHandler {
	return &EventHandler{queries: queries}
}

type EventResponse struct {
	ID               int64    `json:"id" example:"42"`
	Provider         string   `json:"provider" example:"Biletix"`
	SourceID         string   `json:"source_id,omitempty"`
	Name             string   `json:"name" example:"Duman"`
	Venue            string   `json:"venue" example:"Zorlu PSM"`
	Date             string   `json:"date" example:"2025-07-12"`
	Genre            string   `json:"genre,omitempty" example:"Rock"`
	Promoters        []string `json:"promoters"`
	Artists          []string `json:"artists"`
	Description      string   `json:"description,omitempty"`
	CanonicalVenueID *int64   `json:"canonical_venue_id,omitempty"`
	CreatedAt        string   `json:"created_at" example:"2025-06-01T10:00:00Z"`
	LastSeen         string   `json:"last_seen" example:"2025-06-02T10:00:00Z"`
}

func toEventResponse(e *event.Event) *EventResponse {
	return &EventResponse{
		ID:               e.ID,
		Provider:         string(e.Provider),
		SourceID:         e.SourceID,
		Name:             e.Name,
		Venue:            e.Venue,
		Date:             e.Date,
		Genre:            e.Genre,
		Promoters:        nonNil(e.Promoters),
		Artists:          nonNil(e.Artists),
		Description:      e.Description,
		CanonicalVenueID: e.CanonicalVenueID,
		CreatedAt:        e.CreatedAt.Format(time.RFC3339),
		LastSeen:         e.LastSeen.Format(time.RFC3339),
	}
}

type PriceResponse struct {
	ID        int64  `json:"id"`
	Category  string `json:"category" example:"Kategori 1"`
	Price     string `json:"price" example:"750.00"`
	SoldOut   bool   `json:"sold_out"`
	Remaining *int   `json:"remaining,omitempty"`
	IsActive  bool   `json:"is_active"`
	CreatedAt string `json:"created_at"`
	LastSeen  string `json:"last_seen"`
}

func toPriceResponse(p *price.Price) PriceResponse {
	return PriceResponse{
		ID:        p.ID,
		Category:  p.Category,
		Price:     p.Amount.StringFixed(2),
		SoldOut:   p.SoldOut,
		Remaining: p.Remaining,
		IsActive:  p.IsActive,
		CreatedAt: p.CreatedAt.Format(time.RFC3339),
		LastSeen:  p.LastSeen.Format(time.RFC3339),
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// List godoc
// @Summary イベント一覧を取得
// @Tags events
// @Produce json
// @Param provider query string false "販売元"
// @Param limit query int false "取得件数" default(20)
// @Param offset query int false "オフセット" default(0)
// @Success 200 {array} EventResponse
// @Router /events [get]
func (h *EventHandler) List(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	offset, _ := strconv.Atoi(c.QueryParam("offset"))
	provider := event.Provider(c.QueryParam("provider"))

	events, err := h.queries.ListEvents(c.Request().Context(), provider, limit, offset)
	if err != nil {
		return err
	}
	resp := make([]*EventResponse, len(events))
	for i, e := range events {
		resp[i] = toEventResponse(e)
	}
	return c.JSON(http.StatusOK, resp)
}

// GetByID godoc
// @Summary イベントを取得
// @Tags events
// @Produce json
// @Param id path int true "イベントID"
// @Success 200 {object} EventResponse
// @Failure 400 {object} api.ErrorResponse
// @Failure 404 {object} api.ErrorResponse
// @Router /events/{id} [get]
func (h *EventHandler) GetByID(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	e, err := h.queries.GetEvent(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toEventResponse(e))
}

// Prices godoc
// @Summary イベントの価格一覧を取得
// @Description 既定では有効な価格のみ返します。all=true で無効化済みの行も含めます
// @Tags events
// @Produce json
// @Param id path int true "イベントID"
// @Param all query bool false "無効な行も含める"
// @Success 200 {array} PriceResponse
// @Failure 404 {object} api.ErrorResponse
// @Router /events/{id}/prices [get]
func (h *EventHandler) Prices(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	all, _ := strconv.ParseBool(c.QueryParam("all"))

	prices, err := h.queries.ListPrices(c.Request().Context(), id, all)
	if err != nil {
		return err
	}
	resp := make([]PriceResponse, len(prices))
	for i, p := range prices {
		resp[i] = toPriceResponse(p)
	}
	return c.JSON(http.StatusOK, resp)
}

// History godoc
// @Summary 価格履歴を取得
// @Tags events
// @Produce json
// @Param id path int true "イベントID"
// @Param category query string false "カテゴリで絞り込み"
// @Success 200 {array} HistoryResponse
// @Failure 404 {object} api.ErrorResponse
// @Router /events/{id}/history [get]
func (h *EventHandler) History(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	entries, err := h.queries.GetHistory(c.Request().Context(), id, c.QueryParam("category"))
	if err != nil {
		return err
	}
	resp := make([]HistoryResponse, len(entries))
	for i, h := range entries {
		resp[i] = toHistoryResponse(h)
	}
	return c.JSON(http.StatusOK, resp)
}

func parseID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "イベントIDが不正です")
	}
	return id, nil
}
