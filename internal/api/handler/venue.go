package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/sanosuguru/go-event-price-tracker/internal/domain/venue"
)

// VenueHandler は会場マスタの管理API
type VenueHandler struct {
	venues VenueServiceInterface
}

func NewVenueHandler(venues VenueServiceInterface) *VenueHandler {
	return &VenueHandler{venues: venues}
}

type CreateVenueRequest struct {
	Name     string `json:"name" validate:"required" example:"Zorlu PSM"`
	City     string `json:"city" example:"İstanbul"`
	Capacity *int   `json:"capacity,omitempty" validate:"omitempty,gt=0" example:"2300"`
}

type VenueResponse struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	City     string `json:"city"`
	Capacity *int   `json:"capacity,omitempty"`
}

type CreateAliasRequest struct {
	RawName string `json:"raw_name" validate:"required" example:"Zorlu Center PSM"`
	VenueID int64  `json:"venue_id" validate:"required,gt=0" example:"1"`
}

type UnmatchedResponse struct {
	Provider string `json:"provider"`
	RawName  string `json:"raw_name"`
}

// Create godoc
// @Summary 正規会場を登録
// @Tags venues
// @Accept json
// @Produce json
// @Param request body CreateVenueRequest true "会場"
// @Success 201 {object} VenueResponse
// @Failure 400 {object} api.ErrorResponse
// @Router /venues [post]
func (h *VenueHandler) Create(c echo.Context) error {
	var req CreateVenueRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "リクエストの形式が不正です")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	v := &venue.CanonicalVenue{Name: req.Name, City: req.City, Capacity: req.Capacity}
	if err := h.venues.RegisterCanonical(c.Request().Context(), v); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, VenueResponse{ID: v.ID, Name: v.Name, City: v.City, Capacity: v.Capacity})
}

// CreateAlias godoc
// @Summary 会場名の別名を登録
// @Description 未解決の会場名を正規会場に手動で紐付けます
// @Tags venues
// @Accept json
// @Param request body CreateAliasRequest true "別名"
// @Success 204
// @Failure 400 {object} api.ErrorResponse
// @Failure 404 {object} api.ErrorResponse
// @Router /venues/aliases [post]
func (h *VenueHandler) CreateAlias(c echo.Context) error {
	var req CreateAliasRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "リクエストの形式が不正です")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	if err := h.venues.RegisterAlias(c.Request().Context(), req.RawName, req.VenueID); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// Unmatched godoc
// @Summary 未解決の会場名一覧
// @Tags venues
// @Produce json
// @Param limit query int false "取得件数" default(20)
// @Param offset query int false "オフセット" default(0)
// @Success 200 {array} UnmatchedResponse
// @Router /venues/unmatched [get]
func (h *VenueHandler) Unmatched(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	offset, _ := strconv.Atoi(c.QueryParam("offset"))

	list, err := h.venues.ListUnmatched(c.Request().Context(), limit, offset)
	if err != nil {
		return err
	}
	resp := make([]UnmatchedResponse, len(list))
	for i, u := range list {
		resp[i] = UnmatchedResponse{Provider: u.Provider, RawName: u.RawName}
	}
	return c.JSON(http.StatusOK, resp)
}
