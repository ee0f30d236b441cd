package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/sanosuguru/go-event-price-tracker/internal/application"
	"github.com/sanosuguru/go-event-price-tracker/internal/domain/event"
	"github.com/sanosuguru/go-event-price-tracker/internal/domain/price"
	"github.com/sanosuguru/go-event-price-tracker/internal/domain/snapshot"
	"github.com/sanosuguru/go-event-price-tracker/internal/domain/transaction"
	"github.com/sanosuguru/go-event-price-tracker/internal/domain/venue"
	"github.com/sanosuguru/go-event-price-tracker/internal/pkg/logger"
)

// ErrorResponse はエラーレスポンスの統一フォーマット
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code,omitempty"`
	Kind    string `json:"kind,omitempty"`
	Details string `json:"details,omitempty"`
}

// StatusCode はエラーをHTTPステータスに変換する
//   - 入力不正: 400
//   - 存在しない: 404
//   - データ不整合: 409
//   - 一時的エラー: 503
func StatusCode(err error) int {
	var he *echo.HTTPError
	switch {
	case errors.As(err, &he):
		return he.Code
	case errors.Is(err, snapshot.ErrInvalidSnapshot),
		errors.Is(err, venue.ErrVenueNameRequired),
		errors.Is(err, venue.ErrInvalidThreshold):
		return http.StatusBadRequest
	case errors.Is(err, event.ErrEventNotFound), errors.Is(err, venue.ErrVenueNotFound):
		return http.StatusNotFound
	case errors.Is(err, price.ErrInvariantViolation):
		return http.StatusConflict
	case errors.Is(err, transaction.ErrTransient):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// CustomHTTPErrorHandler はカスタムエラーハンドラー
func CustomHTTPErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := StatusCode(err)
	resp := ErrorResponse{Code: code}

	var he *echo.HTTPError
	switch {
	case errors.As(err, &he):
		if m, ok := he.Message.(string); ok {
			resp.Error = m
		} else {
			resp.Error = http.StatusText(code)
		}
	case code == http.StatusInternalServerError:
		// 内部エラーの詳細はログにのみ出力する
		resp.Error = "内部サーバーエラー"
	default:
		resp.Error = err.Error()
		if code != http.StatusNotFound {
			resp.Kind = string(application.ClassifyError(err))
		}
	}

	// エラーログを出力（5xx エラーの場合）
	if code >= 500 {
		logger.Error("サーバーエラー",
			zap.Int("status", code),
			zap.String("path", c.Request().URL.Path),
			zap.Error(err),
		)
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(code)
	} else {
		err = c.JSON(code, resp)
	}
	if err != nil {
		logger.Error("エラーレスポンス送信失敗", zap.Error(err))
	}
}
