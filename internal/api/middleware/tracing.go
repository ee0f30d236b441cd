package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/sanosuguru/go-event-price-tracker/internal/pkg/telemetry"
)

// Tracing はリクエストごとにスパンを開始するミドルウェア
// 照合処理のスパンはこのスパンの子になる
func Tracing() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			ctx, span := telemetry.StartSpan(req.Context(), req.Method+" "+routePath(c),
				attribute.String("http.method", req.Method),
				attribute.String("http.request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)
			defer span.End()

			c.SetRequest(req.WithContext(ctx))

			err := next(c)
			if err != nil {
				c.Error(err)
				telemetry.RecordError(span, err)
			}
			status := c.Response().Status
			span.SetAttributes(attribute.Int("http.status_code", status))
			if status >= http.StatusInternalServerError {
				span.SetStatus(codes.Error, http.StatusText(status))
			}
			return nil
		}
	}
}

// routePath はメトリクスのラベル爆発を避けるためルート定義のパスを返す
func routePath(c echo.Context) string {
	if p := c.Path(); p != "" {
		return p
	}
	return c.Request().URL.Path
}
