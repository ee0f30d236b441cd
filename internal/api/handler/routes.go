package handler

import "github.com/labstack/echo/v4"

// Handlers はルーティング対象のハンドラー一式
type Handlers struct {
	Health    *HealthHandler
	Snapshots *SnapshotHandler
	Events    *EventHandler
	Venues    *VenueHandler
}

// RegisterRoutes は /health, /ready と /api/v1 以下のルートを登録する
func RegisterRoutes(e *echo.Echo, h Handlers) {
	e.GET("/health", h.Health.Check)
	e.GET("/ready", h.Health.Ready)

	v1 := e.Group("/api/v1")

	v1.POST("/snapshots", h.Snapshots.Reconcile)
	v1.POST("/snapshots/batch", h.Snapshots.ReconcileBatch)
	v1.POST("/snapshots/queue", h.Snapshots.Enqueue)

	v1.GET("/events", h.Events.List)
	v1.GET("/events/:id", h.Events.GetByID)
	v1.GET("/events/:id/prices", h.Events.Prices)
	v1.GET("/events/:id/history", h.Events.History)

	v1.POST("/venues", h.Venues.Create)
	v1.POST("/venues/aliases", h.Venues.CreateAlias)
	v1.GET("/venues/unmatched", h.Venues.Unmatched)
}
