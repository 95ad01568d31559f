package gateway

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"traffic-light/internal/analysis"
	"traffic-light/internal/model"
)

// AnalysisService is what the REST surface needs from the analysis layer.
type AnalysisService interface {
	Current(ctx context.Context, symbol string) (model.Analysis, error)
	History(ctx context.Context, symbol string, limit int) ([]model.TradeSetup, error)
}

// SymbolRequest selects one symbol.
type SymbolRequest struct {
	Symbol string `query:"symbol" validate:"required,max=32"`
}

// HistoryRequest selects a symbol's recent setups.
type HistoryRequest struct {
	Symbol string `query:"symbol" validate:"required,max=32"`
	Limit  int    `query:"limit" default:"100" validate:"gte=1,lte=1000"`
}

// HistoryResponse is the body of /setups/history.
type HistoryResponse struct {
	Symbol string             `json:"symbol"`
	Setups []model.TradeSetup `json:"setups"`
}

// Handlers serves the REST API and websocket upgrades.
type Handlers struct {
	hub      *Hub
	analysis AnalysisService
	latest   model.LatestStore // nil when redis is disabled
	start    time.Time
	ctx      context.Context
	upgrader websocket.Upgrader
}

// NewHandlers creates the HTTP handlers. ctx bounds websocket sessions.
func NewHandlers(ctx context.Context, hub *Hub, svc AnalysisService, latest model.LatestStore, start time.Time) *Handlers {
	return &Handlers{
		hub:      hub,
		analysis: svc,
		latest:   latest,
		start:    start,
		ctx:      ctx,
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes mounts every route on e.
func (h *Handlers) RegisterRoutes(e *echo.Echo) {
	e.HTTPErrorHandler = HTTPErrorHandler

	g := e.Group("/api/v1")
	g.GET("/analysis/current", h.CurrentAnalysis)
	g.GET("/setups/history", h.SetupHistory)
	g.GET("/market/latest", h.LatestMarketData)
	g.GET("/stats", h.Stats)

	e.GET("/ws", h.ServeWS)
	e.GET("/ws/:client_id", h.ServeWS)
}

// CurrentAnalysis handles GET /api/v1/analysis/current.
func (h *Handlers) CurrentAnalysis(c echo.Context) error {
	req := &SymbolRequest{}
	if err := bindAndValidate(c, req); err != nil {
		return err
	}

	res, err := h.analysis.Current(c.Request().Context(), req.Symbol)
	if errors.Is(err, analysis.ErrNoRecentData) {
		return notFound("No recent market data found")
	}
	if err != nil {
		return internalError(err)
	}
	return c.JSON(http.StatusOK, res)
}

// SetupHistory handles GET /api/v1/setups/history.
func (h *Handlers) SetupHistory(c echo.Context) error {
	req := &HistoryRequest{}
	if err := bindAndValidate(c, req); err != nil {
		return err
	}

	setups, err := h.analysis.History(c.Request().Context(), req.Symbol, req.Limit)
	if err != nil {
		return internalError(err)
	}
	if setups == nil {
		setups = []model.TradeSetup{}
	}
	return c.JSON(http.StatusOK, HistoryResponse{Symbol: req.Symbol, Setups: setups})
}

// LatestMarketData handles GET /api/v1/market/latest.
func (h *Handlers) LatestMarketData(c echo.Context) error {
	req := &SymbolRequest{}
	if err := bindAndValidate(c, req); err != nil {
		return err
	}
	if h.latest == nil {
		return notFound("Latest market data cache is disabled")
	}

	md, err := h.latest.LatestMarketData(c.Request().Context(), req.Symbol)
	if err != nil {
		return internalError(err)
	}
	if md == nil {
		return notFound("No recent market data found")
	}
	return c.JSON(http.StatusOK, md)
}

// Stats handles GET /api/v1/stats.
func (h *Handlers) Stats(c echo.Context) error {
	return c.JSON(http.StatusOK, h.hub.Stats(h.start))
}

// ServeWS upgrades the request and hands the socket to the hub.
func (h *Handlers) ServeWS(c echo.Context) error {
	clientID := c.Param("client_id")
	if clientID == "" {
		clientID = uuid.NewString()
	}

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		log.Warn().Err(err).Str("component", "http").Msg("ws upgrade failed")
		return nil
	}
	h.hub.HandleWSRequest(h.ctx, conn, clientID)
	return nil
}
