package gateway

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/eleven-am/voice-client/internal/capture"
	"github.com/eleven-am/voice-client/internal/shared"
)

// Handler exposes the UI-facing surface: the command stream, a state
// snapshot for reconnecting UIs, and a liveness probe.
type Handler struct {
	hub         *Hub
	ctrl        Controller
	bridge      *DeviceBridge
	sink        *StreamSink
	constraints capture.Constraints
	logger      *slog.Logger
}

type HandlerConfig struct {
	Hub         *Hub
	Controller  Controller
	Bridge      *DeviceBridge
	Sink        *StreamSink
	Constraints capture.Constraints
	Log         *slog.Logger
}

func NewHandler(cfg HandlerConfig) *Handler {
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	return &Handler{
		hub:         cfg.Hub,
		ctrl:        cfg.Controller,
		bridge:      cfg.Bridge,
		sink:        cfg.Sink,
		constraints: cfg.Constraints,
		logger:      cfg.Log,
	}
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)

	g := e.Group("/api/v1/voice")
	g.GET("/stream", h.HandleStream)
	g.GET("/state", h.GetState)
}

func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// GetState returns the engine snapshot so a reconnecting UI can redraw
// its controls without waiting for the next event.
func (h *Handler) GetState(c echo.Context) error {
	return c.JSON(http.StatusOK, h.ctrl.Snapshot())
}

// HandleStream upgrades to the bidirectional command stream. Only one UI
// is served at a time; a fresh connection displaces the previous one.
func (h *Handler) HandleStream(c echo.Context) error {
	if !websocket.IsWebSocketUpgrade(c.Request()) {
		return shared.BadRequest("websocket_required", "this endpoint only accepts websocket upgrade requests")
	}

	ws, err := wsUpgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return err
	}

	conn := NewConn(ws, h.logger)
	sess := NewSession(SessionConfig{
		Conn:        conn,
		Controller:  h.ctrl,
		Bridge:      h.bridge,
		Sink:        h.sink,
		Constraints: h.constraints,
		Log:         h.logger,
	})

	h.hub.register(sess)
	h.logger.Info("ui connected")

	go conn.writePump()
	conn.readPump(sess.handle)

	h.hub.unregister(sess)
	h.logger.Info("ui disconnected")
	return nil
}
