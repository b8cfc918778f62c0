package ws

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"solar_report/internal/model"
	"solar_report/internal/scheduler"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Controller is the part of the scheduler the dashboard drives.
type Controller interface {
	TriggerManualReport() bool
	SetLocale(code string) string
	TodayStats() (model.DailyStats, bool)
	State() scheduler.State
	ReportSentToday() bool
	LocaleCode() string
}

// Handler manages WebSocket connections and routes messages to the
// scheduler.
type Handler struct {
	hub  *Hub
	ctrl Controller
	log  *zap.Logger
}

func NewHandler(hub *Hub, ctrl Controller, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{hub: hub, ctrl: ctrl, log: log}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("WebSocket upgrade error", zap.Error(err))
		return
	}

	client := &Client{
		hub:  h.hub,
		conn: conn,
		send: make(chan []byte, 256),
	}

	h.hub.Register(client)
	go client.writePump()

	// Initial report:state, then stats:today if the day has data
	if msg, err := h.stateMessage(); err == nil {
		client.trySend(msg)
	}
	if stats, ok := h.ctrl.TodayStats(); ok {
		if msg, err := NewEnvelope(TypeStatsToday, StatsFromDaily(stats)); err == nil {
			client.trySend(msg)
		}
	}

	h.readPump(client)
}

func (h *Handler) readPump(c *Client) {
	defer func() {
		h.hub.Unregister(c)
		c.conn.Close()
	}()

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Warn("WebSocket read error", zap.Error(err))
			}
			return
		}

		h.handleMessage(c, msg)
	}
}

func (h *Handler) handleMessage(c *Client, msg []byte) {
	var env Envelope
	if err := json.Unmarshal(msg, &env); err != nil {
		h.log.Warn("Invalid message", zap.Error(err))
		return
	}

	switch env.Type {
	case TypeReportTrigger:
		if !h.ctrl.TriggerManualReport() {
			h.sendError(c, "no statistics for today")
			return
		}
		h.broadcastState()

	case TypeReportSetLocale:
		var p SetLocalePayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			h.log.Warn("Invalid set_locale payload", zap.Error(err))
			return
		}
		h.ctrl.SetLocale(p.Locale)
		h.broadcastState()

	default:
		h.log.Warn("Unknown message type", zap.String("type", env.Type))
	}
}

func (h *Handler) stateMessage() ([]byte, error) {
	return NewEnvelope(TypeReportState, ReportStatePayload{
		State:           string(h.ctrl.State()),
		ReportSentToday: h.ctrl.ReportSentToday(),
		Locale:          h.ctrl.LocaleCode(),
	})
}

func (h *Handler) broadcastState() {
	msg, err := h.stateMessage()
	if err != nil {
		h.log.Error("Error creating report:state message", zap.Error(err))
		return
	}
	h.hub.Broadcast(msg)
}

func (h *Handler) sendError(c *Client, text string) {
	msg, err := NewEnvelope(TypeError, ErrorPayload{Message: text})
	if err != nil {
		return
	}
	c.trySend(msg)
}
