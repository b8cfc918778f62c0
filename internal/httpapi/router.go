// Package httpapi serves the report engine over HTTP: health, today's
// statistics, manual trigger, locale switching, pulse state, metrics and
// the dashboard WebSocket.
package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"solar_report/internal/model"
	"solar_report/internal/scheduler"
)

// Controller is the scheduler surface exposed over HTTP.
type Controller interface {
	TriggerManualReport() bool
	SetLocale(code string) string
	TodayStats() (model.DailyStats, bool)
	State() scheduler.State
	ReportSentToday() bool
	LocaleCode() string
}

// PulseState reports the momentary report pulse.
type PulseState interface {
	Active() bool
}

// Deps are the collaborators behind the routes. Metrics, WebSocket and
// Pulse are optional.
type Deps struct {
	Controller Controller
	Locales    []string
	Pulse      PulseState
	Metrics    http.Handler
	WebSocket  http.Handler
	Logger     *zap.Logger
}

func NewRouter(d Deps) *mux.Router {
	h := &handlers{deps: d, log: d.Logger}
	if h.log == nil {
		h.log = zap.NewNop()
	}

	r := mux.NewRouter()
	r.HandleFunc("/health", h.health).Methods(http.MethodGet)
	r.HandleFunc("/stats/today", h.statsToday).Methods(http.MethodGet)
	r.HandleFunc("/report/state", h.reportState).Methods(http.MethodGet)
	r.HandleFunc("/report/trigger", h.trigger).Methods(http.MethodPost)
	r.HandleFunc("/report/locale", h.getLocale).Methods(http.MethodGet)
	r.HandleFunc("/report/locale", h.setLocale).Methods(http.MethodPut, http.MethodPost)
	r.HandleFunc("/report/pulse", h.pulse).Methods(http.MethodGet)
	if d.Metrics != nil {
		r.Handle("/metrics", d.Metrics).Methods(http.MethodGet)
	}
	if d.WebSocket != nil {
		r.Handle("/ws", d.WebSocket)
	}
	return r
}
