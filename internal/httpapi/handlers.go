package httpapi

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

type handlers struct {
	deps Deps
	log  *zap.Logger
}

type stateResponse struct {
	State           string   `json:"state"`
	ReportSentToday bool     `json:"report_sent_today"`
	Locale          string   `json:"locale"`
	Locales         []string `json:"locales,omitempty"`
}

type localeRequest struct {
	Locale string `json:"locale"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (h *handlers) statsToday(w http.ResponseWriter, r *http.Request) {
	stats, ok := h.deps.Controller.TodayStats()
	if !ok {
		h.writeJSON(w, http.StatusNotFound, errorResponse{Error: "no statistics for today"})
		return
	}
	h.writeJSON(w, http.StatusOK, stats)
}

func (h *handlers) state() stateResponse {
	c := h.deps.Controller
	return stateResponse{
		State:           string(c.State()),
		ReportSentToday: c.ReportSentToday(),
		Locale:          c.LocaleCode(),
		Locales:         h.deps.Locales,
	}
}

func (h *handlers) reportState(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.state())
}

func (h *handlers) trigger(w http.ResponseWriter, r *http.Request) {
	if !h.deps.Controller.TriggerManualReport() {
		h.writeJSON(w, http.StatusConflict, errorResponse{Error: "no statistics for today"})
		return
	}
	h.writeJSON(w, http.StatusAccepted, h.state())
}

func (h *handlers) getLocale(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, localeRequest{Locale: h.deps.Controller.LocaleCode()})
}

func (h *handlers) setLocale(w http.ResponseWriter, r *http.Request) {
	var req localeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<10)).Decode(&req); err != nil || req.Locale == "" {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "expected {\"locale\": \"<code>\"}"})
		return
	}
	h.writeJSON(w, http.StatusOK, localeRequest{Locale: h.deps.Controller.SetLocale(req.Locale)})
}

func (h *handlers) pulse(w http.ResponseWriter, r *http.Request) {
	active := false
	if h.deps.Pulse != nil {
		active = h.deps.Pulse.Active()
	}
	h.writeJSON(w, http.StatusOK, map[string]bool{"active": active})
}

func (h *handlers) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Warn("Failed to write response", zap.Error(err))
	}
}
