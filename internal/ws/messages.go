package ws

import (
	"encoding/json"
	"time"

	"solar_report/internal/model"
)

// Envelope wraps all WebSocket messages with a type discriminator.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Message type constants
const (
	// Client -> Server
	TypeReportTrigger   = "report:trigger"
	TypeReportSetLocale = "report:set_locale"

	// Server -> Client
	TypeReportReady  = "report:ready"
	TypeReportState  = "report:state"
	TypeStatsToday   = "stats:today"
	TypeSampleUpdate = "sample:update"
	TypeError        = "error"
)

// Client -> Server messages

type SetLocalePayload struct {
	Locale string `json:"locale"`
}

// Server -> Client messages

type ReportReadyPayload struct {
	Message string                `json:"message"`
	Data    model.DailyReportData `json:"data"`
}

type ReportStatePayload struct {
	State           string `json:"state"`
	ReportSentToday bool   `json:"report_sent_today"`
	Locale          string `json:"locale"`
}

type SampleUpdatePayload struct {
	Date       string  `json:"date"`
	PowerW     float64 `json:"power_w"`
	EnergyWh   float64 `json:"energy_wh"`
	PeakPowerW float64 `json:"peak_power_w"`
}

// StatsTodayPayload is DailyStats without the sample buffer.
type StatsTodayPayload struct {
	Date                   string  `json:"date"`
	EnergyKWh              float64 `json:"energy_kwh"`
	PeakPowerW             float64 `json:"peak_power_w"`
	PeakTime               string  `json:"peak_time"`
	FirstProduction        string  `json:"first_production,omitempty"`
	LastProduction         string  `json:"last_production,omitempty"`
	TotalProductionMinutes float64 `json:"total_production_minutes"`
	SampleCount            int     `json:"sample_count"`
	LastPowerW             float64 `json:"last_power_w"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

func NewEnvelope(msgType string, payload any) ([]byte, error) {
	var raw json.RawMessage
	if payload != nil {
		var err error
		raw, err = json.Marshal(payload)
		if err != nil {
			return nil, err
		}
	}
	return json.Marshal(Envelope{Type: msgType, Payload: raw})
}

func StatsFromDaily(s model.DailyStats) StatsTodayPayload {
	p := StatsTodayPayload{
		Date:                   s.DateKey,
		EnergyKWh:              s.EnergyWh / 1000,
		PeakPowerW:             s.PeakPowerW,
		PeakTime:               s.PeakTime.Format(time.RFC3339),
		TotalProductionMinutes: s.TotalProductionMinutes,
		SampleCount:            len(s.Samples),
	}
	if s.FirstProduction != nil {
		p.FirstProduction = s.FirstProduction.Format(time.RFC3339)
	}
	if s.LastProduction != nil {
		p.LastProduction = s.LastProduction.Format(time.RFC3339)
	}
	if last, ok := s.LastSample(); ok {
		p.LastPowerW = last.PowerW
	}
	return p
}
