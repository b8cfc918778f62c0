package ws

import (
	"go.uber.org/zap"

	"solar_report/internal/model"
)

// Bridge implements scheduler.Sink and scheduler.Observer and broadcasts
// events to the WebSocket hub.
type Bridge struct {
	hub *Hub
	log *zap.Logger
}

func NewBridge(hub *Hub, log *zap.Logger) *Bridge {
	if log == nil {
		log = zap.NewNop()
	}
	return &Bridge{hub: hub, log: log}
}

func (b *Bridge) OnReport(message string, data model.DailyReportData) {
	b.broadcast(TypeReportReady, ReportReadyPayload{Message: message, Data: data})
}

func (b *Bridge) OnSample(dateKey string, powerW, energyWh, peakPowerW float64) {
	b.broadcast(TypeSampleUpdate, SampleUpdatePayload{
		Date:       dateKey,
		PowerW:     powerW,
		EnergyWh:   energyWh,
		PeakPowerW: peakPowerW,
	})
}

// OnStats broadcasts a full snapshot of today's statistics.
func (b *Bridge) OnStats(s model.DailyStats) {
	b.broadcast(TypeStatsToday, StatsFromDaily(s))
}

func (b *Bridge) broadcast(msgType string, payload any) {
	msg, err := NewEnvelope(msgType, payload)
	if err != nil {
		b.log.Error("Error marshaling message", zap.String("type", msgType), zap.Error(err))
		return
	}
	b.hub.Broadcast(msg)
}
