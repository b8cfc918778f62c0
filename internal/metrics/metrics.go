// Package metrics exposes Prometheus instrumentation for the report engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"solar_report/internal/model"
)

const namespace = "solar_report"

// Metrics holds the collectors. It implements scheduler.Observer and
// scheduler.Sink.
type Metrics struct {
	reg *prometheus.Registry

	SamplesTotal        prometheus.Counter
	PowerW              prometheus.Gauge
	EnergyTodayWh       prometheus.Gauge
	PeakPowerTodayW     prometheus.Gauge
	ReportsTotal        prometheus.Counter
	LastReportEnergyKWh prometheus.Gauge
	IngestErrorsTotal   *prometheus.CounterVec
	PublishErrorsTotal  prometheus.Counter
}

// New registers all collectors on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		reg: reg,
		SamplesTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "samples_total",
			Help:      "Power samples ingested.",
		}),
		PowerW: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "power_watts",
			Help:      "Most recent power sample.",
		}),
		EnergyTodayWh: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "energy_today_watt_hours",
			Help:      "Energy integrated so far for the current day.",
		}),
		PeakPowerTodayW: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "peak_power_today_watts",
			Help:      "Peak power seen so far for the current day.",
		}),
		ReportsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_total",
			Help:      "Daily reports emitted.",
		}),
		LastReportEnergyKWh: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_report_energy_kwh",
			Help:      "Energy of the most recent daily report.",
		}),
		IngestErrorsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_errors_total",
			Help:      "Power messages rejected by the ingestion layer.",
		}, []string{"reason"}),
		PublishErrorsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_errors_total",
			Help:      "Report deliveries that failed.",
		}),
	}
}

func (m *Metrics) OnSample(_ string, powerW, energyWh, peakPowerW float64) {
	m.SamplesTotal.Inc()
	m.PowerW.Set(powerW)
	m.EnergyTodayWh.Set(energyWh)
	m.PeakPowerTodayW.Set(peakPowerW)
}

func (m *Metrics) OnReport(_ string, data model.DailyReportData) {
	m.ReportsTotal.Inc()
	m.LastReportEnergyKWh.Set(data.EnergyKWh)
}

// IngestError counts a rejected message.
func (m *Metrics) IngestError(reason string) {
	m.IngestErrorsTotal.WithLabelValues(reason).Inc()
}

// PublishError counts a failed delivery.
func (m *Metrics) PublishError() {
	m.PublishErrorsTotal.Inc()
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.reg
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}
