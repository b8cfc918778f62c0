// Package report turns a day's statistics into report data: energy,
// efficiency proxy, comparison against history and a weather guess.
package report

import (
	"math"
	"time"

	"solar_report/internal/model"
	"solar_report/internal/store"
)

// DefaultDailyCapacityKWh is the assumed production of a full day, used for
// the efficiency proxy when no capacity is configured.
const DefaultDailyCapacityKWh = 10.0

// Generator builds DailyReportData from today's stats and the day history.
type Generator struct {
	days        *store.DayStore
	capacityKWh float64
}

// NewGenerator returns a generator comparing against days. A non-positive
// capacity selects DefaultDailyCapacityKWh.
func NewGenerator(days *store.DayStore, capacityKWh float64) *Generator {
	if capacityKWh <= 0 || math.IsNaN(capacityKWh) || math.IsInf(capacityKWh, 0) {
		capacityKWh = DefaultDailyCapacityKWh
	}
	return &Generator{days: days, capacityKWh: capacityKWh}
}

// CapacityKWh returns the capacity used for the efficiency proxy.
func (g *Generator) CapacityKWh() float64 {
	return g.capacityKWh
}

// GenerateReportData computes the report for today, evaluated at ts.
// ts must be in the reporting time zone so that yesterday and the weekly
// window resolve to the right calendar days.
func (g *Generator) GenerateReportData(today model.DailyStats, ts time.Time) model.DailyReportData {
	energyKWh := finite(today.EnergyWh / 1000)

	var yesterdayWh float64
	if y, ok := g.days.Yesterday(ts); ok {
		yesterdayWh = y.EnergyWh
	}

	return model.DailyReportData{
		DateKey:           today.DateKey,
		EnergyKWh:         energyKWh,
		EfficiencyPercent: Efficiency(energyKWh, g.capacityKWh),
		PeakPowerKW:       finite(today.PeakPowerW / 1000),
		PeakTime:          today.PeakTime,
		ProductionHours:   finite(today.TotalProductionMinutes / 60),
		Comparison:        Compare(today.EnergyWh, yesterdayWh, g.days.WeeklyAverageEnergy(ts)),
		Weather:           ClassifyWeather(today.Samples),
	}
}

// Efficiency is today's energy as a percentage of the expected daily
// capacity, capped at 100. It is a coarse proxy, not a physical efficiency.
func Efficiency(energyKWh, capacityKWh float64) float64 {
	if capacityKWh <= 0 {
		return 0
	}
	return finite(math.Min(100, energyKWh/capacityKWh*100))
}

// Compare picks the comparison reference: yesterday if it produced, else the
// weekly average if positive, else a zero comparison against yesterday.
func Compare(todayWh, yesterdayWh, weeklyAvgWh float64) model.Comparison {
	if yesterdayWh > 0 {
		return model.Comparison{
			Percent: finite((todayWh - yesterdayWh) / yesterdayWh * 100),
			Type:    model.CompareYesterday,
		}
	}
	if weeklyAvgWh > 0 {
		return model.Comparison{
			Percent: finite((todayWh - weeklyAvgWh) / weeklyAvgWh * 100),
			Type:    model.CompareAverage,
		}
	}
	return model.Comparison{Percent: 0, Type: model.CompareYesterday}
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
