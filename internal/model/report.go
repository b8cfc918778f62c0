package model

import "time"

type ComparisonType string

const (
	CompareYesterday ComparisonType = "yesterday"
	CompareAverage   ComparisonType = "average"
)

// Comparison is today's production relative to a reference day, in percent.
type Comparison struct {
	Percent float64        `json:"percent"`
	Type    ComparisonType `json:"type"`
}

type Weather string

const (
	WeatherSunny        Weather = "sunny"
	WeatherPartlyCloudy Weather = "partlyCloudy"
	WeatherCloudy       Weather = "cloudy"
	WeatherMixed        Weather = "mixed"
)

// DailyReportData is the numeric content of one daily report.
type DailyReportData struct {
	DateKey           string     `json:"date"`
	EnergyKWh         float64    `json:"energy_kwh"`
	EfficiencyPercent float64    `json:"efficiency_percent"`
	PeakPowerKW       float64    `json:"peak_power_kw"`
	PeakTime          time.Time  `json:"peak_time"`
	ProductionHours   float64    `json:"production_hours"`
	Comparison        Comparison `json:"comparison"`
	Weather           Weather    `json:"weather"`
}
