package model

import "time"

// DateKeyLayout is the calendar-day identity format used to partition per-day state.
const DateKeyLayout = "2006-01-02"

// DateKey returns the YYYY-MM-DD key of t in t's own location.
// Callers convert t into the reporting time zone first.
func DateKey(t time.Time) string {
	return t.Format(DateKeyLayout)
}

// Sample is a single power reading.
type Sample struct {
	Time   time.Time `json:"time"`
	PowerW float64   `json:"power_w"`
}

// DailyStats holds the production statistics of one calendar day.
type DailyStats struct {
	DateKey    string    `json:"date"`
	EnergyWh   float64   `json:"energy_wh"`
	PeakPowerW float64   `json:"peak_power_w"`
	PeakTime   time.Time `json:"peak_time"`
	// FirstProduction and LastProduction bound the samples with power > 0.
	// Both are nil until production starts.
	FirstProduction        *time.Time `json:"first_production,omitempty"`
	LastProduction         *time.Time `json:"last_production,omitempty"`
	TotalProductionMinutes float64    `json:"total_production_minutes"`
	// Samples is the trailing 24h buffer, oldest first.
	Samples []Sample `json:"samples"`
}

// NewDailyStats returns zero-valued stats for the given day.
func NewDailyStats(dateKey string, first time.Time) *DailyStats {
	return &DailyStats{
		DateKey:  dateKey,
		PeakTime: first,
	}
}

// Clone returns a deep copy that shares no memory with s.
func (s *DailyStats) Clone() DailyStats {
	cp := *s
	if s.FirstProduction != nil {
		t := *s.FirstProduction
		cp.FirstProduction = &t
	}
	if s.LastProduction != nil {
		t := *s.LastProduction
		cp.LastProduction = &t
	}
	cp.Samples = make([]Sample, len(s.Samples))
	copy(cp.Samples, s.Samples)
	return cp
}

// LastSample returns the most recent sample in the buffer.
func (s *DailyStats) LastSample() (Sample, bool) {
	if len(s.Samples) == 0 {
		return Sample{}, false
	}
	return s.Samples[len(s.Samples)-1], true
}
