// Package accumulator folds power samples into a day's production statistics.
//
// Update assumes samples arrive with non-decreasing timestamps. Out-of-order
// samples are not rejected; they are treated as a gap and contribute no
// energy, but they still enter the sample buffer.
package accumulator

import (
	"time"

	"solar_report/internal/model"
)

const (
	// MaxIntegrationGap is the longest interval between two samples that is
	// still integrated. Longer (or non-positive) intervals count as a gap.
	MaxIntegrationGap = 60 * time.Minute
	// SampleWindow is how far back the sample buffer reaches.
	SampleWindow = 24 * time.Hour
)

// Update adds one sample to s. Power is expected to be >= 0; clamping is the
// ingestion layer's job.
func Update(s *model.DailyStats, powerW float64, ts time.Time) {
	// Trapezoidal energy integration against the previous sample.
	if last, ok := s.LastSample(); ok {
		dt := ts.Sub(last.Time)
		if dt > 0 && dt < MaxIntegrationGap {
			avgPower := (powerW + last.PowerW) / 2
			s.EnergyWh += avgPower * dt.Minutes() / 60
		}
	}

	if powerW > s.PeakPowerW {
		s.PeakPowerW = powerW
		s.PeakTime = ts
	}

	if powerW > 0 {
		if s.FirstProduction == nil {
			first := ts
			s.FirstProduction = &first
		}
		last := ts
		s.LastProduction = &last
	}

	s.Samples = append(s.Samples, model.Sample{Time: ts, PowerW: powerW})
	evictBefore(s, ts.Add(-SampleWindow))

	if s.FirstProduction != nil && s.LastProduction != nil {
		s.TotalProductionMinutes = s.LastProduction.Sub(*s.FirstProduction).Minutes()
	}
}

// evictBefore drops samples at or before cutoff from the front of the buffer.
func evictBefore(s *model.DailyStats, cutoff time.Time) {
	i := 0
	for i < len(s.Samples) && !s.Samples[i].Time.After(cutoff) {
		i++
	}
	if i > 0 {
		s.Samples = s.Samples[i:]
	}
}
