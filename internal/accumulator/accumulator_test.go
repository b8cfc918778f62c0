package accumulator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solar_report/internal/model"
)

var startTime = time.Date(2024, 6, 21, 8, 0, 0, 0, time.UTC)

func newStats() *model.DailyStats {
	return model.NewDailyStats("2024-06-21", startTime)
}

func TestUpdate_FirstSampleNoEnergy(t *testing.T) {
	s := newStats()
	Update(s, 1500, startTime)

	assert.Equal(t, 0.0, s.EnergyWh)
	assert.Len(t, s.Samples, 1)
	assert.Equal(t, 1500.0, s.PeakPowerW)
	assert.Equal(t, startTime, s.PeakTime)
}

func TestUpdate_TrapezoidalIntegration(t *testing.T) {
	s := newStats()
	Update(s, 1000, startTime)
	Update(s, 2000, startTime.Add(30*time.Minute))

	// (1000+2000)/2 W for 30 min = 750 Wh
	assert.InDelta(t, 750.0, s.EnergyWh, 1e-9)

	Update(s, 2000, startTime.Add(89*time.Minute))
	// 2000 W for 59 min
	assert.InDelta(t, 750.0+2000.0*59/60, s.EnergyWh, 1e-9)
}

func TestUpdate_SubMinuteInterval(t *testing.T) {
	s := newStats()
	Update(s, 600, startTime)
	Update(s, 600, startTime.Add(15*time.Second))

	assert.InDelta(t, 600.0*0.25/60, s.EnergyWh, 1e-9)
}

func TestUpdate_GapsContributeNoEnergy(t *testing.T) {
	s := newStats()
	Update(s, 1000, startTime)
	Update(s, 1000, startTime.Add(60*time.Minute))
	assert.Equal(t, 0.0, s.EnergyWh, "exactly 60 minutes is a gap")

	Update(s, 1000, startTime.Add(60*time.Minute))
	assert.Equal(t, 0.0, s.EnergyWh, "zero interval")

	Update(s, 1000, startTime.Add(30*time.Minute))
	assert.Equal(t, 0.0, s.EnergyWh, "negative interval")

	Update(s, 1000, startTime.Add(5*time.Hour))
	assert.Equal(t, 0.0, s.EnergyWh, "long gap")
}

func TestUpdate_PeakKeepsFirstMaximum(t *testing.T) {
	s := newStats()
	powers := []float64{0, 500, 3200, 1200, 3200, 800}
	for i, p := range powers {
		Update(s, p, startTime.Add(time.Duration(i)*5*time.Minute))
	}

	assert.Equal(t, 3200.0, s.PeakPowerW)
	assert.Equal(t, startTime.Add(10*time.Minute), s.PeakTime)
}

func TestUpdate_ProductionWindow(t *testing.T) {
	s := newStats()
	Update(s, 0, startTime)
	assert.Nil(t, s.FirstProduction)
	assert.Nil(t, s.LastProduction)
	assert.Equal(t, 0.0, s.TotalProductionMinutes)

	Update(s, 100, startTime.Add(10*time.Minute))
	Update(s, 0, startTime.Add(20*time.Minute))
	Update(s, 300, startTime.Add(100*time.Minute))
	Update(s, 0, startTime.Add(110*time.Minute))

	require.NotNil(t, s.FirstProduction)
	require.NotNil(t, s.LastProduction)
	assert.Equal(t, startTime.Add(10*time.Minute), *s.FirstProduction)
	assert.Equal(t, startTime.Add(100*time.Minute), *s.LastProduction)
	// Span includes the pause between 20 and 100 minutes.
	assert.InDelta(t, 90.0, s.TotalProductionMinutes, 1e-9)
	assert.False(t, s.FirstProduction.After(*s.LastProduction))
}

func TestUpdate_LargeValues(t *testing.T) {
	s := newStats()
	Update(s, 1e6, startTime)
	Update(s, 1e6, startTime.Add(6*time.Minute))

	assert.InDelta(t, 1e5, s.EnergyWh, 1e-6)
	assert.Equal(t, 1e6, s.PeakPowerW)
}

func TestUpdate_EvictsSamplesOlderThanWindow(t *testing.T) {
	s := newStats()
	Update(s, 100, startTime)
	Update(s, 200, startTime.Add(time.Hour))
	Update(s, 300, startTime.Add(24*time.Hour))

	require.Len(t, s.Samples, 2)
	assert.Equal(t, 200.0, s.Samples[0].PowerW)
	assert.Equal(t, 300.0, s.Samples[1].PowerW)

	Update(s, 400, startTime.Add(25*time.Hour+time.Minute))
	require.Len(t, s.Samples, 2)
	assert.Equal(t, 300.0, s.Samples[0].PowerW)
}

func TestUpdate_EnergyNeverNegativeForNonNegativeInput(t *testing.T) {
	s := newStats()
	for i := 0; i < 200; i++ {
		p := float64((i * 37) % 4000)
		Update(s, p, startTime.Add(time.Duration(i)*3*time.Minute))
		assert.GreaterOrEqual(t, s.EnergyWh, 0.0)
		assert.GreaterOrEqual(t, s.PeakPowerW, p)
	}
}
