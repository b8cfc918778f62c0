package report

import (
	"math"

	"solar_report/internal/model"
)

// Empirical thresholds for classifying the day's power curve.
const (
	minWeatherSamples = 10

	sunnyMaxPowerW = 2000
	sunnyMeanW     = 800
	sunnyMaxCV     = 0.3

	partlyCloudyMaxPowerW = 1000
	partlyCloudyMaxCV     = 0.5

	cloudyMaxPowerW = 500
)

// CurveStats summarises a power curve.
type CurveStats struct {
	MaxPowerW  float64
	MeanPowerW float64
	// CV is the coefficient of variation (population stddev / mean), 0 if
	// the mean is 0.
	CV float64
}

// AnalyzeCurve computes max, mean and coefficient of variation of samples.
func AnalyzeCurve(samples []model.Sample) CurveStats {
	if len(samples) == 0 {
		return CurveStats{}
	}
	var cs CurveStats
	var sum float64
	for i, s := range samples {
		if i == 0 || s.PowerW > cs.MaxPowerW {
			cs.MaxPowerW = s.PowerW
		}
		sum += s.PowerW
	}
	n := float64(len(samples))
	cs.MeanPowerW = sum / n

	if len(samples) < 2 || cs.MeanPowerW <= 0 {
		return cs
	}
	var sq float64
	for _, s := range samples {
		d := s.PowerW - cs.MeanPowerW
		sq += d * d
	}
	cs.CV = math.Sqrt(sq/n) / cs.MeanPowerW
	return cs
}

// ClassifyWeather guesses the day's weather from the shape of the power
// curve. Fewer than ten samples always yields mixed.
func ClassifyWeather(samples []model.Sample) model.Weather {
	if len(samples) < minWeatherSamples {
		return model.WeatherMixed
	}
	return Classify(AnalyzeCurve(samples))
}

// Classify maps curve statistics to a weather class. The first matching
// rule wins.
func Classify(cs CurveStats) model.Weather {
	switch {
	case cs.MaxPowerW > sunnyMaxPowerW && cs.MeanPowerW > sunnyMeanW && cs.CV < sunnyMaxCV:
		return model.WeatherSunny
	case cs.MaxPowerW > partlyCloudyMaxPowerW && cs.CV < partlyCloudyMaxCV:
		return model.WeatherPartlyCloudy
	case cs.MaxPowerW < cloudyMaxPowerW:
		return model.WeatherCloudy
	default:
		return model.WeatherMixed
	}
}
