package service

import (
	"math"

	"github.com/deyectl/deyectl/internal/core/domain"
)

// SolarEstimator converts weather observations into a predicted daily
// energy yield for a system of known panel capacity. It is the fallback
// path when no dedicated solar forecast is available.
type SolarEstimator struct {
	PanelKWp float64
	Latitude float64
}

// intradayWeight is an empirical solar-intensity curve over the daylight
// hours 06-19. Output is low around sunrise and sunset and peaks between
// 11:00 and 14:00. The weights sum to 1 across the full day.
var intradayWeight = map[int]float64{
	6: 0.02, 7: 0.03, 8: 0.05, 9: 0.07, 10: 0.09,
	11: 0.11, 12: 0.12, 13: 0.12, 14: 0.11, 15: 0.09,
	16: 0.07, 17: 0.05, 18: 0.04, 19: 0.03,
}

// conditionFactor is the multiplicative floor imposed by adverse weather
// on top of the cloud cover de-rating.
var conditionFactor = map[domain.Condition]float64{
	domain.ConditionThunderstorm: 0.10,
	domain.ConditionRain:         0.25,
	domain.ConditionSnow:         0.30,
	domain.ConditionDrizzle:      0.35,
	domain.ConditionFog:          0.45,
}

// baseKWhPerKWp is the clear-sky daily yield ceiling per kWp, chosen by
// latitude band to approximate the astronomical ceiling.
func baseKWhPerKWp(latitude float64) float64 {
	switch lat := math.Abs(latitude); {
	case lat < 25:
		return 5.5
	case lat < 35:
		return 5.0
	case lat < 45:
		return 4.2
	case lat < 55:
		return 3.5
	case lat < 65:
		return 2.8
	default:
		return 2.0
	}
}

// sampleFactor is the weather de-rating of a single sub-daily sample.
// Cloud cover reduces output roughly linearly up to a 75% reduction at full
// overcast; adverse conditions impose an additional multiplicative factor;
// precipitation probability applies a further mild penalty up to 30% at
// certainty.
func sampleFactor(s domain.HourSample) float64 {
	factor := 1.0 - 0.75*float64(clamp(s.CloudCover, 0, 100))/100.0
	if cf, ok := conditionFactor[s.Condition]; ok {
		factor *= cf
	}
	factor *= 1.0 - 0.30*float64(clamp(s.PrecipProb, 0, 100))/100.0
	return factor
}

// EstimateDay predicts the daily yield in kWh from sub-daily samples.
// Returns nil when no sample falls inside the daylight hours: that is an
// explicit "insufficient data" signal, never a fabricated zero.
func (e SolarEstimator) EstimateDay(samples []domain.HourSample) *float64 {
	var weighted, weightSum float64
	for _, s := range samples {
		w, daylight := intradayWeight[s.Hour]
		if !daylight {
			continue
		}
		weighted += w * sampleFactor(s)
		weightSum += w
	}
	if weightSum == 0 {
		return nil
	}
	// 3-hourly feeds cover only part of the curve; normalizing by the
	// covered weight keeps sparse feeds comparable to hourly ones.
	kwh := e.PanelKWp * baseKWhPerKWp(e.Latitude) * (weighted / weightSum)
	kwh = math.Round(kwh*100) / 100
	return &kwh
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
