package service

import (
	"fmt"
	"slices"

	"github.com/deyectl/deyectl/internal/core/domain"
)

// WeatherJudge classifies forecast days and decides whether upcoming
// discharge should be skipped because predicted solar energy is too low.
type WeatherJudge struct {
	BadConditions []domain.Condition
	MinCloudCover int
}

// ClassifyDay reports whether a day is unfavorable for solar production.
// It is a coarse fallback used only when no kWh estimate exists for the
// day.
func (j WeatherJudge) ClassifyDay(day domain.ForecastDay) bool {
	if slices.Contains(j.BadConditions, day.Condition) {
		return true
	}
	if day.CloudCover >= j.MinCloudCover {
		return true
	}
	return day.PrecipProb >= 70
}

// ShouldSkipDischarge decides whether tonight's discharge should be held
// back because tomorrow will not refill the battery.
//
// With no threshold configured it never skips. A missing estimate is
// insufficient information, not bad weather, so it never skips either. A
// failed or empty forecast also never skips: suppressing the primary
// automation on a forecast outage would cost real money.
func (j WeatherJudge) ShouldSkipDischarge(forecast *domain.Forecast, minSolarKWh float64) (bool, string) {
	if minSolarKWh <= 0 {
		return false, "no solar threshold configured"
	}
	if forecast == nil || !forecast.OK {
		return false, "weather data unavailable"
	}
	day := forecast.Tomorrow()
	if day == nil {
		return false, "weather data unavailable"
	}
	if day.EstimatedSolarKWh == nil {
		return false, fmt.Sprintf("no solar estimate for %s", day.Date)
	}
	est := *day.EstimatedSolarKWh
	if est < minSolarKWh {
		return true, fmt.Sprintf("predicted solar %.1f kWh on %s below threshold %.1f kWh", est, day.Date, minSolarKWh)
	}
	return false, fmt.Sprintf("predicted solar %.1f kWh on %s meets threshold %.1f kWh", est, day.Date, minSolarKWh)
}

// Analyse produces the analysed forecast from a raw provider result:
// per-day solar estimates (dedicated source first, weather-derived
// fallback) and bad weather flags. The input days are copied, never
// mutated.
func Analyse(raw *domain.RawForecast, estimator *SolarEstimator, solarKWh map[string]float64, judge WeatherJudge) *domain.Forecast {
	if raw == nil {
		return nil
	}
	out := &domain.Forecast{
		OK:       raw.OK,
		Location: raw.Location,
		Error:    raw.Error,
		Days:     make([]domain.ForecastDay, len(raw.Days)),
	}
	copy(out.Days, raw.Days)

	for i := range out.Days {
		day := &out.Days[i]
		if kwh, ok := solarKWh[day.Date]; ok {
			v := kwh
			day.EstimatedSolarKWh = &v
			day.SolarSource = domain.SolarSourceForecastAPI
		} else if estimator != nil {
			if est := estimator.EstimateDay(raw.HourlyByDate[day.Date]); est != nil {
				day.EstimatedSolarKWh = est
				day.SolarSource = domain.SolarSourceWeather
			}
		}
		day.IsBadWeather = judge.ClassifyDay(*day)
	}
	return out
}
