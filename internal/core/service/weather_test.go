package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deyectl/deyectl/internal/core/domain"
)

func testJudge() WeatherJudge {
	return WeatherJudge{
		BadConditions: []domain.Condition{domain.ConditionRain, domain.ConditionThunderstorm, domain.ConditionDrizzle, domain.ConditionSnow},
		MinCloudCover: 70,
	}
}

func kwh(v float64) *float64 {
	return &v
}

func forecastWithTomorrow(est *float64) *domain.Forecast {
	return &domain.Forecast{
		OK: true,
		Days: []domain.ForecastDay{
			{Date: "2025-06-15"},
			{Date: "2025-06-16", EstimatedSolarKWh: est},
		},
	}
}

func TestShouldSkipDischargeNoThreshold(t *testing.T) {
	j := testJudge()

	for _, threshold := range []float64{0, -1} {
		skip, reason := j.ShouldSkipDischarge(forecastWithTomorrow(kwh(0.1)), threshold)
		assert.False(t, skip)
		assert.Equal(t, "no solar threshold configured", reason)
	}
}

func TestShouldSkipDischargeBelowThreshold(t *testing.T) {
	j := testJudge()

	skip, reason := j.ShouldSkipDischarge(forecastWithTomorrow(kwh(4.2)), 15)
	assert.True(t, skip)
	assert.Contains(t, reason, "below threshold")

	skip, reason = j.ShouldSkipDischarge(forecastWithTomorrow(kwh(18.0)), 15)
	assert.False(t, skip)
	assert.Contains(t, reason, "meets threshold")

	skip, _ = j.ShouldSkipDischarge(forecastWithTomorrow(kwh(15.0)), 15)
	assert.False(t, skip, "exactly at threshold is enough")
}

func TestShouldSkipDischargeFailsOpen(t *testing.T) {
	j := testJudge()

	skip, reason := j.ShouldSkipDischarge(nil, 15)
	assert.False(t, skip)
	assert.Equal(t, "weather data unavailable", reason)

	skip, _ = j.ShouldSkipDischarge(&domain.Forecast{OK: false, Error: "upstream down"}, 15)
	assert.False(t, skip)

	skip, _ = j.ShouldSkipDischarge(&domain.Forecast{OK: true}, 15)
	assert.False(t, skip, "empty day list fails open")

	skip, reason = j.ShouldSkipDischarge(forecastWithTomorrow(nil), 15)
	assert.False(t, skip, "missing estimate is insufficient information, not bad weather")
	assert.Contains(t, reason, "no solar estimate")
}

func TestShouldSkipDischargeSingleDayForecast(t *testing.T) {
	j := testJudge()
	f := &domain.Forecast{
		OK:   true,
		Days: []domain.ForecastDay{{Date: "2025-06-15", EstimatedSolarKWh: kwh(3.0)}},
	}
	skip, _ := j.ShouldSkipDischarge(f, 15)
	assert.True(t, skip, "with only one day available, today stands in for tomorrow")
}

func TestClassifyDay(t *testing.T) {
	j := testJudge()

	assert.False(t, j.ClassifyDay(domain.ForecastDay{Condition: domain.ConditionClear, CloudCover: 20}))
	assert.True(t, j.ClassifyDay(domain.ForecastDay{Condition: domain.ConditionRain, CloudCover: 10}))
	assert.True(t, j.ClassifyDay(domain.ForecastDay{Condition: domain.ConditionClear, CloudCover: 70}), "cloud threshold is inclusive")
	assert.True(t, j.ClassifyDay(domain.ForecastDay{Condition: domain.ConditionClear, CloudCover: 10, PrecipProb: 80}))
	assert.False(t, j.ClassifyDay(domain.ForecastDay{Condition: domain.ConditionFog, CloudCover: 10}), "fog is not in the bad set by default")
}

func TestAnalysePrefersDedicatedSolarSource(t *testing.T) {
	raw := &domain.RawForecast{
		OK:       true,
		Location: "Madrid",
		Days: []domain.ForecastDay{
			{Date: "2025-06-15", Condition: domain.ConditionClear, CloudCover: 10},
			{Date: "2025-06-16", Condition: domain.ConditionClear, CloudCover: 10},
		},
		HourlyByDate: map[string][]domain.HourSample{
			"2025-06-15": clearDay(),
			"2025-06-16": clearDay(),
		},
	}
	estimator := &SolarEstimator{PanelKWp: 5.0, Latitude: 40.0}
	solar := map[string]float64{"2025-06-15": 17.3}

	out := Analyse(raw, estimator, solar, testJudge())
	require.NotNil(t, out)
	require.Len(t, out.Days, 2)

	today, tomorrow := out.Days[0], out.Days[1]
	require.NotNil(t, today.EstimatedSolarKWh)
	assert.Equal(t, 17.3, *today.EstimatedSolarKWh)
	assert.Equal(t, domain.SolarSourceForecastAPI, today.SolarSource)

	require.NotNil(t, tomorrow.EstimatedSolarKWh, "weather-derived fallback fills the gap")
	assert.Equal(t, domain.SolarSourceWeather, tomorrow.SolarSource)

	// Input is never mutated.
	assert.Nil(t, raw.Days[0].EstimatedSolarKWh)
}

func TestAnalyseBadWeatherFlags(t *testing.T) {
	raw := &domain.RawForecast{
		OK: true,
		Days: []domain.ForecastDay{
			{Date: "2025-06-15", Condition: domain.ConditionClear, CloudCover: 20},
			{Date: "2025-06-16", Condition: domain.ConditionThunderstorm, CloudCover: 95},
		},
	}
	out := Analyse(raw, nil, nil, testJudge())
	require.NotNil(t, out)
	assert.False(t, out.Days[0].IsBadWeather)
	assert.True(t, out.Days[1].IsBadWeather)
}

func TestAnalyseNilAndFailedInput(t *testing.T) {
	assert.Nil(t, Analyse(nil, nil, nil, testJudge()))

	out := Analyse(&domain.RawForecast{OK: false, Error: "timeout"}, nil, nil, testJudge())
	require.NotNil(t, out)
	assert.False(t, out.OK)
	assert.Equal(t, "timeout", out.Error)
	assert.Empty(t, out.Days)
}
