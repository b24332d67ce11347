package openmeteo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/deyectl/deyectl/internal/core/domain"
)

const forecastBody = `{
	"timezone": "Europe/Madrid",
	"daily": {
		"time": ["2025-06-15", "2025-06-16"],
		"weather_code": [0, 61],
		"temperature_2m_max": [28.5, 22.0],
		"temperature_2m_min": [17.0, 15.5],
		"cloud_cover_mean": [10, 85],
		"precipitation_probability_max": [0, 90]
	},
	"hourly": {
		"time": ["2025-06-15T11:00", "2025-06-15T12:00", "2025-06-16T12:00"],
		"weather_code": [0, 0, 61],
		"cloud_cover": [5, 10, 90],
		"precipitation_probability": [0, 0, 80]
	}
}`

func testClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewClient(zap.NewNop())
	c.BaseURL = srv.URL
	c.GeocodingBaseURL = srv.URL
	return c
}

func TestGetForecastParsing(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/forecast", r.URL.Path)
		assert.Equal(t, "40.4000", r.URL.Query().Get("latitude"))
		w.Write([]byte(forecastBody))
	}))

	raw, err := c.GetForecast(context.Background(), 40.4, -3.7)
	require.NoError(t, err)
	require.True(t, raw.OK)
	assert.Equal(t, "Europe/Madrid", raw.Location)
	require.Len(t, raw.Days, 2)

	sunny, rainy := raw.Days[0], raw.Days[1]
	assert.Equal(t, domain.ConditionClear, sunny.Condition)
	assert.Equal(t, 10, sunny.CloudCover)
	assert.Equal(t, "Sunday", sunny.DayName)
	require.NotNil(t, sunny.TempMax)
	assert.Equal(t, 28.5, *sunny.TempMax)

	assert.Equal(t, domain.ConditionRain, rainy.Condition)
	assert.Equal(t, 90, rainy.PrecipProb)

	require.Len(t, raw.HourlyByDate["2025-06-15"], 2)
	sample := raw.HourlyByDate["2025-06-15"][1]
	assert.Equal(t, 12, sample.Hour)
	assert.Equal(t, 10, sample.CloudCover)
	require.Len(t, raw.HourlyByDate["2025-06-16"], 1)
	assert.Equal(t, domain.ConditionRain, raw.HourlyByDate["2025-06-16"][0].Condition)
}

func TestGetForecastCaching(t *testing.T) {
	var requests int32
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		w.Write([]byte(forecastBody))
	}))

	_, err := c.GetForecast(context.Background(), 40.4, -3.7)
	require.NoError(t, err)
	_, err = c.GetForecast(context.Background(), 40.4, -3.7)
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&requests), "second call within TTL is served from cache")

	// A different location bypasses the cache.
	_, err = c.GetForecast(context.Background(), 51.5, -0.1)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&requests))
}

func TestSearchCities(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/search", r.URL.Path)
		assert.Equal(t, "Madrid", r.URL.Query().Get("name"))
		w.Write([]byte(`{"results":[{"name":"Madrid","country":"Spain","latitude":40.4165,"longitude":-3.7026}]}`))
	}))

	cities, err := c.SearchCities(context.Background(), "Madrid")
	require.NoError(t, err)
	require.Len(t, cities, 1)
	assert.Equal(t, "Madrid", cities[0].Name)
	assert.Equal(t, 40.4165, cities[0].Latitude)
}

func TestConditionFromWMOCode(t *testing.T) {
	tests := []struct {
		code int
		want domain.Condition
	}{
		{0, domain.ConditionClear},
		{2, domain.ConditionClouds},
		{45, domain.ConditionFog},
		{53, domain.ConditionDrizzle},
		{63, domain.ConditionRain},
		{71, domain.ConditionSnow},
		{81, domain.ConditionRain},
		{86, domain.ConditionSnow},
		{95, domain.ConditionThunderstorm},
		{42, domain.ConditionUnknown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ConditionFromWMOCode(tt.code), "code %d", tt.code)
	}
}
