package openmeteo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/deyectl/deyectl/internal/core/domain"
	"github.com/deyectl/deyectl/internal/core/port"
)

const (
	defaultBaseURL          = "https://api.open-meteo.com"
	defaultGeocodingBaseURL = "https://geocoding-api.open-meteo.com"

	// cacheTTL bounds how often the upstream is hit regardless of how
	// aggressively the engine polls.
	cacheTTL = 30 * time.Minute

	forecastDays = 7
)

// Client fetches forecasts from the Open-Meteo API. No API key required.
// Responses are cached per coordinate pair for cacheTTL.
type Client struct {
	BaseURL          string
	GeocodingBaseURL string

	http   *http.Client
	logger *zap.Logger

	mu        sync.Mutex
	cached    *domain.RawForecast
	cacheKey  string
	cacheTime time.Time
}

var _ port.ForecastSource = (*Client)(nil)

func NewClient(logger *zap.Logger) *Client {
	return &Client{
		BaseURL:          defaultBaseURL,
		GeocodingBaseURL: defaultGeocodingBaseURL,
		http:             &http.Client{Timeout: 30 * time.Second},
		logger:           logger.With(zap.String("adapter", "openmeteo")),
	}
}

type forecastResponse struct {
	Timezone string `json:"timezone"`
	Daily    struct {
		Time                     []string  `json:"time"`
		WeatherCode              []int     `json:"weather_code"`
		TempMax                  []float64 `json:"temperature_2m_max"`
		TempMin                  []float64 `json:"temperature_2m_min"`
		CloudCoverMean           []int     `json:"cloud_cover_mean"`
		PrecipitationProbability []int     `json:"precipitation_probability_max"`
	} `json:"daily"`
	Hourly struct {
		Time                     []string `json:"time"`
		CloudCover               []int    `json:"cloud_cover"`
		PrecipitationProbability []int    `json:"precipitation_probability"`
		WeatherCode              []int    `json:"weather_code"`
	} `json:"hourly"`
}

func (c *Client) GetForecast(ctx context.Context, lat, lon float64) (*domain.RawForecast, error) {
	key := fmt.Sprintf("%.4f,%.4f", lat, lon)

	c.mu.Lock()
	if c.cached != nil && c.cacheKey == key && time.Since(c.cacheTime) < cacheTTL {
		cached := c.cached
		c.mu.Unlock()
		return cached, nil
	}
	c.mu.Unlock()

	q := url.Values{}
	q.Set("latitude", fmt.Sprintf("%.4f", lat))
	q.Set("longitude", fmt.Sprintf("%.4f", lon))
	q.Set("daily", "weather_code,temperature_2m_max,temperature_2m_min,cloud_cover_mean,precipitation_probability_max")
	q.Set("hourly", "weather_code,cloud_cover,precipitation_probability")
	q.Set("timezone", "auto")
	q.Set("forecast_days", fmt.Sprintf("%d", forecastDays))

	c.logger.Info("fetching weather forecast", zap.Float64("lat", lat), zap.Float64("lon", lon))

	body, err := c.get(ctx, c.BaseURL+"/v1/forecast?"+q.Encode())
	if err != nil {
		return nil, fmt.Errorf("forecast fetch: %w", err)
	}

	var resp forecastResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("forecast decode: %w", err)
	}

	raw := buildRawForecast(&resp, time.Now())

	c.mu.Lock()
	c.cached = raw
	c.cacheKey = key
	c.cacheTime = time.Now()
	c.mu.Unlock()

	return raw, nil
}

func buildRawForecast(resp *forecastResponse, now time.Time) *domain.RawForecast {
	raw := &domain.RawForecast{
		OK:           true,
		Location:     resp.Timezone,
		HourlyByDate: map[string][]domain.HourSample{},
	}

	today := now.Format("2006-01-02")
	for i, date := range resp.Daily.Time {
		day := domain.ForecastDay{
			Date:    date,
			IsToday: date == today,
		}
		if t, err := time.Parse("2006-01-02", date); err == nil {
			day.DayName = t.Weekday().String()
		}
		if i < len(resp.Daily.WeatherCode) {
			day.Condition = ConditionFromWMOCode(resp.Daily.WeatherCode[i])
		}
		if i < len(resp.Daily.TempMin) {
			v := resp.Daily.TempMin[i]
			day.TempMin = &v
		}
		if i < len(resp.Daily.TempMax) {
			v := resp.Daily.TempMax[i]
			day.TempMax = &v
		}
		if i < len(resp.Daily.CloudCoverMean) {
			day.CloudCover = resp.Daily.CloudCoverMean[i]
		}
		if i < len(resp.Daily.PrecipitationProbability) {
			day.PrecipProb = resp.Daily.PrecipitationProbability[i]
		}
		raw.Days = append(raw.Days, day)
	}

	for i, stamp := range resp.Hourly.Time {
		// local time, e.g. "2025-06-15T14:00"
		t, err := time.Parse("2006-01-02T15:04", stamp)
		if err != nil {
			continue
		}
		sample := domain.HourSample{Hour: t.Hour()}
		if i < len(resp.Hourly.CloudCover) {
			sample.CloudCover = resp.Hourly.CloudCover[i]
		}
		if i < len(resp.Hourly.PrecipitationProbability) {
			sample.PrecipProb = resp.Hourly.PrecipitationProbability[i]
		}
		if i < len(resp.Hourly.WeatherCode) {
			sample.Condition = ConditionFromWMOCode(resp.Hourly.WeatherCode[i])
		}
		date := t.Format("2006-01-02")
		raw.HourlyByDate[date] = append(raw.HourlyByDate[date], sample)
	}

	return raw
}

// City is one geocoding search result.
type City struct {
	Name      string  `json:"name"`
	Country   string  `json:"country"`
	Admin1    string  `json:"admin1,omitempty"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type geocodingResponse struct {
	Results []City `json:"results"`
}

// SearchCities resolves a city name to coordinates via the Open-Meteo
// geocoding API. Used by the location setup endpoints.
func (c *Client) SearchCities(ctx context.Context, name string) ([]City, error) {
	q := url.Values{}
	q.Set("name", name)
	q.Set("count", "10")
	q.Set("format", "json")

	body, err := c.get(ctx, c.GeocodingBaseURL+"/v1/search?"+q.Encode())
	if err != nil {
		return nil, fmt.Errorf("city search: %w", err)
	}

	var resp geocodingResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("city search decode: %w", err)
	}
	return resp.Results, nil
}

func (c *Client) get(ctx context.Context, fullURL string) ([]byte, error) {
	var body []byte
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return fmt.Errorf("status %d", resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			b, _ := io.ReadAll(resp.Body)
			return backoff.Permanent(fmt.Errorf("status %d: %s", resp.StatusCode, string(b)))
		}
		body, err = io.ReadAll(resp.Body)
		return err
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 15 * time.Second
	if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
		return nil, err
	}
	return body, nil
}
