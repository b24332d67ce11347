package forecastsolar

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/deyectl/deyectl/internal/core/port"
)

const defaultBaseURL = "https://api.forecast.solar"

// Client fetches per-day solar production estimates from the public
// forecast.solar API. The free tier is heavily rate limited, so callers
// cache aggressively; this client performs a single attempt and reports
// whether a failure is worth retrying.
type Client struct {
	BaseURL string

	// Panel orientation. Declination 0-90 degrees from horizontal, azimuth
	// -180..180 with 0 = south.
	Declination int
	Azimuth     int

	http   *http.Client
	logger *zap.Logger
}

var _ port.SolarSource = (*Client)(nil)

func NewClient(declination, azimuth int, logger *zap.Logger) *Client {
	return &Client{
		BaseURL:     defaultBaseURL,
		Declination: declination,
		Azimuth:     azimuth,
		http:        &http.Client{Timeout: 30 * time.Second},
		logger:      logger.With(zap.String("adapter", "forecastsolar")),
	}
}

// Error is a failure talking to forecast.solar. Temporary reports whether
// the caller may retry later (rate limit, upstream trouble) as opposed to a
// misconfiguration that will never succeed.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("forecast.solar: status %d: %s", e.StatusCode, e.Message)
}

func (e *Error) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500 || e.StatusCode == 0
}

var _ port.TemporaryError = (*Error)(nil)

type estimateResponse struct {
	Result struct {
		WattHoursDay map[string]float64 `json:"watt_hours_day"`
	} `json:"result"`
	Message struct {
		Text string `json:"text"`
	} `json:"message"`
}

// GetEstimates returns predicted production in kWh keyed by date
// (YYYY-MM-DD) for the given location and installed capacity.
func (c *Client) GetEstimates(ctx context.Context, lat, lon, kwp float64) (map[string]float64, error) {
	url := fmt.Sprintf("%s/estimate/%.4f/%.4f/%d/%d/%.3f",
		c.BaseURL, lat, lon, c.Declination, c.Azimuth, kwp)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &Error{StatusCode: 0, Message: err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{StatusCode: 0, Message: err.Error()}
	}
	if resp.StatusCode != http.StatusOK {
		var er estimateResponse
		msg := string(body)
		if json.Unmarshal(body, &er) == nil && er.Message.Text != "" {
			msg = er.Message.Text
		}
		return nil, &Error{StatusCode: resp.StatusCode, Message: msg}
	}

	var er estimateResponse
	if err := json.Unmarshal(body, &er); err != nil {
		return nil, &Error{StatusCode: resp.StatusCode, Message: err.Error()}
	}

	estimates := make(map[string]float64, len(er.Result.WattHoursDay))
	for date, wh := range er.Result.WattHoursDay {
		estimates[date] = wh / 1000.0
	}
	c.logger.Debug("solar estimates fetched", zap.Int("days", len(estimates)))
	return estimates, nil
}
