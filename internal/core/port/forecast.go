package port

import (
	"context"

	"github.com/deyectl/deyectl/internal/core/domain"
)

// ForecastSource fetches a multi-day weather forecast for a location.
// Implementations cache internally with their own TTL so callers may hit
// them every scheduler cycle without rate-limit risk.
type ForecastSource interface {
	GetForecast(ctx context.Context, lat, lon float64) (*domain.RawForecast, error)
}

// SolarSource is an optional dedicated solar production forecast. Its
// per-day kWh estimates take priority over weather-derived estimation.
type SolarSource interface {
	// GetEstimates returns predicted kWh keyed by date (YYYY-MM-DD).
	GetEstimates(ctx context.Context, lat, lon, kwp float64) (map[string]float64, error)
}

// TemporaryError marks a solar source failure as retryable (rate limit,
// 5xx) as opposed to a permanent misconfiguration (4xx).
type TemporaryError interface {
	error
	Temporary() bool
}
