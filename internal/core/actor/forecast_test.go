package actor

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/deyectl/deyectl/internal/config"
	"github.com/deyectl/deyectl/internal/core/domain"
	"github.com/deyectl/deyectl/internal/util/actorutil"
)

// flakyWeatherSource serves a forecast until failFrom calls have been made,
// then errors on every fetch.
type flakyWeatherSource struct {
	raw      *domain.RawForecast
	failFrom int
	calls    int
}

func (s *flakyWeatherSource) GetForecast(ctx context.Context, lat, lon float64) (*domain.RawForecast, error) {
	s.calls++
	if s.calls >= s.failFrom {
		return nil, errors.New("upstream unavailable")
	}
	return s.raw, nil
}

type forecastHarness struct {
	root     *actor.RootContext
	forecast *actor.PID
}

func startForecastHarness(t *testing.T, weather *flakyWeatherSource) *forecastHarness {
	t.Helper()

	logger := zap.Must(zap.NewDevelopment())
	lat, lon := 40.0, -3.7

	store := config.NewStore(filepath.Join(t.TempDir(), "settings.json"))
	require.NoError(t, store.Update(func(s *config.Settings) {
		s.Weather.Enabled = true
		s.Weather.Latitude = &lat
		s.Weather.Longitude = &lon
		s.Weather.PanelCapacityKW = 5
		s.Weather.SolarAPIEnabled = false
	}))

	as := actorutil.NewActorSystemWithZapLogger(logger)
	root := as.Root

	pid := root.Spawn(actor.PropsFromProducer(func() actor.Actor {
		return NewForecastActor(store, weather, nil, logger)
	}))

	t.Cleanup(func() {
		root.Stop(pid)
		as.Shutdown()
	})

	return &forecastHarness{root: root, forecast: pid}
}

func (h *forecastHarness) getForecast(t *testing.T, force bool) domain.GetForecastResponse {
	t.Helper()
	result, err := h.root.RequestFuture(h.forecast, domain.GetForecastRequest{Force: force}, 15*time.Second).Result()
	require.NoError(t, err)
	return result.(domain.GetForecastResponse)
}

func TestForecastActorServesCachedDataOnFailure(t *testing.T) {

	assert := assert.New(t)

	weather := &flakyWeatherSource{raw: overcastForecast(time.Now()), failFrom: 2}
	h := startForecastHarness(t, weather)

	first := h.getForecast(t, false)
	require.NotNil(t, first.Forecast)
	assert.True(first.Forecast.OK)
	assert.False(first.Stale)
	assert.False(first.FetchedAt.IsZero())

	// the refetch fails; the previous data comes back untouched, marked stale
	second := h.getForecast(t, true)
	require.NotNil(t, second.Forecast)
	assert.True(second.Stale, "a failed refresh serves the cached forecast as stale")
	assert.True(second.Forecast.OK)
	assert.Equal(first.Forecast.Days, second.Forecast.Days)
	assert.Equal(first.FetchedAt, second.FetchedAt, "the cache timestamp is not advanced by a failed refresh")
}

func TestForecastActorFailureWithEmptyCache(t *testing.T) {

	assert := assert.New(t)

	weather := &flakyWeatherSource{failFrom: 1}
	h := startForecastHarness(t, weather)

	resp := h.getForecast(t, false)
	require.NotNil(t, resp.Forecast)
	assert.False(resp.Forecast.OK, "nothing cached means the failure is reported")
	assert.NotEmpty(resp.Forecast.Error)
	assert.False(resp.Stale)
}

func TestForecastActorClearCache(t *testing.T) {

	assert := assert.New(t)

	weather := &flakyWeatherSource{raw: overcastForecast(time.Now()), failFrom: 2}
	h := startForecastHarness(t, weather)

	first := h.getForecast(t, false)
	assert.True(first.Forecast.OK)

	_, err := h.root.RequestFuture(h.forecast, domain.ClearForecastCacheRequest{}, 15*time.Second).Result()
	assert.NoError(err)

	// with the cache gone there is no stale fallback left
	resp := h.getForecast(t, false)
	assert.False(resp.Forecast.OK)
	assert.False(resp.Stale)
}
