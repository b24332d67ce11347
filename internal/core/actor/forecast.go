package actor

import (
	"context"
	"fmt"
	"time"

	"github.com/deyectl/deyectl/internal/config"
	"github.com/deyectl/deyectl/internal/core/domain"
	"github.com/deyectl/deyectl/internal/core/port"
	"github.com/deyectl/deyectl/internal/core/service"
	. "github.com/deyectl/deyectl/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"go.uber.org/zap"
)

// forecastCacheTTL is how long an analysed forecast is served without a
// refetch. Short enough that config changes show up quickly, long enough
// to keep upstream traffic negligible at scheduler cadence.
const forecastCacheTTL = 5 * time.Minute

const forecastFetchTimeout = 60 * time.Second

// ForecastActor owns the analysed forecast cache. Fetch and analysis run
// as a background task; a failed refresh never erases previously good
// data, it is served marked stale instead.
type ForecastActor struct {
	ActorWithStates
	stash   *Stash
	store   *config.Store
	weather port.ForecastSource
	solar   port.SolarSource
	logger  *zap.Logger

	cached    *domain.Forecast
	fetchedAt time.Time
}

type forecastFetchResult struct {
	forecast *domain.Forecast
	err      error
	replyTo  *actor.PID
}

func NewForecastActor(store *config.Store, weather port.ForecastSource, solar port.SolarSource, logger *zap.Logger) *ForecastActor {
	act := &ForecastActor{
		store:   store,
		weather: weather,
		solar:   solar,
		stash:   &Stash{},
		logger:  ActorLogger(domain.ACTOR_ID_FORECAST, logger),
		ActorWithStates: ActorWithStates{
			Behavior: actor.NewBehavior(),
		},
	}
	act.Become(ForecastIdleState{actor: act})
	return act
}

func (state *ForecastActor) Receive(context actor.Context) {
	state.Behavior.Receive(context)
}

// Idle state

type ForecastIdleState struct {
	ActorState
	actor *ForecastActor
}

func (state ForecastIdleState) Name() string {
	return "idle"
}

func (state ForecastIdleState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.actor.logger.Debug("forecast@idle: ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_FORECAST,
			Healthy: true,
			State:   state.Name(),
		})
	case domain.GetForecastRequest:
		state.actor.logger.Debug("forecast@idle: GetForecastRequest", zap.Bool("force", msg.Force))
		sender := ForRequest(msg).ReplyTo(ctx)

		settings := state.actor.store.Snapshot()
		if !settings.Weather.Located() {
			ctx.Send(sender, domain.GetForecastResponse{
				Forecast: &domain.Forecast{OK: false, Error: "weather location not configured"},
			})
			return
		}
		if !msg.Force && state.actor.cached != nil && time.Since(state.actor.fetchedAt) < forecastCacheTTL {
			ctx.Send(sender, domain.GetForecastResponse{
				Forecast:  state.actor.cached,
				FetchedAt: state.actor.fetchedAt,
			})
			return
		}
		state.actor.startFetch(ctx, settings, msg.CapacityWatt, sender)
		state.actor.BecomeStacked(ForecastFetchingState{actor: state.actor})
	case domain.ClearForecastCacheRequest:
		state.actor.logger.Debug("forecast@idle: ClearForecastCacheRequest")
		state.actor.cached = nil
		state.actor.fetchedAt = time.Time{}
		ForRequest(msg).Respond(ctx, domain.ClearForecastCacheResponse{})
	default:
		state.actor.logger.Debug("forecast@idle: recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

// Fetching state

type ForecastFetchingState struct {
	ActorState
	actor *ForecastActor
}

func (state ForecastFetchingState) Name() string {
	return "fetching"
}

func (state ForecastFetchingState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case forecastFetchResult:
		if msg.err != nil || msg.forecast == nil || !msg.forecast.OK {
			errText := "forecast fetch failed"
			if msg.err != nil {
				errText = msg.err.Error()
			} else if msg.forecast != nil {
				errText = msg.forecast.Error
			}
			state.actor.logger.Warn("forecast@fetching: fetch failed, keeping cached data", zap.String("error", errText))
			// stale data beats no data
			if state.actor.cached != nil {
				ctx.Send(msg.replyTo, domain.GetForecastResponse{
					Forecast:  state.actor.cached,
					FetchedAt: state.actor.fetchedAt,
					Stale:     true,
				})
			} else {
				ctx.Send(msg.replyTo, domain.GetForecastResponse{
					Forecast: &domain.Forecast{OK: false, Error: errText},
				})
			}
		} else {
			state.actor.cached = msg.forecast
			state.actor.fetchedAt = time.Now()
			ctx.Send(msg.replyTo, domain.GetForecastResponse{
				Forecast:  msg.forecast,
				FetchedAt: state.actor.fetchedAt,
			})
		}
		state.actor.UnbecomeStacked()
		state.actor.stash.UnstashAll(ctx)
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_FORECAST,
			Healthy: true,
			State:   state.Name(),
		})
	default:
		state.actor.logger.Debug("forecast@fetching: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.actor.stash.Stash(ctx, msg)
	}
}

func (a *ForecastActor) startFetch(ctx actor.Context, settings config.Settings, capacityWatt int, replyTo *actor.PID) {
	weather := settings.Weather
	lat, lon := *weather.Latitude, *weather.Longitude
	estimator := &service.SolarEstimator{
		PanelKWp: weather.PanelKWp(capacityWatt),
		Latitude: lat,
	}
	judge := service.WeatherJudge{
		BadConditions: weather.BadConditionSet(),
		MinCloudCover: weather.MinCloudCover,
	}
	solarEnabled := weather.SolarAPIEnabled && a.solar != nil

	NewBackgroundTaskNoError(ctx, func() *forecastFetchResult {
		fetchCtx, cancel := contextWithTimeout(forecastFetchTimeout)
		defer cancel()

		raw, err := a.weather.GetForecast(fetchCtx, lat, lon)
		if err != nil {
			return &forecastFetchResult{err: err, replyTo: replyTo}
		}

		var solarKWh map[string]float64
		if solarEnabled {
			solarKWh, err = a.solar.GetEstimates(fetchCtx, lat, lon, estimator.PanelKWp)
			if err != nil {
				// weather-derived estimation covers the gap
				a.logger.Warn("solar estimates unavailable", zap.Error(err))
				solarKWh = nil
			}
		}

		return &forecastFetchResult{
			forecast: service.Analyse(raw, estimator, solarKWh, judge),
			replyTo:  replyTo,
		}
	}).WithTimeout(forecastFetchTimeout + 5*time.Second).Recover(func(err error) forecastFetchResult {
		return forecastFetchResult{err: err, replyTo: replyTo}
	}).PipeTo(ctx.Self())
}

func contextWithTimeout(d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), d)
}
