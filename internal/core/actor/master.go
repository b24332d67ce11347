package actor

import (
	"errors"
	"fmt"
	"log"
	"time"

	adactor "github.com/deyectl/deyectl/internal/adapter/actor"
	"github.com/deyectl/deyectl/internal/config"
	"github.com/deyectl/deyectl/internal/core/domain"
	. "github.com/deyectl/deyectl/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"go.uber.org/zap"
)

type MQTTActorProvider func() *adactor.MQTTActor

type GatewayActorProvider func() *adactor.GatewayActor

// MasterOfPuppetsActor supervises the actor tree: the inverter gateway,
// the forecast cache, the scheduler and the MQTT bridge. It routes
// external requests to the owning child and fans health checks out.
type MasterOfPuppetsActor struct {
	config   config.Config
	store    *config.Store
	behavior actor.Behavior
	stash    *Stash

	currentHealthCheck healthCheckResult
	eventStream        *eventstream.EventStream
	gatewayActor       *actor.PID
	mqttActor          *actor.PID
	forecastActor      *actor.PID
	schedulerActor     *actor.PID
	providers          masterProviders
	logger             *zap.Logger
}

type healthCheckResult struct {
	gatewayActorHealthy   bool
	mqttActorHealthy      bool
	forecastActorHealthy  bool
	schedulerActorHealthy bool
	checksReceived        int
	respondTo             *actor.PID
}

type ForecastActorProvider func() *ForecastActor

type masterProviders struct {
	gateway  GatewayActorProvider
	mqtt     MQTTActorProvider
	forecast ForecastActorProvider
}

func NewMasterOfPuppetsActor(config config.Config, store *config.Store, gatewayActorProvider GatewayActorProvider, forecastActorProvider ForecastActorProvider, mqttActorProvider MQTTActorProvider, logger *zap.Logger) *MasterOfPuppetsActor {
	act := &MasterOfPuppetsActor{
		config:      config,
		store:       store,
		behavior:    actor.NewBehavior(),
		stash:       &Stash{},
		logger:      ActorLogger(domain.ACTOR_ID_MASTER, logger),
		eventStream: &eventstream.EventStream{},
		providers: masterProviders{
			gateway:  gatewayActorProvider,
			mqtt:     mqttActorProvider,
			forecast: forecastActorProvider,
		},
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *MasterOfPuppetsActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *MasterOfPuppetsActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("master@starting started")

		state.currentHealthCheck = healthCheckResult{}
		state.currentHealthCheck.reset()

		gatewayActorPID, err := state.startGatewayActor(ctx)
		if err != nil {
			panic(err)
		}
		state.gatewayActor = gatewayActorPID

		mqttActorPID, err := state.startMQTTActor(ctx)
		if err != nil {
			panic(err)
		}
		state.mqttActor = mqttActorPID

		forecastActorPID, err := state.startForecastActor(ctx)
		if err != nil {
			panic(err)
		}
		state.forecastActor = forecastActorPID

		schedulerActorPID, err := state.startSchedulerActor(ctx)
		if err != nil {
			panic(err)
		}
		state.schedulerActor = schedulerActorPID

		// every sensor update the scheduler publishes goes out over MQTT
		root := ctx.ActorSystem().Root
		state.eventStream.Subscribe(func(evt interface{}) {
			if event, ok := evt.(domain.SensorUpdateEvent); ok {
				root.Send(mqttActorPID, domain.PublishSensorUpdateRequest{Event: event})
			}
		})

		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	default:
		state.logger.Debug("master@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterOfPuppetsActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("master@default ActorHealthRequest")
		state.currentHealthCheck.reset()
		state.currentHealthCheck.respondTo = ctx.Sender()
		for _, child := range []struct {
			pid *actor.PID
			id  string
		}{
			{state.gatewayActor, domain.ACTOR_ID_GATEWAY},
			{state.mqttActor, domain.ACTOR_ID_MQTT},
			{state.forecastActor, domain.ACTOR_ID_FORECAST},
			{state.schedulerActor, domain.ACTOR_ID_SCHEDULER},
		} {
			id := child.id
			PipeToSelfWithRecover(ctx, ctx.RequestFuture(child.pid, domain.ActorHealthRequest{}, 500*time.Millisecond), func(err error) any {
				return domain.ActorHealthResponse{
					Id:      id,
					Healthy: false,
				}
			})
		}

		ctx.SetReceiveTimeout(1 * time.Second)

		state.behavior.BecomeStacked(state.HealthCheckReceive)
	case adactor.ParsedCommand:
		state.logger.Debug("master@default parsedCommand", zap.Any("command", msg.Command))
		if msg.Command != nil {
			cmd, err := ParsedMQTTCommandToCommand(*msg.Command)
			if err == nil && cmd != nil {
				ctx.Send(state.schedulerActor, cmd)
			}
		}
	case domain.GetStatusRequest, domain.SchedulerStartRequest, domain.SchedulerStopRequest,
		domain.SetDischargeEnabledRequest, domain.SetWorkModeOverrideRequest:
		ctx.RequestWithCustomSender(state.schedulerActor, msg, ctx.Sender())
	case domain.GetForecastRequest, domain.ClearForecastCacheRequest:
		ctx.RequestWithCustomSender(state.forecastActor, msg, ctx.Sender())
	case domain.GetBatteryRequest, domain.GetWorkModeRequest:
		ctx.RequestWithCustomSender(state.gatewayActor, msg, ctx.Sender())
	case *actor.Terminated:
		// the gateway child failing permanently takes the service down
		if msg.Who.GetId() == fmt.Sprintf("%s/%s", domain.ACTOR_ID_MASTER, domain.ACTOR_ID_GATEWAY) {
			state.logger.Error("master@default gateway terminated")
			panic(errors.New("gateway terminated"))
		}
	default:
		state.logger.Debug("master@default stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterOfPuppetsActor) HealthCheckReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.ReceiveTimeout:
		// a child that does not answer in time counts as unhealthy
		state.currentHealthCheck.respond(ctx)
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	case domain.ActorHealthResponse:
		state.logger.Debug("master@healthcheck ActorHealthResponse", zap.String("sender", msg.Id), zap.Bool("healthy", msg.Healthy))
		state.currentHealthCheck.checksReceived++
		if msg.Healthy {
			switch msg.Id {
			case domain.ACTOR_ID_GATEWAY:
				state.currentHealthCheck.gatewayActorHealthy = true
			case domain.ACTOR_ID_MQTT:
				state.currentHealthCheck.mqttActorHealthy = true
			case domain.ACTOR_ID_FORECAST:
				state.currentHealthCheck.forecastActorHealthy = true
			case domain.ACTOR_ID_SCHEDULER:
				state.currentHealthCheck.schedulerActorHealthy = true
			}
		}
		if state.currentHealthCheck.allReceived() {
			state.currentHealthCheck.respond(ctx)
			state.behavior.UnbecomeStacked()
			state.stash.UnstashAll(ctx)
		} else {
			ctx.SetReceiveTimeout(1 * time.Second)
		}
	default:
		state.logger.Debug("master@healthcheck stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterOfPuppetsActor) startGatewayActor(ctx actor.Context) (*actor.PID, error) {

	supervisor := actor.NewExponentialBackoffStrategy(10*time.Second, 1*time.Second)

	gatewayProps := actor.PropsFromProducer(func() actor.Actor {
		return state.providers.gateway()
	}, actor.WithSupervisor(supervisor))
	return ctx.SpawnNamed(gatewayProps, domain.ACTOR_ID_GATEWAY)
}

func (state *MasterOfPuppetsActor) startMQTTActor(ctx actor.Context) (*actor.PID, error) {

	supervisor := actor.NewExponentialBackoffStrategy(10*time.Second, 1*time.Second)

	mqttProps := actor.PropsFromProducer(func() actor.Actor {
		return state.providers.mqtt()
	}, actor.WithSupervisor(supervisor))
	return ctx.SpawnNamed(mqttProps, domain.ACTOR_ID_MQTT)
}

func (state *MasterOfPuppetsActor) startForecastActor(ctx actor.Context) (*actor.PID, error) {

	decider := func(reason interface{}) actor.Directive {
		log.Printf("handling failure for child. reason: %v", reason)
		return actor.RestartDirective
	}
	supervisor := actor.NewOneForOneStrategy(1, 10*time.Second, decider)

	forecastProps := actor.PropsFromProducer(func() actor.Actor {
		return state.providers.forecast()
	}, actor.WithSupervisor(supervisor))
	return ctx.SpawnNamed(forecastProps, domain.ACTOR_ID_FORECAST)
}

func (state *MasterOfPuppetsActor) startSchedulerActor(ctx actor.Context) (*actor.PID, error) {

	decider := func(reason interface{}) actor.Directive {
		log.Printf("handling failure for child. reason: %v", reason)
		return actor.RestartDirective
	}
	supervisor := actor.NewOneForOneStrategy(1, 10*time.Second, decider)

	schedulerProps := actor.PropsFromProducer(func() actor.Actor {
		return NewSchedulerActor(&state.config, state.store, state.gatewayActor, state.forecastActor, state.eventStream, state.logger)
	}, actor.WithSupervisor(supervisor))
	return ctx.SpawnNamed(schedulerProps, domain.ACTOR_ID_SCHEDULER)
}

func (state *healthCheckResult) reset() {
	state.gatewayActorHealthy = false
	state.mqttActorHealthy = false
	state.forecastActorHealthy = false
	state.schedulerActorHealthy = false
	state.checksReceived = 0
}

func (state *healthCheckResult) allReceived() bool {
	return state.checksReceived == 4
}

func (state *healthCheckResult) allHealthy() bool {
	return state.gatewayActorHealthy && state.mqttActorHealthy &&
		state.forecastActorHealthy && state.schedulerActorHealthy
}

func (state *healthCheckResult) respond(ctx actor.Context) {
	resp := domain.ActorHealthResponse{
		Id:      domain.ACTOR_ID_MASTER,
		Healthy: state.allHealthy(),
	}
	if state.respondTo != nil {
		ctx.Send(state.respondTo, resp)
	}
}
