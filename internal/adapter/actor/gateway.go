package actor

import (
	"context"
	"fmt"
	"time"

	"github.com/deyectl/deyectl/internal/core/domain"
	"github.com/deyectl/deyectl/internal/core/port"
	"github.com/deyectl/deyectl/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/reugn/go-quartz/logger"
	"go.uber.org/zap"
)

// gatewayCallTimeout caps one inverter call including the gateway's own
// retries.
const gatewayCallTimeout = 45 * time.Second

// GatewayActor serializes access to the inverter gateway. Calls run as
// background tasks; while one is in flight the actor stacks into a waiting
// state and stashes everything else, so the inverter never sees concurrent
// commands.
type GatewayActor struct {
	behavior actor.Behavior
	stash    *actorutil.Stash
	gateway  port.InverterGateway
	logger   *zap.Logger
}

type backgroundTaskResult struct {
	message any
	replyTo *actor.PID
}

func NewGatewayActor(gateway port.InverterGateway, log *zap.Logger) *GatewayActor {
	act := &GatewayActor{
		gateway:  gateway,
		behavior: actor.NewBehavior(),
		stash:    &actorutil.Stash{},
		logger:   actorutil.ActorLogger(domain.ACTOR_ID_GATEWAY, log),
	}
	act.behavior.Become(act.DefaultReceive)
	return act
}

func (state *GatewayActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *GatewayActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("gateway@default: ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_GATEWAY,
			Healthy: true,
			State:   "idle",
		})
	case domain.GetBatteryRequest:
		state.logger.Debug("gateway@default: GetBatteryRequest")
		sender := actorutil.ForRequest(msg).ReplyTo(ctx)
		actorutil.MapBackgroundTask(actorutil.NewBackgroundTask(ctx, state.getBattery),
			mapTaskResult[domain.GetBatteryResponse](sender)).Recover(func(err error) backgroundTaskResult {
			return backgroundTaskResult{
				message: domain.GetBatteryResponse{
					ActorResponseMixIn: domain.ActorResponseMixIn{
						ResponseError: err,
					},
				},
				replyTo: sender,
			}
		}).WithTimeout(gatewayCallTimeout).PipeTo(ctx.Self())
		state.behavior.BecomeStacked(state.WaitingGateway)
	case domain.GetWorkModeRequest:
		state.logger.Debug("gateway@default: GetWorkModeRequest")
		sender := actorutil.ForRequest(msg).ReplyTo(ctx)
		actorutil.MapBackgroundTask(actorutil.NewBackgroundTask(ctx, state.getWorkMode),
			mapTaskResult[domain.GetWorkModeResponse](sender)).Recover(func(err error) backgroundTaskResult {
			return backgroundTaskResult{
				message: domain.GetWorkModeResponse{
					ActorResponseMixIn: domain.ActorResponseMixIn{
						ResponseError: err,
					},
				},
				replyTo: sender,
			}
		}).WithTimeout(gatewayCallTimeout).PipeTo(ctx.Self())
		state.behavior.BecomeStacked(state.WaitingGateway)
	case domain.SetWorkModeRequest:
		state.logger.Debug("gateway@default: SetWorkModeRequest", zap.String("mode", string(msg.Mode)))
		sender := actorutil.ForRequest(msg).ReplyTo(ctx)
		mode := msg.Mode
		actorutil.MapBackgroundTask(actorutil.NewBackgroundTask(ctx, func() (*domain.SetWorkModeResponse, error) {
			return state.setWorkMode(mode)
		}),
			mapTaskResult[domain.SetWorkModeResponse](sender)).Recover(func(err error) backgroundTaskResult {
			return backgroundTaskResult{
				message: domain.SetWorkModeResponse{
					ActorResponseMixIn: domain.ActorResponseMixIn{
						ResponseError: err,
					},
				},
				replyTo: sender,
			}
		}).WithTimeout(gatewayCallTimeout).PipeTo(ctx.Self())
		state.behavior.BecomeStacked(state.WaitingGateway)
	case domain.SetTOURequest:
		state.logger.Debug("gateway@default: SetTOURequest", zap.Int("segments", len(msg.Schedule.Segments)))
		sender := actorutil.ForRequest(msg).ReplyTo(ctx)
		schedule := msg.Schedule
		actorutil.MapBackgroundTask(actorutil.NewBackgroundTask(ctx, func() (*domain.SetTOUResponse, error) {
			return state.setTOU(schedule)
		}),
			mapTaskResult[domain.SetTOUResponse](sender)).Recover(func(err error) backgroundTaskResult {
			return backgroundTaskResult{
				message: domain.SetTOUResponse{
					ActorResponseMixIn: domain.ActorResponseMixIn{
						ResponseError: err,
					},
				},
				replyTo: sender,
			}
		}).WithTimeout(gatewayCallTimeout).PipeTo(ctx.Self())
		state.behavior.BecomeStacked(state.WaitingGateway)
	default:
		state.logger.Debug("gateway@default default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *GatewayActor) WaitingGateway(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case backgroundTaskResult:
		state.logger.Debug("gateway@waiting backgroundTaskResult", zap.String("type", fmt.Sprintf("%T", msg.message)))
		ctx.Send(msg.replyTo, msg.message)
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_GATEWAY,
			Healthy: true,
			State:   "busy",
		})
	default:
		state.logger.Debug("gateway@waiting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (a *GatewayActor) getBattery() (*domain.GetBatteryResponse, error) {
	ctx, cancel := context.WithTimeout(context.Background(), gatewayCallTimeout)
	defer cancel()
	battery, err := a.gateway.GetBattery(ctx)
	if err != nil {
		logger.Error(err)
		return nil, err
	}
	return &domain.GetBatteryResponse{Battery: battery}, nil
}

func (a *GatewayActor) getWorkMode() (*domain.GetWorkModeResponse, error) {
	ctx, cancel := context.WithTimeout(context.Background(), gatewayCallTimeout)
	defer cancel()
	result, err := a.gateway.GetWorkMode(ctx)
	if err != nil {
		logger.Error(err)
		return nil, err
	}
	return &domain.GetWorkModeResponse{Result: result}, nil
}

func (a *GatewayActor) setWorkMode(mode domain.InverterMode) (*domain.SetWorkModeResponse, error) {
	ctx, cancel := context.WithTimeout(context.Background(), gatewayCallTimeout)
	defer cancel()
	result, err := a.gateway.SetWorkMode(ctx, mode)
	if err != nil {
		logger.Error(err)
		return nil, err
	}
	return &domain.SetWorkModeResponse{Result: result}, nil
}

func (a *GatewayActor) setTOU(schedule domain.TOUSchedule) (*domain.SetTOUResponse, error) {
	ctx, cancel := context.WithTimeout(context.Background(), gatewayCallTimeout)
	defer cancel()
	result, err := a.gateway.SetTOU(ctx, schedule)
	if err != nil {
		logger.Error(err)
		return nil, err
	}
	return &domain.SetTOUResponse{Result: result}, nil
}

func mapTaskResult[T any](sender *actor.PID) func(t *T) *backgroundTaskResult {
	return func(t *T) *backgroundTaskResult {
		return &backgroundTaskResult{
			message: *t,
			replyTo: sender,
		}
	}
}
