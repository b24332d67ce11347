package actor

import (
	"fmt"
	"time"

	"github.com/deyectl/deyectl/internal/config"
	"github.com/deyectl/deyectl/internal/core/domain"
	"github.com/deyectl/deyectl/internal/core/events"
	"github.com/deyectl/deyectl/internal/core/service"
	"github.com/deyectl/deyectl/internal/metrics"
	. "github.com/deyectl/deyectl/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/asynkron/protoactor-go/scheduler"
	"go.uber.org/zap"
)

const (
	// schedulerGatewayTimeout must exceed the gateway actor's own call
	// timeout so a slow inverter surfaces as a response error, not as a
	// dead letter.
	schedulerGatewayTimeout  = 50 * time.Second
	schedulerForecastTimeout = 70 * time.Second
)

type schedulerTick struct{}

type settleDone struct{}

// schedulerCycle accumulates the data of one check cycle while the actor
// walks through battery read, forecast, mode read and the command phase.
type schedulerCycle struct {
	settings config.Settings
	now      time.Time

	batteryOK    bool
	soc          *float64
	powerWatt    *float64
	capacityWatt int

	weatherSkip       bool
	weatherSkipReason string
	solarTomorrowKWh  *float64

	modeKnown bool
	mode      domain.InverterMode

	decision    service.Decision
	desiredMode domain.InverterMode

	errText    string
	commandsOK bool
}

// SchedulerActor runs the periodic control loop: read the battery, judge
// the weather, resync the inverter mode, decide the target state and push
// mode plus TOU commands when a transition is due. All inverter traffic
// goes through the gateway actor, all forecast traffic through the
// forecast actor.
type SchedulerActor struct {
	ActorWithStates
	scheduler     *scheduler.TimerScheduler
	stash         *Stash
	gatewayActor  *actor.PID
	forecastActor *actor.PID
	store         *config.Store
	cfg           *config.Config
	eventStream   *eventstream.EventStream
	logger        *zap.Logger

	// operating state carried between cycles
	running          bool
	mode             domain.InverterMode
	soc              *float64
	powerWatt        *float64
	capacityWatt     int
	dischargeActive  bool
	chargeActive     bool
	freeEnergyActive bool
	weatherSkip      bool
	weatherSkipRsn   string
	lastCheck        *time.Time
	lastError        string

	cancelNextTick scheduler.CancelFunc
}

func NewSchedulerActor(cfg *config.Config, store *config.Store, gatewayActor, forecastActor *actor.PID, eventStream *eventstream.EventStream, logger *zap.Logger) *SchedulerActor {
	act := &SchedulerActor{
		cfg:           cfg,
		store:         store,
		gatewayActor:  gatewayActor,
		forecastActor: forecastActor,
		eventStream:   eventStream,
		stash:         &Stash{},
		logger:        ActorLogger(domain.ACTOR_ID_SCHEDULER, logger),
		ActorWithStates: ActorWithStates{
			Behavior: actor.NewBehavior(),
		},
	}
	act.Become(SchedStoppedState{actor: act})
	return act
}

func (state *SchedulerActor) Receive(context actor.Context) {
	state.Behavior.Receive(context)
}

func (a *SchedulerActor) report() domain.StatusReport {
	status := domain.SchedulerStopped
	if a.running {
		status = domain.SchedulerRunning
	}
	return domain.StatusReport{
		Mode:                 a.mode,
		SoC:                  a.soc,
		BatteryPowerWatt:     a.powerWatt,
		ForceDischargeActive: a.dischargeActive,
		ForceChargeActive:    a.chargeActive,
		FreeEnergyActive:     a.freeEnergyActive,
		WeatherSkipActive:    a.weatherSkip,
		WeatherSkipReason:    a.weatherSkipRsn,
		LastCheck:            a.lastCheck,
		LastError:            a.lastError,
		SchedulerStatus:      status,
		InverterCapacityWatt: a.capacityWatt,
	}
}

func (a *SchedulerActor) publishStatus() {
	if a.eventStream == nil {
		return
	}
	for _, ev := range events.StatusReportToUpdateEvents(a.report()) {
		a.eventStream.Publish(ev)
	}
}

func (a *SchedulerActor) publish(event any) {
	if a.eventStream != nil {
		a.eventStream.Publish(event)
	}
}

func (a *SchedulerActor) interval() time.Duration {
	return time.Duration(a.cfg.Schedule.IntervalSeconds) * time.Second
}

func (a *SchedulerActor) settleDelay() time.Duration {
	return time.Duration(a.cfg.Schedule.SettleDelaySeconds) * time.Second
}

func (a *SchedulerActor) startRunning(ctx actor.Context) {
	a.running = true
	a.publish(events.SchedulerRunSwitchUpdateEvent(true))
	a.Become(SchedIdleState{actor: a})
	ctx.Send(ctx.Self(), schedulerTick{})
}

func (a *SchedulerActor) stopRunning() {
	if a.cancelNextTick != nil {
		a.cancelNextTick()
		a.cancelNextTick = nil
	}
	a.running = false
	a.publish(events.SchedulerRunSwitchUpdateEvent(false))
	a.publishStatus()
	a.Become(SchedStoppedState{actor: a})
}

// handleCommon serves the messages every non-cycle state accepts the same
// way. Returns false when the message was not consumed.
func (a *SchedulerActor) handleCommon(ctx actor.Context, stateName string) bool {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_SCHEDULER,
			Healthy: true,
			State:   stateName,
		})
	case domain.GetStatusRequest:
		ForRequest(msg).Respond(ctx, domain.GetStatusResponse{Status: a.report()})
	case domain.SetDischargeEnabledRequest:
		prev := a.store.Snapshot().Schedule.Enabled
		err := a.store.Update(func(s *config.Settings) {
			s.Schedule.Enabled = msg.Enable
		})
		if err != nil {
			a.logger.Error("scheduler: persisting discharge enable failed", zap.Error(err))
			ForRequest(msg).Respond(ctx, domain.SetDischargeEnabledResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: err},
			})
			return true
		}
		a.publish(events.DischargeEnableSwitchUpdateEvent(msg.Enable))
		ForRequest(msg).Respond(ctx, domain.SetDischargeEnabledResponse{Changed: prev != msg.Enable})
	case domain.SetWorkModeOverrideRequest:
		a.logger.Info("scheduler: manual work mode override", zap.String("mode", string(msg.Mode)))
		sender := ForRequest(msg).ReplyTo(ctx)
		PipeToSelfWithRecover(ctx, ctx.RequestFuture(a.gatewayActor, domain.SetWorkModeRequest{Mode: msg.Mode}, schedulerGatewayTimeout), func(err error) any {
			return domain.SetWorkModeResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: err},
			}
		})
		a.BecomeStacked(SchedOverrideState{actor: a, replyTo: sender, mode: msg.Mode})
	default:
		return false
	}
	return true
}

// Stopped state

type SchedStoppedState struct {
	ActorState
	actor *SchedulerActor
}

func (state SchedStoppedState) Name() string {
	return "stopped"
}

func (state SchedStoppedState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.actor.logger.Debug("scheduler@stopped: started")
		state.actor.scheduler = scheduler.NewTimerScheduler(ctx)
		if state.actor.cfg.Schedule.AutoStart {
			state.actor.logger.Info("scheduler: auto start")
			state.actor.startRunning(ctx)
		}
	case *actor.Restarting:
	case domain.SchedulerStartRequest:
		state.actor.logger.Info("scheduler: start")
		ForRequest(msg).Respond(ctx, domain.SchedulerStartResponse{Started: true})
		state.actor.startRunning(ctx)
	case domain.SchedulerStopRequest:
		ForRequest(msg).Respond(ctx, domain.SchedulerStopResponse{})
	default:
		if !state.actor.handleCommon(ctx, state.Name()) {
			state.actor.logger.Debug("scheduler@stopped: recv", zap.String("type", fmt.Sprintf("%T", msg)))
		}
	}
}

// Idle state: running, waiting for the next tick

type SchedIdleState struct {
	ActorState
	actor *SchedulerActor
}

func (state SchedIdleState) Name() string {
	return "idle"
}

func (state SchedIdleState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case schedulerTick:
		state.actor.beginCycle(ctx)
	case domain.SchedulerStartRequest:
		ForRequest(msg).Respond(ctx, domain.SchedulerStartResponse{Started: false})
	case domain.SchedulerStopRequest:
		state.actor.logger.Info("scheduler: stop")
		ForRequest(msg).Respond(ctx, domain.SchedulerStopResponse{})
		state.actor.stopRunning()
	default:
		if !state.actor.handleCommon(ctx, state.Name()) {
			state.actor.logger.Debug("scheduler@idle: recv", zap.String("type", fmt.Sprintf("%T", msg)))
		}
	}
}

// Override state: a manual mode change is in flight

type SchedOverrideState struct {
	ActorState
	actor   *SchedulerActor
	replyTo *actor.PID
	mode    domain.InverterMode
}

func (state SchedOverrideState) Name() string {
	return "override"
}

func (state SchedOverrideState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.SetWorkModeResponse:
		if msg.HasResponseError() {
			metrics.GatewayErrors.Inc()
			ctx.Send(state.replyTo, domain.SetWorkModeOverrideResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: msg.GetResponseError()},
			})
		} else {
			if msg.Result.OK {
				state.actor.mode = state.mode
				state.actor.dischargeActive = state.mode == domain.ModeForceDischarge
				metrics.ModeTransitions.WithLabelValues(string(state.mode)).Inc()
				state.actor.publishStatus()
			}
			ctx.Send(state.replyTo, domain.SetWorkModeOverrideResponse{Result: msg.Result})
		}
		state.actor.UnbecomeStacked()
		state.actor.stash.UnstashAll(ctx)
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_SCHEDULER,
			Healthy: true,
			State:   state.Name(),
		})
	default:
		state.actor.logger.Debug("scheduler@override: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.actor.stash.Stash(ctx, msg)
	}
}

// Cycle state: one check cycle is in progress

func (a *SchedulerActor) beginCycle(ctx actor.Context) {
	cycle := &schedulerCycle{
		settings: a.store.Snapshot(),
		now:      time.Now(),
	}
	a.logger.Debug("scheduler: cycle start")
	PipeToSelfWithRecover(ctx, ctx.RequestFuture(a.gatewayActor, domain.GetBatteryRequest{}, schedulerGatewayTimeout), func(err error) any {
		return domain.GetBatteryResponse{
			ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: err},
		}
	})
	a.Become(SchedCycleState{actor: a, cycle: cycle})
}

type SchedCycleState struct {
	ActorState
	actor *SchedulerActor
	cycle *schedulerCycle
}

func (state SchedCycleState) Name() string {
	return "cycle"
}

func (state SchedCycleState) Receive(ctx actor.Context) {
	a := state.actor
	cycle := state.cycle

	switch msg := ctx.Message().(type) {
	case domain.GetBatteryResponse:
		if msg.HasResponseError() {
			// a stale SoC is still usable, so keep the last reading
			metrics.GatewayErrors.Inc()
			cycle.errText = fmt.Sprintf("battery read: %s", msg.GetResponseError())
			cycle.soc = a.soc
			cycle.powerWatt = a.powerWatt
			cycle.capacityWatt = a.capacityWatt
		} else {
			cycle.batteryOK = true
			cycle.soc = msg.Battery.SoC
			cycle.powerWatt = msg.Battery.PowerWatt
			cycle.capacityWatt = a.capacityWatt
			if msg.Battery.CapacityWatt != nil {
				cycle.capacityWatt = *msg.Battery.CapacityWatt
			}
		}
		state.requestForecastOrMode(ctx)
	case domain.GetForecastResponse:
		state.onForecast(ctx, msg)
	case domain.GetWorkModeResponse:
		state.onWorkMode(ctx, msg)
	case domain.SetWorkModeResponse:
		state.onSetWorkMode(ctx, msg)
	case settleDone:
		state.sendTOU(ctx)
	case domain.SetTOUResponse:
		state.onSetTOU(ctx, msg)
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_SCHEDULER,
			Healthy: true,
			State:   state.Name(),
		})
	case schedulerTick:
		// a cycle is already in flight
	default:
		a.logger.Debug("scheduler@cycle: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		a.stash.Stash(ctx, msg)
	}
}

func (state SchedCycleState) requestForecastOrMode(ctx actor.Context) {
	a := state.actor
	weather := state.cycle.settings.Weather
	if weather.Enabled && weather.Located() && weather.MinSolarThresholdKWh > 0 {
		PipeToSelfWithRecover(ctx, ctx.RequestFuture(a.forecastActor, domain.GetForecastRequest{CapacityWatt: state.cycle.capacityWatt}, schedulerForecastTimeout), func(err error) any {
			return domain.GetForecastResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: err},
			}
		})
		return
	}
	state.requestMode(ctx)
}

func (state SchedCycleState) onForecast(ctx actor.Context, msg domain.GetForecastResponse) {
	cycle := state.cycle
	weather := cycle.settings.Weather

	if msg.HasResponseError() {
		metrics.ForecastFetches.WithLabelValues("error").Inc()
		// discharge is the primary feature, forecast problems never block it
		cycle.weatherSkip = false
		cycle.weatherSkipReason = "weather data unavailable"
	} else {
		outcome := "ok"
		if msg.Stale {
			outcome = "stale"
		}
		metrics.ForecastFetches.WithLabelValues(outcome).Inc()
		judge := service.WeatherJudge{
			BadConditions: weather.BadConditionSet(),
			MinCloudCover: weather.MinCloudCover,
		}
		cycle.weatherSkip, cycle.weatherSkipReason = judge.ShouldSkipDischarge(msg.Forecast, weather.MinSolarThresholdKWh)
		if day := msg.Forecast.Tomorrow(); day != nil && day.EstimatedSolarKWh != nil {
			cycle.solarTomorrowKWh = day.EstimatedSolarKWh
		}
	}
	state.requestMode(ctx)
}

func (state SchedCycleState) requestMode(ctx actor.Context) {
	PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.actor.gatewayActor, domain.GetWorkModeRequest{}, schedulerGatewayTimeout), func(err error) any {
		return domain.GetWorkModeResponse{
			ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: err},
		}
	})
}

func (state SchedCycleState) onWorkMode(ctx actor.Context, msg domain.GetWorkModeResponse) {
	a := state.actor
	cycle := state.cycle

	if msg.HasResponseError() || !msg.Result.OK {
		// without the real mode no transition is safe to command
		metrics.GatewayErrors.Inc()
		if msg.HasResponseError() {
			cycle.errText = fmt.Sprintf("work mode read: %s", msg.GetResponseError())
		} else {
			cycle.errText = fmt.Sprintf("work mode read: %s", msg.Result.Message)
		}
		state.finishCycle(ctx)
		return
	}

	cycle.modeKnown = true
	cycle.mode = msg.Result.Mode

	// the inverter is the source of truth: resync before deciding, so a
	// manual change through the vendor app is picked up within one cycle
	dischargeActive := cycle.mode == domain.ModeForceDischarge

	cycle.decision = service.Decide(service.DecisionInput{
		Settings:        cycle.settings,
		Now:             cycle.now,
		SoC:             cycle.soc,
		DischargeActive: dischargeActive,
		ChargeActive:    a.chargeActive,
		WeatherSkip:     cycle.weatherSkip,
	})

	cycle.desiredMode = domain.ModeNormal
	if cycle.decision.ForceDischarge {
		cycle.desiredMode = domain.ModeForceDischarge
	}

	if cycle.desiredMode != cycle.mode {
		a.logger.Info("scheduler: mode transition",
			zap.String("from", string(cycle.mode)),
			zap.String("to", string(cycle.desiredMode)))
		PipeToSelfWithRecover(ctx, ctx.RequestFuture(a.gatewayActor, domain.SetWorkModeRequest{Mode: cycle.desiredMode}, schedulerGatewayTimeout), func(err error) any {
			return domain.SetWorkModeResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: err},
			}
		})
		return
	}

	if state.transitionChanged(dischargeActive) {
		state.sendTOU(ctx)
		return
	}

	cycle.commandsOK = true
	state.finishCycle(ctx)
}

// transitionChanged reports whether any feature flipped against the carried
// state, which is what makes a TOU rewrite due.
func (state SchedCycleState) transitionChanged(dischargeActive bool) bool {
	a := state.actor
	d := state.cycle.decision
	return d.ForceDischarge != dischargeActive ||
		d.ForceDischarge != a.dischargeActive ||
		d.ForceCharge != a.chargeActive ||
		d.InFreeEnergyWindow != a.freeEnergyActive
}

func (state SchedCycleState) onSetWorkMode(ctx actor.Context, msg domain.SetWorkModeResponse) {
	a := state.actor
	cycle := state.cycle

	if msg.HasResponseError() {
		metrics.GatewayErrors.Inc()
		cycle.errText = fmt.Sprintf("set work mode: %s", msg.GetResponseError())
		state.finishCycle(ctx)
		return
	}
	if !msg.Result.OK {
		cycle.errText = fmt.Sprintf("set work mode rejected: %s", msg.Result.Message)
		state.finishCycle(ctx)
		return
	}

	metrics.ModeTransitions.WithLabelValues(string(cycle.desiredMode)).Inc()
	cycle.mode = cycle.desiredMode
	// let the inverter settle on the new mode before rewriting the TOU
	a.scheduler.RequestOnce(a.settleDelay(), ctx.Self(), settleDone{})
}

func (state SchedCycleState) sendTOU(ctx actor.Context) {
	a := state.actor
	cycle := state.cycle
	sched := cycle.settings.Schedule

	windowSoC := sched.MinSoCReserve
	if cycle.decision.ForceDischarge {
		windowSoC = sched.CutoffSoC
	}
	maxPower := sched.MaxPowerWatt
	if maxPower <= 0 {
		maxPower = cycle.capacityWatt
	}
	schedule := service.BuildTOUSchedule(cycle.settings, windowSoC, maxPower)

	PipeToSelfWithRecover(ctx, ctx.RequestFuture(a.gatewayActor, domain.SetTOURequest{Schedule: schedule}, schedulerGatewayTimeout), func(err error) any {
		return domain.SetTOUResponse{
			ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: err},
		}
	})
}

func (state SchedCycleState) onSetTOU(ctx actor.Context, msg domain.SetTOUResponse) {
	cycle := state.cycle

	if msg.HasResponseError() {
		metrics.GatewayErrors.Inc()
		cycle.errText = fmt.Sprintf("set TOU: %s", msg.GetResponseError())
	} else if !msg.Result.OK {
		cycle.errText = fmt.Sprintf("set TOU rejected: %s", msg.Result.Message)
	} else {
		metrics.TOUUpdates.Inc()
		cycle.commandsOK = true
	}
	state.finishCycle(ctx)
}

func (state SchedCycleState) finishCycle(ctx actor.Context) {
	a := state.actor
	cycle := state.cycle

	a.soc = cycle.soc
	a.powerWatt = cycle.powerWatt
	a.capacityWatt = cycle.capacityWatt
	if cycle.modeKnown {
		a.mode = cycle.mode
		// the judge's verdict is reported even outside the discharge
		// window, so an impending skip is visible before the window opens
		if cycle.weatherSkip && !a.weatherSkip {
			metrics.WeatherSkips.Inc()
		}
		a.weatherSkip = cycle.weatherSkip
		a.weatherSkipRsn = cycle.weatherSkipReason
		if cycle.commandsOK {
			a.dischargeActive = cycle.decision.ForceDischarge
			a.chargeActive = cycle.decision.ForceCharge
			a.freeEnergyActive = cycle.decision.InFreeEnergyWindow
		} else {
			// the fresh mode read still tells us whether discharge runs
			a.dischargeActive = cycle.mode == domain.ModeForceDischarge
		}
	}
	now := cycle.now
	a.lastCheck = &now
	a.lastError = cycle.errText

	metrics.SchedulerCycles.Inc()
	if cycle.errText != "" {
		metrics.SchedulerCycleErrors.Inc()
		a.logger.Warn("scheduler: cycle finished with error", zap.String("error", cycle.errText))
	} else {
		a.logger.Debug("scheduler: cycle finished")
	}

	a.publishStatus()
	if cycle.solarTomorrowKWh != nil {
		a.publish(events.SolarForecastUpdateEvent(*cycle.solarTomorrowKWh))
	}

	a.Become(SchedIdleState{actor: a})
	a.cancelNextTick = a.scheduler.RequestOnce(a.interval(), ctx.Self(), schedulerTick{})
	a.stash.UnstashAll(ctx)
}
