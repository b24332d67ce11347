package domain

import "time"

const (
	ACTOR_ID_MASTER    = "master"
	ACTOR_ID_GATEWAY   = "gateway"
	ACTOR_ID_FORECAST  = "forecast"
	ACTOR_ID_SCHEDULER = "scheduler"
	ACTOR_ID_MQTT      = "mqtt"
)

// Gateway actor protocol

type GetBatteryRequest struct {
	ActorRequestMixIn
}

type GetBatteryResponse struct {
	ActorResponseMixIn
	Battery BatteryInfo
}

type GetWorkModeRequest struct {
	ActorRequestMixIn
}

type GetWorkModeResponse struct {
	ActorResponseMixIn
	Result ModeResult
}

type SetWorkModeRequest struct {
	ActorRequestMixIn
	Mode InverterMode
}

type SetWorkModeResponse struct {
	ActorResponseMixIn
	Result CommandResult
}

type SetTOURequest struct {
	ActorRequestMixIn
	Schedule TOUSchedule
}

type SetTOUResponse struct {
	ActorResponseMixIn
	Result CommandResult
}

// Forecast actor protocol

type GetForecastRequest struct {
	ActorRequestMixIn
	// Force bypasses the cache TTL. Used after a config change.
	Force bool
	// CapacityWatt is the inverter rating last seen by the caller, used to
	// size the panel estimate when no capacity is configured.
	CapacityWatt int
}

type GetForecastResponse struct {
	ActorResponseMixIn
	Forecast  *Forecast
	FetchedAt time.Time
	Stale     bool
}

type ClearForecastCacheRequest struct {
	ActorRequestMixIn
}

type ClearForecastCacheResponse struct {
	ActorResponseMixIn
}

// Scheduler actor protocol

type GetStatusRequest struct {
	ActorRequestMixIn
}

type GetStatusResponse struct {
	ActorResponseMixIn
	Status StatusReport
}

type SchedulerStartRequest struct {
	ActorRequestMixIn
}

type SchedulerStartResponse struct {
	ActorResponseMixIn
	// Started is false when the scheduler was already running.
	Started bool
}

type SchedulerStopRequest struct {
	ActorRequestMixIn
}

type SchedulerStopResponse struct {
	ActorResponseMixIn
}

// MQTT actor protocol

type PublishMessageRequest struct {
	ActorRequestMixIn
	Topic   string
	Payload string
	Retain  bool
}

type PublishMessageResponse struct {
	ActorResponseMixIn
}

type PublishSensorUpdateRequest struct {
	ActorRequestMixIn
	Event  SensorUpdateEvent
	Retain bool
}

type PublishSensorUpdateResponse struct {
	ActorResponseMixIn
}

// Health protocol

type ActorHealthRequest struct {
	ActorRequestMixIn
}

type ActorHealthResponse struct {
	ActorResponseMixIn
	Id      string
	Healthy bool
	State   string
}
