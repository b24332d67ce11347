package domain

import "fmt"

type SensorUpdateEventMixIn struct {
	Id string
}

type SensorUpdateEvent interface {
	SensorUpdateEvent() string
	SensorId() string
}

func (e SensorUpdateEventMixIn) SensorUpdateEvent() string {
	return fmt.Sprintf("%T", e)
}

func (e SensorUpdateEventMixIn) SensorId() string {
	return e.Id
}

type FloatSensorUpdateEvent struct {
	SensorUpdateEventMixIn
	Value    float64
	Decimals uint
}

type BinarySensorUpdateEvent struct {
	SensorUpdateEventMixIn
	Value bool
}

type SwitchSensorUpdateEvent struct {
	SensorUpdateEventMixIn
	Value bool
}

type TextSensorUpdateEvent struct {
	SensorUpdateEventMixIn
	Value string
}

type BridgeStateUpdateEvent struct {
	SensorUpdateEventMixIn
	Value bool
}

const (
	SENSOR_ID_BATTERY_SOC           = "battery_soc"
	SENSOR_ID_BATTERY_POWER         = "battery_power"
	SENSOR_ID_INVERTER_MODE         = "inverter_mode"
	SENSOR_ID_FORCE_DISCHARGE       = "force_discharge"
	SENSOR_ID_FORCE_CHARGE          = "force_charge"
	SENSOR_ID_FREE_ENERGY_WINDOW    = "free_energy_window"
	SENSOR_ID_WEATHER_SKIP          = "weather_skip"
	SENSOR_ID_SOLAR_FORECAST_KWH    = "solar_forecast_tomorrow"
	SENSOR_ID_SCHEDULER_RUNNING     = "scheduler_running"
	SWITCH_ID_DISCHARGE_ENABLE      = "discharge_enable"
	SWITCH_ID_SCHEDULER_RUN         = "scheduler_run"
)
