package events

import (
	. "github.com/deyectl/deyectl/internal/core/domain"
)

func StatusReportToUpdateEvents(report StatusReport) []any {
	var events []any

	if report.SoC != nil {
		events = append(events, FloatSensorUpdateEvent{
			SensorUpdateEventMixIn: SensorUpdateEventMixIn{
				Id: SENSOR_ID_BATTERY_SOC,
			},
			Value:    *report.SoC,
			Decimals: 1,
		})
	}
	if report.BatteryPowerWatt != nil {
		events = append(events, FloatSensorUpdateEvent{
			SensorUpdateEventMixIn: SensorUpdateEventMixIn{
				Id: SENSOR_ID_BATTERY_POWER,
			},
			Value:    *report.BatteryPowerWatt,
			Decimals: 0,
		})
	}
	events = append(events, TextSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SENSOR_ID_INVERTER_MODE,
		},
		Value: string(report.Mode),
	})
	events = append(events, BinarySensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SENSOR_ID_FORCE_DISCHARGE,
		},
		Value: report.ForceDischargeActive,
	})
	events = append(events, BinarySensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SENSOR_ID_FORCE_CHARGE,
		},
		Value: report.ForceChargeActive,
	})
	events = append(events, BinarySensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SENSOR_ID_FREE_ENERGY_WINDOW,
		},
		Value: report.FreeEnergyActive,
	})
	events = append(events, BinarySensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SENSOR_ID_WEATHER_SKIP,
		},
		Value: report.WeatherSkipActive,
	})
	events = append(events, BinarySensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SENSOR_ID_SCHEDULER_RUNNING,
		},
		Value: report.SchedulerStatus == SchedulerRunning,
	})

	return events
}

func SolarForecastUpdateEvent(kwh float64) any {
	return FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SENSOR_ID_SOLAR_FORECAST_KWH,
		},
		Value:    kwh,
		Decimals: 2,
	}
}

func DischargeEnableSwitchUpdateEvent(enabled bool) any {
	return SwitchSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SWITCH_ID_DISCHARGE_ENABLE,
		},
		Value: enabled,
	}
}

func SchedulerRunSwitchUpdateEvent(running bool) any {
	return SwitchSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SWITCH_ID_SCHEDULER_RUN,
		},
		Value: running,
	}
}
