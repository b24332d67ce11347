package domain

import "time"

// InverterMode is the system work mode of a Deye AC-coupled hybrid inverter.
type InverterMode string

const (
	// ModeNormal keeps the battery for house loads (zero export to CT).
	ModeNormal InverterMode = "ZERO_EXPORT_TO_CT"
	// ModeForceDischarge sells battery energy to the grid (selling first).
	ModeForceDischarge InverterMode = "SELLING_FIRST"
	ModeUnknown        InverterMode = ""
)

// BatteryInfo is a point-in-time battery reading. SoC and PowerWatt are nil
// when the cloud response did not carry the datapoint. Negative power means
// the battery is charging.
type BatteryInfo struct {
	SoC          *float64
	PowerWatt    *float64
	CapacityWatt *int
}

// ModeResult is the typed result of a work mode read.
type ModeResult struct {
	OK      bool
	Mode    InverterMode
	Message string
}

// CommandResult is the typed result of a mode or TOU write. A rejected
// command is data, not an error: the gateway reached the API and the API
// said no.
type CommandResult struct {
	OK      bool
	Message string
}

// TOUSegment is one time-anchored entry of the daily Time-of-Use schedule.
type TOUSegment struct {
	Time       string `json:"time"` // HH:MM
	SoC        int    `json:"soc"`
	PowerWatt  int    `json:"power"`
	GridCharge bool   `json:"enableGridCharge"`
	Generation bool   `json:"enableGeneration"`
}

// TOUSchedule is the full 24h piecewise schedule. It is always computed
// fresh and sent whole, never diffed against the previous one.
type TOUSchedule struct {
	Segments []TOUSegment
}

// Condition is the categorical weather state of a forecast sample or day.
type Condition string

const (
	ConditionClear        Condition = "Clear"
	ConditionClouds       Condition = "Clouds"
	ConditionRain         Condition = "Rain"
	ConditionDrizzle      Condition = "Drizzle"
	ConditionThunderstorm Condition = "Thunderstorm"
	ConditionSnow         Condition = "Snow"
	ConditionFog          Condition = "Fog"
	ConditionUnknown      Condition = "Unknown"
)

const (
	SolarSourceForecastAPI = "forecast.solar"
	SolarSourceWeather     = "weather"
)

// ForecastDay is one analysed day of the forecast. Rebuilt wholly on every
// refresh, never mutated in place.
type ForecastDay struct {
	Date              string `json:"date"` // YYYY-MM-DD
	DayName           string `json:"day_name"`
	IsToday           bool   `json:"is_today"`
	TempMin           *float64
	TempMax           *float64
	Condition         Condition
	CloudCover        int
	PrecipProb        int
	EstimatedSolarKWh *float64
	SolarSource       string
	IsBadWeather      bool
}

// HourSample is a sub-daily meteorological sample used by the solar
// estimator. Hour is local time of day, 0-23.
type HourSample struct {
	Hour       int
	CloudCover int
	PrecipProb int
	Condition  Condition
}

// RawForecast is what a forecast provider returns before analysis.
type RawForecast struct {
	OK       bool
	Location string
	Days     []ForecastDay
	// HourlyByDate groups sub-daily samples by day, keyed YYYY-MM-DD.
	HourlyByDate map[string][]HourSample
	Error        string
}

// Forecast is the analysed forecast: per-day solar estimates and bad
// weather flags filled in.
type Forecast struct {
	OK       bool
	Location string
	Days     []ForecastDay
	Error    string
}

// Tomorrow returns the forecast day the discharge skip decision looks at:
// index 1 when present, else today. There is deliberately no look-ahead
// beyond one day.
func (f *Forecast) Tomorrow() *ForecastDay {
	if f == nil || len(f.Days) == 0 {
		return nil
	}
	if len(f.Days) > 1 {
		return &f.Days[1]
	}
	return &f.Days[0]
}

// SchedulerStatus is the run state of the scheduling engine.
type SchedulerStatus string

const (
	SchedulerStopped SchedulerStatus = "stopped"
	SchedulerRunning SchedulerStatus = "running"
)

// StatusReport is the externally observable operating state, produced by
// the scheduler actor every cycle and consumed by the HTTP status surface
// and the MQTT bridge.
type StatusReport struct {
	Mode                 InverterMode    `json:"mode"`
	SoC                  *float64        `json:"soc"`
	BatteryPowerWatt     *float64        `json:"battery_power"`
	ForceDischargeActive bool            `json:"force_discharge_active"`
	ForceChargeActive    bool            `json:"force_charge_active"`
	FreeEnergyActive     bool            `json:"free_energy_active"`
	WeatherSkipActive    bool            `json:"weather_skip_active"`
	WeatherSkipReason    string          `json:"weather_skip_reason"`
	LastCheck            *time.Time      `json:"last_check"`
	LastError            string          `json:"last_error"`
	SchedulerStatus      SchedulerStatus `json:"scheduler_status"`
	InverterCapacityWatt int             `json:"inverter_capacity"`
}
