package config

import (
	"errors"
	"regexp"
	"strings"

	"go.uber.org/zap/zapcore"
)

type Config struct {
	LogLevel zapcore.Level
	Inverter InverterConfig  `mapstructure:"inverter"`
	MQTT     MQTTConfig      `mapstructure:"mqtt"`
	Schedule SchedulerConfig `mapstructure:"scheduler"`
	Solar    SolarConfig     `mapstructure:"solar"`

	// SettingsFile is where the runtime-editable settings (schedule,
	// weather, free energy) are persisted as JSON.
	SettingsFile string `mapstructure:"settings_file"`
	Port         uint   `mapstructure:"port"`
	HttpLog      bool   `mapstructure:"http_log"`
}

type InverterConfig struct {
	// Transport selects the gateway implementation: "cloud" or "modbus".
	Transport string `mapstructure:"transport"`

	// Deye cloud API credentials.
	APIBaseURL string `mapstructure:"api_base_url"`
	AppId      string `mapstructure:"app_id"`
	AppSecret  string `mapstructure:"app_secret"`
	Email      string
	Password   string
	DeviceSN   string `mapstructure:"device_sn"`

	// Local Modbus TCP endpoint.
	ModbusHost string `mapstructure:"modbus_host"`
	ModbusPort uint   `mapstructure:"modbus_port"`
	ModbusId   uint   `mapstructure:"modbus_id"`
}

type SchedulerConfig struct {
	IntervalSeconds    uint32 `mapstructure:"interval_seconds"`
	SettleDelaySeconds uint32 `mapstructure:"settle_delay_seconds"`
	AutoStart          bool   `mapstructure:"auto_start"`
}

// SolarConfig is the panel orientation used by the dedicated solar
// production forecast.
type SolarConfig struct {
	Declination int `mapstructure:"declination"`
	Azimuth     int `mapstructure:"azimuth"`
}

type MQTTConfig struct {
	Host      string
	Port      int
	Username  string
	Password  string
	BaseTopic string `mapstructure:"base_topic"`
}

const (
	TransportCloud  = "cloud"
	TransportModbus = "modbus"
)

func (c *Config) Validate() error {
	switch c.Inverter.Transport {
	case TransportCloud:
		if c.Inverter.APIBaseURL == "" || c.Inverter.AppId == "" || c.Inverter.DeviceSN == "" {
			return errors.New("cloud transport requires inverter.api_base_url, inverter.app_id and inverter.device_sn")
		}
	case TransportModbus:
		if c.Inverter.ModbusHost == "" {
			return errors.New("modbus transport requires inverter.modbus_host")
		}
	default:
		return errors.New("config param inverter.transport must be \"cloud\" or \"modbus\"")
	}
	if c.Schedule.IntervalSeconds < 5 {
		return errors.New("config param scheduler.interval_seconds should be >= 5")
	}
	if c.Schedule.SettleDelaySeconds < 1 {
		return errors.New("config param scheduler.settle_delay_seconds should be >= 1")
	}
	return nil
}

func (c *MQTTConfig) Enabled() bool {
	return c.Host != ""
}

func CheckMQTTTopic(baseTopic string) (string, error) {
	// check and fix base topic
	lowerBaseTopic := strings.ToLower(baseTopic)
	baseTopicRegexp := regexp.MustCompile("^[a-z0-9_]+$")
	matches := baseTopicRegexp.FindAllStringSubmatch(lowerBaseTopic, 1)
	if len(matches) <= 0 {
		return "", errors.New("invalid topic. can only contain letters, numbers and underscores")
	}
	return lowerBaseTopic, nil
}
