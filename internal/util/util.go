package util

import (
	"github.com/deyectl/deyectl/internal/config"

	"go.uber.org/zap"
)

func LoadTestConfig() config.Config {
	return config.Config{
		LogLevel: zap.DebugLevel,
		Inverter: config.InverterConfig{
			Transport:  config.TransportCloud,
			APIBaseURL: "https://eu1-developer.deyecloud.com",
			AppId:      "test-app",
			AppSecret:  "test-secret",
			Email:      "test@example.com",
			Password:   "hunter2",
			DeviceSN:   "SN-TEST",
		},
		MQTT: config.MQTTConfig{
			Host:      "localhost",
			Port:      1883,
			BaseTopic: "deyectl",
		},
		Schedule: config.SchedulerConfig{
			IntervalSeconds:    30,
			SettleDelaySeconds: 1,
			AutoStart:          false,
		},
		SettingsFile: "",
		Port:         8080,
	}
}
