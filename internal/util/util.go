package util

import (
	"github.com/berfenger/zeroexport2mqtt/internal/config"

	"go.uber.org/zap"
)

func LoadTestConfig() config.Config {
	return config.Config{
		LogLevel: zap.DebugLevel,
		Inverter: config.InverterConfig{
			MaxPower:     800,
			DefaultPower: 800,
		},
		MQTT: config.MQTTConfig{
			Host:                 "localhost",
			Port:                 1883,
			ClientIdPrefix:       "zeroexport2mqtt",
			ConnectTimeoutMillis: 1000,
		},
		Topics: config.TopicsConfig{
			InverterPower:   "inverter/status:payload.power",
			SmartmeterPower: "smartmeter/power",
			InverterLimiter: "inverter/ctrl/limit",
		},
		Limiter: config.LimiterConfig{
			MaxDwellSeconds:      200,
			PublishTimeoutMillis: 1000,
		},
		Port: 8080,
	}
}
