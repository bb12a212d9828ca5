package config

import (
	"time"

	"go.uber.org/zap/zapcore"
)

type Config struct {
	LogLevel zapcore.Level
	Inverter InverterConfig `mapstructure:"inverter"`
	MQTT     MQTTConfig     `mapstructure:"mqtt"`
	Topics   TopicsConfig   `mapstructure:"topics"`
	Limiter  LimiterConfig  `mapstructure:"limiter"`
	Port     uint           `mapstructure:"port"`
	HttpLog  bool           `mapstructure:"http_log"`
}

type InverterConfig struct {
	MaxPower     int `mapstructure:"max_power"`
	DefaultPower int `mapstructure:"default_power"`
}

type MQTTConfig struct {
	Host                 string
	Port                 int
	Username             string
	Password             string
	ClientIdPrefix       string `mapstructure:"client_id_prefix"`
	ConnectTimeoutMillis uint32 `mapstructure:"connect_timeout_millis"`
}

// TopicsConfig holds topic specs of the form "<topic>[:<dotted.path>]".
type TopicsConfig struct {
	InverterPower   string `mapstructure:"inverter_power"`
	SmartmeterPower string `mapstructure:"smartmeter_power"`
	InverterLimiter string `mapstructure:"inverter_limiter"`
}

type LimiterConfig struct {
	MaxDwellSeconds      float64 `mapstructure:"max_dwell_seconds"`
	PublishTimeoutMillis uint32  `mapstructure:"publish_timeout_millis"`
}

func (c LimiterConfig) MaxDwell() time.Duration {
	return time.Duration(c.MaxDwellSeconds * float64(time.Second))
}

func (c LimiterConfig) PublishTimeout() time.Duration {
	return time.Duration(c.PublishTimeoutMillis) * time.Millisecond
}

func (c MQTTConfig) ConnectTimeout() time.Duration {
	return time.Duration(c.ConnectTimeoutMillis) * time.Millisecond
}

// Redacted returns a copy safe to log.
func (c Config) Redacted() Config {
	if c.MQTT.Username != "" {
		c.MQTT.Username = "*redacted*"
	}
	if c.MQTT.Password != "" {
		c.MQTT.Password = "*redacted*"
	}
	return c
}
