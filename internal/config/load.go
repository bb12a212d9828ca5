package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/berfenger/zeroexport2mqtt/internal/core/domain"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const ENV_PREFIX = "limiter"

// env names understood besides LIMITER_<KEY>
var envAliases = map[string][]string{
	"log_level":                      nil,
	"inverter.max_power":             {"INVERTER_MAX_POWER"},
	"inverter.default_power":         {"INVERTER_DEFAULT_POWER"},
	"mqtt.host":                      {"MQTT_BROKER"},
	"mqtt.port":                      {"MQTT_PORT"},
	"mqtt.username":                  {"MQTT_USERNAME"},
	"mqtt.password":                  {"MQTT_PASSWORD"},
	"mqtt.client_id_prefix":          nil,
	"mqtt.connect_timeout_millis":    nil,
	"topics.inverter_power":          {"MQTT_TOPIC_INVERTER_POWER"},
	"topics.smartmeter_power":        {"MQTT_TOPIC_SMARTMETER_POWER"},
	"topics.inverter_limiter":        {"MQTT_TOPIC_INVERTER_LIMITER"},
	"limiter.max_dwell_seconds":      nil,
	"limiter.publish_timeout_millis": nil,
	"port":                           {"PORT"},
	"http_log":                       nil,
}

// Load reads the configuration from the environment and, if CONFIG_FILE is
// set, from that file. Any returned error is a configuration error.
func Load(v *viper.Viper) (*Config, error) {

	setDefaults(v)

	v.SetEnvPrefix(ENV_PREFIX)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, aliases := range envAliases {
		names := append([]string{strings.ToUpper(ENV_PREFIX + "_" + strings.ReplaceAll(key, ".", "_"))}, aliases...)
		if err := v.BindEnv(append([]string{key}, names...)...); err != nil {
			return nil, err
		}
	}

	// if defined, try to load config from yaml file
	if cfgFile := os.Getenv("CONFIG_FILE"); cfgFile != "" {
		if _, err := os.Stat(cfgFile); err == nil {
			slog.Info("Using config", "file", cfgFile)
			v.SetConfigFile(cfgFile)

			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("reading config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	cfg.LogLevel = parseLogLevel(v.GetString("log_level"))

	// default power falls back to max power only when not given at all
	if !v.IsSet("inverter.default_power") {
		cfg.Inverter.DefaultPower = cfg.Inverter.MaxPower
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) Validate() error {
	if cfg.Inverter.MaxPower <= 0 {
		return fmt.Errorf("invalid value %d for inverter.max_power (INVERTER_MAX_POWER), must be > 0", cfg.Inverter.MaxPower)
	}
	if cfg.Inverter.DefaultPower <= 0 {
		return fmt.Errorf("invalid value %d for inverter.default_power (INVERTER_DEFAULT_POWER), must be > 0", cfg.Inverter.DefaultPower)
	}
	if cfg.MQTT.Host == "" {
		return errors.New("config param mqtt.host (MQTT_BROKER) is required")
	}
	if cfg.MQTT.Port <= 0 || cfg.MQTT.Port > 65535 {
		return fmt.Errorf("invalid value %d for mqtt.port", cfg.MQTT.Port)
	}
	if cfg.Topics.InverterPower == "" {
		return errors.New("config param topics.inverter_power (MQTT_TOPIC_INVERTER_POWER) is required")
	}
	if cfg.Topics.SmartmeterPower == "" {
		return errors.New("config param topics.smartmeter_power (MQTT_TOPIC_SMARTMETER_POWER) is required")
	}
	if _, err := domain.ParseTopicSpec(cfg.Topics.InverterPower); err != nil {
		return fmt.Errorf("topics.inverter_power: %w", err)
	}
	if _, err := domain.ParseTopicSpec(cfg.Topics.SmartmeterPower); err != nil {
		return fmt.Errorf("topics.smartmeter_power: %w", err)
	}
	if cfg.Topics.InverterLimiter != "" {
		spec, err := domain.ParseTopicSpec(cfg.Topics.InverterLimiter)
		if err != nil {
			return fmt.Errorf("topics.inverter_limiter: %w", err)
		}
		if spec.HasPath() {
			return fmt.Errorf("topics.inverter_limiter: %w %q: a command topic takes no path", domain.ErrInvalidTopicSpec, cfg.Topics.InverterLimiter)
		}
	}
	if cfg.Limiter.MaxDwellSeconds <= 0 {
		return errors.New("config param limiter.max_dwell_seconds should be > 0")
	}
	if cfg.Limiter.PublishTimeoutMillis < 100 {
		return errors.New("config param limiter.publish_timeout_millis should be >= 100")
	}
	return nil
}

func parseLogLevel(level string) zapcore.Level {
	switch level {
	case "trace":
		return zap.DebugLevel
	case "debug":
		return zap.DebugLevel
	case "info":
		return zap.InfoLevel
	case "error":
		return zap.ErrorLevel
	case "warn":
		return zap.WarnLevel
	case "fatal":
		return zap.FatalLevel
	default:
		return zap.InfoLevel
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("mqtt.port", 1883)
	v.SetDefault("mqtt.client_id_prefix", "zeroexport2mqtt")
	v.SetDefault("mqtt.connect_timeout_millis", 10000)
	v.SetDefault("limiter.max_dwell_seconds", 200)
	v.SetDefault("limiter.publish_timeout_millis", 5000)
	v.SetDefault("port", 8080)
	v.SetDefault("http_log", false)
}
