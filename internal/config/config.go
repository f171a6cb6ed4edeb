// Package config loads the process-wide Config via spf13/viper,
// grounded in gateway/backend/config/config.go and
// collab-service/backend/cmd/collab_server/main.go's initConfig, with
// defaults set so the zero-config path (no config.yaml present) still
// runs every core test and a single-process deployment without Kafka,
// Redis, or MySQL.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Running struct {
		Port int `mapstructure:"port"`
	} `mapstructure:"running"`

	JWT struct {
		Secret string `mapstructure:"secret"`
		Issuer string `mapstructure:"issuer"`
	} `mapstructure:"jwt"`

	RateLimit struct {
		MaxPerSecond int `mapstructure:"maxPerSecond"`
		MaxPerMinute int `mapstructure:"maxPerMinute"`
		WindowMs     int `mapstructure:"windowMs"`
	} `mapstructure:"rateLimit"`

	CursorBroadcastIntervalMs int `mapstructure:"cursorBroadcastIntervalMs"`
	HeartbeatIntervalSeconds  int `mapstructure:"heartbeatIntervalSeconds"`

	Kafka struct {
		Enabled bool     `mapstructure:"enabled"`
		Brokers []string `mapstructure:"brokers"`
		Topic   string   `mapstructure:"topic"`
	} `mapstructure:"kafka"`

	Redis struct {
		Enabled  bool   `mapstructure:"enabled"`
		Addr     string `mapstructure:"addr"`
		Password string `mapstructure:"password"`
	} `mapstructure:"redis"`

	Mysql struct {
		Enabled bool   `mapstructure:"enabled"`
		DSN     string `mapstructure:"dsn"`
	} `mapstructure:"mysql"`
}

// CursorBroadcastInterval returns the configured debounce window as a
// time.Duration.
func (c *Config) CursorBroadcastInterval() time.Duration {
	return time.Duration(c.CursorBroadcastIntervalMs) * time.Millisecond
}

// HeartbeatInterval returns the configured heartbeat tick as a
// time.Duration.
func (c *Config) HeartbeatInterval() time.Duration {
	return time.Duration(c.HeartbeatIntervalSeconds) * time.Second
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("running.port", 8080)
	v.SetDefault("jwt.secret", "dev-secret")
	v.SetDefault("jwt.issuer", "collabcore")
	v.SetDefault("rateLimit.maxPerSecond", 100)
	v.SetDefault("rateLimit.maxPerMinute", 1000)
	v.SetDefault("rateLimit.windowMs", 60_000)
	v.SetDefault("cursorBroadcastIntervalMs", 75)
	v.SetDefault("heartbeatIntervalSeconds", 30)
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.topic", "collabcore.events")
	v.SetDefault("redis.enabled", false)
	v.SetDefault("mysql.enabled", false)
}

// Load reads config.yaml from configPaths (falling back to defaults
// entirely if no file is found, so tests and zero-config runs work).
func Load(configPaths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	for _, p := range configPaths {
		v.AddConfigPath(p)
	}
	if len(configPaths) == 0 {
		v.AddConfigPath(".")
	}
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}
