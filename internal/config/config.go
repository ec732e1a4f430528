package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	APIBaseURL    string `mapstructure:"API_BASE_URL"`
	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	ControlPort   string `mapstructure:"CONTROL_PORT"`
	GPSIntervalMS int    `mapstructure:"GPS_INTERVAL_MS"`
	LogLevel      string `mapstructure:"LOG_LEVEL"`
}

func Load() Config {
	viper.AutomaticEnv()
	viper.SetDefault("API_BASE_URL", "http://192.168.1.20:5230")
	viper.SetDefault("REDIS_ADDR", "localhost:6379")
	viper.SetDefault("CONTROL_PORT", ":7070")
	viper.SetDefault("GPS_INTERVAL_MS", 5000)
	viper.SetDefault("LOG_LEVEL", "info")

	var cfg Config
	_ = viper.Unmarshal(&cfg)
	return cfg
}

// WebSocketURL derives the socket endpoint from the REST base URL:
// the http/https scheme becomes ws/wss and a fixed /ws path is appended.
func (c Config) WebSocketURL() string {
	base := strings.TrimRight(c.APIBaseURL, "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + "/ws"
}

func (c Config) GPSInterval() time.Duration {
	if c.GPSIntervalMS <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.GPSIntervalMS) * time.Millisecond
}
