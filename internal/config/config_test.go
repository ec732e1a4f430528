package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()
	if cfg.APIBaseURL == "" {
		t.Fatalf("expected default api base url")
	}
	if cfg.ControlPort == "" {
		t.Fatalf("expected default control port")
	}
	if cfg.GPSInterval() != 5*time.Second {
		t.Fatalf("expected default 5s interval, got %v", cfg.GPSInterval())
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("API_BASE_URL", "https://bus.example.com")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("CONTROL_PORT", ":9000")
	t.Setenv("GPS_INTERVAL_MS", "1000")

	cfg := Load()
	if cfg.APIBaseURL != "https://bus.example.com" {
		t.Fatalf("expected override base url")
	}
	if cfg.RedisAddr != "redis:6379" {
		t.Fatalf("expected override redis addr")
	}
	if cfg.ControlPort != ":9000" {
		t.Fatalf("expected override control port")
	}
	if cfg.GPSInterval() != time.Second {
		t.Fatalf("expected 1s interval, got %v", cfg.GPSInterval())
	}
}

func TestWebSocketURL(t *testing.T) {
	cases := []struct {
		base string
		want string
	}{
		{"http://192.168.1.20:5230", "ws://192.168.1.20:5230/ws"},
		{"https://bus.example.com", "wss://bus.example.com/ws"},
		{"https://bus.example.com/", "wss://bus.example.com/ws"},
	}
	for _, tc := range cases {
		cfg := Config{APIBaseURL: tc.base}
		if got := cfg.WebSocketURL(); got != tc.want {
			t.Fatalf("WebSocketURL(%q) = %q, want %q", tc.base, got, tc.want)
		}
	}
}

func TestGPSIntervalFallback(t *testing.T) {
	cfg := Config{GPSIntervalMS: -1}
	if cfg.GPSInterval() != 5*time.Second {
		t.Fatalf("expected fallback interval")
	}
}
