package client

import (
	"time"

	"github.com/dkeye/Huddle/internal/domain"
)

type Config struct {
	ServerURL   string
	RoomID      domain.RoomID
	DisplayName string
	AvatarURL   string
	Token       string

	ConnectTimeout    time.Duration
	ReconnectAttempts int
	ReconnectBackoff  time.Duration
	KeepAlive         time.Duration
	LivenessTimeout   time.Duration
	RecreateDelay     time.Duration

	DisableAudio bool
	DisableVideo bool
}

func DefaultConfig() Config {
	return Config{
		ServerURL:         "ws://localhost:8080/api/ws/signal",
		DisplayName:       domain.DefaultUsername,
		ConnectTimeout:    10 * time.Second,
		ReconnectAttempts: 3,
		ReconnectBackoff:  time.Second,
		KeepAlive:         20 * time.Second,
		LivenessTimeout:   60 * time.Second,
		RecreateDelay:     time.Second,
	}
}

// withDefaults fills zero durations and counts from DefaultConfig.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = def.ConnectTimeout
	}
	if c.ReconnectAttempts <= 0 {
		c.ReconnectAttempts = def.ReconnectAttempts
	}
	if c.ReconnectBackoff <= 0 {
		c.ReconnectBackoff = def.ReconnectBackoff
	}
	if c.KeepAlive <= 0 {
		c.KeepAlive = def.KeepAlive
	}
	if c.LivenessTimeout <= 0 {
		c.LivenessTimeout = def.LivenessTimeout
	}
	if c.RecreateDelay <= 0 {
		c.RecreateDelay = def.RecreateDelay
	}
	return c
}
