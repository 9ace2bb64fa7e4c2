package poller

import (
	"time"

	"github.com/plcsnmp/plcsnmp/internal/channels"
)

// Config holds the timing and event settings shared by every loop of a session
type Config struct {
	FetchTimeout time.Duration
	Cooldown     time.Duration

	// Events receives one TickEvent per tick; nil disables publishing
	Events *channels.EventChannels
}

func (c Config) withDefaults() Config {
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = DefaultFetchTimeout
	}
	if c.Cooldown <= 0 {
		c.Cooldown = DefaultCooldown
	}
	return c
}
