package world

import "time"

type Config struct {
	// SendInterval is the shortest gap between two local state updates.
	SendInterval time.Duration `envconfig:"SEND_INTERVAL" default:"50ms"`
	// HeartbeatInterval is the longest gap, sent even when nothing moved.
	HeartbeatInterval time.Duration `envconfig:"HEARTBEAT_INTERVAL" default:"1s"`
}

func DefaultConfig() Config {
	return Config{
		SendInterval:      50 * time.Millisecond,
		HeartbeatInterval: time.Second,
	}
}
