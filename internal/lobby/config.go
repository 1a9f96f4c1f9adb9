package lobby

import (
	"time"

	"github.com/blukai/coopnet/internal/transport"
)

type Config struct {
	// Addr is where a room listens, reliable channel only.
	Addr     string `envconfig:"ADDR" default:":54557"`
	Capacity int    `envconfig:"CAPACITY" default:"4"`
	// Code is generated when empty.
	Code string `envconfig:"CODE"`
	// JoinTimeout bounds how long Join waits for the room's answer.
	JoinTimeout time.Duration    `envconfig:"JOIN_TIMEOUT" default:"5s"`
	Transport   transport.Config `envconfig:"TRANSPORT"`
}

func DefaultConfig() Config {
	return Config{
		Addr:        ":54557",
		Capacity:    4,
		JoinTimeout: 5 * time.Second,
		Transport:   transport.DefaultConfig(),
	}
}
