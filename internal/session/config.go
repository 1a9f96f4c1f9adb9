package session

import "github.com/blukai/coopnet/internal/transport"

type Config struct {
	// ReliableAddr and UnreliableAddr are where a host binds; ":0" picks a
	// free port.
	ReliableAddr   string           `envconfig:"RELIABLE_ADDR" default:":54555"`
	UnreliableAddr string           `envconfig:"UNRELIABLE_ADDR" default:":54556"`
	Transport      transport.Config `envconfig:"TRANSPORT"`
}

func DefaultConfig() Config {
	return Config{
		ReliableAddr:   ":54555",
		UnreliableAddr: ":54556",
		Transport:      transport.DefaultConfig(),
	}
}
