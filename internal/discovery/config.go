package discovery

import (
	"strconv"
	"time"
)

// DefaultPort is the well-known port every host broadcasts to and every
// listener binds.
const DefaultPort = 54779

type Config struct {
	Port              int           `envconfig:"PORT" default:"54779"`
	BroadcastInterval time.Duration `envconfig:"BROADCAST_INTERVAL" default:"2s"`
	StaleAfter        time.Duration `envconfig:"STALE_AFTER" default:"10s"`
	// ReadTimeout bounds each receive so a stop request is noticed quickly.
	ReadTimeout time.Duration `envconfig:"READ_TIMEOUT" default:"500ms"`
	// JoinTimeout bounds how long Stop waits for a loop to exit.
	JoinTimeout time.Duration `envconfig:"JOIN_TIMEOUT" default:"1s"`
	// Targets, when set, replaces the interface broadcast addresses
	// ("host:port" each). Useful for unicast discovery across subnets.
	Targets []string `envconfig:"TARGETS"`
	// ListenAddr defaults to all interfaces on Port.
	ListenAddr string `envconfig:"LISTEN_ADDR"`
}

func DefaultConfig() Config {
	return Config{
		Port:              DefaultPort,
		BroadcastInterval: 2 * time.Second,
		StaleAfter:        10 * time.Second,
		ReadTimeout:       500 * time.Millisecond,
		JoinTimeout:       time.Second,
	}
}

func (cfg Config) listenAddr() string {
	if cfg.ListenAddr != "" {
		return cfg.ListenAddr
	}
	return ":" + strconv.Itoa(cfg.Port)
}
