package transport

import "time"

type Config struct {
	// KeepAliveInterval is how often an empty reliable frame is written so
	// that the remote read deadline keeps getting pushed forward.
	KeepAliveInterval time.Duration `envconfig:"KEEPALIVE_INTERVAL" default:"4s"`
	// Timeout is how long a reliable connection may stay silent before it
	// is considered gone.
	Timeout            time.Duration `envconfig:"TIMEOUT" default:"12s"`
	WriteTimeout       time.Duration `envconfig:"WRITE_TIMEOUT" default:"2s"`
	DialTimeout        time.Duration `envconfig:"DIAL_TIMEOUT" default:"5s"`
	UDPRegisterTimeout time.Duration `envconfig:"UDP_REGISTER_TIMEOUT" default:"2s"`
}

func DefaultConfig() Config {
	return Config{
		KeepAliveInterval:  4 * time.Second,
		Timeout:            12 * time.Second,
		WriteTimeout:       2 * time.Second,
		DialTimeout:        5 * time.Second,
		UDPRegisterTimeout: 2 * time.Second,
	}
}
