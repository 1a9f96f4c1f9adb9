package session

import (
	"fmt"

	"github.com/blukai/coopnet/internal/protocol"
	"github.com/phuslu/log"
)

// StartHosting starts a host and connects the local player to it over
// loopback; the host process is an ordinary member of its own session.
// listeners are subscribed before the join is sent.
func StartHosting(cfg Config, local LocalPlayer, l *log.Logger, listeners ...Listener) (*Host, *Client, error) {
	if local.ID.IsZero() {
		local.ID = protocol.NewPlayerID()
	}

	host, err := NewHost(cfg, local.ID, l)
	if err != nil {
		return nil, nil, fmt.Errorf("could not start host: %w", err)
	}

	client := NewClient(cfg, local, l)
	for _, listener := range listeners {
		client.Subscribe(listener)
	}

	if err := client.Connect(host.LoopbackAddrs()); err != nil {
		host.Close()
		return nil, nil, err
	}

	return host, client, nil
}
