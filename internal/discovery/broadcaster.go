package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/blukai/coopnet/internal/logger"
	"github.com/hashicorp/go-multierror"
	"github.com/phuslu/log"
)

var errNoTargets = errors.New("no broadcast targets")

// Broadcaster periodically announces a host to the local subnet.
type Broadcaster struct {
	cfg         Config
	info        ServerInfo
	playerCount func() int
	logger      *log.Logger

	conn *net.UDPConn // owned by the loop goroutine
	loop loop
}

// NewBroadcaster announces info; its PlayerCount is replaced on every tick
// with whatever playerCount returns.
func NewBroadcaster(cfg Config, info ServerInfo, playerCount func() int, l *log.Logger) *Broadcaster {
	if playerCount == nil {
		playerCount = func() int { return info.PlayerCount }
	}
	return &Broadcaster{
		cfg:         cfg,
		info:        info,
		playerCount: playerCount,
		logger:      logger.OrDiscard(l),
	}
}

// Start spawns the broadcast loop. Calling it twice is a no-op.
func (b *Broadcaster) Start() {
	if b.loop.start(b.run) {
		b.logger.Info().
			Str("name", b.info.Name).
			Int("reliable_port", b.info.ReliablePort).
			Int("unreliable_port", b.info.UnreliablePort).
			Msg("started broadcasting")
	}
}

func (b *Broadcaster) Stop() {
	if !b.loop.stop(b.cfg.JoinTimeout) {
		b.logger.Warn().Msg("broadcast loop did not stop in time")
	}
}

func (b *Broadcaster) run(ctx context.Context) {
	defer func() {
		if b.conn != nil {
			b.conn.Close()
			b.conn = nil
		}
	}()

	ticker := time.NewTicker(b.cfg.BroadcastInterval)
	defer ticker.Stop()

	for {
		if err := b.broadcast(); err != nil {
			b.logger.Warn().Msgf("could not broadcast: %v", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (b *Broadcaster) broadcast() error {
	info := b.info
	info.PlayerCount = b.playerCount()

	data, err := info.MarshalText()
	if err != nil {
		return err
	}

	if b.conn == nil {
		// go enables SO_BROADCAST on udp sockets by default.
		conn, err := net.ListenUDP("udp4", nil)
		if err != nil {
			return fmt.Errorf("could not open udp socket: %w", err)
		}
		b.conn = conn
	}

	targets, err := b.targets()
	if err != nil {
		return err
	}

	var errs error
	for _, target := range targets {
		if _, err := b.conn.WriteToUDP(data, target); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("could not send to %s: %w", target, err))
		}
	}

	b.logger.Trace().
		Int("targets", len(targets)).
		Int("players", info.PlayerCount).
		Msg("broadcast")

	return errs
}

func (b *Broadcaster) targets() ([]*net.UDPAddr, error) {
	if len(b.cfg.Targets) == 0 {
		return broadcastAddrs(b.cfg.Port)
	}

	var errs error
	targets := make([]*net.UDPAddr, 0, len(b.cfg.Targets))
	for _, target := range b.cfg.Targets {
		addr, err := net.ResolveUDPAddr("udp4", target)
		if err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		targets = append(targets, addr)
	}
	if len(targets) == 0 {
		return nil, multierror.Append(errs, errNoTargets)
	}
	return targets, nil
}

// broadcastAddrs returns the directed broadcast address of every ipv4
// network on an up, non-loopback interface.
func broadcastAddrs(port int) ([]*net.UDPAddr, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("could not list interfaces: %w", err)
	}

	var addrs []*net.UDPAddr
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}

		ifaceAddrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, ifaceAddr := range ifaceAddrs {
			ipNet, ok := ifaceAddr.(*net.IPNet)
			if !ok {
				continue
			}
			if ip := directedBroadcast(ipNet); ip != nil {
				addrs = append(addrs, &net.UDPAddr{IP: ip, Port: port})
			}
		}
	}

	if len(addrs) == 0 {
		return nil, errNoTargets
	}
	return addrs, nil
}

func directedBroadcast(ipNet *net.IPNet) net.IP {
	ip := ipNet.IP.To4()
	if ip == nil {
		return nil
	}
	mask := ipNet.Mask
	if len(mask) == net.IPv6len {
		mask = mask[12:]
	}
	if len(mask) != net.IPv4len {
		return nil
	}

	broadcast := make(net.IP, net.IPv4len)
	for i := range broadcast {
		broadcast[i] = ip[i] | ^mask[i]
	}
	return broadcast
}
