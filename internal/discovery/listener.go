package discovery

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"net"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/blukai/coopnet/internal/logger"
	"github.com/cespare/xxhash/v2"
	"github.com/phuslu/log"
)

// Server is a host seen on the network. Records are best-effort: a host
// that dies silently simply ages out.
type Server struct {
	Addr           string
	ReliablePort   int
	UnreliablePort int
	Name           string
	HostUsername   string
	PlayerCount    int
	LastSeen       time.Time
}

func (s Server) ReliableAddress() string {
	return net.JoinHostPort(s.Addr, strconv.Itoa(s.ReliablePort))
}

func (s Server) UnreliableAddress() string {
	return net.JoinHostPort(s.Addr, strconv.Itoa(s.UnreliablePort))
}

type serverKey uint64

// servers are identified by address and reliable port; a machine may run
// more than one host.
func makeServerKey(addr string, reliablePort int) serverKey {
	return serverKey(xxhash.Sum64String(net.JoinHostPort(addr, strconv.Itoa(reliablePort))))
}

type subscription struct {
	id int
	fn func(Server)
}

// Listener collects host announcements.
type Listener struct {
	cfg    Config
	logger *log.Logger
	now    func() time.Time

	conn *net.UDPConn
	loop loop

	mu      sync.RWMutex
	servers map[serverKey]*Server

	subsMu  sync.Mutex
	subs    []subscription
	nextSub int
}

func NewListener(cfg Config, l *log.Logger) *Listener {
	return &Listener{
		cfg:     cfg,
		logger:  logger.OrDiscard(l),
		now:     time.Now,
		servers: make(map[serverKey]*Server),
	}
}

// Start binds the discovery port and spawns the receive loop.
func (l *Listener) Start() error {
	if l.loop.running() {
		return nil
	}

	lc := reuseAddrListenConfig()
	pc, err := lc.ListenPacket(context.Background(), "udp4", l.cfg.listenAddr())
	if err != nil {
		return fmt.Errorf("could not listen on discovery port: %w", err)
	}
	conn := pc.(*net.UDPConn)
	l.conn = conn

	l.loop.start(func(ctx context.Context) {
		defer conn.Close()
		l.run(ctx, conn)
	})

	l.logger.Info().
		Str("addr", conn.LocalAddr().String()).
		Msg("started listening for servers")
	return nil
}

// Addr can be useful to retrieve the bound port when ListenAddr was ":0".
func (l *Listener) Addr() *net.UDPAddr {
	if l.conn == nil {
		return nil
	}
	return l.conn.LocalAddr().(*net.UDPAddr)
}

// Stop ends the receive loop and forgets every record; a stopped listener
// has stale knowledge by definition.
func (l *Listener) Stop() {
	if !l.loop.stop(l.cfg.JoinTimeout) {
		l.logger.Warn().Msg("discovery listener did not stop in time")
	}

	l.mu.Lock()
	clear(l.servers)
	l.mu.Unlock()
}

func (l *Listener) run(ctx context.Context, conn *net.UDPConn) {
	// one extra byte tells an oversized datagram from one that fit exactly.
	buf := make([]byte, maxServerInfoSize+1)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		_ = conn.SetReadDeadline(time.Now().Add(l.cfg.ReadTimeout))
		n, addr, err := conn.ReadFromUDP(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			l.logger.Error().Msgf("could not read from udp: %v", err)
			// retry on the next tick rather than spin
			select {
			case <-ctx.Done():
				return
			case <-time.After(l.cfg.ReadTimeout):
			}
			continue
		}

		l.handleDatagram(addr, buf[:n])
	}
}

func (l *Listener) handleDatagram(addr *net.UDPAddr, data []byte) {
	info := ServerInfo{}
	if err := info.UnmarshalText(data); err != nil {
		l.logger.Warn().
			Any("addr", addr).
			Str("bytes", fmt.Sprintf("%q", data)).
			Msgf("skipping discovery payload: %v", err)
		return
	}

	ip := addr.IP.String()
	key := makeServerKey(ip, info.ReliablePort)
	now := l.now()

	l.mu.Lock()
	existing, ok := l.servers[key]
	if ok {
		existing.PlayerCount = info.PlayerCount
		existing.LastSeen = now
	} else {
		existing = &Server{
			Addr:           ip,
			ReliablePort:   info.ReliablePort,
			UnreliablePort: info.UnreliablePort,
			Name:           info.Name,
			HostUsername:   info.HostUsername,
			PlayerCount:    info.PlayerCount,
			LastSeen:       now,
		}
		l.servers[key] = existing
	}
	discovered := *existing
	l.mu.Unlock()

	if !ok {
		l.logger.Info().
			Str("name", discovered.Name).
			Str("addr", discovered.ReliableAddress()).
			Msg("server discovered")
		l.notify(discovered)
	}
}

// Servers returns the records seen within StaleAfter. Aging is evaluated
// here rather than by a timer.
func (l *Listener) Servers() []Server {
	cutoff := l.now().Add(-l.cfg.StaleAfter)

	l.mu.RLock()
	servers := make([]Server, 0, len(l.servers))
	for _, s := range l.servers {
		if s.LastSeen.Before(cutoff) {
			continue
		}
		servers = append(servers, *s)
	}
	l.mu.RUnlock()

	slices.SortFunc(servers, func(a, b Server) int {
		return cmp.Or(
			cmp.Compare(a.Name, b.Name),
			cmp.Compare(a.Addr, b.Addr),
			cmp.Compare(a.ReliablePort, b.ReliablePort),
		)
	})
	return servers
}

// Subscribe registers fn to be called, in registration order, whenever a
// new server is discovered. fn runs on the listener goroutine.
func (l *Listener) Subscribe(fn func(Server)) (unsubscribe func()) {
	l.subsMu.Lock()
	defer l.subsMu.Unlock()

	l.nextSub++
	id := l.nextSub
	l.subs = append(l.subs, subscription{id: id, fn: fn})

	return func() {
		l.subsMu.Lock()
		defer l.subsMu.Unlock()
		l.subs = slices.DeleteFunc(l.subs, func(s subscription) bool { return s.id == id })
	}
}

func (l *Listener) notify(s Server) {
	l.subsMu.Lock()
	subs := slices.Clone(l.subs)
	l.subsMu.Unlock()

	for _, sub := range subs {
		sub.fn(s)
	}
}
