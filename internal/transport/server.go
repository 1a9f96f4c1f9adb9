package transport

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/blukai/coopnet/internal/byteorder"
	"github.com/blukai/coopnet/internal/debug"
	"github.com/blukai/coopnet/internal/logger"
	"github.com/blukai/coopnet/internal/protocol"
	"github.com/cespare/xxhash/v2"
	"github.com/hashicorp/go-multierror"
	"github.com/phuslu/log"
)

// Handler receives connection events. All methods are invoked from a single
// goroutine, so implementations may mutate their own state without locks.
type Handler interface {
	Connected(conn *Conn)
	Disconnected(conn *Conn)
	Received(conn *Conn, msg protocol.Message)
}

type addrKey uint64

func makeAddrKey(addr *net.UDPAddr) addrKey {
	return addrKey(xxhash.Sum64String(addr.String()))
}

type eventKind uint8

const (
	eventConnected eventKind = iota
	eventReceived
	eventDisconnected
)

type event struct {
	kind eventKind
	conn *Conn
	msg  protocol.Message
}

// Server accepts reliable (tcp) connections and, optionally, unreliable
// (udp) datagrams associated with them.
type Server struct {
	cfg     Config
	handler Handler
	logger  *log.Logger

	tcp net.Listener
	udp *net.UDPConn

	mu       sync.RWMutex
	conns    map[ConnID]*Conn
	udpConns map[addrKey]*Conn
	nextID   ConnID

	events chan event
}

// NewServer binds both sockets. unreliableAddress may be empty to run
// reliable-only.
func NewServer(
	cfg Config,
	reliableAddress, unreliableAddress string,
	handler Handler,
	l *log.Logger,
) (*Server, error) {
	debug.Assert(handler != nil)

	tcp, err := net.Listen("tcp", reliableAddress)
	if err != nil {
		return nil, fmt.Errorf("could not listen tcp: %w", err)
	}

	var udp *net.UDPConn
	if unreliableAddress != "" {
		addr, err := net.ResolveUDPAddr("udp", unreliableAddress)
		if err != nil {
			tcp.Close()
			return nil, fmt.Errorf("could not resolve udp addr: %w", err)
		}
		udp, err = net.ListenUDP("udp", addr)
		if err != nil {
			tcp.Close()
			return nil, fmt.Errorf("could not listen udp: %w", err)
		}
	}

	s := &Server{
		cfg:     cfg,
		handler: handler,
		logger:  logger.OrDiscard(l),

		tcp: tcp,
		udp: udp,

		conns:    make(map[ConnID]*Conn),
		udpConns: make(map[addrKey]*Conn),

		events: make(chan event, 256),
	}
	return s, nil
}

// ReliableAddr can be useful to retrieve the bound port when the server was
// constructed with ":0".
func (s *Server) ReliableAddr() *net.TCPAddr {
	return s.tcp.Addr().(*net.TCPAddr)
}

// UnreliableAddr is nil for reliable-only servers.
func (s *Server) UnreliableAddr() *net.UDPAddr {
	if s.udp == nil {
		return nil
	}
	return s.udp.LocalAddr().(*net.UDPAddr)
}

// Run serves until ctx is done, then closes every connection and waits for
// the last Disconnected to be dispatched.
func (s *Server) Run(ctx context.Context) error {
	readers := &sync.WaitGroup{}
	loops := &sync.WaitGroup{}

	loops.Add(1)
	go func() {
		defer loops.Done()
		s.runAccept(ctx, readers)
	}()

	if s.udp != nil {
		loops.Add(1)
		go func() {
			defer loops.Done()
			s.runRecvUDP(ctx)
		}()
	}

	loops.Add(1)
	go func() {
		defer loops.Done()
		s.runKeepAlive(ctx)
	}()

	dispatchDone := make(chan struct{})
	go func() {
		defer close(dispatchDone)
		s.runDispatch()
	}()

	<-ctx.Done()

	var errs error
	if err := s.tcp.Close(); err != nil {
		errs = multierror.Append(errs, err)
	}
	if s.udp != nil {
		if err := s.udp.Close(); err != nil {
			errs = multierror.Append(errs, err)
		}
	}

	// accept has returned once loops are done, so no connection can slip
	// past this close.
	loops.Wait()
	for _, conn := range s.Conns() {
		conn.Close()
	}
	readers.Wait()
	close(s.events)
	<-dispatchDone

	return errs
}

func (s *Server) runAccept(ctx context.Context, readers *sync.WaitGroup) {
	for {
		tcp, err := s.tcp.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				s.logger.Error().Msgf("could not accept: %v", err)
				continue
			}
		}

		s.mu.Lock()
		s.nextID++
		conn := &Conn{id: s.nextID, server: s, tcp: tcp}
		s.conns[conn.id] = conn
		s.mu.Unlock()

		s.logger.Debug().
			Stringer("conn", conn).
			Msg("accepted")

		if err := conn.writeFrame(byteorder.Htonl(uint32(conn.id))); err != nil {
			s.logger.Error().Msgf("could not send welcome: %v", err)
		}

		// without an unreliable channel the connection is complete right
		// away; otherwise it completes on udp registration.
		if s.udp == nil {
			s.events <- event{kind: eventConnected, conn: conn}
		}

		readers.Add(1)
		go func() {
			defer readers.Done()
			s.runRecvTCP(conn)
		}()
	}
}

func (s *Server) runRecvTCP(conn *Conn) {
	buf := make([]byte, protocol.MaxMessageSize)

	defer func() {
		conn.Close()

		s.mu.Lock()
		delete(s.conns, conn.id)
		if addr := conn.UDPAddr(); addr != nil {
			delete(s.udpConns, makeAddrKey(addr))
		}
		s.mu.Unlock()

		s.events <- event{kind: eventDisconnected, conn: conn}
	}()

	for {
		_ = conn.tcp.SetReadDeadline(time.Now().Add(s.cfg.Timeout))

		payload, err := readFrame(conn.tcp, buf)
		if err != nil {
			// timeouts and clean closes are the same thing up here.
			s.logger.Debug().
				Stringer("conn", conn).
				Msgf("reliable read ended: %v", err)
			return
		}
		if len(payload) == 0 {
			continue
		}

		msg, err := decode(payload, protocol.Reliable)
		if err != nil {
			s.logger.Error().
				Stringer("conn", conn).
				Str("bytes", fmt.Sprintf("%v", payload)).
				Msgf("could not decode message: %v", err)
			continue
		}

		s.events <- event{kind: eventReceived, conn: conn, msg: msg}
	}
}

func (s *Server) runRecvUDP(ctx context.Context) {
	buf := make([]byte, datagramHeaderSize+protocol.MaxMessageSize)

	for {
		n, addr, err := s.udp.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				s.logger.Error().Msgf("could not read from udp: %v", err)
				continue
			}
		}

		id, payload, ok := parseDatagram(buf[:n])
		if !ok {
			s.logger.Error().
				Msgf("invalid datagram size (got %d; want >= %d)", n, datagramHeaderSize)
			continue
		}

		if len(payload) == 0 {
			s.registerUDP(id, addr)
			continue
		}

		s.mu.RLock()
		conn, ok := s.udpConns[makeAddrKey(addr)]
		s.mu.RUnlock()
		if !ok || conn.id != id {
			s.logger.Debug().
				Any("addr", addr).
				Msg("datagram from unregistered address")
			continue
		}

		msg, err := decode(payload, protocol.Unreliable)
		if err != nil {
			s.logger.Error().
				Stringer("conn", conn).
				Msgf("could not decode datagram: %v", err)
			continue
		}

		s.events <- event{kind: eventReceived, conn: conn, msg: msg}
	}
}

func (s *Server) registerUDP(id ConnID, addr *net.UDPAddr) {
	s.mu.Lock()
	conn, ok := s.conns[id]
	first := false
	if ok {
		conn.mu.Lock()
		if conn.udpAddr == nil && !conn.closed {
			conn.udpAddr = addr
			s.udpConns[makeAddrKey(addr)] = conn
			first = true
		}
		conn.mu.Unlock()
	}
	s.mu.Unlock()

	if !ok {
		s.logger.Debug().Msgf("udp registration for unknown conn#%d", id)
		return
	}

	if first {
		s.logger.Debug().
			Stringer("conn", conn).
			Any("udp", addr).
			Msg("registered udp")
		s.events <- event{kind: eventConnected, conn: conn}
	}

	// ack every attempt; the client retries until one gets through.
	if _, err := s.udp.WriteToUDP(makeDatagram(id, nil), addr); err != nil {
		s.logger.Error().Msgf("could not ack udp registration: %v", err)
	}
}

func (s *Server) runKeepAlive(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.KeepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, conn := range s.Conns() {
				if err := conn.writeFrame(nil); err != nil {
					s.logger.Debug().Msgf("keepalive failed: %v", err)
				}
			}
		}
	}
}

func (s *Server) runDispatch() {
	for ev := range s.events {
		conn := ev.conn
		switch ev.kind {
		case eventConnected:
			if conn.disconnected {
				continue
			}
			conn.connected = true
			s.handler.Connected(conn)
		case eventReceived:
			if !conn.connected || conn.disconnected {
				continue
			}
			s.handler.Received(conn, ev.msg)
		case eventDisconnected:
			wasConnected := conn.connected
			conn.disconnected = true
			if wasConnected {
				s.handler.Disconnected(conn)
			}
		default:
			debug.Assert(false, fmt.Sprintf("unhandled event: %d", ev.kind))
		}
	}
}

// Conns returns a snapshot of accepted connections, including ones still
// waiting for udp registration.
func (s *Server) Conns() []*Conn {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conns := make([]*Conn, 0, len(s.conns))
	for _, conn := range s.conns {
		conns = append(conns, conn)
	}
	return conns
}

// SendReliableToAll sends m to every conn except the excluded one (nil
// excludes nobody). The message is encoded once.
func SendReliableToAll(conns []*Conn, m protocol.ReliableMessage, except *Conn) error {
	data, err := protocol.Encode(m)
	if err != nil {
		return err
	}

	var errs error
	for _, conn := range conns {
		if conn == except {
			continue
		}
		if err := conn.writeFrame(data); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	return errs
}

// SendUnreliableToAll skips conns that have no unreliable channel.
func SendUnreliableToAll(conns []*Conn, m protocol.UnreliableMessage, except *Conn) error {
	data, err := protocol.Encode(m)
	if err != nil {
		return err
	}

	var errs error
	for _, conn := range conns {
		if conn == except || conn.UDPAddr() == nil {
			continue
		}
		if err := conn.writeDatagram(data); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("could not send datagram to %s: %w", conn, err))
		}
	}
	return errs
}
