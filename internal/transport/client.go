package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/blukai/coopnet/internal/byteorder"
	"github.com/blukai/coopnet/internal/debug"
	"github.com/blukai/coopnet/internal/logger"
	"github.com/blukai/coopnet/internal/protocol"
	"github.com/hashicorp/go-multierror"
	"github.com/phuslu/log"
)

var ErrUDPRegistration = errors.New("udp registration timed out")

// ClientHandler receives events of a dialed connection. Methods are invoked
// from a single goroutine; Disconnected is the last call and happens
// exactly once, whatever the cause.
type ClientHandler interface {
	Received(msg protocol.Message)
	Disconnected()
}

type Client struct {
	cfg     Config
	handler ClientHandler
	logger  *log.Logger

	id  ConnID
	tcp net.Conn
	udp *net.UDPConn

	writeMu sync.Mutex
	closed  bool

	events chan protocol.Message
}

// Dial connects the reliable channel, waits for the server's welcome and,
// when unreliableAddress is set, registers the unreliable channel. Any
// failure is returned here; nothing is reported through the handler until
// Run is called.
func Dial(
	cfg Config,
	reliableAddress, unreliableAddress string,
	handler ClientHandler,
	l *log.Logger,
) (*Client, error) {
	debug.Assert(handler != nil)

	tcp, err := net.DialTimeout("tcp", reliableAddress, cfg.DialTimeout)
	if err != nil {
		return nil, fmt.Errorf("could not dial tcp: %w", err)
	}

	buf := make([]byte, protocol.MaxMessageSize)
	_ = tcp.SetReadDeadline(time.Now().Add(cfg.DialTimeout))
	welcome, err := readFrame(tcp, buf)
	if err != nil || len(welcome) != welcomeSize {
		tcp.Close()
		return nil, fmt.Errorf("could not read welcome (%d bytes): %v", len(welcome), err)
	}

	c := &Client{
		cfg:     cfg,
		handler: handler,
		logger:  logger.OrDiscard(l),

		id:  ConnID(byteorder.Ntohl(welcome)),
		tcp: tcp,

		events: make(chan protocol.Message, 256),
	}

	if unreliableAddress != "" {
		if err := c.registerUDP(unreliableAddress); err != nil {
			tcp.Close()
			return nil, err
		}
	}

	c.logger.Debug().
		Uint32("id", uint32(c.id)).
		Str("reliable", reliableAddress).
		Str("unreliable", unreliableAddress).
		Msg("dialed")

	return c, nil
}

func (c *Client) registerUDP(address string) error {
	addr, err := net.ResolveUDPAddr("udp", address)
	if err != nil {
		return fmt.Errorf("could not resolve udp addr: %w", err)
	}
	udp, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return fmt.Errorf("could not dial udp: %w", err)
	}

	registration := makeDatagram(c.id, nil)
	buf := make([]byte, datagramHeaderSize+protocol.MaxMessageSize)
	deadline := time.Now().Add(c.cfg.UDPRegisterTimeout)

	for time.Now().Before(deadline) {
		if _, err := udp.Write(registration); err != nil {
			udp.Close()
			return fmt.Errorf("could not write udp registration: %w", err)
		}

		_ = udp.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
		n, err := udp.Read(buf)
		if err != nil {
			if isTimeout(err) {
				continue
			}
			// icmp port unreachable surfaces here on linux; keep trying
			// until the deadline like any other lost packet.
			c.logger.Debug().Msgf("udp registration read: %v", err)
			time.Sleep(50 * time.Millisecond)
			continue
		}

		id, payload, ok := parseDatagram(buf[:n])
		if ok && id == c.id && len(payload) == 0 {
			// runRecvUDP blocks until the socket is closed.
			if err := udp.SetReadDeadline(time.Time{}); err != nil {
				udp.Close()
				return fmt.Errorf("could not clear udp read deadline: %w", err)
			}
			c.udp = udp
			return nil
		}
	}

	udp.Close()
	return ErrUDPRegistration
}

func (c *Client) ID() ConnID {
	return c.id
}

func (c *Client) LocalAddr() net.Addr {
	return c.tcp.LocalAddr()
}

// Run pumps both channels until ctx is done or the connection drops.
func (c *Client) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	wg := &sync.WaitGroup{}

	wg.Add(1)
	go func() {
		defer wg.Done()
		// losing the reliable channel ends the session.
		defer cancel()
		c.runRecvTCP()
	}()

	if c.udp != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.runRecvUDP(ctx)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		c.runKeepAlive(ctx)
	}()

	dispatchDone := make(chan struct{})
	go func() {
		defer close(dispatchDone)
		for msg := range c.events {
			c.handler.Received(msg)
		}
		c.handler.Disconnected()
	}()

	<-ctx.Done()

	var errs error
	if err := c.Close(); err != nil {
		errs = multierror.Append(errs, err)
	}
	if c.udp != nil {
		if err := c.udp.Close(); err != nil {
			errs = multierror.Append(errs, err)
		}
	}

	wg.Wait()
	close(c.events)
	<-dispatchDone

	return errs
}

func (c *Client) runRecvTCP() {
	buf := make([]byte, protocol.MaxMessageSize)

	for {
		_ = c.tcp.SetReadDeadline(time.Now().Add(c.cfg.Timeout))

		payload, err := readFrame(c.tcp, buf)
		if err != nil {
			c.logger.Debug().Msgf("reliable read ended: %v", err)
			return
		}
		if len(payload) == 0 {
			continue
		}

		msg, err := decode(payload, protocol.Reliable)
		if err != nil {
			c.logger.Error().
				Str("bytes", fmt.Sprintf("%v", payload)).
				Msgf("could not decode message: %v", err)
			continue
		}

		c.events <- msg
	}
}

func (c *Client) runRecvUDP(ctx context.Context) {
	buf := make([]byte, datagramHeaderSize+protocol.MaxMessageSize)

	for {
		n, err := c.udp.Read(buf)
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				if isTimeout(err) {
					// no deadline is set after registration; clear
					// whatever put one there.
					c.logger.Warn().Msgf("unexpected udp read timeout: %v", err)
					_ = c.udp.SetReadDeadline(time.Time{})
					continue
				}
				c.logger.Debug().Msgf("could not read from udp: %v", err)
				// avoid spinning on a socket that keeps erroring
				time.Sleep(10 * time.Millisecond)
				continue
			}
		}

		id, payload, ok := parseDatagram(buf[:n])
		if !ok || id != c.id || len(payload) == 0 {
			continue
		}

		msg, err := decode(payload, protocol.Unreliable)
		if err != nil {
			c.logger.Error().Msgf("could not decode datagram: %v", err)
			continue
		}

		c.events <- msg
	}
}

func (c *Client) runKeepAlive(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.KeepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.writeFrame(nil); err != nil {
				c.logger.Debug().Msgf("keepalive failed: %v", err)
			}
		}
	}
}

func (c *Client) SendReliable(m protocol.ReliableMessage) error {
	data, err := protocol.Encode(m)
	if err != nil {
		return err
	}
	return c.writeFrame(data)
}

func (c *Client) SendUnreliable(m protocol.UnreliableMessage) error {
	if c.udp == nil {
		return ErrNoUnreliable
	}
	data, err := protocol.Encode(m)
	if err != nil {
		return err
	}
	_, err = c.udp.Write(makeDatagram(c.id, data))
	return err
}

func (c *Client) writeFrame(payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.closed {
		return ErrClosed
	}

	_ = c.tcp.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	if err := writeFrame(c.tcp, payload); err != nil {
		c.closeLocked()
		return fmt.Errorf("could not write frame: %w", err)
	}
	return nil
}

// Close drops the reliable channel, which unwinds Run.
func (c *Client) Close() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.closeLocked()
}

func (c *Client) closeLocked() error {
	if c.closed {
		return nil
	}
	c.closed = true
	return c.tcp.Close()
}
