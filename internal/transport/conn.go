package transport

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/blukai/coopnet/internal/protocol"
)

// Conn is the host side of one peer connection.
type Conn struct {
	id     ConnID
	server *Server
	tcp    net.Conn

	mu      sync.Mutex
	udpAddr *net.UDPAddr
	closed  bool

	// owned by the dispatch goroutine
	connected    bool
	disconnected bool
}

func (c *Conn) ID() ConnID {
	return c.id
}

func (c *Conn) RemoteAddr() net.Addr {
	return c.tcp.RemoteAddr()
}

func (c *Conn) String() string {
	return fmt.Sprintf("conn#%d(%s)", c.id, c.tcp.RemoteAddr())
}

func (c *Conn) UDPAddr() *net.UDPAddr {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.udpAddr
}

func (c *Conn) SendReliable(m protocol.ReliableMessage) error {
	data, err := protocol.Encode(m)
	if err != nil {
		return err
	}
	return c.writeFrame(data)
}

func (c *Conn) SendUnreliable(m protocol.UnreliableMessage) error {
	data, err := protocol.Encode(m)
	if err != nil {
		return err
	}
	return c.writeDatagram(data)
}

func (c *Conn) writeFrame(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}

	_ = c.tcp.SetWriteDeadline(time.Now().Add(c.server.cfg.WriteTimeout))
	if err := writeFrame(c.tcp, payload); err != nil {
		// a failed reliable write leaves the stream in an unknown state;
		// closing makes the reader report the departure.
		c.closeLocked()
		return fmt.Errorf("could not write frame to %s: %w", c, err)
	}
	return nil
}

func (c *Conn) writeDatagram(payload []byte) error {
	c.mu.Lock()
	addr, closed := c.udpAddr, c.closed
	c.mu.Unlock()

	if closed {
		return ErrClosed
	}
	if addr == nil || c.server.udp == nil {
		return ErrNoUnreliable
	}

	_, err := c.server.udp.WriteToUDP(makeDatagram(c.id, payload), addr)
	return err
}

// Close drops the connection. The departure is reported through the
// handler's Disconnected like any other loss.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeLocked()
}

func (c *Conn) closeLocked() error {
	if c.closed {
		return nil
	}
	c.closed = true
	return c.tcp.Close()
}
