package transport

import (
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/blukai/coopnet/internal/byteorder"
	"github.com/blukai/coopnet/internal/protocol"
)

// reliable frames are a uint16 length followed by the payload. an empty
// frame is a keepalive.
//
// datagrams are a uint32 connection id followed by the payload. an empty
// payload registers (client -> server) or acknowledges the registration
// (server -> client).

const (
	frameHeaderSize    = 2
	datagramHeaderSize = 4
	welcomeSize        = 4
)

var (
	ErrClosed        = errors.New("connection closed")
	ErrNoUnreliable  = errors.New("unreliable channel not available")
	errFrameTooLarge = errors.New("frame too large")
)

type ConnID uint32

func writeFrame(w io.Writer, payload []byte) error {
	if len(payload) > protocol.MaxMessageSize {
		return fmt.Errorf("%w: %d bytes", errFrameTooLarge, len(payload))
	}
	buf := make([]byte, 0, frameHeaderSize+len(payload))
	buf = byteorder.AppendHtons(buf, uint16(len(payload)))
	buf = append(buf, payload...)
	_, err := w.Write(buf)
	return err
}

// readFrame reads one frame into buf and returns the payload slice of buf.
func readFrame(r io.Reader, buf []byte) ([]byte, error) {
	if _, err := io.ReadFull(r, buf[:frameHeaderSize]); err != nil {
		return nil, err
	}
	size := int(byteorder.Ntohs(buf[:frameHeaderSize]))
	if size > protocol.MaxMessageSize || size > len(buf) {
		return nil, fmt.Errorf("%w: %d bytes", errFrameTooLarge, size)
	}
	if _, err := io.ReadFull(r, buf[:size]); err != nil {
		return nil, err
	}
	return buf[:size], nil
}

func makeDatagram(id ConnID, payload []byte) []byte {
	buf := make([]byte, 0, datagramHeaderSize+len(payload))
	buf = byteorder.AppendHtonl(buf, uint32(id))
	return append(buf, payload...)
}

func parseDatagram(data []byte) (ConnID, []byte, bool) {
	if len(data) < datagramHeaderSize {
		return 0, nil, false
	}
	return ConnID(byteorder.Ntohl(data[:datagramHeaderSize])), data[datagramHeaderSize:], true
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// decode parses payload and rejects messages that arrived on the wrong
// channel.
func decode(payload []byte, channel protocol.Channel) (protocol.Message, error) {
	msg, err := protocol.Decode(payload)
	if err != nil {
		return nil, err
	}
	if msg.Channel() != channel {
		return nil, fmt.Errorf("%s must travel on the %s channel, got it on %s", msg.Kind(), msg.Channel(), channel)
	}
	return msg, nil
}
