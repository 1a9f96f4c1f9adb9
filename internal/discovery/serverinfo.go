package discovery

import (
	"encoding"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ServerInfo is what a host announces. On the wire it is newline-delimited
// text, one field per line:
//
//	name
//	host username
//	reliable port
//	unreliable port
//	player count
type ServerInfo struct {
	Name           string
	HostUsername   string
	ReliablePort   int
	UnreliablePort int
	PlayerCount    int
}

const serverInfoFields = 5

// MaxNameLength bounds the server name and host username in bytes so an
// announcement always fits the listener's read buffer.
const MaxNameLength = 255

// maxServerInfoSize is the largest text MarshalText produces: two names,
// two ports, a count and five newlines.
const maxServerInfoSize = 2*MaxNameLength + 2*len("65535") + 20 + serverInfoFields

var ErrMalformed = errors.New("malformed server info")

var (
	_ encoding.TextMarshaler   = (*ServerInfo)(nil)
	_ encoding.TextUnmarshaler = (*ServerInfo)(nil)
)

func (si *ServerInfo) MarshalText() ([]byte, error) {
	if strings.ContainsAny(si.Name, "\r\n") || strings.ContainsAny(si.HostUsername, "\r\n") {
		return nil, fmt.Errorf("%w: names must be single-line", ErrMalformed)
	}
	if len(si.Name) > MaxNameLength || len(si.HostUsername) > MaxNameLength {
		return nil, fmt.Errorf("%w: names must be at most %d bytes", ErrMalformed, MaxNameLength)
	}

	b := strings.Builder{}
	for _, field := range []string{
		si.Name,
		si.HostUsername,
		strconv.Itoa(si.ReliablePort),
		strconv.Itoa(si.UnreliablePort),
		strconv.Itoa(si.PlayerCount),
	} {
		b.WriteString(field)
		b.WriteByte('\n')
	}
	return []byte(b.String()), nil
}

func (si *ServerInfo) UnmarshalText(text []byte) error {
	lines := strings.Split(string(text), "\n")
	// the trailing newline leaves an empty last element
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	if len(lines) != serverInfoFields {
		return fmt.Errorf("%w: got %d fields, want %d", ErrMalformed, len(lines), serverInfoFields)
	}

	reliablePort, err := parsePort(lines[2])
	if err != nil {
		return fmt.Errorf("%w: reliable port: %v", ErrMalformed, err)
	}
	unreliablePort, err := parsePort(lines[3])
	if err != nil {
		return fmt.Errorf("%w: unreliable port: %v", ErrMalformed, err)
	}
	playerCount, err := strconv.Atoi(strings.TrimSpace(lines[4]))
	if err != nil || playerCount < 0 {
		return fmt.Errorf("%w: player count %q", ErrMalformed, lines[4])
	}

	*si = ServerInfo{
		Name:           strings.TrimRight(lines[0], "\r"),
		HostUsername:   strings.TrimRight(lines[1], "\r"),
		ReliablePort:   reliablePort,
		UnreliablePort: unreliablePort,
		PlayerCount:    playerCount,
	}
	return nil
}

func parsePort(s string) (int, error) {
	port, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	if port < 1 || port > 65535 {
		return 0, fmt.Errorf("out of range: %d", port)
	}
	return port, nil
}
