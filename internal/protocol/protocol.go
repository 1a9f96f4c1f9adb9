package protocol

import (
	"encoding"
	"errors"
	"fmt"

	"github.com/blukai/coopnet/internal/byteorder"
	"github.com/blukai/coopnet/internal/debug"
)

const (
	HeaderSize     = 4       // uint16 (2) + uint16 (2) = 4
	MaxMessageSize = 4 << 10 // 4 * 1024 = 4096 bytes, fits a single udp datagram on any sane lan
	MaxBodySize    = MaxMessageSize - HeaderSize
)

var (
	ErrShortMessage = errors.New("message shorter than header")
	ErrUnknownKind  = errors.New("unknown message kind")
	ErrTooLarge     = errors.New("message too large")
)

type Kind uint16

const (
	_ Kind = iota
	KindPlayerJoin
	KindPlayerDisconnect
	KindPlayerPositionUpdate
	KindChatMessage
	KindHostMigration
	KindGameStart
	KindGameAction
	KindSpellCast
	KindSpellUpgrade
	KindVoicePacket

	KindLobbyJoinRequest
	KindLobbyJoinResponse
	KindLobbyRosterUpdate

	KindMax
)

var kindNames = [...]string{
	KindPlayerJoin:           "PlayerJoin",
	KindPlayerDisconnect:     "PlayerDisconnect",
	KindPlayerPositionUpdate: "PlayerPositionUpdate",
	KindChatMessage:          "ChatMessage",
	KindHostMigration:        "HostMigration",
	KindGameStart:            "GameStart",
	KindGameAction:           "GameAction",
	KindSpellCast:            "SpellCast",
	KindSpellUpgrade:         "SpellUpgrade",
	KindVoicePacket:          "VoicePacket",
	KindLobbyJoinRequest:     "LobbyJoinRequest",
	KindLobbyJoinResponse:    "LobbyJoinResponse",
	KindLobbyRosterUpdate:    "LobbyRosterUpdate",
}

func (k Kind) String() string {
	if k > 0 && k < KindMax {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", uint16(k))
}

type Channel uint8

const (
	Reliable Channel = iota
	Unreliable
)

func (c Channel) String() string {
	if c == Unreliable {
		return "unreliable"
	}
	return "reliable"
}

// Message is the closed set of payloads exchanged by peers. The unexported
// methods keep implementations inside this package.
type Message interface {
	Kind() Kind
	Channel() Channel

	encodeBody(e *encoder)
	decodeBody(d *decoder)
}

// ReliableMessage and UnreliableMessage let senders require the channel a
// message must travel on at compile time.
type ReliableMessage interface {
	Message
	reliable()
}

type UnreliableMessage interface {
	Message
	unreliable()
}

type reliableChannel struct{}

func (reliableChannel) Channel() Channel { return Reliable }
func (reliableChannel) reliable()        {}

type unreliableChannel struct{}

func (unreliableChannel) Channel() Channel { return Unreliable }
func (unreliableChannel) unreliable()      {}

type Header struct {
	Kind Kind
	Size uint16
}

var (
	_ encoding.BinaryMarshaler   = (*Header)(nil)
	_ encoding.BinaryUnmarshaler = (*Header)(nil)
)

func (h *Header) MarshalBinary() ([]byte, error) {
	data := make([]byte, 0, HeaderSize)
	data = byteorder.AppendHtons(data, uint16(h.Kind))
	data = byteorder.AppendHtons(data, h.Size)
	debug.Assert(len(data) == HeaderSize)
	return data, nil
}

func (h *Header) UnmarshalBinary(data []byte) error {
	if len(data) < HeaderSize {
		return ErrShortMessage
	}
	h.Kind = Kind(byteorder.Ntohs(data[0:2]))
	h.Size = byteorder.Ntohs(data[2:4])
	return nil
}

// Encode serializes m with its header.
func Encode(m Message) ([]byte, error) {
	debug.Assert(m != nil)

	e := &encoder{buf: make([]byte, HeaderSize, 64)}
	m.encodeBody(e)

	size := len(e.buf) - HeaderSize
	if size > MaxBodySize {
		return nil, fmt.Errorf("%w: %s body is %d bytes (max %d)", ErrTooLarge, m.Kind(), size, MaxBodySize)
	}

	header := Header{Kind: m.Kind(), Size: uint16(size)}
	headerBytes, err := header.MarshalBinary()
	debug.Assert(err == nil)
	copy(e.buf, headerBytes)

	return e.buf, nil
}

// Decode parses a single message produced by Encode. Trailing bytes past
// the declared size are rejected.
func Decode(data []byte) (Message, error) {
	header := Header{}
	if err := header.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	if int(header.Size) != len(data)-HeaderSize {
		return nil, fmt.Errorf("invalid body size (got %d; header says %d)", len(data)-HeaderSize, header.Size)
	}

	m := newMessage(header.Kind)
	if m == nil {
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, uint16(header.Kind))
	}

	d := &decoder{data: data[HeaderSize:]}
	m.decodeBody(d)
	if err := d.finish(); err != nil {
		return nil, fmt.Errorf("could not decode %s: %w", header.Kind, err)
	}

	return m, nil
}

func newMessage(kind Kind) Message {
	switch kind {
	case KindPlayerJoin:
		return &PlayerJoin{}
	case KindPlayerDisconnect:
		return &PlayerDisconnect{}
	case KindPlayerPositionUpdate:
		return &PlayerPositionUpdate{}
	case KindChatMessage:
		return &ChatMessage{}
	case KindHostMigration:
		return &HostMigration{}
	case KindGameStart:
		return &GameStart{}
	case KindGameAction:
		return &GameAction{}
	case KindSpellCast:
		return &SpellCast{}
	case KindSpellUpgrade:
		return &SpellUpgrade{}
	case KindVoicePacket:
		return &VoicePacket{}
	case KindLobbyJoinRequest:
		return &LobbyJoinRequest{}
	case KindLobbyJoinResponse:
		return &LobbyJoinResponse{}
	case KindLobbyRosterUpdate:
		return &LobbyRosterUpdate{}
	}
	return nil
}
