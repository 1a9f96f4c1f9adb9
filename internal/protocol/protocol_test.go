package protocol_test

import (
	"bytes"
	"errors"
	"math"
	"testing"

	"github.com/blukai/coopnet/internal/protocol"
	"github.com/matryer/is"
)

func TestHeaderEncoding(t *testing.T) {
	is := is.New(t)

	original := protocol.Header{
		Kind: protocol.KindChatMessage,
		Size: 42,
	}

	encoded, err := original.MarshalBinary()
	is.NoErr(err)
	is.Equal(len(encoded), protocol.HeaderSize)

	decoded := protocol.Header{}
	err = decoded.UnmarshalBinary(encoded)
	is.NoErr(err)
	is.Equal(original, decoded)

	err = decoded.UnmarshalBinary(encoded[:3])
	is.True(errors.Is(err, protocol.ErrShortMessage))
}

func TestMessageEncoding(t *testing.T) {
	id := protocol.NewPlayerID()

	testCases := []protocol.Message{
		&protocol.PlayerJoin{PlayerID: id, Username: "alice", Color: "teal", X: 12.5, Y: -3},
		&protocol.PlayerDisconnect{PlayerID: id},
		&protocol.PlayerPositionUpdate{
			PlayerID:       id,
			X:              math.MaxFloat32,
			Y:              -0.25,
			Direction:      protocol.DirectionLeft,
			IsMoving:       true,
			Color:          "red",
			FlipX:          true,
			AnimationFrame: -7,
			LegSprite:      "legs_walk_2",
		},
		&protocol.ChatMessage{Username: "bob", Message: "hi there"},
		&protocol.HostMigration{NewHostID: id},
		&protocol.GameStart{Seed: math.MinInt32, Level: "caves"},
		&protocol.GameAction{PlayerID: id, Action: "open_door", Payload: []byte{1, 2, 3}},
		&protocol.SpellCast{PlayerID: id, Spell: "fireball", X: 1, Y: 2, TargetX: 3, TargetY: 4},
		&protocol.SpellUpgrade{PlayerID: id, Spell: "fireball", Level: 3},
		&protocol.VoicePacket{PlayerID: id, Data: bytes.Repeat([]byte{0xab}, 512)},
		&protocol.LobbyJoinRequest{Code: "ABCD", PlayerID: id, Username: "carol"},
		&protocol.LobbyJoinResponse{
			Accepted: true,
			HostID:   id,
			Players:  []protocol.LobbyPlayer{{ID: id, Username: "carol"}},
		},
		&protocol.LobbyRosterUpdate{HostID: id, Players: []protocol.LobbyPlayer{{ID: id, Username: "carol"}}},
	}

	for _, original := range testCases {
		t.Run(original.Kind().String(), func(t *testing.T) {
			is := is.New(t)

			encoded, err := protocol.Encode(original)
			is.NoErr(err)
			is.True(len(encoded) >= protocol.HeaderSize)

			decoded, err := protocol.Decode(encoded)
			is.NoErr(err)
			is.Equal(decoded, original)
			is.Equal(decoded.Channel(), original.Channel())
		})
	}
}

func TestChannels(t *testing.T) {
	is := is.New(t)

	is.Equal((&protocol.PlayerPositionUpdate{}).Channel(), protocol.Unreliable)
	is.Equal((&protocol.VoicePacket{}).Channel(), protocol.Unreliable)
	is.Equal((&protocol.PlayerJoin{}).Channel(), protocol.Reliable)
	is.Equal((&protocol.HostMigration{}).Channel(), protocol.Reliable)
}

func TestAbsentHostID(t *testing.T) {
	is := is.New(t)

	encoded, err := protocol.Encode(&protocol.HostMigration{NewHostID: protocol.NoPlayer})
	is.NoErr(err)
	// header + empty string length prefix
	is.Equal(len(encoded), protocol.HeaderSize+2)

	decoded, err := protocol.Decode(encoded)
	is.NoErr(err)
	is.True(decoded.(*protocol.HostMigration).NewHostID.IsZero())
}

func TestDecodeErrors(t *testing.T) {
	encoded, err := protocol.Encode(&protocol.ChatMessage{Username: "bob", Message: "hello"})
	if err != nil {
		t.Fatal(err)
	}

	t.Run("short", func(t *testing.T) {
		is := is.New(t)
		_, err := protocol.Decode(encoded[:2])
		is.True(errors.Is(err, protocol.ErrShortMessage))
	})

	t.Run("size mismatch", func(t *testing.T) {
		is := is.New(t)
		_, err := protocol.Decode(encoded[:len(encoded)-1])
		is.True(err != nil)
	})

	t.Run("unknown kind", func(t *testing.T) {
		is := is.New(t)
		header := protocol.Header{Kind: protocol.KindMax}
		data, err := header.MarshalBinary()
		is.NoErr(err)
		_, err = protocol.Decode(data)
		is.True(errors.Is(err, protocol.ErrUnknownKind))
	})

	t.Run("truncated body", func(t *testing.T) {
		is := is.New(t)
		// claim a 5 byte username but only carry the length prefix
		header := protocol.Header{Kind: protocol.KindChatMessage, Size: 2}
		data, err := header.MarshalBinary()
		is.NoErr(err)
		data = append(data, 0, 5)
		_, err = protocol.Decode(data)
		is.True(err != nil)
	})

	t.Run("bad player id", func(t *testing.T) {
		is := is.New(t)
		header := protocol.Header{Kind: protocol.KindPlayerDisconnect, Size: 5}
		data, err := header.MarshalBinary()
		is.NoErr(err)
		data = append(data, 0, 3, 'x', 'y', 'z')
		_, err = protocol.Decode(data)
		is.True(err != nil)
	})
}

func TestEncodeTooLarge(t *testing.T) {
	is := is.New(t)

	_, err := protocol.Encode(&protocol.VoicePacket{Data: make([]byte, protocol.MaxMessageSize)})
	is.True(errors.Is(err, protocol.ErrTooLarge))
}

func TestPlayerIDShort(t *testing.T) {
	is := is.New(t)

	id, err := protocol.ParsePlayerID("1b4e28ba-2fa1-11d2-883f-0016d3cca427")
	is.NoErr(err)
	is.Equal(id.Short(), "1b4e28ba")
	is.True(!id.IsZero())
	is.True(protocol.NoPlayer.IsZero())
}
