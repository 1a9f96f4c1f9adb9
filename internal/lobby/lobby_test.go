package lobby_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/blukai/coopnet/internal/lobby"
	"github.com/blukai/coopnet/internal/protocol"
	"github.com/matryer/is"
)

func recv[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	panic("unreachable")
}

func testConfig() lobby.Config {
	cfg := lobby.DefaultConfig()
	cfg.Addr = "127.0.0.1:0"
	cfg.JoinTimeout = 2 * time.Second
	return cfg
}

func newRoom(t *testing.T, cfg lobby.Config) *lobby.Room {
	t.Helper()
	room, err := lobby.NewRoom(cfg, nil)
	is.New(t).NoErr(err)
	t.Cleanup(func() { room.Close() })
	return room
}

func join(t *testing.T, room *lobby.Room, name string) *lobby.Client {
	t.Helper()
	client, err := lobby.Join(testConfig(), room.Addr().String(), room.Code(), protocol.LobbyPlayer{Username: name}, nil)
	is.New(t).NoErr(err)
	t.Cleanup(func() { client.Close() })
	return client
}

func usernames(players []protocol.LobbyPlayer) []string {
	names := make([]string, 0, len(players))
	for _, p := range players {
		names = append(names, p.Username)
	}
	return names
}

func TestCode(t *testing.T) {
	is := is.New(t)

	for range 100 {
		code := lobby.NewCode()
		is.Equal(len(code), lobby.CodeLength)
		is.Equal(strings.Trim(code, "ABCDEFGHIJKLMNOPQRSTUVWXYZ"), "")
	}
	is.Equal(lobby.NormalizeCode(" abcd "), "ABCD")

	cfg := testConfig()
	cfg.Code = "ab1"
	_, err := lobby.NewRoom(cfg, nil)
	is.True(err != nil)
}

func TestJoinAndRoster(t *testing.T) {
	is := is.New(t)

	room := newRoom(t, testConfig())

	alice := join(t, room, "alice")
	is.True(alice.IsHost())
	is.Equal(usernames(alice.Roster().Players), []string{"alice"})

	bob := join(t, room, "bob")
	is.True(!bob.IsHost())
	is.Equal(bob.HostID(), alice.Player().ID)
	is.Equal(usernames(bob.Roster().Players), []string{"alice", "bob"})

	update := recv(t, alice.Updates())
	is.Equal(update.HostID, alice.Player().ID)
	is.Equal(usernames(update.Players), []string{"alice", "bob"})

	is.Equal(room.HostID(), alice.Player().ID)
	is.Equal(len(room.Players()), 2)
}

func TestCodeIsCaseInsensitive(t *testing.T) {
	is := is.New(t)

	cfg := testConfig()
	cfg.Code = "WXYZ"
	room := newRoom(t, cfg)

	client, err := lobby.Join(testConfig(), room.Addr().String(), "wxyz", protocol.LobbyPlayer{Username: "alice"}, nil)
	is.NoErr(err)
	client.Close()
}

func TestRejections(t *testing.T) {
	cfg := testConfig()
	cfg.Capacity = 2

	t.Run("wrong code", func(t *testing.T) {
		is := is.New(t)
		room := newRoom(t, cfg)

		code := "AAAA"
		if room.Code() == code {
			code = "BBBB"
		}
		_, err := lobby.Join(testConfig(), room.Addr().String(), code, protocol.LobbyPlayer{Username: "mallory"}, nil)
		is.True(errors.Is(err, lobby.ErrRejected))
		is.True(strings.Contains(err.Error(), lobby.ReasonWrongCode))
		is.Equal(len(room.Players()), 0)
	})

	t.Run("full", func(t *testing.T) {
		is := is.New(t)
		room := newRoom(t, cfg)

		join(t, room, "alice")
		join(t, room, "bob")

		_, err := lobby.Join(testConfig(), room.Addr().String(), room.Code(), protocol.LobbyPlayer{Username: "carol"}, nil)
		is.True(errors.Is(err, lobby.ErrRejected))
		is.True(strings.Contains(err.Error(), lobby.ReasonFull))
		is.Equal(len(room.Players()), 2)
	})

	t.Run("duplicate id", func(t *testing.T) {
		is := is.New(t)
		room := newRoom(t, cfg)

		alice := join(t, room, "alice")

		_, err := lobby.Join(testConfig(), room.Addr().String(), room.Code(), alice.Player(), nil)
		is.True(errors.Is(err, lobby.ErrRejected))
		is.True(strings.Contains(err.Error(), lobby.ReasonDuplicate))
		is.Equal(len(room.Players()), 1)
	})
}

func TestHostLeavesRelabels(t *testing.T) {
	is := is.New(t)

	room := newRoom(t, testConfig())
	alice := join(t, room, "alice")
	bob := join(t, room, "bob")
	carol := join(t, room, "carol")
	recv(t, bob.Updates()) // carol joined

	is.NoErr(alice.Close())

	for _, c := range []*lobby.Client{bob, carol} {
		update := recv(t, c.Updates())
		is.Equal(update.HostID, bob.Player().ID)
		is.Equal(usernames(update.Players), []string{"bob", "carol"})
	}
	is.True(bob.IsHost())
	is.Equal(room.HostID(), bob.Player().ID)
}

func TestEmptyRoomCloses(t *testing.T) {
	is := is.New(t)

	room := newRoom(t, testConfig())
	alice := join(t, room, "alice")
	bob := join(t, room, "bob")

	is.NoErr(alice.Close())
	select {
	case <-room.Done():
		t.Fatal("room closed with a player left")
	case <-time.After(100 * time.Millisecond):
	}

	is.NoErr(bob.Close())
	recv(t, room.Done())
	is.Equal(room.HostID(), protocol.NoPlayer)
}

func TestLobbyChat(t *testing.T) {
	is := is.New(t)

	room := newRoom(t, testConfig())
	alice := join(t, room, "alice")
	bob := join(t, room, "bob")

	is.NoErr(bob.SendChat("ready?"))
	for _, c := range []*lobby.Client{alice, bob} {
		chat := recv(t, c.Chat())
		is.Equal(chat.Username, "bob")
		is.Equal(chat.Message, "ready?")
	}
}

func TestRoomShutdownEndsClients(t *testing.T) {
	room := newRoom(t, testConfig())
	alice := join(t, room, "alice")

	room.Close()
	recv(t, alice.Done())
	for range alice.Updates() {
	}
}
