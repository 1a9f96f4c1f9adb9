package transport_test

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/blukai/coopnet/internal/protocol"
	"github.com/blukai/coopnet/internal/transport"
	"github.com/matryer/is"
)

type serverRecorder struct {
	connected    chan *transport.Conn
	disconnected chan *transport.Conn
	received     chan protocol.Message
}

func newServerRecorder() *serverRecorder {
	return &serverRecorder{
		connected:    make(chan *transport.Conn, 16),
		disconnected: make(chan *transport.Conn, 16),
		received:     make(chan protocol.Message, 16),
	}
}

func (r *serverRecorder) Connected(conn *transport.Conn)    { r.connected <- conn }
func (r *serverRecorder) Disconnected(conn *transport.Conn) { r.disconnected <- conn }
func (r *serverRecorder) Received(_ *transport.Conn, msg protocol.Message) {
	r.received <- msg
}

type clientRecorder struct {
	received     chan protocol.Message
	disconnected chan struct{}
}

func newClientRecorder() *clientRecorder {
	return &clientRecorder{
		received:     make(chan protocol.Message, 16),
		disconnected: make(chan struct{}),
	}
}

func (r *clientRecorder) Received(msg protocol.Message) { r.received <- msg }
func (r *clientRecorder) Disconnected()                 { close(r.disconnected) }

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

func testConfig() transport.Config {
	cfg := transport.DefaultConfig()
	cfg.UDPRegisterTimeout = 500 * time.Millisecond
	return cfg
}

func TestBothChannels(t *testing.T) {
	is := is.New(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serverRec := newServerRecorder()
	server, err := transport.NewServer(testConfig(), "127.0.0.1:0", "127.0.0.1:0", serverRec, nil)
	is.NoErr(err)
	go server.Run(ctx)

	clientRec := newClientRecorder()
	client, err := transport.Dial(
		testConfig(),
		server.ReliableAddr().String(),
		server.UnreliableAddr().String(),
		clientRec,
		nil,
	)
	is.NoErr(err)
	go client.Run(ctx)

	conn := recv(t, serverRec.connected)
	is.Equal(conn.ID(), client.ID())
	is.True(conn.UDPAddr() != nil)

	// client -> server

	chat := &protocol.ChatMessage{Username: "alice", Message: "hello"}
	is.NoErr(client.SendReliable(chat))
	is.Equal(recv(t, serverRec.received), protocol.Message(chat))

	position := &protocol.PlayerPositionUpdate{PlayerID: protocol.NewPlayerID(), X: 1, Y: 2}
	is.NoErr(client.SendUnreliable(position))
	is.Equal(recv(t, serverRec.received), protocol.Message(position))

	// server -> client

	migration := &protocol.HostMigration{NewHostID: protocol.NewPlayerID()}
	is.NoErr(conn.SendReliable(migration))
	is.Equal(recv(t, clientRec.received), protocol.Message(migration))

	voice := &protocol.VoicePacket{PlayerID: protocol.NewPlayerID(), Data: []byte{1, 2, 3}}
	is.NoErr(conn.SendUnreliable(voice))
	is.Equal(recv(t, clientRec.received), protocol.Message(voice))

	// departure

	is.NoErr(client.Close())
	is.Equal(recv(t, serverRec.disconnected), conn)
	recv(t, clientRec.disconnected)
}

func TestUnreliableAfterIdle(t *testing.T) {
	is := is.New(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serverRec := newServerRecorder()
	server, err := transport.NewServer(testConfig(), "127.0.0.1:0", "127.0.0.1:0", serverRec, nil)
	is.NoErr(err)
	go server.Run(ctx)

	clientRec := newClientRecorder()
	client, err := transport.Dial(
		testConfig(),
		server.ReliableAddr().String(),
		server.UnreliableAddr().String(),
		clientRec,
		nil,
	)
	is.NoErr(err)
	go client.Run(ctx)

	conn := recv(t, serverRec.connected)

	// longer than any read window used while registering
	time.Sleep(300 * time.Millisecond)

	position := &protocol.PlayerPositionUpdate{PlayerID: protocol.NewPlayerID(), X: 42}
	is.NoErr(client.SendUnreliable(position))
	is.Equal(recv(t, serverRec.received), protocol.Message(position))

	voice := &protocol.VoicePacket{PlayerID: protocol.NewPlayerID(), Data: []byte{7}}
	is.NoErr(conn.SendUnreliable(voice))
	is.Equal(recv(t, clientRec.received), protocol.Message(voice))

	is.NoErr(client.Close())
	recv(t, clientRec.disconnected)
}

func TestReliableOnly(t *testing.T) {
	is := is.New(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serverRec := newServerRecorder()
	server, err := transport.NewServer(testConfig(), "127.0.0.1:0", "", serverRec, nil)
	is.NoErr(err)
	is.True(server.UnreliableAddr() == nil)
	go server.Run(ctx)

	clientRec := newClientRecorder()
	client, err := transport.Dial(testConfig(), server.ReliableAddr().String(), "", clientRec, nil)
	is.NoErr(err)
	go client.Run(ctx)

	conn := recv(t, serverRec.connected)

	err = client.SendUnreliable(&protocol.VoicePacket{})
	is.True(errors.Is(err, transport.ErrNoUnreliable))

	err = conn.SendUnreliable(&protocol.VoicePacket{})
	is.True(errors.Is(err, transport.ErrNoUnreliable))

	// server shutdown reaches the client as a plain disconnect
	cancel()
	recv(t, clientRec.disconnected)
}

func TestUDPRegistrationTimeout(t *testing.T) {
	is := is.New(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serverRec := newServerRecorder()
	server, err := transport.NewServer(testConfig(), "127.0.0.1:0", "127.0.0.1:0", serverRec, nil)
	is.NoErr(err)
	go server.Run(ctx)

	// a socket that never answers
	silent, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	is.NoErr(err)
	defer silent.Close()

	_, err = transport.Dial(
		testConfig(),
		server.ReliableAddr().String(),
		silent.LocalAddr().String(),
		newClientRecorder(),
		nil,
	)
	is.True(errors.Is(err, transport.ErrUDPRegistration))

	select {
	case <-serverRec.connected:
		t.Fatal("half-registered connection must not be reported")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestDialFailure(t *testing.T) {
	is := is.New(t)

	// grab a free port and release it so nothing is listening there
	l, err := net.Listen("tcp", "127.0.0.1:0")
	is.NoErr(err)
	addr := l.Addr().String()
	is.NoErr(l.Close())

	_, err = transport.Dial(testConfig(), addr, "", newClientRecorder(), nil)
	is.True(err != nil)
}

func TestKeepAlive(t *testing.T) {
	is := is.New(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := testConfig()
	cfg.KeepAliveInterval = 50 * time.Millisecond
	cfg.Timeout = 300 * time.Millisecond

	serverRec := newServerRecorder()
	server, err := transport.NewServer(cfg, "127.0.0.1:0", "", serverRec, nil)
	is.NoErr(err)
	go server.Run(ctx)

	t.Run("idle client stays", func(t *testing.T) {
		is := is.New(t)

		client, err := transport.Dial(cfg, server.ReliableAddr().String(), "", newClientRecorder(), nil)
		is.NoErr(err)
		go client.Run(ctx)

		conn := recv(t, serverRec.connected)

		select {
		case <-serverRec.disconnected:
			t.Fatal("keepalives should hold the connection open")
		case <-time.After(4 * cfg.Timeout):
		}

		is.NoErr(client.Close())
		is.Equal(recv(t, serverRec.disconnected), conn)
	})

	t.Run("silent peer is dropped", func(t *testing.T) {
		is := is.New(t)

		raw, err := net.Dial("tcp", server.ReliableAddr().String())
		is.NoErr(err)
		defer raw.Close()

		conn := recv(t, serverRec.connected)
		// a silent peer times out and is reported like any departure
		is.Equal(recv(t, serverRec.disconnected), conn)
	})
}
