package lobby

import (
	"context"
	"fmt"
	"net"
	"slices"
	"sync"

	"github.com/blukai/coopnet/internal/logger"
	"github.com/blukai/coopnet/internal/protocol"
	"github.com/blukai/coopnet/internal/transport"
	"github.com/phuslu/log"
)

const (
	ReasonWrongCode = "wrong room code"
	ReasonFull      = "room is full"
	ReasonDuplicate = "player is already in the room"
)

type member struct {
	conn   *transport.Conn
	player protocol.LobbyPlayer
}

// Room is a join-code lobby. The first player to join is labelled host;
// the room shuts itself down once the last player has left.
type Room struct {
	cfg    Config
	code   string
	logger *log.Logger
	server *transport.Server

	cancel context.CancelFunc
	done   chan struct{}

	mu      sync.RWMutex
	members []member
	hostID  protocol.PlayerID
}

var _ transport.Handler = (*Room)(nil)

func NewRoom(cfg Config, l *log.Logger) (*Room, error) {
	code := NormalizeCode(cfg.Code)
	if code == "" {
		code = NewCode()
	}
	if !validCode(code) {
		return nil, fmt.Errorf("invalid room code %q", cfg.Code)
	}
	if cfg.Capacity <= 0 {
		return nil, fmt.Errorf("invalid room capacity %d", cfg.Capacity)
	}

	r := &Room{
		cfg:    cfg,
		code:   code,
		logger: logger.OrDiscard(l),
		done:   make(chan struct{}),
	}

	server, err := transport.NewServer(cfg.Transport, cfg.Addr, "", r, l)
	if err != nil {
		return nil, err
	}
	r.server = server

	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	go func() {
		defer close(r.done)
		if err := server.Run(ctx); err != nil {
			r.logger.Error().Msgf("lobby server run failed: %v", err)
		}
	}()

	r.logger.Info().
		Str("code", code).
		Str("addr", server.ReliableAddr().String()).
		Int("capacity", cfg.Capacity).
		Msg("lobby room open")

	return r, nil
}

func (r *Room) Code() string {
	return r.code
}

func (r *Room) Addr() *net.TCPAddr {
	return r.server.ReliableAddr()
}

// Done is closed once the room stopped serving.
func (r *Room) Done() <-chan struct{} {
	return r.done
}

func (r *Room) Close() error {
	r.cancel()
	<-r.done
	return nil
}

func (r *Room) HostID() protocol.PlayerID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.hostID
}

func (r *Room) Players() []protocol.LobbyPlayer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.playersLocked()
}

func (r *Room) playersLocked() []protocol.LobbyPlayer {
	players := make([]protocol.LobbyPlayer, 0, len(r.members))
	for _, m := range r.members {
		players = append(players, m.player)
	}
	return players
}

func (r *Room) connsLocked() []*transport.Conn {
	conns := make([]*transport.Conn, 0, len(r.members))
	for _, m := range r.members {
		conns = append(conns, m.conn)
	}
	return conns
}

func (r *Room) indexLocked(conn *transport.Conn) int {
	return slices.IndexFunc(r.members, func(m member) bool { return m.conn == conn })
}

func (r *Room) Connected(conn *transport.Conn) {
	r.logger.Debug().
		Stringer("conn", conn).
		Msg("lobby connection, waiting for join request")
}

func (r *Room) Received(conn *transport.Conn, msg protocol.Message) {
	switch m := msg.(type) {
	case *protocol.LobbyJoinRequest:
		r.handleJoin(conn, m)
	case *protocol.ChatMessage:
		r.mu.RLock()
		joined := r.indexLocked(conn) >= 0
		conns := r.connsLocked()
		r.mu.RUnlock()
		if !joined {
			return
		}
		if err := transport.SendReliableToAll(conns, m, nil); err != nil {
			r.logger.Error().Msgf("could not relay lobby chat: %v", err)
		}
	default:
		r.logger.Warn().
			Stringer("conn", conn).
			Stringer("kind", msg.Kind()).
			Msg("unexpected message in lobby")
	}
}

func (r *Room) reject(conn *transport.Conn, reason string) {
	r.logger.Info().
		Stringer("conn", conn).
		Str("reason", reason).
		Msg("join rejected")

	if err := conn.SendReliable(&protocol.LobbyJoinResponse{Reason: reason}); err != nil {
		r.logger.Debug().Msgf("could not send rejection: %v", err)
	}
	conn.Close()
}

func (r *Room) handleJoin(conn *transport.Conn, m *protocol.LobbyJoinRequest) {
	if NormalizeCode(m.Code) != r.code {
		r.reject(conn, ReasonWrongCode)
		return
	}

	r.mu.Lock()
	if r.indexLocked(conn) >= 0 {
		r.mu.Unlock()
		return
	}
	if len(r.members) >= r.cfg.Capacity {
		r.mu.Unlock()
		r.reject(conn, ReasonFull)
		return
	}
	if m.PlayerID.IsZero() || slices.ContainsFunc(r.members, func(other member) bool { return other.player.ID == m.PlayerID }) {
		r.mu.Unlock()
		r.reject(conn, ReasonDuplicate)
		return
	}

	others := r.connsLocked()
	r.members = append(r.members, member{
		conn:   conn,
		player: protocol.LobbyPlayer{ID: m.PlayerID, Username: m.Username},
	})
	if r.hostID.IsZero() {
		r.hostID = m.PlayerID
	}
	hostID := r.hostID
	players := r.playersLocked()
	r.mu.Unlock()

	r.logger.Info().
		Str("player", m.PlayerID.String()).
		Str("username", m.Username).
		Int("players", len(players)).
		Msg("player joined lobby")

	err := conn.SendReliable(&protocol.LobbyJoinResponse{
		Accepted: true,
		HostID:   hostID,
		Players:  players,
	})
	if err != nil {
		r.logger.Error().Msgf("could not accept join: %v", err)
		return
	}

	r.broadcastRoster(others, hostID, players)
}

func (r *Room) broadcastRoster(conns []*transport.Conn, hostID protocol.PlayerID, players []protocol.LobbyPlayer) {
	update := &protocol.LobbyRosterUpdate{HostID: hostID, Players: players}
	if err := transport.SendReliableToAll(conns, update, nil); err != nil {
		r.logger.Error().Msgf("could not broadcast roster: %v", err)
	}
}

func (r *Room) Disconnected(conn *transport.Conn) {
	r.mu.Lock()
	i := r.indexLocked(conn)
	if i < 0 {
		r.mu.Unlock()
		return
	}
	left := r.members[i].player
	r.members = slices.Delete(r.members, i, i+1)
	if left.ID == r.hostID {
		if len(r.members) > 0 {
			r.hostID = r.members[0].player.ID
		} else {
			r.hostID = protocol.NoPlayer
		}
	}
	hostID := r.hostID
	players := r.playersLocked()
	conns := r.connsLocked()
	r.mu.Unlock()

	r.logger.Info().
		Str("player", left.ID.String()).
		Str("host", hostID.String()).
		Msg("player left lobby")

	if len(players) == 0 {
		r.logger.Info().Str("code", r.code).Msg("lobby room empty, closing")
		r.cancel()
		return
	}

	r.broadcastRoster(conns, hostID, players)
}
