package session

import (
	"context"
	"net"
	"slices"
	"strconv"
	"sync"

	"github.com/blukai/coopnet/internal/logger"
	"github.com/blukai/coopnet/internal/protocol"
	"github.com/blukai/coopnet/internal/transport"
	"github.com/phuslu/log"
)

// Host is the authoritative side of a session: it tracks who is connected,
// relays everything between peers and decides migration.
//
// transport.Server serializes the callbacks below, so every mutation of the
// order list, connection maps and roster happens on one goroutine. mu only
// protects readers on other goroutines.
type Host struct {
	logger *log.Logger
	server *transport.Server

	cancel context.CancelFunc
	done   chan struct{}

	mu      sync.RWMutex
	order   *playerOrder
	ids     map[*transport.Conn]protocol.PlayerID
	conns   map[protocol.PlayerID]*transport.Conn
	members []*transport.Conn // joined connections, in join order

	roster *roster
}

var _ transport.Handler = (*Host)(nil)

// NewHost binds the session ports with hostID as the initial authority.
// hostID is normally the id of the local player that will connect next.
func NewHost(cfg Config, hostID protocol.PlayerID, l *log.Logger) (*Host, error) {
	h := &Host{
		logger: logger.OrDiscard(l),
		done:   make(chan struct{}),

		order: newPlayerOrder(hostID),
		ids:   make(map[*transport.Conn]protocol.PlayerID),
		conns: make(map[protocol.PlayerID]*transport.Conn),

		roster: newRoster(),
	}

	server, err := transport.NewServer(cfg.Transport, cfg.ReliableAddr, cfg.UnreliableAddr, h, l)
	if err != nil {
		return nil, err
	}
	h.server = server

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() {
		defer close(h.done)
		if err := server.Run(ctx); err != nil {
			h.logger.Error().Msgf("session server run failed: %v", err)
		}
	}()

	h.logger.Info().
		Str("host", hostID.String()).
		Str("reliable", server.ReliableAddr().String()).
		Stringer("unreliable", server.UnreliableAddr()).
		Msg("hosting session")

	return h, nil
}

// Close stops serving. Every peer sees a plain disconnect.
func (h *Host) Close() error {
	h.cancel()
	<-h.done
	return nil
}

func (h *Host) ReliablePort() int {
	return h.server.ReliableAddr().Port
}

func (h *Host) UnreliablePort() int {
	if addr := h.server.UnreliableAddr(); addr != nil {
		return addr.Port
	}
	return 0
}

// LoopbackAddrs are the addresses the host's own player dials.
func (h *Host) LoopbackAddrs() (reliable, unreliable string) {
	reliable = net.JoinHostPort("127.0.0.1", strconv.Itoa(h.ReliablePort()))
	if port := h.UnreliablePort(); port != 0 {
		unreliable = net.JoinHostPort("127.0.0.1", strconv.Itoa(port))
	}
	return reliable, unreliable
}

func (h *Host) HostID() protocol.PlayerID {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.order.host
}

// PlayerOrder is the migration succession list, current host first unless
// the host has not reconnected its own player.
func (h *Host) PlayerOrder() []protocol.PlayerID {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.order.list()
}

// PlayerCount is the number of joined connections.
func (h *Host) PlayerCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.members)
}

func (h *Host) Roster() []RosterEntry {
	return h.roster.snapshot()
}

func (h *Host) Connected(conn *transport.Conn) {
	h.logger.Debug().
		Stringer("conn", conn).
		Msg("connection established, waiting for join")
}

func (h *Host) Received(conn *transport.Conn, msg protocol.Message) {
	if join, ok := msg.(*protocol.PlayerJoin); ok {
		h.handleJoin(conn, join)
		return
	}

	h.mu.RLock()
	id, joined := h.ids[conn]
	members := slices.Clone(h.members)
	h.mu.RUnlock()

	if !joined {
		h.logger.Warn().
			Stringer("conn", conn).
			Stringer("kind", msg.Kind()).
			Msg("dropping message from connection that has not joined")
		return
	}

	var err error
	switch m := msg.(type) {
	case *protocol.PlayerPositionUpdate:
		if m.PlayerID != id {
			h.logger.Warn().
				Stringer("conn", conn).
				Str("claimed", m.PlayerID.String()).
				Msg("dropping position update for another player")
			return
		}
		h.roster.apply(m)
		err = transport.SendUnreliableToAll(members, m, conn)
	case *protocol.ChatMessage:
		err = transport.SendReliableToAll(members, m, nil)
	case *protocol.GameStart:
		err = transport.SendReliableToAll(members, m, conn)
	case *protocol.GameAction:
		err = transport.SendReliableToAll(members, m, conn)
	case *protocol.SpellCast:
		err = transport.SendReliableToAll(members, m, conn)
	case *protocol.SpellUpgrade:
		err = transport.SendReliableToAll(members, m, conn)
	case *protocol.VoicePacket:
		err = transport.SendUnreliableToAll(members, m, conn)
	case *protocol.PlayerDisconnect, *protocol.HostMigration:
		// only the host issues these; departures are detected by the
		// transport.
		h.logger.Debug().
			Stringer("conn", conn).
			Stringer("kind", msg.Kind()).
			Msg("ignoring host-only message from peer")
	default:
		h.logger.Warn().
			Stringer("conn", conn).
			Stringer("kind", msg.Kind()).
			Msg("unexpected message in session")
	}

	if err != nil {
		h.logger.Error().
			Stringer("kind", msg.Kind()).
			Msgf("could not relay: %v", err)
	}
}

func (h *Host) handleJoin(conn *transport.Conn, m *protocol.PlayerJoin) {
	if m.PlayerID.IsZero() {
		h.logger.Warn().Stringer("conn", conn).Msg("join without player id")
		return
	}

	h.mu.Lock()
	if id, ok := h.ids[conn]; ok {
		h.mu.Unlock()
		h.logger.Warn().
			Stringer("conn", conn).
			Str("player", id.String()).
			Msg("ignoring repeated join")
		return
	}
	if other, ok := h.conns[m.PlayerID]; ok {
		h.mu.Unlock()
		h.logger.Warn().
			Stringer("conn", conn).
			Stringer("other", other).
			Str("player", m.PlayerID.String()).
			Msg("player id already connected, dropping newcomer")
		conn.Close()
		return
	}

	h.ids[conn] = m.PlayerID
	h.conns[m.PlayerID] = conn
	h.members = append(h.members, conn)
	h.order.add(m.PlayerID)
	hostID := h.order.host
	others := make([]*transport.Conn, 0, len(h.members)-1)
	for _, member := range h.members {
		if member != conn {
			others = append(others, member)
		}
	}
	h.mu.Unlock()

	existing := h.roster.snapshot()
	h.roster.join(m)

	h.logger.Info().
		Str("player", m.PlayerID.String()).
		Str("username", m.Username).
		Str("host", hostID.String()).
		Msg("player joined")

	// the newcomer learns who is authoritative before anything else.
	if err := conn.SendReliable(&protocol.HostMigration{NewHostID: hostID}); err != nil {
		h.logger.Error().Msgf("could not send host to newcomer: %v", err)
		return
	}

	// and who is already here, so its roster converges without waiting
	// for position updates.
	for _, entry := range existing {
		if entry.ID == m.PlayerID {
			continue
		}
		err := conn.SendReliable(&protocol.PlayerJoin{
			PlayerID: entry.ID,
			Username: entry.Username,
			Color:    entry.Color,
			X:        entry.X,
			Y:        entry.Y,
		})
		if err != nil {
			h.logger.Error().Msgf("could not send roster to newcomer: %v", err)
			return
		}
	}

	if err := transport.SendReliableToAll(others, m, nil); err != nil {
		h.logger.Error().Msgf("could not relay join: %v", err)
	}
}

func (h *Host) Disconnected(conn *transport.Conn) {
	h.mu.Lock()
	id, ok := h.ids[conn]
	if !ok {
		h.mu.Unlock()
		return
	}
	delete(h.ids, conn)
	delete(h.conns, id)
	h.members = slices.DeleteFunc(h.members, func(member *transport.Conn) bool { return member == conn })
	// removal and reassignment are one step.
	newHost, migrated := h.order.remove(id)
	members := slices.Clone(h.members)
	h.mu.Unlock()

	h.roster.remove(id)

	h.logger.Info().
		Str("player", id.String()).
		Bool("migrated", migrated).
		Str("host", newHost.String()).
		Msg("player left")

	if migrated && !newHost.IsZero() {
		if err := transport.SendReliableToAll(members, &protocol.HostMigration{NewHostID: newHost}, nil); err != nil {
			h.logger.Error().Msgf("could not announce new host: %v", err)
		}
	}

	if err := transport.SendReliableToAll(members, &protocol.PlayerDisconnect{PlayerID: id}, nil); err != nil {
		h.logger.Error().Msgf("could not announce departure: %v", err)
	}
}
