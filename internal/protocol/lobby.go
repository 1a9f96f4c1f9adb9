package protocol

import "github.com/blukai/coopnet/internal/debug"

// lobby messages travel over the single reliable channel of a join-code
// room.

type LobbyPlayer struct {
	ID       PlayerID
	Username string
}

const maxLobbyPlayers = 255

func encodePlayers(e *encoder, players []LobbyPlayer) {
	debug.Assertf(len(players) <= maxLobbyPlayers, "too many lobby players: %d", len(players))
	e.uint8(uint8(len(players)))
	for _, p := range players {
		e.playerID(p.ID)
		e.string(p.Username)
	}
}

func decodePlayers(d *decoder) []LobbyPlayer {
	n := int(d.uint8())
	if n == 0 {
		return nil
	}
	players := make([]LobbyPlayer, 0, n)
	for range n {
		p := LobbyPlayer{ID: d.playerID(), Username: d.string()}
		if d.err != nil {
			return nil
		}
		players = append(players, p)
	}
	return players
}

type LobbyJoinRequest struct {
	reliableChannel

	Code     string
	PlayerID PlayerID
	Username string
}

func (*LobbyJoinRequest) Kind() Kind { return KindLobbyJoinRequest }

func (m *LobbyJoinRequest) encodeBody(e *encoder) {
	e.string(m.Code)
	e.playerID(m.PlayerID)
	e.string(m.Username)
}

func (m *LobbyJoinRequest) decodeBody(d *decoder) {
	m.Code = d.string()
	m.PlayerID = d.playerID()
	m.Username = d.string()
}

type LobbyJoinResponse struct {
	reliableChannel

	Accepted bool
	Reason   string
	HostID   PlayerID
	Players  []LobbyPlayer
}

func (*LobbyJoinResponse) Kind() Kind { return KindLobbyJoinResponse }

func (m *LobbyJoinResponse) encodeBody(e *encoder) {
	e.bool(m.Accepted)
	e.string(m.Reason)
	e.playerID(m.HostID)
	encodePlayers(e, m.Players)
}

func (m *LobbyJoinResponse) decodeBody(d *decoder) {
	m.Accepted = d.bool()
	m.Reason = d.string()
	m.HostID = d.playerID()
	m.Players = decodePlayers(d)
}

type LobbyRosterUpdate struct {
	reliableChannel

	HostID  PlayerID
	Players []LobbyPlayer
}

func (*LobbyRosterUpdate) Kind() Kind { return KindLobbyRosterUpdate }

func (m *LobbyRosterUpdate) encodeBody(e *encoder) {
	e.playerID(m.HostID)
	encodePlayers(e, m.Players)
}

func (m *LobbyRosterUpdate) decodeBody(d *decoder) {
	m.HostID = d.playerID()
	m.Players = decodePlayers(d)
}
