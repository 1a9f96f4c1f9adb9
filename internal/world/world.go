package world

import (
	"time"

	"github.com/blukai/coopnet/internal/logger"
	"github.com/blukai/coopnet/internal/protocol"
	"github.com/blukai/coopnet/internal/session"
	"github.com/phuslu/log"
)

// PlayerState is everything a sprite needs to draw a player.
type PlayerState struct {
	Username       string
	Color          string
	X, Y           float32
	Direction      protocol.Direction
	Moving         bool
	FlipX, FlipY   bool
	AnimationFrame int32
	LegSprite      string
}

type Sprite interface {
	SetState(state PlayerState)
	Destroy()
}

type Visuals interface {
	CreatePlayer(id protocol.PlayerID, x, y float32, color string) Sprite
}

type ChatDisplay interface {
	ShowChat(username, message string)
}

// Session is the part of session.Client the world talks to.
type Session interface {
	LocalID() protocol.PlayerID
	Connected() bool
	SendPosition(update protocol.PlayerPositionUpdate) error
}

var _ Session = (*session.Client)(nil)

type RemotePlayer struct {
	ID protocol.PlayerID
	PlayerState
	// Placeholder is set until a join for the player arrives.
	Placeholder bool

	sprite Sprite
}

// World is the main-loop side of a session. Its session.Listener methods
// may be called from any goroutine; they only queue work. Everything else
// must be called from the main loop.
type World struct {
	cfg     Config
	logger  *log.Logger
	queue   *TaskQueue
	session Session
	visuals Visuals
	chat    ChatDisplay

	gameplay func(msg protocol.Message)

	players map[protocol.PlayerID]*RemotePlayer
	order   []protocol.PlayerID

	hostID protocol.PlayerID
	isHost bool

	local    PlayerState
	dirty    bool
	lastSent time.Time
}

var _ session.Listener = (*World)(nil)

func New(cfg Config, s Session, visuals Visuals, chat ChatDisplay, l *log.Logger) *World {
	return &World{
		cfg:     cfg,
		logger:  logger.OrDiscard(l),
		queue:   NewTaskQueue(l),
		session: s,
		visuals: visuals,
		chat:    chat,
		players: make(map[protocol.PlayerID]*RemotePlayer),
		dirty:   true,
	}
}

// OnGameplay sets the main-loop handler for gameplay messages.
func (w *World) OnGameplay(fn func(msg protocol.Message)) {
	w.gameplay = fn
}

func (w *World) Queue(task Task) {
	w.queue.Queue(task)
}

// Tick runs queued network work and then replicates the local player.
func (w *World) Tick(now time.Time) {
	w.queue.Drain()
	w.replicate(now)
}

// SetLocalState records the local player's state for the next send.
func (w *World) SetLocalState(state PlayerState) {
	if state != w.local {
		w.local = state
		w.dirty = true
	}
}

func (w *World) LocalState() PlayerState {
	return w.local
}

func (w *World) replicate(now time.Time) {
	if !w.session.Connected() {
		return
	}

	since := now.Sub(w.lastSent)
	if w.lastSent.IsZero() {
		since = w.cfg.HeartbeatInterval
	}
	if since < w.cfg.SendInterval {
		return
	}
	if !w.dirty && since < w.cfg.HeartbeatInterval {
		return
	}

	err := w.session.SendPosition(protocol.PlayerPositionUpdate{
		X:              w.local.X,
		Y:              w.local.Y,
		Direction:      w.local.Direction,
		IsMoving:       w.local.Moving,
		Color:          w.local.Color,
		FlipX:          w.local.FlipX,
		FlipY:          w.local.FlipY,
		AnimationFrame: w.local.AnimationFrame,
		LegSprite:      w.local.LegSprite,
	})
	if err != nil {
		w.logger.Debug().Msgf("could not send local state: %v", err)
		return
	}
	w.lastSent = now
	w.dirty = false
}

// AddRemotePlayer creates the player, or refreshes it when it is already
// known. A placeholder gets its real name and colour.
func (w *World) AddRemotePlayer(id protocol.PlayerID, username, color string, x, y float32) {
	if id.IsZero() || id == w.session.LocalID() {
		return
	}

	if p, ok := w.players[id]; ok {
		p.Username = username
		p.Color = color
		p.Placeholder = false
		p.sprite.SetState(p.PlayerState)
		return
	}

	p := &RemotePlayer{
		ID: id,
		PlayerState: PlayerState{
			Username: username,
			Color:    color,
			X:        x,
			Y:        y,
		},
	}
	p.sprite = w.visuals.CreatePlayer(id, x, y, color)
	p.sprite.SetState(p.PlayerState)
	w.players[id] = p
	w.order = append(w.order, id)

	w.logger.Debug().
		Str("player", id.String()).
		Str("username", username).
		Msg("remote player added")
}

// UpdatePlayerPosition applies an absolute update. An unknown player is
// created under a placeholder name while the session is connected, since
// its join may still be in flight.
func (w *World) UpdatePlayerPosition(m *protocol.PlayerPositionUpdate) {
	if m.PlayerID.IsZero() || m.PlayerID == w.session.LocalID() {
		return
	}

	p, ok := w.players[m.PlayerID]
	if !ok {
		if !w.session.Connected() {
			return
		}
		w.AddRemotePlayer(m.PlayerID, session.PlaceholderName(m.PlayerID), m.Color, m.X, m.Y)
		p = w.players[m.PlayerID]
		p.Placeholder = true
	}

	p.X, p.Y = m.X, m.Y
	p.Direction = m.Direction
	p.Moving = m.IsMoving
	if m.Color != "" {
		p.Color = m.Color
	}
	p.FlipX, p.FlipY = m.FlipX, m.FlipY
	p.AnimationFrame = m.AnimationFrame
	p.LegSprite = m.LegSprite
	p.sprite.SetState(p.PlayerState)
}

func (w *World) RemoveRemotePlayer(id protocol.PlayerID) {
	p, ok := w.players[id]
	if !ok {
		return
	}
	p.sprite.Destroy()
	delete(w.players, id)
	for i, other := range w.order {
		if other == id {
			w.order = append(w.order[:i], w.order[i+1:]...)
			break
		}
	}
}

func (w *World) removeAll() {
	for _, id := range append([]protocol.PlayerID(nil), w.order...) {
		w.RemoveRemotePlayer(id)
	}
}

func (w *World) RemotePlayer(id protocol.PlayerID) (RemotePlayer, bool) {
	p, ok := w.players[id]
	if !ok {
		return RemotePlayer{}, false
	}
	return *p, true
}

// RemotePlayers are in the order they appeared.
func (w *World) RemotePlayers() []RemotePlayer {
	players := make([]RemotePlayer, 0, len(w.order))
	for _, id := range w.order {
		players = append(players, *w.players[id])
	}
	return players
}

func (w *World) HostID() protocol.PlayerID {
	return w.hostID
}

func (w *World) IsHost() bool {
	return w.isHost
}

func (w *World) PlayerJoined(m *protocol.PlayerJoin) {
	w.queue.Queue(func() { w.AddRemotePlayer(m.PlayerID, m.Username, m.Color, m.X, m.Y) })
}

func (w *World) PlayerLeft(id protocol.PlayerID) {
	w.queue.Queue(func() { w.RemoveRemotePlayer(id) })
}

func (w *World) PositionUpdated(m *protocol.PlayerPositionUpdate) {
	w.queue.Queue(func() { w.UpdatePlayerPosition(m) })
}

func (w *World) ChatReceived(m *protocol.ChatMessage) {
	if w.chat == nil {
		return
	}
	w.queue.Queue(func() { w.chat.ShowChat(m.Username, m.Message) })
}

func (w *World) HostChanged(hostID protocol.PlayerID, local bool) {
	w.queue.Queue(func() {
		w.hostID = hostID
		w.isHost = local
	})
}

func (w *World) Gameplay(msg protocol.Message) {
	w.queue.Queue(func() {
		if w.gameplay != nil {
			w.gameplay(msg)
		}
	})
}

func (w *World) Disconnected() {
	w.queue.Queue(w.removeAll)
}
