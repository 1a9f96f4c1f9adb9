package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/blukai/coopnet/internal/logger"
	"github.com/blukai/coopnet/internal/protocol"
	"github.com/blukai/coopnet/internal/transport"
	"github.com/phuslu/log"
)

var (
	ErrNotConnected     = errors.New("not connected")
	ErrAlreadyConnected = errors.New("already connected")
	ErrNotHost          = errors.New("only the host may do that")
)

// LocalPlayer is the player this process controls.
type LocalPlayer struct {
	ID       protocol.PlayerID
	Username string
	Color    string
	X, Y     float32
}

// Client is one peer's view of a session. Subscribe listeners before
// Connect so that nothing sent right after the join is missed.
type Client struct {
	cfg    Config
	logger *log.Logger
	local  LocalPlayer

	listeners listeners
	roster    *roster

	mu        sync.RWMutex
	transport *transport.Client
	connected bool
	hostID    protocol.PlayerID
	done      chan struct{}
}

var _ transport.ClientHandler = (*Client)(nil)

func NewClient(cfg Config, local LocalPlayer, l *log.Logger) *Client {
	if local.ID.IsZero() {
		local.ID = protocol.NewPlayerID()
	}
	return &Client{
		cfg:    cfg,
		logger: logger.OrDiscard(l),
		local:  local,
		roster: newRoster(),
	}
}

// Subscribe registers l; the returned func removes it.
func (c *Client) Subscribe(l Listener) (unsubscribe func()) {
	return c.listeners.add(l)
}

// Connect dials the host and announces the local player. A failed dial is
// only returned here; listeners hear nothing of it.
func (c *Client) Connect(reliableAddress, unreliableAddress string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		return ErrAlreadyConnected
	}

	tc, err := transport.Dial(c.cfg.Transport, reliableAddress, unreliableAddress, c, c.logger)
	if err != nil {
		return fmt.Errorf("could not connect to %s: %w", reliableAddress, err)
	}

	c.roster.clear()
	c.roster.join(c.localJoin())

	c.transport = tc
	c.connected = true
	c.done = make(chan struct{})

	go func(done chan struct{}) {
		defer close(done)
		if err := tc.Run(context.Background()); err != nil {
			c.logger.Debug().Msgf("session client run ended: %v", err)
		}
	}(c.done)

	if err := tc.SendReliable(c.localJoin()); err != nil {
		// Run will report the drop through Disconnected.
		return fmt.Errorf("could not send join: %w", err)
	}

	c.logger.Info().
		Str("player", c.local.ID.String()).
		Str("host_addr", reliableAddress).
		Msg("joined session")
	return nil
}

func (c *Client) localJoin() *protocol.PlayerJoin {
	return &protocol.PlayerJoin{
		PlayerID: c.local.ID,
		Username: c.local.Username,
		Color:    c.local.Color,
		X:        c.local.X,
		Y:        c.local.Y,
	}
}

// Close leaves the session and waits until Disconnected was delivered.
func (c *Client) Close() error {
	c.mu.RLock()
	tc, done := c.transport, c.done
	c.mu.RUnlock()

	if tc == nil {
		return nil
	}
	err := tc.Close()
	<-done
	return err
}

func (c *Client) LocalID() protocol.PlayerID {
	return c.local.ID
}

func (c *Client) LocalPlayer() LocalPlayer {
	return c.local
}

func (c *Client) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// HostID is NoPlayer until the host has told us, and again after the
// connection dropped.
func (c *Client) HostID() protocol.PlayerID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hostID
}

func (c *Client) IsHost() bool {
	return c.HostID() == c.local.ID
}

// Roster includes the local player.
func (c *Client) Roster() []RosterEntry {
	return c.roster.snapshot()
}

func (c *Client) Player(id protocol.PlayerID) (RosterEntry, bool) {
	return c.roster.get(id)
}

func (c *Client) conn() (*transport.Client, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.connected {
		return nil, ErrNotConnected
	}
	return c.transport, nil
}

// SendPosition publishes the local player's absolute state on the
// unreliable channel.
func (c *Client) SendPosition(update protocol.PlayerPositionUpdate) error {
	tc, err := c.conn()
	if err != nil {
		return err
	}
	update.PlayerID = c.local.ID
	c.roster.apply(&update)
	return tc.SendUnreliable(&update)
}

// SendChat is displayed locally once the host echoes it back.
func (c *Client) SendChat(message string) error {
	return c.sendReliable(&protocol.ChatMessage{Username: c.local.Username, Message: message})
}

func (c *Client) SendGameStart(seed int32, level string) error {
	if !c.IsHost() {
		return ErrNotHost
	}
	return c.sendReliable(&protocol.GameStart{Seed: seed, Level: level})
}

func (c *Client) SendGameAction(action string, payload []byte) error {
	return c.sendReliable(&protocol.GameAction{PlayerID: c.local.ID, Action: action, Payload: payload})
}

func (c *Client) SendSpellCast(spell string, x, y, targetX, targetY float32) error {
	return c.sendReliable(&protocol.SpellCast{
		PlayerID: c.local.ID,
		Spell:    spell,
		X:        x,
		Y:        y,
		TargetX:  targetX,
		TargetY:  targetY,
	})
}

func (c *Client) SendSpellUpgrade(spell string, level int32) error {
	return c.sendReliable(&protocol.SpellUpgrade{PlayerID: c.local.ID, Spell: spell, Level: level})
}

func (c *Client) SendVoice(data []byte) error {
	tc, err := c.conn()
	if err != nil {
		return err
	}
	return tc.SendUnreliable(&protocol.VoicePacket{PlayerID: c.local.ID, Data: data})
}

func (c *Client) sendReliable(m protocol.ReliableMessage) error {
	tc, err := c.conn()
	if err != nil {
		return err
	}
	return tc.SendReliable(m)
}

// Received runs on the transport's dispatch goroutine.
func (c *Client) Received(msg protocol.Message) {
	switch m := msg.(type) {
	case *protocol.PlayerJoin:
		if m.PlayerID == c.local.ID {
			return
		}
		c.roster.join(m)
		c.listeners.each(func(l Listener) { l.PlayerJoined(m) })
	case *protocol.PlayerPositionUpdate:
		if m.PlayerID == c.local.ID {
			return
		}
		c.roster.apply(m)
		c.listeners.each(func(l Listener) { l.PositionUpdated(m) })
	case *protocol.ChatMessage:
		c.listeners.each(func(l Listener) { l.ChatReceived(m) })
	case *protocol.PlayerDisconnect:
		c.roster.remove(m.PlayerID)
		c.listeners.each(func(l Listener) { l.PlayerLeft(m.PlayerID) })
	case *protocol.HostMigration:
		if m.NewHostID.IsZero() {
			// the absent host only means something once our own
			// connection is gone, which Disconnected handles.
			c.logger.Warn().Msg("ignoring host migration without a host")
			return
		}
		c.setHost(m.NewHostID)
	case *protocol.GameStart, *protocol.GameAction, *protocol.SpellCast, *protocol.SpellUpgrade, *protocol.VoicePacket:
		c.listeners.each(func(l Listener) { l.Gameplay(m) })
	default:
		c.logger.Warn().
			Stringer("kind", msg.Kind()).
			Msg("unexpected message in session")
	}
}

func (c *Client) setHost(id protocol.PlayerID) {
	c.mu.Lock()
	changed := c.hostID != id
	c.hostID = id
	c.mu.Unlock()

	if !changed {
		return
	}

	local := id == c.local.ID
	if local {
		c.logger.Info().Msg("local player is now the host")
	} else {
		c.logger.Info().Str("host", id.String()).Msg("host changed")
	}
	c.listeners.each(func(l Listener) { l.HostChanged(id, local) })
}

// Disconnected is the single departure signal; timeouts and clean closes
// are not told apart.
func (c *Client) Disconnected() {
	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()

	c.setHost(protocol.NoPlayer)
	c.roster.clear()

	c.logger.Info().Msg("disconnected from session")
	c.listeners.each(func(l Listener) { l.Disconnected() })
}
