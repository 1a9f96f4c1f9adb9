package lobby

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/blukai/coopnet/internal/logger"
	"github.com/blukai/coopnet/internal/protocol"
	"github.com/blukai/coopnet/internal/transport"
	"github.com/phuslu/log"
)

var (
	ErrRejected    = errors.New("join rejected")
	ErrJoinTimeout = errors.New("timed out waiting for the room")
	ErrLeft        = errors.New("connection to the room was lost")
)

// Roster is a room's membership at one point in time.
type Roster struct {
	HostID  protocol.PlayerID
	Players []protocol.LobbyPlayer
}

type Client struct {
	logger    *log.Logger
	player    protocol.LobbyPlayer
	transport *transport.Client

	response chan *protocol.LobbyJoinResponse
	updates  chan Roster
	chat     chan *protocol.ChatMessage
	done     chan struct{}

	mu     sync.RWMutex
	roster Roster
}

var _ transport.ClientHandler = (*Client)(nil)

// Join connects to the room at address and blocks until it answered. A
// refusal is returned as an error wrapping ErrRejected with the room's
// reason.
func Join(cfg Config, address, code string, player protocol.LobbyPlayer, l *log.Logger) (*Client, error) {
	if player.ID.IsZero() {
		player.ID = protocol.NewPlayerID()
	}

	c := &Client{
		logger: logger.OrDiscard(l),
		player: player,

		response: make(chan *protocol.LobbyJoinResponse, 1),
		updates:  make(chan Roster, 16),
		chat:     make(chan *protocol.ChatMessage, 16),
		done:     make(chan struct{}),
	}

	tc, err := transport.Dial(cfg.Transport, address, "", c, l)
	if err != nil {
		return nil, fmt.Errorf("could not connect to lobby: %w", err)
	}
	c.transport = tc

	go func() {
		defer close(c.done)
		if err := tc.Run(context.Background()); err != nil {
			c.logger.Debug().Msgf("lobby client run ended: %v", err)
		}
	}()

	err = tc.SendReliable(&protocol.LobbyJoinRequest{
		Code:     NormalizeCode(code),
		PlayerID: player.ID,
		Username: player.Username,
	})
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("could not send join request: %w", err)
	}

	select {
	case resp, ok := <-c.response:
		if !ok {
			c.Close()
			return nil, ErrLeft
		}
		if !resp.Accepted {
			c.Close()
			return nil, fmt.Errorf("%w: %s", ErrRejected, resp.Reason)
		}
	case <-time.After(cfg.JoinTimeout):
		c.Close()
		return nil, ErrJoinTimeout
	}

	c.logger.Info().
		Str("player", player.ID.String()).
		Str("host", c.HostID().String()).
		Msg("joined lobby")

	return c, nil
}

func (c *Client) Player() protocol.LobbyPlayer {
	return c.player
}

func (c *Client) Roster() Roster {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Roster{HostID: c.roster.HostID, Players: slices.Clone(c.roster.Players)}
}

func (c *Client) HostID() protocol.PlayerID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.roster.HostID
}

func (c *Client) IsHost() bool {
	return c.HostID() == c.player.ID
}

// Updates delivers every roster change and is closed when the connection
// ends.
func (c *Client) Updates() <-chan Roster {
	return c.updates
}

// Chat is closed when the connection ends.
func (c *Client) Chat() <-chan *protocol.ChatMessage {
	return c.chat
}

func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) SendChat(message string) error {
	return c.transport.SendReliable(&protocol.ChatMessage{Username: c.player.Username, Message: message})
}

func (c *Client) Close() error {
	err := c.transport.Close()
	<-c.done
	return err
}

func (c *Client) setRoster(hostID protocol.PlayerID, players []protocol.LobbyPlayer) {
	c.mu.Lock()
	c.roster = Roster{HostID: hostID, Players: players}
	c.mu.Unlock()
}

func (c *Client) Received(msg protocol.Message) {
	switch m := msg.(type) {
	case *protocol.LobbyJoinResponse:
		if m.Accepted {
			c.setRoster(m.HostID, m.Players)
		}
		select {
		case c.response <- m:
		default:
			c.logger.Warn().Msg("unexpected second join response")
		}
	case *protocol.LobbyRosterUpdate:
		c.setRoster(m.HostID, m.Players)
		select {
		case c.updates <- Roster{HostID: m.HostID, Players: slices.Clone(m.Players)}:
		default:
			c.logger.Warn().Msg("roster updates not consumed, dropping one")
		}
	case *protocol.ChatMessage:
		select {
		case c.chat <- m:
		default:
			c.logger.Warn().Msg("lobby chat not consumed, dropping one")
		}
	default:
		c.logger.Warn().
			Stringer("kind", msg.Kind()).
			Msg("unexpected message from lobby")
	}
}

func (c *Client) Disconnected() {
	close(c.response)
	close(c.updates)
	close(c.chat)
}
