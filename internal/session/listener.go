package session

import (
	"slices"
	"sync"

	"github.com/blukai/coopnet/internal/protocol"
)

// Listener observes a client session. Methods are called synchronously, in
// subscription order, on the goroutine that received the event; they must
// not block for long and must not touch main-loop state directly.
type Listener interface {
	PlayerJoined(join *protocol.PlayerJoin)
	PlayerLeft(id protocol.PlayerID)
	PositionUpdated(update *protocol.PlayerPositionUpdate)
	ChatReceived(chat *protocol.ChatMessage)
	// HostChanged with protocol.NoPlayer means the local connection is gone.
	HostChanged(hostID protocol.PlayerID, local bool)
	// Gameplay receives GameStart, GameAction, SpellCast, SpellUpgrade and
	// VoicePacket untouched.
	Gameplay(msg protocol.Message)
	Disconnected()
}

// NopListener can be embedded to implement only some of Listener.
type NopListener struct{}

func (NopListener) PlayerJoined(*protocol.PlayerJoin)              {}
func (NopListener) PlayerLeft(protocol.PlayerID)                   {}
func (NopListener) PositionUpdated(*protocol.PlayerPositionUpdate) {}
func (NopListener) ChatReceived(*protocol.ChatMessage)             {}
func (NopListener) HostChanged(protocol.PlayerID, bool)            {}
func (NopListener) Gameplay(protocol.Message)                      {}
func (NopListener) Disconnected()                                  {}

var _ Listener = NopListener{}

type registration struct {
	id       int
	listener Listener
}

type listeners struct {
	mu     sync.Mutex
	regs   []registration
	nextID int
}

func (ls *listeners) add(l Listener) (remove func()) {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	ls.nextID++
	id := ls.nextID
	ls.regs = append(ls.regs, registration{id: id, listener: l})

	return func() {
		ls.mu.Lock()
		defer ls.mu.Unlock()
		ls.regs = slices.DeleteFunc(ls.regs, func(r registration) bool { return r.id == id })
	}
}

func (ls *listeners) each(fn func(Listener)) {
	ls.mu.Lock()
	regs := slices.Clone(ls.regs)
	ls.mu.Unlock()

	for _, r := range regs {
		fn(r.listener)
	}
}
