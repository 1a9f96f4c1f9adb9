package session

import (
	"slices"
	"sync"

	"github.com/blukai/coopnet/internal/protocol"
)

// RosterEntry is the last known state of a player.
type RosterEntry struct {
	ID             protocol.PlayerID
	Username       string
	Color          string
	X, Y           float32
	Direction      protocol.Direction
	Moving         bool
	FlipX, FlipY   bool
	AnimationFrame int32
	LegSprite      string

	// Placeholder is set while the entry was synthesized from a position
	// update and no join has been seen yet.
	Placeholder bool
}

// PlaceholderName is the stable name given to a player known only from its
// position updates.
func PlaceholderName(id protocol.PlayerID) string {
	return "Player-" + id.Short()
}

// roster is written only from a transport dispatch goroutine; the lock is
// there for snapshot readers on other goroutines.
type roster struct {
	mu      sync.RWMutex
	entries map[protocol.PlayerID]*RosterEntry
	order   []protocol.PlayerID
}

func newRoster() *roster {
	return &roster{entries: make(map[protocol.PlayerID]*RosterEntry)}
}

// join creates or refreshes an entry from a join message. A late or
// duplicate join never creates a second entry.
func (r *roster) join(m *protocol.PlayerJoin) (created bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[m.PlayerID]
	if !ok {
		entry = &RosterEntry{ID: m.PlayerID}
		r.entries[m.PlayerID] = entry
		r.order = append(r.order, m.PlayerID)
	}
	entry.Username = m.Username
	entry.Color = m.Color
	entry.X, entry.Y = m.X, m.Y
	entry.Placeholder = false
	return !ok
}

// apply sets the absolute state carried by m. Unknown players get a
// placeholder entry so the roster converges even when the join was lost
// or is still in flight on the other channel.
func (r *roster) apply(m *protocol.PlayerPositionUpdate) (created bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[m.PlayerID]
	if !ok {
		entry = &RosterEntry{
			ID:          m.PlayerID,
			Username:    PlaceholderName(m.PlayerID),
			Placeholder: true,
		}
		r.entries[m.PlayerID] = entry
		r.order = append(r.order, m.PlayerID)
	}
	entry.X, entry.Y = m.X, m.Y
	entry.Direction = m.Direction
	entry.Moving = m.IsMoving
	if m.Color != "" {
		entry.Color = m.Color
	}
	entry.FlipX, entry.FlipY = m.FlipX, m.FlipY
	entry.AnimationFrame = m.AnimationFrame
	entry.LegSprite = m.LegSprite
	return !ok
}

func (r *roster) remove(id protocol.PlayerID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[id]; !ok {
		return false
	}
	delete(r.entries, id)
	r.order = slices.DeleteFunc(r.order, func(other protocol.PlayerID) bool { return other == id })
	return true
}

func (r *roster) get(id protocol.PlayerID) (RosterEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.entries[id]
	if !ok {
		return RosterEntry{}, false
	}
	return *entry, true
}

func (r *roster) clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	clear(r.entries)
	r.order = nil
}

func (r *roster) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// snapshot returns entries in the order players were first seen.
func (r *roster) snapshot() []RosterEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := make([]RosterEntry, 0, len(r.order))
	for _, id := range r.order {
		entries = append(entries, *r.entries[id])
	}
	return entries
}
