package session

import (
	"slices"

	"github.com/blukai/coopnet/internal/protocol"
)

// playerOrder is the join-ordered list of players plus the host pointer.
// The successor of a departing host is the head of the list after the
// removal; both happen in remove so there is no moment where the host
// points at a removed player.
type playerOrder struct {
	ids  []protocol.PlayerID
	host protocol.PlayerID
}

func newPlayerOrder(host protocol.PlayerID) *playerOrder {
	return &playerOrder{
		ids:  []protocol.PlayerID{host},
		host: host,
	}
}

// add appends id unless it is already listed. When every player has left
// the first newcomer becomes host.
func (o *playerOrder) add(id protocol.PlayerID) bool {
	if slices.Contains(o.ids, id) {
		return false
	}
	o.ids = append(o.ids, id)
	if o.host.IsZero() {
		o.host = id
	}
	return true
}

// remove drops id and reports whether the host pointer moved. The pointer
// becomes NoPlayer only when the list is empty.
func (o *playerOrder) remove(id protocol.PlayerID) (newHost protocol.PlayerID, migrated bool) {
	i := slices.Index(o.ids, id)
	if i < 0 {
		return o.host, false
	}
	o.ids = slices.Delete(o.ids, i, i+1)

	if id != o.host {
		return o.host, false
	}

	if len(o.ids) > 0 {
		o.host = o.ids[0]
	} else {
		o.host = protocol.NoPlayer
	}
	return o.host, true
}

func (o *playerOrder) list() []protocol.PlayerID {
	return slices.Clone(o.ids)
}
