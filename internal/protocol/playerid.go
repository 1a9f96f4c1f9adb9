package protocol

import (
	"fmt"

	"github.com/google/uuid"
)

// PlayerID is assigned client-side when a player is created and never
// reused.
type PlayerID uuid.UUID

// NoPlayer is the absent id. HostMigration carries it to say that no host
// exists anymore.
var NoPlayer = PlayerID(uuid.Nil)

func NewPlayerID() PlayerID {
	return PlayerID(uuid.New())
}

func ParsePlayerID(s string) (PlayerID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return NoPlayer, fmt.Errorf("could not parse player id %q: %w", s, err)
	}
	return PlayerID(id), nil
}

func (id PlayerID) String() string {
	return uuid.UUID(id).String()
}

func (id PlayerID) IsZero() bool {
	return id == NoPlayer
}

// Short is the first 8 hex characters of the id.
func (id PlayerID) Short() string {
	return id.String()[:8]
}
