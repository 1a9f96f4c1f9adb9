package protocol

// Direction is sent as its ordinal.
type Direction uint8

const (
	DirectionNone Direction = iota
	DirectionUp
	DirectionDown
	DirectionLeft
	DirectionRight
)

var (
	_ ReliableMessage   = (*PlayerJoin)(nil)
	_ ReliableMessage   = (*PlayerDisconnect)(nil)
	_ UnreliableMessage = (*PlayerPositionUpdate)(nil)
	_ ReliableMessage   = (*ChatMessage)(nil)
	_ ReliableMessage   = (*HostMigration)(nil)
	_ ReliableMessage   = (*GameStart)(nil)
	_ ReliableMessage   = (*GameAction)(nil)
	_ ReliableMessage   = (*SpellCast)(nil)
	_ ReliableMessage   = (*SpellUpgrade)(nil)
	_ UnreliableMessage = (*VoicePacket)(nil)
	_ ReliableMessage   = (*LobbyJoinRequest)(nil)
	_ ReliableMessage   = (*LobbyJoinResponse)(nil)
	_ ReliableMessage   = (*LobbyRosterUpdate)(nil)
)

type PlayerJoin struct {
	reliableChannel

	PlayerID PlayerID
	Username string
	Color    string
	X, Y     float32
}

func (*PlayerJoin) Kind() Kind { return KindPlayerJoin }

func (m *PlayerJoin) encodeBody(e *encoder) {
	e.playerID(m.PlayerID)
	e.string(m.Username)
	e.string(m.Color)
	e.float32(m.X)
	e.float32(m.Y)
}

func (m *PlayerJoin) decodeBody(d *decoder) {
	m.PlayerID = d.playerID()
	m.Username = d.string()
	m.Color = d.string()
	m.X = d.float32()
	m.Y = d.float32()
}

type PlayerDisconnect struct {
	reliableChannel

	PlayerID PlayerID
}

func (*PlayerDisconnect) Kind() Kind { return KindPlayerDisconnect }

func (m *PlayerDisconnect) encodeBody(e *encoder) { e.playerID(m.PlayerID) }
func (m *PlayerDisconnect) decodeBody(d *decoder) { m.PlayerID = d.playerID() }

// PlayerPositionUpdate is absolute state, never a delta, so applying a
// duplicate or a reordered copy is harmless.
type PlayerPositionUpdate struct {
	unreliableChannel

	PlayerID       PlayerID
	X, Y           float32
	Direction      Direction
	IsMoving       bool
	Color          string
	FlipX, FlipY   bool
	AnimationFrame int32
	LegSprite      string
}

func (*PlayerPositionUpdate) Kind() Kind { return KindPlayerPositionUpdate }

func (m *PlayerPositionUpdate) encodeBody(e *encoder) {
	e.playerID(m.PlayerID)
	e.float32(m.X)
	e.float32(m.Y)
	e.uint8(uint8(m.Direction))
	e.bool(m.IsMoving)
	e.string(m.Color)
	e.bool(m.FlipX)
	e.bool(m.FlipY)
	e.int32(m.AnimationFrame)
	e.string(m.LegSprite)
}

func (m *PlayerPositionUpdate) decodeBody(d *decoder) {
	m.PlayerID = d.playerID()
	m.X = d.float32()
	m.Y = d.float32()
	m.Direction = Direction(d.uint8())
	m.IsMoving = d.bool()
	m.Color = d.string()
	m.FlipX = d.bool()
	m.FlipY = d.bool()
	m.AnimationFrame = d.int32()
	m.LegSprite = d.string()
}

type ChatMessage struct {
	reliableChannel

	Username string
	Message  string
}

func (*ChatMessage) Kind() Kind { return KindChatMessage }

func (m *ChatMessage) encodeBody(e *encoder) {
	e.string(m.Username)
	e.string(m.Message)
}

func (m *ChatMessage) decodeBody(d *decoder) {
	m.Username = d.string()
	m.Message = d.string()
}

// HostMigration names the current authority. NoPlayer means there is no
// host, which a client only ever sees when its own connection dropped.
type HostMigration struct {
	reliableChannel

	NewHostID PlayerID
}

func (*HostMigration) Kind() Kind { return KindHostMigration }

func (m *HostMigration) encodeBody(e *encoder) { e.playerID(m.NewHostID) }
func (m *HostMigration) decodeBody(d *decoder) { m.NewHostID = d.playerID() }

// gameplay messages below are opaque to the session layer and only relayed.

type GameStart struct {
	reliableChannel

	Seed  int32
	Level string
}

func (*GameStart) Kind() Kind { return KindGameStart }

func (m *GameStart) encodeBody(e *encoder) {
	e.int32(m.Seed)
	e.string(m.Level)
}

func (m *GameStart) decodeBody(d *decoder) {
	m.Seed = d.int32()
	m.Level = d.string()
}

type GameAction struct {
	reliableChannel

	PlayerID PlayerID
	Action   string
	Payload  []byte
}

func (*GameAction) Kind() Kind { return KindGameAction }

func (m *GameAction) encodeBody(e *encoder) {
	e.playerID(m.PlayerID)
	e.string(m.Action)
	e.bytes(m.Payload)
}

func (m *GameAction) decodeBody(d *decoder) {
	m.PlayerID = d.playerID()
	m.Action = d.string()
	m.Payload = d.bytes()
}

type SpellCast struct {
	reliableChannel

	PlayerID         PlayerID
	Spell            string
	X, Y             float32
	TargetX, TargetY float32
}

func (*SpellCast) Kind() Kind { return KindSpellCast }

func (m *SpellCast) encodeBody(e *encoder) {
	e.playerID(m.PlayerID)
	e.string(m.Spell)
	e.float32(m.X)
	e.float32(m.Y)
	e.float32(m.TargetX)
	e.float32(m.TargetY)
}

func (m *SpellCast) decodeBody(d *decoder) {
	m.PlayerID = d.playerID()
	m.Spell = d.string()
	m.X = d.float32()
	m.Y = d.float32()
	m.TargetX = d.float32()
	m.TargetY = d.float32()
}

type SpellUpgrade struct {
	reliableChannel

	PlayerID PlayerID
	Spell    string
	Level    int32
}

func (*SpellUpgrade) Kind() Kind { return KindSpellUpgrade }

func (m *SpellUpgrade) encodeBody(e *encoder) {
	e.playerID(m.PlayerID)
	e.string(m.Spell)
	e.int32(m.Level)
}

func (m *SpellUpgrade) decodeBody(d *decoder) {
	m.PlayerID = d.playerID()
	m.Spell = d.string()
	m.Level = d.int32()
}

type VoicePacket struct {
	unreliableChannel

	PlayerID PlayerID
	Data     []byte
}

func (*VoicePacket) Kind() Kind { return KindVoicePacket }

func (m *VoicePacket) encodeBody(e *encoder) {
	e.playerID(m.PlayerID)
	e.bytes(m.Data)
}

func (m *VoicePacket) decodeBody(d *decoder) {
	m.PlayerID = d.playerID()
	m.Data = d.bytes()
}
