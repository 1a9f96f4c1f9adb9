package world

import (
	"github.com/blukai/coopnet/internal/logger"
	"github.com/blukai/coopnet/internal/protocol"
	"github.com/phuslu/log"
)

// LogVisuals draws players and chat into a log. Headless peers use it.
type LogVisuals struct {
	logger *log.Logger
}

var (
	_ Visuals     = (*LogVisuals)(nil)
	_ ChatDisplay = (*LogVisuals)(nil)
)

func NewLogVisuals(l *log.Logger) *LogVisuals {
	return &LogVisuals{logger: logger.OrDiscard(l)}
}

func (v *LogVisuals) CreatePlayer(id protocol.PlayerID, x, y float32, color string) Sprite {
	v.logger.Info().
		Str("player", id.String()).
		Float32("x", x).
		Float32("y", y).
		Str("color", color).
		Msg("player appeared")
	return &logSprite{logger: v.logger, id: id}
}

func (v *LogVisuals) ShowChat(username, message string) {
	v.logger.Info().Str("from", username).Msg(message)
}

type logSprite struct {
	logger *log.Logger
	id     protocol.PlayerID
	last   PlayerState
}

func (s *logSprite) SetState(state PlayerState) {
	if state == s.last {
		return
	}
	s.last = state
	s.logger.Debug().
		Str("player", s.id.Short()).
		Str("username", state.Username).
		Float32("x", state.X).
		Float32("y", state.Y).
		Bool("moving", state.Moving).
		Msg("player moved")
}

func (s *logSprite) Destroy() {
	s.logger.Info().
		Str("player", s.id.String()).
		Str("username", s.last.Username).
		Msg("player gone")
}
