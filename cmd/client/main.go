package main

import (
	"errors"
	"fmt"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/blukai/coopnet/internal/discovery"
	"github.com/blukai/coopnet/internal/lobby"
	"github.com/blukai/coopnet/internal/logger"
	"github.com/blukai/coopnet/internal/protocol"
	"github.com/blukai/coopnet/internal/session"
	"github.com/blukai/coopnet/internal/world"
	"github.com/kelseyhightower/envconfig"
	"github.com/phuslu/log"
)

type Config struct {
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	// Mode is "session" to play or "lobby" to sit in a join-code room.
	Mode     string        `envconfig:"MODE" default:"session"`
	Username string        `envconfig:"USERNAME" default:"player"`
	Color    string        `envconfig:"COLOR" default:"green"`
	Tick     time.Duration `envconfig:"TICK" default:"16ms"`

	// ReliableAddr skips discovery when set; UnreliableAddr may then stay
	// empty for a reliable-only session.
	ReliableAddr    string        `envconfig:"RELIABLE_ADDR"`
	UnreliableAddr  string        `envconfig:"UNRELIABLE_ADDR"`
	DiscoverTimeout time.Duration `envconfig:"DISCOVER_TIMEOUT" default:"10s"`

	LobbyAddr string `envconfig:"LOBBY_ADDR" default:"127.0.0.1:54557"`
	LobbyCode string `envconfig:"LOBBY_CODE"`

	Session   session.Config   `envconfig:"SESSION"`
	Discovery discovery.Config `envconfig:"DISCOVERY"`
	Lobby     lobby.Config     `envconfig:"LOBBY"`
	World     world.Config     `envconfig:"WORLD"`
}

func loadConfig() (*Config, error) {
	config := new(Config)
	if err := envconfig.Process("COOPNET", config); err != nil {
		return nil, err
	}
	return config, nil
}

func signals() <-chan os.Signal {
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGTERM, syscall.SIGINT)
	return signalChan
}

// discover waits for the first server announced on the LAN.
func discover(config *Config, logger *log.Logger) (discovery.Server, error) {
	listener := discovery.NewListener(config.Discovery, logger)
	if err := listener.Start(); err != nil {
		return discovery.Server{}, fmt.Errorf("could not listen for servers: %w", err)
	}
	defer listener.Stop()

	found := make(chan discovery.Server, 1)
	unsubscribe := listener.Subscribe(func(s discovery.Server) {
		select {
		case found <- s:
		default:
		}
	})
	defer unsubscribe()

	// something may have been heard before we subscribed
	if servers := listener.Servers(); len(servers) > 0 {
		return servers[0], nil
	}

	logger.Info().Msg("looking for servers")
	select {
	case s := <-found:
		return s, nil
	case <-time.After(config.DiscoverTimeout):
		return discovery.Server{}, errors.New("no server found")
	}
}

func runSession(config *Config, logger *log.Logger) error {
	reliable, unreliable := config.ReliableAddr, config.UnreliableAddr
	if reliable == "" {
		server, err := discover(config, logger)
		if err != nil {
			return err
		}
		logger.Info().
			Str("name", server.Name).
			Str("host", server.HostUsername).
			Int("players", server.PlayerCount).
			Msg("found server")
		reliable, unreliable = server.ReliableAddress(), server.UnreliableAddress()
	}

	client := session.NewClient(config.Session, session.LocalPlayer{
		ID:       protocol.NewPlayerID(),
		Username: config.Username,
		Color:    config.Color,
	}, logger)
	visuals := world.NewLogVisuals(logger)
	w := world.New(config.World, client, visuals, visuals, logger)
	w.OnGameplay(func(msg protocol.Message) {
		logger.Info().Stringer("kind", msg.Kind()).Msg("gameplay")
	})
	client.Subscribe(w)

	if err := client.Connect(reliable, unreliable); err != nil {
		return err
	}
	defer client.Close()

	if err := client.SendChat("hello from " + config.Username); err != nil {
		logger.Warn().Msgf("could not greet: %v", err)
	}

	stop := signals()
	ticker := time.NewTicker(config.Tick)
	defer ticker.Stop()

	start := time.Now()
	for {
		select {
		case sig := <-stop:
			logger.Info().Msgf("received %+v signal", sig)
			return nil
		case now := <-ticker.C:
			// walk in a circle so there is something to replicate
			phase := now.Sub(start).Seconds()
			w.SetLocalState(world.PlayerState{
				Username: config.Username,
				Color:    config.Color,
				X:        float32(100 * math.Cos(phase)),
				Y:        float32(100 * math.Sin(phase)),
				Moving:   true,
			})
			w.Tick(now)

			if !client.Connected() {
				return errors.New("session ended")
			}
		}
	}
}

func runLobby(config *Config, logger *log.Logger) error {
	client, err := lobby.Join(config.Lobby, config.LobbyAddr, config.LobbyCode, protocol.LobbyPlayer{
		ID:       protocol.NewPlayerID(),
		Username: config.Username,
	}, logger)
	if err != nil {
		return err
	}
	defer client.Close()

	roster := client.Roster()
	logger.Info().Int("players", len(roster.Players)).Bool("host", client.IsHost()).Msg("in lobby")

	stop := signals()
	for {
		select {
		case sig := <-stop:
			logger.Info().Msgf("received %+v signal", sig)
			return nil
		case roster, ok := <-client.Updates():
			if !ok {
				return errors.New("lobby closed")
			}
			logger.Info().
				Int("players", len(roster.Players)).
				Bool("host", roster.HostID == client.Player().ID).
				Msg("lobby changed")
		case chat, ok := <-client.Chat():
			if !ok {
				return errors.New("lobby closed")
			}
			logger.Info().Str("from", chat.Username).Msg(chat.Message)
		}
	}
}

func erringMain() error {
	config, err := loadConfig()
	if err != nil {
		return fmt.Errorf("could not process config: %w", err)
	}

	logger := logger.Console(config.LogLevel)

	switch config.Mode {
	case "session":
		return runSession(config, logger)
	case "lobby":
		return runLobby(config, logger)
	default:
		return fmt.Errorf("unknown mode %q", config.Mode)
	}
}

func main() {
	if err := erringMain(); err != nil {
		fmt.Fprintf(os.Stderr, "coopnet client: %v\n", err)
		os.Exit(42)
	}
}
