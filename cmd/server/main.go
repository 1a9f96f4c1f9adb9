package main

import (
	"errors"
	"fmt"
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
	// Mode is "session" for a hosted game or "lobby" for a join-code room.
	Mode     string        `envconfig:"MODE" default:"session"`
	Name     string        `envconfig:"NAME" default:"coopnet"`
	Username string        `envconfig:"USERNAME" default:"host"`
	Color    string        `envconfig:"COLOR" default:"purple"`
	Tick     time.Duration `envconfig:"TICK" default:"16ms"`

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

func waitForSignal(logger *log.Logger, done <-chan struct{}) {
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(signalChan)

	select {
	case sig := <-signalChan:
		logger.Info().Msgf("received %+v signal", sig)
	case <-done:
	}
}

func runLobby(config *Config, logger *log.Logger) error {
	room, err := lobby.NewRoom(config.Lobby, logger)
	if err != nil {
		return fmt.Errorf("could not open lobby room: %w", err)
	}
	logger.Info().Msgf("lobby room %s open on %s", room.Code(), room.Addr())

	// an emptied room closes itself.
	waitForSignal(logger, room.Done())
	return room.Close()
}

func runSession(config *Config, logger *log.Logger) error {
	local := session.LocalPlayer{
		ID:       protocol.NewPlayerID(),
		Username: config.Username,
		Color:    config.Color,
	}

	host, err := session.NewHost(config.Session, local.ID, logger)
	if err != nil {
		return fmt.Errorf("could not start host: %w", err)
	}
	defer host.Close()

	// the host is also a player, joined over loopback like everyone else.
	client := session.NewClient(config.Session, local, logger)
	visuals := world.NewLogVisuals(logger)
	w := world.New(config.World, client, visuals, visuals, logger)
	client.Subscribe(w)

	if err := client.Connect(host.LoopbackAddrs()); err != nil {
		return err
	}
	defer client.Close()

	broadcaster := discovery.NewBroadcaster(config.Discovery, discovery.ServerInfo{
		Name:           config.Name,
		HostUsername:   config.Username,
		ReliablePort:   host.ReliablePort(),
		UnreliablePort: host.UnreliablePort(),
	}, host.PlayerCount, logger)
	broadcaster.Start()
	defer broadcaster.Stop()

	logger.Info().Msgf("hosting %q on %d/%d", config.Name, host.ReliablePort(), host.UnreliablePort())

	stop := make(chan struct{})
	go func() {
		waitForSignal(logger, nil)
		close(stop)
	}()

	ticker := time.NewTicker(config.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return nil
		case now := <-ticker.C:
			w.Tick(now)
			if !client.Connected() {
				return errors.New("host player lost its own session")
			}
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
		fmt.Fprintf(os.Stderr, "coopnet server: %v\n", err)
		os.Exit(42)
	}
}
