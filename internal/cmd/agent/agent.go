// Package agent parses agent command flags and starts the battle
// engine runtime.
package agent

import (
	"context"
	"errors"
	"flag"
	"log/slog"

	agentplayer "github.com/louisbranch/emberclash/internal/agent"
	"github.com/louisbranch/emberclash/internal/battle/engine"
	entrypoint "github.com/louisbranch/emberclash/internal/platform/cmd"
	"github.com/louisbranch/emberclash/internal/storage/sqlite"
	"github.com/louisbranch/emberclash/internal/transport/ws"
)

// Config holds agent command configuration.
type Config struct {
	Player     string `env:"EMBERCLASH_PLAYER"`
	FeedURL    string `env:"EMBERCLASH_FEED_URL" envDefault:"ws://localhost:8080/v1/events"`
	GatewayURL string `env:"EMBERCLASH_GATEWAY_URL" envDefault:"http://localhost:8080"`
	DBPath     string `env:"EMBERCLASH_DB_PATH" envDefault:"emberclash.db"`
	Autoplay   bool   `env:"EMBERCLASH_AUTOPLAY" envDefault:"true"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.Player, "player", cfg.Player, "The local player id")
	fs.StringVar(&cfg.FeedURL, "feed-url", cfg.FeedURL, "The ledger event feed websocket URL")
	fs.StringVar(&cfg.GatewayURL, "gateway-url", cfg.GatewayURL, "The ledger gateway base URL")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "The battle snapshot database path")
	fs.BoolVar(&cfg.Autoplay, "autoplay", cfg.Autoplay, "Play moves automatically")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the battle agent.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceAgent, func(ctx context.Context) error {
		logger := slog.Default().With("service", entrypoint.ServiceAgent)

		store, err := sqlite.Open(cfg.DBPath)
		if err != nil {
			return err
		}
		defer store.Close()

		client, err := ws.NewClient(ws.Config{
			FeedURL:    cfg.FeedURL,
			GatewayURL: cfg.GatewayURL,
			Player:     cfg.Player,
			Logger:     logger,
		})
		if err != nil {
			return err
		}

		eng, err := engine.New(engine.Config{
			Self:      cfg.Player,
			Transport: client,
			Snapshots: store,
			Logger:    logger,
		})
		if err != nil {
			return err
		}

		runErr := make(chan error, 1)
		go func() { runErr <- client.Run(ctx) }()

		if err := eng.ResumeAll(ctx); err != nil {
			logger.Warn("failed to resume persisted battles", "error", err)
		}

		if cfg.Autoplay {
			player, err := agentplayer.New(agentplayer.Config{Submitter: eng, Logger: logger})
			if err != nil {
				return err
			}
			sub := eng.Subscribe(64)
			defer sub.Cancel()
			go func() {
				if err := player.Run(ctx, sub.Events()); err != nil && ctx.Err() == nil {
					logger.Warn("autoplay stopped", "error", err)
				}
			}()
		}

		for evt := range client.Events() {
			eng.HandleEvent(ctx, evt)
		}
		if err := <-runErr; err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
}
