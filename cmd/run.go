package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/wxrelay/wxrelay/internal/channels/wxauto"
	"github.com/wxrelay/wxrelay/internal/config"
	"github.com/wxrelay/wxrelay/internal/providers"
	"github.com/wxrelay/wxrelay/internal/relay"
	"github.com/wxrelay/wxrelay/internal/store"
	"github.com/wxrelay/wxrelay/internal/store/replydb"
)

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the relay (default command)",
		Run: func(cmd *cobra.Command, args []string) {
			runRelay()
		},
	}
}

func newLogger() zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

func runRelay() {
	log := newLogger()

	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if os.Getenv(cfg.API.APIKeyEnv) == "" {
		log.Fatal().Str("env", cfg.API.APIKeyEnv).Msg("api key env var is not set")
	}

	st, err := store.Open(cfg.Storage.BaseDir, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open session store")
	}

	client := providers.NewOpenAIClient(providers.OpenAIConfig{
		Endpoint:    cfg.API.Endpoint,
		APIKeyEnv:   cfg.API.APIKeyEnv,
		Model:       cfg.API.Model,
		MaxTokens:   cfg.API.MaxOutputTokens,
		Stream:      cfg.API.Stream,
		Timeout:     time.Duration(cfg.API.TimeoutSeconds) * time.Second,
		ExtraParams: cfg.API.ExtraParams,
	})

	adapter := wxauto.New(wxauto.Config{
		BaseURL:           cfg.Adapter.BaseURL,
		Timeout:           time.Duration(cfg.Adapter.TimeoutSeconds) * time.Second,
		SendRatePerSecond: cfg.Adapter.SendRatePerSecond,
	}, log)

	rl := relay.New(cfg, st, client, adapter, log)

	if cfg.Storage.ReplyDBPath != "" {
		db, err := replydb.Open(cfg.Storage.ReplyDBPath)
		if err != nil {
			log.Warn().Err(err).Msg("reply mirror disabled")
		} else {
			defer db.Close()
			rl.SetReplyDB(db)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return config.Watch(ctx, cfgPath, log, rl.ApplyConfig)
	})
	g.Go(func() error {
		return pollLoop(ctx, cfg, adapter, rl, log)
	})

	log.Info().Str("adapter", cfg.Adapter.BaseURL).Str("model", cfg.API.Model).Msg("wxrelay started")
	if err := g.Wait(); err != nil && ctx.Err() == nil {
		log.Fatal().Err(err).Msg("relay stopped")
	}
	log.Info().Msg("wxrelay stopped")
}

// pollLoop drives the pipeline: fetch raw events, normalize, and handle
// them one at a time. Poll and handler errors are logged and the loop
// carries on; only storage failures come back from HandleMessage.
func pollLoop(ctx context.Context, cfg *config.Config, adapter *wxauto.Adapter, rl *relay.Relay, log zerolog.Logger) error {
	interval := time.Duration(cfg.Adapter.PollIntervalSeconds * float64(time.Second))
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		raws, err := adapter.PollMessages(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("poll failed")
			continue
		}
		for _, raw := range raws {
			msg := adapter.ParseRaw(raw)
			if err := rl.HandleMessage(ctx, msg); err != nil {
				log.Error().Err(err).Str("msg_id", msg.MessageID).Msg("event handling failed")
			}
		}
	}
}
