package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/rs/zerolog"

	"polynotify/internal/api"
	"polynotify/internal/clob"
	"polynotify/internal/config"
	"polynotify/internal/discord"
	"polynotify/internal/relay"
	"polynotify/internal/store"
	"polynotify/internal/telegram"
	"polynotify/pkg/logx"
)

func main() {
	var configDir string
	flag.StringVar(&configDir, "config-dir", "./config", "directory with base.yaml and environment overrides")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Bootstrap logger until the real one is configured from file.
	boot := logx.Console("info")

	mgr := config.NewManager(configDir, boot)
	cfg, err := mgr.Load()
	if err != nil {
		boot.Fatal().Err(err).Str("dir", configDir).Msg("configuration load failed")
	}

	logSvc, log, err := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console == nil || *cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled == nil || *cfg.Logging.File.Enabled,
			Dir:     cfg.Logging.File.Dir,
		},
	})
	if err != nil {
		boot.Fatal().Err(err).Msg("logger init failed")
	}
	defer func() { _ = logSvc.Close() }()

	if err := run(ctx, mgr, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("startup failed")
	}
}

func run(ctx context.Context, mgr *config.Manager, cfg *config.Config, log zerolog.Logger) error {
	st, err := store.Open(ctx, store.Config{
		Driver:      cfg.Database.Driver,
		MongoURL:    cfg.Database.MongoURL,
		Database:    cfg.Database.Name,
		SQLitePath:  cfg.Database.SQLitePath,
		KeyStrategy: cfg.Application.KeyStrategy,
	}, log.With().Str("comp", "store").Logger())
	if err != nil {
		return err
	}
	defer func() {
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = st.Close(shutCtx)
	}()

	client, err := clob.NewClient(cfg.Polymarket.Host, clob.Credentials{
		PrivateKey:    cfg.Polymarket.PrivateKey,
		SignatureType: cfg.Polymarket.SignatureType,
		ProxyAddress:  cfg.Polymarket.ProxyAddress,
		APIKey:        cfg.Polymarket.APIKey,
		APISecret:     cfg.Polymarket.APISecret,
		APIPassphrase: cfg.Polymarket.APIPassphrase,
	}, log.With().Str("comp", "clob").Logger())
	if err != nil {
		return err
	}
	if err := client.Ok(ctx); err != nil {
		return err
	}
	// Request signatures carry a local timestamp; large clock skew breaks auth.
	if ts, err := client.ServerTime(ctx); err == nil {
		if skew := time.Since(ts); skew > 30*time.Second || skew < -30*time.Second {
			log.Warn().Dur("skew", skew).Msg("local clock differs from clob server time")
		}
	}
	fetcher := clob.NewFetcher(client, log.With().Str("comp", "fetcher").Logger())

	sinks, err := buildSinks(cfg, log)
	if err != nil {
		return err
	}

	svc := relay.New(relayConfig(cfg), fetcher, st, sinks, log.With().Str("comp", "relay").Logger())
	if err := svc.Start(ctx); err != nil {
		return err
	}

	var apiSrv *api.Server
	if cfg.API != nil && cfg.API.Enabled {
		apiSrv = api.New(api.Config{Addr: cfg.API.Addr}, st, log.With().Str("comp", "api").Logger())
		if err := apiSrv.Start(); err != nil {
			svc.Stop()
			return err
		}
	}

	// Config hot-reload: watch the directory and re-apply relay settings.
	// Credentials and database changes still need a restart.
	updates := mgr.Subscribe(1)
	go func() {
		if err := mgr.Watch(ctx); err != nil {
			log.Warn().Err(err).Msg("config watcher stopped")
		}
	}()
	go func() {
		for next := range updates {
			if err := svc.Apply(relayConfig(next)); err != nil {
				log.Error().Err(err).Msg("config update rejected")
			}
		}
	}()

	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)
	log.Info().Msg("polynotify running")

	<-ctx.Done()
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	log.Info().Msg("shutting down")

	svc.Stop()
	if apiSrv != nil {
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = apiSrv.Shutdown(shutCtx)
	}
	mgr.Unsubscribe(updates)
	return nil
}

func buildSinks(cfg *config.Config, log zerolog.Logger) ([]relay.Sink, error) {
	dc, err := discord.New(discord.Config{
		WebhookURL: cfg.Discord.WebhookURL,
		Username:   cfg.Discord.Username,
		Timeout:    time.Duration(cfg.Discord.TimeoutMS) * time.Millisecond,
		RatePerSec: cfg.Discord.RatePerSec,
	}, log.With().Str("comp", "discord").Logger())
	if err != nil {
		return nil, err
	}
	sinks := []relay.Sink{dc}

	if cfg.Telegram != nil && cfg.Telegram.Enabled {
		tg, err := telegram.New(telegram.Config{
			Token:  cfg.Telegram.Token,
			ChatID: cfg.Telegram.ChatID,
		}, log.With().Str("comp", "telegram").Logger())
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, tg)
	}
	return sinks, nil
}

func relayConfig(cfg *config.Config) relay.Config {
	return relay.Config{
		FetchInterval: cfg.FetchInterval(),
		Deliver:       cfg.DeliveryEnabled(),
		DeliverMode:   cfg.Application.DeliverMode,
		Retention: relay.RetentionConfig{
			Enabled:  cfg.Application.Retention.Enabled,
			Days:     cfg.Application.Retention.Days,
			Schedule: cfg.Application.Retention.Schedule,
		},
	}
}
