package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"xprice/internal/infrastructure/config"
	"xprice/internal/infrastructure/logger"
	"xprice/internal/infrastructure/svc"
)

func main() {
	configPath := flag.String("config", "configs/config.toml", "path to config.toml")
	snapshot := flag.Bool("snapshot", false, "copy the HTTP market watch into the enabled SQL stores and exit")
	flag.Parse()

	logger.Setup("info")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Str("config", *configPath).Msg("load config failed")
	}
	logger.Setup(cfg.App.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sc, err := svc.New(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("service initialization failed")
	}
	defer sc.Close()

	if *snapshot {
		if n, err := sc.Snapshot(ctx); err != nil {
			log.Error().Err(err).Int("written", n).Msg("snapshot failed")
		}
		return
	}

	log.Info().
		Str("config", *configPath).
		Str("feed", cfg.Feed.Name).
		Int("symbols", len(cfg.Feed.Symbols)).
		Str("spread_ratio", cfg.Pricing.SpreadRatio).
		Msg("xprice started")

	if err := sc.Run(ctx); err != nil {
		log.Error().Err(err).Msg("price engine exited")
	}
}
