package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tenuki-go/tenuki/archive"
	"github.com/tenuki-go/tenuki/config"
	"github.com/tenuki-go/tenuki/coordinator"
)

func main() {
	cfgPath := flag.String("config", "", "path to a YAML config file")
	debug := flag.Bool("debug", false, "Enable debug logging")
	initialModel := flag.Int64("model", -1, "model version to promote at startup; -1 starts empty")
	flag.Parse()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	exePath, err := os.Executable()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to get executable path")
	}
	cfg.AdjustRelativePaths(exePath)
	if err := cfg.EnsureDataPath(); err != nil {
		log.Fatal().Err(err).Msg("failed to create data path")
	}

	arch, err := archive.Open(cfg.ArchivePath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open archive")
	}
	defer arch.Close()

	nc, err := nats.Connect(cfg.NatsURL)
	if err != nil {
		log.Fatal().Err(err).Str("nats-url", cfg.NatsURL).Msg("failed to connect to nats")
	}
	defer nc.Close()

	coord := coordinator.New(coordinator.OptionsFromConfig(cfg)).WithArchive(arch)
	srv := coordinator.NewServer(coord, cfg, nc)
	if *initialModel >= 0 {
		coord.PromoteModel(*initialModel)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
		cancel()
	}()

	if err := srv.Run(ctx); err != nil && err != context.Canceled {
		log.Fatal().Err(err).Msg("coordinator failed")
	}
	log.Info().Msg("coordinator stopped")
}
