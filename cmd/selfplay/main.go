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

	"github.com/tenuki-go/tenuki/board"
	"github.com/tenuki-go/tenuki/config"
	"github.com/tenuki-go/tenuki/selfplay"
	"github.com/tenuki-go/tenuki/worker"
)

func main() {
	cfgPath := flag.String("config", "", "path to a YAML config file")
	debug := flag.Bool("debug", false, "Enable debug logging")
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

	geom := board.Geometry{Size: cfg.BoardSize}
	selfplay.SetPolicyBound(geom.PolicyLen())

	nc, err := nats.Connect(cfg.NatsURL)
	if err != nil {
		log.Fatal().Err(err).Str("nats-url", cfg.NatsURL).Msg("failed to connect to nats")
	}
	defer nc.Close()

	workerCfg := worker.FromConfig(cfg)
	player := worker.NewSimulatedPlayer()
	player.Geometry = geom

	w, err := worker.New(workerCfg, worker.NewNATSTransport(nc), player)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create worker")
	}

	log.Info().
		Str("identity", workerCfg.Identity).
		Int("board-size", cfg.BoardSize).
		Msg("starting selfplay worker")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
		cancel()
	}()

	if err := w.Run(ctx); err != nil && err != context.Canceled {
		log.Fatal().Err(err).Msg("worker failed")
	}
	log.Info().Msg("selfplay worker stopped")
}
