// recstats summarizes selfplay batch files: counts, reward stats, and
// a game-length histogram, optionally cross-checked against the
// archive database.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/aybabtme/uniplot/histogram"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/tenuki-go/tenuki/archive"
	"github.com/tenuki-go/tenuki/sink"
	"github.com/tenuki-go/tenuki/stats"
)

type fileSummary struct {
	File      string  `yaml:"file"`
	Identity  string  `yaml:"identity"`
	Games     int     `yaml:"games"`
	BlackWins int     `yaml:"black_wins"`
	MeanMoves float64 `yaml:"mean_moves"`
}

type report struct {
	Files      []fileSummary `yaml:"files"`
	Games      int           `yaml:"games"`
	BlackWins  int           `yaml:"black_wins"`
	MeanReward float64       `yaml:"mean_reward"`
	MeanMoves  float64       `yaml:"mean_moves"`
	MinMoves   float64       `yaml:"min_moves"`
	MaxMoves   float64       `yaml:"max_moves"`
}

func main() {
	bins := flag.Int("bins", 15, "histogram bins")
	archivePath := flag.String("archive", "", "also print per-model aggregates from this archive database")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if flag.NArg() == 0 && *archivePath == "" {
		fmt.Fprintln(os.Stderr, "usage: recstats [-bins N] [-archive db] batchfile...")
		os.Exit(2)
	}

	var rep report
	var reward, moves stats.Statistic
	var lengths []float64

	for _, path := range flag.Args() {
		store, err := sink.ReadBatchFile(path)
		if err != nil {
			log.Fatal().Err(err).Str("file", path).Msg("failed to read batch")
		}
		records := store.Records()
		var fileMoves stats.Statistic
		fileWins := 0
		for _, rec := range records {
			reward.Push(float64(rec.Result.Reward))
			moves.Push(float64(rec.Result.NumMoves))
			fileMoves.Push(float64(rec.Result.NumMoves))
			lengths = append(lengths, float64(rec.Result.NumMoves))
			if rec.Result.Reward > 0 {
				fileWins++
			}
		}
		rep.Files = append(rep.Files, fileSummary{
			File:      path,
			Identity:  store.Identity(),
			Games:     len(records),
			BlackWins: fileWins,
			MeanMoves: fileMoves.Mean(),
		})
		rep.Games += len(records)
		rep.BlackWins += fileWins
	}

	if rep.Games > 0 {
		rep.MeanReward = reward.Mean()
		rep.MeanMoves = moves.Mean()
		rep.MinMoves = moves.Min()
		rep.MaxMoves = moves.Max()

		data, err := yaml.Marshal(rep)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to marshal report")
		}
		os.Stdout.Write(data)

		fmt.Println("\ngame lengths:")
		hist := histogram.Hist(*bins, lengths)
		if err := histogram.Fprint(os.Stdout, hist, histogram.Linear(40)); err != nil {
			log.Fatal().Err(err).Msg("failed to print histogram")
		}
	}

	if *archivePath != "" {
		printArchiveSummary(*archivePath)
	}
}

func printArchiveSummary(path string) {
	a, err := archive.Open(path)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open archive")
	}
	defer a.Close()

	summaries, err := a.ModelSummaries(context.Background())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to query archive")
	}
	fmt.Println("\narchived games by model:")
	for _, s := range summaries {
		fmt.Printf("  model %4d: %6d games, mean reward %+.3f, mean moves %.1f\n",
			s.BlackVer, s.Games, s.MeanReward, s.MeanMoves)
	}
}
