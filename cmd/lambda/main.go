// lambda receives flushed record batches as Lambda invocations,
// indexes them into an archive database on the mounted filesystem, and
// acknowledges over NATS so the producer can clear its store.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/avast/retry-go/v4"
	awslambda "github.com/aws/aws-lambda-go/lambda"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tenuki-go/tenuki/archive"
	"github.com/tenuki-go/tenuki/config"
	"github.com/tenuki-go/tenuki/selfplay"
	"github.com/tenuki-go/tenuki/sink"
)

var cfg *config.Config
var nc *nats.Conn
var arch *archive.Archive

func HandleRequest(ctx context.Context, evt sink.BatchEvent) (string, error) {
	logger := log.With().
		Str("identity", evt.Identity).
		Int64("flush-seq", evt.FlushSeq).
		Logger()

	records, err := selfplay.DecodeBatch(evt.Records)
	if err != nil {
		return "", err
	}
	logger.Info().Int("records", len(records)).Msg("received batch")

	source := fmt.Sprintf("lambda:%s:%d", evt.Identity, evt.FlushSeq)
	if err := arch.IndexBatch(ctx, evt.Identity, source, records); err != nil {
		return "", err
	}

	if evt.ReplyChannel != "" {
		err = retry.Do(
			func() error {
				_, err := nc.Request(evt.ReplyChannel, []byte(`{"status":"ok"}`), 3*time.Second)
				return err
			},
			retry.Attempts(5),
			retry.OnRetry(func(n uint, err error) {
				logger.Err(err).Uint("n", n).Msg("did-not-receive-ack-try-again")
			}),
		)
		if err != nil {
			logger.Err(err).Msg("batch-ack-failed")
		}
	}
	return fmt.Sprintf("indexed %d records", len(records)), nil
}

func main() {
	ex, err := os.Executable()
	if err != nil {
		panic(err)
	}
	exPath := filepath.Dir(ex)

	cfg, err = config.Load("")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	cfg.AdjustRelativePaths(filepath.Join(exPath, "lambda"))
	if cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	arch, err = archive.Open(cfg.ArchivePath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open archive")
	}

	nc, err = nats.Connect(cfg.NatsURL)
	if err != nil {
		log.Fatal().AnErr("natsConnectErr", err).Msg(":(")
	}

	awslambda.Start(HandleRequest)
}
