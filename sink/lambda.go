package sink

import (
	"context"
	"encoding/json"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/rs/zerolog/log"

	"github.com/tenuki-go/tenuki/selfplay"
)

// BatchEvent is the payload a LambdaSink ships and cmd/lambda
// receives: one flushed batch with its provenance.
type BatchEvent struct {
	Identity     string          `json:"identity"`
	FlushSeq     int64           `json:"flush_seq"`
	Records      json.RawMessage `json:"records"`
	ReplyChannel string          `json:"reply_channel,omitempty"`
}

// lambdaInvoker is the slice of the AWS Lambda client we use; tests
// substitute their own.
type lambdaInvoker interface {
	Invoke(ctx context.Context, params *lambda.InvokeInput, optFns ...func(*lambda.Options)) (*lambda.InvokeOutput, error)
}

// LambdaSink ships record batches to a cloud ingest function, for
// deployments whose training pipeline lives behind AWS.
type LambdaSink struct {
	client       lambdaInvoker
	functionName string
	replyChannel string
}

func NewLambdaSink(ctx context.Context, functionName, replyChannel string) (*LambdaSink, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}
	return &LambdaSink{
		client:       lambda.NewFromConfig(awsCfg),
		functionName: functionName,
		replyChannel: replyChannel,
	}, nil
}

// WriteBatch invokes the ingest function synchronously with the
// encoded batch and fails on any function error.
func (s *LambdaSink) WriteBatch(ctx context.Context, identity string, flushSeq int64, records []selfplay.Record) error {
	encoded, err := selfplay.EncodeBatch(records)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(BatchEvent{
		Identity:     identity,
		FlushSeq:     flushSeq,
		Records:      encoded,
		ReplyChannel: s.replyChannel,
	})
	if err != nil {
		return err
	}
	out, err := s.client.Invoke(ctx, &lambda.InvokeInput{
		FunctionName: &s.functionName,
		Payload:      payload,
	})
	if err != nil {
		return fmt.Errorf("invoking %s: %w", s.functionName, err)
	}
	if out.FunctionError != nil {
		return fmt.Errorf("ingest function failed: %s: %s", *out.FunctionError, string(out.Payload))
	}
	log.Debug().Str("function", s.functionName).
		Int64("flush-seq", flushSeq).
		Int("records", len(records)).
		Msg("shipped batch to lambda")
	return nil
}
