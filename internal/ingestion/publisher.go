package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"

	"FlowLedger/internal/core"
	"FlowLedger/internal/event"
)

// PublishedEvent is the outbound wire form of a recorded event.
type PublishedEvent struct {
	Sequence  int64       `json:"sequence"`
	EventType string      `json:"event_type"`
	Account   string      `json:"account"`
	Payload   interface{} `json:"payload"`
	StateHash []byte      `json:"state_hash"`
	Timestamp time.Time   `json:"timestamp"`
}

// Publisher drains the publish channel onto JetStream, one subject per
// event type. A failed publish is logged and dropped; consumers that
// need completeness read the event log instead.
type Publisher struct {
	js    jetstream.JetStream
	input <-chan core.Output
	log   zerolog.Logger
}

func NewPublisher(js jetstream.JetStream, input <-chan core.Output, log zerolog.Logger) *Publisher {
	return &Publisher{js: js, input: input, log: log}
}

// EnsureEventStream creates the outbound events stream if missing.
func EnsureEventStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      EventStream,
		Subjects:  []string{eventSubjectPrefix + ".>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    72 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create stream %s: %w", EventStream, err)
	}
	return nil
}

// Run publishes until ctx is cancelled or the input closes.
func (p *Publisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case out, ok := <-p.input:
			if !ok {
				return nil
			}
			if err := p.publish(ctx, out.Envelope); err != nil {
				p.log.Warn().
					Err(err).
					Int64("sequence", out.Envelope.Sequence).
					Msg("outbound publish failed")
			}
		}
	}
}

func (p *Publisher) publish(ctx context.Context, env *event.Envelope) error {
	msg := PublishedEvent{
		Sequence:  env.Sequence,
		EventType: env.Type.String(),
		Account:   env.Account,
		Payload:   env.Payload,
		StateHash: env.StateHash[:],
		Timestamp: env.Timestamp,
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	subject := fmt.Sprintf("%s.%s", eventSubjectPrefix, env.Type)
	_, err = p.js.Publish(ctx, subject, data)
	return err
}
