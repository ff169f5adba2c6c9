package ingestion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"

	"FlowLedger/internal/dam"
	"FlowLedger/internal/ledger"
	"FlowLedger/internal/oracle"
	"FlowLedger/internal/split"
)

// PlanMessage is the wire form of a signed distribution plan. Both
// fields travel base64-encoded in JSON.
type PlanMessage struct {
	Plan      []byte `json:"plan"`
	Signature []byte `json:"signature"`
}

// PlanSubscriber consumes signed plans from JetStream and drives round
// closes. One durable consumer per dam instance.
type PlanSubscriber struct {
	js       jetstream.JetStream
	dam      *dam.Dam
	log      zerolog.Logger
	consumer jetstream.ConsumeContext
}

func NewPlanSubscriber(js jetstream.JetStream, d *dam.Dam, log zerolog.Logger) *PlanSubscriber {
	return &PlanSubscriber{js: js, dam: d, log: log}
}

// EnsurePlanStream creates the inbound plan stream if missing.
func EnsurePlanStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      PlanStream,
		Subjects:  []string{PlanSubject + ".>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    72 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create stream %s: %w", PlanStream, err)
	}
	return nil
}

// Subscribe starts a durable consumer delivering plans to the dam.
func (ps *PlanSubscriber) Subscribe(ctx context.Context, consumerName string) error {
	consumer, err := ps.js.CreateOrUpdateConsumer(ctx, PlanStream, jetstream.ConsumerConfig{
		Durable:       consumerName,
		FilterSubject: PlanSubject + ".>",
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       30 * time.Second,
		MaxDeliver:    5,
		DeliverPolicy: jetstream.DeliverAllPolicy,
	})
	if err != nil {
		return fmt.Errorf("create consumer %s: %w", consumerName, err)
	}

	cc, err := consumer.Consume(ps.handle)
	if err != nil {
		return fmt.Errorf("consume %s: %w", consumerName, err)
	}
	ps.consumer = cc
	ps.log.Info().Str("consumer", consumerName).Msg("subscribed to plan stream")
	return nil
}

func (ps *PlanSubscriber) handle(msg jetstream.Msg) {
	var pm PlanMessage
	if err := json.Unmarshal(msg.Data(), &pm); err != nil {
		ps.log.Error().Err(err).Msg("malformed plan message, dropping")
		msg.Ack()
		return
	}

	err := ps.dam.EndRound(pm.Plan, pm.Signature)
	switch {
	case err == nil:
		msg.Ack()

	case isPrecondition(err):
		// Redelivery cannot fix a bad signature or an unexpired round;
		// the oracle has to send a fresh plan.
		ps.log.Warn().Err(err).Msg("plan rejected")
		msg.Ack()

	default:
		ps.log.Error().Err(err).Msg("round close failed, will redeliver")
		msg.Nak()
	}
}

// Stop halts the consumer.
func (ps *PlanSubscriber) Stop() {
	if ps.consumer != nil {
		ps.consumer.Stop()
	}
}

// isPrecondition reports whether the round close failed on input or
// state validation rather than anything transient.
func isPrecondition(err error) bool {
	return errors.Is(err, dam.ErrDamNotOperating) ||
		errors.Is(err, dam.ErrRoundNotEnded) ||
		errors.Is(err, dam.ErrInvalidPlan) ||
		errors.Is(err, oracle.ErrInvalidSignature) ||
		errors.Is(err, split.ErrInvalidProportion) ||
		errors.Is(err, split.ErrNoRecipients) ||
		errors.Is(err, ledger.ErrInvalidAmountRequest)
}
