// Package ingestion is the NATS surface: signed distribution plans
// arrive on JetStream and close dam rounds, and recorded events are
// published back out for downstream consumers.
package ingestion

import (
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

const (
	// PlanStream carries oracle-signed distribution plans inbound.
	PlanStream  = "FLOW_PLANS"
	PlanSubject = "flow.dam.plans"

	// EventStream carries recorded ledger events outbound.
	EventStream        = "FLOW_LEDGER_EVENTS"
	eventSubjectPrefix = "flow.ledger.events"
)

// ConnectNATS establishes a NATS connection and a JetStream context.
// Reconnects forever; the ledger must not lose its plan feed.
func ConnectNATS(url string, log zerolog.Logger) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("nats disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Info().Msg("nats reconnected")
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream: %w", err)
	}
	return nc, js, nil
}
