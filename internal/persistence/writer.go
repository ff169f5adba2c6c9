// Package persistence owns the Postgres side of the event log: batch
// writes, schema migration, and state snapshots for warm restart.
package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"FlowLedger/internal/event"
)

// EventRow is a row in event_log.events.
type EventRow struct {
	Sequence  int64
	EventType string
	Account   string
	Payload   []byte
	StateHash []byte
	PrevHash  []byte
	Timestamp time.Time
}

// RowFromEnvelope flattens an envelope for storage. The payload is
// stored as JSON for debuggability.
func RowFromEnvelope(env *event.Envelope) (EventRow, error) {
	payload, err := json.Marshal(env.Payload)
	if err != nil {
		return EventRow{}, fmt.Errorf("marshal payload for sequence %d: %w", env.Sequence, err)
	}
	return EventRow{
		Sequence:  env.Sequence,
		EventType: env.Type.String(),
		Account:   env.Account,
		Payload:   payload,
		StateHash: env.StateHash[:],
		PrevHash:  env.PrevHash[:],
		Timestamp: env.Timestamp,
	}, nil
}

// EventLogWriter writes event batches with multi-row INSERTs. Writes
// are idempotent on sequence, so a retried batch never duplicates.
type EventLogWriter struct {
	db *sql.DB
}

func NewEventLogWriter(db *sql.DB) *EventLogWriter {
	return &EventLogWriter{db: db}
}

// DB exposes the handle for transaction control.
func (w *EventLogWriter) DB() *sql.DB {
	return w.db
}

// WriteEventBatch appends a batch inside the given transaction.
func (w *EventLogWriter) WriteEventBatch(ctx context.Context, tx *sql.Tx, events []EventRow) error {
	if len(events) == 0 {
		return nil
	}

	query := `INSERT INTO event_log.events
		(sequence, event_type, account, payload, state_hash, prev_hash, timestamp)
		VALUES `

	values := make([]string, 0, len(events))
	args := make([]interface{}, 0, len(events)*7)

	for i, e := range events {
		base := i * 7
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7,
		))
		args = append(args,
			e.Sequence, e.EventType, e.Account, e.Payload,
			e.StateHash, e.PrevHash, e.Timestamp,
		)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (sequence) DO NOTHING"

	_, err := tx.ExecContext(ctx, query, args...)
	return err
}
