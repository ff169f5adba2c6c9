// Package projection folds the event stream into Postgres read
// tables. Projections are eventually consistent: the recorder drops
// on the projection channel under pressure, and anything missed can
// be rebuilt by replaying the event log.
package projection

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"FlowLedger/internal/core"
	"FlowLedger/internal/event"
)

const workerID = "main"

// Worker applies each envelope to the projection tables in one tx,
// advancing the watermark alongside.
type Worker struct {
	db    *sql.DB
	input <-chan core.Output
	log   zerolog.Logger
}

func NewWorker(db *sql.DB, input <-chan core.Output, log zerolog.Logger) *Worker {
	return &Worker{db: db, input: input, log: log}
}

// Run folds envelopes until ctx is cancelled or the input closes.
// A failed fold is logged and skipped; the table catches up on rebuild.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case out, ok := <-w.input:
			if !ok {
				return nil
			}
			if err := w.apply(ctx, out.Envelope); err != nil {
				w.log.Warn().
					Err(err).
					Int64("sequence", out.Envelope.Sequence).
					Str("type", out.Envelope.Type.String()).
					Msg("projection update failed")
			}
		}
	}
}

func (w *Worker) apply(ctx context.Context, env *event.Envelope) error {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := w.fold(ctx, tx, env); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO ledger_projections.watermark (worker_id, last_sequence, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (worker_id) DO UPDATE SET last_sequence = $2, updated_at = NOW()
	`, workerID, env.Sequence); err != nil {
		return fmt.Errorf("watermark update: %w", err)
	}

	return tx.Commit()
}

func (w *Worker) fold(ctx context.Context, tx *sql.Tx, env *event.Envelope) error {
	seq := env.Sequence

	switch p := env.Payload.(type) {
	case *event.Deposited:
		return w.addBalance(ctx, tx, p.Receiver, p.Amount, seq)

	case *event.Withdrawn:
		return w.addBalance(ctx, tx, p.Owner, -p.Amount, seq)

	case *event.Transferred:
		if err := w.addBalance(ctx, tx, p.From, -p.Amount, seq); err != nil {
			return err
		}
		return w.addBalance(ctx, tx, p.To, p.Amount, seq)

	case *event.InterestClaimed:
		_, err := tx.ExecContext(ctx, `
			INSERT INTO ledger_projections.balances (account, balance, interest_claimed, as_of_sequence)
			VALUES ($1, $2, $2, $3)
			ON CONFLICT (account) DO UPDATE SET
				balance = ledger_projections.balances.balance + $2,
				interest_claimed = ledger_projections.balances.interest_claimed + $2,
				as_of_sequence = $3,
				updated_at = NOW()
		`, p.Account, p.Interest, seq)
		return err

	case *event.HatChanged:
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM ledger_projections.hat_entries WHERE account = $1
		`, p.Account); err != nil {
			return err
		}
		for i, recipient := range p.NewHat.Recipients {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO ledger_projections.hat_entries (account, recipient, proportion_bp, as_of_sequence)
				VALUES ($1, $2, $3, $4)
			`, p.Account, recipient, int32(p.NewHat.Proportions[i]), seq); err != nil {
				return err
			}
		}
		return nil

	case *event.RoundStarted:
		_, err := tx.ExecContext(ctx, `
			INSERT INTO ledger_projections.rounds (dam, round_id, start_time, end_time, as_of_sequence)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (dam, round_id) DO UPDATE SET
				start_time = $3, end_time = $4, as_of_sequence = $5, updated_at = NOW()
		`, p.Dam, p.RoundID, time.Unix(p.StartTime, 0).UTC(), time.Unix(p.EndTime, 0).UTC(), seq)
		return err

	case *event.RoundClosed:
		_, err := tx.ExecContext(ctx, `
			INSERT INTO ledger_projections.rounds (dam, round_id, discharged, closed, as_of_sequence)
			VALUES ($1, $2, $3, TRUE, $4)
			ON CONFLICT (dam, round_id) DO UPDATE SET
				discharged = $3, closed = TRUE, as_of_sequence = $4, updated_at = NOW()
		`, p.Dam, p.RoundID, p.Discharged, seq)
		return err

	default:
		// Share bookkeeping and dam admin events carry no read-side
		// state beyond the watermark.
		return nil
	}
}

func (w *Worker) addBalance(ctx context.Context, tx *sql.Tx, account string, delta int64, seq int64) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO ledger_projections.balances (account, balance, as_of_sequence)
		VALUES ($1, $2, $3)
		ON CONFLICT (account) DO UPDATE SET
			balance = ledger_projections.balances.balance + $2,
			as_of_sequence = $3,
			updated_at = NOW()
	`, account, delta, seq)
	return err
}

// Rebuild truncates the projection tables. The caller then replays
// the event log through a fresh Worker to repopulate them.
func Rebuild(ctx context.Context, db *sql.DB) error {
	statements := []string{
		`TRUNCATE ledger_projections.balances`,
		`TRUNCATE ledger_projections.hat_entries`,
		`TRUNCATE ledger_projections.rounds`,
		`DELETE FROM ledger_projections.watermark WHERE worker_id = 'main'`,
	}
	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("projection rebuild: %w", err)
		}
	}
	return nil
}
