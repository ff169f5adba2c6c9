// Package query serves read-only API responses from the projection
// tables and the event log. Every response carries the projection
// watermark so callers can reason about freshness.
package query

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"time"

	"FlowLedger/internal/observability"
)

// Service reads projections and the event log. It never touches the
// in-memory ledger; reads are eventually consistent by design.
type Service struct {
	db      *sql.DB
	metrics *observability.Metrics
}

func NewService(db *sql.DB, metrics *observability.Metrics) *Service {
	return &Service{db: db, metrics: metrics}
}

// GetBalance returns an account's projected balance. Unknown accounts
// read as zero rather than an error.
func (s *Service) GetBalance(ctx context.Context, account string) (*BalanceResponse, error) {
	defer s.observe("balance", time.Now())

	asOfSeq, err := s.getWatermark(ctx)
	if err != nil {
		return nil, s.fail("balance", fmt.Errorf("watermark: %w", err))
	}

	resp := &BalanceResponse{Account: account, AsOfSequence: asOfSeq}
	err = s.db.QueryRowContext(ctx, `
		SELECT balance, interest_claimed FROM ledger_projections.balances
		WHERE account = $1
	`, account).Scan(&resp.Balance, &resp.InterestClaimed)
	if err != nil && err != sql.ErrNoRows {
		return nil, s.fail("balance", err)
	}

	s.ok("balance")
	return resp, nil
}

// GetHat returns an account's delegation fan-out. An empty entry list
// means the self hat.
func (s *Service) GetHat(ctx context.Context, account string) (*HatResponse, error) {
	defer s.observe("hat", time.Now())

	asOfSeq, err := s.getWatermark(ctx)
	if err != nil {
		return nil, s.fail("hat", fmt.Errorf("watermark: %w", err))
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT recipient, proportion_bp FROM ledger_projections.hat_entries
		WHERE account = $1
		ORDER BY recipient
	`, account)
	if err != nil {
		return nil, s.fail("hat", err)
	}
	defer rows.Close()

	resp := &HatResponse{Account: account, AsOfSequence: asOfSeq}
	for rows.Next() {
		var e HatEntryResponse
		if err := rows.Scan(&e.Recipient, &e.ProportionBP); err != nil {
			return nil, s.fail("hat", err)
		}
		resp.Entries = append(resp.Entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, s.fail("hat", err)
	}

	s.ok("hat")
	return resp, nil
}

// GetRounds returns a dam's round history, newest first.
func (s *Service) GetRounds(ctx context.Context, damAddr string, limit int) ([]RoundResponse, error) {
	defer s.observe("rounds", time.Now())

	asOfSeq, err := s.getWatermark(ctx)
	if err != nil {
		return nil, s.fail("rounds", fmt.Errorf("watermark: %w", err))
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT round_id, start_time, end_time, discharged, closed
		FROM ledger_projections.rounds
		WHERE dam = $1
		ORDER BY round_id DESC
		LIMIT $2
	`, damAddr, limit)
	if err != nil {
		return nil, s.fail("rounds", err)
	}
	defer rows.Close()

	var rounds []RoundResponse
	for rows.Next() {
		r := RoundResponse{Dam: damAddr, AsOfSequence: asOfSeq}
		var start, end sql.NullTime
		if err := rows.Scan(&r.RoundID, &start, &end, &r.Discharged, &r.Closed); err != nil {
			return nil, s.fail("rounds", err)
		}
		if start.Valid {
			r.StartTime = start.Time.Unix()
		}
		if end.Valid {
			r.EndTime = end.Time.Unix()
		}
		rounds = append(rounds, r)
	}
	if err := rows.Err(); err != nil {
		return nil, s.fail("rounds", err)
	}

	s.ok("rounds")
	return rounds, nil
}

// GetEvents pages the event log for an account, oldest first.
func (s *Service) GetEvents(ctx context.Context, account string, fromSequence int64, limit int) ([]EventResponse, error) {
	defer s.observe("events", time.Now())

	rows, err := s.db.QueryContext(ctx, `
		SELECT sequence, event_type, account, payload, timestamp
		FROM event_log.events
		WHERE account = $1 AND sequence >= $2
		ORDER BY sequence ASC
		LIMIT $3
	`, account, fromSequence, limit)
	if err != nil {
		return nil, s.fail("events", err)
	}
	defer rows.Close()

	var events []EventResponse
	for rows.Next() {
		var e EventResponse
		var payload []byte
		var ts time.Time
		if err := rows.Scan(&e.Sequence, &e.EventType, &e.Account, &payload, &ts); err != nil {
			return nil, s.fail("events", err)
		}
		e.Payload = string(payload)
		e.Timestamp = ts.Unix()
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, s.fail("events", err)
	}

	s.ok("events")
	return events, nil
}

// VerifyIntegrity walks the hash chain: each event's prev_hash must
// equal its predecessor's state_hash.
func (s *Service) VerifyIntegrity(ctx context.Context) (*IntegrityReport, error) {
	defer s.observe("integrity", time.Now())

	rows, err := s.db.QueryContext(ctx, `
		SELECT sequence, state_hash, prev_hash
		FROM event_log.events
		ORDER BY sequence ASC
	`)
	if err != nil {
		return nil, s.fail("integrity", err)
	}
	defer rows.Close()

	report := &IntegrityReport{IsHealthy: true}
	var prevState []byte
	first := true
	for rows.Next() {
		var seq int64
		var stateHash, prevHash []byte
		if err := rows.Scan(&seq, &stateHash, &prevHash); err != nil {
			return nil, s.fail("integrity", err)
		}
		if !first && !bytes.Equal(prevHash, prevState) {
			report.IsHealthy = false
			report.HashChainBreaks = append(report.HashChainBreaks, seq)
		}
		prevState = stateHash
		first = false
		report.CheckedEvents++
	}
	if err := rows.Err(); err != nil {
		return nil, s.fail("integrity", err)
	}

	s.ok("integrity")
	return report, nil
}

func (s *Service) getWatermark(ctx context.Context) (int64, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx, `
		SELECT last_sequence FROM ledger_projections.watermark WHERE worker_id = 'main'
	`).Scan(&seq)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return seq, err
}

func (s *Service) observe(endpoint string, start time.Time) {
	if s.metrics != nil {
		s.metrics.QueryDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	}
}

func (s *Service) ok(endpoint string) {
	if s.metrics != nil {
		s.metrics.QueryRequests.WithLabelValues(endpoint, "ok").Inc()
	}
}

func (s *Service) fail(endpoint string, err error) error {
	if s.metrics != nil {
		s.metrics.QueryRequests.WithLabelValues(endpoint, "error").Inc()
	}
	return err
}
