package dam

import (
	"time"

	"github.com/google/uuid"

	"FlowLedger/internal/ledger"
	"FlowLedger/internal/oracle"
)

// Snapshot is the dam's serializable state for warm restart.
type Snapshot struct {
	State       int32              `json:"state"`
	Flowing     bool               `json:"flowing"`
	Upstream    UpstreamSnapshot   `json:"upstream"`
	Round       RoundSnapshot      `json:"round"`
	Withdrawals []WithdrawalRecord `json:"withdrawals"`

	// Oracle keys travel as compressed hex so verifiers can be rebuilt.
	OracleKey        string            `json:"oracle_key"`
	PendingUpstream  *UpstreamSnapshot `json:"pending_upstream,omitempty"`
	PendingOracleKey string            `json:"pending_oracle_key,omitempty"`
}

type UpstreamSnapshot struct {
	PeriodSeconds     int64  `json:"period_seconds"`
	ReinvestmentRatio uint32 `json:"reinvestment_ratio"`
	AutoStreamRatio   uint32 `json:"auto_stream_ratio"`
}

type RoundSnapshot struct {
	ID        int64 `json:"id"`
	StartTime int64 `json:"start_time"`
	EndTime   int64 `json:"end_time"`
}

type WithdrawalRecord struct {
	ID       uuid.UUID `json:"id"`
	Receiver string    `json:"receiver"`
	Amount   int64     `json:"amount"`
}

// TakeSnapshot copies the current state.
func (d *Dam) TakeSnapshot() *Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()

	snap := &Snapshot{
		State:   int32(d.state),
		Flowing: d.flowing,
		Upstream: UpstreamSnapshot{
			PeriodSeconds:     int64(d.upstream.Period / time.Second),
			ReinvestmentRatio: d.upstream.ReinvestmentRatio,
			AutoStreamRatio:   d.upstream.AutoStreamRatio,
		},
		Round: RoundSnapshot{
			ID:        d.round.ID,
			StartTime: d.round.StartTime.Unix(),
			EndTime:   d.round.EndTime.Unix(),
		},
		OracleKey: d.verifier.PublicKeyHex(),
	}
	for _, w := range d.withdrawals {
		snap.Withdrawals = append(snap.Withdrawals, WithdrawalRecord{
			ID:       w.ID,
			Receiver: string(w.Receiver),
			Amount:   w.Amount,
		})
	}
	if d.pendingUpstream != nil {
		snap.PendingUpstream = &UpstreamSnapshot{
			PeriodSeconds:     int64(d.pendingUpstream.Period / time.Second),
			ReinvestmentRatio: d.pendingUpstream.ReinvestmentRatio,
			AutoStreamRatio:   d.pendingUpstream.AutoStreamRatio,
		}
	}
	if d.pendingOracle != nil {
		snap.PendingOracleKey = d.pendingOracle.PublicKeyHex()
	}
	return snap
}

// RestoreSnapshot replaces the dam's state. The ledger must already be
// restored separately; only the state machine is rebuilt here.
func (d *Dam) RestoreSnapshot(snap *Snapshot) error {
	verifier, err := oracle.NewECDSAVerifierFromHex(snap.OracleKey)
	if err != nil {
		return err
	}
	var pendingOracle oracle.Verifier
	if snap.PendingOracleKey != "" {
		pendingOracle, err = oracle.NewECDSAVerifierFromHex(snap.PendingOracleKey)
		if err != nil {
			return err
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.state = State(snap.State)
	d.flowing = snap.Flowing
	d.upstream = Upstream{
		Period:            time.Duration(snap.Upstream.PeriodSeconds) * time.Second,
		ReinvestmentRatio: snap.Upstream.ReinvestmentRatio,
		AutoStreamRatio:   snap.Upstream.AutoStreamRatio,
	}
	d.round = Round{
		ID:        snap.Round.ID,
		StartTime: time.Unix(snap.Round.StartTime, 0).UTC(),
		EndTime:   time.Unix(snap.Round.EndTime, 0).UTC(),
	}
	d.withdrawals = nil
	for _, w := range snap.Withdrawals {
		d.withdrawals = append(d.withdrawals, Withdrawal{
			ID:       w.ID,
			Receiver: ledger.Address(w.Receiver),
			Amount:   w.Amount,
		})
	}
	d.verifier = verifier
	d.pendingOracle = pendingOracle
	d.pendingUpstream = nil
	if snap.PendingUpstream != nil {
		d.pendingUpstream = &Upstream{
			Period:            time.Duration(snap.PendingUpstream.PeriodSeconds) * time.Second,
			ReinvestmentRatio: snap.PendingUpstream.ReinvestmentRatio,
			AutoStreamRatio:   snap.PendingUpstream.AutoStreamRatio,
		}
	}
	if d.metrics != nil {
		d.metrics.CurrentRound.Set(float64(d.round.ID))
	}
	return nil
}
