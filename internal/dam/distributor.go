package dam

import (
	"fmt"

	"github.com/rs/zerolog"

	"FlowLedger/internal/asset"
	"FlowLedger/internal/event"
	"FlowLedger/internal/fpmath"
	"FlowLedger/internal/ledger"
	"FlowLedger/internal/split"
)

// Distributor discharges accumulated yield out of the ledger along an
// attested distribution plan. It owns a ledger account that the dam's
// redirect hat points at, so interest accrues to it between rounds.
type Distributor struct {
	ledger *ledger.Ledger
	pool   asset.Pool
	addr   ledger.Address
	sink   ledger.Sink
	log    zerolog.Logger
}

// NewDistributor creates a distributor over its own ledger account.
// sink may be nil.
func NewDistributor(l *ledger.Ledger, pool asset.Pool, addr ledger.Address, sink ledger.Sink, log zerolog.Logger) *Distributor {
	return &Distributor{
		ledger: l,
		pool:   pool,
		addr:   addr,
		sink:   sink,
		log:    log,
	}
}

// Address returns the distributor's ledger identity.
func (d *Distributor) Address() ledger.Address {
	return d.addr
}

// DischargeYield claims the distributor's accrued interest, withdraws
// its whole ledger balance into its own asset custody, and pays it
// out along the plan. autoStreamRatio (basis points) of the total is
// streamed to the plan recipients now; the remainder is re-deposited
// under the distributor's self hat so it keeps accruing.
//
// The plan is validated before any value moves, so a malformed plan
// never needs a revert. Returns the total discharged.
func (d *Distributor) DischargeYield(data []byte, autoStreamRatio uint32) (int64, error) {
	plan, err := DecodePlan(data)
	if err != nil {
		return 0, err
	}
	if autoStreamRatio > split.FullBasisPoints {
		return 0, fmt.Errorf("%w: auto-stream %d bp", ErrInvalidRatio, autoStreamRatio)
	}

	if _, err := d.ledger.ClaimInterest(d.addr); err != nil {
		return 0, err
	}
	total, err := d.ledger.Withdraw(d.addr, d.addr, ledger.EntireBalance)
	if err != nil {
		return 0, err
	}
	if total == 0 {
		d.log.Debug().Msg("nothing to discharge")
		return 0, nil
	}

	streamed, err := fpmath.MulDiv(total, int64(autoStreamRatio), split.FullBasisPoints, fpmath.RoundFloor)
	if err != nil {
		return 0, err
	}
	retained := total - streamed

	if retained > 0 {
		if err := d.ledger.Deposit(d.addr, d.addr, retained, nil, nil); err != nil {
			return 0, fmt.Errorf("re-deposit retained yield: %w", err)
		}
	}

	var amounts []int64
	if streamed > 0 {
		amounts, err = split.Split(streamed, plan.Proportions)
		if err != nil {
			return 0, err
		}
		for i, recipient := range plan.Recipients {
			if amounts[i] == 0 {
				continue
			}
			if err := d.pool.Transfer(string(d.addr), recipient, amounts[i]); err != nil {
				d.revertStream(plan.Recipients[:i], amounts[:i])
				return 0, fmt.Errorf("stream to %s: %w", recipient, err)
			}
		}
	}

	if d.sink != nil {
		d.sink.Record(&event.YieldDischarged{
			Distributor: string(d.addr),
			Total:       total,
			Streamed:    streamed,
			Retained:    retained,
			Recipients:  plan.Recipients,
			Amounts:     amounts,
		})
	}
	d.log.Info().
		Int64("total", total).
		Int64("streamed", streamed).
		Int64("retained", retained).
		Int("recipients", len(plan.Recipients)).
		Msg("yield discharged")
	return total, nil
}

// revertStream pulls already-paid splits back into custody after a
// mid-plan transfer failure, keeping the discharge all-or-nothing.
// A recipient that refuses to give funds back is only logged; the
// caller still sees the original failure.
func (d *Distributor) revertStream(recipients []string, amounts []int64) {
	for i, recipient := range recipients {
		if amounts[i] == 0 {
			continue
		}
		if err := d.pool.Transfer(recipient, string(d.addr), amounts[i]); err != nil {
			d.log.Error().
				Err(err).
				Str("recipient", recipient).
				Int64("amount", amounts[i]).
				Msg("could not revert streamed split")
		}
	}
}
