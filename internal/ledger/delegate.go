package ledger

import (
	"fmt"

	"FlowLedger/internal/event"
	"FlowLedger/internal/fpmath"
	"FlowLedger/internal/split"
)

// maxHatDepth bounds the walk used to reject cyclic hats.
const maxHatDepth = 16

// delegate attributes amount of addr's principal to its hat
// recipients. A zero hat self-delegates; a non-zero hat is
// re-validated and split proportionally, with the last recipient
// absorbing the rounding remainder.
func (t *txn) delegate(addr Address, amount int64) error {
	if amount == 0 {
		return nil
	}

	acc := t.account(addr)
	hat := acc.Hat

	var recipients []Address
	var amounts []int64
	if hat.IsZero() {
		recipients = []Address{addr}
		amounts = []int64{amount}
	} else {
		if err := split.ValidateProportions(hat.Proportions); err != nil {
			return err
		}
		recipients = hat.Recipients
		var err error
		amounts, err = split.Split(amount, hat.Proportions)
		if err != nil {
			return err
		}
	}

	for i, recipient := range recipients {
		if amounts[i] == 0 {
			continue
		}
		shares, err := t.toShares(amounts[i], fpmath.RoundFloor)
		if err != nil {
			return err
		}

		rec := t.account(recipient)
		newDelegated, err := fpmath.SafeAdd(rec.DelegatedAmount, amounts[i])
		if err != nil {
			return err
		}
		newShares, err := fpmath.SafeAdd(rec.DelegatedShares, shares)
		if err != nil {
			return err
		}
		rec.DelegatedAmount = newDelegated
		rec.DelegatedShares = newShares

		t.account(addr).addLoan(recipient, amounts[i], shares)
	}

	t.emit(&event.Delegated{Account: string(addr), Amount: amount, Hat: hat.Snapshot()})
	return nil
}

// recollect withdraws amount of addr's delegation, drawing the
// outbound records down proportionally. Each recipient's interest is
// claimed first so the claim settles against the pre-recollection
// share basis; claiming after the subtraction would compute interest
// on a reduced base and lose accrued yield.
func (t *txn) recollect(addr Address, amount int64) error {
	if amount == 0 {
		return nil
	}

	acc := t.account(addr)
	if amount > acc.Amount {
		return fmt.Errorf("%w: have %d, need %d", ErrInsufficientBalance, acc.Amount, amount)
	}

	if err := t.claimLoanRecipients(addr); err != nil {
		return err
	}

	acc = t.account(addr)
	total := acc.loanedTotal()
	if total < amount {
		// Loans and principal move together outside an operation, so
		// a shortfall here means a broken invariant upstream.
		return fmt.Errorf("%w: delegation records cover %d of %d", ErrInsufficientBalance, total, amount)
	}

	takes, err := drawdown(acc.Loans, amount, total)
	if err != nil {
		return err
	}

	for i, loan := range acc.Loans {
		take := takes[i]
		if take == 0 {
			continue
		}

		var sharesTake int64
		if take == loan.Amount {
			sharesTake = loan.Shares
		} else {
			sharesTake, err = fpmath.MulDiv(loan.Shares, take, loan.Amount, fpmath.RoundFloor)
			if err != nil {
				return err
			}
		}

		rec := t.account(loan.Recipient)
		rec.DelegatedAmount -= take
		rec.DelegatedShares -= sharesTake
		loan.Amount -= take
		loan.Shares -= sharesTake
	}
	acc.dropEmptyLoans()

	t.emit(&event.Recollected{Account: string(addr), Amount: amount, Hat: acc.Hat.Snapshot()})
	return nil
}

// recollectAll claims every loan recipient and then removes every
// outbound record exactly. Used by hat changes, which must fully
// migrate delegation.
func (t *txn) recollectAll(addr Address) (int64, error) {
	if err := t.claimLoanRecipients(addr); err != nil {
		return 0, err
	}

	acc := t.account(addr)
	recollected := acc.loanedTotal()
	for _, loan := range acc.Loans {
		rec := t.account(loan.Recipient)
		rec.DelegatedAmount -= loan.Amount
		rec.DelegatedShares -= loan.Shares
		loan.Amount = 0
		loan.Shares = 0
	}
	acc.Loans = nil

	if recollected > 0 {
		t.emit(&event.Recollected{Account: string(addr), Amount: recollected, Hat: acc.Hat.Snapshot()})
	}
	return recollected, nil
}

// claimLoanRecipients settles interest for every current loan
// recipient. The recipient set is snapshotted first because a claim
// re-delegates minted interest and may extend addr's own loan list.
func (t *txn) claimLoanRecipients(addr Address) error {
	acc := t.account(addr)
	recipients := make([]Address, len(acc.Loans))
	for i, loan := range acc.Loans {
		recipients[i] = loan.Recipient
	}
	for _, r := range recipients {
		if _, err := t.claim(r); err != nil {
			return err
		}
	}
	return nil
}

// drawdown apportions amount across loans proportionally, with the
// last record absorbing the remainder. Floor rounding can push the
// remainder past the last record's balance by a few units, so a clamp
// pass pushes any excess onto records with spare capacity. The takes
// always sum to amount and never exceed a record's balance.
func drawdown(loans []*Loan, amount, total int64) ([]int64, error) {
	takes := make([]int64, len(loans))
	var taken int64

	for i, loan := range loans {
		if i == len(loans)-1 {
			takes[i] = amount - taken
			break
		}
		take, err := fpmath.MulDiv(loan.Amount, amount, total, fpmath.RoundFloor)
		if err != nil {
			return nil, err
		}
		takes[i] = take
		taken += take
	}

	last := len(loans) - 1
	var excess int64
	if takes[last] > loans[last].Amount {
		excess = takes[last] - loans[last].Amount
		takes[last] = loans[last].Amount
	}
	for i := 0; excess > 0 && i < last; i++ {
		capacity := loans[i].Amount - takes[i]
		if capacity <= 0 {
			continue
		}
		if capacity > excess {
			capacity = excess
		}
		takes[i] += capacity
		excess -= capacity
	}
	if excess != 0 {
		return nil, fmt.Errorf("%w: drawdown excess %d", ErrInsufficientBalance, excess)
	}

	return takes, nil
}

// changeHat atomically migrates addr from its current hat to newHat:
// recollect everything under the old hat, validate the new hat (even
// with zero principal, so a bad hat is never stored), then re-delegate
// under the new hat. Any failure discards the whole transaction.
func (t *txn) changeHat(addr Address, newHat Hat) error {
	acc := t.account(addr)
	oldHat := acc.Hat.Clone()

	if acc.Amount > 0 {
		if _, err := t.recollectAll(addr); err != nil {
			return err
		}
	}

	if err := newHat.Validate(); err != nil {
		return err
	}
	if err := t.checkAcyclic(addr, newHat); err != nil {
		return err
	}

	acc = t.account(addr)
	acc.Hat = newHat.Clone()

	if acc.Amount > 0 {
		if err := t.delegate(addr, acc.Amount); err != nil {
			return err
		}
	}

	t.emit(&event.HatChanged{
		Account: string(addr),
		OldHat:  oldHat.Snapshot(),
		NewHat:  newHat.Snapshot(),
	})
	return nil
}

// checkAcyclic rejects a hat from which addr is reachable through
// other accounts' hats. Self-inclusion is a legal zero-length cycle
// (reinvestment); anything longer would make recollect/claim chains
// feed back into the account being drained.
func (t *txn) checkAcyclic(addr Address, hat Hat) error {
	visited := map[Address]bool{}

	var walk func(from Address, depth int) error
	walk = func(from Address, depth int) error {
		if depth > maxHatDepth {
			return fmt.Errorf("%w: hat chain deeper than %d", ErrCyclicHat, maxHatDepth)
		}
		for _, r := range t.hatOf(from).Recipients {
			if r == from {
				continue
			}
			if r == addr {
				return fmt.Errorf("%w: %s reachable through %s", ErrCyclicHat, addr, from)
			}
			if visited[r] {
				continue
			}
			visited[r] = true
			if err := walk(r, depth+1); err != nil {
				return err
			}
		}
		return nil
	}

	for _, r := range hat.Recipients {
		if r == addr || visited[r] {
			continue
		}
		visited[r] = true
		if err := walk(r, 1); err != nil {
			return err
		}
	}
	return nil
}
