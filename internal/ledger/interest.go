package ledger

import (
	"FlowLedger/internal/event"
	"FlowLedger/internal/fpmath"
)

// payable computes the interest currently owed to addr: the asset
// value of its delegated shares beyond the delegated principal, minus
// interest already paid out. Both guards return 0 rather than a
// spurious negative when rounding or a fresh claim leaves the gross
// at or below the recorded basis.
func (t *txn) payable(addr Address) (int64, error) {
	acc := t.account(addr)
	if acc.DelegatedShares == 0 {
		return 0, nil
	}

	gross, err := t.toAssets(acc.DelegatedShares, fpmath.RoundFloor)
	if err != nil {
		return 0, err
	}
	if gross <= acc.DelegatedAmount {
		return 0, nil
	}

	interest := gross - acc.DelegatedAmount
	if interest <= acc.InterestPaid {
		return 0, nil
	}
	return interest - acc.InterestPaid, nil
}

// claim materializes addr's payable interest: it records the payout,
// re-delegates the interest through addr's hat exactly like a fresh
// deposit, and mints it as new principal. Claiming twice with no
// accrual in between pays 0 the second time.
func (t *txn) claim(addr Address) (int64, error) {
	interest, err := t.payable(addr)
	if err != nil || interest == 0 {
		return 0, err
	}

	acc := t.account(addr)
	newPaid, err := fpmath.SafeAdd(acc.InterestPaid, interest)
	if err != nil {
		return 0, err
	}
	acc.InterestPaid = newPaid

	if err := t.delegate(addr, interest); err != nil {
		return 0, err
	}
	if err := t.mint(addr, interest); err != nil {
		return 0, err
	}

	t.emit(&event.InterestClaimed{Account: string(addr), Interest: interest})
	return interest, nil
}
