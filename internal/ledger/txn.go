package ledger

import (
	"FlowLedger/internal/event"
	"FlowLedger/internal/fpmath"
)

// virtualOffset is the fixed virtual-liquidity constant added to
// total supply in share conversions. It defends the share price
// against manipulation when supply is near zero; the matching +1 on
// total assets prevents division by zero.
const virtualOffset = 1

// txn is a copy-on-write view over the ledger. Operations mutate
// account clones and buffer events; commit swaps everything in at
// once, so a failure anywhere leaves the ledger untouched.
type txn struct {
	l        *Ledger
	assets   int64
	supply   int64
	accounts map[Address]*Account
	events   []event.Payload
}

// begin snapshots the ledger totals. Caller must hold l.mu.
func (l *Ledger) begin() *txn {
	return &txn{
		l:        l,
		assets:   l.pool.BalanceOf(string(l.self)),
		supply:   l.totalSupply,
		accounts: make(map[Address]*Account),
	}
}

// account returns the transaction's clone of an account, creating an
// empty record on first touch. Accounts come into existence on first
// balance change and are never destroyed.
func (t *txn) account(addr Address) *Account {
	if acc, ok := t.accounts[addr]; ok {
		return acc
	}
	var acc *Account
	if committed, ok := t.l.accounts[addr]; ok {
		acc = committed.clone()
	} else {
		acc = &Account{}
	}
	t.accounts[addr] = acc
	return acc
}

// hatOf reads an account's current hat without cloning.
func (t *txn) hatOf(addr Address) Hat {
	if acc, ok := t.accounts[addr]; ok {
		return acc.Hat
	}
	if acc, ok := t.l.accounts[addr]; ok {
		return acc.Hat
	}
	return Hat{}
}

func (t *txn) emit(p event.Payload) {
	t.events = append(t.events, p)
}

// commit writes the clones and totals back and flushes buffered
// events to the sink. Caller must hold l.mu.
func (t *txn) commit() {
	for addr, acc := range t.accounts {
		t.l.accounts[addr] = acc
	}
	t.l.totalSupply = t.supply

	if t.l.sink != nil {
		for _, p := range t.events {
			t.l.sink.Record(p)
		}
	}
}

// toShares converts a principal amount to the internal share unit:
// amount * (totalSupply + offset) / (totalAssets + 1).
func (t *txn) toShares(amount int64, rounding fpmath.Rounding) (int64, error) {
	return fpmath.MulDiv(amount, t.supply+virtualOffset, t.assets+1, rounding)
}

// toAssets converts shares back to a principal amount:
// shares * (totalAssets + 1) / (totalSupply + offset).
func (t *txn) toAssets(shares int64, rounding fpmath.Rounding) (int64, error) {
	return fpmath.MulDiv(shares, t.assets+1, t.supply+virtualOffset, rounding)
}

// mint creates amount of principal for addr.
func (t *txn) mint(addr Address, amount int64) error {
	acc := t.account(addr)

	newAmount, err := fpmath.SafeAdd(acc.Amount, amount)
	if err != nil {
		return err
	}
	newSupply, err := fpmath.SafeAdd(t.supply, amount)
	if err != nil {
		return err
	}
	if newSupply > maxTotalSupply {
		return fpmath.ErrOverflow
	}

	acc.Amount = newAmount
	t.supply = newSupply
	return nil
}

// burn destroys amount of principal held by addr. Callers check the
// balance first.
func (t *txn) burn(addr Address, amount int64) error {
	acc := t.account(addr)
	if acc.Amount < amount {
		return ErrInsufficientBalance
	}
	acc.Amount -= amount
	t.supply -= amount
	return nil
}
