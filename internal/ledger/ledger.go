// Package ledger implements the proportional-delegation share ledger:
// principal balances, per-account delegation hats, share-based
// interest accounting, and the transfer engine composed from them.
//
// All public operations run under one mutex and are atomic: a failure
// anywhere inside an operation leaves no partial state behind.
package ledger

import (
	"fmt"
	"math"
	"sync"

	"FlowLedger/internal/asset"
	"FlowLedger/internal/event"
	"FlowLedger/internal/fpmath"
)

// EntireBalance is the sentinel withdrawal amount meaning "everything".
const EntireBalance = math.MaxInt64

// maxTotalSupply caps minting so share-conversion intermediates stay
// comfortably inside the 128-bit window.
const maxTotalSupply = int64(1) << 62

// Sink receives domain events as operations commit.
type Sink interface {
	Record(p event.Payload)
}

// Ledger is the share ledger. It owns the account map and totals and
// holds the external asset pool under its own pool identity.
type Ledger struct {
	mu       sync.Mutex
	pool     asset.Pool
	self     Address
	accounts map[Address]*Account
	totalSupply int64
	sink     Sink
}

// New creates a ledger holding assets under the given pool identity.
// sink may be nil.
func New(pool asset.Pool, self Address, sink Sink) *Ledger {
	return &Ledger{
		pool:     pool,
		self:     self,
		accounts: make(map[Address]*Account),
		sink:     sink,
	}
}

// PoolAddress returns the identity under which the ledger holds the
// external asset.
func (l *Ledger) PoolAddress() Address {
	return l.self
}

// Deposit moves amount of the external asset from sender into the
// ledger and mints the same amount of principal to receiver,
// delegated through receiver's hat. Non-nil recipients replace
// receiver's hat first, so a first-time depositor can set a hat and
// fund it in one operation.
func (l *Ledger) Deposit(sender, receiver Address, amount int64, recipients []Address, proportions []uint32) error {
	if !sender.Valid() || !receiver.Valid() {
		return ErrInvalidAddress
	}
	if amount <= 0 {
		return fmt.Errorf("%w: deposit of %d", ErrInvalidAmountRequest, amount)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	// Validate the hat before touching the pool so validation
	// failures never need a refund.
	if recipients != nil {
		if len(recipients) != len(proportions) {
			return ErrInvalidHatLength
		}
		hat := Hat{Recipients: recipients, Proportions: proportions}
		if err := hat.Validate(); err != nil {
			return err
		}
	}

	// Snapshot the share rate before the asset lands so the deposit
	// converts at the pre-deposit rate.
	tx := l.begin()
	if err := l.pool.Transfer(string(sender), string(l.self), amount); err != nil {
		return err
	}
	if recipients != nil {
		if err := tx.changeHat(receiver, Hat{Recipients: recipients, Proportions: proportions}); err != nil {
			return l.refund(sender, amount, err)
		}
	}
	if err := tx.delegate(receiver, amount); err != nil {
		return l.refund(sender, amount, err)
	}
	if err := tx.mint(receiver, amount); err != nil {
		return l.refund(sender, amount, err)
	}
	tx.emit(&event.Deposited{Sender: string(sender), Receiver: string(receiver), Amount: amount})
	tx.commit()
	return nil
}

// refund returns a deposit after a failed mint path. If the pool
// refuses the refund the two errors are joined.
func (l *Ledger) refund(sender Address, amount int64, cause error) error {
	if err := l.pool.Transfer(string(l.self), string(sender), amount); err != nil {
		return fmt.Errorf("%w (refund also failed: %v)", cause, err)
	}
	return cause
}

// Withdraw burns amount of owner's principal and pays the external
// asset out to receiver. amount == EntireBalance withdraws the full
// balance. Returns the amount actually withdrawn.
func (l *Ledger) Withdraw(owner, receiver Address, amount int64) (int64, error) {
	if !owner.Valid() || !receiver.Valid() {
		return 0, ErrInvalidAddress
	}
	if amount <= 0 {
		return 0, fmt.Errorf("%w: withdrawal of %d", ErrInvalidAmountRequest, amount)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	tx := l.begin()
	if amount == EntireBalance {
		// Settle interest before reading the balance, so a hat that
		// includes the owner itself has its just-minted interest
		// withdrawn too instead of lingering as residual principal.
		if err := tx.claimLoanRecipients(owner); err != nil {
			return 0, err
		}
		amount = tx.account(owner).Amount
		if amount == 0 {
			return 0, nil
		}
	} else if balance := tx.account(owner).Amount; amount > balance {
		return 0, fmt.Errorf("%w: have %d, need %d", ErrInsufficientBalance, balance, amount)
	}

	if err := tx.recollect(owner, amount); err != nil {
		return 0, err
	}
	if err := tx.burn(owner, amount); err != nil {
		return 0, err
	}
	if err := l.pool.Transfer(string(l.self), string(receiver), amount); err != nil {
		return 0, err
	}
	tx.emit(&event.Withdrawn{Owner: string(owner), Receiver: string(receiver), Amount: amount})
	tx.commit()
	return amount, nil
}

// ChangeHat atomically replaces account's hat, migrating any existing
// delegation from the old fan-out to the new one.
func (l *Ledger) ChangeHat(account Address, recipients []Address, proportions []uint32) error {
	if !account.Valid() {
		return ErrInvalidAddress
	}
	if len(recipients) != len(proportions) {
		return ErrInvalidHatLength
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	tx := l.begin()
	if err := tx.changeHat(account, Hat{Recipients: recipients, Proportions: proportions}); err != nil {
		return err
	}
	tx.commit()
	return nil
}

// ClaimInterest materializes account's payable interest into fresh
// principal. Anyone may trigger a claim for any account. Returns the
// interest claimed.
func (l *Ledger) ClaimInterest(account Address) (int64, error) {
	if !account.Valid() {
		return 0, ErrInvalidAddress
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	tx := l.begin()
	interest, err := tx.claim(account)
	if err != nil {
		return 0, err
	}
	tx.commit()
	return interest, nil
}

// Transfer moves amount of principal from one account to another,
// recollecting from the sender's delegation and re-delegating through
// the receiver's hat as one atomic unit.
func (l *Ledger) Transfer(from, to Address, amount int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.transfer(from, to, amount)
}

// TransferFrom is the operator-initiated transfer surface. Allowance
// bookkeeping lives with the access-control layer; the ledger applies
// the same atomic recollect-delegate-move sequence.
func (l *Ledger) TransferFrom(operator, from, to Address, amount int64) error {
	if !operator.Valid() {
		return ErrInvalidAddress
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.transfer(from, to, amount)
}

func (l *Ledger) transfer(from, to Address, amount int64) error {
	if !from.Valid() || !to.Valid() {
		return ErrInvalidAddress
	}
	if amount <= 0 {
		return fmt.Errorf("%w: transfer of %d", ErrInvalidAmountRequest, amount)
	}

	tx := l.begin()
	fromAcc := tx.account(from)
	if fromAcc.Amount < amount {
		return fmt.Errorf("%w: have %d, need %d", ErrInsufficientBalance, fromAcc.Amount, amount)
	}

	if err := tx.recollect(from, amount); err != nil {
		return err
	}
	if err := tx.delegate(to, amount); err != nil {
		return err
	}

	toAcc := tx.account(to)
	newTo, err := fpmath.SafeAdd(toAcc.Amount, amount)
	if err != nil {
		return err
	}
	tx.account(from).Amount -= amount
	toAcc.Amount = newTo

	tx.emit(&event.Transferred{From: string(from), To: string(to), Amount: amount})
	tx.commit()
	return nil
}

// --- Views ---

// BalanceOf returns account's principal. Principal does not inflate
// on its own; yield is reflected only once claimed.
func (l *Ledger) BalanceOf(account Address) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balanceOf(account)
}

func (l *Ledger) balanceOf(account Address) int64 {
	if acc, ok := l.accounts[account]; ok {
		return acc.Amount
	}
	return 0
}

// TotalSupply returns the sum of all principal balances.
func (l *Ledger) TotalSupply() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.totalSupply
}

// TotalAssets returns the external asset balance the ledger holds.
// The difference between TotalAssets and TotalSupply is unclaimed
// aggregate interest.
func (l *Ledger) TotalAssets() int64 {
	return l.pool.BalanceOf(string(l.self))
}

// InterestPayable returns the interest account could claim right now.
func (l *Ledger) InterestPayable(account Address) (int64, error) {
	if !account.Valid() {
		return 0, ErrInvalidAddress
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.begin().payable(account)
}

// AccountData returns the external view of an account.
func (l *Ledger) AccountData(account Address) AccountData {
	l.mu.Lock()
	defer l.mu.Unlock()

	data := AccountData{Address: account}
	if acc, ok := l.accounts[account]; ok {
		data.Amount = acc.Amount
		data.DelegatedAmount = acc.DelegatedAmount
		data.DelegatedShares = acc.DelegatedShares
		data.InterestPaid = acc.InterestPaid
		data.Hat = acc.Hat.Clone()
	}
	return data
}

// HatOf returns account's current hat.
func (l *Ledger) HatOf(account Address) Hat {
	l.mu.Lock()
	defer l.mu.Unlock()
	if acc, ok := l.accounts[account]; ok {
		return acc.Hat.Clone()
	}
	return Hat{}
}
