// Package asset models the external yield-bearing token the ledger is
// denominated in. The ledger never looks inside the pool; it only
// moves value and reads balances, and the pool's balance for the
// ledger account grows on its own as yield accrues.
package asset

import (
	"errors"
	"fmt"
	"sync"

	"FlowLedger/internal/fpmath"
)

var (
	// ErrInsufficientFunds indicates a transfer larger than the
	// sender's pool balance.
	ErrInsufficientFunds = errors.New("asset: insufficient funds")

	// ErrTransferRejected indicates the receiving side refused the
	// transfer. Round-close withdrawal execution must tolerate this.
	ErrTransferRejected = errors.New("asset: transfer rejected")
)

// Pool is the external asset surface the ledger depends on. Both
// calls are atomic from the caller's point of view: Transfer either
// fully moves value or fails with no effect, and BalanceOf reflects
// all value available at the instant of the call.
type Pool interface {
	Transfer(from, to string, amount int64) error
	BalanceOf(holder string) int64
}

// VirtualPool is an in-memory Pool used by tests and the dev binary.
// Accrue simulates rebasing yield landing on a holder's balance.
type VirtualPool struct {
	mu       sync.Mutex
	balances map[string]int64
	rejected map[string]bool
}

func NewVirtualPool() *VirtualPool {
	return &VirtualPool{
		balances: make(map[string]int64),
		rejected: make(map[string]bool),
	}
}

// Transfer moves amount from one holder to another.
func (p *VirtualPool) Transfer(from, to string, amount int64) error {
	if amount < 0 {
		return fmt.Errorf("%w: negative amount %d", ErrInsufficientFunds, amount)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.rejected[to] {
		return fmt.Errorf("%w: receiver %s", ErrTransferRejected, to)
	}
	if p.balances[from] < amount {
		return fmt.Errorf("%w: %s has %d, need %d", ErrInsufficientFunds, from, p.balances[from], amount)
	}

	newTo, err := fpmath.SafeAdd(p.balances[to], amount)
	if err != nil {
		return err
	}
	p.balances[from] -= amount
	p.balances[to] = newTo
	return nil
}

// BalanceOf returns the holder's current pool balance.
func (p *VirtualPool) BalanceOf(holder string) int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.balances[holder]
}

// Accrue credits yield to a holder out of thin air, simulating the
// external asset's autonomous growth.
func (p *VirtualPool) Accrue(holder string, amount int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.balances[holder] += amount
}

// SetRejecting marks a holder as refusing inbound transfers. Used by
// tests to exercise the suppressed-failure path at round close.
func (p *VirtualPool) SetRejecting(holder string, rejecting bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rejected[holder] = rejecting
}
