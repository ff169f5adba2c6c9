package ledger

// LoanSnapshot is a serializable outbound delegation record.
type LoanSnapshot struct {
	Recipient string `json:"recipient"`
	Amount    int64  `json:"amount"`
	Shares    int64  `json:"shares"`
}

// AccountSnapshot is a serializable account record.
type AccountSnapshot struct {
	Address         string         `json:"address"`
	Amount          int64          `json:"amount"`
	DelegatedAmount int64          `json:"delegated_amount"`
	DelegatedShares int64          `json:"delegated_shares"`
	InterestPaid    int64          `json:"interest_paid"`
	HatRecipients   []string       `json:"hat_recipients,omitempty"`
	HatProportions  []uint32       `json:"hat_proportions,omitempty"`
	Loans           []LoanSnapshot `json:"loans,omitempty"`
}

// Snapshot captures the ledger's full in-memory state for warm
// restarts.
type Snapshot struct {
	TotalSupply int64             `json:"total_supply"`
	Accounts    []AccountSnapshot `json:"accounts"`
}

// TakeSnapshot copies the current state.
func (l *Ledger) TakeSnapshot() *Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	snap := &Snapshot{
		TotalSupply: l.totalSupply,
		Accounts:    make([]AccountSnapshot, 0, len(l.accounts)),
	}
	for addr, acc := range l.accounts {
		as := AccountSnapshot{
			Address:         string(addr),
			Amount:          acc.Amount,
			DelegatedAmount: acc.DelegatedAmount,
			DelegatedShares: acc.DelegatedShares,
			InterestPaid:    acc.InterestPaid,
		}
		for _, r := range acc.Hat.Recipients {
			as.HatRecipients = append(as.HatRecipients, string(r))
		}
		as.HatProportions = append(as.HatProportions, acc.Hat.Proportions...)
		for _, loan := range acc.Loans {
			as.Loans = append(as.Loans, LoanSnapshot{
				Recipient: string(loan.Recipient),
				Amount:    loan.Amount,
				Shares:    loan.Shares,
			})
		}
		snap.Accounts = append(snap.Accounts, as)
	}
	return snap
}

// RestoreSnapshot replaces the ledger's state with a snapshot.
func (l *Ledger) RestoreSnapshot(snap *Snapshot) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.totalSupply = snap.TotalSupply
	l.accounts = make(map[Address]*Account, len(snap.Accounts))
	for _, as := range snap.Accounts {
		acc := &Account{
			Amount:          as.Amount,
			DelegatedAmount: as.DelegatedAmount,
			DelegatedShares: as.DelegatedShares,
			InterestPaid:    as.InterestPaid,
		}
		for _, r := range as.HatRecipients {
			acc.Hat.Recipients = append(acc.Hat.Recipients, Address(r))
		}
		acc.Hat.Proportions = append(acc.Hat.Proportions, as.HatProportions...)
		for _, ls := range as.Loans {
			acc.Loans = append(acc.Loans, &Loan{
				Recipient: Address(ls.Recipient),
				Amount:    ls.Amount,
				Shares:    ls.Shares,
			})
		}
		l.accounts[Address(as.Address)] = acc
	}
}
