package ledger

// Address identifies a ledger account. Addresses are opaque hex
// strings assigned by the identity layer; the zero value is invalid.
type Address string

// Valid reports whether the address is usable as an account identity.
func (a Address) Valid() bool {
	return a != ""
}

// Loan is one outbound delegation record: principal the owning
// account has attributed to a recipient, with the share-unit amount
// recorded at delegation time. Recollection draws these records down
// so a recipient's delegatedAmount can never be reduced below what
// this account actually delegated to it.
type Loan struct {
	Recipient Address
	Amount    int64
	Shares    int64
}

// Account is one ledger record. Amount is principal owned exclusively
// by the account; DelegatedAmount/DelegatedShares track principal the
// account holds as a delegate on behalf of others; InterestPaid is
// cumulative interest already materialized into Amount.
type Account struct {
	Amount          int64
	Hat             Hat
	DelegatedAmount int64
	DelegatedShares int64
	InterestPaid    int64

	// Loans are insertion-ordered outbound delegation records.
	// Invariant: the amounts sum to Amount whenever the account is
	// fully delegated (always, outside a mid-operation window).
	Loans []*Loan
}

func (a *Account) clone() *Account {
	c := &Account{
		Amount:          a.Amount,
		Hat:             a.Hat.Clone(),
		DelegatedAmount: a.DelegatedAmount,
		DelegatedShares: a.DelegatedShares,
		InterestPaid:    a.InterestPaid,
		Loans:           make([]*Loan, len(a.Loans)),
	}
	for i, l := range a.Loans {
		cp := *l
		c.Loans[i] = &cp
	}
	return c
}

// addLoan extends an existing record for the recipient or appends a
// new one.
func (a *Account) addLoan(recipient Address, amount, shares int64) {
	for _, l := range a.Loans {
		if l.Recipient == recipient {
			l.Amount += amount
			l.Shares += shares
			return
		}
	}
	a.Loans = append(a.Loans, &Loan{Recipient: recipient, Amount: amount, Shares: shares})
}

// loanedTotal sums the outbound delegation records.
func (a *Account) loanedTotal() int64 {
	var total int64
	for _, l := range a.Loans {
		total += l.Amount
	}
	return total
}

// dropEmptyLoans removes fully drawn-down records.
func (a *Account) dropEmptyLoans() {
	kept := a.Loans[:0]
	for _, l := range a.Loans {
		if l.Amount > 0 || l.Shares > 0 {
			kept = append(kept, l)
		}
	}
	a.Loans = kept
}

// AccountData is the external view of an account.
type AccountData struct {
	Address         Address `json:"address"`
	Amount          int64   `json:"amount"`
	DelegatedAmount int64   `json:"delegated_amount"`
	DelegatedShares int64   `json:"delegated_shares"`
	InterestPaid    int64   `json:"interest_paid"`
	Hat             Hat     `json:"hat"`
}
