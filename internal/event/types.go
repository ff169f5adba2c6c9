package event

// HatSnapshot is the delegation fan-out in effect when an event fired.
type HatSnapshot struct {
	Recipients  []string `json:"recipients"`
	Proportions []uint32 `json:"proportions"`
}

// --- Ledger events ---

type Deposited struct {
	Sender   string `json:"sender"`
	Receiver string `json:"receiver"`
	Amount   int64  `json:"amount"`
}

func (e *Deposited) EventType() Type   { return TypeDeposited }
func (e *Deposited) AccountID() string { return e.Receiver }

type Withdrawn struct {
	Owner    string `json:"owner"`
	Receiver string `json:"receiver"`
	Amount   int64  `json:"amount"`
}

func (e *Withdrawn) EventType() Type   { return TypeWithdrawn }
func (e *Withdrawn) AccountID() string { return e.Owner }

type HatChanged struct {
	Account string      `json:"account"`
	OldHat  HatSnapshot `json:"old_hat"`
	NewHat  HatSnapshot `json:"new_hat"`
}

func (e *HatChanged) EventType() Type   { return TypeHatChanged }
func (e *HatChanged) AccountID() string { return e.Account }

type Delegated struct {
	Account string      `json:"account"`
	Amount  int64       `json:"amount"`
	Hat     HatSnapshot `json:"hat"`
}

func (e *Delegated) EventType() Type   { return TypeDelegated }
func (e *Delegated) AccountID() string { return e.Account }

type Recollected struct {
	Account string      `json:"account"`
	Amount  int64       `json:"amount"`
	Hat     HatSnapshot `json:"hat"`
}

func (e *Recollected) EventType() Type   { return TypeRecollected }
func (e *Recollected) AccountID() string { return e.Account }

type InterestClaimed struct {
	Account  string `json:"account"`
	Interest int64  `json:"interest"`
}

func (e *InterestClaimed) EventType() Type   { return TypeInterestClaimed }
func (e *InterestClaimed) AccountID() string { return e.Account }

type Transferred struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Amount int64  `json:"amount"`
}

func (e *Transferred) EventType() Type   { return TypeTransferred }
func (e *Transferred) AccountID() string { return e.From }

// --- Dam events ---

type DamOperated struct {
	Dam               string `json:"dam"`
	Amount            int64  `json:"amount"`
	PeriodSeconds     int64  `json:"period_seconds"`
	ReinvestmentRatio uint32 `json:"reinvestment_ratio"`
	AutoStreamRatio   uint32 `json:"auto_stream_ratio"`
}

func (e *DamOperated) EventType() Type   { return TypeDamOperated }
func (e *DamOperated) AccountID() string { return e.Dam }

type RoundStarted struct {
	Dam       string `json:"dam"`
	RoundID   int64  `json:"round_id"`
	StartTime int64  `json:"start_time"`
	EndTime   int64  `json:"end_time"`
}

func (e *RoundStarted) EventType() Type   { return TypeRoundStarted }
func (e *RoundStarted) AccountID() string { return e.Dam }

type RoundClosed struct {
	Dam        string `json:"dam"`
	RoundID    int64  `json:"round_id"`
	Discharged int64  `json:"discharged"`
}

func (e *RoundClosed) EventType() Type   { return TypeRoundClosed }
func (e *RoundClosed) AccountID() string { return e.Dam }

type WithdrawalScheduled struct {
	Dam      string `json:"dam"`
	Receiver string `json:"receiver"`
	Amount   int64  `json:"amount"`
}

func (e *WithdrawalScheduled) EventType() Type   { return TypeWithdrawalScheduled }
func (e *WithdrawalScheduled) AccountID() string { return e.Dam }

type WithdrawalExecuted struct {
	Dam      string `json:"dam"`
	Receiver string `json:"receiver"`
	Amount   int64  `json:"amount"`
}

func (e *WithdrawalExecuted) EventType() Type   { return TypeWithdrawalExecuted }
func (e *WithdrawalExecuted) AccountID() string { return e.Dam }

// WithdrawalFailed records a payout whose claim-then-transfer sequence
// failed at round close. The failure is suppressed so the round can
// advance; the funds stay with the dam until re-scheduled.
type WithdrawalFailed struct {
	Dam      string `json:"dam"`
	Receiver string `json:"receiver"`
	Amount   int64  `json:"amount"`
	Reason   string `json:"reason"`
}

func (e *WithdrawalFailed) EventType() Type   { return TypeWithdrawalFailed }
func (e *WithdrawalFailed) AccountID() string { return e.Dam }

type DamDecommissioned struct {
	Dam      string `json:"dam"`
	Receiver string `json:"receiver"`
}

func (e *DamDecommissioned) EventType() Type   { return TypeDamDecommissioned }
func (e *DamDecommissioned) AccountID() string { return e.Dam }

type UpstreamChanged struct {
	Dam               string `json:"dam"`
	PeriodSeconds     int64  `json:"period_seconds"`
	ReinvestmentRatio uint32 `json:"reinvestment_ratio"`
	AutoStreamRatio   uint32 `json:"auto_stream_ratio"`
}

func (e *UpstreamChanged) EventType() Type   { return TypeUpstreamChanged }
func (e *UpstreamChanged) AccountID() string { return e.Dam }

type OracleChanged struct {
	Dam    string `json:"dam"`
	Oracle string `json:"oracle"`
}

func (e *OracleChanged) EventType() Type   { return TypeOracleChanged }
func (e *OracleChanged) AccountID() string { return e.Dam }

type YieldDischarged struct {
	Distributor string   `json:"distributor"`
	Total       int64    `json:"total"`
	Streamed    int64    `json:"streamed"`
	Retained    int64    `json:"retained"`
	Recipients  []string `json:"recipients"`
	Amounts     []int64  `json:"amounts"`
}

func (e *YieldDischarged) EventType() Type   { return TypeYieldDischarged }
func (e *YieldDischarged) AccountID() string { return e.Distributor }
