// Package dam implements the round-based treasury on top of the
// share ledger: a state machine that deposits treasury principal,
// redirects its yield to a distributor account, and closes timed
// rounds gated by an oracle-signed distribution plan.
package dam

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"FlowLedger/internal/event"
	"FlowLedger/internal/ledger"
	"FlowLedger/internal/observability"
	"FlowLedger/internal/oracle"
	"FlowLedger/internal/split"
)

// State is the dam lifecycle state.
type State int

const (
	// StateIdle means never operated, or fully decommissioned with
	// cleanup finished.
	StateIdle State = iota

	// StateOperating means one active round and flowing upstream.
	StateOperating

	// StateDecommissioned means the exit is armed: flowing is off and
	// the final withdrawal executes at the next round close.
	StateDecommissioned
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateOperating:
		return "operating"
	case StateDecommissioned:
		return "decommissioned"
	default:
		return "unknown"
	}
}

// Upstream is the dam's round configuration.
type Upstream struct {
	// Period is the round window length.
	Period time.Duration

	// ReinvestmentRatio is the basis-point share of yield the dam
	// keeps delegated to itself instead of the distributor.
	ReinvestmentRatio uint32

	// AutoStreamRatio is the basis-point share of each discharge the
	// distributor streams out immediately.
	AutoStreamRatio uint32
}

// Round is one timed window. EndRound is legal once the clock passes
// EndTime.
type Round struct {
	ID        int64
	StartTime time.Time
	EndTime   time.Time
}

// Withdrawal is a queued payout executed at the next round close.
type Withdrawal struct {
	ID       uuid.UUID
	Receiver ledger.Address
	Amount   int64
}

// Config wires a Dam. Clock defaults to the real clock; Sink and
// Metrics may be nil.
type Config struct {
	Ledger      *ledger.Ledger
	Distributor *Distributor
	Address     ledger.Address
	Verifier    oracle.Verifier
	Clock       clockwork.Clock
	Sink        ledger.Sink
	Logger      zerolog.Logger
	Metrics     *observability.Metrics
}

// Dam is the round scheduler. One instance per treasury; all entry
// points serialize on one mutex, matching the ledger's discipline.
type Dam struct {
	mu          sync.Mutex
	ledger      *ledger.Ledger
	distributor *Distributor
	addr        ledger.Address
	verifier    oracle.Verifier
	clock       clockwork.Clock
	sink        ledger.Sink
	log         zerolog.Logger
	metrics     *observability.Metrics

	state       State
	flowing     bool
	upstream    Upstream
	round       Round
	withdrawals []Withdrawal

	// Staged config, applied at the next round close.
	pendingUpstream *Upstream
	pendingOracle   oracle.Verifier
}

// New creates an idle dam.
func New(cfg Config) *Dam {
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Dam{
		ledger:      cfg.Ledger,
		distributor: cfg.Distributor,
		addr:        cfg.Address,
		verifier:    cfg.Verifier,
		clock:       clock,
		sink:        cfg.Sink,
		log:         cfg.Logger,
		metrics:     cfg.Metrics,
	}
}

// OperateDam transitions Idle to Operating: stores the upstream
// config, deposits amount under the dam's own self hat, opens round 1,
// and redirects the dam's hat at the distributor.
func (d *Dam) OperateDam(amount int64, period time.Duration, reinvestmentRatio, autoStreamRatio uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.flowing {
		return ErrDamAlreadyOperating
	}
	if period <= 0 {
		return fmt.Errorf("%w: %s", ErrInvalidPeriod, period)
	}
	if err := validateRatios(reinvestmentRatio, autoStreamRatio); err != nil {
		return err
	}

	// A prior decommission leaves the redirect hat behind; the new
	// deposit must start under the self hat.
	if !d.ledger.HatOf(d.addr).IsZero() {
		if err := d.ledger.ChangeHat(d.addr, nil, nil); err != nil {
			return fmt.Errorf("reset hat: %w", err)
		}
	}
	if amount > 0 {
		if err := d.ledger.Deposit(d.addr, d.addr, amount, nil, nil); err != nil {
			return err
		}
	}

	d.upstream = Upstream{
		Period:            period,
		ReinvestmentRatio: reinvestmentRatio,
		AutoStreamRatio:   autoStreamRatio,
	}

	now := d.clock.Now()
	d.round = Round{ID: 1, StartTime: now, EndTime: now.Add(period)}
	d.flowing = true
	d.state = StateOperating

	recipients, proportions := d.redirectHat()
	if err := d.ledger.ChangeHat(d.addr, recipients, proportions); err != nil {
		d.flowing = false
		d.state = StateIdle
		d.round = Round{}
		return fmt.Errorf("set redirect hat: %w", err)
	}

	d.record(&event.DamOperated{
		Dam:               string(d.addr),
		Amount:            amount,
		PeriodSeconds:     int64(period / time.Second),
		ReinvestmentRatio: reinvestmentRatio,
		AutoStreamRatio:   autoStreamRatio,
	})
	d.recordRoundStarted()
	if d.metrics != nil {
		d.metrics.CurrentRound.Set(float64(d.round.ID))
	}
	d.log.Info().
		Int64("amount", amount).
		Dur("period", period).
		Uint32("reinvestment_bp", reinvestmentRatio).
		Uint32("auto_stream_bp", autoStreamRatio).
		Msg("dam operating")
	return nil
}

// EndRound closes the current round: it verifies the oracle's
// signature over the plan, discharges yield along it, executes queued
// withdrawals, applies staged config, and opens the next round while
// the dam is still flowing. This is the only place external input
// enters the state machine.
func (d *Dam) EndRound(data, signature []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state == StateIdle {
		return ErrDamNotOperating
	}
	now := d.clock.Now()
	if now.Before(d.round.EndTime) {
		return fmt.Errorf("%w: %s remaining", ErrRoundNotEnded, d.round.EndTime.Sub(now))
	}

	identity, err := d.verifier.Verify(data, signature)
	if err != nil {
		return err
	}
	if identity != d.verifier.Address() {
		return fmt.Errorf("%w: signer %s is not oracle %s",
			oracle.ErrInvalidSignature, identity, d.verifier.Address())
	}

	discharged, err := d.distributor.DischargeYield(data, d.upstream.AutoStreamRatio)
	if err != nil {
		return err
	}

	d.executeWithdrawals()
	d.applyPending()

	closed := d.round.ID
	d.record(&event.RoundClosed{Dam: string(d.addr), RoundID: closed, Discharged: discharged})
	if d.metrics != nil {
		d.metrics.RoundsClosed.Inc()
		d.metrics.YieldDischargedTotal.Add(float64(discharged))
	}
	d.log.Info().Int64("round", closed).Int64("discharged", discharged).Msg("round closed")

	if d.flowing {
		// Re-assert the hat before advancing the round so a failure
		// leaves the closed round as the dam's last committed state.
		recipients, proportions := d.redirectHat()
		if err := d.ledger.ChangeHat(d.addr, recipients, proportions); err != nil {
			return fmt.Errorf("re-assert redirect hat: %w", err)
		}
		d.round = Round{ID: closed + 1, StartTime: now, EndTime: now.Add(d.upstream.Period)}
		d.recordRoundStarted()
		if d.metrics != nil {
			d.metrics.CurrentRound.Set(float64(d.round.ID))
		}
	} else {
		// Decommission cleanup finished; the dam can be operated again.
		d.state = StateIdle
		d.round = Round{}
		if d.metrics != nil {
			d.metrics.CurrentRound.Set(0)
		}
	}
	return nil
}

// DecommissionDam arms the exit: it queues a withdrawal of the entire
// remaining balance to receiver and stops the flow. Funds move at the
// next EndRound, not here.
func (d *Dam) DecommissionDam(receiver ledger.Address) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.flowing {
		return ErrDamNotOperating
	}
	if !receiver.Valid() {
		return ErrInvalidReceiver
	}

	d.queueWithdrawal(receiver, ledger.EntireBalance)
	d.flowing = false
	d.state = StateDecommissioned

	d.record(&event.DamDecommissioned{Dam: string(d.addr), Receiver: string(receiver)})
	d.log.Info().Str("receiver", string(receiver)).Msg("dam decommissioned")
	return nil
}

// Deposit adds treasury principal while operating. The deposit
// delegates through the current redirect hat.
func (d *Dam) Deposit(amount int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.flowing {
		return ErrDamNotOperating
	}
	return d.ledger.Deposit(d.addr, d.addr, amount, nil, nil)
}

// ScheduleWithdrawal queues a payout for the next round close.
func (d *Dam) ScheduleWithdrawal(amount int64, receiver ledger.Address) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.flowing {
		return ErrDamNotOperating
	}
	if !receiver.Valid() {
		return ErrInvalidReceiver
	}
	if amount <= 0 {
		return fmt.Errorf("%w: withdrawal of %d", ledger.ErrInvalidAmountRequest, amount)
	}
	if amount != ledger.EntireBalance {
		if balance := d.ledger.BalanceOf(d.addr); amount > balance {
			return fmt.Errorf("%w: have %d, need %d", ledger.ErrInsufficientBalance, balance, amount)
		}
	}

	d.queueWithdrawal(receiver, amount)
	return nil
}

// SetUpstream stages a new round configuration. It takes effect from
// the next round, never retroactively.
func (d *Dam) SetUpstream(period time.Duration, reinvestmentRatio, autoStreamRatio uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.flowing {
		return ErrDamNotOperating
	}
	if period <= 0 {
		return fmt.Errorf("%w: %s", ErrInvalidPeriod, period)
	}
	if err := validateRatios(reinvestmentRatio, autoStreamRatio); err != nil {
		return err
	}

	d.pendingUpstream = &Upstream{
		Period:            period,
		ReinvestmentRatio: reinvestmentRatio,
		AutoStreamRatio:   autoStreamRatio,
	}
	d.log.Info().Dur("period", period).Msg("upstream change staged for next round")
	return nil
}

// SetOracle stages a new oracle key (compressed, hex). It takes
// effect from the next round.
func (d *Dam) SetOracle(pubKeyHex string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.flowing {
		return ErrDamNotOperating
	}
	verifier, err := oracle.NewECDSAVerifierFromHex(pubKeyHex)
	if err != nil {
		return err
	}

	d.pendingOracle = verifier
	d.log.Info().Str("oracle", verifier.Address()).Msg("oracle change staged for next round")
	return nil
}

// --- Views ---

// Upstream returns the active round configuration.
func (d *Dam) Upstream() Upstream {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.upstream
}

// Round returns the current round window.
func (d *Dam) Round() Round {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.round
}

// Withdrawals returns the i-th queued withdrawal.
func (d *Dam) Withdrawals(i int) (Withdrawal, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i < 0 || i >= len(d.withdrawals) {
		return Withdrawal{}, false
	}
	return d.withdrawals[i], true
}

// WithdrawalCount returns the queue length.
func (d *Dam) WithdrawalCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.withdrawals)
}

// Oracle returns the active oracle address.
func (d *Dam) Oracle() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.verifier.Address()
}

// State returns the lifecycle state.
func (d *Dam) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Flowing reports whether rounds keep opening.
func (d *Dam) Flowing() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.flowing
}

// --- internals; callers hold d.mu ---

// redirectHat builds the hat that routes the dam's yield: the
// distributor gets everything except the reinvested share, which the
// dam keeps by including itself. The degenerate ratios collapse to
// single-entry hats because proportions must be positive.
func (d *Dam) redirectHat() ([]ledger.Address, []uint32) {
	r := d.upstream.ReinvestmentRatio
	switch r {
	case 0:
		return []ledger.Address{d.distributor.Address()}, []uint32{split.FullBasisPoints}
	case split.FullBasisPoints:
		return []ledger.Address{d.addr}, []uint32{split.FullBasisPoints}
	default:
		return []ledger.Address{d.distributor.Address(), d.addr},
			[]uint32{split.FullBasisPoints - r, r}
	}
}

func (d *Dam) queueWithdrawal(receiver ledger.Address, amount int64) {
	w := Withdrawal{ID: uuid.New(), Receiver: receiver, Amount: amount}
	d.withdrawals = append(d.withdrawals, w)
	d.record(&event.WithdrawalScheduled{
		Dam:      string(d.addr),
		Receiver: string(receiver),
		Amount:   amount,
	})
	d.log.Info().
		Str("withdrawal_id", w.ID.String()).
		Str("receiver", string(receiver)).
		Int64("amount", amount).
		Msg("withdrawal scheduled")
}

// executeWithdrawals runs the queue at round close. Each payout's
// claim-then-withdraw sequence is fallible; a failure is logged,
// counted and suppressed so the round always advances. Suppressed
// funds stay with the dam until re-scheduled.
func (d *Dam) executeWithdrawals() {
	for _, w := range d.withdrawals {
		claimed, err := d.ledger.ClaimInterest(d.addr)
		if err != nil {
			d.suppress(w, err)
			continue
		}
		if d.metrics != nil && claimed > 0 {
			d.metrics.InterestClaimedTotal.Add(float64(claimed))
		}
		paid, err := d.ledger.Withdraw(d.addr, w.Receiver, w.Amount)
		if err != nil {
			d.suppress(w, err)
			continue
		}
		d.record(&event.WithdrawalExecuted{
			Dam:      string(d.addr),
			Receiver: string(w.Receiver),
			Amount:   paid,
		})
		if d.metrics != nil {
			d.metrics.WithdrawalsExecuted.Inc()
		}
		d.log.Info().
			Str("withdrawal_id", w.ID.String()).
			Str("receiver", string(w.Receiver)).
			Int64("amount", paid).
			Msg("withdrawal executed")
	}
	d.withdrawals = nil
}

func (d *Dam) suppress(w Withdrawal, err error) {
	d.record(&event.WithdrawalFailed{
		Dam:      string(d.addr),
		Receiver: string(w.Receiver),
		Amount:   w.Amount,
		Reason:   err.Error(),
	})
	if d.metrics != nil {
		d.metrics.WithdrawalsSuppressed.Inc()
	}
	d.log.Error().
		Err(err).
		Str("withdrawal_id", w.ID.String()).
		Str("receiver", string(w.Receiver)).
		Int64("amount", w.Amount).
		Msg("withdrawal failed, suppressed")
}

// applyPending swaps staged config in at the round boundary.
func (d *Dam) applyPending() {
	if d.pendingUpstream != nil {
		d.upstream = *d.pendingUpstream
		d.pendingUpstream = nil
		d.record(&event.UpstreamChanged{
			Dam:               string(d.addr),
			PeriodSeconds:     int64(d.upstream.Period / time.Second),
			ReinvestmentRatio: d.upstream.ReinvestmentRatio,
			AutoStreamRatio:   d.upstream.AutoStreamRatio,
		})
	}
	if d.pendingOracle != nil {
		d.verifier = d.pendingOracle
		d.pendingOracle = nil
		d.record(&event.OracleChanged{Dam: string(d.addr), Oracle: d.verifier.Address()})
	}
}

func (d *Dam) recordRoundStarted() {
	d.record(&event.RoundStarted{
		Dam:       string(d.addr),
		RoundID:   d.round.ID,
		StartTime: d.round.StartTime.Unix(),
		EndTime:   d.round.EndTime.Unix(),
	})
}

func (d *Dam) record(p event.Payload) {
	if d.sink != nil {
		d.sink.Record(p)
	}
}

func validateRatios(reinvestmentRatio, autoStreamRatio uint32) error {
	if reinvestmentRatio > split.FullBasisPoints {
		return fmt.Errorf("%w: reinvestment %d bp", ErrInvalidRatio, reinvestmentRatio)
	}
	if autoStreamRatio > split.FullBasisPoints {
		return fmt.Errorf("%w: auto-stream %d bp", ErrInvalidRatio, autoStreamRatio)
	}
	return nil
}
