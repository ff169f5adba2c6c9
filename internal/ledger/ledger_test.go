package ledger_test

import (
	"errors"
	"strings"
	"testing"

	"FlowLedger/internal/asset"
	"FlowLedger/internal/event"
	"FlowLedger/internal/ledger"
	"FlowLedger/internal/split"
)

const poolAddr = ledger.Address("flow-pool")

func newTestLedger(t *testing.T) (*ledger.Ledger, *asset.VirtualPool) {
	t.Helper()
	pool := asset.NewVirtualPool()
	pool.Accrue("alice", 10_000_000)
	pool.Accrue("dave", 10_000_000)
	return ledger.New(pool, poolAddr, nil), pool
}

// checkInvariants verifies the global accounting identities:
// totalSupply equals both the sum of principals and the sum of
// delegated amounts, and the asset pot covers the supply.
func checkInvariants(t *testing.T, l *ledger.Ledger) {
	t.Helper()
	snap := l.TakeSnapshot()

	var sumAmount, sumDelegated int64
	for _, acc := range snap.Accounts {
		sumAmount += acc.Amount
		sumDelegated += acc.DelegatedAmount
	}
	if got, want := l.TotalSupply(), sumAmount; got != want {
		t.Errorf("TotalSupply = %d, sum of principals = %d", got, want)
	}
	if got, want := sumDelegated, sumAmount; got != want {
		t.Errorf("sum of delegated = %d, sum of principals = %d", got, want)
	}
	if assets, supply := l.TotalAssets(), l.TotalSupply(); assets < supply {
		t.Errorf("TotalAssets = %d < TotalSupply = %d", assets, supply)
	}
}

func TestDepositSelfHat(t *testing.T) {
	l, pool := newTestLedger(t)

	if err := l.Deposit("alice", "alice", 1_000_000, nil, nil); err != nil {
		t.Fatalf("Deposit: %v", err)
	}

	if got := l.BalanceOf("alice"); got != 1_000_000 {
		t.Errorf("BalanceOf(alice) = %d, want 1000000", got)
	}
	if got := l.TotalSupply(); got != 1_000_000 {
		t.Errorf("TotalSupply = %d, want 1000000", got)
	}
	if got := l.TotalAssets(); got != 1_000_000 {
		t.Errorf("TotalAssets = %d, want 1000000", got)
	}
	if got := pool.BalanceOf("alice"); got != 9_000_000 {
		t.Errorf("pool balance of alice = %d, want 9000000", got)
	}

	data := l.AccountData("alice")
	if data.DelegatedAmount != 1_000_000 {
		t.Errorf("DelegatedAmount = %d, want 1000000 (self-delegation)", data.DelegatedAmount)
	}
	if data.DelegatedShares != 1_000_000 {
		t.Errorf("DelegatedShares = %d, want 1000000 at genesis rate", data.DelegatedShares)
	}
	checkInvariants(t, l)
}

func TestDepositWithHat(t *testing.T) {
	l, _ := newTestLedger(t)

	err := l.Deposit("alice", "alice", 1_000_000,
		[]ledger.Address{"bob", "charlie"}, []uint32{7000, 3000})
	if err != nil {
		t.Fatalf("Deposit: %v", err)
	}

	if got := l.BalanceOf("alice"); got != 1_000_000 {
		t.Errorf("BalanceOf(alice) = %d, want 1000000", got)
	}
	if got := l.BalanceOf("bob"); got != 0 {
		t.Errorf("BalanceOf(bob) = %d, want 0 (delegation is not principal)", got)
	}
	if got := l.AccountData("bob").DelegatedAmount; got != 700_000 {
		t.Errorf("bob DelegatedAmount = %d, want 700000", got)
	}
	if got := l.AccountData("charlie").DelegatedAmount; got != 300_000 {
		t.Errorf("charlie DelegatedAmount = %d, want 300000", got)
	}

	hat := l.HatOf("alice")
	if len(hat.Recipients) != 2 || hat.Recipients[0] != "bob" || hat.Recipients[1] != "charlie" {
		t.Errorf("HatOf(alice).Recipients = %v, want [bob charlie]", hat.Recipients)
	}
	checkInvariants(t, l)
}

func TestDepositSplitsLargeAmountByProportion(t *testing.T) {
	pool := asset.NewVirtualPool()
	pool.Accrue("alice", 1_000_000_000_000_000_000)
	l := ledger.New(pool, poolAddr, nil)

	// The hat split of a deposit this size overflows a naive int64
	// product; each recipient must still get its exact floor share.
	err := l.Deposit("alice", "alice", 1_000_000_000_000_000_000,
		[]ledger.Address{"bob", "charlie"}, []uint32{7000, 3000})
	if err != nil {
		t.Fatalf("Deposit: %v", err)
	}

	if got := l.AccountData("bob").DelegatedAmount; got != 700_000_000_000_000_000 {
		t.Errorf("bob DelegatedAmount = %d, want 700000000000000000", got)
	}
	if got := l.AccountData("charlie").DelegatedAmount; got != 300_000_000_000_000_000 {
		t.Errorf("charlie DelegatedAmount = %d, want 300000000000000000", got)
	}
	checkInvariants(t, l)
}

func TestDepositRejectsBadInput(t *testing.T) {
	l, pool := newTestLedger(t)
	before := pool.BalanceOf("alice")

	tests := []struct {
		name        string
		amount      int64
		recipients  []ledger.Address
		proportions []uint32
		wantErr     error
	}{
		{"zero amount", 0, nil, nil, ledger.ErrInvalidAmountRequest},
		{"negative amount", -5, nil, nil, ledger.ErrInvalidAmountRequest},
		{"length mismatch", 100, []ledger.Address{"bob"}, []uint32{5000, 5000}, ledger.ErrInvalidHatLength},
		{"bad proportion sum", 100, []ledger.Address{"bob", "charlie"}, []uint32{7000, 8000}, split.ErrInvalidProportion},
		{"empty recipient", 100, []ledger.Address{""}, []uint32{10000}, ledger.ErrInvalidAddress},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := l.Deposit("alice", "alice", tt.amount, tt.recipients, tt.proportions)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Deposit error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	// Validation failures happen before the pool is touched.
	if got := pool.BalanceOf("alice"); got != before {
		t.Errorf("pool balance of alice = %d, want untouched %d", got, before)
	}
	if got := l.TotalSupply(); got != 0 {
		t.Errorf("TotalSupply = %d, want 0", got)
	}
}

func TestDepositReportsProportionSum(t *testing.T) {
	l, _ := newTestLedger(t)

	err := l.Deposit("alice", "alice", 100,
		[]ledger.Address{"bob", "charlie"}, []uint32{7000, 8000})
	if err == nil {
		t.Fatal("Deposit accepted proportions summing to 15000")
	}
	if !strings.Contains(err.Error(), "15000") {
		t.Errorf("error %q does not report the offending sum 15000", err)
	}
}

func TestWithdraw(t *testing.T) {
	l, pool := newTestLedger(t)

	if err := l.Deposit("alice", "alice", 1_000_000, nil, nil); err != nil {
		t.Fatalf("Deposit: %v", err)
	}

	got, err := l.Withdraw("alice", "alice", 400_000)
	if err != nil {
		t.Fatalf("Withdraw: %v", err)
	}
	if got != 400_000 {
		t.Errorf("Withdraw returned %d, want 400000", got)
	}
	if got := l.BalanceOf("alice"); got != 600_000 {
		t.Errorf("BalanceOf(alice) = %d, want 600000", got)
	}
	if got := pool.BalanceOf("alice"); got != 9_400_000 {
		t.Errorf("pool balance of alice = %d, want 9400000", got)
	}
	checkInvariants(t, l)

	// Sentinel withdraws whatever is left.
	got, err = l.Withdraw("alice", "alice", ledger.EntireBalance)
	if err != nil {
		t.Fatalf("Withdraw entire: %v", err)
	}
	if got != 600_000 {
		t.Errorf("entire-balance withdrawal = %d, want 600000", got)
	}
	if got := l.TotalSupply(); got != 0 {
		t.Errorf("TotalSupply = %d, want 0", got)
	}
	checkInvariants(t, l)
}

func TestWithdrawEntireBalanceWhenEmpty(t *testing.T) {
	l, _ := newTestLedger(t)

	got, err := l.Withdraw("alice", "alice", ledger.EntireBalance)
	if err != nil {
		t.Fatalf("Withdraw: %v", err)
	}
	if got != 0 {
		t.Errorf("Withdraw = %d, want 0 for empty account", got)
	}
}

func TestWithdrawEntireBalanceIncludesOwnInterest(t *testing.T) {
	l, pool := newTestLedger(t)

	// Full self-reinvestment: alice's yield mints back to alice.
	err := l.Deposit("alice", "alice", 1_000_000,
		[]ledger.Address{"alice"}, []uint32{10000})
	if err != nil {
		t.Fatalf("Deposit: %v", err)
	}
	pool.Accrue(string(poolAddr), 100_000)

	// The sentinel must settle the pending claim first and pay out
	// principal plus the just-minted interest, leaving nothing behind.
	got, err := l.Withdraw("alice", "alice", ledger.EntireBalance)
	if err != nil {
		t.Fatalf("Withdraw: %v", err)
	}
	if got != 1_099_999 {
		t.Errorf("Withdraw = %d, want 1099999 (principal plus claimed interest)", got)
	}
	if got := l.BalanceOf("alice"); got != 0 {
		t.Errorf("BalanceOf(alice) = %d, want 0", got)
	}
	if p, _ := l.InterestPayable("alice"); p != 0 {
		t.Errorf("InterestPayable(alice) = %d, want 0", p)
	}
	if got := l.TotalSupply(); got != 0 {
		t.Errorf("TotalSupply = %d, want 0", got)
	}
	checkInvariants(t, l)
}

func TestWithdrawInsufficient(t *testing.T) {
	l, _ := newTestLedger(t)

	if err := l.Deposit("alice", "alice", 1000, nil, nil); err != nil {
		t.Fatalf("Deposit: %v", err)
	}
	if _, err := l.Withdraw("alice", "alice", 1001); !errors.Is(err, ledger.ErrInsufficientBalance) {
		t.Fatalf("Withdraw error = %v, want ErrInsufficientBalance", err)
	}
	if got := l.BalanceOf("alice"); got != 1000 {
		t.Errorf("BalanceOf(alice) = %d, want 1000 after failed withdrawal", got)
	}
}

func TestWithdrawFromHattedAccount(t *testing.T) {
	l, _ := newTestLedger(t)

	err := l.Deposit("alice", "alice", 1_000_000,
		[]ledger.Address{"bob", "charlie"}, []uint32{7000, 3000})
	if err != nil {
		t.Fatalf("Deposit: %v", err)
	}

	if _, err := l.Withdraw("alice", "alice", 500_000); err != nil {
		t.Fatalf("Withdraw: %v", err)
	}
	if got := l.BalanceOf("alice"); got != 500_000 {
		t.Errorf("BalanceOf(alice) = %d, want 500000", got)
	}
	bob := l.AccountData("bob").DelegatedAmount
	charlie := l.AccountData("charlie").DelegatedAmount
	if bob+charlie != 500_000 {
		t.Errorf("remaining delegation = %d+%d, want sum 500000", bob, charlie)
	}
	checkInvariants(t, l)
}

func TestInterestAccrual(t *testing.T) {
	l, pool := newTestLedger(t)

	err := l.Deposit("alice", "alice", 1_000_000,
		[]ledger.Address{"bob", "charlie"}, []uint32{7000, 3000})
	if err != nil {
		t.Fatalf("Deposit: %v", err)
	}

	payable := func(a ledger.Address) int64 {
		t.Helper()
		p, err := l.InterestPayable(a)
		if err != nil {
			t.Fatalf("InterestPayable(%s): %v", a, err)
		}
		return p
	}

	if got := payable("bob"); got != 0 {
		t.Errorf("payable(bob) before accrual = %d, want 0", got)
	}

	pool.Accrue(string(poolAddr), 100_000)

	// Exact values at the virtual-offset conversion rate:
	// floor(700000*1100001/1000001) - 700000 = 69999, and the 30%
	// recipient mirrors it at 29999.
	bob, charlie := payable("bob"), payable("charlie")
	if bob != 69_999 {
		t.Errorf("payable(bob) = %d, want 69999", bob)
	}
	if charlie != 29_999 {
		t.Errorf("payable(charlie) = %d, want 29999", charlie)
	}

	// The two floors together land within recipient-count distance of
	// the true surplus.
	surplus := l.TotalAssets() - l.TotalSupply()
	if diff := surplus - (bob + charlie); diff < 0 || diff > 2 {
		t.Errorf("payable sum %d vs surplus %d, want within 2", bob+charlie, surplus)
	}

	// More accrual never decreases payable.
	pool.Accrue(string(poolAddr), 50_000)
	if got := payable("bob"); got < bob {
		t.Errorf("payable(bob) decreased from %d to %d after accrual", bob, got)
	}
	checkInvariants(t, l)
}

func TestClaimInterest(t *testing.T) {
	l, pool := newTestLedger(t)

	err := l.Deposit("alice", "alice", 1_000_000,
		[]ledger.Address{"bob", "charlie"}, []uint32{7000, 3000})
	if err != nil {
		t.Fatalf("Deposit: %v", err)
	}
	pool.Accrue(string(poolAddr), 100_000)

	claimed, err := l.ClaimInterest("bob")
	if err != nil {
		t.Fatalf("ClaimInterest: %v", err)
	}
	if claimed != 69_999 {
		t.Errorf("claimed = %d, want 69999", claimed)
	}
	if got := l.BalanceOf("bob"); got != 69_999 {
		t.Errorf("BalanceOf(bob) = %d, want 69999 after claim", got)
	}
	if got := l.TotalSupply(); got != 1_069_999 {
		t.Errorf("TotalSupply = %d, want 1069999", got)
	}

	// Idempotent with no further accrual.
	again, err := l.ClaimInterest("bob")
	if err != nil {
		t.Fatalf("second ClaimInterest: %v", err)
	}
	if again != 0 {
		t.Errorf("second claim = %d, want 0", again)
	}
	if p, _ := l.InterestPayable("bob"); p != 0 {
		t.Errorf("payable(bob) after claim = %d, want 0", p)
	}
	checkInvariants(t, l)
}

func TestClaimForAccountWithoutDelegation(t *testing.T) {
	l, _ := newTestLedger(t)

	claimed, err := l.ClaimInterest("nobody")
	if err != nil {
		t.Fatalf("ClaimInterest: %v", err)
	}
	if claimed != 0 {
		t.Errorf("claimed = %d, want 0", claimed)
	}
}

func TestChangeHatMigratesExactly(t *testing.T) {
	l, _ := newTestLedger(t)

	if err := l.Deposit("alice", "alice", 1000, nil, nil); err != nil {
		t.Fatalf("Deposit: %v", err)
	}
	if got := l.AccountData("alice").DelegatedAmount; got != 1000 {
		t.Fatalf("alice DelegatedAmount = %d, want 1000 before migration", got)
	}

	err := l.ChangeHat("alice", []ledger.Address{"bob", "charlie"}, []uint32{7000, 3000})
	if err != nil {
		t.Fatalf("ChangeHat: %v", err)
	}

	if got := l.AccountData("alice").DelegatedAmount; got != 0 {
		t.Errorf("alice DelegatedAmount = %d, want 0 after migration", got)
	}
	if got := l.AccountData("bob").DelegatedAmount; got != 700 {
		t.Errorf("bob DelegatedAmount = %d, want 700", got)
	}
	if got := l.AccountData("charlie").DelegatedAmount; got != 300 {
		t.Errorf("charlie DelegatedAmount = %d, want 300", got)
	}
	if got := l.BalanceOf("alice"); got != 1000 {
		t.Errorf("BalanceOf(alice) = %d, want 1000 (migration moves delegation only)", got)
	}
	checkInvariants(t, l)

	// Migrate back to the self hat.
	if err := l.ChangeHat("alice", nil, nil); err != nil {
		t.Fatalf("ChangeHat to self: %v", err)
	}
	if got := l.AccountData("bob").DelegatedAmount; got != 0 {
		t.Errorf("bob DelegatedAmount = %d, want 0 after migrating away", got)
	}
	if got := l.AccountData("alice").DelegatedAmount; got != 1000 {
		t.Errorf("alice DelegatedAmount = %d, want 1000 after self migration", got)
	}
	checkInvariants(t, l)
}

func TestChangeHatValidatesAtZeroBalance(t *testing.T) {
	l, _ := newTestLedger(t)

	// A bad hat must be rejected even when there is nothing to
	// migrate, so it can never be stored and misbehave later.
	err := l.ChangeHat("alice", []ledger.Address{"bob", "charlie"}, []uint32{7000, 8000})
	if !errors.Is(err, split.ErrInvalidProportion) {
		t.Fatalf("ChangeHat error = %v, want ErrInvalidProportion", err)
	}

	// A valid hat is stored and used by a later deposit.
	if err := l.ChangeHat("alice", []ledger.Address{"bob"}, []uint32{10000}); err != nil {
		t.Fatalf("ChangeHat: %v", err)
	}
	if err := l.Deposit("alice", "alice", 500, nil, nil); err != nil {
		t.Fatalf("Deposit: %v", err)
	}
	if got := l.AccountData("bob").DelegatedAmount; got != 500 {
		t.Errorf("bob DelegatedAmount = %d, want 500 via stored hat", got)
	}
}

func TestChangeHatRejectsCycle(t *testing.T) {
	l, _ := newTestLedger(t)

	if err := l.ChangeHat("alice", []ledger.Address{"bob"}, []uint32{10000}); err != nil {
		t.Fatalf("ChangeHat(alice): %v", err)
	}
	err := l.ChangeHat("bob", []ledger.Address{"alice"}, []uint32{10000})
	if !errors.Is(err, ledger.ErrCyclicHat) {
		t.Fatalf("ChangeHat(bob) error = %v, want ErrCyclicHat", err)
	}
}

func TestChangeHatAllowsSelfInclusion(t *testing.T) {
	l, _ := newTestLedger(t)

	// Partial reinvestment: an account may appear in its own hat.
	err := l.ChangeHat("alice", []ledger.Address{"alice", "bob"}, []uint32{500, 9500})
	if err != nil {
		t.Fatalf("ChangeHat with self entry: %v", err)
	}

	if err := l.Deposit("alice", "alice", 10_000, nil, nil); err != nil {
		t.Fatalf("Deposit: %v", err)
	}
	if got := l.AccountData("alice").DelegatedAmount; got != 500 {
		t.Errorf("alice DelegatedAmount = %d, want 500", got)
	}
	if got := l.AccountData("bob").DelegatedAmount; got != 9500 {
		t.Errorf("bob DelegatedAmount = %d, want 9500", got)
	}
	checkInvariants(t, l)
}

func TestTransfer(t *testing.T) {
	l, _ := newTestLedger(t)

	if err := l.Deposit("alice", "alice", 1000, nil, nil); err != nil {
		t.Fatalf("Deposit: %v", err)
	}
	if err := l.ChangeHat("bob", []ledger.Address{"charlie"}, []uint32{10000}); err != nil {
		t.Fatalf("ChangeHat(bob): %v", err)
	}

	if err := l.Transfer("alice", "bob", 400); err != nil {
		t.Fatalf("Transfer: %v", err)
	}

	if got := l.BalanceOf("alice"); got != 600 {
		t.Errorf("BalanceOf(alice) = %d, want 600", got)
	}
	if got := l.BalanceOf("bob"); got != 400 {
		t.Errorf("BalanceOf(bob) = %d, want 400", got)
	}
	// The moved principal is re-delegated through bob's hat.
	if got := l.AccountData("charlie").DelegatedAmount; got != 400 {
		t.Errorf("charlie DelegatedAmount = %d, want 400", got)
	}
	if got := l.TotalSupply(); got != 1000 {
		t.Errorf("TotalSupply = %d, want 1000 (transfer conserves supply)", got)
	}
	checkInvariants(t, l)
}

func TestTransferInsufficient(t *testing.T) {
	l, _ := newTestLedger(t)

	if err := l.Deposit("alice", "alice", 100, nil, nil); err != nil {
		t.Fatalf("Deposit: %v", err)
	}
	err := l.Transfer("alice", "bob", 101)
	if !errors.Is(err, ledger.ErrInsufficientBalance) {
		t.Fatalf("Transfer error = %v, want ErrInsufficientBalance", err)
	}
	if got := l.BalanceOf("alice"); got != 100 {
		t.Errorf("BalanceOf(alice) = %d, want 100 after failed transfer", got)
	}
}

func TestTransferFrom(t *testing.T) {
	l, _ := newTestLedger(t)

	if err := l.Deposit("alice", "alice", 1000, nil, nil); err != nil {
		t.Fatalf("Deposit: %v", err)
	}
	if err := l.TransferFrom("operator", "alice", "bob", 250); err != nil {
		t.Fatalf("TransferFrom: %v", err)
	}
	if got := l.BalanceOf("bob"); got != 250 {
		t.Errorf("BalanceOf(bob) = %d, want 250", got)
	}
}

func TestRecollectDoesNotLoseAccruedYield(t *testing.T) {
	l, pool := newTestLedger(t)

	err := l.Deposit("alice", "alice", 1_000_000,
		[]ledger.Address{"bob"}, []uint32{10000})
	if err != nil {
		t.Fatalf("Deposit: %v", err)
	}
	pool.Accrue(string(poolAddr), 100_000)

	// Withdrawing recollects from bob, which must settle bob's
	// interest against the pre-recollection share basis first.
	if _, err := l.Withdraw("alice", "alice", 1_000_000); err != nil {
		t.Fatalf("Withdraw: %v", err)
	}

	if got := l.BalanceOf("bob"); got != 99_999 {
		t.Errorf("BalanceOf(bob) = %d, want 99999 (interest settled before recollection)", got)
	}
	if got := l.BalanceOf("alice"); got != 0 {
		t.Errorf("BalanceOf(alice) = %d, want 0", got)
	}
	checkInvariants(t, l)
}

func TestSnapshotRoundTrip(t *testing.T) {
	l, pool := newTestLedger(t)

	err := l.Deposit("alice", "alice", 1_000_000,
		[]ledger.Address{"bob", "charlie"}, []uint32{7000, 3000})
	if err != nil {
		t.Fatalf("Deposit: %v", err)
	}
	pool.Accrue(string(poolAddr), 100_000)

	snap := l.TakeSnapshot()
	restored := ledger.New(pool, poolAddr, nil)
	restored.RestoreSnapshot(snap)

	if got, want := restored.TotalSupply(), l.TotalSupply(); got != want {
		t.Errorf("restored TotalSupply = %d, want %d", got, want)
	}
	for _, a := range []ledger.Address{"alice", "bob", "charlie"} {
		if got, want := restored.BalanceOf(a), l.BalanceOf(a); got != want {
			t.Errorf("restored BalanceOf(%s) = %d, want %d", a, got, want)
		}
		gp, _ := restored.InterestPayable(a)
		wp, _ := l.InterestPayable(a)
		if gp != wp {
			t.Errorf("restored InterestPayable(%s) = %d, want %d", a, gp, wp)
		}
	}

	// The restored ledger keeps operating.
	if _, err := restored.Withdraw("alice", "alice", ledger.EntireBalance); err != nil {
		t.Fatalf("Withdraw on restored ledger: %v", err)
	}
	checkInvariants(t, restored)
}

// recordingSink captures committed event payloads in order.
type recordingSink struct {
	payloads []event.Payload
}

func (s *recordingSink) Record(p event.Payload) {
	s.payloads = append(s.payloads, p)
}

func TestEventsEmittedInOrder(t *testing.T) {
	pool := asset.NewVirtualPool()
	pool.Accrue("alice", 1_000_000)
	sink := &recordingSink{}
	l := ledger.New(pool, poolAddr, sink)

	err := l.Deposit("alice", "alice", 1000,
		[]ledger.Address{"bob"}, []uint32{10000})
	if err != nil {
		t.Fatalf("Deposit: %v", err)
	}

	want := []event.Type{event.TypeHatChanged, event.TypeDelegated, event.TypeDeposited}
	if len(sink.payloads) != len(want) {
		t.Fatalf("recorded %d events, want %d", len(sink.payloads), len(want))
	}
	for i, p := range sink.payloads {
		if p.EventType() != want[i] {
			t.Errorf("event[%d] = %s, want %s", i, p.EventType(), want[i])
		}
	}

	// A failed operation emits nothing.
	sink.payloads = nil
	if err := l.Deposit("alice", "alice", -1, nil, nil); err == nil {
		t.Fatal("Deposit accepted negative amount")
	}
	if len(sink.payloads) != 0 {
		t.Errorf("failed operation recorded %d events, want 0", len(sink.payloads))
	}
}
