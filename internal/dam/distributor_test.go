package dam_test

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"FlowLedger/internal/asset"
	"FlowLedger/internal/dam"
	"FlowLedger/internal/ledger"
)

func newDistributor(t *testing.T) (*dam.Distributor, *ledger.Ledger, *asset.VirtualPool) {
	t.Helper()
	pool := asset.NewVirtualPool()
	pool.Accrue(string(distributorAddr), 1_000_000)
	l := ledger.New(pool, poolAddr, nil)
	return dam.NewDistributor(l, pool, distributorAddr, nil, zerolog.Nop()), l, pool
}

func mustEncode(t *testing.T, p dam.Plan) []byte {
	t.Helper()
	data, err := p.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	return data
}

func TestDischargeYieldSplitsExactly(t *testing.T) {
	dist, l, pool := newDistributor(t)

	if err := l.Deposit(distributorAddr, distributorAddr, 100_000, nil, nil); err != nil {
		t.Fatalf("Deposit: %v", err)
	}
	data := mustEncode(t, defaultPlan())

	total, err := dist.DischargeYield(data, 10_000)
	if err != nil {
		t.Fatalf("DischargeYield: %v", err)
	}
	if total != 100_000 {
		t.Errorf("discharged = %d, want 100000", total)
	}

	// 10/20/30/40 split with the last recipient absorbing the
	// remainder; the amounts must sum to the total exactly.
	want := map[string]int64{"A": 10_000, "B": 20_000, "C": 30_000, "D": 40_000}
	for recipient, amount := range want {
		if got := pool.BalanceOf(recipient); got != amount {
			t.Errorf("pool balance of %s = %d, want %d", recipient, got, amount)
		}
	}
	if got := l.BalanceOf(distributorAddr); got != 0 {
		t.Errorf("distributor ledger balance = %d, want 0", got)
	}
}

func TestDischargeYieldWithNothingToPay(t *testing.T) {
	dist, _, pool := newDistributor(t)
	before := pool.BalanceOf(string(distributorAddr))

	total, err := dist.DischargeYield(mustEncode(t, defaultPlan()), 10_000)
	if err != nil {
		t.Fatalf("DischargeYield: %v", err)
	}
	if total != 0 {
		t.Errorf("discharged = %d, want 0", total)
	}
	if got := pool.BalanceOf(string(distributorAddr)); got != before {
		t.Errorf("custody balance = %d, want untouched %d", got, before)
	}
}

func TestDischargeYieldRejectsBadRatio(t *testing.T) {
	dist, _, _ := newDistributor(t)

	_, err := dist.DischargeYield(mustEncode(t, defaultPlan()), 10_001)
	if !errors.Is(err, dam.ErrInvalidRatio) {
		t.Fatalf("DischargeYield error = %v, want ErrInvalidRatio", err)
	}
}

func TestDischargeYieldRejectsMalformedPlan(t *testing.T) {
	dist, l, _ := newDistributor(t)

	if err := l.Deposit(distributorAddr, distributorAddr, 1000, nil, nil); err != nil {
		t.Fatalf("Deposit: %v", err)
	}

	tests := []struct {
		name string
		data []byte
	}{
		{"not json", []byte("garbage")},
		{"length mismatch", []byte(`{"recipients":["a"],"proportions":[5000,5000]}`)},
		{"empty", []byte(`{"recipients":[],"proportions":[]}`)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := dist.DischargeYield(tt.data, 10_000); !errors.Is(err, dam.ErrInvalidPlan) {
				t.Fatalf("DischargeYield error = %v, want ErrInvalidPlan", err)
			}
		})
	}

	// The failed discharges moved nothing out of the ledger.
	if got := l.BalanceOf(distributorAddr); got != 1000 {
		t.Errorf("distributor ledger balance = %d, want 1000", got)
	}
}

func TestDischargeYieldRevertsOnTransferFailure(t *testing.T) {
	dist, l, pool := newDistributor(t)

	if err := l.Deposit(distributorAddr, distributorAddr, 50_000, nil, nil); err != nil {
		t.Fatalf("Deposit: %v", err)
	}
	pool.SetRejecting("evil", true)

	data := mustEncode(t, dam.Plan{
		Recipients:  []string{"good", "evil"},
		Proportions: []uint32{5000, 5000},
	})
	if _, err := dist.DischargeYield(data, 10_000); err == nil {
		t.Fatal("DischargeYield succeeded against a rejecting recipient")
	}

	// The split already paid to the first recipient is pulled back.
	if got := pool.BalanceOf("good"); got != 0 {
		t.Errorf("pool balance of good = %d, want 0 after revert", got)
	}
	if got := pool.BalanceOf("evil"); got != 0 {
		t.Errorf("pool balance of evil = %d, want 0", got)
	}
	// The withdrawn total sits in the distributor's custody awaiting
	// the next discharge.
	if got := pool.BalanceOf(string(distributorAddr)); got != 1_000_000 {
		t.Errorf("custody balance = %d, want 1000000", got)
	}
}
