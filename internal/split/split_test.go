package split_test

import (
	"FlowLedger/internal/split"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplit_SumsToTotalExactly(t *testing.T) {
	cases := []struct {
		name        string
		total       int64
		proportions []uint32
	}{
		{"even halves", 100, []uint32{5000, 5000}},
		{"seventy thirty", 1_000_000_000_000_000_000, []uint32{7000, 3000}},
		{"thirds lose precision", 100, []uint32{3333, 3333, 3334}},
		{"one recipient", 999, []uint32{10000}},
		{"four way", 1_000_000, []uint32{1000, 2000, 3000, 4000}},
		{"tiny total", 1, []uint32{3333, 3333, 3334}},
		{"zero total", 0, []uint32{5000, 5000}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			amounts, err := split.Split(tc.total, tc.proportions)
			require.NoError(t, err)
			require.Len(t, amounts, len(tc.proportions))

			var sum int64
			for _, a := range amounts {
				sum += a
			}
			assert.Equal(t, tc.total, sum, "remainder absorption must make outputs sum to total")
		})
	}
}

func TestSplit_LastAbsorbsRemainder(t *testing.T) {
	// 1000/2000/3000/4000 over 10001: floors are 1000, 2000, 3000;
	// the last entry picks up 4001.
	amounts, err := split.Split(10_001, []uint32{1000, 2000, 3000, 4000})
	require.NoError(t, err)
	assert.Equal(t, []int64{1000, 2000, 3000, 4001}, amounts)
}

func TestSplit_FloorOnNonLast(t *testing.T) {
	amounts, err := split.Split(10, []uint32{3333, 6667})
	require.NoError(t, err)
	assert.Equal(t, int64(3), amounts[0])
	assert.Equal(t, int64(7), amounts[1])
}

func TestSplit_LargeTotalsKeepProportions(t *testing.T) {
	// The per-entry products exceed int64; the 128-bit intermediate
	// must keep each floor exact, not just the remainder-absorbed sum.
	amounts, err := split.Split(1_000_000_000_000_000_000, []uint32{7000, 3000})
	require.NoError(t, err)
	assert.Equal(t, []int64{700_000_000_000_000_000, 300_000_000_000_000_000}, amounts)

	// The largest total the ledger can mint.
	total := int64(1) << 62
	amounts, err = split.Split(total, []uint32{1000, 2000, 3000, 4000})
	require.NoError(t, err)
	assert.Equal(t, []int64{
		461_168_601_842_738_790,
		922_337_203_685_477_580,
		1_383_505_805_528_216_371,
		1_844_674_407_370_955_163,
	}, amounts)

	var sum int64
	for _, a := range amounts {
		sum += a
	}
	assert.Equal(t, total, sum)
}

func TestValidateProportions_ExactSum(t *testing.T) {
	assert.NoError(t, split.ValidateProportions([]uint32{7000, 3000}))
	assert.NoError(t, split.ValidateProportions([]uint32{10000}))
}

func TestValidateProportions_BadSumReportsSum(t *testing.T) {
	err := split.ValidateProportions([]uint32{7000, 8000})
	require.ErrorIs(t, err, split.ErrInvalidProportion)
	assert.Contains(t, err.Error(), "15000")
}

func TestValidateProportions_ZeroEntry(t *testing.T) {
	err := split.ValidateProportions([]uint32{10000, 0})
	assert.ErrorIs(t, err, split.ErrInvalidProportion)
}

func TestValidateProportions_Empty(t *testing.T) {
	assert.ErrorIs(t, split.ValidateProportions(nil), split.ErrNoRecipients)
}
