// Package split divides totals into parts by basis-point proportions.
//
// The last recipient absorbs the integer-division remainder so the
// output always sums to the input exactly, independent of rounding
// loss on the earlier entries.
package split

import (
	"errors"
	"fmt"

	"FlowLedger/internal/fpmath"
)

// FullBasisPoints is the proportion sum a valid split plan must reach.
const FullBasisPoints = 10_000

var (
	// ErrInvalidProportion indicates proportions that do not sum to
	// exactly 10,000 bp, or contain a zero entry.
	ErrInvalidProportion = errors.New("split: invalid proportion")

	// ErrNoRecipients indicates an empty proportion list where at
	// least one entry is required.
	ErrNoRecipients = errors.New("split: no recipients")
)

// Split divides total across proportions (in basis points). For every
// entry but the last, amounts[i] = floor(total * proportions[i] / 10000);
// the last entry receives the remainder. The outputs sum to total
// exactly regardless of rounding. The products are computed through a
// 128-bit intermediate so totals near the int64 ceiling split
// correctly. Split does not validate the proportion sum; callers that
// require a full 10,000 bp plan call ValidateProportions first.
func Split(total int64, proportions []uint32) ([]int64, error) {
	amounts := make([]int64, len(proportions))
	if len(proportions) == 0 {
		return amounts, nil
	}

	var distributed int64
	for i, p := range proportions {
		if i == len(proportions)-1 {
			amounts[i] = total - distributed
			break
		}
		amount, err := fpmath.MulDiv(total, int64(p), FullBasisPoints, fpmath.RoundFloor)
		if err != nil {
			return nil, err
		}
		amounts[i] = amount
		distributed += amount
	}

	return amounts, nil
}

// ValidateProportions checks that every proportion is positive and
// that the independently computed sum equals exactly 10,000 bp. The
// accumulated sum is reported on failure for diagnostics.
func ValidateProportions(proportions []uint32) error {
	if len(proportions) == 0 {
		return ErrNoRecipients
	}

	var sum uint64
	for i, p := range proportions {
		if p == 0 {
			return fmt.Errorf("%w: zero proportion at index %d", ErrInvalidProportion, i)
		}
		sum += uint64(p)
	}

	if sum != FullBasisPoints {
		return fmt.Errorf("%w: proportions sum to %d, want %d", ErrInvalidProportion, sum, FullBasisPoints)
	}

	return nil
}
