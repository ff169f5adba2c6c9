package ledger

import "errors"

var (
	// ErrInvalidHatLength indicates recipient and proportion lists of
	// different lengths.
	ErrInvalidHatLength = errors.New("ledger: hat recipients and proportions differ in length")

	// ErrInvalidAddress indicates a zero-value account identity.
	ErrInvalidAddress = errors.New("ledger: invalid address")

	// ErrInsufficientBalance indicates an operation larger than the
	// account's principal.
	ErrInsufficientBalance = errors.New("ledger: insufficient balance")

	// ErrInvalidAmountRequest indicates a zero or negative amount.
	ErrInvalidAmountRequest = errors.New("ledger: invalid amount request")

	// ErrCyclicHat indicates a hat whose recipients delegate back to
	// the account, directly or through other hats. Cycles are
	// rejected at ChangeHat time; self-inclusion is legal.
	ErrCyclicHat = errors.New("ledger: cyclic hat")
)
