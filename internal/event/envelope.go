package event

import (
	"time"
)

// Type discriminates event payloads in the log.
type Type int32

const (
	TypeUnknown Type = iota
	TypeDeposited
	TypeWithdrawn
	TypeHatChanged
	TypeDelegated
	TypeRecollected
	TypeInterestClaimed
	TypeTransferred
	TypeDamOperated
	TypeRoundStarted
	TypeRoundClosed
	TypeWithdrawalScheduled
	TypeWithdrawalExecuted
	TypeWithdrawalFailed
	TypeDamDecommissioned
	TypeUpstreamChanged
	TypeOracleChanged
	TypeYieldDischarged
)

// Envelope wraps every event appended to the log. The log is
// append-only; entries are never retracted.
type Envelope struct {
	// Global monotonic sequence assigned by the recorder
	Sequence int64

	// Event type discriminator
	Type Type

	// Primary account context (empty for global events)
	Account string

	// Wall-clock time assigned at record time
	Timestamp time.Time

	// Typed payload, JSON-encoded at the persistence boundary
	Payload Payload

	// Hash chain state after this event: SHA-256 over the previous
	// hash, the sequence, and the payload digest
	StateHash [32]byte

	// Previous envelope's state hash (chain integrity)
	PrevHash [32]byte
}

// Payload is implemented by every event body.
type Payload interface {
	// EventType returns the discriminator
	EventType() Type

	// AccountID returns the primary account context ("" for global)
	AccountID() string
}

func (t Type) String() string {
	switch t {
	case TypeDeposited:
		return "Deposited"
	case TypeWithdrawn:
		return "Withdrawn"
	case TypeHatChanged:
		return "HatChanged"
	case TypeDelegated:
		return "Delegated"
	case TypeRecollected:
		return "Recollected"
	case TypeInterestClaimed:
		return "InterestClaimed"
	case TypeTransferred:
		return "Transferred"
	case TypeDamOperated:
		return "DamOperated"
	case TypeRoundStarted:
		return "RoundStarted"
	case TypeRoundClosed:
		return "RoundClosed"
	case TypeWithdrawalScheduled:
		return "WithdrawalScheduled"
	case TypeWithdrawalExecuted:
		return "WithdrawalExecuted"
	case TypeWithdrawalFailed:
		return "WithdrawalFailed"
	case TypeDamDecommissioned:
		return "DamDecommissioned"
	case TypeUpstreamChanged:
		return "UpstreamChanged"
	case TypeOracleChanged:
		return "OracleChanged"
	case TypeYieldDischarged:
		return "YieldDischarged"
	default:
		return "Unknown"
	}
}
