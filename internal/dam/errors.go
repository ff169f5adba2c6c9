package dam

import "errors"

var (
	// ErrDamAlreadyOperating indicates OperateDam on a flowing dam.
	ErrDamAlreadyOperating = errors.New("dam: already operating")

	// ErrDamNotOperating indicates an operation that needs a flowing
	// dam.
	ErrDamNotOperating = errors.New("dam: not operating")

	// ErrRoundNotEnded indicates EndRound before the round window
	// expired.
	ErrRoundNotEnded = errors.New("dam: round not ended")

	// ErrInvalidPeriod indicates a zero or negative round period.
	ErrInvalidPeriod = errors.New("dam: invalid period")

	// ErrInvalidRatio indicates a basis-point ratio above 10,000.
	ErrInvalidRatio = errors.New("dam: invalid ratio")

	// ErrInvalidReceiver indicates a null withdrawal receiver.
	ErrInvalidReceiver = errors.New("dam: invalid receiver")

	// ErrInvalidPlan indicates a distribution plan that does not
	// decode into matching recipient and proportion lists.
	ErrInvalidPlan = errors.New("dam: invalid distribution plan")
)
