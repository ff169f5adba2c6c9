package dam

import (
	"encoding/json"
	"fmt"

	"FlowLedger/internal/split"
)

// Plan is a distribution plan: who receives the round's yield, in
// what basis-point proportions. The oracle signs the canonical
// encoding produced by Encode; field order is fixed by the struct.
type Plan struct {
	Recipients  []string `json:"recipients"`
	Proportions []uint32 `json:"proportions"`
}

// Encode returns the canonical plan bytes the oracle signs.
func (p Plan) Encode() ([]byte, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(p)
}

// Validate checks list shape and the 10,000 bp proportion sum.
func (p Plan) Validate() error {
	if len(p.Recipients) == 0 || len(p.Recipients) != len(p.Proportions) {
		return fmt.Errorf("%w: %d recipients, %d proportions",
			ErrInvalidPlan, len(p.Recipients), len(p.Proportions))
	}
	for _, r := range p.Recipients {
		if r == "" {
			return fmt.Errorf("%w: empty recipient", ErrInvalidPlan)
		}
	}
	return split.ValidateProportions(p.Proportions)
}

// DecodePlan parses and validates canonical plan bytes.
func DecodePlan(data []byte) (Plan, error) {
	var p Plan
	if err := json.Unmarshal(data, &p); err != nil {
		return Plan{}, fmt.Errorf("%w: %v", ErrInvalidPlan, err)
	}
	if err := p.Validate(); err != nil {
		return Plan{}, err
	}
	return p, nil
}
