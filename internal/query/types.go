package query

// BalanceResponse is an account's read-side balance.
type BalanceResponse struct {
	Account         string `json:"account"`
	Balance         int64  `json:"balance"`
	InterestClaimed int64  `json:"interest_claimed"`
	AsOfSequence    int64  `json:"as_of_sequence"`
}

// HatEntryResponse is one recipient slot of an account's hat.
type HatEntryResponse struct {
	Recipient    string `json:"recipient"`
	ProportionBP int32  `json:"proportion_bp"`
}

// HatResponse is the full delegation fan-out of an account.
type HatResponse struct {
	Account      string             `json:"account"`
	Entries      []HatEntryResponse `json:"entries"`
	AsOfSequence int64              `json:"as_of_sequence"`
}

// RoundResponse is one round of a dam's history.
type RoundResponse struct {
	Dam          string `json:"dam"`
	RoundID      int64  `json:"round_id"`
	StartTime    int64  `json:"start_time"`
	EndTime      int64  `json:"end_time"`
	Discharged   int64  `json:"discharged"`
	Closed       bool   `json:"closed"`
	AsOfSequence int64  `json:"as_of_sequence"`
}

// EventResponse is one event log entry for audit reads.
type EventResponse struct {
	Sequence  int64  `json:"sequence"`
	EventType string `json:"event_type"`
	Account   string `json:"account"`
	Payload   string `json:"payload"`
	Timestamp int64  `json:"timestamp"`
}

// IntegrityReport is the result of a hash chain walk over the log.
type IntegrityReport struct {
	IsHealthy       bool    `json:"is_healthy"`
	CheckedEvents   int64   `json:"checked_events"`
	HashChainBreaks []int64 `json:"hash_chain_breaks,omitempty"`
}
