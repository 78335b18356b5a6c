package models

import "time"

// TransferState enumerates the funds-movement lifecycle. A transfer is
// created directly into reserved and reaches exactly one terminal state.
type TransferState string

const (
	TransferStateReserved  TransferState = "RESERVED"
	TransferStateCommitted TransferState = "COMMITTED"
	TransferStateAborted   TransferState = "ABORTED"
)

var transferTransitions = map[TransferState][]TransferState{
	TransferStateReserved: {TransferStateCommitted, TransferStateAborted},
}

// CanTransitionTo reports whether moving from s to next is a legal edge.
func (s TransferState) CanTransitionTo(next TransferState) bool {
	for _, allowed := range transferTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether the state admits no further transitions.
func (s TransferState) Terminal() bool {
	return len(transferTransitions[s]) == 0
}

// Transfer is the funds-movement instance authorized by a quote. The id is
// caller-supplied and globally unique; at most one transfer exists per
// quote.
type Transfer struct {
	ID                   string        `json:"id"`
	QuoteID              string        `json:"quoteId"`
	TransactionRequestID string        `json:"transactionRequestId"`
	Amount               Money         `json:"amount"`
	Fulfilment           string        `json:"fulfilment"`
	State                TransferState `json:"state"`
	CreatedAt            time.Time     `json:"createdAt"`
}
