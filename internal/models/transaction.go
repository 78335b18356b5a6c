package models

import "time"

// TransactionState enumerates the lifecycle of a legacy-initiated
// transaction as it moves through party resolution, quoting and fulfilment.
type TransactionState string

const (
	TransactionStateReceived             TransactionState = "received"
	TransactionStatePayerIdentified      TransactionState = "payerIdentified"
	TransactionStateQuoteRequested       TransactionState = "quoteRequested"
	TransactionStateFinancialRequestSent TransactionState = "financialRequestSent"
	TransactionStateFulfillmentSent      TransactionState = "fulfillmentSent"
	TransactionStateCompleted            TransactionState = "completed"
	TransactionStateAborted              TransactionState = "aborted"
)

// transactionTransitions is the sole authority on legal transaction state
// changes. Aborted is reachable from every non-terminal state.
var transactionTransitions = map[TransactionState][]TransactionState{
	TransactionStateReceived:             {TransactionStatePayerIdentified, TransactionStateAborted},
	TransactionStatePayerIdentified:      {TransactionStateQuoteRequested, TransactionStateAborted},
	TransactionStateQuoteRequested:       {TransactionStateFinancialRequestSent, TransactionStateAborted},
	TransactionStateFinancialRequestSent: {TransactionStateFulfillmentSent, TransactionStateAborted},
	TransactionStateFulfillmentSent:      {TransactionStateCompleted, TransactionStateAborted},
}

// CanTransitionTo reports whether moving from s to next is a legal edge.
func (s TransactionState) CanTransitionTo(next TransactionState) bool {
	for _, allowed := range transactionTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether the state admits no further transitions.
func (s TransactionState) Terminal() bool {
	return len(transactionTransitions[s]) == 0
}

// Party roles and identifier types used across the adaptor.
const (
	PartyTypePayer = "payer"
	PartyTypePayee = "payee"

	PartyIDTypeMSISDN = "MSISDN"
	PartyIDTypeDevice = "DEVICE"
)

// Fee line-item types. An lps fee originates from the legacy switch, an
// adaptor fee from the injected fee calculator.
const (
	FeeTypeLps     = "lps"
	FeeTypeAdaptor = "adaptor"
)

// Party describes one leg of a transaction together with the FSP resolved
// for it during account lookup.
type Party struct {
	Type            string `json:"type"`
	IdentifierType  string `json:"identifierType"`
	IdentifierValue string `json:"identifierValue"`
	SubIDOrType     string `json:"subIdOrType,omitempty"`
	FspID           string `json:"fspId,omitempty"`
}

// Fee is an immutable line item attached to a transaction.
type Fee struct {
	Type   string `json:"type"`
	Amount Money  `json:"amount"`
}

// Quote authorizes a transfer for a transaction. It is created once by the
// quote engine and read-only afterwards; Condition is derived and never
// mutated independently.
type Quote struct {
	ID             string    `json:"id"`
	TransactionID  string    `json:"transactionId"`
	Amount         Money     `json:"amount"`
	FeeAmount      Money     `json:"feeAmount"`
	TransferAmount Money     `json:"transferAmount"`
	IlpPacket      string    `json:"ilpPacket"`
	Condition      string    `json:"condition"`
	Expiration     time.Time `json:"expiration"`
}

// Expired reports whether the quote's expiration has passed at the supplied
// instant.
func (q Quote) Expired(now time.Time) bool {
	return !q.Expiration.IsZero() && now.After(q.Expiration)
}

// Transaction is the aggregate tracking one legacy withdrawal or refund
// across its whole life. It is append-only from the audit perspective:
// rows are never deleted, state only moves forward along declared edges and
// PreviousState always holds the prior value.
type Transaction struct {
	TransactionRequestID string           `json:"transactionRequestId"`
	TransactionID        string           `json:"transactionId,omitempty"`
	LpsID                string           `json:"lpsId"`
	LpsKey               string           `json:"lpsKey"`
	Payer                Party            `json:"payer"`
	Payee                Party            `json:"payee"`
	Amount               Money            `json:"amount"`
	Scenario             string           `json:"scenario"`
	Initiator            string           `json:"initiator"`
	InitiatorType        string           `json:"initiatorType"`
	AuthenticationType   string           `json:"authenticationType"`
	Expiration           string           `json:"expiration"`
	State                TransactionState `json:"state"`
	PreviousState        TransactionState `json:"previousState,omitempty"`
	Fees                 []Fee            `json:"fees,omitempty"`
	Quote                *Quote           `json:"quote,omitempty"`
	CreatedAt            time.Time        `json:"createdAt"`
}

// LpsFee returns the legacy-switch fee attached at ingestion, if any.
func (t *Transaction) LpsFee() (Fee, bool) {
	for _, fee := range t.Fees {
		if fee.Type == FeeTypeLps {
			return fee, true
		}
	}
	return Fee{}, false
}
