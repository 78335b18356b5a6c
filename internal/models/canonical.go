package models

// Canonical payload shapes exchanged with the inter-scheme payment hub.
// Field names follow the hub's JSON conventions exactly.

// Fixed values stamped onto every canonical transaction request produced
// from a legacy 0100 message.
const (
	InitiatorPayee        = "PAYEE"
	InitiatorTypeDevice   = "DEVICE"
	InitiatorTypeAgent    = "AGENT"
	ScenarioWithdrawal    = "WITHDRAWAL"
	ScenarioRefund        = "REFUND"
	AuthenticationTypeOTP = "OTP"
)

// PartyIDInfo identifies a party to the hub.
type PartyIDInfo struct {
	PartyIDType      string `json:"partyIdType"`
	PartyIdentifier  string `json:"partyIdentifier"`
	PartySubIDOrType string `json:"partySubIdOrType,omitempty"`
	FspID            string `json:"fspId,omitempty"`
}

// HubParty wraps PartyIDInfo the way the hub nests it for payees and party
// callbacks.
type HubParty struct {
	PartyIDInfo PartyIDInfo `json:"partyIdInfo"`
}

// TransactionTypeInfo classifies a canonical transaction request.
type TransactionTypeInfo struct {
	Scenario      string `json:"scenario"`
	Initiator     string `json:"initiator"`
	InitiatorType string `json:"initiatorType"`
}

// TransactionRequest is the canonical shape a legacy 0100 translates into.
type TransactionRequest struct {
	TransactionRequestID string              `json:"transactionRequestId"`
	Payer                PartyIDInfo         `json:"payer"`
	Payee                HubParty            `json:"payee"`
	Amount               Money               `json:"amount"`
	TransactionType      TransactionTypeInfo `json:"transactionType"`
	AuthenticationType   string              `json:"authenticationType"`
	Expiration           string              `json:"expiration"`
}

// PartiesPutResponse is the asynchronous account-lookup callback carrying
// the resolved FSP for a party.
type PartiesPutResponse struct {
	Party HubParty `json:"party"`
}

// QuotesPostRequest is the hub's quote request referencing the transaction
// resolved for the original legacy message.
type QuotesPostRequest struct {
	QuoteID              string              `json:"quoteId"`
	TransactionID        string              `json:"transactionId"`
	TransactionRequestID string              `json:"transactionRequestId"`
	Payer                PartyIDInfo         `json:"payer"`
	Payee                PartyIDInfo         `json:"payee"`
	AmountType           string              `json:"amountType"`
	Amount               Money               `json:"amount"`
	TransactionType      TransactionTypeInfo `json:"transactionType"`
	Expiration           string              `json:"expiration,omitempty"`
}

// QuotesIDPutResponse is the quote response returned to the hub, carrying
// the ILP commitment for the eventual transfer.
type QuotesIDPutResponse struct {
	TransferAmount Money  `json:"transferAmount"`
	PayeeFspFee    *Money `json:"payeeFspFee,omitempty"`
	Expiration     string `json:"expiration"`
	IlpPacket      string `json:"ilpPacket"`
	Condition      string `json:"condition"`
}

// TransfersPostRequest asks the adaptor to reserve and commit a transfer
// under a previously issued quote.
type TransfersPostRequest struct {
	TransferID           string `json:"transferId"`
	QuoteID              string `json:"quoteId"`
	TransactionID        string `json:"transactionId,omitempty"`
	TransactionRequestID string `json:"transactionRequestId,omitempty"`
	PayerFsp             string `json:"payerFsp"`
	PayeeFsp             string `json:"payeeFsp"`
	Amount               Money  `json:"amount"`
	IlpPacket            string `json:"ilpPacket"`
	Condition            string `json:"condition"`
	Expiration           string `json:"expiration,omitempty"`
}

// TransfersIDPutResponse reports a transfer outcome to the hub.
type TransfersIDPutResponse struct {
	Fulfilment         string `json:"fulfilment"`
	TransferState      string `json:"transferState"`
	CompletedTimestamp string `json:"completedTimestamp"`
}

// TransactionsIDPutResponse is the hub's completion callback for a
// transaction.
type TransactionsIDPutResponse struct {
	TransactionState string `json:"transactionState"`
}

// ErrorInformation is the fixed-shape error callback body.
type ErrorInformation struct {
	ErrorCode        string `json:"errorCode"`
	ErrorDescription string `json:"errorDescription"`
}
