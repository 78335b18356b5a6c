package models

import (
	"encoding/json"
	"time"
)

// LegacyMessage is the raw audit record of an inbound legacy payload, keyed
// by the switch id and session key. It is append-only and exists regardless
// of whether downstream processing succeeds.
type LegacyMessage struct {
	ID        int64           `json:"id"`
	LpsID     string          `json:"lpsId"`
	LpsKey    string          `json:"lpsKey"`
	Type      string          `json:"type"`
	Content   json.RawMessage `json:"content"`
	CreatedAt time.Time       `json:"createdAt"`
}

// Legacy message type labels stored alongside the raw content.
const (
	LegacyMessageTypeAuthorization = "authorizationRequest"
	LegacyMessageTypeFinancial     = "financialRequest"
	LegacyMessageTypeReversal      = "reversalRequest"
)

// LegacyTransactionRequest is an already-parsed 0100 field map from a
// legacy switch. The switch identifiers travel as named properties and the
// ISO8583 data elements as numeric keys, so the payload decodes through a
// custom unmarshaller.
type LegacyTransactionRequest struct {
	LpsID  string
	LpsKey string
	Fields map[string]string
}

// UnmarshalJSON splits the flat legacy payload into switch identifiers and
// the remaining field map.
func (r *LegacyTransactionRequest) UnmarshalJSON(data []byte) error {
	raw := map[string]string{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	r.LpsID = raw["lpsId"]
	r.LpsKey = raw["lpsKey"]
	delete(raw, "lpsId")
	delete(raw, "lpsKey")
	r.Fields = raw
	return nil
}

// MarshalJSON restores the flat shape used on the wire and in the audit
// store.
func (r LegacyTransactionRequest) MarshalJSON() ([]byte, error) {
	flat := make(map[string]string, len(r.Fields)+2)
	for k, v := range r.Fields {
		flat[k] = v
	}
	flat["lpsId"] = r.LpsID
	flat["lpsKey"] = r.LpsKey
	return json.Marshal(flat)
}

// Response types carried on a legacy financial request.
const (
	LegacyResponseEntered  = "ENTERED"
	LegacyResponseRejected = "REJECTED"
)

// LegacyAuthenticationInfo carries the OTP entered at the terminal.
type LegacyAuthenticationInfo struct {
	AuthenticationType  string `json:"authenticationType"`
	AuthenticationValue string `json:"authenticationValue"`
}

// LegacyFinancialRequest is the 0200 follow-up sent once the payer has
// responded to the authorization prompt.
type LegacyFinancialRequest struct {
	LpsID                        string                    `json:"lpsId"`
	LpsKey                       string                    `json:"lpsKey"`
	LpsFinancialRequestMessageID string                    `json:"lpsFinancialRequestMessageId"`
	AuthenticationInfo           *LegacyAuthenticationInfo `json:"authenticationInfo,omitempty"`
	ResponseType                 string                    `json:"responseType"`
}

// LegacyReversalRequest is the 0420 advice asking the adaptor to back out a
// prior financial request.
type LegacyReversalRequest struct {
	LpsID                        string `json:"lpsId"`
	LpsKey                       string `json:"lpsKey"`
	LpsFinancialRequestMessageID string `json:"lpsFinancialRequestMessageId"`
	LpsReversalRequestMessageID  string `json:"lpsReversalRequestMessageId"`
}

// LegacyAuthorizationResponse acknowledges a 0100 back to the switch with
// the amounts the payer will be prompted to approve.
type LegacyAuthorizationResponse struct {
	LpsKey         string `json:"lpsKey"`
	TransferAmount Money  `json:"transferAmount"`
	Fees           Money  `json:"fees"`
}

// LegacyFinancialResponse acknowledges a completed financial request back
// to the switch.
type LegacyFinancialResponse struct {
	LpsKey                       string `json:"lpsKey"`
	LpsFinancialRequestMessageID string `json:"lpsFinancialRequestMessageId"`
}
