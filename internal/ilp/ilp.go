// Package ilp implements the cryptographic commitment binding a transfer to
// the quote it was issued for. The fulfilment is an HMAC-SHA256 of the ILP
// packet under a shared secret; the condition is the SHA-256 digest of the
// fulfilment bytes. Both derivations are pure functions of their inputs.
package ilp

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lpsbridge/iso8583-adaptor/internal/models"
)

var enc = base64.RawURLEncoding

// Codec derives and verifies ILP fulfilments and conditions.
type Codec struct {
	secret []byte
}

// NewCodec constructs a codec from the shared ILP secret.
func NewCodec(secret string) (*Codec, error) {
	if secret == "" {
		return nil, errors.New("ilp: secret is required")
	}
	return &Codec{secret: []byte(secret)}, nil
}

// Fulfilment derives the fulfilment for an ILP packet. Identical packet and
// secret always yield an identical fulfilment.
func (c *Codec) Fulfilment(ilpPacket string) string {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write([]byte(ilpPacket))
	return enc.EncodeToString(mac.Sum(nil))
}

// Condition derives the one-way condition published at quote time from a
// fulfilment.
func (c *Codec) Condition(fulfilment string) (string, error) {
	raw, err := enc.DecodeString(fulfilment)
	if err != nil {
		return "", fmt.Errorf("ilp: malformed fulfilment: %w", err)
	}
	digest := sha256.Sum256(raw)
	return enc.EncodeToString(digest[:]), nil
}

// Verify recomputes the fulfilment from the packet and compares it against
// the supplied value in constant time. A supplied fulfilment is never
// trusted without re-derivation.
func (c *Codec) Verify(ilpPacket, suppliedFulfilment string) bool {
	expected := c.Fulfilment(ilpPacket)
	return hmac.Equal([]byte(expected), []byte(suppliedFulfilment))
}

// quotePayload is the transaction data serialized into the ILP packet at
// quote time.
type quotePayload struct {
	QuoteID              string                     `json:"quoteId"`
	TransactionID        string                     `json:"transactionId"`
	TransactionRequestID string                     `json:"transactionRequestId,omitempty"`
	Payer                models.PartyIDInfo         `json:"payer"`
	Payee                models.PartyIDInfo         `json:"payee"`
	Amount               models.Money               `json:"amount"`
	TransferAmount       models.Money               `json:"transferAmount"`
	Expiration           string                     `json:"expiration,omitempty"`
	TransactionType      models.TransactionTypeInfo `json:"transactionType"`
}

// QuoteResponse builds the ILP packet for a quote response and derives its
// condition. The packet commits to the quote identifiers and amounts, so a
// transfer can only settle against the exact quote it was issued for.
func (c *Codec) QuoteResponse(req models.QuotesPostRequest, transferAmount models.Money) (ilpPacket, condition string, err error) {
	payload := quotePayload{
		QuoteID:              req.QuoteID,
		TransactionID:        req.TransactionID,
		TransactionRequestID: req.TransactionRequestID,
		Payer:                req.Payer,
		Payee:                req.Payee,
		Amount:               req.Amount,
		TransferAmount:       transferAmount,
		Expiration:           req.Expiration,
		TransactionType:      req.TransactionType,
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return "", "", fmt.Errorf("ilp: marshal quote payload: %w", err)
	}

	ilpPacket = enc.EncodeToString(data)
	condition, err = c.Condition(c.Fulfilment(ilpPacket))
	if err != nil {
		return "", "", err
	}
	return ilpPacket, condition, nil
}
