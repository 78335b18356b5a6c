package adaptor

import (
	"context"
	"errors"
	"testing"

	"github.com/lpsbridge/iso8583-adaptor/internal/models"
)

func partiesPayload(fspID string) models.PartiesPutResponse {
	var payload models.PartiesPutResponse
	payload.Party.PartyIDInfo = models.PartyIDInfo{
		PartyIDType:     models.PartyIDTypeMSISDN,
		PartyIdentifier: "0821234567",
		FspID:           fspID,
	}
	return payload
}

func TestHandlePartiesRequiresFspID(t *testing.T) {
	h := newHarness(t, nil)
	h.seedTransaction(t, models.TransactionStateReceived, nil)

	err := h.adaptor.HandleParties(context.Background(), partiesPayload(""), Headers{CorrelationID: "txr-1"})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}

	transaction, _ := h.transactions.Get(context.Background(), "txr-1")
	if transaction.State != models.TransactionStateReceived {
		t.Fatalf("validation failure mutated state to %s", transaction.State)
	}
}

func TestHandlePartiesRequiresCorrelationID(t *testing.T) {
	h := newHarness(t, nil)

	err := h.adaptor.HandleParties(context.Background(), partiesPayload("mojawallet"), Headers{})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestHandlePartiesUnknownCorrelationID(t *testing.T) {
	h := newHarness(t, nil)

	err := h.adaptor.HandleParties(context.Background(), partiesPayload("mojawallet"), Headers{CorrelationID: "missing"})
	if !errors.Is(err, ErrDomain) {
		t.Fatalf("expected ErrDomain, got %v", err)
	}
}

func TestHandlePartiesAdvancesAndForwards(t *testing.T) {
	h := newHarness(t, nil)
	h.seedTransaction(t, models.TransactionStateReceived, nil)

	err := h.adaptor.HandleParties(context.Background(), partiesPayload("mojawallet"), Headers{CorrelationID: "txr-1"})
	if err != nil {
		t.Fatalf("handling parties callback: %v", err)
	}

	transaction, _ := h.transactions.Get(context.Background(), "txr-1")
	if transaction.Payer.FspID != "mojawallet" {
		t.Fatalf("payer fsp not recorded: %+v", transaction.Payer)
	}
	if transaction.State != models.TransactionStatePayerIdentified || transaction.PreviousState != models.TransactionStateReceived {
		t.Fatalf("unexpected states: state=%s previous=%s", transaction.State, transaction.PreviousState)
	}

	if len(h.hub.transactionRequests) != 1 {
		t.Fatalf("expected one forwarded transaction request, got %d", len(h.hub.transactionRequests))
	}
	forwarded := h.hub.transactionRequests[0]
	if forwarded.TransactionRequestID != "txr-1" || forwarded.Payer.FspID != "mojawallet" {
		t.Fatalf("unexpected forwarded request: %+v", forwarded)
	}
}

func TestHandlePartiesDuplicateDeliveryIsNoOp(t *testing.T) {
	h := newHarness(t, nil)
	h.seedTransaction(t, models.TransactionStateReceived, nil)
	headers := Headers{CorrelationID: "txr-1"}

	if err := h.adaptor.HandleParties(context.Background(), partiesPayload("mojawallet"), headers); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	if err := h.adaptor.HandleParties(context.Background(), partiesPayload("mojawallet"), headers); err != nil {
		t.Fatalf("duplicate delivery should be a no-op, got %v", err)
	}

	if len(h.hub.transactionRequests) != 1 {
		t.Fatalf("duplicate delivery forwarded again: %d calls", len(h.hub.transactionRequests))
	}
}
