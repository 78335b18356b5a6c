package adaptor

import (
	"context"
	"errors"
	"testing"

	"github.com/lpsbridge/iso8583-adaptor/internal/models"
)

func TestHandleTransactionUpdateCompletesTransaction(t *testing.T) {
	h := newHarness(t, nil)
	quote, _ := h.seedQuote(t)
	h.seedTransaction(t, models.TransactionStateFulfillmentSent, quote)

	// The completion acknowledgement echoes the message id of the recorded
	// financial request.
	if err := h.adaptor.HandleFinancialRequest(context.Background(), financialRequest(models.LegacyResponseEntered)); err != nil {
		t.Fatalf("recording financial request: %v", err)
	}

	payload := models.TransactionsIDPutResponse{TransactionState: "COMPLETED"}
	if err := h.adaptor.HandleTransactionUpdate(context.Background(), "txn-1", payload); err != nil {
		t.Fatalf("HandleTransactionUpdate: %v", err)
	}

	transaction, err := h.transactions.Get(context.Background(), "txr-1")
	if err != nil {
		t.Fatalf("loading transaction: %v", err)
	}
	if transaction.State != models.TransactionStateCompleted {
		t.Fatalf("state = %s, want %s", transaction.State, models.TransactionStateCompleted)
	}
	if transaction.PreviousState != models.TransactionStateFulfillmentSent {
		t.Fatalf("previous state = %s, want %s", transaction.PreviousState, models.TransactionStateFulfillmentSent)
	}

	if len(h.lps.financials) != 1 {
		t.Fatalf("expected one financial response to the switch, got %d", len(h.lps.financials))
	}
	response := h.lps.financials[0]
	if response.LpsKey != "lps1-001-abc" || response.LpsFinancialRequestMessageID != "fin-msg-42" {
		t.Fatalf("unexpected financial response: %+v", response)
	}
}

func TestHandleTransactionUpdateUnsupportedStateRejected(t *testing.T) {
	h := newHarness(t, nil)
	quote, _ := h.seedQuote(t)
	h.seedTransaction(t, models.TransactionStateFulfillmentSent, quote)

	payload := models.TransactionsIDPutResponse{TransactionState: "PENDING"}
	err := h.adaptor.HandleTransactionUpdate(context.Background(), "txn-1", payload)
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestHandleTransactionUpdateUnknownTransaction(t *testing.T) {
	h := newHarness(t, nil)

	payload := models.TransactionsIDPutResponse{TransactionState: "COMPLETED"}
	err := h.adaptor.HandleTransactionUpdate(context.Background(), "txn-404", payload)
	if !errors.Is(err, ErrDomain) {
		t.Fatalf("expected ErrDomain, got %v", err)
	}
}

func TestHandleTransactionUpdateDuplicateDeliveryIsNoOp(t *testing.T) {
	h := newHarness(t, nil)
	quote, _ := h.seedQuote(t)
	h.seedTransaction(t, models.TransactionStateFulfillmentSent, quote)

	payload := models.TransactionsIDPutResponse{TransactionState: "COMPLETED"}
	if err := h.adaptor.HandleTransactionUpdate(context.Background(), "txn-1", payload); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	if err := h.adaptor.HandleTransactionUpdate(context.Background(), "txn-1", payload); err != nil {
		t.Fatalf("duplicate delivery should be a no-op, got %v", err)
	}
}
