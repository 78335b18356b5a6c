package iso8583

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/lpsbridge/iso8583-adaptor/internal/models"
)

func legacy0100() models.LegacyTransactionRequest {
	return models.LegacyTransactionRequest{
		LpsID:  "lps1",
		LpsKey: "lps1-001-abc",
		Fields: map[string]string{
			"0":   "0100",
			"4":   "100",
			"7":   "2026-08-28T10:00:00Z",
			"28":  "5",
			"41":  "1234",
			"42":  "abcd",
			"49":  "USD",
			"102": "0821234567",
		},
	}
}

func TestTranslateTransactionRequest(t *testing.T) {
	req, err := TranslateTransactionRequest("123", legacy0100())
	if err != nil {
		t.Fatalf("translating well-formed 0100: %v", err)
	}

	if req.TransactionRequestID != "123" {
		t.Fatalf("unexpected transactionRequestId %q", req.TransactionRequestID)
	}
	if req.Payer.PartyIDType != models.PartyIDTypeMSISDN || req.Payer.PartyIdentifier != "0821234567" {
		t.Fatalf("unexpected payer mapping: %+v", req.Payer)
	}
	payee := req.Payee.PartyIDInfo
	if payee.PartyIDType != models.PartyIDTypeDevice || payee.PartyIdentifier != "1234" || payee.PartySubIDOrType != "abcd" {
		t.Fatalf("unexpected payee mapping: %+v", payee)
	}
	if !req.Amount.Amount.Equal(decimal.NewFromInt(100)) || req.Amount.Currency != "USD" {
		t.Fatalf("unexpected amount mapping: %+v", req.Amount)
	}
	if req.Expiration != "2026-08-28T10:00:00Z" {
		t.Fatalf("unexpected expiration %q", req.Expiration)
	}
	want := models.TransactionTypeInfo{
		Scenario:      models.ScenarioWithdrawal,
		Initiator:     models.InitiatorPayee,
		InitiatorType: models.InitiatorTypeDevice,
	}
	if req.TransactionType != want {
		t.Fatalf("unexpected transaction type: %+v", req.TransactionType)
	}
	if req.AuthenticationType != models.AuthenticationTypeOTP {
		t.Fatalf("unexpected authentication type %q", req.AuthenticationType)
	}
}

func TestTranslateTransactionRequestMissingFields(t *testing.T) {
	for _, field := range []string{FieldAmount, FieldExpiration, FieldPayeeDevice, FieldPayeeSubID, FieldCurrency, FieldPayerMSISDN} {
		legacy := legacy0100()
		delete(legacy.Fields, field)

		_, err := TranslateTransactionRequest("123", legacy)
		if !errors.Is(err, ErrTranslation) {
			t.Fatalf("field %s: expected ErrTranslation, got %v", field, err)
		}
	}
}

func TestTranslateTransactionRequestMalformedMSISDN(t *testing.T) {
	legacy := legacy0100()
	legacy.Fields[FieldPayerMSISDN] = "082-123-4567"

	if _, err := TranslateTransactionRequest("123", legacy); !errors.Is(err, ErrTranslation) {
		t.Fatalf("expected ErrTranslation, got %v", err)
	}
}

func TestTranslateTransactionRequestMissingSwitchIDs(t *testing.T) {
	legacy := legacy0100()
	legacy.LpsKey = ""

	if _, err := TranslateTransactionRequest("123", legacy); !errors.Is(err, ErrTranslation) {
		t.Fatalf("expected ErrTranslation, got %v", err)
	}
}

func TestLpsFee(t *testing.T) {
	fee, ok, err := LpsFee(legacy0100(), "USD")
	if err != nil || !ok {
		t.Fatalf("expected lps fee, got ok=%v err=%v", ok, err)
	}
	if fee.Type != models.FeeTypeLps || !fee.Amount.Amount.Equal(decimal.NewFromInt(5)) || fee.Amount.Currency != "USD" {
		t.Fatalf("unexpected fee: %+v", fee)
	}

	legacy := legacy0100()
	delete(legacy.Fields, FieldLpsFee)
	if _, ok, err := LpsFee(legacy, "USD"); ok || err != nil {
		t.Fatalf("expected absent fee to be ok=false err=nil, got ok=%v err=%v", ok, err)
	}

	legacy.Fields[FieldLpsFee] = "not-a-number"
	if _, _, err := LpsFee(legacy, "USD"); !errors.Is(err, ErrTranslation) {
		t.Fatalf("expected ErrTranslation for malformed fee, got %v", err)
	}
}

func TestAuthorizationResponse(t *testing.T) {
	transferAmount, _ := models.NewMoney("107", "USD")
	feeAmount, _ := models.NewMoney("7", "USD")
	transaction := &models.Transaction{
		TransactionRequestID: "123",
		LpsKey:               "lps1-001-abc",
		Quote: &models.Quote{
			TransferAmount: transferAmount,
			FeeAmount:      feeAmount,
		},
	}

	resp, err := AuthorizationResponse(transaction)
	if err != nil {
		t.Fatalf("building authorization response: %v", err)
	}
	if resp.LpsKey != "lps1-001-abc" || resp.TransferAmount.Amount.String() != "107" || resp.Fees.Amount.String() != "7" {
		t.Fatalf("unexpected authorization response: %+v", resp)
	}

	transaction.Quote = nil
	if _, err := AuthorizationResponse(transaction); !errors.Is(err, ErrTranslation) {
		t.Fatalf("expected ErrTranslation without quote, got %v", err)
	}
}
