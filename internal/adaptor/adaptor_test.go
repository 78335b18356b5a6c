package adaptor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/lpsbridge/iso8583-adaptor/internal/ilp"
	"github.com/lpsbridge/iso8583-adaptor/internal/models"
	"github.com/lpsbridge/iso8583-adaptor/internal/quotes"
	"github.com/lpsbridge/iso8583-adaptor/internal/storage"
	"github.com/lpsbridge/iso8583-adaptor/internal/storage/memory"
)

var testNow = time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)

type lookupCall struct {
	traceID string
	msisdn  string
}

type fakeAccountLookup struct {
	calls []lookupCall
	err   error
}

func (f *fakeAccountLookup) RequestFspIDFromMSISDN(_ context.Context, traceID, msisdn string) error {
	if f.err != nil {
		return f.err
	}
	f.calls = append(f.calls, lookupCall{traceID: traceID, msisdn: msisdn})
	return nil
}

type putTransfersCall struct {
	transferID  string
	response    models.TransfersIDPutResponse
	destination string
}

type putTransfersErrorCall struct {
	transferID  string
	info        models.ErrorInformation
	destination string
}

type putQuotesCall struct {
	quoteID     string
	response    models.QuotesIDPutResponse
	destination string
}

type fakeHub struct {
	transactionRequests []models.TransactionRequest
	quotes              []putQuotesCall
	transfers           []putTransfersCall
	transferErrors      []putTransfersErrorCall
}

func (f *fakeHub) PostTransactionRequests(_ context.Context, request models.TransactionRequest, _ string) error {
	f.transactionRequests = append(f.transactionRequests, request)
	return nil
}

func (f *fakeHub) PutQuotes(_ context.Context, quoteID string, response models.QuotesIDPutResponse, destination string) error {
	f.quotes = append(f.quotes, putQuotesCall{quoteID: quoteID, response: response, destination: destination})
	return nil
}

func (f *fakeHub) PutTransfers(_ context.Context, transferID string, response models.TransfersIDPutResponse, destination string) error {
	f.transfers = append(f.transfers, putTransfersCall{transferID: transferID, response: response, destination: destination})
	return nil
}

func (f *fakeHub) PutTransfersError(_ context.Context, transferID string, info models.ErrorInformation, destination string) error {
	f.transferErrors = append(f.transferErrors, putTransfersErrorCall{transferID: transferID, info: info, destination: destination})
	return nil
}

type fakeLPS struct {
	authorizations []models.LegacyAuthorizationResponse
	financials     []models.LegacyFinancialResponse
}

func (f *fakeLPS) SendAuthorizationResponse(_ context.Context, _ string, response models.LegacyAuthorizationResponse) error {
	f.authorizations = append(f.authorizations, response)
	return nil
}

func (f *fakeLPS) SendFinancialResponse(_ context.Context, _ string, response models.LegacyFinancialResponse) error {
	f.financials = append(f.financials, response)
	return nil
}

// failingTransferStore forces transfer creation to fail so the error
// callback path can be exercised.
type failingTransferStore struct {
	storage.TransferStore
}

func (failingTransferStore) Create(context.Context, *models.Transfer) error {
	return errors.New("transfer table unavailable")
}

type harness struct {
	adaptor      *Adaptor
	transactions *memory.TransactionStore
	transfers    *memory.TransferStore
	messages     *memory.LegacyMessageStore
	lookup       *fakeAccountLookup
	hub          *fakeHub
	lps          *fakeLPS
	codec        *ilp.Codec
}

func newHarness(t *testing.T, mutate func(*Dependencies)) *harness {
	t.Helper()

	codec, err := ilp.NewCodec("secret")
	if err != nil {
		t.Fatalf("creating codec: %v", err)
	}

	calculateFees := func(_ context.Context, amount models.Money) (models.Money, error) {
		return models.NewMoney("2", amount.Currency)
	}
	engine, err := quotes.NewEngine(codec, calculateFees, 10*time.Second, zerolog.Nop())
	if err != nil {
		t.Fatalf("creating quote engine: %v", err)
	}
	engine.WithClock(func() time.Time { return testNow })

	h := &harness{
		transactions: memory.NewTransactionStore(),
		transfers:    memory.NewTransferStore(),
		messages:     memory.NewLegacyMessageStore(),
		lookup:       &fakeAccountLookup{},
		hub:          &fakeHub{},
		lps:          &fakeLPS{},
		codec:        codec,
	}

	deps := Dependencies{
		Transactions:   h.transactions,
		Transfers:      h.transfers,
		LegacyMessages: h.messages,
		AccountLookup:  h.lookup,
		Hub:            h.hub,
		LPS:            h.lps,
		Quotes:         engine,
		ILP:            codec,
		Logger:         zerolog.Nop(),
		Now:            func() time.Time { return testNow },
	}
	if mutate != nil {
		mutate(&deps)
	}

	h.adaptor, err = New(deps)
	if err != nil {
		t.Fatalf("creating adaptor: %v", err)
	}
	return h
}

func legacy0100() models.LegacyTransactionRequest {
	return models.LegacyTransactionRequest{
		LpsID:  "lps1",
		LpsKey: "lps1-001-abc",
		Fields: map[string]string{
			"0":   "0100",
			"4":   "100",
			"7":   testNow.Add(time.Hour).Format(time.RFC3339),
			"28":  "5",
			"41":  "1234",
			"42":  "abcd",
			"49":  "USD",
			"102": "0821234567",
		},
	}
}

// seedTransaction stores a transaction directly in the given state.
func (h *harness) seedTransaction(t *testing.T, state models.TransactionState, quote *models.Quote) *models.Transaction {
	t.Helper()
	amount, _ := models.NewMoney("100", "USD")
	lpsFee, _ := models.NewMoney("5", "USD")
	transaction := &models.Transaction{
		TransactionRequestID: "txr-1",
		TransactionID:        "txn-1",
		LpsID:                "lps1",
		LpsKey:               "lps1-001-abc",
		Payer: models.Party{
			Type:            models.PartyTypePayer,
			IdentifierType:  models.PartyIDTypeMSISDN,
			IdentifierValue: "0821234567",
			FspID:           "mojawallet",
		},
		Payee: models.Party{
			Type:            models.PartyTypePayee,
			IdentifierType:  models.PartyIDTypeDevice,
			IdentifierValue: "1234",
			SubIDOrType:     "abcd",
			FspID:           "adaptor",
		},
		Amount:             amount,
		Scenario:           models.ScenarioWithdrawal,
		Initiator:          models.InitiatorPayee,
		InitiatorType:      models.InitiatorTypeDevice,
		AuthenticationType: models.AuthenticationTypeOTP,
		Expiration:         testNow.Add(time.Hour).Format(time.RFC3339),
		State:              state,
		Fees:               []models.Fee{{Type: models.FeeTypeLps, Amount: lpsFee}},
		Quote:              quote,
		CreatedAt:          testNow,
	}
	if err := h.transactions.Create(context.Background(), transaction); err != nil {
		t.Fatalf("seeding transaction: %v", err)
	}
	return transaction
}

// seedQuote derives a consistent quote for the standard seeded transaction.
func (h *harness) seedQuote(t *testing.T) (*models.Quote, string) {
	t.Helper()
	transferAmount, _ := models.NewMoney("107", "USD")
	feeAmount, _ := models.NewMoney("7", "USD")
	amount, _ := models.NewMoney("100", "USD")

	request := models.QuotesPostRequest{
		QuoteID:              "quote-1",
		TransactionID:        "txn-1",
		TransactionRequestID: "txr-1",
		Amount:               amount,
	}
	ilpPacket, condition, err := h.codec.QuoteResponse(request, transferAmount)
	if err != nil {
		t.Fatalf("deriving quote ilp: %v", err)
	}

	return &models.Quote{
		ID:             "quote-1",
		TransactionID:  "txn-1",
		Amount:         amount,
		FeeAmount:      feeAmount,
		TransferAmount: transferAmount,
		IlpPacket:      ilpPacket,
		Condition:      condition,
		Expiration:     testNow.Add(10 * time.Second),
	}, ilpPacket
}
