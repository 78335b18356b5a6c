// Package adaptor contains the orchestration pipelines bridging legacy
// switch messages and the payment hub. Each handler drives one inbound
// request through translation, persistence and outbound calls, converting
// every failure into exactly one observable outcome.
package adaptor

import (
	"context"
	"errors"
	"reflect"
	"time"

	"github.com/rs/zerolog"

	"github.com/lpsbridge/iso8583-adaptor/internal/ilp"
	"github.com/lpsbridge/iso8583-adaptor/internal/models"
	"github.com/lpsbridge/iso8583-adaptor/internal/quotes"
	"github.com/lpsbridge/iso8583-adaptor/internal/storage"
)

// AccountLookup resolves the FSP serving a party. The result arrives later
// through the parties callback, correlated by the trace id.
type AccountLookup interface {
	RequestFspIDFromMSISDN(ctx context.Context, traceID, msisdn string) error
}

// HubClient is the thin wrapper around the payment hub's callback API.
type HubClient interface {
	PostTransactionRequests(ctx context.Context, request models.TransactionRequest, destination string) error
	PutQuotes(ctx context.Context, quoteID string, response models.QuotesIDPutResponse, destination string) error
	PutTransfers(ctx context.Context, transferID string, response models.TransfersIDPutResponse, destination string) error
	PutTransfersError(ctx context.Context, transferID string, info models.ErrorInformation, destination string) error
}

// LPSClient delivers acknowledgements back to a legacy switch.
type LPSClient interface {
	SendAuthorizationResponse(ctx context.Context, lpsID string, response models.LegacyAuthorizationResponse) error
	SendFinancialResponse(ctx context.Context, lpsID string, response models.LegacyFinancialResponse) error
}

// EventSink receives lifecycle audit events. Sink failures never veto a
// pipeline.
type EventSink interface {
	Emit(ctx context.Context, eventType, correlationID string, payload any) error
}

// Headers carries the request metadata handlers correlate on.
type Headers struct {
	// Source and Destination are the fspiop routing headers.
	Source      string
	Destination string
	// CorrelationID links an asynchronous callback to the originating
	// transaction request.
	CorrelationID string
}

// Dependencies is the capability bag composed once at startup and passed
// into the adaptor by reference.
type Dependencies struct {
	Transactions   storage.TransactionStore
	Transfers      storage.TransferStore
	LegacyMessages storage.LegacyMessageStore
	AccountLookup  AccountLookup
	Hub            HubClient
	LPS            LPSClient
	Quotes         *quotes.Engine
	ILP            *ilp.Codec
	Events         EventSink
	Logger         zerolog.Logger
	Now            func() time.Time
}

// Adaptor sequences the orchestration pipelines over the injected
// capabilities.
type Adaptor struct {
	transactions   storage.TransactionStore
	transfers      storage.TransferStore
	legacyMessages storage.LegacyMessageStore
	accountLookup  AccountLookup
	hub            HubClient
	lps            LPSClient
	quotes         *quotes.Engine
	ilp            *ilp.Codec
	events         EventSink
	logger         zerolog.Logger
	now            func() time.Time
}

// New validates the capability bag and constructs the adaptor.
func New(deps Dependencies) (*Adaptor, error) {
	switch {
	case deps.Transactions == nil:
		return nil, errors.New("adaptor: transaction store dependency is required")
	case deps.Transfers == nil:
		return nil, errors.New("adaptor: transfer store dependency is required")
	case deps.LegacyMessages == nil:
		return nil, errors.New("adaptor: legacy message store dependency is required")
	case deps.AccountLookup == nil:
		return nil, errors.New("adaptor: account lookup dependency is required")
	case deps.Hub == nil:
		return nil, errors.New("adaptor: hub client dependency is required")
	case deps.LPS == nil:
		return nil, errors.New("adaptor: lps client dependency is required")
	case deps.Quotes == nil:
		return nil, errors.New("adaptor: quote engine dependency is required")
	case deps.ILP == nil:
		return nil, errors.New("adaptor: ilp codec dependency is required")
	}

	if deps.Events == nil {
		deps.Events = nopEvents{}
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if reflect.ValueOf(deps.Logger).IsZero() {
		deps.Logger = zerolog.Nop()
	}

	return &Adaptor{
		transactions:   deps.Transactions,
		transfers:      deps.Transfers,
		legacyMessages: deps.LegacyMessages,
		accountLookup:  deps.AccountLookup,
		hub:            deps.Hub,
		lps:            deps.LPS,
		quotes:         deps.Quotes,
		ilp:            deps.ILP,
		events:         deps.Events,
		logger:         deps.Logger,
		now:            deps.Now,
	}, nil
}

type nopEvents struct{}

func (nopEvents) Emit(context.Context, string, string, any) error { return nil }

// emit publishes a lifecycle event, logging but never propagating sink
// failures.
func (a *Adaptor) emit(ctx context.Context, eventType, correlationID string, payload any) {
	if err := a.events.Emit(ctx, eventType, correlationID, payload); err != nil {
		a.logger.Warn().
			Err(err).
			Str("event_type", eventType).
			Str("correlation_id", correlationID).
			Msg("event publish failed")
	}
}
