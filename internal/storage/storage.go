// Package storage declares the persistence contracts for the adaptor's
// three aggregates. Implementations must provide atomic aggregate-graph
// writes and state-guarded updates: a state change only lands if the row
// still holds the expected prior state, so duplicate or racing deliveries
// collapse to a single effective transition.
package storage

import (
	"context"
	"errors"

	"github.com/lpsbridge/iso8583-adaptor/internal/models"
)

var (
	// ErrNotFound is returned when no row matches the correlation key.
	ErrNotFound = errors.New("storage: not found")
	// ErrDuplicate is returned when a create collides with an existing key.
	ErrDuplicate = errors.New("storage: duplicate key")
	// ErrStateConflict is returned when a guarded update loses the
	// compare-and-swap: the row no longer holds the expected prior state.
	ErrStateConflict = errors.New("storage: state conflict")
	// ErrIllegalTransition is returned when the requested edge is not in
	// the state machine's transition table at all.
	ErrIllegalTransition = errors.New("storage: illegal state transition")
)

// TransactionStore persists the Transaction aggregate, including parties,
// fees and the embedded quote. Create writes the whole graph atomically.
type TransactionStore interface {
	Create(ctx context.Context, transaction *models.Transaction) error
	Get(ctx context.Context, transactionRequestID string) (*models.Transaction, error)
	GetByTransactionID(ctx context.Context, transactionID string) (*models.Transaction, error)
	GetByLpsKey(ctx context.Context, lpsKey string) (*models.Transaction, error)
	UpdatePayerFspID(ctx context.Context, transactionRequestID, fspID string) error
	SetTransactionID(ctx context.Context, transactionRequestID, transactionID string) error
	// AddFee appends a fee line item to the transaction.
	AddFee(ctx context.Context, transactionRequestID string, fee models.Fee) error
	// AttachQuote stores the quote and advances the transaction state in
	// one atomic operation.
	AttachQuote(ctx context.Context, transactionRequestID string, quote models.Quote, prev, next models.TransactionState) error
	// UpdateState applies prev → next if and only if the row still holds
	// prev, recording prev into previousState.
	UpdateState(ctx context.Context, transactionRequestID string, prev, next models.TransactionState) error
}

// TransferStore persists transfers. At most one transfer exists per quote.
type TransferStore interface {
	Create(ctx context.Context, transfer *models.Transfer) error
	Get(ctx context.Context, transferID string) (*models.Transfer, error)
	UpdateState(ctx context.Context, transferID string, prev, next models.TransferState) error
}

// LegacyMessageStore persists raw inbound legacy payloads. Records are
// append-only and never mutated after creation.
type LegacyMessageStore interface {
	Create(ctx context.Context, message *models.LegacyMessage) error
	GetByLpsKey(ctx context.Context, lpsKey string) ([]models.LegacyMessage, error)
}
