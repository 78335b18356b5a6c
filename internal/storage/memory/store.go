// Package memory provides in-memory store implementations mirroring the
// postgres behaviour, used by tests and local development.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lpsbridge/iso8583-adaptor/internal/models"
	"github.com/lpsbridge/iso8583-adaptor/internal/storage"
)

var (
	_ storage.TransactionStore   = (*TransactionStore)(nil)
	_ storage.TransferStore      = (*TransferStore)(nil)
	_ storage.LegacyMessageStore = (*LegacyMessageStore)(nil)
)

// TransactionStore is a mutex-guarded map implementation of
// storage.TransactionStore.
type TransactionStore struct {
	mu           sync.Mutex
	transactions map[string]*models.Transaction
}

// NewTransactionStore constructs an empty transaction store.
func NewTransactionStore() *TransactionStore {
	return &TransactionStore{transactions: make(map[string]*models.Transaction)}
}

func cloneTransaction(t *models.Transaction) *models.Transaction {
	clone := *t
	clone.Fees = append([]models.Fee(nil), t.Fees...)
	if t.Quote != nil {
		quote := *t.Quote
		clone.Quote = &quote
	}
	return &clone
}

// Create stores the whole transaction aggregate. The correlation key must
// be new.
func (s *TransactionStore) Create(_ context.Context, transaction *models.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.transactions[transaction.TransactionRequestID]; exists {
		return fmt.Errorf("%w: transaction %s", storage.ErrDuplicate, transaction.TransactionRequestID)
	}
	s.transactions[transaction.TransactionRequestID] = cloneTransaction(transaction)
	return nil
}

// Get returns the transaction for a transactionRequestId.
func (s *TransactionStore) Get(_ context.Context, transactionRequestID string) (*models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	transaction, ok := s.transactions[transactionRequestID]
	if !ok {
		return nil, fmt.Errorf("%w: transaction %s", storage.ErrNotFound, transactionRequestID)
	}
	return cloneTransaction(transaction), nil
}

// GetByTransactionID returns the transaction resolved to a hub-assigned
// transaction id.
func (s *TransactionStore) GetByTransactionID(_ context.Context, transactionID string) (*models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, transaction := range s.transactions {
		if transaction.TransactionID == transactionID {
			return cloneTransaction(transaction), nil
		}
	}
	return nil, fmt.Errorf("%w: transaction id %s", storage.ErrNotFound, transactionID)
}

// GetByLpsKey returns the most recent transaction for a legacy session key.
func (s *TransactionStore) GetByLpsKey(_ context.Context, lpsKey string) (*models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var latest *models.Transaction
	for _, transaction := range s.transactions {
		if transaction.LpsKey != lpsKey {
			continue
		}
		if latest == nil || transaction.CreatedAt.After(latest.CreatedAt) {
			latest = transaction
		}
	}
	if latest == nil {
		return nil, fmt.Errorf("%w: lpsKey %s", storage.ErrNotFound, lpsKey)
	}
	return cloneTransaction(latest), nil
}

// UpdatePayerFspID records the FSP resolved for the payer.
func (s *TransactionStore) UpdatePayerFspID(_ context.Context, transactionRequestID, fspID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	transaction, ok := s.transactions[transactionRequestID]
	if !ok {
		return fmt.Errorf("%w: transaction %s", storage.ErrNotFound, transactionRequestID)
	}
	transaction.Payer.FspID = fspID
	return nil
}

// SetTransactionID records the hub-assigned transaction id. The id is
// immutable once assigned.
func (s *TransactionStore) SetTransactionID(_ context.Context, transactionRequestID, transactionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	transaction, ok := s.transactions[transactionRequestID]
	if !ok {
		return fmt.Errorf("%w: transaction %s", storage.ErrNotFound, transactionRequestID)
	}
	if transaction.TransactionID != "" && transaction.TransactionID != transactionID {
		return fmt.Errorf("%w: transaction id already set", storage.ErrDuplicate)
	}
	transaction.TransactionID = transactionID
	return nil
}

// AddFee appends a fee line item to the transaction.
func (s *TransactionStore) AddFee(_ context.Context, transactionRequestID string, fee models.Fee) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	transaction, ok := s.transactions[transactionRequestID]
	if !ok {
		return fmt.Errorf("%w: transaction %s", storage.ErrNotFound, transactionRequestID)
	}
	transaction.Fees = append(transaction.Fees, fee)
	return nil
}

// AttachQuote stores the quote and advances the state in one step.
func (s *TransactionStore) AttachQuote(_ context.Context, transactionRequestID string, quote models.Quote, prev, next models.TransactionState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	transaction, ok := s.transactions[transactionRequestID]
	if !ok {
		return fmt.Errorf("%w: transaction %s", storage.ErrNotFound, transactionRequestID)
	}
	if err := guardTransactionState(transaction, prev, next); err != nil {
		return err
	}
	q := quote
	transaction.Quote = &q
	transaction.PreviousState = transaction.State
	transaction.State = next
	return nil
}

// UpdateState applies prev → next under the compare-and-swap guard.
func (s *TransactionStore) UpdateState(_ context.Context, transactionRequestID string, prev, next models.TransactionState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	transaction, ok := s.transactions[transactionRequestID]
	if !ok {
		return fmt.Errorf("%w: transaction %s", storage.ErrNotFound, transactionRequestID)
	}
	if err := guardTransactionState(transaction, prev, next); err != nil {
		return err
	}
	transaction.PreviousState = transaction.State
	transaction.State = next
	return nil
}

func guardTransactionState(transaction *models.Transaction, prev, next models.TransactionState) error {
	if !prev.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", storage.ErrIllegalTransition, prev, next)
	}
	if transaction.State != prev {
		return fmt.Errorf("%w: expected %s, found %s", storage.ErrStateConflict, prev, transaction.State)
	}
	return nil
}

// TransferStore is a mutex-guarded map implementation of
// storage.TransferStore.
type TransferStore struct {
	mu        sync.Mutex
	transfers map[string]*models.Transfer
	byQuote   map[string]string
}

// NewTransferStore constructs an empty transfer store.
func NewTransferStore() *TransferStore {
	return &TransferStore{
		transfers: make(map[string]*models.Transfer),
		byQuote:   make(map[string]string),
	}
}

// Create stores a new transfer. Both the transfer id and the quote id must
// be unused: at most one transfer exists per quote.
func (s *TransferStore) Create(_ context.Context, transfer *models.Transfer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.transfers[transfer.ID]; exists {
		return fmt.Errorf("%w: transfer %s", storage.ErrDuplicate, transfer.ID)
	}
	if existing, exists := s.byQuote[transfer.QuoteID]; exists {
		return fmt.Errorf("%w: quote %s already has transfer %s", storage.ErrDuplicate, transfer.QuoteID, existing)
	}
	clone := *transfer
	s.transfers[transfer.ID] = &clone
	s.byQuote[transfer.QuoteID] = transfer.ID
	return nil
}

// Get returns the transfer for a transfer id.
func (s *TransferStore) Get(_ context.Context, transferID string) (*models.Transfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	transfer, ok := s.transfers[transferID]
	if !ok {
		return nil, fmt.Errorf("%w: transfer %s", storage.ErrNotFound, transferID)
	}
	clone := *transfer
	return &clone, nil
}

// UpdateState applies prev → next under the compare-and-swap guard.
func (s *TransferStore) UpdateState(_ context.Context, transferID string, prev, next models.TransferState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	transfer, ok := s.transfers[transferID]
	if !ok {
		return fmt.Errorf("%w: transfer %s", storage.ErrNotFound, transferID)
	}
	if !prev.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", storage.ErrIllegalTransition, prev, next)
	}
	if transfer.State != prev {
		return fmt.Errorf("%w: expected %s, found %s", storage.ErrStateConflict, prev, transfer.State)
	}
	transfer.State = next
	return nil
}

// LegacyMessageStore is a mutex-guarded append-only slice of raw legacy
// payloads.
type LegacyMessageStore struct {
	mu       sync.Mutex
	nextID   int64
	messages []models.LegacyMessage
}

// NewLegacyMessageStore constructs an empty legacy message store.
func NewLegacyMessageStore() *LegacyMessageStore {
	return &LegacyMessageStore{nextID: 1}
}

// Create appends the message and assigns it an id.
func (s *LegacyMessageStore) Create(_ context.Context, message *models.LegacyMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	message.ID = s.nextID
	s.nextID++
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now()
	}
	s.messages = append(s.messages, *message)
	return nil
}

// GetByLpsKey returns all messages recorded for a legacy session key in
// insertion order.
func (s *LegacyMessageStore) GetByLpsKey(_ context.Context, lpsKey string) ([]models.LegacyMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.LegacyMessage
	for _, message := range s.messages {
		if message.LpsKey == lpsKey {
			out = append(out, message)
		}
	}
	return out, nil
}
