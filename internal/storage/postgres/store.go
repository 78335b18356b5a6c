// Package postgres implements the storage contracts on database/sql with
// the lib/pq driver. Aggregate graphs are written inside explicit
// transactions; state changes go through single-statement compare-and-swap
// updates so racing deliveries collapse to one effective transition.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/lpsbridge/iso8583-adaptor/internal/models"
	"github.com/lpsbridge/iso8583-adaptor/internal/storage"
)

var (
	_ storage.TransactionStore   = (*TransactionStore)(nil)
	_ storage.TransferStore      = (*TransferStore)(nil)
	_ storage.LegacyMessageStore = (*LegacyMessageStore)(nil)
)

const uniqueViolation = "23505"

func isDuplicate(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

// TransactionStore persists the transaction aggregate across the
// transactions, transaction_parties, transaction_fees and quotes tables.
type TransactionStore struct {
	db *sql.DB
}

// NewTransactionStore wraps an open database handle.
func NewTransactionStore(db *sql.DB) *TransactionStore {
	return &TransactionStore{db: db}
}

// Create inserts the transaction together with its parties and fees in one
// database transaction.
func (s *TransactionStore) Create(ctx context.Context, transaction *models.Transaction) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: begin create transaction: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	const insertTransaction = `
		INSERT INTO transactions (transaction_request_id, transaction_id, lps_id, lps_key,
			amount, currency, scenario, initiator, initiator_type, authentication_type,
			expiration, state, previous_state, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	_, err = tx.ExecContext(ctx, insertTransaction,
		transaction.TransactionRequestID, nullString(transaction.TransactionID),
		transaction.LpsID, transaction.LpsKey,
		transaction.Amount.Amount.String(), transaction.Amount.Currency,
		transaction.Scenario, transaction.Initiator, transaction.InitiatorType,
		transaction.AuthenticationType, transaction.Expiration,
		string(transaction.State), nullString(string(transaction.PreviousState)),
		transaction.CreatedAt)
	if err != nil {
		if isDuplicate(err) {
			return fmt.Errorf("%w: transaction %s", storage.ErrDuplicate, transaction.TransactionRequestID)
		}
		return fmt.Errorf("postgres: insert transaction: %w", err)
	}

	const insertParty = `
		INSERT INTO transaction_parties (transaction_request_id, type, identifier_type,
			identifier_value, sub_id_or_type, fsp_id)
		VALUES ($1, $2, $3, $4, $5, $6)`

	for _, party := range []models.Party{transaction.Payer, transaction.Payee} {
		_, err = tx.ExecContext(ctx, insertParty, transaction.TransactionRequestID,
			party.Type, party.IdentifierType, party.IdentifierValue,
			nullString(party.SubIDOrType), nullString(party.FspID))
		if err != nil {
			return fmt.Errorf("postgres: insert party: %w", err)
		}
	}

	const insertFee = `
		INSERT INTO transaction_fees (transaction_request_id, type, amount, currency)
		VALUES ($1, $2, $3, $4)`

	for _, fee := range transaction.Fees {
		_, err = tx.ExecContext(ctx, insertFee, transaction.TransactionRequestID,
			fee.Type, fee.Amount.Amount.String(), fee.Amount.Currency)
		if err != nil {
			return fmt.Errorf("postgres: insert fee: %w", err)
		}
	}

	return tx.Commit()
}

// Get loads the full aggregate for a transactionRequestId.
func (s *TransactionStore) Get(ctx context.Context, transactionRequestID string) (*models.Transaction, error) {
	return s.getWhere(ctx, "t.transaction_request_id = $1", transactionRequestID)
}

// GetByTransactionID loads the aggregate by the hub-assigned id.
func (s *TransactionStore) GetByTransactionID(ctx context.Context, transactionID string) (*models.Transaction, error) {
	return s.getWhere(ctx, "t.transaction_id = $1", transactionID)
}

// GetByLpsKey loads the most recent aggregate for a legacy session key.
func (s *TransactionStore) GetByLpsKey(ctx context.Context, lpsKey string) (*models.Transaction, error) {
	return s.getWhere(ctx, "t.lps_key = $1", lpsKey)
}

func (s *TransactionStore) getWhere(ctx context.Context, where string, arg any) (*models.Transaction, error) {
	query := `
		SELECT t.transaction_request_id, COALESCE(t.transaction_id, ''), t.lps_id, t.lps_key,
			t.amount, t.currency, t.scenario, t.initiator, t.initiator_type,
			t.authentication_type, t.expiration, t.state, COALESCE(t.previous_state, ''),
			t.created_at
		FROM transactions t
		WHERE ` + where + `
		ORDER BY t.created_at DESC
		LIMIT 1`

	row := s.db.QueryRowContext(ctx, query, arg)

	var (
		transaction models.Transaction
		amount      string
		state, prev string
	)
	err := row.Scan(&transaction.TransactionRequestID, &transaction.TransactionID,
		&transaction.LpsID, &transaction.LpsKey, &amount, &transaction.Amount.Currency,
		&transaction.Scenario, &transaction.Initiator, &transaction.InitiatorType,
		&transaction.AuthenticationType, &transaction.Expiration, &state, &prev,
		&transaction.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: transaction (%v)", storage.ErrNotFound, arg)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: select transaction: %w", err)
	}

	transaction.Amount.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("postgres: stored amount %q: %w", amount, err)
	}
	transaction.State = models.TransactionState(state)
	transaction.PreviousState = models.TransactionState(prev)

	if err := s.loadParties(ctx, &transaction); err != nil {
		return nil, err
	}
	if err := s.loadFees(ctx, &transaction); err != nil {
		return nil, err
	}
	if err := s.loadQuote(ctx, &transaction); err != nil {
		return nil, err
	}
	return &transaction, nil
}

func (s *TransactionStore) loadParties(ctx context.Context, transaction *models.Transaction) error {
	const query = `
		SELECT type, identifier_type, identifier_value, COALESCE(sub_id_or_type, ''),
			COALESCE(fsp_id, '')
		FROM transaction_parties WHERE transaction_request_id = $1`

	rows, err := s.db.QueryContext(ctx, query, transaction.TransactionRequestID)
	if err != nil {
		return fmt.Errorf("postgres: select parties: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var party models.Party
		if err := rows.Scan(&party.Type, &party.IdentifierType, &party.IdentifierValue,
			&party.SubIDOrType, &party.FspID); err != nil {
			return fmt.Errorf("postgres: scan party: %w", err)
		}
		switch party.Type {
		case models.PartyTypePayer:
			transaction.Payer = party
		case models.PartyTypePayee:
			transaction.Payee = party
		}
	}
	return rows.Err()
}

func (s *TransactionStore) loadFees(ctx context.Context, transaction *models.Transaction) error {
	const query = `
		SELECT type, amount, currency FROM transaction_fees
		WHERE transaction_request_id = $1 ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, transaction.TransactionRequestID)
	if err != nil {
		return fmt.Errorf("postgres: select fees: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			fee    models.Fee
			amount string
		)
		if err := rows.Scan(&fee.Type, &amount, &fee.Amount.Currency); err != nil {
			return fmt.Errorf("postgres: scan fee: %w", err)
		}
		fee.Amount.Amount, err = decimal.NewFromString(amount)
		if err != nil {
			return fmt.Errorf("postgres: stored fee amount %q: %w", amount, err)
		}
		transaction.Fees = append(transaction.Fees, fee)
	}
	return rows.Err()
}

func (s *TransactionStore) loadQuote(ctx context.Context, transaction *models.Transaction) error {
	const query = `
		SELECT id, COALESCE(transaction_id, ''), amount, amount_currency, fee_amount,
			fee_currency, transfer_amount, transfer_currency, ilp_packet, condition,
			expiration
		FROM quotes WHERE transaction_request_id = $1`

	row := s.db.QueryRowContext(ctx, query, transaction.TransactionRequestID)

	var (
		quote                             models.Quote
		amount, feeAmount, transferAmount string
	)
	err := row.Scan(&quote.ID, &quote.TransactionID, &amount, &quote.Amount.Currency,
		&feeAmount, &quote.FeeAmount.Currency, &transferAmount,
		&quote.TransferAmount.Currency, &quote.IlpPacket, &quote.Condition,
		&quote.Expiration)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("postgres: select quote: %w", err)
	}

	if quote.Amount.Amount, err = decimal.NewFromString(amount); err != nil {
		return fmt.Errorf("postgres: stored quote amount %q: %w", amount, err)
	}
	if quote.FeeAmount.Amount, err = decimal.NewFromString(feeAmount); err != nil {
		return fmt.Errorf("postgres: stored quote fee %q: %w", feeAmount, err)
	}
	if quote.TransferAmount.Amount, err = decimal.NewFromString(transferAmount); err != nil {
		return fmt.Errorf("postgres: stored transfer amount %q: %w", transferAmount, err)
	}
	transaction.Quote = &quote
	return nil
}

// UpdatePayerFspID records the FSP resolved for the payer.
func (s *TransactionStore) UpdatePayerFspID(ctx context.Context, transactionRequestID, fspID string) error {
	const query = `
		UPDATE transaction_parties SET fsp_id = $2
		WHERE transaction_request_id = $1 AND type = $3`

	res, err := s.db.ExecContext(ctx, query, transactionRequestID, fspID, models.PartyTypePayer)
	if err != nil {
		return fmt.Errorf("postgres: update payer fsp: %w", err)
	}
	return requireRow(res, transactionRequestID)
}

// SetTransactionID records the hub-assigned transaction id once.
func (s *TransactionStore) SetTransactionID(ctx context.Context, transactionRequestID, transactionID string) error {
	const query = `
		UPDATE transactions SET transaction_id = $2
		WHERE transaction_request_id = $1
			AND (transaction_id IS NULL OR transaction_id = $2)`

	res, err := s.db.ExecContext(ctx, query, transactionRequestID, transactionID)
	if err != nil {
		return fmt.Errorf("postgres: set transaction id: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("postgres: rows affected: %w", err)
	}
	if affected == 0 {
		if _, getErr := s.Get(ctx, transactionRequestID); getErr != nil {
			return getErr
		}
		return fmt.Errorf("%w: transaction id already set", storage.ErrDuplicate)
	}
	return nil
}

// AddFee appends a fee line item to the transaction.
func (s *TransactionStore) AddFee(ctx context.Context, transactionRequestID string, fee models.Fee) error {
	const query = `
		INSERT INTO transaction_fees (transaction_request_id, type, amount, currency)
		VALUES ($1, $2, $3, $4)`

	_, err := s.db.ExecContext(ctx, query, transactionRequestID, fee.Type,
		fee.Amount.Amount.String(), fee.Amount.Currency)
	if err != nil {
		return fmt.Errorf("postgres: insert fee: %w", err)
	}
	return nil
}

// AttachQuote inserts the quote row and advances the transaction state in
// one database transaction, guarded by the expected prior state.
func (s *TransactionStore) AttachQuote(ctx context.Context, transactionRequestID string, quote models.Quote, prev, next models.TransactionState) (err error) {
	if !prev.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", storage.ErrIllegalTransition, prev, next)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: begin attach quote: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	const insertQuote = `
		INSERT INTO quotes (id, transaction_request_id, transaction_id, amount,
			amount_currency, fee_amount, fee_currency, transfer_amount,
			transfer_currency, ilp_packet, condition, expiration)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err = tx.ExecContext(ctx, insertQuote, quote.ID, transactionRequestID,
		nullString(quote.TransactionID),
		quote.Amount.Amount.String(), quote.Amount.Currency,
		quote.FeeAmount.Amount.String(), quote.FeeAmount.Currency,
		quote.TransferAmount.Amount.String(), quote.TransferAmount.Currency,
		quote.IlpPacket, quote.Condition, quote.Expiration)
	if err != nil {
		if isDuplicate(err) {
			return fmt.Errorf("%w: quote for transaction %s", storage.ErrDuplicate, transactionRequestID)
		}
		return fmt.Errorf("postgres: insert quote: %w", err)
	}

	err = casTransactionState(ctx, tx, transactionRequestID, prev, next)
	if err != nil {
		return err
	}
	return tx.Commit()
}

// UpdateState applies prev → next under the compare-and-swap guard.
func (s *TransactionStore) UpdateState(ctx context.Context, transactionRequestID string, prev, next models.TransactionState) error {
	if !prev.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", storage.ErrIllegalTransition, prev, next)
	}
	return casTransactionState(ctx, s.db, transactionRequestID, prev, next)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func casTransactionState(ctx context.Context, db execer, transactionRequestID string, prev, next models.TransactionState) error {
	const query = `
		UPDATE transactions SET previous_state = state, state = $3
		WHERE transaction_request_id = $1 AND state = $2`

	res, err := db.ExecContext(ctx, query, transactionRequestID, string(prev), string(next))
	if err != nil {
		return fmt.Errorf("postgres: update state: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("postgres: rows affected: %w", err)
	}
	if affected == 1 {
		return nil
	}

	var current string
	err = db.QueryRowContext(ctx,
		`SELECT state FROM transactions WHERE transaction_request_id = $1`,
		transactionRequestID).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: transaction %s", storage.ErrNotFound, transactionRequestID)
	}
	if err != nil {
		return fmt.Errorf("postgres: select state: %w", err)
	}
	return fmt.Errorf("%w: expected %s, found %s", storage.ErrStateConflict, prev, current)
}

// TransferStore persists transfers keyed by the caller-supplied id.
type TransferStore struct {
	db *sql.DB
}

// NewTransferStore wraps an open database handle.
func NewTransferStore(db *sql.DB) *TransferStore {
	return &TransferStore{db: db}
}

// Create inserts a transfer. Unique indexes on id and quote_id enforce the
// one-transfer-per-quote invariant.
func (s *TransferStore) Create(ctx context.Context, transfer *models.Transfer) error {
	const query = `
		INSERT INTO transfers (id, quote_id, transaction_request_id, amount, currency,
			fulfilment, state, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := s.db.ExecContext(ctx, query, transfer.ID, transfer.QuoteID,
		transfer.TransactionRequestID, transfer.Amount.Amount.String(),
		transfer.Amount.Currency, transfer.Fulfilment, string(transfer.State),
		transfer.CreatedAt)
	if err != nil {
		if isDuplicate(err) {
			return fmt.Errorf("%w: transfer %s", storage.ErrDuplicate, transfer.ID)
		}
		return fmt.Errorf("postgres: insert transfer: %w", err)
	}
	return nil
}

// Get returns the transfer for a transfer id.
func (s *TransferStore) Get(ctx context.Context, transferID string) (*models.Transfer, error) {
	const query = `
		SELECT id, quote_id, transaction_request_id, amount, currency, fulfilment,
			state, created_at
		FROM transfers WHERE id = $1`

	var (
		transfer models.Transfer
		amount   string
		state    string
	)
	err := s.db.QueryRowContext(ctx, query, transferID).Scan(&transfer.ID,
		&transfer.QuoteID, &transfer.TransactionRequestID, &amount,
		&transfer.Amount.Currency, &transfer.Fulfilment, &state, &transfer.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: transfer %s", storage.ErrNotFound, transferID)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: select transfer: %w", err)
	}

	transfer.Amount.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("postgres: stored transfer amount %q: %w", amount, err)
	}
	transfer.State = models.TransferState(state)
	return &transfer, nil
}

// UpdateState applies prev → next under the compare-and-swap guard.
func (s *TransferStore) UpdateState(ctx context.Context, transferID string, prev, next models.TransferState) error {
	if !prev.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", storage.ErrIllegalTransition, prev, next)
	}

	const query = `UPDATE transfers SET state = $3 WHERE id = $1 AND state = $2`

	res, err := s.db.ExecContext(ctx, query, transferID, string(prev), string(next))
	if err != nil {
		return fmt.Errorf("postgres: update transfer state: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("postgres: rows affected: %w", err)
	}
	if affected == 1 {
		return nil
	}

	var current string
	err = s.db.QueryRowContext(ctx, `SELECT state FROM transfers WHERE id = $1`, transferID).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: transfer %s", storage.ErrNotFound, transferID)
	}
	if err != nil {
		return fmt.Errorf("postgres: select transfer state: %w", err)
	}
	return fmt.Errorf("%w: expected %s, found %s", storage.ErrStateConflict, prev, current)
}

// LegacyMessageStore persists raw legacy payloads.
type LegacyMessageStore struct {
	db *sql.DB
}

// NewLegacyMessageStore wraps an open database handle.
func NewLegacyMessageStore(db *sql.DB) *LegacyMessageStore {
	return &LegacyMessageStore{db: db}
}

// Create appends the message and backfills the generated id.
func (s *LegacyMessageStore) Create(ctx context.Context, message *models.LegacyMessage) error {
	const query = `
		INSERT INTO legacy_messages (lps_id, lps_key, type, content, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`

	err := s.db.QueryRowContext(ctx, query, message.LpsID, message.LpsKey,
		message.Type, []byte(message.Content), message.CreatedAt).Scan(&message.ID)
	if err != nil {
		return fmt.Errorf("postgres: insert legacy message: %w", err)
	}
	return nil
}

// GetByLpsKey returns all messages recorded for a legacy session key.
func (s *LegacyMessageStore) GetByLpsKey(ctx context.Context, lpsKey string) ([]models.LegacyMessage, error) {
	const query = `
		SELECT id, lps_id, lps_key, type, content, created_at
		FROM legacy_messages WHERE lps_key = $1 ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, lpsKey)
	if err != nil {
		return nil, fmt.Errorf("postgres: select legacy messages: %w", err)
	}
	defer rows.Close()

	var messages []models.LegacyMessage
	for rows.Next() {
		var (
			message models.LegacyMessage
			content []byte
		)
		if err := rows.Scan(&message.ID, &message.LpsID, &message.LpsKey,
			&message.Type, &content, &message.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan legacy message: %w", err)
		}
		message.Content = content
		messages = append(messages, message)
	}
	return messages, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func requireRow(res sql.Result, key string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("postgres: rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: transaction %s", storage.ErrNotFound, key)
	}
	return nil
}
