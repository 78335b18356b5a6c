package adaptor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lpsbridge/iso8583-adaptor/internal/events"
	"github.com/lpsbridge/iso8583-adaptor/internal/models"
	"github.com/lpsbridge/iso8583-adaptor/internal/storage"
)

// HandleFinancialRequest processes the legacy 0200 follow-up carrying the
// payer's response to the authorization prompt. ENTERED advances the
// transaction towards fulfilment; REJECTED aborts it.
func (a *Adaptor) HandleFinancialRequest(ctx context.Context, request models.LegacyFinancialRequest) error {
	if request.LpsKey == "" {
		return WrapValidation(errors.New("financial request: lpsKey is required"))
	}

	log := a.logger.With().Str("lps_key", request.LpsKey).Logger()

	content, err := json.Marshal(request)
	if err != nil {
		return WrapValidation(fmt.Errorf("marshal financial request: %v", err))
	}
	message := &models.LegacyMessage{
		LpsID:     request.LpsID,
		LpsKey:    request.LpsKey,
		Type:      models.LegacyMessageTypeFinancial,
		Content:   content,
		CreatedAt: a.now(),
	}
	if err := a.legacyMessages.Create(ctx, message); err != nil {
		log.Error().Err(err).Msg("failed to record legacy message")
		return WrapInfrastructure(err)
	}

	transaction, err := a.requireTransaction(ctx, a.transactions.GetByLpsKey, request.LpsKey)
	if err != nil {
		return err
	}

	if request.ResponseType == models.LegacyResponseRejected {
		a.abortTransaction(ctx, transaction.TransactionRequestID, transaction.State)
		log.Info().Str("transaction_request_id", transaction.TransactionRequestID).Msg("authorization rejected by payer")
		return nil
	}
	if request.ResponseType != models.LegacyResponseEntered {
		return WrapValidation(fmt.Errorf("financial request: unknown responseType %q", request.ResponseType))
	}

	err = a.transactions.UpdateState(ctx, transaction.TransactionRequestID,
		models.TransactionStateQuoteRequested, models.TransactionStateFinancialRequestSent)
	if errors.Is(err, storage.ErrStateConflict) {
		log.Info().Msg("financial request already applied, ignoring duplicate")
		return nil
	}
	if errors.Is(err, storage.ErrIllegalTransition) {
		return WrapStateViolation(err)
	}
	if err != nil {
		return WrapInfrastructure(err)
	}

	a.emit(ctx, events.TypeFinancialRequestSent, transaction.TransactionRequestID, nil)
	log.Info().Str("transaction_request_id", transaction.TransactionRequestID).Msg("financial request accepted")
	return nil
}

// HandleReversalRequest processes a legacy 0420 advice asking the adaptor
// to back out a prior request. Reversing a transaction that already reached
// a terminal state is a no-op.
func (a *Adaptor) HandleReversalRequest(ctx context.Context, request models.LegacyReversalRequest) error {
	if request.LpsKey == "" {
		return WrapValidation(errors.New("reversal request: lpsKey is required"))
	}

	log := a.logger.With().Str("lps_key", request.LpsKey).Logger()

	content, err := json.Marshal(request)
	if err != nil {
		return WrapValidation(fmt.Errorf("marshal reversal request: %v", err))
	}
	message := &models.LegacyMessage{
		LpsID:     request.LpsID,
		LpsKey:    request.LpsKey,
		Type:      models.LegacyMessageTypeReversal,
		Content:   content,
		CreatedAt: a.now(),
	}
	if err := a.legacyMessages.Create(ctx, message); err != nil {
		log.Error().Err(err).Msg("failed to record legacy message")
		return WrapInfrastructure(err)
	}

	transaction, err := a.requireTransaction(ctx, a.transactions.GetByLpsKey, request.LpsKey)
	if err != nil {
		return err
	}

	if transaction.State.Terminal() {
		log.Info().
			Str("transaction_request_id", transaction.TransactionRequestID).
			Str("state", string(transaction.State)).
			Msg("reversal for terminal transaction, ignoring")
		return nil
	}

	a.abortTransaction(ctx, transaction.TransactionRequestID, transaction.State)
	log.Info().Str("transaction_request_id", transaction.TransactionRequestID).Msg("transaction reversed")
	return nil
}
