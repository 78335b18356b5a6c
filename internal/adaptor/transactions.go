package adaptor

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/lpsbridge/iso8583-adaptor/internal/events"
	"github.com/lpsbridge/iso8583-adaptor/internal/models"
	"github.com/lpsbridge/iso8583-adaptor/internal/storage"
)

// HandleTransactionUpdate processes the hub's completion callback for a
// transaction and acknowledges the original financial request back to the
// legacy switch.
func (a *Adaptor) HandleTransactionUpdate(ctx context.Context, transactionID string, payload models.TransactionsIDPutResponse) error {
	if transactionID == "" {
		return WrapValidation(errors.New("transaction update: transaction id is required"))
	}
	if !strings.EqualFold(payload.TransactionState, "COMPLETED") {
		return WrapValidation(errors.New("transaction update: unsupported transactionState " + payload.TransactionState))
	}

	transaction, err := a.requireTransaction(ctx, a.transactions.GetByTransactionID, transactionID)
	if err != nil {
		return err
	}

	log := a.logger.With().
		Str("transaction_request_id", transaction.TransactionRequestID).
		Str("transaction_id", transactionID).
		Logger()

	err = a.transactions.UpdateState(ctx, transaction.TransactionRequestID,
		models.TransactionStateFulfillmentSent, models.TransactionStateCompleted)
	if errors.Is(err, storage.ErrStateConflict) {
		log.Info().Msg("transaction update already applied, ignoring duplicate")
		return nil
	}
	if errors.Is(err, storage.ErrIllegalTransition) {
		return WrapStateViolation(err)
	}
	if err != nil {
		return WrapInfrastructure(err)
	}

	if response, ok := a.legacyFinancialResponse(ctx, transaction); ok {
		if err := a.lps.SendFinancialResponse(ctx, transaction.LpsID, response); err != nil {
			log.Warn().Err(err).Msg("failed to acknowledge completion to legacy switch")
		}
	}

	a.emit(ctx, events.TypeTransactionCompleted, transaction.TransactionRequestID, nil)
	log.Info().Msg("transaction completed")
	return nil
}

// legacyFinancialResponse rebuilds the switch acknowledgement from the
// recorded financial request, so the switch can match it to its own
// message id.
func (a *Adaptor) legacyFinancialResponse(ctx context.Context, transaction *models.Transaction) (models.LegacyFinancialResponse, bool) {
	messages, err := a.legacyMessages.GetByLpsKey(ctx, transaction.LpsKey)
	if err != nil {
		a.logger.Warn().Err(err).Str("lps_key", transaction.LpsKey).Msg("could not load legacy messages")
		return models.LegacyFinancialResponse{}, false
	}

	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Type != models.LegacyMessageTypeFinancial {
			continue
		}
		var request models.LegacyFinancialRequest
		if err := json.Unmarshal(messages[i].Content, &request); err != nil {
			continue
		}
		return models.LegacyFinancialResponse{
			LpsKey:                       transaction.LpsKey,
			LpsFinancialRequestMessageID: request.LpsFinancialRequestMessageID,
		}, true
	}
	return models.LegacyFinancialResponse{}, false
}
