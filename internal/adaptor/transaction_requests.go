package adaptor

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/lpsbridge/iso8583-adaptor/internal/events"
	"github.com/lpsbridge/iso8583-adaptor/internal/iso8583"
	"github.com/lpsbridge/iso8583-adaptor/internal/models"
)

// HandleTransactionRequest ingests a legacy 0100 message: it records the
// raw payload, translates it into a canonical transaction request, creates
// the transaction aggregate and asks the account-lookup service to resolve
// the payer's FSP. A failure at any step leaves no outbound call hanging
// and no transaction in a non-aborted state.
func (a *Adaptor) HandleTransactionRequest(ctx context.Context, legacy models.LegacyTransactionRequest) error {
	log := a.logger.With().Str("lps_id", legacy.LpsID).Str("lps_key", legacy.LpsKey).Logger()

	content, err := json.Marshal(legacy)
	if err != nil {
		return WrapValidation(fmt.Errorf("marshal legacy payload: %v", err))
	}
	message := &models.LegacyMessage{
		LpsID:     legacy.LpsID,
		LpsKey:    legacy.LpsKey,
		Type:      models.LegacyMessageTypeAuthorization,
		Content:   content,
		CreatedAt: a.now(),
	}
	if err := a.legacyMessages.Create(ctx, message); err != nil {
		log.Error().Err(err).Msg("failed to record legacy message")
		return WrapInfrastructure(err)
	}

	transactionRequestID := uuid.NewString()
	request, err := iso8583.TranslateTransactionRequest(transactionRequestID, legacy)
	if err != nil {
		log.Warn().Err(err).Msg("legacy message rejected at translation")
		return WrapTranslation(err)
	}

	transaction := &models.Transaction{
		TransactionRequestID: transactionRequestID,
		LpsID:                legacy.LpsID,
		LpsKey:               legacy.LpsKey,
		Payer: models.Party{
			Type:            models.PartyTypePayer,
			IdentifierType:  request.Payer.PartyIDType,
			IdentifierValue: request.Payer.PartyIdentifier,
		},
		Payee: models.Party{
			Type:            models.PartyTypePayee,
			IdentifierType:  request.Payee.PartyIDInfo.PartyIDType,
			IdentifierValue: request.Payee.PartyIDInfo.PartyIdentifier,
			SubIDOrType:     request.Payee.PartyIDInfo.PartySubIDOrType,
		},
		Amount:             request.Amount,
		Scenario:           request.TransactionType.Scenario,
		Initiator:          request.TransactionType.Initiator,
		InitiatorType:      request.TransactionType.InitiatorType,
		AuthenticationType: request.AuthenticationType,
		Expiration:         request.Expiration,
		State:              models.TransactionStateReceived,
		CreatedAt:          a.now(),
	}

	if fee, ok, err := iso8583.LpsFee(legacy, request.Amount.Currency); err != nil {
		log.Warn().Err(err).Msg("legacy message rejected at fee translation")
		return WrapTranslation(err)
	} else if ok {
		transaction.Fees = append(transaction.Fees, fee)
	}

	if err := a.transactions.Create(ctx, transaction); err != nil {
		log.Error().Err(err).Msg("failed to create transaction")
		return WrapInfrastructure(err)
	}

	// The transactionRequestId doubles as the lookup trace id so the
	// parties callback can be correlated back to this transaction.
	if err := a.accountLookup.RequestFspIDFromMSISDN(ctx, transactionRequestID, request.Payer.PartyIdentifier); err != nil {
		log.Error().Err(err).Msg("account lookup request failed, aborting transaction")
		a.abortTransaction(ctx, transaction.TransactionRequestID, transaction.State)
		return WrapInfrastructure(err)
	}

	a.emit(ctx, events.TypeTransactionReceived, transactionRequestID, request)
	log.Info().Str("transaction_request_id", transactionRequestID).Msg("transaction request created")
	return nil
}

// abortTransaction routes a transaction to the aborted terminal, logging
// rather than surfacing failures: it runs on paths that already carry one.
func (a *Adaptor) abortTransaction(ctx context.Context, transactionRequestID string, current models.TransactionState) {
	if current.Terminal() {
		return
	}
	if err := a.transactions.UpdateState(ctx, transactionRequestID, current, models.TransactionStateAborted); err != nil {
		a.logger.Error().
			Err(err).
			Str("transaction_request_id", transactionRequestID).
			Msg("failed to abort transaction")
		return
	}
	a.emit(ctx, events.TypeTransactionAborted, transactionRequestID, nil)
}
