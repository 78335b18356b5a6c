package adaptor

import (
	"context"
	"errors"
	"fmt"

	"github.com/lpsbridge/iso8583-adaptor/internal/events"
	"github.com/lpsbridge/iso8583-adaptor/internal/models"
	"github.com/lpsbridge/iso8583-adaptor/internal/storage"
)

// HandleParties processes the asynchronous account-lookup callback carrying
// the FSP resolved for the payer. The transaction is found through the
// correlation id supplied in the request metadata, advanced to
// payerIdentified and forwarded to the hub.
func (a *Adaptor) HandleParties(ctx context.Context, payload models.PartiesPutResponse, headers Headers) error {
	transactionRequestID := headers.CorrelationID
	if transactionRequestID == "" {
		return WrapValidation(errors.New("parties callback: correlation id header is required"))
	}

	fspID := payload.Party.PartyIDInfo.FspID
	if fspID == "" {
		return WrapValidation(errors.New("parties callback: fspId is required"))
	}

	log := a.logger.With().Str("transaction_request_id", transactionRequestID).Logger()

	transaction, err := a.transactions.Get(ctx, transactionRequestID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return WrapDomain(err)
		}
		return WrapInfrastructure(err)
	}

	if err := a.transactions.UpdatePayerFspID(ctx, transactionRequestID, fspID); err != nil {
		log.Error().Err(err).Msg("failed to record payer fsp")
		return WrapInfrastructure(err)
	}

	err = a.transactions.UpdateState(ctx, transactionRequestID,
		models.TransactionStateReceived, models.TransactionStatePayerIdentified)
	if errors.Is(err, storage.ErrStateConflict) {
		// Duplicate delivery: the transition already happened.
		log.Info().Msg("parties callback already applied, ignoring duplicate")
		return nil
	}
	if errors.Is(err, storage.ErrIllegalTransition) {
		return WrapStateViolation(err)
	}
	if err != nil {
		return WrapInfrastructure(err)
	}

	transaction.Payer.FspID = fspID
	request := canonicalTransactionRequest(transaction)
	if err := a.hub.PostTransactionRequests(ctx, request, fspID); err != nil {
		log.Error().Err(err).Msg("failed to forward transaction request to hub")
		return WrapInfrastructure(err)
	}

	a.emit(ctx, events.TypePayerResolved, transactionRequestID, payload.Party.PartyIDInfo)
	log.Info().Str("fsp_id", fspID).Msg("payer identified, transaction forwarded to hub")
	return nil
}

// canonicalTransactionRequest rebuilds the hub-facing transaction request
// from the stored aggregate.
func canonicalTransactionRequest(transaction *models.Transaction) models.TransactionRequest {
	return models.TransactionRequest{
		TransactionRequestID: transaction.TransactionRequestID,
		Payer: models.PartyIDInfo{
			PartyIDType:     transaction.Payer.IdentifierType,
			PartyIdentifier: transaction.Payer.IdentifierValue,
			FspID:           transaction.Payer.FspID,
		},
		Payee: models.HubParty{
			PartyIDInfo: models.PartyIDInfo{
				PartyIDType:      transaction.Payee.IdentifierType,
				PartyIdentifier:  transaction.Payee.IdentifierValue,
				PartySubIDOrType: transaction.Payee.SubIDOrType,
				FspID:            transaction.Payee.FspID,
			},
		},
		Amount: transaction.Amount,
		TransactionType: models.TransactionTypeInfo{
			Scenario:      transaction.Scenario,
			Initiator:     transaction.Initiator,
			InitiatorType: transaction.InitiatorType,
		},
		AuthenticationType: transaction.AuthenticationType,
		Expiration:         transaction.Expiration,
	}
}

// requireTransaction loads a transaction by correlation id, classifying a
// missing row as a domain rejection.
func (a *Adaptor) requireTransaction(ctx context.Context, get func(context.Context, string) (*models.Transaction, error), key string) (*models.Transaction, error) {
	transaction, err := get(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, WrapDomain(fmt.Errorf("unknown correlation id %s", key))
		}
		return nil, WrapInfrastructure(err)
	}
	return transaction, nil
}
