package adaptor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lpsbridge/iso8583-adaptor/internal/events"
	"github.com/lpsbridge/iso8583-adaptor/internal/models"
	"github.com/lpsbridge/iso8583-adaptor/internal/storage"
)

// Fixed error callback sent when a transfer request cannot be processed.
const (
	transferErrorCode        = "2001"
	transferErrorDescription = "Failed to process transfer request."
)

// HandleTransferRequest reserves and commits the transfer authorized by a
// quote. The inbound request produces exactly one outbound call to the
// fspiop-source party: a transfer response on success, or the fixed
// transfer-error callback on any handled failure. Duplicate deliveries of
// an already-processed transfer are no-ops.
func (a *Adaptor) HandleTransferRequest(ctx context.Context, request models.TransfersPostRequest, headers Headers) error {
	if request.TransferID == "" || request.QuoteID == "" {
		return WrapValidation(errors.New("transfer request: transferId and quoteId are required"))
	}

	log := a.logger.With().
		Str("transfer_id", request.TransferID).
		Str("quote_id", request.QuoteID).
		Logger()

	transaction, err := a.lookupTransaction(ctx, request)
	if err != nil {
		log.Warn().Err(err).Msg("transfer request refers to no known transaction")
		return a.transferError(ctx, request.TransferID, headers.Source, err)
	}

	quote := transaction.Quote
	if quote == nil || quote.ID != request.QuoteID {
		err := WrapDomain(fmt.Errorf("no quote %s on transaction %s", request.QuoteID, transaction.TransactionRequestID))
		log.Warn().Err(err).Msg("transfer request rejected")
		return a.transferError(ctx, request.TransferID, headers.Source, err)
	}
	if quote.Expired(a.now()) {
		err := WrapDomain(fmt.Errorf("quote %s expired at %s", quote.ID, quote.Expiration))
		log.Warn().Err(err).Msg("transfer request rejected")
		return a.transferError(ctx, request.TransferID, headers.Source, err)
	}

	// A transfer is only valid once the payer has answered the
	// authorization prompt. Later states are left to the duplicate
	// handling below; anything earlier (or aborted) is an out-of-order
	// request and must not reserve a transfer.
	switch transaction.State {
	case models.TransactionStateFinancialRequestSent,
		models.TransactionStateFulfillmentSent,
		models.TransactionStateCompleted:
	default:
		err := WrapStateViolation(fmt.Errorf("transfer for transaction %s in state %s",
			transaction.TransactionRequestID, transaction.State))
		log.Warn().Err(err).Msg("transfer request rejected")
		return a.transferError(ctx, request.TransferID, headers.Source, err)
	}

	transfer := &models.Transfer{
		ID:                   request.TransferID,
		QuoteID:              request.QuoteID,
		TransactionRequestID: transaction.TransactionRequestID,
		Amount:               request.Amount,
		Fulfilment:           a.ilp.Fulfilment(request.IlpPacket),
		State:                models.TransferStateReserved,
		CreatedAt:            a.now(),
	}
	if err := a.transfers.Create(ctx, transfer); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			// Either this transferId was already delivered, or the quote
			// was consumed by a different transfer. Only the former is a
			// benign re-delivery that the first delivery owns.
			if _, getErr := a.transfers.Get(ctx, request.TransferID); getErr == nil {
				log.Info().Msg("transfer already exists, ignoring duplicate delivery")
				return nil
			}
			domainErr := WrapDomain(fmt.Errorf("quote %s already consumed by another transfer", request.QuoteID))
			log.Warn().Err(domainErr).Msg("transfer request rejected")
			return a.transferError(ctx, request.TransferID, headers.Source, domainErr)
		}
		log.Error().Err(err).Msg("transfer creation failed")
		return a.transferError(ctx, request.TransferID, headers.Source, WrapInfrastructure(err))
	}

	// The commitment check: the condition stored at quote time must equal
	// the one derived from this packet's independently recomputed
	// fulfilment.
	condition, err := a.ilp.Condition(transfer.Fulfilment)
	if err != nil || condition != quote.Condition || !a.ilp.Verify(request.IlpPacket, transfer.Fulfilment) {
		domainErr := WrapDomain(fmt.Errorf("ilp condition mismatch for transfer %s", transfer.ID))
		log.Warn().Err(domainErr).Msg("transfer failed commitment verification")
		a.abortTransfer(ctx, transfer.ID)
		return a.transferError(ctx, transfer.ID, headers.Source, domainErr)
	}

	if err := a.transfers.UpdateState(ctx, transfer.ID, models.TransferStateReserved, models.TransferStateCommitted); err != nil {
		log.Error().Err(err).Msg("failed to commit transfer")
		return a.transferError(ctx, transfer.ID, headers.Source, WrapInfrastructure(err))
	}

	err = a.transactions.UpdateState(ctx, transaction.TransactionRequestID,
		models.TransactionStateFinancialRequestSent, models.TransactionStateFulfillmentSent)
	if err != nil && !errors.Is(err, storage.ErrStateConflict) {
		log.Error().Err(err).Msg("failed to advance transaction after transfer commit")
		return a.transferError(ctx, transfer.ID, headers.Source, WrapInfrastructure(err))
	}

	response := models.TransfersIDPutResponse{
		Fulfilment:         transfer.Fulfilment,
		TransferState:      string(models.TransferStateCommitted),
		CompletedTimestamp: a.now().UTC().Format(time.RFC3339),
	}
	if err := a.hub.PutTransfers(ctx, transfer.ID, response, headers.Source); err != nil {
		log.Error().Err(err).Msg("failed to send transfer response")
		return WrapInfrastructure(err)
	}

	a.emit(ctx, events.TypeTransferCommitted, transaction.TransactionRequestID, transfer)
	log.Info().
		Str("transaction_request_id", transaction.TransactionRequestID).
		Msg("transfer committed")
	return nil
}

func (a *Adaptor) lookupTransaction(ctx context.Context, request models.TransfersPostRequest) (*models.Transaction, error) {
	if request.TransactionRequestID != "" {
		return a.requireTransaction(ctx, a.transactions.Get, request.TransactionRequestID)
	}
	if request.TransactionID != "" {
		return a.requireTransaction(ctx, a.transactions.GetByTransactionID, request.TransactionID)
	}
	return nil, WrapValidation(errors.New("transfer request: transactionId or transactionRequestId is required"))
}

// transferError emits the fixed transfer-error callback. The handler's
// outcome is the callback itself, so a successfully delivered callback
// resolves the pipeline without an error.
func (a *Adaptor) transferError(ctx context.Context, transferID, destination string, cause error) error {
	info := models.ErrorInformation{
		ErrorCode:        transferErrorCode,
		ErrorDescription: transferErrorDescription,
	}
	if err := a.hub.PutTransfersError(ctx, transferID, info, destination); err != nil {
		a.logger.Error().
			Err(err).
			Str("transfer_id", transferID).
			Msg("failed to deliver transfer error callback")
		return WrapInfrastructure(err)
	}
	a.logger.Warn().
		Err(cause).
		Str("transfer_id", transferID).
		Str("destination", destination).
		Msg("transfer error callback sent")
	return nil
}

func (a *Adaptor) abortTransfer(ctx context.Context, transferID string) {
	if err := a.transfers.UpdateState(ctx, transferID, models.TransferStateReserved, models.TransferStateAborted); err != nil {
		a.logger.Error().Err(err).Str("transfer_id", transferID).Msg("failed to abort transfer")
		return
	}
	a.emit(ctx, events.TypeTransferAborted, transferID, nil)
}
