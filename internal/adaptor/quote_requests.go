package adaptor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lpsbridge/iso8583-adaptor/internal/events"
	"github.com/lpsbridge/iso8583-adaptor/internal/iso8583"
	"github.com/lpsbridge/iso8583-adaptor/internal/models"
	"github.com/lpsbridge/iso8583-adaptor/internal/storage"
	"github.com/lpsbridge/iso8583-adaptor/internal/util"
)

// HandleQuoteRequest processes the hub's quote request for a previously
// forwarded transaction: it pins the hub-assigned transaction id, builds
// the quote with its ILP commitment, attaches it while advancing the state,
// and returns the quote response to the requesting FSP.
func (a *Adaptor) HandleQuoteRequest(ctx context.Context, request models.QuotesPostRequest, headers Headers) error {
	if request.QuoteID == "" || request.TransactionRequestID == "" {
		return WrapValidation(errors.New("quote request: quoteId and transactionRequestId are required"))
	}

	log := a.logger.With().
		Str("transaction_request_id", request.TransactionRequestID).
		Str("quote_id", request.QuoteID).
		Logger()

	transaction, err := a.requireTransaction(ctx, a.transactions.Get, request.TransactionRequestID)
	if err != nil {
		return err
	}

	// Expiry is checked on access, not by a background sweep. Legacy
	// expirations that do not parse as timestamps are left to the switch.
	if expiry, parseErr := util.ParseRFC3339(transaction.Expiration); parseErr == nil {
		if a.now().After(expiry) {
			return WrapDomain(fmt.Errorf("transaction request %s expired at %s", transaction.TransactionRequestID, transaction.Expiration))
		}
	}

	if request.TransactionID != "" {
		if err := a.transactions.SetTransactionID(ctx, transaction.TransactionRequestID, request.TransactionID); err != nil {
			log.Error().Err(err).Msg("failed to record transaction id")
			return WrapInfrastructure(err)
		}
	}

	quote, fees, err := a.quotes.BuildQuote(ctx, transaction, request)
	if err != nil {
		log.Error().Err(err).Msg("quote construction failed")
		return WrapDomain(err)
	}

	err = a.transactions.AttachQuote(ctx, transaction.TransactionRequestID, quote,
		models.TransactionStatePayerIdentified, models.TransactionStateQuoteRequested)
	if errors.Is(err, storage.ErrStateConflict) || errors.Is(err, storage.ErrDuplicate) {
		log.Info().Msg("quote request already applied, ignoring duplicate")
		return nil
	}
	if errors.Is(err, storage.ErrIllegalTransition) {
		return WrapStateViolation(err)
	}
	if err != nil {
		return WrapInfrastructure(err)
	}

	// Persist the adaptor fee alongside the quote so the stored aggregate
	// explains the transfer amount.
	for _, fee := range fees[len(transaction.Fees):] {
		if err := a.transactions.AddFee(ctx, transaction.TransactionRequestID, fee); err != nil {
			log.Error().Err(err).Msg("failed to record adaptor fee")
			return WrapInfrastructure(err)
		}
	}

	response := models.QuotesIDPutResponse{
		TransferAmount: quote.TransferAmount,
		PayeeFspFee:    &quote.FeeAmount,
		Expiration:     quote.Expiration.UTC().Format(time.RFC3339),
		IlpPacket:      quote.IlpPacket,
		Condition:      quote.Condition,
	}
	if err := a.hub.PutQuotes(ctx, quote.ID, response, headers.Source); err != nil {
		log.Error().Err(err).Msg("failed to send quote response to hub")
		return WrapInfrastructure(err)
	}

	// Legacy acknowledgement carrying the amounts the payer approves. The
	// hub-side quote already went out, so a failing switch link is logged
	// and retried by the switch, not unwound here.
	transaction.Quote = &quote
	if legacyResponse, buildErr := iso8583.AuthorizationResponse(transaction); buildErr != nil {
		log.Warn().Err(buildErr).Msg("could not build legacy authorization response")
	} else if sendErr := a.lps.SendAuthorizationResponse(ctx, transaction.LpsID, legacyResponse); sendErr != nil {
		log.Warn().Err(sendErr).Msg("failed to acknowledge authorization to legacy switch")
	}

	a.emit(ctx, events.TypeQuoteIssued, transaction.TransactionRequestID, quote)
	log.Info().Str("transfer_amount", quote.TransferAmount.String()).Msg("quote issued")
	return nil
}
