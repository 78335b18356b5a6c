// Package quotes computes adaptor fees and builds the quote authorizing a
// transfer, including its ILP commitment.
package quotes

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/lpsbridge/iso8583-adaptor/internal/ilp"
	"github.com/lpsbridge/iso8583-adaptor/internal/models"
)

// ErrFeeCalculation indicates the fee capability failed or returned a fee
// in a currency other than the transaction's. Mixed-currency fee
// aggregation is unsupported.
var ErrFeeCalculation = errors.New("quotes: fee calculation failed")

// FeeCalculator is the injected capability computing the adaptor fee for an
// amount.
type FeeCalculator func(ctx context.Context, amount models.Money) (models.Money, error)

// Engine builds quotes for resolved transactions.
type Engine struct {
	codec         *ilp.Codec
	calculateFees FeeCalculator
	expiry        time.Duration
	logger        zerolog.Logger
	now           func() time.Time
}

// NewEngine constructs a quote engine. The fee calculator and codec are
// required; expiry bounds how long an issued quote stays valid.
func NewEngine(codec *ilp.Codec, calculateFees FeeCalculator, expiry time.Duration, logger zerolog.Logger) (*Engine, error) {
	if codec == nil {
		return nil, errors.New("quotes: ilp codec dependency is required")
	}
	if calculateFees == nil {
		return nil, errors.New("quotes: fee calculator dependency is required")
	}
	if expiry <= 0 {
		expiry = 10 * time.Second
	}
	return &Engine{
		codec:         codec,
		calculateFees: calculateFees,
		expiry:        expiry,
		logger:        logger,
		now:           time.Now,
	}, nil
}

// WithClock overrides the engine's clock. Intended for tests.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	if now != nil {
		e.now = now
	}
	return e
}

// BuildQuote computes the adaptor fee, aggregates it with any fee already
// attached to the transaction, and derives the ILP packet and condition.
// transferAmount = amount + Σ fees, all in the transaction's currency.
func (e *Engine) BuildQuote(ctx context.Context, transaction *models.Transaction, request models.QuotesPostRequest) (models.Quote, []models.Fee, error) {
	adaptorFee, err := e.calculateFees(ctx, transaction.Amount)
	if err != nil {
		return models.Quote{}, nil, fmt.Errorf("%w: %v", ErrFeeCalculation, err)
	}
	if adaptorFee.Currency != transaction.Amount.Currency {
		return models.Quote{}, nil, fmt.Errorf("%w: adaptor fee currency %s does not match transaction currency %s",
			ErrFeeCalculation, adaptorFee.Currency, transaction.Amount.Currency)
	}

	fees := append([]models.Fee(nil), transaction.Fees...)
	fees = append(fees, models.Fee{Type: models.FeeTypeAdaptor, Amount: adaptorFee})

	feeTotal := models.Money{Currency: transaction.Amount.Currency}
	for _, fee := range fees {
		feeTotal, err = feeTotal.Add(fee.Amount)
		if err != nil {
			return models.Quote{}, nil, fmt.Errorf("%w: %v", ErrFeeCalculation, err)
		}
	}

	transferAmount, err := transaction.Amount.Add(feeTotal)
	if err != nil {
		return models.Quote{}, nil, fmt.Errorf("%w: %v", ErrFeeCalculation, err)
	}

	ilpPacket, condition, err := e.codec.QuoteResponse(request, transferAmount)
	if err != nil {
		return models.Quote{}, nil, err
	}

	quote := models.Quote{
		ID:             request.QuoteID,
		TransactionID:  request.TransactionID,
		Amount:         transaction.Amount,
		FeeAmount:      feeTotal,
		TransferAmount: transferAmount,
		IlpPacket:      ilpPacket,
		Condition:      condition,
		Expiration:     e.now().Add(e.expiry),
	}

	e.logger.Debug().
		Str("transaction_request_id", transaction.TransactionRequestID).
		Str("quote_id", quote.ID).
		Str("transfer_amount", transferAmount.String()).
		Msg("quote built")

	return quote, fees, nil
}
