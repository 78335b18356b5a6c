// Package iso8583 translates already-parsed legacy field maps into the
// canonical transaction-request shape and back. It never touches wire-level
// ISO8583 encoding.
package iso8583

import (
	"errors"
	"fmt"

	"github.com/lpsbridge/iso8583-adaptor/internal/models"
	"github.com/lpsbridge/iso8583-adaptor/internal/util"
)

// ISO8583 data elements consumed from a 0100 message.
const (
	FieldAmount      = "4"   // transaction amount
	FieldExpiration  = "7"   // transmission date and time
	FieldLpsFee      = "28"  // transaction fee
	FieldPayeeDevice = "41"  // card acceptor terminal id
	FieldPayeeSubID  = "42"  // card acceptor id code
	FieldCurrency    = "49"  // transaction currency code
	FieldPayerMSISDN = "102" // account identification 1
)

// ErrTranslation indicates a legacy payload is missing a required mapped
// field. No transaction is created from such a payload.
var ErrTranslation = errors.New("legacy message translation failed")

func required(fields map[string]string, field string) (string, error) {
	value, ok := fields[field]
	if !ok || value == "" {
		return "", fmt.Errorf("%w: field %s is required", ErrTranslation, field)
	}
	return value, nil
}

// TranslateTransactionRequest maps a legacy 0100 field map to a canonical
// transaction request. The mapping is total for a well-formed message:
// every required field missing is reported as ErrTranslation.
func TranslateTransactionRequest(transactionRequestID string, legacy models.LegacyTransactionRequest) (models.TransactionRequest, error) {
	if legacy.LpsID == "" || legacy.LpsKey == "" {
		return models.TransactionRequest{}, fmt.Errorf("%w: lpsId and lpsKey are required", ErrTranslation)
	}

	payerMSISDN, err := required(legacy.Fields, FieldPayerMSISDN)
	if err != nil {
		return models.TransactionRequest{}, err
	}
	payerMSISDN, err = util.ValidateMSISDN(payerMSISDN)
	if err != nil {
		return models.TransactionRequest{}, fmt.Errorf("%w: %v", ErrTranslation, err)
	}
	deviceID, err := required(legacy.Fields, FieldPayeeDevice)
	if err != nil {
		return models.TransactionRequest{}, err
	}
	subID, err := required(legacy.Fields, FieldPayeeSubID)
	if err != nil {
		return models.TransactionRequest{}, err
	}
	amount, err := required(legacy.Fields, FieldAmount)
	if err != nil {
		return models.TransactionRequest{}, err
	}
	currency, err := required(legacy.Fields, FieldCurrency)
	if err != nil {
		return models.TransactionRequest{}, err
	}
	expiration, err := required(legacy.Fields, FieldExpiration)
	if err != nil {
		return models.TransactionRequest{}, err
	}

	money, err := models.NewMoney(amount, currency)
	if err != nil {
		return models.TransactionRequest{}, fmt.Errorf("%w: %v", ErrTranslation, err)
	}

	return models.TransactionRequest{
		TransactionRequestID: transactionRequestID,
		Payer: models.PartyIDInfo{
			PartyIDType:     models.PartyIDTypeMSISDN,
			PartyIdentifier: payerMSISDN,
		},
		Payee: models.HubParty{
			PartyIDInfo: models.PartyIDInfo{
				PartyIDType:      models.PartyIDTypeDevice,
				PartyIdentifier:  deviceID,
				PartySubIDOrType: subID,
			},
		},
		Amount: money,
		TransactionType: models.TransactionTypeInfo{
			Scenario:      models.ScenarioWithdrawal,
			Initiator:     models.InitiatorPayee,
			InitiatorType: models.InitiatorTypeDevice,
		},
		AuthenticationType: models.AuthenticationTypeOTP,
		Expiration:         expiration,
	}, nil
}

// LpsFee extracts the optional legacy-switch fee from a 0100 field map. A
// missing fee field is not an error; a malformed one is.
func LpsFee(legacy models.LegacyTransactionRequest, currency string) (models.Fee, bool, error) {
	raw, ok := legacy.Fields[FieldLpsFee]
	if !ok || raw == "" {
		return models.Fee{}, false, nil
	}
	money, err := models.NewMoney(raw, currency)
	if err != nil {
		return models.Fee{}, false, fmt.Errorf("%w: %v", ErrTranslation, err)
	}
	return models.Fee{Type: models.FeeTypeLps, Amount: money}, true, nil
}

// AuthorizationResponse is the dual mapping back to the legacy-facing
// acknowledgement for a 0100, carrying the amounts the payer approves.
func AuthorizationResponse(transaction *models.Transaction) (models.LegacyAuthorizationResponse, error) {
	if transaction.Quote == nil {
		return models.LegacyAuthorizationResponse{}, fmt.Errorf("%w: transaction %s has no quote", ErrTranslation, transaction.TransactionRequestID)
	}
	return models.LegacyAuthorizationResponse{
		LpsKey:         transaction.LpsKey,
		TransferAmount: transaction.Quote.TransferAmount,
		Fees:           transaction.Quote.FeeAmount,
	}, nil
}
