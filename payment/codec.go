// Package payment builds 402 challenges and decodes client payment headers.
package payment

import (
	"encoding/base64"
	"encoding/json"

	"github.com/go-playground/validator/v10"

	"github.com/vitwit/x402-facilitator/types"
)

var validate = validator.New()

// DecodeHeader decodes and validates the raw X-Payment header value.
//
// The pipeline is base64 → JSON → strict field validation; the version and
// scheme gates run before anything else is touched, so a mismatched client
// fails fast with a precise code and no network call is ever made.
func DecodeHeader(raw string, network types.Network) (*types.PaymentPayload, *types.FacilitatorError) {
	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, types.NewError(types.ErrMalformedPayload, "invalid base64: %v", err)
	}

	var payload types.PaymentPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, types.NewError(types.ErrMalformedPayload, "invalid JSON: %v", err)
	}

	if payload.X402Version != types.X402Version {
		return nil, types.NewError(types.ErrUnsupportedVersion,
			"x402Version %d is not supported", payload.X402Version)
	}
	if payload.Scheme != types.SchemeExact {
		return nil, types.NewError(types.ErrUnsupportedScheme,
			"scheme %q is not supported", payload.Scheme)
	}
	if payload.Network == "" || payload.Network != network.String() {
		return nil, types.NewError(types.ErrInvalidNetwork,
			"network %q does not match facilitator network %q", payload.Network, network)
	}
	if err := validate.Struct(&payload); err != nil {
		return nil, types.NewError(types.ErrMalformedPayload, "validation failed: %v", err)
	}

	// Normalize the two legacy transaction field names.
	tx := payload.Payload.TransactionBase64()
	if tx == "" {
		return nil, types.NewError(types.ErrMissingTransaction, "payload carries no transaction bytes")
	}
	payload.Payload = types.SolanaPayload{Transaction: tx}

	return &payload, nil
}

// TransactionBytes decodes the normalized transaction field.
func TransactionBytes(payload *types.PaymentPayload) ([]byte, *types.FacilitatorError) {
	raw, err := base64.StdEncoding.DecodeString(payload.Payload.Transaction)
	if err != nil {
		return nil, types.NewError(types.ErrInvalidTransaction, "invalid transaction base64: %v", err)
	}
	if len(raw) == 0 {
		return nil, types.NewError(types.ErrMissingTransaction, "payload carries no transaction bytes")
	}
	return raw, nil
}

// EncodeReceipt renders the PAYMENT-RESPONSE header value.
func EncodeReceipt(receipt types.PaymentReceipt) (string, error) {
	data, err := json.Marshal(receipt)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// EncodeSettlementProof renders the X-Payment-Settled header value attached
// to backend-bound requests after settlement.
func EncodeSettlementProof(record types.SettlementRecord) (string, error) {
	data, err := json.Marshal(record)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}
