// Package types defines the wire and domain types shared by the x402
// payment facilitator: the 402 challenge envelope, the decoded payment
// payload, verification/settlement results, and settlement receipts.
package types

import (
	"fmt"
	"time"
)

// X402Version is the protocol version this facilitator speaks.
const X402Version = 1

// SchemeExact is the only payment scheme the facilitator accepts: an
// exact-amount native transfer to the configured recipient.
const SchemeExact = "exact"

// PaymentRequirements describes one acceptable way to pay for a resource.
// It is the element type of the "accepts" array in a 402 challenge.
type PaymentRequirements struct {
	// Scheme of the payment protocol (always "exact" here).
	Scheme string `json:"scheme" validate:"required"`

	// Network of the blockchain to send payment on (e.g. "solana-devnet").
	Network string `json:"network" validate:"required"`

	// MaxAmountRequired is the price in atomic units of the asset,
	// as a decimal string of the integer lamport amount.
	MaxAmountRequired string `json:"maxAmountRequired" validate:"required"`

	// Resource is the URL of the resource to pay for.
	Resource string `json:"resource"`

	// Description of the resource being purchased.
	Description string `json:"description"`

	// MimeType of the resource response.
	MimeType string `json:"mimeType"`

	// PayTo is the address the payment must be sent to.
	PayTo string `json:"payTo" validate:"required"`

	// MaxTimeoutSeconds is the advertised validity window for constructing
	// and submitting the payment.
	MaxTimeoutSeconds int `json:"maxTimeoutSeconds"`

	// Asset identifies the payment asset. Native SOL is "SOL".
	Asset string `json:"asset"`
}

// X402Response is the body of every 402 response: the challenge carries a
// populated Accepts list, a rejection carries only the failure code.
type X402Response struct {
	X402Version int                   `json:"x402Version"`
	Error       string                `json:"error"`
	Accepts     []PaymentRequirements `json:"accepts,omitempty"`
}

// PaymentPayload is the decoded X-Payment header.
//
// The transaction bytes historically appeared under two different field
// names; payment.DecodeHeader accepts both and normalizes to one.
type PaymentPayload struct {
	X402Version int    `json:"x402Version" validate:"required"`
	Scheme      string `json:"scheme" validate:"required"`
	Network     string `json:"network" validate:"required"`

	Payload SolanaPayload `json:"payload"`
}

// SolanaPayload carries the base64-encoded signed transaction. Older
// clients send it as "txBase64", current clients as "transaction".
type SolanaPayload struct {
	Transaction string `json:"transaction,omitempty"`
	TxBase64    string `json:"txBase64,omitempty"`
}

// TransactionBase64 returns the encoded transaction under either legacy
// field name, preferring the current one.
func (p SolanaPayload) TransactionBase64() string {
	if p.Transaction != "" {
		return p.Transaction
	}
	return p.TxBase64
}

// VerificationResult is produced once per payload by the transaction
// verifier and never mutated.
type VerificationResult struct {
	Valid bool `json:"valid"`

	// FailureCode is one of the Err* constants when Valid is false.
	FailureCode string `json:"failureCode,omitempty"`

	// Payer is the base58 public key of the transaction's fee payer
	// (its first signer).
	Payer string `json:"payer,omitempty"`

	// Amount is the verified transfer amount in lamports.
	Amount uint64 `json:"amount,omitempty"`
}

// SettlementResult reports the outcome of submitting a transaction and
// waiting for it to reach the configured confirmation level.
type SettlementResult struct {
	Success   bool   `json:"success"`
	Signature string `json:"signature,omitempty"`
	Network   string `json:"network,omitempty"`

	// FailureCode is ErrSubmissionRejected or ErrConfirmationFailed.
	FailureCode string `json:"failureCode,omitempty"`
	Error       string `json:"error,omitempty"`
}

// SettlementRecord is a receipt for a settled transaction, held by the
// receipt store until its TTL elapses.
type SettlementRecord struct {
	Signature    string    `json:"signature"`
	Payer        string    `json:"payer"`
	Amount       uint64    `json:"amount"`
	ResourcePath string    `json:"resourcePath"`
	CreatedAt    time.Time `json:"createdAt"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// PaymentReceipt is the PAYMENT-RESPONSE header body, base64(JSON)-encoded
// onto successfully relayed responses.
type PaymentReceipt struct {
	Success     bool   `json:"success"`
	Payer       string `json:"payer"`
	Transaction string `json:"transaction"`
	Network     string `json:"network"`
}

// PaymentDetails is injected into the relayed backend body under
// data.paymentDetails after settlement.
type PaymentDetails struct {
	Signature   string `json:"signature"`
	Payer       string `json:"payer"`
	ExplorerURL string `json:"explorerUrl"`
}

// SupportedKind advertises one (version, scheme, network) tuple the
// facilitator can settle.
type SupportedKind struct {
	X402Version int    `json:"x402Version"`
	Scheme      string `json:"scheme"`
	Network     string `json:"network"`
}

// SupportedResponse is the protocol-info endpoint body.
type SupportedResponse struct {
	Kinds     []SupportedKind       `json:"kinds"`
	Resources []PaymentRequirements `json:"resources"`
}

// FacilitatorError is a structured error carrying a wire failure code.
type FacilitatorError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *FacilitatorError) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewError builds a FacilitatorError from a code and detail message.
func NewError(code, format string, args ...any) *FacilitatorError {
	return &FacilitatorError{Code: code, Message: fmt.Sprintf(format, args...)}
}
